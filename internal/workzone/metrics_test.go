package workzone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

func fps(v float64) *float64 { return &v }

func requireValue(t *testing.T, want float64, got *float64, name string) {
	t.Helper()
	require.NotNil(t, got, "%s should be defined", name)
	assert.InDelta(t, want, *got, eps, name)
}

func TestComputeStateMetrics_FullPass(t *testing.T) {
	gt := StateIntervals{
		StateOutside:     {{0, 4}},
		StateApproaching: {{5, 7}},
		StateInside:      {{8, 9}},
		StateExiting:     {{10, 11}},
	}
	pred := StateIntervals{
		StateOutside:     {{0, 4}, {12, 12}},
		StateApproaching: {{5, 7}},
		StateInside:      {{8, 9}},
		StateExiting:     {{10, 11}},
	}
	m := ComputeStateMetrics(gt, pred, fps(30), DefaultOptions())

	assert.Equal(t, 13, m.TotalFrames)
	assert.Equal(t, 1.0, m.FrameAccuracy)
	assert.Equal(t, 0, m.TimeInErrorFrames)
	requireValue(t, 0, m.TimeInErrorSec, "time_in_error_sec")

	requireValue(t, 1, m.TransitionRecall, "transition_recall")
	requireValue(t, 1, m.TransitionPrecision, "transition_precision")
	requireValue(t, 1, m.TransitionAccuracy, "transition_accuracy")
	requireValue(t, 1, m.EventRecall, "event_recall")
	requireValue(t, 1, m.EventPrecision, "event_precision")
	requireValue(t, 1, m.AdvisoryEventRecall, "advisory_event_recall")
	requireValue(t, 1, m.AdvisoryEventPrecision, "advisory_event_precision")

	requireValue(t, 0, m.EntryTimingMAEFrames, "entry_timing_mae_frames")
	requireValue(t, 0, m.EntryTimingMAESec, "entry_timing_mae_sec")
	requireValue(t, 0, m.AdvisoryTimingMAEFrames, "advisory_timing_mae_frames")
	requireValue(t, 0, m.AdvisoryStartErrorFrames, "advisory_start_error_frames")

	assert.Equal(t, 0.0, m.FalseActivationRate)
	assert.Equal(t, 0.0, m.FalseAdvisoryRate)
	requireValue(t, 0, m.FalseActivationsPerMinute, "false_activations_per_minute")

	for name, v := range map[string]*float64{
		"iou_outside":     m.IoUOutside,
		"iou_approaching": m.IoUApproaching,
		"iou_inside":      m.IoUInside,
		"iou_exiting":     m.IoUExiting,
		"mean_iou":        m.MeanIoU,
		"macro_precision": m.MacroPrecision,
		"macro_recall":    m.MacroRecall,
		"macro_f1":        m.MacroF1,
	} {
		requireValue(t, 1, v, name)
	}

	requireValue(t, 1, m.AdvisoryCoverageRatio, "advisory_coverage_ratio")
	requireValue(t, 0.4, m.SimulatedSpeedViolationReduction, "simulated_speed_violation_reduction")
	requireValue(t, float64(8-5)/30, m.LeadTimeSec, "lead_time_sec")
	requireValue(t, 0, m.LateAdvisoryRate, "late_advisory_rate")

	assert.Equal(t, 7.0, m.MeanActivationPersistenceFrames)
	requireValue(t, 7.0/30, m.MeanActivationPersistenceSec, "mean_activation_persistence_sec")
}

func TestComputeStateMetrics_FalseActivation(t *testing.T) {
	gt := StateIntervals{
		StateOutside:     {{0, 1}, {5, 9}},
		StateApproaching: {{2, 4}},
	}
	pred := StateIntervals{
		StateApproaching: {{4, 6}},
		StateOutside:     {{0, 3}, {7, 9}},
	}
	m := ComputeStateMetrics(gt, pred, fps(30), DefaultOptions())

	assert.Equal(t, 10, m.TotalFrames)
	assert.InDelta(t, 0.6, m.FrameAccuracy, eps)
	assert.Equal(t, 4, m.TimeInErrorFrames)

	assert.Greater(t, m.FalseActivationRate, 0.0)
	assert.InDelta(t, 2.0/7.0, m.FalseActivationRate, eps)
	assert.Equal(t, m.FalseActivationRate, m.FalseAdvisoryRate)

	// One false run over 10 frames at 30 fps.
	requireValue(t, 180, m.FalseActivationsPerMinute, "false_activations_per_minute")
	assert.Equal(t, m.FalseActivationsPerMinute, m.FalseAdvisoriesPerMinute)
	assert.Equal(t, m.FalseActivationsPerMinute, m.FalsePositivesPerMinute)

	requireValue(t, 2, m.AdvisoryTimingMAEFrames, "advisory_timing_mae_frames")
	requireValue(t, 2, m.AdvisoryStartErrorFrames, "advisory_start_error_frames")
	requireValue(t, 2.0/30, m.AdvisoryStartErrorSec, "advisory_start_error_sec")
	requireValue(t, 1.0/3.0, m.AdvisoryCoverageRatio, "advisory_coverage_ratio")
	requireValue(t, (1.0/3.0)*0.4, m.SimulatedSpeedViolationReduction, "simulated_speed_violation_reduction")
	requireValue(t, 2.0/3.0, m.LateAdvisoryRate, "late_advisory_rate")
	assert.Nil(t, m.LeadTimeSec, "no GT entry into the work zone")

	requireValue(t, 1, m.AdvisoryEventRecall, "advisory_event_recall")
	requireValue(t, 1, m.AdvisoryEventPrecision, "advisory_event_precision")
	assert.Nil(t, m.EventRecall)
	assert.Nil(t, m.EventPrecision)

	requireValue(t, 5.0/9.0, m.IoUOutside, "iou_outside")
	requireValue(t, 1.0/5.0, m.IoUApproaching, "iou_approaching")
	assert.Nil(t, m.IoUInside)
	assert.Nil(t, m.IoUExiting)
	requireValue(t, (5.0/9.0+1.0/5.0)/2, m.MeanIoU, "mean_iou")
	requireValue(t, (5.0/7.0+1.0/3.0)/2, m.MacroPrecision, "macro_precision")
	requireValue(t, (5.0/7.0+1.0/3.0)/2, m.MacroRecall, "macro_recall")

	// Transitions are two frames off, so only a tolerance of 2 matches them.
	requireValue(t, 0, m.TransitionRecall, "transition_recall")
	opts := DefaultOptions()
	opts.TransitionToleranceFrames = 2
	loose := ComputeStateMetrics(gt, pred, fps(30), opts)
	requireValue(t, 1, loose.TransitionRecall, "transition_recall")
}

func TestComputeStateMetrics_EmptyCasesAreUndefined(t *testing.T) {
	gt := StateIntervals{StateOutside: {{0, 9}}}
	pred := StateIntervals{StateOutside: {{0, 9}}}
	m := ComputeStateMetrics(gt, pred, fps(30), DefaultOptions())

	assert.Nil(t, m.TransitionRecall)
	assert.Nil(t, m.TransitionPrecision)
	assert.Nil(t, m.TransitionAccuracy)
	assert.Nil(t, m.EventRecall)
	assert.Nil(t, m.EventPrecision)
	assert.Nil(t, m.AdvisoryEventRecall)
	assert.Nil(t, m.AdvisoryEventPrecision)
	assert.Nil(t, m.AdvisoryCoverageRatio)
	assert.Nil(t, m.SimulatedSpeedViolationReduction)
	assert.Nil(t, m.LateAdvisoryRate)
	assert.Nil(t, m.AdvisoryStartErrorFrames)
	assert.Nil(t, m.LeadTimeSec)

	assert.Equal(t, 1.0, m.FrameAccuracy)
	assert.Equal(t, 0.0, m.FalseActivationRate)
	assert.Equal(t, 0.0, m.MeanActivationPersistenceFrames)
	requireValue(t, 1, m.MeanIoU, "mean_iou")
	requireValue(t, 1, m.MacroF1, "macro_f1")
}

func TestComputeStateMetrics_WithoutFPS(t *testing.T) {
	gt := StateIntervals{StateApproaching: {{2, 4}}, StateInside: {{5, 8}}}
	pred := StateIntervals{StateApproaching: {{1, 4}}, StateInside: {{5, 9}}}

	for name, rate := range map[string]*float64{"nil": nil, "zero": fps(0), "negative": fps(-25)} {
		t.Run(name, func(t *testing.T) {
			m := ComputeStateMetrics(gt, pred, rate, DefaultOptions())
			assert.Nil(t, m.TimeInErrorSec)
			assert.Nil(t, m.EntryTimingMAESec)
			assert.Nil(t, m.AdvisoryStartErrorSec)
			assert.Nil(t, m.FalseActivationsPerMinute)
			assert.Nil(t, m.MeanActivationPersistenceSec)
			assert.Nil(t, m.LeadTimeSec)
			requireValue(t, -1, m.AdvisoryStartErrorFrames, "advisory_start_error_frames")
			requireValue(t, 1, m.AdvisoryTimingMAEFrames, "advisory_timing_mae_frames")
			requireValue(t, 0, m.EntryTimingMAEFrames, "entry_timing_mae_frames")
		})
	}
}

func TestComputeStateMetrics_EarlyAdvisoryLeadTime(t *testing.T) {
	gt := StateIntervals{StateApproaching: {{20, 29}}, StateInside: {{30, 59}}}
	pred := StateIntervals{StateApproaching: {{10, 31}}, StateInside: {{32, 59}}}
	m := ComputeStateMetrics(gt, pred, fps(10), DefaultOptions())

	requireValue(t, 2.0, m.LeadTimeSec, "lead_time_sec")
	requireValue(t, -10, m.AdvisoryStartErrorFrames, "advisory_start_error_frames")
	requireValue(t, 10, m.AdvisoryTimingMAEFrames, "advisory_timing_mae_frames")
	requireValue(t, 0, m.LateAdvisoryRate, "late_advisory_rate")
	requireValue(t, 2, m.EntryTimingMAEFrames, "entry_timing_mae_frames")
	requireValue(t, 1, m.AdvisoryCoverageRatio, "advisory_coverage_ratio")
}

func TestComputeStateMetrics_LateAdvisoryClamped(t *testing.T) {
	gt := StateIntervals{StateApproaching: {{0, 1}}}
	pred := StateIntervals{StateApproaching: {{8, 9}}}
	m := ComputeStateMetrics(gt, pred, nil, DefaultOptions())
	requireValue(t, 1, m.LateAdvisoryRate, "late_advisory_rate")
	requireValue(t, 0, m.AdvisoryCoverageRatio, "advisory_coverage_ratio")
}

func TestComputeStateMetrics_ComplianceGainClamped(t *testing.T) {
	gt := StateIntervals{StateInside: {{0, 9}}}
	pred := StateIntervals{StateInside: {{0, 9}}}

	opts := DefaultOptions()
	opts.ComplianceGain = 3
	requireValue(t, 1, ComputeStateMetrics(gt, pred, nil, opts).SimulatedSpeedViolationReduction, "gain above 1")

	opts.ComplianceGain = -0.5
	requireValue(t, 0, ComputeStateMetrics(gt, pred, nil, opts).SimulatedSpeedViolationReduction, "gain below 0")
}

func TestComputeStateMetrics_RatesStayInUnitInterval(t *testing.T) {
	cases := []struct {
		gt, pred StateIntervals
	}{
		{StateIntervals{StateInside: {{3, 8}}}, StateIntervals{StateApproaching: {{0, 20}}}},
		{StateIntervals{StateOutside: {{0, 30}}}, StateIntervals{StateExiting: {{5, 6}, {10, 12}}}},
		{StateIntervals{StateApproaching: {{0, 2}}, StateExiting: {{9, 9}}}, StateIntervals{StateInside: {{4, 4}}}},
	}
	for _, c := range cases {
		m := ComputeStateMetrics(c.gt, c.pred, fps(15), DefaultOptions())
		assert.GreaterOrEqual(t, m.FalseActivationRate, 0.0)
		assert.LessOrEqual(t, m.FalseActivationRate, 1.0)
		if m.AdvisoryCoverageRatio != nil {
			assert.GreaterOrEqual(t, *m.AdvisoryCoverageRatio, 0.0)
			assert.LessOrEqual(t, *m.AdvisoryCoverageRatio, 1.0)
		}
		if m.LateAdvisoryRate != nil {
			assert.GreaterOrEqual(t, *m.LateAdvisoryRate, 0.0)
			assert.LessOrEqual(t, *m.LateAdvisoryRate, 1.0)
		}
		assert.LessOrEqual(t, m.TransitionsMatched, min(m.GTTransitions, m.PredTransitions))
	}
}

func TestOptions_Validate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())

	bad := DefaultOptions()
	bad.TransitionToleranceFrames = -1
	assert.ErrorIs(t, bad.Validate(), ErrInvalidOptions)

	bad = DefaultOptions()
	bad.MinEventOverlapFrames = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidOptions)

	bad = DefaultOptions()
	bad.EntryState = ""
	assert.ErrorIs(t, bad.Validate(), ErrInvalidOptions)
}

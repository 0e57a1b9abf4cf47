package workzone

import (
	"errors"
	"fmt"
)

// Default scoring parameters.
const (
	DefaultTransitionToleranceFrames = 0
	DefaultMinEventOverlapFrames     = 1
	DefaultComplianceGain            = 0.4
)

// ErrInvalidOptions is returned by Options.Validate.
var ErrInvalidOptions = errors.New("invalid scoring options")

// Options are the scalar parameters shared by every video in a batch.
type Options struct {
	// TransitionToleranceFrames is the maximum frame distance for a
	// predicted transition to match a GT transition.
	TransitionToleranceFrames int
	// MinEventOverlapFrames is the minimum shared frames for two intervals
	// to count as the same event.
	MinEventOverlapFrames int
	// EntryState marks physical entry into the work zone.
	EntryState string
	// OutsideState is the state in which no advisory is shown.
	OutsideState string
	// ComplianceGain is the assumed fractional reduction in speeding when
	// an advisory fires correctly. Clamped to [0, 1] when used.
	ComplianceGain float64
}

// DefaultOptions returns the standard scoring parameters.
func DefaultOptions() Options {
	return Options{
		TransitionToleranceFrames: DefaultTransitionToleranceFrames,
		MinEventOverlapFrames:     DefaultMinEventOverlapFrames,
		EntryState:                StateInside,
		OutsideState:              StateOutside,
		ComplianceGain:            DefaultComplianceGain,
	}
}

// Validate rejects parameters outside their documented ranges.
func (o Options) Validate() error {
	if o.TransitionToleranceFrames < 0 {
		return fmt.Errorf("%w: transition tolerance must be non-negative, got %d", ErrInvalidOptions, o.TransitionToleranceFrames)
	}
	if o.MinEventOverlapFrames < 1 {
		return fmt.Errorf("%w: minimum event overlap must be at least 1 frame, got %d", ErrInvalidOptions, o.MinEventOverlapFrames)
	}
	if o.EntryState == "" || o.OutsideState == "" {
		return fmt.Errorf("%w: entry and outside state names are required", ErrInvalidOptions)
	}
	return nil
}

func (o Options) clampedGain() float64 {
	return min(1, max(0, o.ComplianceGain))
}

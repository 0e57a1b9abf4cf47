package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/banshee-data/workzone.report/internal/workzone"
)

// maxConfigFileSize caps config files read from disk.
const maxConfigFileSize = 1 * 1024 * 1024 // 1MB

// EvalConfig holds the evaluation parameters shared by every video in a
// batch. Nil fields fall back to the defaults returned by the Get* methods,
// so partial files are safe.
type EvalConfig struct {
	TransitionToleranceFrames *int     `json:"transition_tolerance_frames,omitempty"`
	MinEventOverlapFrames     *int     `json:"min_event_overlap_frames,omitempty"`
	EntryState                *string  `json:"entry_state,omitempty"`
	OutsideState              *string  `json:"outside_state,omitempty"`
	SimulatedComplianceGain   *float64 `json:"simulated_compliance_gain,omitempty"`

	// RequiredStates lists GT states every video must annotate. Videos
	// missing one are reported as incomplete_ground_truth.
	RequiredStates []string `json:"required_states,omitempty"`

	// Workers bounds the number of videos scored concurrently.
	Workers *int `json:"workers,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyEvalConfig returns an EvalConfig with all fields unset.
func EmptyEvalConfig() *EvalConfig {
	return &EvalConfig{}
}

// DefaultEvalConfig returns an EvalConfig with every field populated with
// its default value.
func DefaultEvalConfig() *EvalConfig {
	return EmptyEvalConfig().Resolved()
}

// Resolved returns a copy of c with every unset field filled in with its
// default.
func (c *EvalConfig) Resolved() *EvalConfig {
	return &EvalConfig{
		TransitionToleranceFrames: ptrInt(c.GetTransitionToleranceFrames()),
		MinEventOverlapFrames:     ptrInt(c.GetMinEventOverlapFrames()),
		EntryState:                ptrString(c.GetEntryState()),
		OutsideState:              ptrString(c.GetOutsideState()),
		SimulatedComplianceGain:   ptrFloat64(c.GetSimulatedComplianceGain()),
		RequiredStates:            append([]string(nil), c.RequiredStates...),
		Workers:                   ptrInt(c.GetWorkers()),
	}
}

// LoadEvalConfig loads an EvalConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadEvalConfig(path string) (*EvalConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyEvalConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that set values are within range.
func (c *EvalConfig) Validate() error {
	if c.TransitionToleranceFrames != nil && *c.TransitionToleranceFrames < 0 {
		return fmt.Errorf("transition_tolerance_frames must be non-negative, got %d", *c.TransitionToleranceFrames)
	}
	if c.MinEventOverlapFrames != nil && *c.MinEventOverlapFrames < 1 {
		return fmt.Errorf("min_event_overlap_frames must be at least 1, got %d", *c.MinEventOverlapFrames)
	}
	if c.EntryState != nil && strings.TrimSpace(*c.EntryState) == "" {
		return fmt.Errorf("entry_state must not be empty")
	}
	if c.OutsideState != nil && strings.TrimSpace(*c.OutsideState) == "" {
		return fmt.Errorf("outside_state must not be empty")
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	for _, s := range c.RequiredStates {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("required_states must not contain empty names")
		}
	}
	return nil
}

// GetTransitionToleranceFrames returns the transition_tolerance_frames value or the default.
func (c *EvalConfig) GetTransitionToleranceFrames() int {
	if c.TransitionToleranceFrames == nil {
		return workzone.DefaultTransitionToleranceFrames
	}
	return *c.TransitionToleranceFrames
}

// GetMinEventOverlapFrames returns the min_event_overlap_frames value or the default.
func (c *EvalConfig) GetMinEventOverlapFrames() int {
	if c.MinEventOverlapFrames == nil {
		return workzone.DefaultMinEventOverlapFrames
	}
	return *c.MinEventOverlapFrames
}

// GetEntryState returns the entry_state value or the default.
func (c *EvalConfig) GetEntryState() string {
	if c.EntryState == nil {
		return workzone.StateInside
	}
	return *c.EntryState
}

// GetOutsideState returns the outside_state value or the default.
func (c *EvalConfig) GetOutsideState() string {
	if c.OutsideState == nil {
		return workzone.StateOutside
	}
	return *c.OutsideState
}

// GetSimulatedComplianceGain returns the simulated_compliance_gain value or the default.
func (c *EvalConfig) GetSimulatedComplianceGain() float64 {
	if c.SimulatedComplianceGain == nil {
		return workzone.DefaultComplianceGain
	}
	return *c.SimulatedComplianceGain
}

// GetWorkers returns the workers value, defaulting to GOMAXPROCS.
func (c *EvalConfig) GetWorkers() int {
	if c.Workers == nil {
		return runtime.GOMAXPROCS(0)
	}
	return *c.Workers
}

// ScoringOptions converts the config into scoring parameters.
func (c *EvalConfig) ScoringOptions() workzone.Options {
	return workzone.Options{
		TransitionToleranceFrames: c.GetTransitionToleranceFrames(),
		MinEventOverlapFrames:     c.GetMinEventOverlapFrames(),
		EntryState:                c.GetEntryState(),
		OutsideState:              c.GetOutsideState(),
		ComplianceGain:            c.GetSimulatedComplianceGain(),
	}
}

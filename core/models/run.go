package models

import (
	"fmt"
	"time"
)

// SegmentTimeFormat is the fixed-width timestamp used to key segment
// directories. Lexicographic ordering of labels in this format matches
// chronological ordering, so storage listings come back in run order.
const SegmentTimeFormat = "20060102.150405"

// RunConfig is the immutable top-level configuration of a segmented run.
// It is written once at create time and never modified afterwards.
type RunConfig struct {
	Name            string
	InitialTime     time.Time
	SegmentDuration time.Duration
	Timestep        time.Duration
	Diagnostics     []DiagnosticSpec
}

// DiagnosticSpec describes one cumulative diagnostic store.
type DiagnosticSpec struct {
	Name      string
	ChunkSize int // timesteps per chunk along the time dimension
}

// TimestepsPerSegment returns the number of timesteps each segment
// contributes to every diagnostic store.
func (c *RunConfig) TimestepsPerSegment() int {
	if c.Timestep <= 0 {
		return 0
	}
	return int(c.SegmentDuration / c.Timestep)
}

// Validate checks the configuration invariants that must hold before any
// execution work is performed. Violations wrap ErrConfiguration and name
// the conflicting values.
func (c *RunConfig) Validate() error {
	if c.SegmentDuration <= 0 {
		return fmt.Errorf("%w: segment duration must be positive, got %s", ErrConfiguration, c.SegmentDuration)
	}
	if c.Timestep <= 0 {
		return fmt.Errorf("%w: timestep must be positive, got %s", ErrConfiguration, c.Timestep)
	}
	if c.SegmentDuration%c.Timestep != 0 {
		return fmt.Errorf("%w: segment duration %s is not a multiple of timestep %s",
			ErrConfiguration, c.SegmentDuration, c.Timestep)
	}
	if c.InitialTime.IsZero() {
		return fmt.Errorf("%w: initial time is required", ErrConfiguration)
	}
	if len(c.Diagnostics) == 0 {
		return fmt.Errorf("%w: at least one diagnostic store is required", ErrConfiguration)
	}

	steps := c.TimestepsPerSegment()
	seen := make(map[string]bool)
	for _, d := range c.Diagnostics {
		if d.Name == "" {
			return fmt.Errorf("%w: diagnostic name is required", ErrConfiguration)
		}
		if seen[d.Name] {
			return fmt.Errorf("%w: duplicate diagnostic %q", ErrConfiguration, d.Name)
		}
		seen[d.Name] = true
		if d.ChunkSize <= 0 {
			return fmt.Errorf("%w: diagnostic %q chunk size must be positive, got %d",
				ErrConfiguration, d.Name, d.ChunkSize)
		}
		if steps%d.ChunkSize != 0 {
			return fmt.Errorf("%w: diagnostic %q chunk size %d does not evenly divide the %d timesteps per segment",
				ErrConfiguration, d.Name, d.ChunkSize, steps)
		}
	}
	return nil
}

// SegmentSpec is the unit of work handed to a SegmentRunner: run exactly
// one segment starting from the given state.
type SegmentSpec struct {
	Root       string
	JobName    string
	Start      time.Time
	Duration   time.Duration
	RestartKey string // empty for the first segment
	Config     *RunConfig
}

// StartLabel returns the storage key component for the segment.
func (s SegmentSpec) StartLabel() string {
	return s.Start.UTC().Format(SegmentTimeFormat)
}

// SegmentOutput is the raw result of one completed segment: the restart
// state needed to start the next segment, captured logs, and one time
// series per configured diagnostic.
type SegmentOutput struct {
	Start       time.Time
	End         time.Time
	Restart     []byte
	Logs        []byte
	Diagnostics map[string][]float64
}

// StartLabel returns the storage key component for the segment.
func (o *SegmentOutput) StartLabel() string {
	return o.Start.UTC().Format(SegmentTimeFormat)
}

// SegmentEndState is the state derived from the most recent segment's raw
// outputs, from which the next segment starts.
type SegmentEndState struct {
	SegmentStart time.Time
	EndTime      time.Time
	RestartKey   string
}

// RunEvent is an advisory ledger record of a run lifecycle transition.
// The ledger is never consulted for run state; object storage remains the
// sole source of truth.
type RunEvent struct {
	ID      string
	RunURL  string
	At      time.Time
	Event   string
	Detail  map[string]interface{}
}

// Run event names recorded by the scheduler.
const (
	EventRunCreated      = "run_created"
	EventSegmentAppended = "segment_appended"
	EventAppendFailed    = "append_failed"
)

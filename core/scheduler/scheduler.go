package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"segrun-orchestrator/core/models"
	"segrun-orchestrator/core/postprocess"
	"segrun-orchestrator/storage"

	"github.com/google/uuid"
)

// SegmentRunner executes exactly one segment of simulation from the given
// start state. It is the boundary to the numerical engine.
type SegmentRunner interface {
	RunSegment(ctx context.Context, spec models.SegmentSpec) (*models.SegmentOutput, error)
}

// EventRecorder records advisory run lifecycle events. Recording failures
// are logged and never fail the operation.
type EventRecorder interface {
	RecordEvent(ctx context.Context, event models.RunEvent) error
}

// Scheduler orchestrates the create/append lifecycle of a segmented run.
// It holds no state across invocations: every operation reconstructs the
// run's state from storage, so any process may drive any append at any
// time and the run converges to the same sequence of segments.
type Scheduler struct {
	runs   *storage.RunStore
	post   *postprocess.PostProcessor
	runner SegmentRunner
	events EventRecorder
	log    *slog.Logger
}

// NewScheduler creates a new scheduler. events may be nil.
func NewScheduler(
	runs *storage.RunStore,
	post *postprocess.PostProcessor,
	runner SegmentRunner,
	events EventRecorder,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		runs:   runs,
		post:   post,
		runner: runner,
		events: events,
		log:    logger,
	}
}

// RunState is a run's full state as reconstructed from storage at the
// start of an operation.
type RunState struct {
	Config   *models.RunConfig
	Segments []string
}

// loadState reconstructs the run state from storage. Returns
// ErrNotInitialized (via LoadConfig) when root holds no configuration.
func (s *Scheduler) loadState(ctx context.Context, root string) (*RunState, error) {
	cfg, err := s.runs.LoadConfig(ctx, root)
	if err != nil {
		return nil, err
	}
	segments, err := s.runs.ListSegments(ctx, root)
	if err != nil {
		return nil, err
	}
	return &RunState{Config: cfg, Segments: segments}, nil
}

// Create initializes a new run at root. The configuration is validated
// before anything is written: a chunk size that does not divide the
// per-segment timestep count fails with ErrConfiguration and leaves no
// storage writes behind. The first segment's start time is supplied here
// because it is not derivable from storage.
func (s *Scheduler) Create(ctx context.Context, root string, cfg *models.RunConfig, firstStart time.Time) error {
	persisted := *cfg
	persisted.InitialTime = firstStart.UTC()

	if err := persisted.Validate(); err != nil {
		return err
	}
	if err := s.runs.Create(ctx, root, &persisted); err != nil {
		return err
	}

	s.record(ctx, root, models.EventRunCreated, map[string]interface{}{
		"name":        persisted.Name,
		"first_start": persisted.InitialTime.Format(time.RFC3339),
	})
	return nil
}

// Append advances the run at root by exactly one segment. The next start
// time is recomputed from storage on every call, so a retry after a
// failed append re-attempts the same segment. On runner failure nothing
// is merged or published and the error wraps ErrSegmentExecution.
func (s *Scheduler) Append(ctx context.Context, root string) (string, error) {
	state, err := s.loadState(ctx, root)
	if err != nil {
		return "", err
	}
	if err := state.Config.Validate(); err != nil {
		return "", err
	}

	start, restartKey, err := s.nextStart(ctx, root, state)
	if err != nil {
		return "", err
	}

	spec := models.SegmentSpec{
		Root:       root,
		JobName:    fmt.Sprintf("segment-%s-%s", start.UTC().Format(models.SegmentTimeFormat), uuid.NewString()[:8]),
		Start:      start,
		Duration:   state.Config.SegmentDuration,
		RestartKey: restartKey,
		Config:     state.Config,
	}
	s.log.Info("running segment", "root", root, "start", spec.StartLabel(), "segments", len(state.Segments))

	out, err := s.runner.RunSegment(ctx, spec)
	if err != nil {
		s.record(ctx, root, models.EventAppendFailed, map[string]interface{}{
			"segment": spec.StartLabel(),
			"error":   err.Error(),
		})
		return "", fmt.Errorf("%w: segment %s of %s: %v", models.ErrSegmentExecution, spec.StartLabel(), root, err)
	}
	out.Start = start
	out.End = start.Add(state.Config.SegmentDuration)

	if err := s.post.Merge(ctx, root, state.Config, len(state.Segments), out); err != nil {
		return "", err
	}
	if err := s.runs.WriteSegment(ctx, root, out); err != nil {
		return "", err
	}

	s.record(ctx, root, models.EventSegmentAppended, map[string]interface{}{
		"segment": out.StartLabel(),
		"end":     out.End.Format(time.RFC3339),
	})
	return out.StartLabel(), nil
}

// Segments lists the completed segments of the run at root.
func (s *Scheduler) Segments(ctx context.Context, root string) ([]string, error) {
	state, err := s.loadState(ctx, root)
	if err != nil {
		return nil, err
	}
	return state.Segments, nil
}

// nextStart computes the next segment's start: the configured initial
// time for the first segment, the previous segment's end otherwise.
func (s *Scheduler) nextStart(ctx context.Context, root string, state *RunState) (time.Time, string, error) {
	if len(state.Segments) == 0 {
		return state.Config.InitialTime, "", nil
	}
	end, err := s.runs.LatestSegmentEndState(ctx, root)
	if err != nil {
		return time.Time{}, "", err
	}
	return end.EndTime, end.RestartKey, nil
}

func (s *Scheduler) record(ctx context.Context, root, event string, detail map[string]interface{}) {
	if s.events == nil {
		return
	}
	err := s.events.RecordEvent(ctx, models.RunEvent{
		ID:     uuid.NewString(),
		RunURL: root,
		At:     time.Now().UTC(),
		Event:  event,
		Detail: detail,
	})
	if err != nil {
		s.log.Warn("failed to record run event", "root", root, "event", event, "error", err)
	}
}

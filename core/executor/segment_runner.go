package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"segrun-orchestrator/core/models"
	"segrun-orchestrator/core/monitoring"
)

// JobSubmitter submits one segment of work to the external scheduler.
type JobSubmitter interface {
	SubmitSegment(ctx context.Context, spec models.SegmentSpec) (models.JobRef, error)
}

// OutputCollector retrieves a completed segment's raw output from
// wherever the job staged it.
type OutputCollector interface {
	CollectOutput(ctx context.Context, spec models.SegmentSpec) (*models.SegmentOutput, error)
}

// JobSegmentRunner runs segments as asynchronous cluster jobs: it submits
// the segment, waits for the job's terminal state through the lifecycle
// monitor, and collects the raw output on success.
type JobSegmentRunner struct {
	submitter JobSubmitter
	monitor   *monitoring.Monitor
	collector OutputCollector
	deadline  time.Duration
	log       *slog.Logger
}

// NewJobSegmentRunner creates a job-backed segment runner.
func NewJobSegmentRunner(
	submitter JobSubmitter,
	monitor *monitoring.Monitor,
	collector OutputCollector,
	deadline time.Duration,
	logger *slog.Logger,
) *JobSegmentRunner {
	return &JobSegmentRunner{
		submitter: submitter,
		monitor:   monitor,
		collector: collector,
		deadline:  deadline,
		log:       logger,
	}
}

// RunSegment submits the segment job and blocks until it completes.
// Failed and ambiguous outcomes surface as errors; the partially-produced
// segment is never collected.
func (r *JobSegmentRunner) RunSegment(ctx context.Context, spec models.SegmentSpec) (*models.SegmentOutput, error) {
	ref, err := r.submitter.SubmitSegment(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("submitting segment %s: %w", spec.StartLabel(), err)
	}
	r.log.Info("submitted segment job", "job", ref.String(), "segment", spec.StartLabel())

	outcome, err := r.monitor.Wait(ctx, ref, r.deadline)
	if err != nil {
		return nil, err
	}
	if outcome != monitoring.OutcomeSucceeded {
		return nil, fmt.Errorf("job %s ended with outcome %s", ref, outcome)
	}

	return r.collector.CollectOutput(ctx, spec)
}

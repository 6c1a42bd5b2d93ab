package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"segrun-orchestrator/core/models"
)

// StatusReader reads the current status of an external job.
type StatusReader interface {
	ReadStatus(ctx context.Context, ref models.JobRef) (models.JobStatus, error)
}

// Cleaner releases a finished job's transient cluster resources (pods,
// temporary volumes).
type Cleaner interface {
	Cleanup(ctx context.Context, ref models.JobRef) error
}

// Outcome is a terminal classification of a monitored job.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	// OutcomeAmbiguous covers both a job that stopped reporting active
	// without a definitive flag and a job still active at the deadline.
	// Neither is retried automatically; both escalate to a human, since
	// the job may still be silently progressing.
	OutcomeAmbiguous Outcome = "ambiguous"
)

// DefaultPollInterval is a tuning parameter, not a correctness property.
const DefaultPollInterval = 90 * time.Second

// Monitor polls a job's status until it reaches a terminal state or the
// deadline expires. The wait is a cooperative suspension: it sleeps
// between polls and honors context cancellation.
type Monitor struct {
	reader  StatusReader
	cleaner Cleaner
	log     *slog.Logger

	// PollInterval is the delay between status reads.
	PollInterval time.Duration
}

// NewMonitor creates a monitor. cleaner may be nil to skip cleanup.
func NewMonitor(reader StatusReader, cleaner Cleaner, logger *slog.Logger) *Monitor {
	return &Monitor{
		reader:       reader,
		cleaner:      cleaner,
		log:          logger,
		PollInterval: DefaultPollInterval,
	}
}

// Wait blocks until the job reaches a terminal state or the deadline
// expires. OutcomeFailed and OutcomeAmbiguous are accompanied by an error
// wrapping ErrJobFailed or ErrJobAmbiguous; deadline expiry yields
// OutcomeAmbiguous with a distinct timeout message but identical
// handling. Transient status-read failures are logged and polling
// continues.
func (m *Monitor) Wait(ctx context.Context, ref models.JobRef, deadline time.Duration) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(m.PollInterval)
	defer ticker.Stop()

	for {
		status, err := m.reader.ReadStatus(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return OutcomeAmbiguous, fmt.Errorf("%w: job %s still unresolved at deadline %s", models.ErrJobAmbiguous, ref, deadline)
			}
			m.log.Warn("failed to read job status", "job", ref.String(), "error", err)
		} else if !status.Active.Set() {
			return m.classifyTerminal(ctx, ref, status)
		}

		select {
		case <-ctx.Done():
			return OutcomeAmbiguous, fmt.Errorf("%w: job %s still unresolved at deadline %s", models.ErrJobAmbiguous, ref, deadline)
		case <-ticker.C:
		}
	}
}

func (m *Monitor) classifyTerminal(ctx context.Context, ref models.JobRef, status models.JobStatus) (Outcome, error) {
	switch Classify(status) {
	case OutcomeSucceeded:
		m.cleanup(ctx, ref)
		return OutcomeSucceeded, nil
	case OutcomeFailed:
		return OutcomeFailed, fmt.Errorf("%w: job %s reported failure", models.ErrJobFailed, ref)
	default:
		return OutcomeAmbiguous, fmt.Errorf("%w: job %s stopped without a definitive outcome", models.ErrJobAmbiguous, ref)
	}
}

// cleanup frees the job's transient cluster resources. Failures are
// logged and do not change the terminal classification.
func (m *Monitor) cleanup(ctx context.Context, ref models.JobRef) {
	if m.cleaner == nil {
		return
	}
	if err := m.cleaner.Cleanup(ctx, ref); err != nil {
		m.log.Warn("failed to clean up job resources", "job", ref.String(), "error", err)
	}
}

// Classify maps a non-active job status to its terminal outcome. The
// upstream schema admits both succeeded and failed set at once with no
// documented precedence; failed wins here, since a false Failed is
// re-runnable while a false Succeeded silently loses a segment.
func Classify(status models.JobStatus) Outcome {
	switch {
	case status.Failed.Set():
		return OutcomeFailed
	case status.Succeeded.Set():
		return OutcomeSucceeded
	default:
		return OutcomeAmbiguous
	}
}

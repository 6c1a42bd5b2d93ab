package monitoring

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"segrun-orchestrator/core/models"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedReader returns its statuses in order, repeating the last one.
type scriptedReader struct {
	statuses []models.JobStatus
	calls    int
	err      error
}

func (r *scriptedReader) ReadStatus(ctx context.Context, ref models.JobRef) (models.JobStatus, error) {
	if r.err != nil {
		return models.JobStatus{}, r.err
	}
	i := r.calls
	if i >= len(r.statuses) {
		i = len(r.statuses) - 1
	}
	r.calls++
	return r.statuses[i], nil
}

type fakeCleaner struct {
	calls int
	err   error
}

func (c *fakeCleaner) Cleanup(ctx context.Context, ref models.JobRef) error {
	c.calls++
	return c.err
}

func newTestMonitor(reader StatusReader, cleaner Cleaner) *Monitor {
	m := NewMonitor(reader, cleaner, testLogger())
	m.PollInterval = time.Millisecond
	return m
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		status   models.JobStatus
		expected Outcome
	}{
		{"succeeded", models.JobStatus{Active: "0", Succeeded: "1", Failed: "0"}, OutcomeSucceeded},
		{"failed", models.JobStatus{Active: "0", Succeeded: "0", Failed: "1"}, OutcomeFailed},
		{"no definitive outcome", models.JobStatus{Active: "0", Succeeded: "0", Failed: "0"}, OutcomeAmbiguous},
		{"empty flags", models.JobStatus{}, OutcomeAmbiguous},
		// The upstream schema admits both flags at once; failed wins.
		{"both flags set", models.JobStatus{Active: "0", Succeeded: "1", Failed: "1"}, OutcomeFailed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, Classify(tc.status))
		})
	}
}

func TestWaitSucceeded(t *testing.T) {
	reader := &scriptedReader{statuses: []models.JobStatus{
		{Active: "1"},
		{Active: "1"},
		{Active: "0", Succeeded: "1", Failed: "0"},
	}}
	cleaner := &fakeCleaner{}
	m := newTestMonitor(reader, cleaner)

	outcome, err := m.Wait(context.Background(), models.JobRef{ID: "segment-1"}, time.Second)
	require.NoError(t, err)
	require.Equal(t, OutcomeSucceeded, outcome)
	require.GreaterOrEqual(t, reader.calls, 3)
	require.Equal(t, 1, cleaner.calls)
}

func TestWaitFailed(t *testing.T) {
	reader := &scriptedReader{statuses: []models.JobStatus{
		{Active: "1"},
		{Active: "0", Succeeded: "0", Failed: "1"},
	}}
	cleaner := &fakeCleaner{}
	m := newTestMonitor(reader, cleaner)

	outcome, err := m.Wait(context.Background(), models.JobRef{ID: "segment-1"}, time.Second)
	require.ErrorIs(t, err, models.ErrJobFailed)
	require.Equal(t, OutcomeFailed, outcome)
	require.Zero(t, cleaner.calls)
}

func TestWaitAmbiguousOutcome(t *testing.T) {
	reader := &scriptedReader{statuses: []models.JobStatus{
		{Active: "0", Succeeded: "0", Failed: "0"},
	}}
	m := newTestMonitor(reader, nil)

	outcome, err := m.Wait(context.Background(), models.JobRef{ID: "segment-1"}, time.Second)
	require.ErrorIs(t, err, models.ErrJobAmbiguous)
	require.Equal(t, OutcomeAmbiguous, outcome)
}

func TestWaitDeadlineExpiry(t *testing.T) {
	// Job never leaves the active state: deadline expiry must yield
	// Ambiguous, distinct in message but identical in handling.
	reader := &scriptedReader{statuses: []models.JobStatus{{Active: "1"}}}
	m := newTestMonitor(reader, nil)

	outcome, err := m.Wait(context.Background(), models.JobRef{ID: "segment-1"}, 20*time.Millisecond)
	require.ErrorIs(t, err, models.ErrJobAmbiguous)
	require.Equal(t, OutcomeAmbiguous, outcome)
	require.Contains(t, err.Error(), "deadline")
}

func TestWaitCleanupFailureKeepsOutcome(t *testing.T) {
	reader := &scriptedReader{statuses: []models.JobStatus{
		{Active: "0", Succeeded: "1", Failed: "0"},
	}}
	cleaner := &fakeCleaner{err: errors.New("pod deletion refused")}
	m := newTestMonitor(reader, cleaner)

	outcome, err := m.Wait(context.Background(), models.JobRef{ID: "segment-1"}, time.Second)
	require.NoError(t, err)
	require.Equal(t, OutcomeSucceeded, outcome)
	require.Equal(t, 1, cleaner.calls)
}

func TestWaitTransientReadErrors(t *testing.T) {
	reader := &scriptedReader{err: errors.New("api unavailable")}
	m := newTestMonitor(reader, nil)

	// Persistent read failures run out the deadline as ambiguous.
	outcome, err := m.Wait(context.Background(), models.JobRef{ID: "segment-1"}, 20*time.Millisecond)
	require.ErrorIs(t, err, models.ErrJobAmbiguous)
	require.Equal(t, OutcomeAmbiguous, outcome)
}

func TestFlagEncoding(t *testing.T) {
	require.True(t, models.Flag("1").Set())
	require.True(t, models.Flag("true").Set())
	require.False(t, models.Flag("0").Set())
	require.False(t, models.Flag("").Set())
	require.False(t, models.Flag("2").Set())
}

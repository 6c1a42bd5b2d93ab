package models

import "errors"

// Error taxonomy for the segmented-run lifecycle. Callers match with
// errors.Is; wrapped messages carry the violated precondition and its
// operands so operators can correct configuration without re-running the
// whole pipeline.
var (
	// ErrConfiguration marks a malformed or misaligned run configuration,
	// detected pre-flight before any storage writes.
	ErrConfiguration = errors.New("configuration error")

	// ErrAlreadyInitialized is returned by create on a root that already
	// holds a run configuration.
	ErrAlreadyInitialized = errors.New("run already initialized")

	// ErrNotInitialized is returned by append on a root with no run
	// configuration.
	ErrNotInitialized = errors.New("run not initialized")

	// ErrNoSegments is returned when deriving an end state from a run
	// with no completed segments; only create's caller may supply the
	// very first start time.
	ErrNoSegments = errors.New("run has no segments")

	// ErrSegmentExecution marks a simulation failure mid-segment. The
	// failed append committed no partial state and is safe to retry.
	ErrSegmentExecution = errors.New("segment execution failed")

	// ErrChunkAlignment marks a segment whose timestep count is not a
	// multiple of a store's chunk size.
	ErrChunkAlignment = errors.New("chunk alignment error")

	// ErrJobFailed is a definitive failure reported by the external job.
	ErrJobFailed = errors.New("job failed")

	// ErrJobAmbiguous marks a job that stopped reporting active without a
	// definitive outcome, or exceeded its polling deadline. Requires
	// manual inspection; never retried automatically.
	ErrJobAmbiguous = errors.New("job outcome ambiguous")
)

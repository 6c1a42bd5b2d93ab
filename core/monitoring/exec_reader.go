package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"segrun-orchestrator/core/models"
)

// ExecStatusReader reads job status through an external CLI. The command
// is invoked with the job ID (and namespace, when set) and must print a
// JSON record with "active", "succeeded" and "failed" flags, each encoded
// as the string "0" or "1".
type ExecStatusReader struct {
	command string
}

// NewExecStatusReader creates a reader around the given status command.
func NewExecStatusReader(command string) *ExecStatusReader {
	return &ExecStatusReader{command: command}
}

// ReadStatus invokes the status command and parses its output.
func (r *ExecStatusReader) ReadStatus(ctx context.Context, ref models.JobRef) (models.JobStatus, error) {
	args := []string{ref.ID}
	if ref.Namespace != "" {
		args = append(args, ref.Namespace)
	}

	out, err := exec.CommandContext(ctx, r.command, args...).Output()
	if err != nil {
		return models.JobStatus{}, fmt.Errorf("reading status of job %s: %w", ref, err)
	}

	var status models.JobStatus
	if err := json.Unmarshal(out, &status); err != nil {
		return models.JobStatus{}, fmt.Errorf("parsing status of job %s: %w", ref, err)
	}
	return status, nil
}

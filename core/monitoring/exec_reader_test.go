package monitoring

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"segrun-orchestrator/core/models"

	"github.com/stretchr/testify/require"
)

func writeStatusScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("status script test requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "job-status.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestExecStatusReader(t *testing.T) {
	script := writeStatusScript(t, `printf '{"active":"0","succeeded":"1","failed":"0"}'`)
	reader := NewExecStatusReader(script)

	status, err := reader.ReadStatus(context.Background(), models.JobRef{ID: "segment-1"})
	require.NoError(t, err)
	require.Equal(t, OutcomeSucceeded, Classify(status))
}

func TestExecStatusReaderCommandFailure(t *testing.T) {
	script := writeStatusScript(t, "exit 3")
	reader := NewExecStatusReader(script)

	_, err := reader.ReadStatus(context.Background(), models.JobRef{ID: "segment-1"})
	require.Error(t, err)
}

func TestExecStatusReaderBadOutput(t *testing.T) {
	script := writeStatusScript(t, `printf 'NotFound'`)
	reader := NewExecStatusReader(script)

	_, err := reader.ReadStatus(context.Background(), models.JobRef{ID: "segment-1"})
	require.Error(t, err)
}

package diagnostics

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// ExecCompute adapts an external diagnostics CLI into a ComputeFunc. The
// command is invoked with the source run location and a scratch output
// directory, and must leave one file per expected artifact there.
func ExecCompute(command string, artifacts []string) ComputeFunc {
	if len(artifacts) == 0 {
		artifacts = DefaultArtifacts
	}
	return func(ctx context.Context, source string) (map[string][]byte, error) {
		dir, err := os.MkdirTemp("", "diagnostics-*")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(dir)

		cmd := exec.CommandContext(ctx, command, source, dir)
		if out, err := cmd.CombinedOutput(); err != nil {
			return nil, fmt.Errorf("diagnostics command failed: %w: %s", err, out)
		}

		result := make(map[string][]byte, len(artifacts))
		for _, name := range artifacts {
			data, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				return nil, fmt.Errorf("diagnostics command produced no %q: %w", name, err)
			}
			result[name] = data
		}
		return result, nil
	}
}

package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"segrun-orchestrator/core/models"
	"segrun-orchestrator/core/postprocess"
	"segrun-orchestrator/core/spec"

	"gopkg.in/yaml.v3"
)

// ExecRunner runs one segment synchronously by invoking the simulation
// engine command in a scratch directory. The command receives the path of
// a segment spec file and an output directory, and is expected to leave
// behind:
//
//	RESTART                  restart state for the next segment
//	logs.txt                 captured engine logs
//	diagnostics/<name>.f64   one little-endian float64 series per store
type ExecRunner struct {
	command string
	log     *slog.Logger
}

// NewExecRunner creates a runner around the given engine command.
func NewExecRunner(command string, logger *slog.Logger) *ExecRunner {
	return &ExecRunner{command: command, log: logger}
}

// segmentSpecFile is the on-disk handoff to the engine command.
type segmentSpecFile struct {
	Root       string `yaml:"root"`
	Start      string `yaml:"start"`
	Duration   string `yaml:"duration"`
	RestartKey string `yaml:"restart_key,omitempty"`
	Config     string `yaml:"config"`
}

// RunSegment executes the engine command and collects its raw output.
// All work happens in a temp directory that is removed afterwards; the
// caller owns publishing the output to run storage.
func (r *ExecRunner) RunSegment(ctx context.Context, segSpec models.SegmentSpec) (*models.SegmentOutput, error) {
	dir, err := os.MkdirTemp("", "segment-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	specPath := filepath.Join(dir, "segment.yml")
	outDir := filepath.Join(dir, "output")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	if err := r.writeSpec(specPath, segSpec); err != nil {
		return nil, err
	}

	r.log.Info("executing segment", "command", r.command, "segment", segSpec.StartLabel(), "workdir", dir)
	cmd := exec.CommandContext(ctx, r.command, specPath, outDir)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("engine command failed: %w: %s", err, out)
	}

	return r.collect(outDir, segSpec)
}

func (r *ExecRunner) writeSpec(path string, segSpec models.SegmentSpec) error {
	cfgYAML, err := spec.Encode(segSpec.Config)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(segmentSpecFile{
		Root:       segSpec.Root,
		Start:      segSpec.Start.UTC().Format(time.RFC3339),
		Duration:   segSpec.Duration.String(),
		RestartKey: segSpec.RestartKey,
		Config:     string(cfgYAML),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (r *ExecRunner) collect(outDir string, segSpec models.SegmentSpec) (*models.SegmentOutput, error) {
	restart, err := os.ReadFile(filepath.Join(outDir, "RESTART"))
	if err != nil {
		return nil, fmt.Errorf("engine produced no restart state: %w", err)
	}
	logs, err := os.ReadFile(filepath.Join(outDir, "logs.txt"))
	if err != nil {
		logs = nil // logs are best-effort
	}

	series := make(map[string][]float64, len(segSpec.Config.Diagnostics))
	for _, d := range segSpec.Config.Diagnostics {
		path := filepath.Join(outDir, "diagnostics", d.Name+".f64")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("engine produced no series for diagnostic %q: %w", d.Name, err)
		}
		values, err := postprocess.DecodeChunk(data)
		if err != nil {
			return nil, fmt.Errorf("diagnostic %q: %w", d.Name, err)
		}
		series[d.Name] = values
	}

	return &models.SegmentOutput{
		Start:       segSpec.Start,
		End:         segSpec.Start.Add(segSpec.Duration),
		Restart:     restart,
		Logs:        logs,
		Diagnostics: series,
	}, nil
}

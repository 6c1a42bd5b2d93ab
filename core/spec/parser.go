package spec

import (
	"fmt"
	"time"

	"segrun-orchestrator/core/models"

	"gopkg.in/yaml.v3"
)

// RunSpec represents the YAML run configuration
type RunSpec struct {
	Run RunSpecRun `yaml:"run"`
}

// RunSpecRun represents the run section of the spec
type RunSpecRun struct {
	Name        string              `yaml:"name"`
	InitialTime string              `yaml:"initial_time,omitempty"` // RFC 3339
	Segment     RunSpecSegment      `yaml:"segment"`
	Diagnostics []RunSpecDiagnostic `yaml:"diagnostics"`
}

// RunSpecSegment represents segment timing configuration
type RunSpecSegment struct {
	Duration string `yaml:"duration"` // e.g., "3h"
	Timestep string `yaml:"timestep"` // e.g., "15m"
}

// RunSpecDiagnostic represents one cumulative diagnostic store
type RunSpecDiagnostic struct {
	Name      string `yaml:"name"`
	ChunkSize int    `yaml:"chunk_size"`
}

// Parse parses a YAML run specification into a RunConfig model. The
// result is not validated; callers run RunConfig.Validate before any
// execution work.
func Parse(specYAML []byte) (*models.RunConfig, error) {
	var spec RunSpec
	if err := yaml.Unmarshal(specYAML, &spec); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", models.ErrConfiguration, err)
	}

	cfg := &models.RunConfig{
		Name: spec.Run.Name,
	}

	if spec.Run.InitialTime != "" {
		t, err := time.Parse(time.RFC3339, spec.Run.InitialTime)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid initial_time %q: %v",
				models.ErrConfiguration, spec.Run.InitialTime, err)
		}
		cfg.InitialTime = t.UTC()
	}

	var err error
	cfg.SegmentDuration, err = parseDuration("segment.duration", spec.Run.Segment.Duration)
	if err != nil {
		return nil, err
	}
	cfg.Timestep, err = parseDuration("segment.timestep", spec.Run.Segment.Timestep)
	if err != nil {
		return nil, err
	}

	for _, d := range spec.Run.Diagnostics {
		cfg.Diagnostics = append(cfg.Diagnostics, models.DiagnosticSpec{
			Name:      d.Name,
			ChunkSize: d.ChunkSize,
		})
	}

	return cfg, nil
}

// Encode serializes a RunConfig back to its YAML wire form for storage at
// the run root.
func Encode(cfg *models.RunConfig) ([]byte, error) {
	spec := RunSpec{
		Run: RunSpecRun{
			Name: cfg.Name,
			Segment: RunSpecSegment{
				Duration: cfg.SegmentDuration.String(),
				Timestep: cfg.Timestep.String(),
			},
		},
	}
	if !cfg.InitialTime.IsZero() {
		spec.Run.InitialTime = cfg.InitialTime.UTC().Format(time.RFC3339)
	}
	for _, d := range cfg.Diagnostics {
		spec.Run.Diagnostics = append(spec.Run.Diagnostics, RunSpecDiagnostic{
			Name:      d.Name,
			ChunkSize: d.ChunkSize,
		})
	}
	return yaml.Marshal(&spec)
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, fmt.Errorf("%w: %s is required", models.ErrConfiguration, field)
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q: %v", models.ErrConfiguration, field, value, err)
	}
	return d, nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"segrun-orchestrator/core/models"
	"segrun-orchestrator/core/spec"

	"gopkg.in/yaml.v3"
)

// Run storage layout, relative to a run root:
//
//	config.yml                      run configuration, written once
//	segments/<start>/RESTART        restart state for the next segment
//	segments/<start>/logs.txt       captured segment logs
//	segments/<start>/manifest.yml   written last; marks the segment complete
//	<diagnostic>-store/             cumulative chunked stores
const (
	configKey      = "config.yml"
	segmentsPrefix = "segments"
	restartName    = "RESTART"
	logsName       = "logs.txt"
	manifestName   = "manifest.yml"
)

// RunStore reads and writes a run's persisted directory tree. It is the
// sole source of truth for run state; no process retains state between
// invocations.
type RunStore struct {
	store ObjectStore
	log   *slog.Logger
}

// NewRunStore creates a run store over the given object store.
func NewRunStore(store ObjectStore, logger *slog.Logger) *RunStore {
	return &RunStore{store: store, log: logger}
}

// Objects returns the underlying object store.
func (s *RunStore) Objects() ObjectStore {
	return s.store
}

// segmentManifest is the per-segment completion record. Its presence is
// what makes a segment visible; an interrupted append leaves raw objects
// behind but never a manifest, so listings ignore them.
type segmentManifest struct {
	Start   string `yaml:"start"`
	End     string `yaml:"end"`
	Restart string `yaml:"restart"`
}

// Create writes the run configuration at root. Fails with
// ErrAlreadyInitialized if root already holds one; no segments are
// created.
func (s *RunStore) Create(ctx context.Context, root string, cfg *models.RunConfig) error {
	key := root + "/" + configKey
	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("checking %s: %w", key, err)
	}
	if exists {
		return fmt.Errorf("%w: %s already holds a run configuration", models.ErrAlreadyInitialized, root)
	}

	data, err := spec.Encode(cfg)
	if err != nil {
		return fmt.Errorf("encoding run configuration: %w", err)
	}
	if err := s.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	s.log.Info("initialized run", "root", root, "name", cfg.Name)
	return nil
}

// LoadConfig reads the run configuration at root. Fails with
// ErrNotInitialized if none exists.
func (s *RunStore) LoadConfig(ctx context.Context, root string) (*models.RunConfig, error) {
	data, err := s.store.Get(ctx, root+"/"+configKey)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s holds no run configuration", models.ErrNotInitialized, root)
	}
	if err != nil {
		return nil, err
	}
	return spec.Parse(data)
}

// ListSegments returns the start-timestamp labels of all completed
// segments under root, in chronological order. Segments without a
// manifest are in-progress or abandoned and are not listed.
func (s *RunStore) ListSegments(ctx context.Context, root string) ([]string, error) {
	labels, err := s.store.ListDirs(ctx, root+"/"+segmentsPrefix)
	if err != nil {
		return nil, err
	}

	var complete []string
	for _, label := range labels {
		ok, err := s.store.Exists(ctx, s.segmentKey(root, label, manifestName))
		if err != nil {
			return nil, err
		}
		if ok {
			complete = append(complete, label)
		}
	}
	return complete, nil
}

// LatestSegmentEndState derives the state needed to start the next
// segment from the most recent segment's raw outputs. Fails with
// ErrNoSegments if none exist.
func (s *RunStore) LatestSegmentEndState(ctx context.Context, root string) (*models.SegmentEndState, error) {
	labels, err := s.ListSegments(ctx, root)
	if err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrNoSegments, root)
	}

	last := labels[len(labels)-1]
	data, err := s.store.Get(ctx, s.segmentKey(root, last, manifestName))
	if err != nil {
		return nil, fmt.Errorf("reading manifest of segment %s: %w", last, err)
	}
	var m segmentManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest of segment %s: %w", last, err)
	}

	start, err := time.Parse(time.RFC3339, m.Start)
	if err != nil {
		return nil, fmt.Errorf("parsing start of segment %s: %w", last, err)
	}
	end, err := time.Parse(time.RFC3339, m.End)
	if err != nil {
		return nil, fmt.Errorf("parsing end of segment %s: %w", last, err)
	}
	return &models.SegmentEndState{
		SegmentStart: start.UTC(),
		EndTime:      end.UTC(),
		RestartKey:   m.Restart,
	}, nil
}

// WriteSegment publishes one completed segment's raw outputs under its
// start-time key. The manifest is written last so an interrupted write
// never yields a segment that a later listing or retried append could
// mistake for complete. Segment directories are write-once: a successful
// append never mutates them afterwards.
func (s *RunStore) WriteSegment(ctx context.Context, root string, out *models.SegmentOutput) error {
	label := out.StartLabel()
	restartKey := s.segmentKey(root, label, restartName)

	if err := s.store.Put(ctx, restartKey, out.Restart); err != nil {
		return fmt.Errorf("writing restart state of segment %s: %w", label, err)
	}
	if err := s.store.Put(ctx, s.segmentKey(root, label, logsName), out.Logs); err != nil {
		return fmt.Errorf("writing logs of segment %s: %w", label, err)
	}

	manifest, err := yaml.Marshal(segmentManifest{
		Start:   out.Start.UTC().Format(time.RFC3339),
		End:     out.End.UTC().Format(time.RFC3339),
		Restart: restartKey,
	})
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, s.segmentKey(root, label, manifestName), manifest); err != nil {
		return fmt.Errorf("writing manifest of segment %s: %w", label, err)
	}
	s.log.Info("published segment", "root", root, "segment", label)
	return nil
}

func (s *RunStore) segmentKey(root, label, name string) string {
	return root + "/" + segmentsPrefix + "/" + label + "/" + name
}

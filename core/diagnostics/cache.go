package diagnostics

import (
	"context"
	"fmt"
	"log/slog"

	"segrun-orchestrator/storage"
)

// CacheSuffix is appended to a source run's location to derive its cache
// key. The source location is already a stable identifier, so no hashing
// is needed.
const CacheSuffix = "_diagnostics"

// DefaultArtifacts is the fixed set of named artifacts a cache entry
// holds: the aggregated diagnostics and the summary metrics.
var DefaultArtifacts = []string{"diags.nc", "metrics.json"}

// ComputeFunc produces all expected artifacts for a source run. It must
// be deterministic given the same source: that assumption is what lets
// concurrent callers race without locks, since redundant writes converge
// to equivalent content.
type ComputeFunc func(ctx context.Context, source string) (map[string][]byte, error)

// Cache is a get-or-compute layer in front of an expensive diagnostics
// computation. Presence of all expected artifacts at the cache key is the
// sole hit signal; there is no explicit invalidation. Once fully written,
// an entry is treated as immutable and authoritative.
type Cache struct {
	store     storage.ObjectStore
	artifacts []string
	log       *slog.Logger
}

// NewCache creates a cache over the given store. artifacts may be nil to
// use DefaultArtifacts.
func NewCache(store storage.ObjectStore, artifacts []string, logger *slog.Logger) *Cache {
	if len(artifacts) == 0 {
		artifacts = DefaultArtifacts
	}
	return &Cache{store: store, artifacts: artifacts, log: logger}
}

// Key returns the cache location for a source run.
func (c *Cache) Key(source string) string {
	return source + CacheSuffix
}

// GetOrCompute returns the cached artifacts for source, computing and
// caching them first on a miss. A compute failure writes nothing, and
// each artifact write is atomic, so an interrupted miss leaves at most a
// partial entry, which reads as a miss and is recomputed. Two callers
// racing on the same key may both compute; that duplicate work is
// accepted rather than prevented with locks.
func (c *Cache) GetOrCompute(ctx context.Context, source string, compute ComputeFunc) (map[string][]byte, error) {
	key := c.Key(source)

	hit, err := c.complete(ctx, key)
	if err != nil {
		return nil, err
	}
	if hit {
		c.log.Info("diagnostics cache hit", "source", source, "key", key)
		return c.read(ctx, key)
	}

	c.log.Info("diagnostics cache miss", "source", source, "key", key)
	artifacts, err := compute(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("computing diagnostics for %s: %w", source, err)
	}
	for _, name := range c.artifacts {
		if _, ok := artifacts[name]; !ok {
			return nil, fmt.Errorf("diagnostics computation for %s produced no %q", source, name)
		}
	}

	for _, name := range c.artifacts {
		if err := c.store.Put(ctx, key+"/"+name, artifacts[name]); err != nil {
			return nil, fmt.Errorf("caching %s/%s: %w", key, name, err)
		}
	}
	return artifacts, nil
}

// complete reports whether every expected artifact exists at key.
func (c *Cache) complete(ctx context.Context, key string) (bool, error) {
	for _, name := range c.artifacts {
		ok, err := c.store.Exists(ctx, key+"/"+name)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (c *Cache) read(ctx context.Context, key string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(c.artifacts))
	for _, name := range c.artifacts {
		data, err := c.store.Get(ctx, key+"/"+name)
		if err != nil {
			return nil, fmt.Errorf("reading %s/%s: %w", key, name, err)
		}
		out[name] = data
	}
	return out, nil
}

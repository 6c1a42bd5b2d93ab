package diagnostics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"segrun-orchestrator/storage"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingCompute is deterministic given the same source, which is the
// assumption the cache's lock-free discipline rests on.
type countingCompute struct {
	calls int
	err   error
}

func (c *countingCompute) fn(ctx context.Context, source string) (map[string][]byte, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return map[string][]byte{
		"diags.nc":     []byte("diags for " + source),
		"metrics.json": []byte(`{"source":"` + source + `"}`),
	}, nil
}

func TestGetOrComputeMissThenHit(t *testing.T) {
	ctx := context.Background()
	objects := storage.NewLocalStore(t.TempDir())
	cache := NewCache(objects, nil, testLogger())
	compute := &countingCompute{}

	first, err := cache.GetOrCompute(ctx, "runs/run-A", compute.fn)
	require.NoError(t, err)
	require.Equal(t, 1, compute.calls)
	require.Equal(t, []byte("diags for runs/run-A"), first["diags.nc"])

	// The entry is complete and lives at the derived key.
	for _, name := range DefaultArtifacts {
		ok, err := objects.Exists(ctx, "runs/run-A_diagnostics/"+name)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Second call is a hit: zero computations, byte-identical artifacts.
	second, err := cache.GetOrCompute(ctx, "runs/run-A", compute.fn)
	require.NoError(t, err)
	require.Equal(t, 1, compute.calls)
	require.Equal(t, first, second)
}

func TestGetOrComputePartialEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	objects := storage.NewLocalStore(t.TempDir())
	cache := NewCache(objects, nil, testLogger())
	compute := &countingCompute{}

	_, err := cache.GetOrCompute(ctx, "runs/run-A", compute.fn)
	require.NoError(t, err)

	// A partial entry, as left by an interrupted writer, must never be
	// classified as a hit. Simulate by replacing the entry with only one
	// of the two artifacts at a fresh key.
	require.NoError(t, objects.Put(ctx, "runs/run-B_diagnostics/diags.nc", []byte("orphan")))

	_, err = cache.GetOrCompute(ctx, "runs/run-B", compute.fn)
	require.NoError(t, err)
	require.Equal(t, 2, compute.calls)

	data, err := objects.Get(ctx, "runs/run-B_diagnostics/diags.nc")
	require.NoError(t, err)
	require.Equal(t, []byte("diags for runs/run-B"), data)
}

func TestGetOrComputeFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	objects := storage.NewLocalStore(t.TempDir())
	cache := NewCache(objects, nil, testLogger())
	compute := &countingCompute{err: errors.New("verification data unavailable")}

	_, err := cache.GetOrCompute(ctx, "runs/run-A", compute.fn)
	require.Error(t, err)

	keys, err := objects.List(ctx, "runs/run-A_diagnostics")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestGetOrComputeRejectsIncompleteResult(t *testing.T) {
	ctx := context.Background()
	objects := storage.NewLocalStore(t.TempDir())
	cache := NewCache(objects, nil, testLogger())

	_, err := cache.GetOrCompute(ctx, "runs/run-A", func(ctx context.Context, source string) (map[string][]byte, error) {
		return map[string][]byte{"diags.nc": []byte("only one")}, nil
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "metrics.json")

	keys, err := objects.List(ctx, "runs/run-A_diagnostics")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestKeyDerivation(t *testing.T) {
	cache := NewCache(storage.NewLocalStore(t.TempDir()), nil, testLogger())
	require.Equal(t, "runs/run-A_diagnostics", cache.Key("runs/run-A"))
}

func TestCustomArtifacts(t *testing.T) {
	ctx := context.Background()
	objects := storage.NewLocalStore(t.TempDir())
	cache := NewCache(objects, []string{"summary.json"}, testLogger())

	out, err := cache.GetOrCompute(ctx, "runs/run-A", func(ctx context.Context, source string) (map[string][]byte, error) {
		return map[string][]byte{"summary.json": []byte("{}")}, nil
	})
	require.NoError(t, err)
	require.Equal(t, []byte("{}"), out["summary.json"])
}

package postprocess

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"segrun-orchestrator/core/models"
	"segrun-orchestrator/storage"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *models.RunConfig {
	return &models.RunConfig{
		Name:            "baseline",
		InitialTime:     time.Date(2016, 8, 1, 0, 0, 0, 0, time.UTC),
		SegmentDuration: 3 * time.Hour,
		Timestep:        15 * time.Minute, // 12 timesteps per segment
		Diagnostics: []models.DiagnosticSpec{
			{Name: "atmos_dt_atmos", ChunkSize: 4},
			{Name: "sfc_dt_atmos", ChunkSize: 6},
		},
	}
}

func series(start float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)
	}
	return out
}

func output(cfg *models.RunConfig, base float64) *models.SegmentOutput {
	return &models.SegmentOutput{
		Start: cfg.InitialTime,
		End:   cfg.InitialTime.Add(cfg.SegmentDuration),
		Diagnostics: map[string][]float64{
			"atmos_dt_atmos": series(base, cfg.TimestepsPerSegment()),
			"sfc_dt_atmos":   series(base+100, cfg.TimestepsPerSegment()),
		},
	}
}

func TestMergeAppendsOneExtentPerStore(t *testing.T) {
	ctx := context.Background()
	objects := storage.NewLocalStore(t.TempDir())
	post := NewPostProcessor(objects, testLogger())
	cfg := testConfig()

	require.NoError(t, post.Merge(ctx, "run-A", cfg, 0, output(cfg, 0)))

	// 12 timesteps: 3 chunks of 4 and 2 chunks of 6.
	atmos, err := objects.List(ctx, "run-A/atmos_dt_atmos-store")
	require.NoError(t, err)
	require.Equal(t, []string{
		"run-A/atmos_dt_atmos-store/chunk-000000",
		"run-A/atmos_dt_atmos-store/chunk-000001",
		"run-A/atmos_dt_atmos-store/chunk-000002",
		"run-A/atmos_dt_atmos-store/meta.yml",
	}, atmos)

	sfc, err := objects.List(ctx, "run-A/sfc_dt_atmos-store")
	require.NoError(t, err)
	require.Len(t, sfc, 3) // 2 chunks + meta

	data, err := objects.Get(ctx, "run-A/atmos_dt_atmos-store/chunk-000001")
	require.NoError(t, err)
	values, err := DecodeChunk(data)
	require.NoError(t, err)
	require.Equal(t, []float64{4, 5, 6, 7}, values)
}

func TestMergeIsAdditive(t *testing.T) {
	ctx := context.Background()
	objects := storage.NewLocalStore(t.TempDir())
	post := NewPostProcessor(objects, testLogger())
	cfg := testConfig()

	require.NoError(t, post.Merge(ctx, "run-A", cfg, 0, output(cfg, 0)))
	first, err := objects.Get(ctx, "run-A/atmos_dt_atmos-store/chunk-000000")
	require.NoError(t, err)

	require.NoError(t, post.Merge(ctx, "run-A", cfg, 1, output(cfg, 12)))

	// The second merge continues the chunk sequence and never rewrites
	// the first extent.
	after, err := objects.Get(ctx, "run-A/atmos_dt_atmos-store/chunk-000000")
	require.NoError(t, err)
	require.Equal(t, first, after)

	data, err := objects.Get(ctx, "run-A/atmos_dt_atmos-store/chunk-000003")
	require.NoError(t, err)
	values, err := DecodeChunk(data)
	require.NoError(t, err)
	require.Equal(t, []float64{12, 13, 14, 15}, values)
}

func TestMergeRemergeConverges(t *testing.T) {
	ctx := context.Background()
	objects := storage.NewLocalStore(t.TempDir())
	post := NewPostProcessor(objects, testLogger())
	cfg := testConfig()

	out := output(cfg, 0)
	require.NoError(t, post.Merge(ctx, "run-A", cfg, 0, out))
	before, err := objects.List(ctx, "run-A/atmos_dt_atmos-store")
	require.NoError(t, err)

	// Re-merging the same segment, as a retried append does after a
	// crash, produces byte-identical artifacts and no extra chunks.
	require.NoError(t, post.Merge(ctx, "run-A", cfg, 0, out))
	after, err := objects.List(ctx, "run-A/atmos_dt_atmos-store")
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestMergeChunkAlignmentError(t *testing.T) {
	ctx := context.Background()
	objects := storage.NewLocalStore(t.TempDir())
	post := NewPostProcessor(objects, testLogger())

	// Configuration drift after create: chunk size no longer divides the
	// segment's timestep count.
	cfg := testConfig()
	cfg.Diagnostics[0].ChunkSize = 5

	err := post.Merge(ctx, "run-A", cfg, 0, output(cfg, 0))
	require.ErrorIs(t, err, models.ErrChunkAlignment)
	require.Contains(t, err.Error(), "chunk size 5")
	require.Contains(t, err.Error(), "12 timesteps")

	// Nothing was written: the alignment check runs before any store is
	// touched.
	keys, err := objects.List(ctx, "run-A")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestMergeMissingDiagnostic(t *testing.T) {
	ctx := context.Background()
	post := NewPostProcessor(storage.NewLocalStore(t.TempDir()), testLogger())
	cfg := testConfig()

	out := output(cfg, 0)
	delete(out.Diagnostics, "sfc_dt_atmos")

	err := post.Merge(ctx, "run-A", cfg, 0, out)
	require.Error(t, err)
	require.Contains(t, err.Error(), "sfc_dt_atmos")
}

func TestChunkRoundTrip(t *testing.T) {
	values := []float64{0, 1.5, -2.25, 3e9}
	decoded, err := DecodeChunk(encodeChunk(values))
	require.NoError(t, err)
	require.Equal(t, values, decoded)

	_, err = DecodeChunk([]byte{1, 2, 3})
	require.Error(t, err)
}

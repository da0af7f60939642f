package render_test

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediadiff/internal/config"
	"mediadiff/internal/jobs"
	"mediadiff/internal/probe"
	"mediadiff/internal/render"
	"mediadiff/internal/stage"
	"mediadiff/internal/testsupport"
)

type fixture struct {
	cfg      *config.Config
	store    *jobs.Store
	fakes    *testsupport.Fakes
	job      *jobs.Job
	input    render.Input
	renderer *render.Renderer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	a := testsupport.AddMedia(t, store, cfg, "a.mp4")
	b := testsupport.AddMedia(t, store, cfg, "b.mp4")
	job := testsupport.NewJob(t, store, a.ID, b.ID, "low")

	fakes := testsupport.NewFakes()
	fakes.AddClip(a.Path, testsupport.Clip{Duration: 30})
	fakes.AddClip(b.Path, testsupport.Clip{Duration: 20})

	artifacts, err := render.NewStore(context.Background(), cfg)
	require.NoError(t, err)

	return &fixture{
		cfg:   cfg,
		store: store,
		fakes: fakes,
		job:   job,
		input: render.Input{
			JobID:      job.ID,
			Acceptance: probe.Info{Path: a.Path, DurationSeconds: 30},
			Emission:   probe.Info{Path: b.Path, DurationSeconds: 20},
			Differences: []jobs.Difference{
				{TimestampSeconds: 4, DurationSeconds: 2, Type: jobs.TypeVideoFrame, Severity: jobs.SeverityHigh},
				{TimestampSeconds: 5, Type: jobs.TypeAudioLoudness, Severity: jobs.SeverityHigh},
				{TimestampSeconds: 9.96, Type: jobs.TypeVideoFrame, Severity: jobs.SeverityLow},
				{TimestampSeconds: 10.02, Type: jobs.TypeVideoFrame, Severity: jobs.SeverityLow},
				{TimestampSeconds: 12, Type: jobs.TypeOCRText, Severity: jobs.SeverityLow},
				{TimestampSeconds: 20, DurationSeconds: 10, Type: jobs.TypeVideoFrame, Severity: jobs.SeverityHigh},
			},
			WorkDir: t.TempDir(),
		},
		renderer: render.New(fakes.Set(), artifacts, store, nil),
	}
}

func keys(m map[int]string) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func TestBucket(t *testing.T) {
	assert.Equal(t, 50, render.Bucket(5.0))
	assert.Equal(t, 100, render.Bucket(9.96))
	assert.Equal(t, 100, render.Bucket(10.02))
	assert.Equal(t, 123, render.Bucket(12.34))
}

func TestRenderOnlyVideoFrames(t *testing.T) {
	f := newFixture(t)

	artifacts, err := f.renderer.Render(context.Background(), f.input)
	require.NoError(t, err)

	// 5.0 -> 50, 9.96 and 10.02 share 100, tail midpoint is past the shorter file.
	assert.Equal(t, []int{50, 100}, keys(artifacts))
	assert.Equal(t, int32(2), f.fakes.RenderCalls.Load())
	for _, location := range artifacts {
		_, err := os.Stat(location)
		assert.NoError(t, err)
		assert.True(t, filepath.IsAbs(location))
	}

	stored, err := f.store.Artifacts(context.Background(), f.job.ID)
	require.NoError(t, err)
	assert.Empty(t, stored, "artifact rows are written with the job outcome")
}

func TestRenderSkipsPersistedBuckets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.Claim(ctx, f.job.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.Finalize(ctx, f.job.ID, jobs.Outcome{
		Status:    jobs.StatusCompleted,
		Artifacts: map[int]string{50: "/artifacts/job/000050.png"},
	}))

	artifacts, err := f.renderer.Render(ctx, f.input)
	require.NoError(t, err)
	assert.Equal(t, "/artifacts/job/000050.png", artifacts[50])
	assert.Equal(t, int32(1), f.fakes.RenderCalls.Load())
}

func TestCancelledRenderRemovesItsArtifacts(t *testing.T) {
	f := newFixture(t)
	token := stage.NewToken()
	f.fakes.OnFrame = func(string, float64) { token.Cancel() }
	in := f.input
	in.Token = token

	_, err := f.renderer.Render(context.Background(), in)
	require.ErrorIs(t, err, stage.ErrCancelled)
	assert.Equal(t, int32(1), f.fakes.RenderCalls.Load())

	files, err := filepath.Glob(filepath.Join(f.cfg.Paths.ArtifactDir, "*", "*.png"))
	require.NoError(t, err)
	assert.Empty(t, files)

	// The next pass starts from scratch for the discarded bucket.
	f.fakes.OnFrame = nil
	artifacts, err := f.renderer.Render(context.Background(), f.input)
	require.NoError(t, err)
	assert.Equal(t, []int{50, 100}, keys(artifacts))
}

func TestDiscardRemovesStoredArtifacts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	artifacts, err := f.renderer.Render(ctx, f.input)
	require.NoError(t, err)
	f.renderer.Discard(ctx, f.job.ID, artifacts)

	for _, location := range artifacts {
		_, err := os.Stat(location)
		assert.True(t, os.IsNotExist(err), "expected %s removed", location)
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	f := newFixture(t)

	first, err := f.renderer.Render(context.Background(), f.input)
	require.NoError(t, err)
	second, err := f.renderer.Render(context.Background(), f.input)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(2), f.fakes.RenderCalls.Load(), "second pass must not re-render")
}

func TestConcurrentRendersKeepOneArtifactPerBucket(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	results := make([]map[int]string, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := f.input
			in.WorkDir = t.TempDir()
			out, err := f.renderer.Render(context.Background(), in)
			assert.NoError(t, err)
			results[i] = out
		}()
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.Equal(t, results[0], r)
	}
	files, err := filepath.Glob(filepath.Join(f.cfg.Paths.ArtifactDir, "*", "*.png"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestLocalStoreRemoveRefusesForeignPaths(t *testing.T) {
	store := render.NewLocalStore(t.TempDir())
	outside := filepath.Join(t.TempDir(), "keep.png")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	assert.Error(t, store.Remove(context.Background(), outside))
	_, err := os.Stat(outside)
	assert.NoError(t, err)
}

func TestNewStoreRejectsUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Artifacts.Backend = "ftp"
	_, err := render.NewStore(context.Background(), &cfg)
	assert.Error(t, err)
}

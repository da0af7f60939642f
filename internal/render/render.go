package render

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"os"
	"path/filepath"
	"sync"

	"mediadiff/internal/capability"
	"mediadiff/internal/jobs"
	"mediadiff/internal/logging"
	"mediadiff/internal/probe"
	"mediadiff/internal/services"
	"mediadiff/internal/stage"
)

const stageName = "render"

// Bucket returns the artifact key of a timestamp (tenths of a second).
func Bucket(t float64) int {
	return int(math.Round(t * 10))
}

// Index lists the artifacts already persisted for a job.
type Index interface {
	Artifacts(ctx context.Context, jobID int64) (map[int]string, error)
}

// Input describes one render pass.
type Input struct {
	JobID       int64
	Acceptance  probe.Info
	Emission    probe.Info
	Differences []jobs.Difference
	WorkDir     string
	Token       *stage.Token
	Progress    stage.Progress
}

// Renderer renders and stores difference masks. Locations are kept in memory
// per job and only reach the job database through the job's final outcome.
type Renderer struct {
	frames capability.FrameSource
	diff   capability.ImageDiff
	store  ArtifactStore
	index  Index
	logger *slog.Logger

	mu       sync.Mutex
	jobLocks map[int64]*sync.Mutex
	rendered map[int64]map[int]string
}

// New builds a renderer.
func New(set capability.Set, store ArtifactStore, index Index, logger *slog.Logger) *Renderer {
	return &Renderer{
		frames: set.Frames,
		diff:   set.Diff,
		store:  store,
		index:  index,
		logger: logging.NewComponentLogger(logger, "render"),

		jobLocks: make(map[int64]*sync.Mutex),
		rendered: make(map[int64]map[int]string),
	}
}

func (r *Renderer) lockJob(jobID int64) func() {
	r.mu.Lock()
	lock, ok := r.jobLocks[jobID]
	if !ok {
		lock = &sync.Mutex{}
		r.jobLocks[jobID] = lock
	}
	r.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

// known returns the job's artifacts, seeding them from the index on first use.
// Callers hold the job lock.
func (r *Renderer) known(ctx context.Context, jobID int64) (map[int]string, error) {
	r.mu.Lock()
	artifacts, ok := r.rendered[jobID]
	r.mu.Unlock()
	if ok {
		return artifacts, nil
	}
	artifacts = map[int]string{}
	if r.index != nil {
		persisted, err := r.index.Artifacts(ctx, jobID)
		if err != nil {
			return nil, err
		}
		maps.Copy(artifacts, persisted)
	}
	r.mu.Lock()
	r.rendered[jobID] = artifacts
	r.mu.Unlock()
	return artifacts, nil
}

// Render ensures every video_frame difference has an artifact and returns
// the job's complete bucket → location map. Objects stored by a pass that
// ends in an error are removed again.
func (r *Renderer) Render(ctx context.Context, in Input) (_ map[int]string, err error) {
	if err := in.Token.Check(); err != nil {
		return nil, err
	}
	unlock := r.lockJob(in.JobID)
	defer unlock()

	known, err := r.known(ctx, in.JobID)
	if err != nil {
		return nil, err
	}

	shorter := math.Min(in.Acceptance.DurationSeconds, in.Emission.DurationSeconds)
	var pending []int
	times := map[int]float64{}
	for _, d := range in.Differences {
		if d.Type != jobs.TypeVideoFrame {
			continue
		}
		t := d.TimestampSeconds + d.DurationSeconds/2
		if t >= shorter {
			// Past the end of one side; there is no frame pair to diff.
			continue
		}
		bucket := Bucket(t)
		if _, done := known[bucket]; done {
			continue
		}
		if _, queued := times[bucket]; queued {
			continue
		}
		times[bucket] = t
		pending = append(pending, bucket)
	}
	if len(pending) == 0 {
		in.Progress.Report(1)
		return maps.Clone(known), nil
	}
	if r.frames == nil || r.diff == nil || r.store == nil {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "init", "frame, image diff and artifact store are required", nil)
	}

	dir := filepath.Join(in.WorkDir, "render")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "workdir", "create render directory", err)
	}
	defer os.RemoveAll(dir)

	var stored []int
	defer func() {
		if err == nil {
			return
		}
		for _, bucket := range stored {
			r.discard(ctx, known[bucket])
			delete(known, bucket)
		}
	}()

	for i, bucket := range pending {
		if err := in.Token.Check(); err != nil {
			return nil, err
		}
		location, err := r.renderOne(ctx, in, dir, bucket, times[bucket])
		if err != nil {
			return nil, err
		}
		known[bucket] = location
		stored = append(stored, bucket)
		in.Progress.Report(float64(i+1) / float64(len(pending)))
	}
	r.logger.Info("diff frames rendered",
		logging.Int("rendered", len(pending)),
		logging.Int("artifacts", len(known)),
	)
	return maps.Clone(known), nil
}

// Discard removes stored artifacts that will not be recorded for a job.
func (r *Renderer) Discard(ctx context.Context, jobID int64, artifacts map[int]string) {
	unlock := r.lockJob(jobID)
	defer unlock()
	r.mu.Lock()
	known := r.rendered[jobID]
	r.mu.Unlock()
	for bucket, location := range artifacts {
		r.discard(ctx, location)
		delete(known, bucket)
	}
}

func (r *Renderer) discard(ctx context.Context, location string) {
	if location == "" || r.store == nil {
		return
	}
	if err := r.store.Remove(context.WithoutCancel(ctx), location); err != nil {
		r.logger.Debug("failed to remove artifact", logging.String("location", location), logging.Error(err))
	}
}

func (r *Renderer) renderOne(ctx context.Context, in Input, dir string, bucket int, t float64) (string, error) {
	frameA := filepath.Join(dir, fmt.Sprintf("a-%d.png", bucket))
	frameB := filepath.Join(dir, fmt.Sprintf("b-%d.png", bucket))
	mask := filepath.Join(dir, fmt.Sprintf("mask-%d.png", bucket))
	if err := r.frames.ExtractFrame(ctx, in.Acceptance.Path, t, frameA); err != nil {
		return "", err
	}
	if err := r.frames.ExtractFrame(ctx, in.Emission.Path, t, frameB); err != nil {
		return "", err
	}
	if err := r.diff.RenderDiffMask(ctx, frameA, frameB, mask); err != nil {
		return "", err
	}

	location, err := r.store.Put(ctx, in.JobID, bucket, mask)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, stageName, "store artifact", fmt.Sprintf("bucket %d", bucket), err)
	}
	r.logger.Debug("diff frame stored",
		logging.Int("bucket", bucket),
		logging.Float64("timestamp_seconds", t),
		logging.String("location", location),
	)
	return location, nil
}

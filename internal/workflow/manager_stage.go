package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mediadiff/internal/audiodiff"
	"mediadiff/internal/capability"
	"mediadiff/internal/jobs"
	"mediadiff/internal/logging"
	"mediadiff/internal/probe"
	"mediadiff/internal/render"
	"mediadiff/internal/score"
	"mediadiff/internal/sensitivity"
	"mediadiff/internal/services"
	"mediadiff/internal/stage"
	"mediadiff/internal/timeline"
	"mediadiff/internal/videodiff"
)

const (
	stageProbe   = "probe"
	stageVideo   = "video"
	stageAudio   = "audio"
	stageMerge   = "merge"
	stageScore   = "score"
	stageRender  = "render"
	stagePersist = "persist"
)

type stageFunc func(ctx context.Context, run *jobRun, logger *slog.Logger, progress stage.Progress) (any, error)

type pipelineStage struct {
	name string
	// done is the job progress once the stage has checkpointed.
	done int
	run  stageFunc
}

func (m *Manager) pipeline() []pipelineStage {
	return []pipelineStage{
		{name: stageProbe, done: 20, run: m.runProbe},
		{name: stageVideo, done: 45, run: m.runVideo},
		{name: stageAudio, done: 70, run: m.runAudio},
		{name: stageMerge, done: 85, run: m.runMerge},
		{name: stageScore, done: 90, run: m.runScore},
		{name: stageRender, done: 95, run: m.runRender},
	}
}

// jobRun carries the outputs of completed stages for one execution.
type jobRun struct {
	job      *jobs.Job
	settings sensitivity.Settings
	caps     capability.Set
	token    *stage.Token
	workDir  string
	logger   *slog.Logger

	acceptance probe.Info
	emission   probe.Info
	video      *videodiff.Output
	audio      *audiodiff.Output
	timeline   []jobs.Difference
	verdict    *score.Verdict
	renderer   *render.Renderer
	artifacts  map[int]string
}

// Start claims a pending job and runs it to a terminal state in the calling
// goroutine. A job that fails or is cancelled is not an error here; the
// outcome is on the job row. ErrInvalidTransition is returned when the job is
// not pending.
func (m *Manager) Start(ctx context.Context, id int64) error {
	claimed, err := m.store.Claim(ctx, id)
	if err != nil {
		return err
	}
	if !claimed {
		job, err := m.GetJob(ctx, id)
		if err != nil {
			return err
		}
		return services.Wrap(services.ErrInvalidTransition, "", "start job", fmt.Sprintf("job %d is %s", id, job.Status), nil)
	}
	job, err := m.GetJob(ctx, id)
	if err != nil {
		return err
	}
	return m.process(ctx, job)
}

// process executes a claimed job and persists its outcome.
func (m *Manager) process(ctx context.Context, job *jobs.Job) error {
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	lifecycle := logging.WithContext(ctx, m.logger)

	jobLogger, closeLog := m.jobLogger(ctx, job)
	defer closeLog()

	token := m.registerToken(ctx, job.ID)
	defer m.releaseToken(job.ID)

	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job.ID, token)
	defer func() {
		hbCancel()
		hbWG.Wait()
	}()

	run := &jobRun{
		job:     job,
		token:   token,
		logger:  jobLogger,
		workDir: filepath.Join(m.cfg.Paths.WorkDir, fmt.Sprintf("job-%d", job.ID)),
	}
	defer os.RemoveAll(run.workDir)

	started := time.Now()
	lifecycle.Info("job started",
		logging.Event("job_start"),
		logging.Int64("acceptance_file_id", job.AcceptanceFileID),
		logging.Int64("emission_file_id", job.EmissionFileID),
		logging.String("sensitivity", job.Sensitivity),
		logging.String("job_log", m.jobLogs.Path(job.ID)),
	)

	outcome := m.execute(ctx, run)
	if ctx.Err() != nil {
		// Shutdown; the reclaimer fails the job once its heartbeat goes stale.
		lifecycle.Info("job interrupted by shutdown", logging.Event("job_interrupted"))
		run.discardArtifacts(ctx)
		return ctx.Err()
	}

	if err := m.store.Finalize(ctx, job.ID, outcome); err != nil {
		if errors.Is(err, jobs.ErrNotProcessing) {
			logging.WarnWithContext(lifecycle, "job outcome discarded; job is no longer processing", "job_outcome_discarded",
				logging.String(logging.FieldErrorHint, "the job was reclaimed as stale; retry it"),
				logging.Error(err),
			)
			run.discardArtifacts(ctx)
			return nil
		}
		lifecycle.Error("failed to persist job outcome",
			logging.Error(err),
			logging.Event("job_persist_failed"),
			logging.String(logging.FieldErrorHint, "check job database access"),
		)
		m.setLastError(err)
		return err
	}

	attrs := []logging.Attr{
		logging.Event("job_complete"),
		logging.String("status", string(outcome.Status)),
		logging.Int("differences", len(outcome.Differences)),
		logging.Duration("job_duration", time.Since(started)),
	}
	if outcome.ErrorMessage != "" {
		attrs = append(attrs, logging.String("error_message", outcome.ErrorMessage))
	}
	if outcome.Status == jobs.StatusFailed {
		lifecycle.Warn("job finished", logging.Args(attrs...)...)
	} else {
		lifecycle.Info("job finished", logging.Args(attrs...)...)
	}
	if final, err := m.store.GetJob(ctx, job.ID); err == nil && final != nil {
		m.setLastJob(final)
	}
	return nil
}

// execute runs the stage sequence and returns the outcome to persist.
func (m *Manager) execute(ctx context.Context, run *jobRun) jobs.Outcome {
	settings, err := sensitivity.Decode(run.job.SettingsJSON)
	if err != nil {
		return m.failure(run, "settings", err)
	}
	run.settings = settings

	caps, err := m.provider.Get()
	if err != nil {
		return m.failure(run, "capabilities", err)
	}
	run.caps = caps

	floor := 0
	for _, stg := range m.pipeline() {
		if err := m.checkCancelled(ctx, run); err != nil {
			return m.cancelled(ctx, run, stg.name)
		}
		if err := m.runStage(ctx, run, stg, floor); err != nil {
			if errors.Is(err, stage.ErrCancelled) {
				return m.cancelled(ctx, run, stg.name)
			}
			return m.failure(run, stg.name, err)
		}
		floor = stg.done
	}
	if err := m.checkCancelled(ctx, run); err != nil {
		return m.cancelled(ctx, run, stagePersist)
	}
	m.reportProgress(ctx, run, stagePersist, floor)

	return jobs.Outcome{
		Status:      jobs.StatusCompleted,
		Result:      run.result(),
		Differences: run.differences(),
		Artifacts:   run.artifacts,
	}
}

func (m *Manager) runStage(ctx context.Context, run *jobRun, stg pipelineStage, floor int) error {
	stageCtx := services.WithStage(ctx, stg.name)
	logger := m.stageLogger(run.logger, stg.name)

	started := time.Now()
	logger.Info("stage started", logging.Event("stage_start"))
	m.reportProgress(stageCtx, run, stg.name, floor)

	output, err := stg.run(stageCtx, run, logger, m.progressReporter(stageCtx, run, stg.name, floor, stg.done, logger))
	if err != nil {
		return err
	}
	if err := m.store.SaveCheckpoint(stageCtx, run.job.ID, stg.name, stg.done, output); err != nil {
		if errors.Is(err, jobs.ErrNotProcessing) {
			run.token.Cancel()
			return stage.ErrCancelled
		}
		return services.Wrap(services.ErrTransient, stg.name, "checkpoint", "persist stage output", err)
	}
	logger.Info("stage completed",
		logging.Event("stage_complete"),
		logging.Int(logging.FieldProgress, stg.done),
		logging.Duration("stage_duration", time.Since(started)),
	)
	return nil
}

// checkCancelled mirrors the persisted cancel flag into the token and
// reports whether the run must stop.
func (m *Manager) checkCancelled(ctx context.Context, run *jobRun) error {
	if requested, err := m.store.CancelRequested(ctx, run.job.ID); err == nil && requested {
		run.token.Cancel()
	}
	return run.token.Check()
}

// progressReporter maps a stage's 0..1 fraction into its progress band.
func (m *Manager) progressReporter(ctx context.Context, run *jobRun, stageName string, floor, done int, logger *slog.Logger) stage.Progress {
	last := floor
	sampler := logging.NewProgressSampler(25)
	return func(fraction float64) {
		value := floor + int(fraction*float64(done-floor))
		if value >= done {
			value = done - 1
		}
		if sampler.ShouldLog(fraction*100, stageName) {
			logger.Debug("stage progress", logging.Float64("fraction", fraction))
		}
		if value <= last {
			return
		}
		last = value
		m.reportProgress(ctx, run, stageName, value)
	}
}

func (m *Manager) reportProgress(ctx context.Context, run *jobRun, stageName string, value int) {
	err := m.store.UpdateProgress(ctx, run.job.ID, stageName, value)
	switch {
	case err == nil:
	case errors.Is(err, jobs.ErrNotProcessing):
		// Reclaimed as stale by another process; stop at the next checkpoint.
		run.token.Cancel()
	default:
		run.logger.Warn("progress update failed", logging.Error(err), logging.Int(logging.FieldProgress, value))
	}
}

func (m *Manager) runProbe(ctx context.Context, run *jobRun, _ *slog.Logger, progress stage.Progress) (any, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		info, err := m.prober.Probe(gctx, run.job.AcceptanceFileID)
		run.acceptance = info
		return err
	})
	g.Go(func() error {
		info, err := m.prober.Probe(gctx, run.job.EmissionFileID)
		run.emission = info
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	progress.Report(1)
	return map[string]probe.Info{"acceptance": run.acceptance, "emission": run.emission}, nil
}

func (m *Manager) runVideo(ctx context.Context, run *jobRun, logger *slog.Logger, progress stage.Progress) (any, error) {
	out, err := videodiff.New(run.caps, logger).Analyze(ctx, videodiff.Input{
		Acceptance: run.acceptance,
		Emission:   run.emission,
		Profile:    run.settings.Profile,
		WorkDir:    filepath.Join(run.workDir, stageVideo),
		Token:      run.token,
		Progress:   progress,
	})
	if err != nil {
		return nil, err
	}
	run.video = &out
	return out, nil
}

func (m *Manager) runAudio(ctx context.Context, run *jobRun, logger *slog.Logger, progress stage.Progress) (any, error) {
	out, err := audiodiff.New(run.caps, logger).Analyze(ctx, audiodiff.Input{
		Acceptance: run.acceptance,
		Emission:   run.emission,
		Profile:    run.settings.Profile,
		Weights:    run.settings.Weights,
		WorkDir:    filepath.Join(run.workDir, stageAudio),
		Token:      run.token,
		Progress:   progress,
	})
	if err != nil {
		return nil, err
	}
	run.audio = &out
	return out, nil
}

func (m *Manager) runMerge(_ context.Context, run *jobRun, logger *slog.Logger, progress stage.Progress) (any, error) {
	run.timeline = run.differences()
	logger.Info("timeline merged", logging.Int("differences", len(run.timeline)))
	progress.Report(1)
	return run.timeline, nil
}

func (m *Manager) runScore(_ context.Context, run *jobRun, logger *slog.Logger, progress stage.Progress) (any, error) {
	in := score.Input{
		Video:       run.video.Similarity,
		Differences: run.timeline,
		Weights:     run.settings.Weights,
		Threshold:   run.settings.Profile.MatchThreshold,
	}
	if run.audio != nil {
		in.Audio = run.audio.Similarity
	}
	verdict := score.Aggregate(in)
	run.verdict = &verdict
	logger.Info("job scored",
		logging.Float64("overall_similarity", verdict.Overall),
		logging.Bool("is_match", verdict.IsMatch),
		logging.Int("high_severity", verdict.HighCount),
	)
	progress.Report(1)
	return verdict, nil
}

func (m *Manager) runRender(ctx context.Context, run *jobRun, logger *slog.Logger, progress stage.Progress) (any, error) {
	store, err := m.artifactStore(ctx)
	if err != nil {
		return nil, err
	}
	run.renderer = render.New(run.caps, store, m.store, logger)
	artifacts, err := run.renderer.Render(ctx, render.Input{
		JobID:       run.job.ID,
		Acceptance:  run.acceptance,
		Emission:    run.emission,
		Differences: run.timeline,
		WorkDir:     run.workDir,
		Token:       run.token,
		Progress:    progress,
	})
	if err != nil {
		return nil, err
	}
	run.artifacts = artifacts
	return artifacts, nil
}

// discardArtifacts removes rendered objects that no outcome will record.
func (r *jobRun) discardArtifacts(ctx context.Context) {
	if r.renderer == nil || len(r.artifacts) == 0 {
		return
	}
	r.renderer.Discard(ctx, r.job.ID, r.artifacts)
	r.artifacts = nil
}

// differences merges whatever modality output exists into a sorted timeline.
func (r *jobRun) differences() []jobs.Difference {
	if r.timeline != nil {
		return r.timeline
	}
	var streams [][]jobs.Difference
	if r.video != nil {
		streams = append(streams, r.video.Frames, r.video.Text)
	}
	if r.audio != nil {
		streams = append(streams, r.audio.Differences)
	}
	return timeline.Merge(timeline.Options{
		Epsilon: r.settings.MergeEpsilon,
		Rank:    r.settings.TypeRank,
	}, streams...)
}

// result builds the comparison result from the completed stages. It returns
// nil until the video stage has completed.
func (r *jobRun) result() *jobs.Result {
	if r.video == nil {
		return nil
	}
	videoSimilarity := r.video.Similarity
	res := &jobs.Result{
		VideoSimilarity: &videoSimilarity,
		TotalFrames:     r.video.TotalFrames,
		DifferentFrames: r.video.DifferentFrames,
	}
	res.VideoDifferencesCount, res.AudioDifferencesCount = score.Counts(r.differences())
	if r.audio != nil {
		res.AudioSimilarity = r.audio.Similarity
		res.LUFSDifference = r.audio.LUFSDifference
		res.PeakDifference = r.audio.PeakDifference
		res.SyncOffsetMillis = r.audio.SyncOffsetMillis
	}
	if r.verdict != nil {
		overall, match := r.verdict.Overall, r.verdict.IsMatch
		res.OverallSimilarity = &overall
		res.IsMatch = &match
	}
	return res
}

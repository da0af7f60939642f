package jobs_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mediadiff/internal/jobs"
	"mediadiff/internal/testsupport"
)

func floatPtr(v float64) *float64 { return &v }

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	health, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %#v", health)
	}
	if health.SchemaVersion != 1 {
		t.Fatalf("schema version = %d, want 1", health.SchemaVersion)
	}

	// Reopening an initialized database must not recreate the schema.
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	reopened, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	reopened.Close()
}

func TestCatalogRegistersAndResolves(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	file := testsupport.AddMedia(t, store, cfg, "reference.mp4")
	again, err := store.AddFile(ctx, file.Path, "other label")
	if err != nil {
		t.Fatalf("AddFile duplicate: %v", err)
	}
	if again.ID != file.ID {
		t.Fatalf("duplicate path created new id %d (want %d)", again.ID, file.ID)
	}

	path, err := store.Resolve(ctx, file.ID)
	if err != nil || path != file.Path {
		t.Fatalf("Resolve = %q, %v", path, err)
	}
	if _, err := store.Resolve(ctx, 999); !errors.Is(err, jobs.ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
	if file.Probed() {
		t.Fatal("new file should not be probed")
	}

	if err := store.SaveProbe(ctx, file.ID, jobs.ProbeData{DurationSeconds: 12.5, Width: 1920, Height: 1080, FPS: 25, HasAudio: true}); err != nil {
		t.Fatalf("SaveProbe: %v", err)
	}
	probed, err := store.GetFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if !probed.Probed() || probed.DurationSeconds != 12.5 || probed.Width != 1920 || !probed.HasAudio {
		t.Fatalf("unexpected probed file: %#v", probed)
	}

	if err := store.InvalidateProbe(ctx, file.ID); err != nil {
		t.Fatalf("InvalidateProbe: %v", err)
	}
	cleared, _ := store.GetFile(ctx, file.ID)
	if cleared.Probed() || cleared.DurationSeconds != 0 {
		t.Fatalf("probe cache not cleared: %#v", cleared)
	}
}

func TestClaimIsExclusive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.AddMedia(t, store, cfg, "a.mp4")
	b := testsupport.AddMedia(t, store, cfg, "b.mp4")
	job := testsupport.NewJob(t, store, a.ID, b.ID, "low")

	const contenders = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Claim(ctx, job.ID)
			if err != nil {
				t.Errorf("Claim: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winning claim, got %d", wins)
	}

	claimed, _ := store.GetJob(ctx, job.ID)
	if claimed.Status != jobs.StatusProcessing || claimed.StartedAt == nil {
		t.Fatalf("unexpected claimed job: %#v", claimed)
	}
}

func TestClaimNextOrdersByCreation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.AddMedia(t, store, cfg, "a.mp4")
	b := testsupport.AddMedia(t, store, cfg, "b.mp4")
	first := testsupport.NewJob(t, store, a.ID, b.ID, "low")
	testsupport.NewJob(t, store, a.ID, b.ID, "high")

	next, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("expected first job claimed, got %#v", next)
	}
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("second ClaimNext: %v", err)
	}
	empty, err := store.ClaimNext(ctx)
	if err != nil || empty != nil {
		t.Fatalf("expected empty queue, got %#v, %v", empty, err)
	}
}

func TestProgressNeverDecreases(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.AddMedia(t, store, cfg, "a.mp4")
	b := testsupport.AddMedia(t, store, cfg, "b.mp4")
	job := testsupport.NewJob(t, store, a.ID, b.ID, "medium")

	if err := store.UpdateProgress(ctx, job.ID, "probe", 10); !errors.Is(err, jobs.ErrNotProcessing) {
		t.Fatalf("expected ErrNotProcessing on pending job, got %v", err)
	}
	if ok, _ := store.Claim(ctx, job.ID); !ok {
		t.Fatal("claim failed")
	}

	steps := []struct {
		progress int
		want     int
	}{
		{20, 20},
		{10, 20},
		{45, 45},
		{150, 100},
		{-5, 100},
	}
	for _, step := range steps {
		if err := store.UpdateProgress(ctx, job.ID, "video", step.progress); err != nil {
			t.Fatalf("UpdateProgress(%d): %v", step.progress, err)
		}
		got, _ := store.GetJob(ctx, job.ID)
		if got.Progress != step.want {
			t.Fatalf("after %d progress = %d, want %d", step.progress, got.Progress, step.want)
		}
	}
}

func TestCheckpointsAndFinalizeFailedKeepsPartialResult(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.AddMedia(t, store, cfg, "a.mp4")
	b := testsupport.AddMedia(t, store, cfg, "b.mp4")
	job := testsupport.NewJob(t, store, a.ID, b.ID, "medium")
	store.Claim(ctx, job.ID)

	if err := store.SaveCheckpoint(ctx, job.ID, "probe", 20, map[string]float64{"duration": 10}); err != nil {
		t.Fatalf("SaveCheckpoint probe: %v", err)
	}
	if err := store.SaveCheckpoint(ctx, job.ID, "video", 45, map[string]int{"total_frames": 20}); err != nil {
		t.Fatalf("SaveCheckpoint video: %v", err)
	}
	cps, err := store.Checkpoints(ctx, job.ID)
	if err != nil {
		t.Fatalf("Checkpoints: %v", err)
	}
	if len(cps) != 2 || cps[0].Stage != "probe" || cps[1].Stage != "video" {
		t.Fatalf("unexpected checkpoints: %#v", cps)
	}

	err = store.Finalize(ctx, job.ID, jobs.Outcome{
		Status:       jobs.StatusFailed,
		ErrorMessage: "audio extraction failed",
		Result:       &jobs.Result{VideoSimilarity: floatPtr(0.97), TotalFrames: 20, DifferentFrames: 1},
		Differences: []jobs.Difference{
			{TimestampSeconds: 3, DurationSeconds: 1, Type: jobs.TypeVideoFrame, Severity: jobs.SeverityLow, Confidence: 0.1, SSIMScore: floatPtr(0.9)},
		},
	})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	final, _ := store.GetJob(ctx, job.ID)
	if final.Status != jobs.StatusFailed || final.ErrorMessage != "audio extraction failed" || final.CompletedAt == nil {
		t.Fatalf("unexpected final job: %#v", final)
	}
	if final.Progress != 45 {
		t.Fatalf("failed job progress = %d, want 45", final.Progress)
	}
	result, err := store.Result(ctx, job.ID)
	if err != nil || result == nil {
		t.Fatalf("Result: %#v, %v", result, err)
	}
	if result.AudioSimilarity != nil || result.OverallSimilarity != nil || *result.VideoSimilarity != 0.97 {
		t.Fatalf("unexpected partial result: %#v", result)
	}

	if err := store.Finalize(ctx, job.ID, jobs.Outcome{Status: jobs.StatusCompleted}); !errors.Is(err, jobs.ErrNotProcessing) {
		t.Fatalf("expected ErrNotProcessing on second finalize, got %v", err)
	}
}

func TestFinalizeCompletedWritesTimelineAndArtifacts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.AddMedia(t, store, cfg, "a.mp4")
	b := testsupport.AddMedia(t, store, cfg, "b.mp4")
	job := testsupport.NewJob(t, store, a.ID, b.ID, "high")
	store.Claim(ctx, job.ID)

	match := false
	err := store.Finalize(ctx, job.ID, jobs.Outcome{
		Status: jobs.StatusCompleted,
		Result: &jobs.Result{OverallSimilarity: floatPtr(0.5), IsMatch: &match, VideoSimilarity: floatPtr(0.6), AudioSimilarity: floatPtr(0.4)},
		Differences: []jobs.Difference{
			{TimestampSeconds: 1, Type: jobs.TypeVideoFrame, Severity: jobs.SeverityHigh, Confidence: 0.9, SSIMScore: floatPtr(0.1)},
			{TimestampSeconds: 1, Type: jobs.TypeAudioLoudness, Severity: jobs.SeverityMedium, Confidence: 0.5, Description: "louder"},
			{TimestampSeconds: 4, Type: jobs.TypeOCRText, Severity: jobs.SeverityLow, Confidence: 0.8},
		},
		Artifacts: map[int]string{10: "/tmp/a.png"},
	})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	final, _ := store.GetJob(ctx, job.ID)
	if final.Status != jobs.StatusCompleted || final.Progress != 100 {
		t.Fatalf("unexpected final job: %#v", final)
	}
	diffs, err := store.Differences(ctx, job.ID)
	if err != nil {
		t.Fatalf("Differences: %v", err)
	}
	if len(diffs) != 3 || diffs[0].Type != jobs.TypeVideoFrame || diffs[1].Type != jobs.TypeAudioLoudness {
		t.Fatalf("unexpected order: %#v", diffs)
	}
	if diffs[1].SSIMScore != nil || diffs[1].Description != "louder" {
		t.Fatalf("unexpected audio entry: %#v", diffs[1])
	}

	artifacts, err := store.Artifacts(ctx, job.ID)
	if err != nil {
		t.Fatalf("Artifacts: %v", err)
	}
	if len(artifacts) != 1 || artifacts[10] != "/tmp/a.png" {
		t.Fatalf("unexpected artifacts: %v", artifacts)
	}
}

func TestRequestCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.AddMedia(t, store, cfg, "a.mp4")
	b := testsupport.AddMedia(t, store, cfg, "b.mp4")

	pending := testsupport.NewJob(t, store, a.ID, b.ID, "low")
	status, err := store.RequestCancel(ctx, pending.ID)
	if err != nil || status != jobs.StatusCancelled {
		t.Fatalf("cancel pending = %q, %v", status, err)
	}
	if ok, _ := store.Claim(ctx, pending.ID); ok {
		t.Fatal("cancelled job must not be claimable")
	}

	running := testsupport.NewJob(t, store, a.ID, b.ID, "low")
	store.Claim(ctx, running.ID)
	status, err = store.RequestCancel(ctx, running.ID)
	if err != nil || status != jobs.StatusProcessing {
		t.Fatalf("cancel processing = %q, %v", status, err)
	}
	if flagged, _ := store.CancelRequested(ctx, running.ID); !flagged {
		t.Fatal("expected cancel flag on processing job")
	}

	if err := store.Finalize(ctx, running.ID, jobs.Outcome{Status: jobs.StatusCancelled}); err != nil {
		t.Fatalf("Finalize cancelled: %v", err)
	}
	status, err = store.RequestCancel(ctx, running.ID)
	if err != nil || status != jobs.StatusCancelled {
		t.Fatalf("cancel terminal = %q, %v", status, err)
	}

	if _, err := store.RequestCancel(ctx, 999); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestFailStaleProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.AddMedia(t, store, cfg, "a.mp4")
	b := testsupport.AddMedia(t, store, cfg, "b.mp4")
	stale := testsupport.NewJob(t, store, a.ID, b.ID, "low")
	fresh := testsupport.NewJob(t, store, a.ID, b.ID, "low")
	store.Claim(ctx, stale.ID)

	cutoff := time.Now().Add(time.Minute)
	store.Claim(ctx, fresh.ID)
	if err := store.UpdateHeartbeat(ctx, fresh.ID); err != nil {
		t.Fatalf("UpdateHeartbeat: %v", err)
	}

	reclaimed, err := store.FailStaleProcessing(ctx, cutoff)
	if err != nil {
		t.Fatalf("FailStaleProcessing: %v", err)
	}
	// Both heartbeats predate a cutoff in the future.
	if reclaimed != 2 {
		t.Fatalf("reclaimed = %d, want 2", reclaimed)
	}
	got, _ := store.GetJob(ctx, stale.ID)
	if got.Status != jobs.StatusFailed || got.ErrorMessage != jobs.InterruptedReason {
		t.Fatalf("unexpected stale job: %#v", got)
	}

	summary, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if summary.Failed != 2 || summary.Total != 2 {
		t.Fatalf("unexpected summary: %#v", summary)
	}
}

func TestParseStatus(t *testing.T) {
	if s, ok := jobs.ParseStatus(" Cancelled "); !ok || s != jobs.StatusCancelled {
		t.Fatalf("ParseStatus = %q, %v", s, ok)
	}
	if _, ok := jobs.ParseStatus("ripping"); ok {
		t.Fatal("unknown status accepted")
	}
	if !jobs.StatusFailed.IsTerminal() || jobs.StatusProcessing.IsTerminal() {
		t.Fatal("unexpected terminal classification")
	}
	if jobs.MaxSeverity(jobs.SeverityLow, jobs.SeverityHigh) != jobs.SeverityHigh {
		t.Fatal("MaxSeverity should prefer high")
	}
}

package workflow_test

import (
	"context"
	"fmt"
	"testing"

	"mediadiff/internal/capability"
	"mediadiff/internal/config"
	"mediadiff/internal/jobs"
	"mediadiff/internal/logging"
	"mediadiff/internal/media/ffmpeg"
	"mediadiff/internal/probe"
	"mediadiff/internal/render"
	"mediadiff/internal/testsupport"
	"mediadiff/internal/workflow"
)

type harness struct {
	cfg     *config.Config
	store   *jobs.Store
	fakes   *testsupport.Fakes
	manager *workflow.Manager
	files   int
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	fakes := testsupport.NewFakes()
	manager := workflow.NewManager(cfg, store, logging.NewNop(),
		workflow.WithProber(probe.New(cfg, store, probe.WithInspector(fakes.Inspect))),
		workflow.WithCapabilities(capability.Static(fakes.Set())),
		workflow.WithArtifactStore(render.NewLocalStore(cfg.Paths.ArtifactDir)),
	)
	return &harness{cfg: cfg, store: store, fakes: fakes, manager: manager}
}

// addPair registers an acceptance and an emission file with fake content.
func (h *harness) addPair(t *testing.T, acceptance, emission testsupport.Clip) (int64, int64) {
	t.Helper()
	h.files++
	a := testsupport.AddMedia(t, h.store, h.cfg, fmt.Sprintf("acceptance-%d.mxf", h.files))
	e := testsupport.AddMedia(t, h.store, h.cfg, fmt.Sprintf("emission-%d.mxf", h.files))
	h.fakes.AddClip(a.Path, acceptance)
	h.fakes.AddClip(e.Path, emission)
	return a.ID, e.ID
}

func (h *harness) create(t *testing.T, acceptanceID, emissionID int64, level string) *jobs.Job {
	t.Helper()
	job, err := h.manager.Create(context.Background(), workflow.CreateRequest{
		AcceptanceID: acceptanceID,
		EmissionID:   emissionID,
		Sensitivity:  level,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return job
}

func (h *harness) start(t *testing.T, id int64) *jobs.Job {
	t.Helper()
	if err := h.manager.Start(context.Background(), id); err != nil {
		t.Fatalf("Start: %v", err)
	}
	job, err := h.manager.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	return job
}

func (h *harness) resultsJSON(t *testing.T, id int64) string {
	t.Helper()
	payload, err := h.manager.Results(context.Background(), id)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	data, err := payload.JSON()
	if err != nil {
		t.Fatalf("payload.JSON: %v", err)
	}
	return string(data)
}

func programme(duration float64) testsupport.Clip {
	return testsupport.Clip{
		Duration:  duration,
		HasAudio:  true,
		Loudness:  ffmpeg.Loudness{IntegratedLUFS: -23, TruePeakDB: -1},
		Signature: "programme",
	}
}

func lumaWindow(from, to, value float64) func(float64) float64 {
	return func(t float64) float64 {
		if t >= from && t <= to {
			return value
		}
		return 0.5
	}
}

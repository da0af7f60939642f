package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"mediadiff/internal/config"
	"mediadiff/internal/jobs"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// AddMedia writes a placeholder media file under the config's base dir and
// registers it in the catalog.
func AddMedia(t testing.TB, store *jobs.Store, cfg *config.Config, name string) *jobs.MediaFile {
	t.Helper()

	path := filepath.Join(BaseDir(cfg), "media", name)
	WriteMedia(t, path)
	file, err := store.AddFile(context.Background(), path, name)
	if err != nil {
		t.Fatalf("store.AddFile: %v", err)
	}
	return file
}

// NewJob inserts a pending job comparing two catalog entries.
func NewJob(t testing.TB, store *jobs.Store, acceptanceID, emissionID int64, sensitivity string) *jobs.Job {
	t.Helper()

	job, err := store.CreateJob(context.Background(), jobs.NewJob{
		AcceptanceFileID: acceptanceID,
		EmissionFileID:   emissionID,
		Sensitivity:      sensitivity,
		SettingsJSON:     "{}",
	})
	if err != nil {
		t.Fatalf("store.CreateJob: %v", err)
	}
	return job
}

package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"mediadiff/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckOpenAI_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"whisper-1","object":"model"}]}`))
	}))
	defer srv.Close()

	result := CheckOpenAI(context.Background(), config.Transcription{APIKey: "good-key", BaseURL: srv.URL})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckOpenAI_BadKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	result := CheckOpenAI(context.Background(), config.Transcription{APIKey: "bad-key", BaseURL: srv.URL})
	if result.Passed {
		t.Fatal("expected failure for bad key")
	}
}

func TestCheckOpenAI_MissingKey(t *testing.T) {
	result := CheckOpenAI(context.Background(), config.Transcription{})
	if result.Passed {
		t.Fatal("expected failure for missing key")
	}
}

func TestCheckMinIO_MissingEndpoint(t *testing.T) {
	result := CheckMinIO(context.Background(), config.Artifacts{Bucket: "frames"})
	if result.Passed {
		t.Fatal("expected failure for missing endpoint")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_LocalConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.WorkDir = t.TempDir()
	cfg.Paths.ArtifactDir = t.TempDir()
	cfg.Artifacts.Backend = config.ArtifactBackendLocal
	cfg.Transcription.Provider = config.TranscriptionHelper

	results := RunAll(context.Background(), &cfg)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_IncludesOpenAIWhenSelected(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.WorkDir = filepath.Join(t.TempDir(), "missing")
	cfg.Paths.ArtifactDir = t.TempDir()
	cfg.Artifacts.Backend = config.ArtifactBackendLocal
	cfg.Transcription.Provider = config.TranscriptionOpenAI
	cfg.Transcription.APIKey = ""

	results := RunAll(context.Background(), &cfg)
	failed := Failed(results)
	if len(failed) != 2 {
		t.Fatalf("expected work dir and OpenAI failures, got %+v", failed)
	}
	if failed[1].Name != "OpenAI transcription" {
		t.Fatalf("unexpected failure order: %+v", failed)
	}
}

package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"mediadiff/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}

	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
	if results[0].Path != present {
		t.Fatalf("resolved path = %q, want %q", results[0].Path, present)
	}
	if !results[1].Blocking() {
		t.Fatal("missing required binary should block")
	}
}

func TestOptionalRequirementDoesNotBlock(t *testing.T) {
	results := CheckBinaries([]Requirement{
		{Name: "OCR", Command: "clearly-not-present-ocr", Stages: []string{"video"}, Optional: true},
		{Name: "Unset", Command: "  "},
	})
	if results[0].Available || results[0].Blocking() {
		t.Fatalf("optional missing binary should not block: %#v", results[0])
	}
	if results[1].Detail != "command not configured" || !results[1].Blocking() {
		t.Fatalf("unexpected status for empty command: %#v", results[1])
	}
}

func TestRequirementsUseConfiguredBinaries(t *testing.T) {
	cfg := config.Default()
	cfg.Tools.FFmpeg = "/opt/ffmpeg/bin/ffmpeg"
	reqs := Requirements(&cfg)
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requirements, got %d", len(reqs))
	}
	if reqs[0].Command != "/opt/ffmpeg/bin/ffmpeg" {
		t.Fatalf("unexpected ffmpeg command: %s", reqs[0].Command)
	}
	if reqs[2].Command != cfg.Tools.Helper {
		t.Fatalf("unexpected helper command: %s", reqs[2].Command)
	}
	if len(reqs[1].Stages) != 1 || reqs[1].Stages[0] != "probe" {
		t.Fatalf("ffprobe should serve the probe stage, got %v", reqs[1].Stages)
	}
}

func writeFFmpegStub(t *testing.T, filters string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	body := "#!/bin/sh\ncat <<'OUT'\nFilters:\n  T.. = Timeline support\n" + filters + "OUT\n"
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckFFmpegFilters(t *testing.T) {
	complete := writeFFmpegStub(t,
		" ... ebur128           A->N       EBU R128 scanner.\n"+
			" T.. blend             VV->V      Blend two video frames into each other.\n"+
			" ..C scale2ref         VV->VV     Scale the input video size using a reference.\n")
	status := CheckFFmpegFilters(context.Background(), complete)
	if !status.Available {
		t.Fatalf("expected filters available, got %#v", status)
	}

	partial := writeFFmpegStub(t, " ..C scale2ref         VV->VV     Scale the input video size using a reference.\n")
	status = CheckFFmpegFilters(context.Background(), partial)
	if status.Available {
		t.Fatal("expected missing filters to be reported")
	}
	if status.Detail != "missing filters: ebur128, blend" {
		t.Fatalf("unexpected detail: %s", status.Detail)
	}

	status = CheckFFmpegFilters(context.Background(), "clearly-not-present-ffmpeg")
	if status.Available || status.Detail == "" {
		t.Fatalf("expected missing binary, got %#v", status)
	}
}

package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediadiff/internal/config"
	"mediadiff/internal/logging"
	"mediadiff/internal/services"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	logPath := filepath.Join(cfg.Paths.LogDir, "daemon.log")

	logger, err := logging.NewFromConfig(&cfg, logPath)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("daemon started")

	if !strings.Contains(readLog(t, logPath), "daemon started") {
		t.Fatal("expected message in log file")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestConsoleLoggerOmitsSourceForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without source")

	if strings.Contains(readLog(t, logPath), ".go:") {
		t.Fatal("expected no source information in info logs")
	}
}

func TestConsoleLoggerIncludesSourceForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with source")

	if !strings.Contains(readLog(t, logPath), "logger_test.go:") {
		t.Fatal("expected source information in debug logs")
	}
}

func TestConsoleLoggerPromotesComponent(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "component.log")
	base, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(base, "workflow").Info("job claimed", logging.JobID(7))

	content := readLog(t, logPath)
	if !strings.Contains(content, "workflow: job claimed") {
		t.Fatalf("expected component prefix, got %q", content)
	}
	if !strings.Contains(content, "job_id=7") {
		t.Fatalf("expected job_id attribute, got %q", content)
	}
	if strings.Contains(content, "component=") {
		t.Fatalf("component should not repeat as attribute, got %q", content)
	}
}

func TestJSONLoggerRenamesCoreKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Warn("stage slow", logging.Duration("elapsed", 2*time.Second))

	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &payload); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if payload["level"] != "warn" {
		t.Fatalf("level = %v, want warn", payload["level"])
	}
	if payload["msg"] != "stage slow" {
		t.Fatalf("msg = %v", payload["msg"])
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatal("expected ts key")
	}
}

func TestWithContextAddsJobFields(t *testing.T) {
	ctx := services.WithJobID(context.Background(), 42)
	ctx = services.WithStage(ctx, "video")
	ctx = services.WithRequestID(ctx, "req-1")

	fields := logging.ContextFields(ctx)
	keys := map[string]bool{}
	for _, f := range fields {
		keys[f.Key] = true
	}
	for _, want := range []string{logging.FieldJobID, logging.FieldStage, logging.FieldCorrelationID} {
		if !keys[want] {
			t.Fatalf("expected %s in context fields, got %v", want, fields)
		}
	}
	if keys[logging.FieldWorker] {
		t.Fatal("worker should be absent when not set")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WarnWithContext(logger, "ocr skipped", "ocr_unavailable")

	content := readLog(t, logPath)
	for _, want := range []string{"event_type=ocr_unavailable", "error_hint=", "impact="} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in %q", want, content)
		}
	}
}

func TestForStageAppliesOverride(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "override.log")
	base, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	quiet := logging.ForStage(base, map[string]string{"video": "warn"}, "video")
	quiet.Info("suppressed")
	loud := logging.ForStage(base, map[string]string{"video": "warn"}, "audio")
	loud.Debug("kept")

	content := readLog(t, logPath)
	if strings.Contains(content, "suppressed") {
		t.Fatal("info should be suppressed by warn override")
	}
	if !strings.Contains(content, "kept") {
		t.Fatal("stage without override should keep base level")
	}
}

func TestCleanupOldLogsRemovesExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "daemon-old.log")
	freshPath := filepath.Join(dir, "daemon-new.log")
	for _, p := range []string{oldPath, freshPath} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	if err := os.Chtimes(oldPath, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	livePath := filepath.Join(dir, "daemon-live.log")
	if err := os.WriteFile(livePath, []byte("x"), 0o644); err != nil {
		t.Fatalf("write live log: %v", err)
	}
	if err := os.Chtimes(livePath, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 5, logging.RetentionTarget{Dir: dir, Pattern: "daemon-*.log", Keep: []string{livePath}})
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(livePath); err != nil {
		t.Fatalf("expected kept log to survive: %v", err)
	}

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	if _, err := os.Stat(freshPath); err != nil {
		t.Fatalf("expected fresh log kept: %v", err)
	}
}

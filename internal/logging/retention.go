package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// RetentionTarget selects log files to prune: files in Dir whose name matches
// Pattern. Paths listed in Keep are never removed (the live daemon log).
type RetentionTarget struct {
	Dir     string
	Pattern string
	Keep    []string
}

// CleanupOldLogs removes daemon and job log files last written more than
// retentionDays ago and returns how many were removed. Zero or negative
// retention keeps everything.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	removed := 0
	for _, target := range targets {
		removed += pruneTarget(logger, target, cutoff)
	}
	if removed > 0 {
		logger.Info("old logs pruned", Int("removed", removed), Int("retention_days", retentionDays), Event("log_pruned"))
	}
	return removed
}

func pruneTarget(logger *slog.Logger, target RetentionTarget, cutoff time.Time) int {
	if target.Dir == "" || target.Pattern == "" {
		return 0
	}
	matches, err := filepath.Glob(filepath.Join(target.Dir, target.Pattern))
	if err != nil {
		return 0
	}
	keep := make([]string, 0, len(target.Keep))
	for _, path := range target.Keep {
		keep = append(keep, filepath.Clean(path))
	}

	removed := 0
	for _, path := range matches {
		if slices.Contains(keep, filepath.Clean(path)) {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check ownership of paths.log_dir"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		removed++
	}
	return removed
}

package preflight

import (
	"context"

	"mediadiff/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
	}

	switch cfg.Artifacts.Backend {
	case config.ArtifactBackendMinIO:
		results = append(results, CheckMinIO(ctx, cfg.Artifacts))
	default:
		results = append(results, CheckDirectoryAccess("Artifact directory", cfg.Paths.ArtifactDir))
	}

	if cfg.Transcription.Provider == config.TranscriptionOpenAI {
		results = append(results, CheckOpenAI(ctx, cfg.Transcription))
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

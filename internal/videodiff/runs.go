package videodiff

import (
	"fmt"

	"mediadiff/internal/jobs"
	"mediadiff/internal/sensitivity"
)

// buildRuns groups flagged samples whose spacing is within the profile's
// merge gap into one video_frame difference each. A run also ends where the
// SSIM band changes, so a stricter level only ever splits the runs a less
// sensitive level reports.
func buildRuns(flagged []sample, step float64, profile sensitivity.Profile) []jobs.Difference {
	if len(flagged) == 0 {
		return nil
	}
	gap := profile.MergeGap(step) + 1e-9
	var (
		out   []jobs.Difference
		start = 0
	)
	for i := 1; i <= len(flagged); i++ {
		if i < len(flagged) && flagged[i].t-flagged[i-1].t <= gap && flagged[i].band == flagged[i-1].band {
			continue
		}
		out = append(out, runDifference(flagged[start:i], profile.SSIMThreshold))
		start = i
	}
	return out
}

func runDifference(run []sample, threshold float64) jobs.Difference {
	var sum float64
	for _, s := range run {
		sum += s.ssim
	}
	mean := sum / float64(len(run))
	first, last := run[0].t, run[len(run)-1].t
	return jobs.Difference{
		TimestampSeconds: first,
		DurationSeconds:  last - first,
		Type:             jobs.TypeVideoFrame,
		Severity:         severityFor(threshold - mean),
		Confidence:       clamp01(1 - mean),
		Description:      fmt.Sprintf("%d frame(s) differ, mean SSIM %.3f below %.2f", len(run), mean, threshold),
		SSIMScore:        &mean,
	}
}

// severityFor bands how far the mean SSIM fell below the threshold.
func severityFor(deficit float64) jobs.Severity {
	switch {
	case deficit < 0.05:
		return jobs.SeverityLow
	case deficit < 0.15:
		return jobs.SeverityMedium
	default:
		return jobs.SeverityHigh
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Package score turns modality similarities and the merged timeline into a
// job's overall similarity and match verdict.
package score

import (
	"mediadiff/internal/jobs"
	"mediadiff/internal/sensitivity"
)

// Input carries the per-modality scores. Audio is nil when neither file has
// an audio track.
type Input struct {
	Video       float64
	Audio       *float64
	Differences []jobs.Difference
	Weights     sensitivity.Weights
	Threshold   float64
}

// Verdict is the aggregated outcome.
type Verdict struct {
	Overall   float64 `json:"overall_similarity"`
	IsMatch   bool    `json:"is_match"`
	HighCount int     `json:"high_severity_count"`
}

// Aggregate computes overall = w_v*video + w_a*audio and the match verdict:
// overall must reach the threshold and no difference may be high severity.
// Without audio the overall score is the video score.
func Aggregate(in Input) Verdict {
	overall := in.Video
	if in.Audio != nil {
		wv, wa := in.Weights.Video, in.Weights.Audio
		if total := wv + wa; total > 0 {
			overall = (wv*in.Video + wa*(*in.Audio)) / total
		} else {
			overall = (in.Video + *in.Audio) / 2
		}
	}
	overall = clamp01(overall)

	high := 0
	for _, d := range in.Differences {
		if d.Severity == jobs.SeverityHigh {
			high++
		}
	}
	return Verdict{
		Overall:   overall,
		IsMatch:   overall >= in.Threshold && high == 0,
		HighCount: high,
	}
}

// Counts splits a timeline into video (video_frame and ocr_text) and audio
// difference counts.
func Counts(differences []jobs.Difference) (video, audio int) {
	for _, d := range differences {
		if d.Type.IsAudio() {
			audio++
		} else {
			video++
		}
	}
	return video, audio
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

package capability

import (
	"context"

	"mediadiff/internal/media/ffmpeg"
)

// Resolver maps catalog file ids to filesystem paths.
type Resolver interface {
	Resolve(ctx context.Context, fileID int64) (string, error)
}

// FrameSource extracts a still frame at a timestamp.
type FrameSource interface {
	ExtractFrame(ctx context.Context, path string, t float64, dest string) error
}

// FrameSimilarity is the helper's comparison of two frames. Both values are
// in 0..1 where 1 means identical.
type FrameSimilarity struct {
	Structural float64 `json:"structural"`
	Histogram  float64 `json:"histogram"`
}

// Vision compares two extracted frames.
type Vision interface {
	CompareFrames(ctx context.Context, a, b string) (FrameSimilarity, error)
}

// TextSnippet is one OCR detection.
type TextSnippet struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// OCR extracts on-screen text from a frame.
type OCR interface {
	ExtractText(ctx context.Context, frame string) ([]TextSnippet, error)
}

// AudioTools extracts and measures audio tracks.
type AudioTools interface {
	ExtractAudio(ctx context.Context, path string, start, duration float64, dest string) error
	Loudness(ctx context.Context, track string) (ffmpeg.Loudness, error)
	SpectralSimilarity(ctx context.Context, a, b string) (float64, error)
	MFCCSimilarity(ctx context.Context, a, b string) (float64, error)
	// SyncOffset returns how far b lags a, in milliseconds.
	SyncOffset(ctx context.Context, a, b string) (float64, error)
}

// Separation is the result of splitting a track into vocals and
// accompaniment.
type Separation struct {
	// VocalsProportion is the share of the track's energy attributed to vocals (0..1).
	VocalsProportion float64 `json:"vocals_proportion"`
	VocalsPath       string  `json:"vocals_path"`
}

// VoiceTools separates and transcribes speech.
type VoiceTools interface {
	SeparateSources(ctx context.Context, track string) (Separation, error)
	Transcribe(ctx context.Context, track string) (string, error)
}

// ImageDiff renders a visual difference mask for two frames.
type ImageDiff interface {
	RenderDiffMask(ctx context.Context, a, b, dest string) error
}

// Set bundles every capability the pipeline needs.
type Set struct {
	Frames FrameSource
	Vision Vision
	OCR    OCR
	Audio  AudioTools
	Voice  VoiceTools
	Diff   ImageDiff
}

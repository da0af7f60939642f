package capability

import (
	"context"
	"strings"

	"mediadiff/internal/toolrun"
)

// Helper implements the helper-backed capabilities over the JSON-on-stdout
// protocol.
type Helper struct {
	runner *toolrun.Runner
}

// NewHelper wraps a tool runner.
func NewHelper(runner *toolrun.Runner) *Helper {
	return &Helper{runner: runner}
}

// CompareFrames runs `compare-frames <a> <b>`.
func (h *Helper) CompareFrames(ctx context.Context, a, b string) (FrameSimilarity, error) {
	var out FrameSimilarity
	if err := h.runner.Call(ctx, "compare-frames", &out, a, b); err != nil {
		return FrameSimilarity{}, err
	}
	return FrameSimilarity{Structural: clamp01(out.Structural), Histogram: clamp01(out.Histogram)}, nil
}

// ExtractText runs `ocr <frame>`. Empty snippets are dropped.
func (h *Helper) ExtractText(ctx context.Context, frame string) ([]TextSnippet, error) {
	var out struct {
		Snippets []TextSnippet `json:"snippets"`
	}
	if err := h.runner.Call(ctx, "ocr", &out, frame); err != nil {
		return nil, err
	}
	snippets := make([]TextSnippet, 0, len(out.Snippets))
	for _, s := range out.Snippets {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		s.Confidence = clamp01(s.Confidence)
		snippets = append(snippets, s)
	}
	return snippets, nil
}

type similarityOutput struct {
	Similarity float64 `json:"similarity"`
}

// SpectralSimilarity runs `spectral-similarity <a> <b>`.
func (h *Helper) SpectralSimilarity(ctx context.Context, a, b string) (float64, error) {
	var out similarityOutput
	if err := h.runner.Call(ctx, "spectral-similarity", &out, a, b); err != nil {
		return 0, err
	}
	return clamp01(out.Similarity), nil
}

// MFCCSimilarity runs `mfcc-similarity <a> <b>`.
func (h *Helper) MFCCSimilarity(ctx context.Context, a, b string) (float64, error) {
	var out similarityOutput
	if err := h.runner.Call(ctx, "mfcc-similarity", &out, a, b); err != nil {
		return 0, err
	}
	return clamp01(out.Similarity), nil
}

// SyncOffset runs `sync-offset <a> <b>`.
func (h *Helper) SyncOffset(ctx context.Context, a, b string) (float64, error) {
	var out struct {
		OffsetMillis float64 `json:"offset_ms"`
	}
	if err := h.runner.Call(ctx, "sync-offset", &out, a, b); err != nil {
		return 0, err
	}
	return out.OffsetMillis, nil
}

// SeparateSources runs `separate-sources <track>`.
func (h *Helper) SeparateSources(ctx context.Context, track string) (Separation, error) {
	var out Separation
	if err := h.runner.Call(ctx, "separate-sources", &out, track); err != nil {
		return Separation{}, err
	}
	out.VocalsProportion = clamp01(out.VocalsProportion)
	return out, nil
}

// Transcribe runs `transcribe <track>`.
func (h *Helper) Transcribe(ctx context.Context, track string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := h.runner.Call(ctx, "transcribe", &out, track); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Text), nil
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

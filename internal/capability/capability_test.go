package capability

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediadiff/internal/config"
	"mediadiff/internal/toolrun"
)

const helperScript = `#!/bin/sh
case "$1" in
  compare-frames) echo '{"structural": 1.2, "histogram": 0.8}' ;;
  ocr) echo '{"snippets": [{"text": "BREAKING NEWS", "confidence": 0.9}, {"text": "  ", "confidence": 0.5}]}' ;;
  spectral-similarity) echo '{"similarity": 0.75}' ;;
  mfcc-similarity) echo '{"similarity": -0.2}' ;;
  sync-offset) echo '{"offset_ms": 120.5}' ;;
  separate-sources) echo '{"vocals_proportion": 0.4, "vocals_path": "/tmp/vocals.wav"}' ;;
  transcribe) echo '{"text": "  hello world "}' ;;
  *) echo "unknown operation $1" >&2; exit 2 ;;
esac
`

func newTestHelper(t *testing.T) (*Helper, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mediadiff-helper")
	require.NoError(t, os.WriteFile(path, []byte(helperScript), 0o755))
	cfg := config.Default()
	cfg.Tools.Helper = path
	cfg.Tools.RetryBackoffMillis = 1
	return NewHelper(toolrun.New(&cfg)), &cfg
}

func TestHelperOperations(t *testing.T) {
	h, _ := newTestHelper(t)
	ctx := context.Background()

	sim, err := h.CompareFrames(ctx, "a.png", "b.png")
	require.NoError(t, err)
	assert.Equal(t, FrameSimilarity{Structural: 1, Histogram: 0.8}, sim)

	snippets, err := h.ExtractText(ctx, "a.png")
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Equal(t, "BREAKING NEWS", snippets[0].Text)

	spectral, err := h.SpectralSimilarity(ctx, "a.wav", "b.wav")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, spectral, 1e-9)

	mfcc, err := h.MFCCSimilarity(ctx, "a.wav", "b.wav")
	require.NoError(t, err)
	assert.Zero(t, mfcc)

	offset, err := h.SyncOffset(ctx, "a.wav", "b.wav")
	require.NoError(t, err)
	assert.InDelta(t, 120.5, offset, 1e-9)

	sep, err := h.SeparateSources(ctx, "a.wav")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, sep.VocalsProportion, 1e-9)

	text, err := h.Transcribe(ctx, "a.wav")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestProviderBuildsOnce(t *testing.T) {
	_, cfg := newTestHelper(t)
	p := NewProvider(cfg, nil)

	first, err := p.Get()
	require.NoError(t, err)
	second, err := p.Get()
	require.NoError(t, err)
	assert.Same(t, first.Vision.(*Helper), second.Vision.(*Helper))
	assert.True(t, p.HealthCheck(context.Background()).Ready)
}

func TestProviderOpenAITranscriber(t *testing.T) {
	_, cfg := newTestHelper(t)
	cfg.Transcription.Provider = config.TranscriptionOpenAI
	cfg.Transcription.APIKey = "test-key"

	set, err := NewProvider(cfg, nil).Get()
	require.NoError(t, err)
	voice, ok := set.Voice.(voiceTools)
	require.True(t, ok)
	assert.IsType(t, &OpenAITranscriber{}, voice.transcriber)
}

func TestProviderHealthReportsMissingHelper(t *testing.T) {
	cfg := config.Default()
	cfg.Tools.Helper = "clearly-not-present-helper"
	health := NewProvider(&cfg, nil).HealthCheck(context.Background())
	assert.False(t, health.Ready)
	assert.Contains(t, health.Detail, "clearly-not-present-helper")
	assert.Contains(t, health.Disabled, "ocr")
	assert.Contains(t, health.Summary(), "disables frame similarity")
}

func TestStaticProvider(t *testing.T) {
	set := Set{Vision: &Helper{}}
	got, err := Static(set).Get()
	require.NoError(t, err)
	assert.Equal(t, set, got)
}

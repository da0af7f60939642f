package capability

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"

	"mediadiff/internal/config"
	"mediadiff/internal/logging"
	"mediadiff/internal/media/ffmpeg"
	"mediadiff/internal/stage"
	"mediadiff/internal/toolrun"
)

// Provider lazily builds the capability Set once and hands the same
// read-only instances to every worker.
type Provider struct {
	build  func() (Set, error)
	once   sync.Once
	set    Set
	err    error
	helper string
}

// NewProvider returns a provider for the production implementations.
func NewProvider(cfg *config.Config, logger *slog.Logger) *Provider {
	logger = logging.NewComponentLogger(logger, "capability")
	return &Provider{
		helper: cfg.Tools.Helper,
		build: func() (Set, error) {
			return buildSet(cfg, logger)
		},
	}
}

// Static wraps a pre-built Set (used by tests and embedding callers).
func Static(set Set) *Provider {
	return &Provider{build: func() (Set, error) { return set, nil }}
}

// Get returns the shared capability set, building it on first use.
func (p *Provider) Get() (Set, error) {
	p.once.Do(func() {
		p.set, p.err = p.build()
	})
	return p.set, p.err
}

// HealthCheck reports whether the analysis helper can be executed.
func (p *Provider) HealthCheck(context.Context) stage.Health {
	const name = "capabilities"
	if p.helper == "" {
		return stage.Healthy(name)
	}
	if _, err := exec.LookPath(p.helper); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("analysis helper %q not found", p.helper),
			"frame similarity", "ocr", "spectral similarity", "source separation")
	}
	return stage.Healthy(name)
}

func buildSet(cfg *config.Config, logger *slog.Logger) (Set, error) {
	runner := toolrun.New(cfg, toolrun.WithLogger(logger))
	tools := ffmpeg.New(cfg.FFmpegBinary(), runner)
	helper := NewHelper(runner)

	var transcriber interface {
		Transcribe(ctx context.Context, track string) (string, error)
	} = helper
	switch cfg.Transcription.Provider {
	case config.TranscriptionOpenAI:
		transcriber = NewOpenAITranscriber(cfg.Transcription)
	case config.TranscriptionHelper, "":
	default:
		return Set{}, fmt.Errorf("unsupported transcription provider %q", cfg.Transcription.Provider)
	}
	logger.Debug("capabilities initialized",
		logging.String("helper", runner.Helper()),
		logging.String("transcription", cfg.Transcription.Provider),
	)

	return Set{
		Frames: tools,
		Vision: helper,
		OCR:    helper,
		Audio:  audioTools{Tools: tools, Helper: helper},
		Voice:  voiceTools{separator: helper, transcriber: transcriber},
		Diff:   tools,
	}, nil
}

type audioTools struct {
	*ffmpeg.Tools
	*Helper
}

type voiceTools struct {
	separator interface {
		SeparateSources(ctx context.Context, track string) (Separation, error)
	}
	transcriber interface {
		Transcribe(ctx context.Context, track string) (string, error)
	}
}

func (v voiceTools) SeparateSources(ctx context.Context, track string) (Separation, error) {
	return v.separator.SeparateSources(ctx, track)
}

func (v voiceTools) Transcribe(ctx context.Context, track string) (string, error) {
	return v.transcriber.Transcribe(ctx, track)
}

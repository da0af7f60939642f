package capability

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"mediadiff/internal/config"
	"mediadiff/internal/services"
)

// OpenAITranscriber transcribes tracks with the OpenAI audio API.
type OpenAITranscriber struct {
	client   *openai.Client
	model    string
	language string
}

// NewOpenAITranscriber builds a client from the [transcription] section.
func NewOpenAITranscriber(cfg config.Transcription) *OpenAITranscriber {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = base
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAITranscriber{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    model,
		language: strings.TrimSpace(cfg.Language),
	}
}

// Transcribe uploads the track and returns the recognized text.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, track string) (string, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: track,
		Language: t.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "audio", "transcribe", "OpenAI transcription failed", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// HealthCheck lists the available models to verify the endpoint and key.
func (t *OpenAITranscriber) HealthCheck(ctx context.Context) error {
	if _, err := t.client.ListModels(ctx); err != nil {
		return services.Wrap(services.ErrExternalTool, "", "transcription health", "OpenAI API unavailable", err)
	}
	return nil
}

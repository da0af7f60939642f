package config

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateArtifacts(); err != nil {
		return err
	}
	if err := c.validateScoring(); err != nil {
		return err
	}
	if err := c.validateSensitivity(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.workers":              c.Workflow.Workers,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateTools() error {
	if c.Tools.CallTimeout <= 0 {
		return errors.New("tools.call_timeout must be positive (seconds)")
	}
	if c.Tools.TimeoutRetries < 1 {
		return errors.New("tools.timeout_retries must be >= 1")
	}
	if c.Tools.RetryBackoffMillis < 0 {
		return errors.New("tools.retry_backoff_ms must be >= 0")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	switch c.Transcription.Provider {
	case TranscriptionHelper:
		return nil
	case TranscriptionOpenAI:
		if c.Transcription.APIKey == "" {
			return errors.New("transcription.api_key must be set when transcription.provider is openai (or set OPENAI_API_KEY)")
		}
		return nil
	default:
		return fmt.Errorf("transcription.provider: unsupported value %q", c.Transcription.Provider)
	}
}

func (c *Config) validateArtifacts() error {
	switch c.Artifacts.Backend {
	case ArtifactBackendLocal:
		return nil
	case ArtifactBackendMinIO:
		if c.Artifacts.Endpoint == "" {
			return errors.New("artifacts.endpoint must be set when artifacts.backend is minio")
		}
		if c.Artifacts.Bucket == "" {
			return errors.New("artifacts.bucket must be set when artifacts.backend is minio")
		}
		if c.Artifacts.AccessKey == "" || c.Artifacts.SecretKey == "" {
			return errors.New("artifacts.access_key and artifacts.secret_key must be set when artifacts.backend is minio")
		}
		return nil
	default:
		return fmt.Errorf("artifacts.backend: unsupported value %q", c.Artifacts.Backend)
	}
}

func (c *Config) validateScoring() error {
	s := c.Scoring
	for name, value := range map[string]float64{
		"scoring.video_weight":    s.VideoWeight,
		"scoring.audio_weight":    s.AudioWeight,
		"scoring.spectral_weight": s.SpectralWeight,
		"scoring.mfcc_weight":     s.MFCCWeight,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	if math.Abs(s.VideoWeight+s.AudioWeight-1) > 1e-9 {
		return errors.New("scoring.video_weight and scoring.audio_weight must sum to 1")
	}
	if math.Abs(s.SpectralWeight+s.MFCCWeight-1) > 1e-9 {
		return errors.New("scoring.spectral_weight and scoring.mfcc_weight must sum to 1")
	}
	if s.MergeEpsilon < 0 {
		return errors.New("scoring.merge_epsilon must be >= 0")
	}
	if len(s.TieOrder) != len(defaultTieOrder) {
		return fmt.Errorf("scoring.tie_order must list each of %s exactly once", strings.Join(defaultTieOrder, ", "))
	}
	for _, name := range defaultTieOrder {
		if !slices.Contains(s.TieOrder, name) {
			return fmt.Errorf("scoring.tie_order must list each of %s exactly once", strings.Join(defaultTieOrder, ", "))
		}
	}
	return nil
}

// validateSensitivity enforces the ordering that keeps higher levels strictly
// more sensitive: nested sampling grids and non-decreasing thresholds.
func (c *Config) validateSensitivity() error {
	levels := []struct {
		name    string
		profile SensitivityProfile
	}{
		{"low", c.Sensitivity.Low},
		{"medium", c.Sensitivity.Medium},
		{"high", c.Sensitivity.High},
	}
	for _, level := range levels {
		p := level.profile
		prefix := "sensitivity." + level.name
		if p.SampleInterval <= 0 {
			return fmt.Errorf("%s.sample_interval must be positive", prefix)
		}
		if p.SSIMThreshold <= 0 || p.SSIMThreshold > 1 {
			return fmt.Errorf("%s.ssim_threshold must be between 0 and 1", prefix)
		}
		if p.MatchThreshold <= 0 || p.MatchThreshold > 1 {
			return fmt.Errorf("%s.match_threshold must be between 0 and 1", prefix)
		}
		if p.OCRInterval < 0 {
			return fmt.Errorf("%s.ocr_interval must be >= 0", prefix)
		}
		if p.Voice && p.VoiceWindow <= 0 {
			return fmt.Errorf("%s.voice_window must be positive when voice analysis is enabled", prefix)
		}
	}
	for i := 1; i < len(levels); i++ {
		prev, next := levels[i-1], levels[i]
		if !isMultiple(prev.profile.SampleInterval, next.profile.SampleInterval) {
			return fmt.Errorf("sensitivity.%s.sample_interval must be a multiple of sensitivity.%s.sample_interval", prev.name, next.name)
		}
		if prev.profile.FrameAccurate && !next.profile.FrameAccurate {
			return fmt.Errorf("sensitivity.%s.frame_accurate requires sensitivity.%s.frame_accurate", prev.name, next.name)
		}
		if next.profile.SSIMThreshold < prev.profile.SSIMThreshold {
			return fmt.Errorf("sensitivity.%s.ssim_threshold must be >= sensitivity.%s.ssim_threshold", next.name, prev.name)
		}
		if next.profile.MatchThreshold < prev.profile.MatchThreshold {
			return fmt.Errorf("sensitivity.%s.match_threshold must be >= sensitivity.%s.match_threshold", next.name, prev.name)
		}
		if prev.profile.OCR && !next.profile.OCR {
			return fmt.Errorf("sensitivity.%s.ocr requires sensitivity.%s.ocr", prev.name, next.name)
		}
		if prev.profile.Voice && !next.profile.Voice {
			return fmt.Errorf("sensitivity.%s.voice requires sensitivity.%s.voice", prev.name, next.name)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	for stage, level := range c.Logging.StageOverrides {
		switch level {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("logging.stage_overrides.%s: unsupported level %q", stage, level)
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func isMultiple(coarse, fine float64) bool {
	if fine <= 0 {
		return false
	}
	ratio := coarse / fine
	return ratio >= 1-1e-9 && math.Abs(ratio-math.Round(ratio)) < 1e-9
}

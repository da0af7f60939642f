package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeTranscription()
	c.normalizeArtifacts()
	c.normalizeScoring()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ArtifactDir) == "" {
		c.Paths.ArtifactDir = defaultArtifactDir
	}
	if c.Paths.ArtifactDir, err = expandPath(c.Paths.ArtifactDir); err != nil {
		return fmt.Errorf("paths.artifact_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
	c.Tools.Helper = strings.TrimSpace(c.Tools.Helper)
	if value, ok := os.LookupEnv("MEDIADIFF_HELPER"); ok && c.Tools.Helper == "" {
		c.Tools.Helper = strings.TrimSpace(value)
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Provider = strings.ToLower(strings.TrimSpace(c.Transcription.Provider))
	if c.Transcription.Provider == "" {
		c.Transcription.Provider = TranscriptionHelper
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
	c.Transcription.APIKey = strings.TrimSpace(c.Transcription.APIKey)
	if c.Transcription.APIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.Transcription.APIKey = strings.TrimSpace(value)
		}
	}
	c.Transcription.BaseURL = strings.TrimSpace(c.Transcription.BaseURL)
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))
}

func (c *Config) normalizeArtifacts() {
	c.Artifacts.Backend = strings.ToLower(strings.TrimSpace(c.Artifacts.Backend))
	if c.Artifacts.Backend == "" {
		c.Artifacts.Backend = ArtifactBackendLocal
	}
	c.Artifacts.Endpoint = strings.TrimSpace(c.Artifacts.Endpoint)
	c.Artifacts.Bucket = strings.TrimSpace(c.Artifacts.Bucket)
	if c.Artifacts.AccessKey == "" {
		if value, ok := os.LookupEnv("MINIO_ACCESS_KEY"); ok {
			c.Artifacts.AccessKey = strings.TrimSpace(value)
		}
	}
	if c.Artifacts.SecretKey == "" {
		if value, ok := os.LookupEnv("MINIO_SECRET_KEY"); ok {
			c.Artifacts.SecretKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeScoring() {
	if c.Scoring.MergeEpsilon == 0 {
		c.Scoring.MergeEpsilon = defaultMergeEpsilon
	}
	if len(c.Scoring.TieOrder) == 0 {
		c.Scoring.TieOrder = append([]string(nil), defaultTieOrder...)
		return
	}
	order := make([]string, 0, len(c.Scoring.TieOrder))
	for _, name := range c.Scoring.TieOrder {
		if normalized := strings.ToLower(strings.TrimSpace(name)); normalized != "" {
			order = append(order, normalized)
		}
	}
	c.Scoring.TieOrder = order
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if len(c.Logging.StageOverrides) > 0 {
		overrides := make(map[string]string, len(c.Logging.StageOverrides))
		for stage, level := range c.Logging.StageOverrides {
			key := strings.ToLower(strings.TrimSpace(stage))
			if key == "" {
				continue
			}
			overrides[key] = strings.ToLower(strings.TrimSpace(level))
		}
		c.Logging.StageOverrides = overrides
	}
}

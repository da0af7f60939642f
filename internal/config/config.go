package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	LogDir      string `toml:"log_dir"`
	ArtifactDir string `toml:"artifact_dir"`
	WorkDir     string `toml:"work_dir"`
}

// Workflow contains configuration for the worker pool and its timing.
type Workflow struct {
	Workers            int `toml:"workers"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// Tools describes the external executables used by the analysis stages.
type Tools struct {
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
	// Helper is the analysis helper executable that speaks JSON on stdout
	// (frame comparison, OCR, spectral/MFCC similarity, source separation).
	Helper             string `toml:"helper"`
	CallTimeout        int    `toml:"call_timeout"`
	TimeoutRetries     int    `toml:"timeout_retries"`
	RetryBackoffMillis int    `toml:"retry_backoff_ms"`
}

// Transcription selects the speech-to-text backend used at high sensitivity.
type Transcription struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
	Language string `toml:"language"`
}

// Artifacts configures where rendered diff frames are stored.
type Artifacts struct {
	Backend   string `toml:"backend"`
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Scoring contains the weights and merge tolerances applied to every job.
// Values are frozen onto a job when it is created.
type Scoring struct {
	VideoWeight    float64  `toml:"video_weight"`
	AudioWeight    float64  `toml:"audio_weight"`
	SpectralWeight float64  `toml:"spectral_weight"`
	MFCCWeight     float64  `toml:"mfcc_weight"`
	MergeEpsilon   float64  `toml:"merge_epsilon"`
	TieOrder       []string `toml:"tie_order"`
}

// SensitivityProfile holds the tunables of one sensitivity level.
type SensitivityProfile struct {
	SampleInterval float64 `toml:"sample_interval"`
	// FrameAccurate subdivides SampleInterval down to roughly one sample per frame.
	FrameAccurate  bool    `toml:"frame_accurate"`
	SSIMThreshold  float64 `toml:"ssim_threshold"`
	MatchThreshold float64 `toml:"match_threshold"`
	OCR            bool    `toml:"ocr"`
	OCRInterval    float64 `toml:"ocr_interval"`
	Voice          bool    `toml:"voice"`
	VoiceWindow    float64 `toml:"voice_window"`
}

// Sensitivity groups the three preset levels.
type Sensitivity struct {
	Low    SensitivityProfile `toml:"low"`
	Medium SensitivityProfile `toml:"medium"`
	High   SensitivityProfile `toml:"high"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string            `toml:"format"`
	Level          string            `toml:"level"`
	RetentionDays  int               `toml:"retention_days"`
	StageOverrides map[string]string `toml:"stage_overrides"`
}

// Config encapsulates all configuration values for mediadiff.
//
// Configuration sections by subsystem:
//   - Paths: database, logs, rendered artifacts and scratch space
//   - Workflow: worker count, polling and heartbeat timing
//   - Tools: ffmpeg/ffprobe/helper executables and call deadlines
//   - Transcription: speech-to-text backend for voice analysis
//   - Artifacts: local or MinIO storage for diff frames
//   - Scoring: similarity weights and timeline merge tolerance
//   - Sensitivity: per-level sampling and threshold presets
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Workflow      Workflow      `toml:"workflow"`
	Tools         Tools         `toml:"tools"`
	Transcription Transcription `toml:"transcription"`
	Artifacts     Artifacts     `toml:"artifacts"`
	Scoring       Scoring       `toml:"scoring"`
	Sensitivity   Sensitivity   `toml:"sensitivity"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mediadiff.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon and CLI operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.WorkDir}
	if c.Artifacts.Backend == ArtifactBackendLocal {
		dirs = append(dirs, c.Paths.ArtifactDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the job database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "mediadiff.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "mediadiff.lock")
}

// FFmpegBinary returns the ffmpeg executable used for frame and audio extraction.
func (c *Config) FFmpegBinary() string {
	if v := strings.TrimSpace(c.Tools.FFmpeg); v != "" {
		return v
	}
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable used for media inspection.
func (c *Config) FFprobeBinary() string {
	if v := strings.TrimSpace(c.Tools.FFprobe); v != "" {
		return v
	}
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Profile returns the preset for a sensitivity level name. Unknown names
// report false.
func (c *Config) Profile(level string) (SensitivityProfile, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "low":
		return c.Sensitivity.Low, true
	case "medium":
		return c.Sensitivity.Medium, true
	case "high":
		return c.Sensitivity.High, true
	default:
		return SensitivityProfile{}, false
	}
}

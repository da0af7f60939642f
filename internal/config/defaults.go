package config

const (
	defaultConfigPath                = "~/.config/mediadiff/config.toml"
	defaultDataDir                   = "~/.local/share/mediadiff"
	defaultLogDir                    = "~/.local/share/mediadiff/logs"
	defaultArtifactDir               = "~/.local/share/mediadiff/artifacts"
	defaultWorkDir                   = "~/.cache/mediadiff/work"
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
	defaultLogRetentionDays          = 30
	defaultWorkers                   = 2
	defaultWorkflowHeartbeatInterval = 15
	defaultWorkflowHeartbeatTimeout  = 120
	defaultToolCallTimeout           = 120
	defaultToolTimeoutRetries        = 3
	defaultToolRetryBackoffMillis    = 500
	defaultTranscriptionModel        = "whisper-1"
	defaultMergeEpsilon              = 0.5
)

// Artifact storage backends.
const (
	ArtifactBackendLocal = "local"
	ArtifactBackendMinIO = "minio"
)

// Transcription providers.
const (
	TranscriptionHelper = "helper"
	TranscriptionOpenAI = "openai"
)

// Difference type names accepted in scoring.tie_order.
var defaultTieOrder = []string{"video", "audio", "ocr"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			LogDir:      defaultLogDir,
			ArtifactDir: defaultArtifactDir,
			WorkDir:     defaultWorkDir,
		},
		Workflow: Workflow{
			Workers:            defaultWorkers,
			QueuePollInterval:  5,
			ErrorRetryInterval: 10,
			HeartbeatInterval:  defaultWorkflowHeartbeatInterval,
			HeartbeatTimeout:   defaultWorkflowHeartbeatTimeout,
		},
		Tools: Tools{
			FFmpeg:             "ffmpeg",
			FFprobe:            "ffprobe",
			Helper:             "mediadiff-helper",
			CallTimeout:        defaultToolCallTimeout,
			TimeoutRetries:     defaultToolTimeoutRetries,
			RetryBackoffMillis: defaultToolRetryBackoffMillis,
		},
		Transcription: Transcription{
			Provider: TranscriptionHelper,
			Model:    defaultTranscriptionModel,
		},
		Artifacts: Artifacts{
			Backend: ArtifactBackendLocal,
			Bucket:  "mediadiff",
		},
		Scoring: Scoring{
			VideoWeight:    0.5,
			AudioWeight:    0.5,
			SpectralWeight: 0.5,
			MFCCWeight:     0.5,
			MergeEpsilon:   defaultMergeEpsilon,
			TieOrder:       append([]string(nil), defaultTieOrder...),
		},
		Sensitivity: Sensitivity{
			Low: SensitivityProfile{
				SampleInterval: 1.0,
				SSIMThreshold:  0.90,
				MatchThreshold: 0.85,
			},
			Medium: SensitivityProfile{
				SampleInterval: 0.5,
				SSIMThreshold:  0.93,
				MatchThreshold: 0.90,
				OCR:            true,
				OCRInterval:    1.0,
			},
			High: SensitivityProfile{
				SampleInterval: 0.5,
				FrameAccurate:  true,
				SSIMThreshold:  0.96,
				MatchThreshold: 0.95,
				OCR:            true,
				Voice:          true,
				VoiceWindow:    30,
			},
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

package sensitivity

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"

	"mediadiff/internal/config"
	"mediadiff/internal/jobs"
	"mediadiff/internal/services"
)

// Level is a validated sensitivity preset name.
type Level string

const (
	Low    Level = "low"
	Medium Level = "medium"
	High   Level = "high"
)

// Levels lists the presets from least to most sensitive.
var Levels = []Level{Low, Medium, High}

// ParseLevel validates a level name.
func ParseLevel(value string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(value))) {
	case Low:
		return Low, nil
	case Medium:
		return Medium, nil
	case High:
		return High, nil
	default:
		return "", services.Wrap(services.ErrValidation, "", "sensitivity", fmt.Sprintf("unknown sensitivity level %q (want low, medium or high)", value), nil)
	}
}

// Profile is the resolved preset for one level.
type Profile struct {
	Level          Level   `json:"level"`
	SampleInterval float64 `json:"sample_interval"`
	FrameAccurate  bool    `json:"frame_accurate"`
	SSIMThreshold  float64 `json:"ssim_threshold"`
	MatchThreshold float64 `json:"match_threshold"`
	OCR            bool    `json:"ocr"`
	// OCRInterval is the OCR cadence in seconds; 0 runs OCR on every sample.
	OCRInterval float64 `json:"ocr_interval"`
	Voice       bool    `json:"voice"`
	VoiceWindow float64 `json:"voice_window"`
	// Bands are the SSIM thresholds of this level and every less sensitive
	// level, ascending. A video run never spans samples from two bands.
	Bands []float64 `json:"bands,omitempty"`
}

// Weights are the score weights frozen onto a job.
type Weights struct {
	Video    float64 `json:"video"`
	Audio    float64 `json:"audio"`
	Spectral float64 `json:"spectral"`
	MFCC     float64 `json:"mfcc"`
}

// Settings is everything a job run needs from configuration.
type Settings struct {
	Profile      Profile  `json:"profile"`
	Weights      Weights  `json:"weights"`
	MergeEpsilon float64  `json:"merge_epsilon"`
	TieOrder     []string `json:"tie_order"`
}

// Resolve builds the frozen settings for level from cfg.
func Resolve(cfg *config.Config, level string) (Settings, error) {
	parsed, err := ParseLevel(level)
	if err != nil {
		return Settings{}, err
	}
	preset, ok := cfg.Profile(string(parsed))
	if !ok {
		return Settings{}, services.Wrap(services.ErrConfiguration, "", "sensitivity", fmt.Sprintf("no preset for %s", parsed), nil)
	}
	return Settings{
		Profile: Profile{
			Level:          parsed,
			SampleInterval: preset.SampleInterval,
			FrameAccurate:  preset.FrameAccurate,
			SSIMThreshold:  preset.SSIMThreshold,
			MatchThreshold: preset.MatchThreshold,
			OCR:            preset.OCR,
			OCRInterval:    preset.OCRInterval,
			Voice:          preset.Voice,
			VoiceWindow:    preset.VoiceWindow,
			Bands:          bands(cfg, preset.SSIMThreshold),
		},
		Weights: Weights{
			Video:    cfg.Scoring.VideoWeight,
			Audio:    cfg.Scoring.AudioWeight,
			Spectral: cfg.Scoring.SpectralWeight,
			MFCC:     cfg.Scoring.MFCCWeight,
		},
		MergeEpsilon: cfg.Scoring.MergeEpsilon,
		TieOrder:     append([]string(nil), cfg.Scoring.TieOrder...),
	}, nil
}

func bands(cfg *config.Config, threshold float64) []float64 {
	var out []float64
	for _, level := range Levels {
		preset, ok := cfg.Profile(string(level))
		if !ok || preset.SSIMThreshold > threshold {
			continue
		}
		if !slices.Contains(out, preset.SSIMThreshold) {
			out = append(out, preset.SSIMThreshold)
		}
	}
	slices.Sort(out)
	return out
}

// Encode serializes settings for the job row.
func (s Settings) Encode() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode settings: %w", err)
	}
	return string(data), nil
}

// Decode restores settings stored on a job row.
func Decode(raw string) (Settings, error) {
	var s Settings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Settings{}, services.Wrap(services.ErrConfiguration, "", "settings", "stored job settings are unreadable", err)
	}
	if _, err := ParseLevel(string(s.Profile.Level)); err != nil {
		return Settings{}, err
	}
	if s.Profile.SampleInterval <= 0 {
		return Settings{}, services.Wrap(services.ErrConfiguration, "", "settings", "stored sample interval must be positive", nil)
	}
	return s, nil
}

// TypeRank returns the tie-break position of a difference type. Types not
// named in the tie order sort last.
func (s Settings) TypeRank(t jobs.DifferenceType) int {
	group := "video"
	switch {
	case t == jobs.TypeOCRText:
		group = "ocr"
	case t.IsAudio():
		group = "audio"
	}
	for i, name := range s.TieOrder {
		if name == group {
			return i
		}
	}
	return len(s.TieOrder)
}

// Step returns the video sampling step for a stream at fps. Frame-accurate
// profiles subdivide the sample interval so there is roughly one sample per
// frame while the grid stays nested in the coarser levels' grids.
func (p Profile) Step(fps float64) float64 {
	if !p.FrameAccurate || fps <= 0 {
		return p.SampleInterval
	}
	k := math.Max(1, math.Round(p.SampleInterval*fps))
	return p.SampleInterval / k
}

// Band returns the index of the first band threshold above ssim, or -1 when
// ssim passes every threshold. Profiles without bands use SSIMThreshold alone.
func (p Profile) Band(ssim float64) int {
	thresholds := p.Bands
	if len(thresholds) == 0 {
		thresholds = []float64{p.SSIMThreshold}
	}
	for i, threshold := range thresholds {
		if ssim < threshold {
			return i
		}
	}
	return -1
}

// MergeGap is the largest gap between two flagged samples that still belong
// to the same run.
func (p Profile) MergeGap(step float64) float64 {
	return 1.5 * step
}

// OCREvery returns how many samples apart OCR runs on a grid with the given
// step, or 0 when OCR is disabled.
func (p Profile) OCREvery(step float64) int {
	if !p.OCR {
		return 0
	}
	if p.OCRInterval <= 0 || step <= 0 {
		return 1
	}
	return max(1, int(math.Round(p.OCRInterval/step)))
}

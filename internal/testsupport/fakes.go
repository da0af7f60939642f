package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"mediadiff/internal/capability"
	"mediadiff/internal/media/ffmpeg"
	"mediadiff/internal/media/ffprobe"
)

// Clip describes the synthetic content of one fake media file.
type Clip struct {
	Duration float64
	FPS      float64
	Width    int
	Height   int
	HasAudio bool
	// Corrupt makes the fake probe fail for this clip.
	Corrupt bool

	// Luma returns the frame content at t. Two frames compare with SSIM
	// 1 - |lumaA - lumaB|. Nil means a constant 0.5.
	Luma func(t float64) float64
	// Text returns the on-screen text at t.
	Text func(t float64) []string

	Loudness ffmpeg.Loudness
	// Signature identifies the audio content; equal signatures are identical
	// tracks, different ones have DifferentAudioSimilarity.
	Signature string
	// DelayMillis is the audio offset of the track relative to the picture.
	DelayMillis float64
	Vocals      float64
	Transcript  string
}

// DifferentAudioSimilarity is the spectral and MFCC similarity reported for
// tracks with different signatures.
const DifferentAudioSimilarity = 0.2

// Fakes implements every capability over a table of clips keyed by path.
type Fakes struct {
	mu    sync.Mutex
	clips map[string]Clip
	fails map[string]error

	// OnFrame runs before each frame extraction.
	OnFrame func(path string, t float64)

	FrameCalls  atomic.Int32
	RenderCalls atomic.Int32
	VoiceCalls  atomic.Int32
}

// NewFakes returns an empty fake capability table.
func NewFakes() *Fakes {
	return &Fakes{clips: map[string]Clip{}, fails: map[string]error{}}
}

// AddClip registers synthetic content for path.
func (f *Fakes) AddClip(path string, clip Clip) {
	if clip.FPS == 0 {
		clip.FPS = 25
	}
	if clip.Width == 0 {
		clip.Width, clip.Height = 1920, 1080
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clips[path] = clip
}

// Fail makes every call of operation return err.
func (f *Fakes) Fail(operation string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails[operation] = err
}

// Set returns the capability bundle backed by the fakes.
func (f *Fakes) Set() capability.Set {
	return capability.Set{
		Frames: f,
		Vision: f,
		OCR:    f,
		Audio:  f,
		Voice:  f,
		Diff:   f,
	}
}

// Inspect mimics ffprobe for the registered clips.
func (f *Fakes) Inspect(_ context.Context, _ string, path string) (ffprobe.Result, error) {
	clip, err := f.clip("probe", path)
	if err != nil {
		return ffprobe.Result{}, err
	}
	if clip.Corrupt {
		return ffprobe.Result{}, fmt.Errorf("%s: Invalid data found when processing input", path)
	}
	streams := []map[string]any{{
		"index":          0,
		"codec_type":     "video",
		"width":          clip.Width,
		"height":         clip.Height,
		"avg_frame_rate": fmt.Sprintf("%g/1", clip.FPS),
	}}
	if clip.HasAudio {
		streams = append(streams, map[string]any{"index": 1, "codec_type": "audio", "channels": 2})
	}
	payload, _ := json.Marshal(map[string]any{
		"streams": streams,
		"format":  map[string]any{"duration": fmt.Sprintf("%f", clip.Duration)},
	})
	return ffprobe.Parse(payload)
}

type fakeFrame struct {
	Luma float64  `json:"luma"`
	Text []string `json:"text"`
}

type fakeTrack struct {
	Path     string  `json:"path"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// ExtractFrame writes the clip's frame description to dest.
func (f *Fakes) ExtractFrame(_ context.Context, path string, t float64, dest string) error {
	f.FrameCalls.Add(1)
	if hook := f.OnFrame; hook != nil {
		hook(path, t)
	}
	clip, err := f.clip("extract-frame", path)
	if err != nil {
		return err
	}
	frame := fakeFrame{Luma: 0.5}
	if clip.Luma != nil {
		frame.Luma = clip.Luma(t)
	}
	if clip.Text != nil {
		frame.Text = clip.Text(t)
	}
	return writeJSON(dest, frame)
}

// CompareFrames derives SSIM from the frames' luma.
func (f *Fakes) CompareFrames(_ context.Context, a, b string) (capability.FrameSimilarity, error) {
	if err := f.failure("compare-frames"); err != nil {
		return capability.FrameSimilarity{}, err
	}
	var fa, fb fakeFrame
	if err := readJSON(a, &fa); err != nil {
		return capability.FrameSimilarity{}, err
	}
	if err := readJSON(b, &fb); err != nil {
		return capability.FrameSimilarity{}, err
	}
	sim := 1 - math.Abs(fa.Luma-fb.Luma)
	return capability.FrameSimilarity{Structural: sim, Histogram: sim}, nil
}

// ExtractText returns the frame's text with a fixed confidence.
func (f *Fakes) ExtractText(_ context.Context, frame string) ([]capability.TextSnippet, error) {
	if err := f.failure("ocr"); err != nil {
		return nil, err
	}
	var ff fakeFrame
	if err := readJSON(frame, &ff); err != nil {
		return nil, err
	}
	snippets := make([]capability.TextSnippet, 0, len(ff.Text))
	for _, text := range ff.Text {
		snippets = append(snippets, capability.TextSnippet{Text: text, Confidence: 0.9})
	}
	return snippets, nil
}

// ExtractAudio records which clip segment a track file stands for.
func (f *Fakes) ExtractAudio(_ context.Context, path string, start, duration float64, dest string) error {
	clip, err := f.clip("extract-audio", path)
	if err != nil {
		return err
	}
	if !clip.HasAudio {
		return fmt.Errorf("%s has no audio stream", path)
	}
	return writeJSON(dest, fakeTrack{Path: path, Start: start, Duration: duration})
}

// Loudness returns the clip's configured loudness.
func (f *Fakes) Loudness(_ context.Context, track string) (ffmpeg.Loudness, error) {
	clip, _, err := f.track("loudness", track)
	if err != nil {
		return ffmpeg.Loudness{}, err
	}
	return clip.Loudness, nil
}

// SpectralSimilarity compares the tracks' signatures.
func (f *Fakes) SpectralSimilarity(_ context.Context, a, b string) (float64, error) {
	return f.signatureSimilarity("spectral-similarity", a, b)
}

// MFCCSimilarity compares the tracks' signatures.
func (f *Fakes) MFCCSimilarity(_ context.Context, a, b string) (float64, error) {
	return f.signatureSimilarity("mfcc-similarity", a, b)
}

// SyncOffset returns the difference of the clips' delays.
func (f *Fakes) SyncOffset(_ context.Context, a, b string) (float64, error) {
	clipA, _, err := f.track("sync-offset", a)
	if err != nil {
		return 0, err
	}
	clipB, _, err := f.track("sync-offset", b)
	if err != nil {
		return 0, err
	}
	return clipB.DelayMillis - clipA.DelayMillis, nil
}

// SeparateSources returns the clip's vocal proportion.
func (f *Fakes) SeparateSources(_ context.Context, track string) (capability.Separation, error) {
	f.VoiceCalls.Add(1)
	clip, _, err := f.track("separate-sources", track)
	if err != nil {
		return capability.Separation{}, err
	}
	return capability.Separation{VocalsProportion: clip.Vocals, VocalsPath: track}, nil
}

// Transcribe returns the clip's transcript.
func (f *Fakes) Transcribe(_ context.Context, track string) (string, error) {
	clip, _, err := f.track("transcribe", track)
	if err != nil {
		return "", err
	}
	return clip.Transcript, nil
}

// RenderDiffMask writes a placeholder mask.
func (f *Fakes) RenderDiffMask(_ context.Context, a, b, dest string) error {
	f.RenderCalls.Add(1)
	if err := f.failure("render-diff-mask"); err != nil {
		return err
	}
	return writeJSON(dest, map[string]string{"a": a, "b": b})
}

func (f *Fakes) signatureSimilarity(operation, a, b string) (float64, error) {
	clipA, _, err := f.track(operation, a)
	if err != nil {
		return 0, err
	}
	clipB, _, err := f.track(operation, b)
	if err != nil {
		return 0, err
	}
	if clipA.Signature == clipB.Signature {
		return 1, nil
	}
	return DifferentAudioSimilarity, nil
}

func (f *Fakes) track(operation, track string) (Clip, fakeTrack, error) {
	if err := f.failure(operation); err != nil {
		return Clip{}, fakeTrack{}, err
	}
	var ft fakeTrack
	if err := readJSON(track, &ft); err != nil {
		return Clip{}, fakeTrack{}, err
	}
	clip, err := f.clip(operation, ft.Path)
	return clip, ft, err
}

func (f *Fakes) clip(operation, path string) (Clip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fails[operation]; err != nil {
		return Clip{}, err
	}
	clip, ok := f.clips[path]
	if !ok {
		return Clip{}, fmt.Errorf("no fake clip registered for %s", path)
	}
	return clip, nil
}

func (f *Fakes) failure(operation string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fails[operation]
}

func writeJSON(dest string, v any) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

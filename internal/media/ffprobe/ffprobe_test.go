package ffprobe

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video", Width: 1920, Height: 1080, AvgFrameRate: "30000/1001"},
			{CodecType: "audio"},
			{CodecType: "audio"},
		},
		Format: Format{Duration: "123.45"},
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("expected 1 video stream, got %d", result.VideoStreamCount())
	}
	if result.AudioStreamCount() != 2 {
		t.Fatalf("expected 2 audio streams, got %d", result.AudioStreamCount())
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	video, ok := result.PrimaryVideo()
	if !ok || video.Width != 1920 {
		t.Fatalf("unexpected primary video: %#v", video)
	}
	if fps := video.FrameRate(); math.Abs(fps-29.97) > 0.01 {
		t.Fatalf("unexpected fps: %v", fps)
	}
}

func TestDurationFallsBackToStreams(t *testing.T) {
	result := Result{Streams: []Stream{{Duration: "4.0"}, {Duration: "9.5"}}}
	if result.DurationSeconds() != 9.5 {
		t.Fatalf("expected stream duration fallback, got %v", result.DurationSeconds())
	}
	bad := Result{Format: Format{Duration: "bad"}}
	if !math.IsNaN(bad.DurationSeconds()) {
		t.Fatalf("expected NaN for malformed duration, got %v", bad.DurationSeconds())
	}
}

func TestFrameRateParsing(t *testing.T) {
	cases := []struct {
		stream Stream
		want   float64
	}{
		{Stream{AvgFrameRate: "25/1"}, 25},
		{Stream{AvgFrameRate: "0/0", RFrameRate: "24/1"}, 24},
		{Stream{RFrameRate: "50"}, 50},
		{Stream{RFrameRate: "x/y"}, 0},
	}
	for _, tc := range cases {
		if got := tc.stream.FrameRate(); got != tc.want {
			t.Fatalf("FrameRate(%#v) = %v, want %v", tc.stream, got, tc.want)
		}
	}
}

func TestInspectUsesBinary(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "ffprobe")
	body := "#!/bin/sh\necho '{\"streams\":[{\"codec_type\":\"video\",\"width\":640,\"height\":360,\"avg_frame_rate\":\"25/1\"}],\"format\":{\"duration\":\"10.0\"}}'\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	result, err := Inspect(context.Background(), script, "/media/sample.mp4")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if result.DurationSeconds() != 10 || len(result.RawJSON()) == 0 {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestInspectReportsFailure(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "ffprobe")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho 'Invalid data found' >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	if _, err := Inspect(context.Background(), script, "/media/corrupt.mp4"); err == nil {
		t.Fatal("expected error for failing ffprobe")
	}
	if _, err := Inspect(context.Background(), script, " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

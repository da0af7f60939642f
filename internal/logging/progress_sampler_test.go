package logging

import "testing"

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"default bucket size for zero", 0, 10},
		{"default bucket size for negative", -1, 10},
		{"custom bucket size", 5, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSamplerNilSampler(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "video") {
		t.Error("ShouldLog on nil sampler should always return true")
	}
	s.Reset()
}

func TestProgressSamplerStageChange(t *testing.T) {
	s := NewProgressSampler(10)

	if !s.ShouldLog(0, "video") {
		t.Error("first stage should log")
	}
	if s.ShouldLog(0, "video") {
		t.Error("same stage and percent should not log again")
	}
	if !s.ShouldLog(0, "  audio  ") {
		t.Error("different stage should log")
	}
	if s.lastStage != "audio" {
		t.Errorf("lastStage = %q, want audio (trimmed)", s.lastStage)
	}
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(10)
	s.ShouldLog(0, "video")

	cases := []struct {
		percent float64
		want    bool
	}{
		{5, false},
		{10, true},
		{19.9, false},
		{25, true},
		{24, false},
		{100, true},
		{140, false},
	}
	for _, tc := range cases {
		if got := s.ShouldLog(tc.percent, "video"); got != tc.want {
			t.Errorf("ShouldLog(%v) = %v, want %v", tc.percent, got, tc.want)
		}
	}
}

func TestProgressSamplerUnknownPercent(t *testing.T) {
	s := NewProgressSampler(10)
	if !s.ShouldLog(-1, "audio") {
		t.Error("stage change with unknown percent should log")
	}
	if s.ShouldLog(-1, "audio") {
		t.Error("unknown percent without stage change should not log")
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(10)
	s.ShouldLog(50, "video")
	s.Reset()
	if !s.ShouldLog(50, "video") {
		t.Error("after reset the same event should log again")
	}
}

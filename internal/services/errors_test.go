package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"mediadiff/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "video", "compare_frames", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"video", "compare_frames", "failed", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want services.ErrorKind
	}{
		{services.Wrap(services.ErrValidation, "jobs", "create", "unknown file", nil), services.KindValidation},
		{services.Wrap(services.ErrInvalidTransition, "jobs", "start", "not pending", nil), services.KindTransition},
		{services.Wrap(services.ErrMediaProbe, "probe", "inspect", "corrupt", nil), services.KindMediaProbe},
		{fmt.Errorf("outer: %w", services.Wrap(services.ErrStageTimeout, "audio", "loudness", "deadline", nil)), services.KindTimeout},
		{errors.New("plain"), services.KindUnknown},
		{nil, services.KindUnknown},
	}
	for _, tc := range cases {
		if got := services.Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestDetailsExtractsContext(t *testing.T) {
	cause := errors.New("exit status 1")
	err := fmt.Errorf("stage failed: %w", services.Wrap(services.ErrMediaProbe, "probe", "ffprobe", "emission file unreadable", cause))

	details := services.Details(err)
	if details.Kind != services.KindMediaProbe {
		t.Fatalf("unexpected kind %s", details.Kind)
	}
	if details.Stage != "probe" || details.Operation != "ffprobe" {
		t.Fatalf("unexpected context: %+v", details)
	}
	if details.Message != "emission file unreadable: exit status 1" {
		t.Fatalf("unexpected message %q", details.Message)
	}
	if details.Cause != cause {
		t.Fatalf("expected cause to be preserved")
	}
	if details.Hint == "" {
		t.Fatal("expected hint")
	}
}

func TestDetailsPlainError(t *testing.T) {
	details := services.Details(errors.New("disk full"))
	if details.Kind != services.KindUnknown || details.Message != "disk full" {
		t.Fatalf("unexpected details: %+v", details)
	}
}

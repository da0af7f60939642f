package audiodiff

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"mediadiff/internal/jobs"
	"mediadiff/internal/sensitivity"
	"mediadiff/internal/textutil"
)

const (
	// VocalPresence is the vocals proportion above which a segment is
	// considered to contain speech.
	VocalPresence = 0.1
	// VoiceSimilarityFloor flags segments whose vocal balance differs more
	// than this.
	VoiceSimilarityFloor = 0.8

	maxQuoteLength = 60
)

type segment struct {
	index    int
	start    float64
	duration float64
}

func (s segment) midpoint() float64 {
	return s.start + s.duration/2
}

func voiceSegments(profile sensitivity.Profile, duration float64) []segment {
	if !profile.Voice || profile.VoiceWindow <= 0 || duration <= 0 {
		return nil
	}
	var out []segment
	for i := 0; float64(i)*profile.VoiceWindow < duration; i++ {
		start := float64(i) * profile.VoiceWindow
		out = append(out, segment{index: i, start: start, duration: math.Min(profile.VoiceWindow, duration-start)})
	}
	return out
}

func (a *Analyzer) compareVoice(ctx context.Context, in Input, dir string, seg segment) (jobs.Difference, bool, error) {
	segA := filepath.Join(dir, fmt.Sprintf("voice-a-%04d.wav", seg.index))
	segB := filepath.Join(dir, fmt.Sprintf("voice-b-%04d.wav", seg.index))
	if err := a.audio.ExtractAudio(ctx, in.Acceptance.Path, seg.start, seg.duration, segA); err != nil {
		return jobs.Difference{}, false, err
	}
	if err := a.audio.ExtractAudio(ctx, in.Emission.Path, seg.start, seg.duration, segB); err != nil {
		return jobs.Difference{}, false, err
	}
	sepA, err := a.voice.SeparateSources(ctx, segA)
	if err != nil {
		return jobs.Difference{}, false, err
	}
	sepB, err := a.voice.SeparateSources(ctx, segB)
	if err != nil {
		return jobs.Difference{}, false, err
	}

	voiceSim := 1 - math.Abs(sepA.VocalsProportion-sepB.VocalsProportion)
	var (
		changed float64
		summary string
	)
	if sepA.VocalsProportion >= VocalPresence && sepB.VocalsProportion >= VocalPresence {
		textA, err := a.voice.Transcribe(ctx, vocalsOr(sepA.VocalsPath, segA))
		if err != nil {
			return jobs.Difference{}, false, err
		}
		textB, err := a.voice.Transcribe(ctx, vocalsOr(sepB.VocalsPath, segB))
		if err != nil {
			return jobs.Difference{}, false, err
		}
		changed, summary = transcriptDiff(textA, textB)
	}
	if voiceSim >= VoiceSimilarityFloor && summary == "" {
		return jobs.Difference{}, false, nil
	}

	deficit := math.Max(1-voiceSim, changed)
	var severity jobs.Severity
	switch {
	case deficit < 0.25:
		severity = jobs.SeverityLow
	case deficit < 0.5:
		severity = jobs.SeverityMedium
	default:
		severity = jobs.SeverityHigh
	}
	description := fmt.Sprintf("vocals %.0f%% vs %.0f%%", sepA.VocalsProportion*100, sepB.VocalsProportion*100)
	if summary != "" {
		description += "; transcript " + summary
	}
	return jobs.Difference{
		TimestampSeconds: seg.midpoint(),
		Type:             jobs.TypeAudioVoice,
		Severity:         severity,
		Confidence:       math.Min(1, 0.5+deficit/2),
		Description:      description,
	}, true, nil
}

func vocalsOr(vocals, fallback string) string {
	if strings.TrimSpace(vocals) != "" {
		return vocals
	}
	return fallback
}

// transcriptDiff word-diffs two transcripts. It returns the share of words
// that changed and a short summary, or (0, "") when the transcripts match.
func transcriptDiff(a, b string) (float64, string) {
	wordsA, wordsB := textutil.Words(a), textutil.Words(b)
	matcher := difflib.NewMatcher(wordsA, wordsB)
	var removed, added []string
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'd':
			removed = append(removed, wordsA[op.I1:op.I2]...)
		case 'i':
			added = append(added, wordsB[op.J1:op.J2]...)
		case 'r':
			removed = append(removed, wordsA[op.I1:op.I2]...)
			added = append(added, wordsB[op.J1:op.J2]...)
		}
	}
	if len(removed) == 0 && len(added) == 0 {
		return 0, ""
	}
	var parts []string
	if len(removed) > 0 {
		parts = append(parts, fmt.Sprintf("-%q", quote(removed)))
	}
	if len(added) > 0 {
		parts = append(parts, fmt.Sprintf("+%q", quote(added)))
	}
	return 1 - matcher.Ratio(), strings.Join(parts, " ")
}

func quote(words []string) string {
	runes := []rune(strings.Join(words, " "))
	if len(runes) > maxQuoteLength {
		return string(runes[:maxQuoteLength]) + "..."
	}
	return string(runes)
}

package videodiff

import (
	"fmt"
	"sort"

	"mediadiff/internal/capability"
	"mediadiff/internal/jobs"
	"mediadiff/internal/textutil"
)

// sameLineThreshold is the fingerprint cosine above which two OCR lines are
// considered the same text.
const sameLineThreshold = 0.9

type textSide string

const (
	sideAcceptance textSide = "acceptance"
	sideEmission   textSide = "emission"
)

type textKey struct {
	side textSide
	norm string
}

type textRun struct {
	text       string
	first      float64
	last       float64
	lastIndex  int
	confidence float64
}

// textTracker turns per-sample snippet sets into ocr_text differences. A
// snippet seen on consecutive OCR samples on the same side extends one entry.
type textTracker struct {
	open   map[textKey]*textRun
	closed []jobs.Difference
}

func newTextTracker() *textTracker {
	return &textTracker{open: map[textKey]*textRun{}}
}

func (tr *textTracker) observe(index int, t float64, a, b []capability.TextSnippet) {
	onlyA, onlyB := splitSnippets(a, b)
	for _, s := range onlyA {
		tr.extend(textKey{side: sideAcceptance, norm: textutil.Normalize(s.Text)}, s, index, t)
	}
	for _, s := range onlyB {
		tr.extend(textKey{side: sideEmission, norm: textutil.Normalize(s.Text)}, s, index, t)
	}
	for key, run := range tr.open {
		if run.lastIndex < index {
			tr.close(key, run)
		}
	}
}

func (tr *textTracker) extend(key textKey, s capability.TextSnippet, index int, t float64) {
	if run, ok := tr.open[key]; ok && run.lastIndex == index-1 {
		run.last = t
		run.lastIndex = index
		run.confidence = max(run.confidence, s.Confidence)
		return
	} else if ok && run.lastIndex == index {
		run.confidence = max(run.confidence, s.Confidence)
		return
	} else if ok {
		tr.close(key, run)
	}
	tr.open[key] = &textRun{text: s.Text, first: t, last: t, lastIndex: index, confidence: s.Confidence}
}

func (tr *textTracker) close(key textKey, run *textRun) {
	delete(tr.open, key)
	tr.closed = append(tr.closed, jobs.Difference{
		TimestampSeconds: run.first,
		DurationSeconds:  run.last - run.first,
		Type:             jobs.TypeOCRText,
		Severity:         jobs.SeverityLow,
		Confidence:       clamp01(run.confidence),
		Description:      fmt.Sprintf("text only in %s: %q", key.side, run.text),
	})
}

func (tr *textTracker) finish() []jobs.Difference {
	for key, run := range tr.open {
		tr.close(key, run)
	}
	sort.SliceStable(tr.closed, func(i, j int) bool {
		if tr.closed[i].TimestampSeconds != tr.closed[j].TimestampSeconds {
			return tr.closed[i].TimestampSeconds < tr.closed[j].TimestampSeconds
		}
		return tr.closed[i].Description < tr.closed[j].Description
	})
	return tr.closed
}

// splitSnippets partitions two snippet lists into the ones present only in a
// and only in b. Lines present on both sides are dropped.
func splitSnippets(a, b []capability.TextSnippet) (onlyA, onlyB []capability.TextSnippet) {
	matchedB := make([]bool, len(b))
	for _, sa := range a {
		found := false
		for j, sb := range b {
			if textutil.SameText(sa.Text, sb.Text, sameLineThreshold) {
				matchedB[j] = true
				found = true
			}
		}
		if !found {
			onlyA = append(onlyA, sa)
		}
	}
	for j, sb := range b {
		if !matchedB[j] {
			onlyB = append(onlyB, sb)
		}
	}
	return onlyA, onlyB
}

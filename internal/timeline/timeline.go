// Package timeline merges per-modality difference streams into the single
// ordered timeline stored for a job.
package timeline

import (
	"math"
	"sort"
	"strings"

	"mediadiff/internal/jobs"
)

// DefaultEpsilon is the coalescing window in seconds.
const DefaultEpsilon = 0.5

// Options controls merging.
type Options struct {
	// Epsilon is the largest gap between same-type entries that are still
	// coalesced into one.
	Epsilon float64
	// Rank orders entries that start at the same timestamp. Lower ranks sort
	// first; nil uses video, audio, OCR.
	Rank func(jobs.DifferenceType) int
}

// Merge coalesces entries of the same type that lie within Epsilon of each
// other and returns all entries sorted by timestamp. Entries of different
// types are never merged. The inputs are not modified.
func Merge(opts Options, streams ...[]jobs.Difference) []jobs.Difference {
	rank := opts.Rank
	if rank == nil {
		rank = defaultRank
	}
	epsilon := math.Max(opts.Epsilon, 0)

	byType := map[jobs.DifferenceType][]jobs.Difference{}
	var types []jobs.DifferenceType
	for _, stream := range streams {
		for _, d := range stream {
			if _, seen := byType[d.Type]; !seen {
				types = append(types, d.Type)
			}
			byType[d.Type] = append(byType[d.Type], d)
		}
	}

	merged := make([]jobs.Difference, 0)
	for _, t := range types {
		merged = append(merged, coalesce(byType[t], epsilon)...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].TimestampSeconds != merged[j].TimestampSeconds {
			return merged[i].TimestampSeconds < merged[j].TimestampSeconds
		}
		return rank(merged[i].Type) < rank(merged[j].Type)
	})
	return merged
}

func coalesce(entries []jobs.Difference, epsilon float64) []jobs.Difference {
	sorted := append([]jobs.Difference(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TimestampSeconds < sorted[j].TimestampSeconds
	})

	var (
		out     []jobs.Difference
		current *group
	)
	for _, d := range sorted {
		if current != nil && d.TimestampSeconds <= current.end+epsilon+1e-9 {
			current.add(d)
			continue
		}
		if current != nil {
			out = append(out, current.entry())
		}
		current = newGroup(d)
	}
	if current != nil {
		out = append(out, current.entry())
	}
	return out
}

type group struct {
	base         jobs.Difference
	end          float64
	descriptions []string
	ssim         *float64
}

func newGroup(d jobs.Difference) *group {
	g := &group{base: d, end: d.End()}
	g.addDescription(d.Description)
	if d.SSIMScore != nil {
		v := *d.SSIMScore
		g.ssim = &v
	}
	return g
}

func (g *group) add(d jobs.Difference) {
	g.end = math.Max(g.end, d.End())
	g.base.Confidence = math.Max(g.base.Confidence, d.Confidence)
	g.base.Severity = jobs.MaxSeverity(g.base.Severity, d.Severity)
	g.addDescription(d.Description)
	if d.SSIMScore != nil && (g.ssim == nil || *d.SSIMScore < *g.ssim) {
		v := *d.SSIMScore
		g.ssim = &v
	}
}

func (g *group) addDescription(desc string) {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return
	}
	for _, existing := range g.descriptions {
		if existing == desc {
			return
		}
	}
	g.descriptions = append(g.descriptions, desc)
}

func (g *group) entry() jobs.Difference {
	d := g.base
	d.DurationSeconds = g.end - d.TimestampSeconds
	d.Description = strings.Join(g.descriptions, "; ")
	d.SSIMScore = g.ssim
	return d
}

func defaultRank(t jobs.DifferenceType) int {
	switch {
	case t == jobs.TypeVideoFrame:
		return 0
	case t.IsAudio():
		return 1
	default:
		return 2
	}
}

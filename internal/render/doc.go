// Package render produces the visual difference artifacts for a job's
// flagged video spans.
//
// Each video_frame difference is rendered once, at the midpoint of its span,
// and keyed by the 0.1 s bucket of that timestamp. Rendering is idempotent:
// buckets already recorded for the job are skipped, and concurrent renders of
// the same bucket resolve to whichever location was recorded first.
package render

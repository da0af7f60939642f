// Package audiodiff compares the audio tracks of two media files: loudness,
// spectral and MFCC similarity, sync offset and, for profiles that enable it,
// per-segment voice separation with transcript diffs.
package audiodiff

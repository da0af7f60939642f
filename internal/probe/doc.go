// Package probe resolves catalog file ids to media metadata.
//
// A Prober runs ffprobe at most once per file id: results are kept in
// memory, concurrent lookups for the same id share one ffprobe call, and the
// metadata is written back to the catalog so later processes skip the probe
// entirely. Invalidate drops both caches.
package probe

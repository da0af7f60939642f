// Package workflow owns the comparison job lifecycle.
//
// The Manager validates and creates jobs, claims them (pending → processing),
// runs the fixed stage sequence (probe, video, audio, merge, score, render,
// persist) and writes the terminal outcome in one transaction. Each stage
// checkpoints its output and advances the job's progress so pollers can
// observe a run without locking. Cancellation is cooperative: a token checked
// at stage boundaries and inside the sampling loops, mirrored from the
// database flag by the heartbeat loop.
//
// Run starts the daemon worker pool: a bounded set of pull-based workers that
// claim pending jobs, plus a reclaimer that fails processing jobs whose
// heartbeat went stale so they can be retried.
//
// Stage detail is written to a per-job log file under the log directory;
// lifecycle events (claimed, completed, failed) go to the manager's logger.
package workflow

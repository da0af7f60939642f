// Package jobs persists comparison jobs, the media catalog and job results in
// SQLite.
//
// The Store owns schema initialization, the conditional pending→processing
// claim, monotonic progress, per-stage checkpoints, heartbeat tracking and
// the single transaction that finalizes a job together with its result,
// difference entries and rendered artifacts. Rows written by Finalize are
// never updated afterwards; re-analysis creates a new job.
//
// Schema changes bump schemaVersion in schema.go; older databases must be
// deleted to adopt the new schema.
package jobs

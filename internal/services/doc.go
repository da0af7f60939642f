// Package services defines shared utilities consumed by the pipeline stages
// and external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, worker slots, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so every failure carries
//     its stage and operation, and Details/Classify to turn them into log
//     fields and the message persisted on a failed job.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services

// Package sensitivity resolves a sensitivity level name into the concrete
// sampling grid, thresholds and scoring weights a job runs with.
//
// Settings are resolved once when a job is created and stored on the job row
// as JSON; every stage reads the frozen copy, so editing the configuration
// never changes how an existing job is analysed.
package sensitivity

// Package stage holds the primitives shared by the comparison pipeline
// stages: readiness reporting, the cooperative cancellation token and
// sampling-loop progress callbacks.
package stage

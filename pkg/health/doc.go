// Package health aggregates dependency probes for the health
// endpoint. The service is healthy iff the store answers, at least one
// worker is consuming and the working directories exist.
package health

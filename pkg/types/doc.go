/*
Package types defines the core data structures shared across all
PalletScan components.

This package contains the domain model for the vision-processing
pipeline: tasks, jobs, result payloads, detections, and the status
enums that drive the task state machine.

# Task Lifecycle

	pending ──(worker dequeue)──► processing
	processing ──(pipeline ok)──► completed   [terminal]
	processing ──(pipeline error)──► failed   [terminal]

Terminal states are absorbing. A task that never dequeues remains
pending; retries re-enqueue under a fresh task id rather than reviving
a terminal row.

# Design Principles

 1. Pure data structures with no behavior beyond small predicates
 2. JSON tags mirror the wire format of the HTTP API and the bus
 3. String-typed enums for debuggability
 4. No external dependencies beyond the standard library
*/
package types

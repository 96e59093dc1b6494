/*
Package worker runs the job loop.

Each worker consumes one job at a time from the bus and drives it
through the task state machine:

	pending ──dequeue──► processing ──pipeline ok──► completed
	                          │
	                          └──pipeline error──► failed

The processing row is written before the pipeline starts, so polling
clients see the task as soon as it leaves the queue. Terminal payloads
are committed to the durable store first; only then is the transient
cache entry cleared and the message acknowledged. A store write
failure therefore leads to redelivery, which the idempotent upsert
absorbs.
*/
package worker

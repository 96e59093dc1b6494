/*
Package storage provides durable persistence for tasks and results.

Two tables back the service: vision_tasks holds one row per submitted
task (status plus retention window) and vision_results holds the full
JSON payload for tasks that reached a terminal state. Terminal writes
go through a single transaction so a result row never exists without a
matching task row. The has_result flag exposed on listings is computed
with an EXISTS subquery rather than stored.

The schema is created on open if missing, so a fresh database needs no
migration step.
*/
package storage

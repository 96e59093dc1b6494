/*
Package log provides structured logging for all PalletScan components.

Built on zerolog, it exposes a global logger initialized once at
process start plus helpers for child loggers carrying common fields
(component, task_id, worker_id). Console output is the default;
deployments switch to JSON via Config.
*/
package log

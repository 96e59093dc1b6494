/*
Package cache implements the transient Redis-backed state cache.

While a task is in flight the worker writes coarse progress tokens
under vision:state:<task_id> with a short TTL. The API's polling
fallback reads them when no durable result exists yet. The worker
clears the entry only after the terminal store write succeeds, so a
poller never sees stale in-flight state for a finished task.
*/
package cache

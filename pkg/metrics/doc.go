/*
Package metrics defines the Prometheus collectors shared by the API
and worker processes.

All collectors are package-level and registered in init(); both
binaries expose them at /metrics via Handler(). The Timer helper wraps
the start-observe pattern used around pipeline stages and API requests.
*/
package metrics

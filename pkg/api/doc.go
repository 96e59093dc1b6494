/*
Package api implements the HTTP ingress.

Uploads are validated (content type, extension, size), persisted under
a UUID filename and enqueued on the bus; the client polls the returned
task id. Result queries walk three tiers: the durable result, the task
row, then the transient progress state, answering 200, 202 or 404.

The wire payload is a strict projection of the stored result; internal
fields such as the summary block and decode provenance never leave the
service.
*/
package api

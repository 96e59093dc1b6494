/*
Package bus connects the API and workers through a durable RabbitMQ
work queue.

Producers call Enqueue, which mints a task id, publishes a persistent
JSON message (optionally gzip compressed) and records a PENDING token
on the result backend. Consumers run with prefetch 1 and acknowledge
only after the handler returns, so delivery is at-least-once and a
worker crash mid-job causes redelivery rather than loss. Handler
errors wrapped with Requeue are nacked back onto the queue; plain
errors mean a terminal failure was already committed and the message
is discarded.

The result backend is a narrow interface over the transient cache;
progress tokens flow through it, never through the queue itself.
*/
package bus

/*
Package events provides an in-process broker for task lifecycle events.

The worker publishes task.started/completed/failed and model load
events; subscribers (metrics updaters, tests) receive them over
buffered channels. Delivery is best-effort: a subscriber that falls
behind loses events rather than blocking the publisher.
*/
package events

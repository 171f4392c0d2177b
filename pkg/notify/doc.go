/*
Package notify implements the NotificationService a Subscriber pushes
stream-size observations through (spec §6), plus the two execution
pools spec §5 requires: CachedExecutor (unbounded, per-subscriber
delivery) and FixedPool (a small shared pool for fallback polling).

Broker is an in-memory, single-process NotificationService: Publish
fans an event out to every current Subscribe-r of a feed, each
delivered on that subscription's own Executor.
*/
package notify

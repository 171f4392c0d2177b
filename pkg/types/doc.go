/*
Package types defines the core data structures shared across streamsched:
stream and schedule identifiers, the stream-size schedule spec, the
watermark snapshot a ScheduleStore persists, and the sentinel error kinds
the rest of the module wraps.

These types carry no behavior beyond small value-type helpers (ScheduleId
ordering, threshold computation, spec validation) — everything stateful
lives in pkg/scheduler.
*/
package types

/*
Package scheduler implements the Stream-Size Scheduler core of spec §4:
Task (a schedule's watermark and active/suspended state machine, §4.3),
Subscriber (one per distinct stream, translating push notifications and
fallback polls into a monotone observation feed for its tasks, §4.2),
and Registry (the streamId/scheduleId façade applications call through,
§4.1).

Registry's mutex covers the map portion of adding a task and, for a
stream seen for the first time, starting its new Subscriber (feed
subscription and first poll timer); the blocking probe that seeds a
fresh watermark runs after the mutex is released, via Subscriber's Reserve/SeedAndDeliver split. This
keeps concurrent schedule/delete calls on the same stream race-free
without holding the registry lock across a probe call (spec §5).
*/
package scheduler

/*
Package store implements the persistent ScheduleStore a Registry writes
to only when a caller requests persist=true (spec §6). BoltScheduleStore
is the reference implementation: one bbolt bucket, JSON-encoded
TaskSnapshot values keyed by the schedule's canonical string id, which
sorts bbolt's key-ordered iteration into ScheduleId's natural order for
free.
*/
package store

/*
Package dispatch implements the ProgramDispatcher a firing ScheduleTask
submits a run to (spec §4.3, §6). ContainerdDispatcher is the reference
implementation: each firing becomes a fresh, unwaited containerd task,
keyed so a refire retry targets the same container instead of leaking a
new one per attempt.
*/
package dispatch

package types

import (
	"fmt"
	"strings"
)

// StreamId identifies a named data stream within a namespace.
type StreamId struct {
	Namespace string
	Name      string
}

func (s StreamId) String() string {
	return s.Namespace + ":" + s.Name
}

// FeedName is the per-stream notification feed the Subscriber subscribes
// to: "{streamName}Size" in the stream's namespace.
func (s StreamId) FeedName() string {
	return s.Name + "Size"
}

// ScheduleId identifies one schedule. It has a total order given by the
// lexicographic concatenation of its components joined with ":" — the
// same order a range scan over scheduleMap relies on for deleteAll and
// listIds. No component may contain ":", or the prefix-successor scan in
// Registry.ListIds would silently include or exclude the wrong
// entries.
type ScheduleId struct {
	Namespace    string
	Application  string
	ProgramType  string
	ProgramName  string
	ScheduleName string
}

// String renders the canonical "ns:app:type:prog:sched" identifier.
func (id ScheduleId) String() string {
	return strings.Join([]string{
		id.Namespace, id.Application, id.ProgramType, id.ProgramName, id.ScheduleName,
	}, ":")
}

// Less reports whether id sorts before other in ScheduleId's natural
// (string) order.
func (id ScheduleId) Less(other ScheduleId) bool {
	return id.String() < other.String()
}

// ProgramPrefix is the "ns:app:type:prog:" prefix shared by every
// schedule belonging to one program, used by deleteAll/listIds.
func ProgramPrefix(namespace, application, programType, programName string) string {
	return strings.Join([]string{namespace, application, programType, programName}, ":") + ":"
}

// PrefixSuccessor returns the lexicographically smallest string greater
// than every string with the given prefix, by incrementing the prefix's
// last byte. Only valid because no ScheduleId component may contain the
// delimiter byte (see Open Question (c)).
func PrefixSuccessor(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	// prefix is all 0xff bytes; there is no successor, so match everything.
	return ""
}

// ProgramRef identifies the program a schedule drives a run of. It is
// opaque to the scheduler core; ProgramType and the ref together are
// handed to the ProgramDispatcher verbatim.
type ProgramRef struct {
	Namespace   string
	Application string
	ProgramType string
	ProgramName string
}

// ScheduleSpec is the immutable definition of a stream-size schedule, as
// supplied by the caller of Registry.Schedule.
type ScheduleSpec struct {
	ScheduleName string
	StreamName   string
	// DataTriggerMB is the accumulated-byte threshold, in mebibytes,
	// that must be crossed before the schedule fires again. Must be >= 1.
	DataTriggerMB int
}

// ThresholdBytes returns the firing threshold in bytes: DataTriggerMB * 2^20.
func (s ScheduleSpec) ThresholdBytes() int64 {
	return int64(s.DataTriggerMB) << 20
}

// Validate reports whether the spec is a well-formed stream-size
// schedule. Registry.Schedule fails with ErrInvalidArgument when this
// does not hold.
func (s ScheduleSpec) Validate() error {
	if s.DataTriggerMB < 1 {
		return fmt.Errorf("%w: dataTriggerMB must be >= 1, got %d", ErrInvalidArgument, s.DataTriggerMB)
	}
	if s.StreamName == "" {
		return fmt.Errorf("%w: streamName must not be empty", ErrInvalidArgument)
	}
	if s.ScheduleName == "" {
		return fmt.Errorf("%w: scheduleName must not be empty", ErrInvalidArgument)
	}
	return nil
}

// StreamConfig is the probe-ready form of a StreamId, as resolved by
// StreamAdmin.GetConfig. Its fields are opaque to the scheduler core and
// exist only to be handed back to StreamAdmin.FetchStreamSize.
type StreamConfig struct {
	StreamId StreamId
	// Location is the backing store's address for this stream: a
	// filesystem path for a local directory-backed stream, or an
	// opaque URI for any other StreamAdmin implementation.
	Location string
}

// SizeObservation is a (size, ts) pair reported to a Subscriber, either
// from a notification or from a poll.
type SizeObservation struct {
	Size int64 // bytes
	Ts   int64 // milliseconds, wall clock
}

// TaskSnapshot is the persisted view of one ScheduleTask, written by a
// ScheduleStore implementation when persist=true. It carries exactly the
// watermark state needed to resume a task without re-probing.
type TaskSnapshot struct {
	ScheduleId ScheduleId
	Program    ProgramRef
	Spec       ScheduleSpec
	BaseSize   int64
	BaseTs     int64
	Active     bool
}

// RunState is the Registry.State() result for one schedule.
type RunState string

const (
	RunStateNotFound  RunState = "NOT_FOUND"
	RunStateScheduled RunState = "SCHEDULED"
	RunStateSuspended RunState = "SUSPENDED"
)

// DispatchArgs are the arguments a firing hands to the ProgramDispatcher,
// per §4.3.
type DispatchArgs struct {
	ScheduleName            string
	LogicalStartTime        int64
	RunDataSize             int64
	PastRunLogicalStartTime int64
	PastRunDataSize         int64
}

package types

import "errors"

// Sentinel error kinds per §7. Wrap with fmt.Errorf("...: %w", ErrX) and
// test with errors.Is, the same convention the rest of the module uses
// for wrapped errors.
var (
	// ErrNotFound is returned when a schedule identifier is unknown to
	// the registry.
	ErrNotFound = errors.New("schedule not found")

	// ErrInvalidArgument is returned when a ScheduleSpec is not a
	// well-formed stream-size schedule.
	ErrInvalidArgument = errors.New("invalid schedule argument")

	// ErrFeedError is returned when a Subscriber fails to subscribe to
	// its stream's notification feed for a reason other than the feed
	// not existing.
	ErrFeedError = errors.New("notification feed subscribe failed")

	// ErrFeedNotFound is returned when a Subscriber's notification feed
	// does not exist.
	ErrFeedNotFound = errors.New("notification feed not found")

	// ErrProbe is returned when a StreamAdmin size query fails.
	ErrProbe = errors.New("stream size probe failed")

	// ErrDispatch is returned when a ProgramDispatcher run fails and the
	// failure does not request an immediate refire.
	ErrDispatch = errors.New("program dispatch failed")

	// ErrDispatchRefire is returned when a ProgramDispatcher run fails
	// and the failure requests an immediate refire (§4.3's retry rule).
	ErrDispatchRefire = errors.New("program dispatch failed, refire requested")

	// ErrAlreadyExists is returned by Subscriber.AddTask when a task is
	// already registered for a ScheduleId.
	ErrAlreadyExists = errors.New("schedule already exists")
)

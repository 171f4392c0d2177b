package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/streamsched/pkg/dispatch"
	"github.com/cuemby/streamsched/pkg/metrics"
	"github.com/cuemby/streamsched/pkg/notify"
	"github.com/cuemby/streamsched/pkg/probe"
	"github.com/cuemby/streamsched/pkg/store"
	"github.com/cuemby/streamsched/pkg/types"
)

// UnseededWatermark requests that schedule take a fresh probe to seed a
// new Task's watermark, rather than using a caller-supplied pair.
const UnseededWatermark int64 = unsetWatermark

// Registry is the Scheduler Registry façade of spec §4.1: two maps
// (streamId→Subscriber, scheduleId→Subscriber) and the
// create/suspend/resume/delete/query operations on top.
//
// mu is the single mutual-exclusion region covering "look up or create
// Subscriber, then add/remove Task" (§4.1). It is held across the map
// work and, when a stream has no Subscriber yet, across the new
// Subscriber's start (the feed Subscribe call and arming its first poll
// timer). Probing to seed a watermark happens after mu is released.
type Registry struct {
	admin        probe.StreamAdmin
	notifier     notify.NotificationService
	dispatcher   dispatch.ProgramDispatcher
	store        store.ScheduleStore
	pollPool     notify.Executor
	pollingDelay time.Duration
	logger       zerolog.Logger

	mu          sync.Mutex
	streamMap   map[types.StreamId]*Subscriber
	scheduleMap map[types.ScheduleId]*Subscriber
}

// Deps bundles the Registry's external collaborators (spec §6).
type Deps struct {
	Admin        probe.StreamAdmin
	Notifier     notify.NotificationService
	Dispatcher   dispatch.ProgramDispatcher
	Store        store.ScheduleStore
	PollPool     notify.Executor
	PollingDelay time.Duration
	Logger       zerolog.Logger
}

// NewRegistry constructs an empty Registry wired to deps.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		admin:        deps.Admin,
		notifier:     deps.Notifier,
		dispatcher:   deps.Dispatcher,
		store:        deps.Store,
		pollPool:     deps.PollPool,
		pollingDelay: deps.PollingDelay,
		logger:       deps.Logger,
		streamMap:    make(map[types.StreamId]*Subscriber),
		scheduleMap:  make(map[types.ScheduleId]*Subscriber),
	}
}

func scheduleIdFor(program types.ProgramRef, scheduleName string) types.ScheduleId {
	return types.ScheduleId{
		Namespace:    program.Namespace,
		Application:  program.Application,
		ProgramType:  program.ProgramType,
		ProgramName:  program.ProgramName,
		ScheduleName: scheduleName,
	}
}

// Schedule creates a Task for spec.ScheduleName, active and seeded by a
// fresh probe, persisting it to the store.
func (r *Registry) Schedule(ctx context.Context, program types.ProgramRef, spec types.ScheduleSpec) error {
	return r.ScheduleWithState(ctx, program, spec, UnseededWatermark, UnseededWatermark, true, true)
}

// ScheduleWithState is Schedule with the initial-state option of §4.1,
// used during recovery: baseSize/baseTs of UnseededWatermark requests a
// fresh probe seed; any other pair is used verbatim. persist=false
// avoids re-persisting a Task already known to the store.
func (r *Registry) ScheduleWithState(ctx context.Context, program types.ProgramRef, spec types.ScheduleSpec, baseSize, baseTs int64, active, persist bool) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	scheduleID := scheduleIdFor(program, spec.ScheduleName)
	streamID := types.StreamId{Namespace: program.Namespace, Name: spec.StreamName}

	r.mu.Lock()
	if _, exists := r.scheduleMap[scheduleID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", types.ErrAlreadyExists, scheduleID)
	}

	sub, existed := r.streamMap[streamID]
	if !existed {
		sub = NewSubscriber(streamID, r.admin, r.notifier, r.pollPool, r.pollingDelay, r.logger)
		if err := sub.start(); err != nil {
			r.mu.Unlock()
			return err
		}
		r.streamMap[streamID] = sub
	}

	task := NewTask(scheduleID, program, spec, baseSize, baseTs, active, r.dispatcher, r.logger)
	if err := sub.Reserve(task, active); err != nil {
		// Another caller beat us to the schedule name between the
		// scheduleMap check above and here; scheduleMap is the source
		// of truth so this should not happen, but report it the same
		// way.
		r.mu.Unlock()
		return err
	}
	r.scheduleMap[scheduleID] = sub
	r.mu.Unlock()

	if err := sub.SeedAndDeliver(ctx, task, baseSize, baseTs); err != nil {
		r.rollbackFailedAdd(scheduleID, streamID, sub)
		return err
	}

	if persist && r.store != nil {
		if err := r.store.Upsert(task.Snapshot()); err != nil {
			r.logger.Warn().Err(err).Str("schedule_id", scheduleID.String()).Msg("failed to persist new schedule")
		}
	}

	r.refreshSubscriberGauge()
	return nil
}

// rollbackFailedAdd undoes a Reserve whose SeedAndDeliver failed:
// removes the schedule from both maps and, if the Subscriber is still
// registered for the stream and is now empty, cancels and removes it too.
func (r *Registry) rollbackFailedAdd(scheduleID types.ScheduleId, streamID types.StreamId, sub *Subscriber) {
	sub.RemoveTask(scheduleID)

	r.mu.Lock()
	delete(r.scheduleMap, scheduleID)
	removeSub := r.streamMap[streamID] == sub && sub.TaskCount() == 0
	if removeSub {
		delete(r.streamMap, streamID)
	}
	r.mu.Unlock()

	if removeSub {
		sub.cancel()
	}
	r.refreshSubscriberGauge()
}

// ScheduleMany applies Schedule to each spec in order. It is not
// atomic: a later failure leaves earlier successes in place, and
// processing continues past a failed entry since each spec is
// independent. The returned error, if any, joins every per-spec
// failure via errors.Join.
func (r *Registry) ScheduleMany(ctx context.Context, program types.ProgramRef, specs []types.ScheduleSpec) error {
	var errs []error
	for _, spec := range specs {
		if err := r.Schedule(ctx, program, spec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", spec.ScheduleName, err))
		}
	}
	return errors.Join(errs...)
}

// Suspend toggles id's Task to SUSPENDED. Idempotent: suspending an
// already-suspended task is a no-op, not an error.
func (r *Registry) Suspend(id types.ScheduleId) error {
	sub, ok := r.lookupSubscriber(id)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	found, _ := sub.SuspendTask(id)
	if !found {
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	return nil
}

// Resume toggles id's Task to ACTIVE. Idempotent, and never re-fires
// historical triggers that happened while suspended: see Subscriber's
// resume wake-up, which only seeds a fresh watermark.
func (r *Registry) Resume(ctx context.Context, id types.ScheduleId) error {
	sub, ok := r.lookupSubscriber(id)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	found, _, err := sub.ResumeTask(ctx, id)
	if !found {
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	return err
}

// Delete removes id's Task. If its Subscriber becomes empty, cancels
// the Subscriber's subscription and polling and removes it too.
func (r *Registry) Delete(id types.ScheduleId) error {
	r.mu.Lock()
	sub, ok := r.scheduleMap[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	delete(r.scheduleMap, id)
	r.mu.Unlock()

	removed, _ := sub.RemoveTask(id)
	if !removed {
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}

	if r.store != nil {
		if err := r.store.Delete(id); err != nil {
			r.logger.Warn().Err(err).Str("schedule_id", id.String()).Msg("failed to delete persisted schedule")
		}
	}

	r.mu.Lock()
	removeSub := r.streamMap[sub.StreamID()] == sub && sub.TaskCount() == 0
	if removeSub {
		delete(r.streamMap, sub.StreamID())
	}
	r.mu.Unlock()

	if removeSub {
		sub.cancel()
	}
	r.refreshSubscriberGauge()
	return nil
}

// DeleteAll deletes every schedule whose ScheduleId begins with
// "ns:app:type:prog:", via a range scan over scheduleMap using the
// prefix and its prefix-successor.
func (r *Registry) DeleteAll(namespace, application, programType, programName string) error {
	ids := r.ListIds(namespace, application, programType, programName)
	var errs []error
	for _, id := range ids {
		if err := r.Delete(id); err != nil && !errors.Is(err, types.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ListIds returns, in ScheduleId's natural order, every schedule
// belonging to (namespace, application, programType, programName).
func (r *Registry) ListIds(namespace, application, programType, programName string) []types.ScheduleId {
	prefix := types.ProgramPrefix(namespace, application, programType, programName)
	successor := types.PrefixSuccessor(prefix)

	r.mu.Lock()
	ids := make([]types.ScheduleId, 0, len(r.scheduleMap))
	for id := range r.scheduleMap {
		s := id.String()
		if s >= prefix && (successor == "" || s < successor) {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}

// State returns NOT_FOUND, SCHEDULED, or SUSPENDED for id.
func (r *Registry) State(id types.ScheduleId) types.RunState {
	sub, ok := r.lookupSubscriber(id)
	if !ok {
		return types.RunStateNotFound
	}
	task, ok := sub.GetTask(id)
	if !ok {
		return types.RunStateNotFound
	}
	if task.IsActive() {
		return types.RunStateScheduled
	}
	return types.RunStateSuspended
}

// NextRuntimes always returns an empty sequence: size-triggered
// schedules have no predictable next time (§4.1).
func (r *Registry) NextRuntimes(types.ScheduleId) []int64 {
	return nil
}

func (r *Registry) lookupSubscriber(id types.ScheduleId) (*Subscriber, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.scheduleMap[id]
	return sub, ok
}

func (r *Registry) refreshSubscriberGauge() {
	r.mu.Lock()
	n := len(r.streamMap)
	r.mu.Unlock()
	metrics.SubscribersActive.Set(float64(n))
}

// MetricsSnapshot reports registry-wide counts for metrics.Collector to
// sample on an interval, since scheduled/suspended counts otherwise only
// change on the Schedule/Suspend/Resume/Delete hot path.
func (r *Registry) MetricsSnapshot() metrics.RegistrySnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := metrics.RegistrySnapshot{ActiveSubscribers: len(r.streamMap)}
	for id, sub := range r.scheduleMap {
		task, ok := sub.GetTask(id)
		if !ok {
			continue
		}
		if task.IsActive() {
			snap.ScheduledCount++
		} else {
			snap.SuspendedCount++
		}
	}
	return snap
}

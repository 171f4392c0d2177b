package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/streamsched/pkg/log"
	"github.com/cuemby/streamsched/pkg/metrics"
	"github.com/cuemby/streamsched/pkg/notify"
	"github.com/cuemby/streamsched/pkg/probe"
	"github.com/cuemby/streamsched/pkg/types"
)

// unsetWatermark is the addTask sentinel requesting a fresh probe seed
// rather than a caller-supplied watermark (spec §4.1's initial-state
// option).
const unsetWatermark int64 = -1

// Subscriber translates a noisy, bursty stream of size observations —
// from push notifications and fallback polls — into a single monotone
// signal delivered to each of its Tasks (spec §4.2).
//
// Several guards protect disjoint state: tasksMu covers the task set and
// activeTaskCount; obsMu covers lastObservation; pollMu covers the
// single outstanding poll timer; degradeMu covers the consecutive poll
// failure count. None is held across a blocking call except the resume
// wake-up probe, which is documented as exceptional.
type Subscriber struct {
	streamID   types.StreamId
	instanceID string
	admin      probe.StreamAdmin
	timed      *probe.TimedProbe
	notifier   notify.NotificationService

	notifyExecutor notify.Executor // per-subscriber, cached/unbounded
	pollPool       notify.Executor // shared fixed pool, injected by Registry

	pollingDelay time.Duration
	logger       zerolog.Logger

	configOnce sync.Once
	config     types.StreamConfig
	configErr  error

	tasksMu         sync.RWMutex
	tasks           map[types.ScheduleId]*Task
	activeTaskCount int

	obsMu           sync.Mutex
	lastObservation *types.SizeObservation

	pollMu    sync.Mutex
	pollTimer *time.Timer

	subMu        sync.Mutex
	subscription notify.Cancellable

	degradeMu        sync.Mutex
	pollFailures     int
	pushOnlyDegraded bool
}

// degradedPollFailureThreshold is the number of consecutive poll probe
// failures before a stream is logged as degraded to push-only operation
// (spec §7's "a persistently unreachable stream admin degrades the
// system to push-only operation").
const degradedPollFailureThreshold = 3

// NewSubscriber constructs a Subscriber for streamID. Call start before
// adding any task.
func NewSubscriber(streamID types.StreamId, admin probe.StreamAdmin, notifier notify.NotificationService, pollPool notify.Executor, pollingDelay time.Duration, logger zerolog.Logger) *Subscriber {
	instanceID := uuid.NewString()
	return &Subscriber{
		streamID:       streamID,
		instanceID:     instanceID,
		admin:          admin,
		timed:          probe.NewTimedProbe(admin),
		notifier:       notifier,
		notifyExecutor: notify.NewCachedExecutor(),
		pollPool:       pollPool,
		pollingDelay:   pollingDelay,
		logger:         log.WithFields(logger, map[string]string{"stream_id": streamID.String(), "subscriber_id": instanceID}),
		tasks:          make(map[types.ScheduleId]*Task),
	}
}

// start subscribes to the stream's notification feed and begins the
// polling cadence. On failure the Subscriber must not be registered by
// the caller (spec §4.2).
func (s *Subscriber) start() error {
	feed := notify.StreamSizeFeed(s.streamID)
	cancellable, err := s.notifier.Subscribe(feed, func(e notify.Event) {
		s.handleObservation(context.Background(), types.SizeObservation{Size: e.Size, Ts: e.Timestamp}, "notification")
	}, s.notifyExecutor)
	if err != nil {
		return err
	}

	s.subMu.Lock()
	s.subscription = cancellable
	s.subMu.Unlock()

	s.pollMu.Lock()
	s.schedulePollLocked()
	s.pollMu.Unlock()

	return nil
}

// cancel cancels the pending poll and the notification subscription. It
// does not remove the Subscriber from any registry.
func (s *Subscriber) cancel() {
	s.pollMu.Lock()
	if s.pollTimer != nil {
		s.pollTimer.Stop()
	}
	s.pollMu.Unlock()

	s.subMu.Lock()
	if s.subscription != nil {
		s.subscription.Cancel()
	}
	s.subMu.Unlock()
}

// Reserve inserts task into tasks and, if active, increments
// activeTaskCount: the fast, map-only portion of §4.2's addTask. The
// Registry calls this while holding its structural mutex, per §4.1's
// "look up or create Subscriber, then add/remove Task" requirement, so
// that a concurrent delete of the stream's last task cannot race with a
// concurrent add to the same stream.
func (s *Subscriber) Reserve(task *Task, active bool) error {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	if _, exists := s.tasks[task.ScheduleId]; exists {
		return fmt.Errorf("%w: %s", types.ErrAlreadyExists, task.ScheduleId)
	}
	s.tasks[task.ScheduleId] = task
	if active {
		s.activeTaskCount++
	}
	return nil
}

// SeedAndDeliver performs addTask's remaining steps: seed the
// watermark — probing when baseSize/baseTs is unsetWatermark — and
// deliver lastObservation, if any, to every currently active task. It
// is called after Reserve and without the Registry mutex held, since
// seeding may block on a probe (§5). On error the caller must undo the
// reservation via RemoveTask.
func (s *Subscriber) SeedAndDeliver(ctx context.Context, task *Task, baseSize, baseTs int64) error {
	var seeded *types.SizeObservation
	if baseSize == unsetWatermark && baseTs == unsetWatermark {
		obs, err := s.probeNow()
		if err != nil {
			return err
		}
		task.seedWatermark(obs.Size, obs.Ts)
		s.obsMu.Lock()
		s.lastObservation = &obs
		s.obsMu.Unlock()
		seeded = &obs
	} else {
		task.seedWatermark(baseSize, baseTs)
		s.obsMu.Lock()
		if s.lastObservation != nil {
			obs := *s.lastObservation
			seeded = &obs
		}
		s.obsMu.Unlock()
	}

	if seeded != nil {
		// Deliver to every currently active task, the just-added one
		// included; duplicate delivery is harmless (§4.3 idempotence).
		s.deliverToActiveTasks(ctx, *seeded)
	}

	return nil
}

// AddTask is Reserve followed by SeedAndDeliver, rolling the
// reservation back on a seeding failure. Registry.Schedule instead
// calls Reserve and SeedAndDeliver directly, so that only the map
// insert happens under its structural mutex; this combined form is for
// callers — tests, or a Subscriber used outside a Registry — that do
// not need that split.
func (s *Subscriber) AddTask(ctx context.Context, task *Task, baseSize, baseTs int64, active bool) error {
	if err := s.Reserve(task, active); err != nil {
		return err
	}
	if err := s.SeedAndDeliver(ctx, task, baseSize, baseTs); err != nil {
		s.RemoveTask(task.ScheduleId)
		return err
	}
	return nil
}

// RemoveTask deletes the task for id. removed reports whether a task was
// present; empty reports whether the Subscriber now owns no tasks, in
// which case the Registry must cancel and remove the Subscriber.
func (s *Subscriber) RemoveTask(id types.ScheduleId) (removed bool, empty bool) {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return false, len(s.tasks) == 0
	}
	delete(s.tasks, id)
	if task.IsActive() {
		s.activeTaskCount--
	}
	return true, len(s.tasks) == 0
}

// GetTask returns the task registered for id, if any.
func (s *Subscriber) GetTask(id types.ScheduleId) (*Task, bool) {
	s.tasksMu.RLock()
	defer s.tasksMu.RUnlock()
	task, ok := s.tasks[id]
	return task, ok
}

// SuspendTask suspends the task for id. found reports whether id is
// known; changed reports whether the task transitioned ACTIVE→SUSPENDED.
func (s *Subscriber) SuspendTask(id types.ScheduleId) (found, changed bool) {
	s.tasksMu.Lock()
	task, ok := s.tasks[id]
	if !ok {
		s.tasksMu.Unlock()
		return false, false
	}
	changed = task.Suspend()
	if changed {
		s.activeTaskCount--
	}
	s.tasksMu.Unlock()
	return true, changed
}

// ResumeTask resumes the task for id. If this transition takes
// activeTaskCount from 0 to 1, it performs the resume wake-up of §4.2:
// a synchronous probe, held under the observation guard, seeding
// lastObservation and the resumed task's own watermark directly —
// unless lastObservation is already fresher than pollingDelay. The
// watermark is reseeded rather than delivered through Task.Received so
// that growth accumulated during suspension is adopted silently, never
// firing retroactively (spec §8 invariant 7).
func (s *Subscriber) ResumeTask(ctx context.Context, id types.ScheduleId) (found, changed bool, err error) {
	s.tasksMu.Lock()
	task, ok := s.tasks[id]
	if !ok {
		s.tasksMu.Unlock()
		return false, false, nil
	}
	changed = task.Resume()
	var becameSoleActive bool
	if changed {
		s.activeTaskCount++
		becameSoleActive = s.activeTaskCount == 1
	}
	s.tasksMu.Unlock()

	if !changed || !becameSoleActive {
		return true, changed, nil
	}

	s.obsMu.Lock()
	stale := s.lastObservation == nil || time.Now().UnixMilli()-s.lastObservation.Ts > s.pollingDelay.Milliseconds()
	if !stale {
		s.obsMu.Unlock()
		return true, changed, nil
	}

	obs, perr := s.probeNow()
	if perr != nil {
		s.obsMu.Unlock()
		return true, changed, perr
	}
	s.lastObservation = &obs
	s.obsMu.Unlock()

	task.seedWatermark(obs.Size, obs.Ts)
	return true, changed, nil
}

// StreamID returns the stream this Subscriber watches.
func (s *Subscriber) StreamID() types.StreamId {
	return s.streamID
}

// InstanceID returns this Subscriber's unique log-correlation id,
// distinguishing one Subscriber instance from another that later
// watches the same stream after the first was canceled.
func (s *Subscriber) InstanceID() string {
	return s.instanceID
}

// ActiveTaskCount and TaskCount report Subscriber size, for the
// metrics collector and tests.
func (s *Subscriber) ActiveTaskCount() int {
	s.tasksMu.RLock()
	defer s.tasksMu.RUnlock()
	return s.activeTaskCount
}

func (s *Subscriber) TaskCount() int {
	s.tasksMu.RLock()
	defer s.tasksMu.RUnlock()
	return len(s.tasks)
}

// handleObservation is the single path both push notifications and
// fallback polls feed through (spec §4.2).
func (s *Subscriber) handleObservation(ctx context.Context, obs types.SizeObservation, source string) {
	s.obsMu.Lock()
	if s.lastObservation != nil && obs.Ts <= s.lastObservation.Ts {
		s.obsMu.Unlock()
		metrics.ObservationsRejected.WithLabelValues(source).Inc()
		return
	}
	s.lastObservation = &obs
	s.obsMu.Unlock()

	metrics.ObservationsAccepted.WithLabelValues(source).Inc()
	s.deliverToActiveTasks(ctx, obs)
	s.resetPoll()
}

// deliverToActiveTasks fans obs out to every currently active task, each
// on the Subscriber's notification executor (spec §9's coroutine-free
// fan-out: the executor's only job is to apply Task.Received).
func (s *Subscriber) deliverToActiveTasks(ctx context.Context, obs types.SizeObservation) {
	s.tasksMu.RLock()
	active := make([]*Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if task.IsActive() {
			active = append(active, task)
		}
	}
	s.tasksMu.RUnlock()

	for _, task := range active {
		task := task
		s.notifyExecutor.Submit(func() {
			task.Received(ctx, obs)
		})
	}
}

// resetPoll cancels any pending poll and schedules the next one
// pollingDelay in the future. Cancellation does not interrupt an
// in-flight poll.
func (s *Subscriber) resetPoll() {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()
	if s.pollTimer != nil {
		s.pollTimer.Stop()
	}
	s.schedulePollLocked()
}

// schedulePollLocked arms the single poll slot. Callers must hold pollMu.
func (s *Subscriber) schedulePollLocked() {
	s.pollTimer = time.AfterFunc(s.pollingDelay, s.firePoll)
}

// firePoll is the poll timer callback. It rearms the timer immediately,
// so the cadence continues even if activeTaskCount is 0 or the probe is
// slow, then does the actual probe-and-deliver work on the shared poll
// pool.
func (s *Subscriber) firePoll() {
	s.pollMu.Lock()
	s.schedulePollLocked()
	s.pollMu.Unlock()

	if s.ActiveTaskCount() == 0 {
		metrics.PollsTotal.WithLabelValues("skipped_idle").Inc()
		return
	}

	s.pollPool.Submit(func() {
		obs, err := s.probeNow()
		if err != nil {
			metrics.PollsTotal.WithLabelValues("probe_error").Inc()
			metrics.ProbeErrors.Inc()
			s.logger.Warn().Err(err).Msg("poll probe failed, dropping")
			s.recordPollFailure(err)
			return
		}
		metrics.PollsTotal.WithLabelValues("ok").Inc()
		s.recordPollRecovery()
		s.handleObservation(context.Background(), obs, "poll")
	})
}

// recordPollFailure tracks consecutive poll-probe failures and logs a
// mode transition once the stream admin looks persistently unreachable,
// rather than on every single failed poll.
func (s *Subscriber) recordPollFailure(err error) {
	s.degradeMu.Lock()
	defer s.degradeMu.Unlock()
	s.pollFailures++
	if s.pushOnlyDegraded || s.pollFailures < degradedPollFailureThreshold {
		return
	}
	s.pushOnlyDegraded = true
	metrics.FeedDegradations.WithLabelValues("push_only").Inc()
	s.logger.Warn().Str("mode", "push_only").Int("consecutive_failures", s.pollFailures).
		Msg("stream admin persistently unreachable, degrading to push-only operation")
}

// recordPollRecovery clears degraded tracking after a successful poll,
// logging the recovery if the stream had been degraded.
func (s *Subscriber) recordPollRecovery() {
	s.degradeMu.Lock()
	defer s.degradeMu.Unlock()
	s.pollFailures = 0
	if !s.pushOnlyDegraded {
		return
	}
	s.pushOnlyDegraded = false
	s.logger.Info().Str("mode", "push_and_poll").Msg("stream admin reachable again, polling resumed")
}

// probeNow resolves the stream's config (once, lazily) and takes a
// fresh timed probe.
func (s *Subscriber) probeNow() (types.SizeObservation, error) {
	s.configOnce.Do(func() {
		s.config, s.configErr = s.admin.GetConfig(s.streamID)
	})
	if s.configErr != nil {
		return types.SizeObservation{}, s.configErr
	}
	return s.timed.Observe(s.config)
}

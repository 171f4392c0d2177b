package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/streamsched/pkg/dispatch"
	"github.com/cuemby/streamsched/pkg/log"
	"github.com/cuemby/streamsched/pkg/metrics"
	"github.com/cuemby/streamsched/pkg/types"
)

// Task is the in-memory state of one schedule: its watermark, active
// flag, trigger threshold, and firing/retry behavior (spec §4.3).
//
// active is a compare-and-set flag, checked and flipped without the
// task's own guard. baseSize/baseTs/firing are protected by mu so that a
// single observation cannot cause two firings even if delivered twice.
type Task struct {
	ScheduleId types.ScheduleId
	Program    types.ProgramRef
	Spec       types.ScheduleSpec

	dispatcher dispatch.ProgramDispatcher
	logger     zerolog.Logger

	active int32 // 0 = SUSPENDED, 1 = ACTIVE

	mu       sync.Mutex
	baseSize int64
	baseTs   int64
}

// NewTask constructs a Task with the given initial watermark and active
// state. It does not register the task with any Subscriber.
func NewTask(id types.ScheduleId, program types.ProgramRef, spec types.ScheduleSpec, baseSize, baseTs int64, active bool, dispatcher dispatch.ProgramDispatcher, logger zerolog.Logger) *Task {
	var activeFlag int32
	if active {
		activeFlag = 1
	}
	return &Task{
		ScheduleId: id,
		Program:    program,
		Spec:       spec,
		dispatcher: dispatcher,
		logger:     log.WithFields(logger, map[string]string{"schedule_id": id.String()}),
		active:     activeFlag,
		baseSize:   baseSize,
		baseTs:     baseTs,
	}
}

// IsActive reports the task's current active/suspended state.
func (t *Task) IsActive() bool {
	return atomic.LoadInt32(&t.active) == 1
}

// Suspend transitions ACTIVE→SUSPENDED. Returns true iff the transition
// took place; suspending an already-suspended task is a no-op.
func (t *Task) Suspend() bool {
	return atomic.CompareAndSwapInt32(&t.active, 1, 0)
}

// Resume transitions SUSPENDED→ACTIVE. Returns true iff the transition
// took place; resuming an already-active task is a no-op.
func (t *Task) Resume() bool {
	return atomic.CompareAndSwapInt32(&t.active, 0, 1)
}

// seedWatermark sets the task's baseSize/baseTs without firing. Used by
// Subscriber.SeedAndDeliver for the initial watermark and by
// Subscriber.ResumeTask's resume wake-up reseed.
func (t *Task) seedWatermark(baseSize, baseTs int64) {
	t.mu.Lock()
	t.baseSize = baseSize
	t.baseTs = baseTs
	t.mu.Unlock()
}

// Snapshot returns the persisted view of the task's current state, for a
// caller requesting persist=true.
func (t *Task) Snapshot() types.TaskSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return types.TaskSnapshot{
		ScheduleId: t.ScheduleId,
		Program:    t.Program,
		Spec:       t.Spec,
		BaseSize:   t.baseSize,
		BaseTs:     t.baseTs,
		Active:     t.IsActive(),
	}
}

// Received processes one delivered observation per §4.3's four steps.
// It is idempotent: delivering the same observation twice never fires
// twice, because the watermark advances before the dispatch call.
func (t *Task) Received(ctx context.Context, obs types.SizeObservation) {
	if !t.IsActive() {
		return
	}

	t.mu.Lock()
	threshold := t.Spec.ThresholdBytes()

	if obs.Size < t.baseSize {
		// Truncation: rebase without firing.
		prevBaseSize := t.baseSize
		metrics.TruncationsTotal.Inc()
		t.baseSize = obs.Size
		t.baseTs = obs.Ts
		t.mu.Unlock()
		t.logger.Warn().
			Int64("obs_size", obs.Size).
			Int64("prev_base_size", prevBaseSize).
			Msg("stream truncation detected, watermark rebased")
		return
	}

	if obs.Size < t.baseSize+threshold {
		t.mu.Unlock()
		return
	}

	pastRunSize := t.baseSize
	pastRunTs := t.baseTs
	t.baseSize = obs.Size
	t.baseTs = obs.Ts
	args := types.DispatchArgs{
		ScheduleName:            t.Spec.ScheduleName,
		LogicalStartTime:        t.baseTs,
		RunDataSize:             t.baseSize,
		PastRunLogicalStartTime: pastRunTs,
		PastRunDataSize:         pastRunSize,
	}
	t.fire(ctx, args)
	t.mu.Unlock()
}

// fire submits args to the dispatcher, retrying in a tight loop while
// the dispatcher asks for an immediate refire (§4.3, §7). The watermark
// has already advanced by the time fire is called, so retries never
// change baseSize/baseTs.
func (t *Task) fire(ctx context.Context, args types.DispatchArgs) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DispatchDuration)

	metrics.FiringsTotal.Inc()

	runID := uuid.NewString()
	logger := log.WithFields(t.logger, map[string]string{"run_id": runID})

	for {
		err := t.dispatcher.Run(ctx, t.Program, args)
		if err == nil {
			return
		}

		if errors.Is(err, types.ErrDispatchRefire) {
			metrics.DispatchRetries.Inc()
			logger.Warn().Err(err).Msg("dispatch requested refire, retrying")
			if ctx.Err() != nil {
				return
			}
			continue
		}

		metrics.DispatchFailures.Inc()
		logger.Error().Err(err).
			Int64("logical_start_time", args.LogicalStartTime).
			Int64("run_data_size", args.RunDataSize).
			Msg("dispatch failed, abandoning firing")
		return
	}
}

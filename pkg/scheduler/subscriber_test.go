package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/streamsched/pkg/dispatch"
	"github.com/cuemby/streamsched/pkg/notify"
	"github.com/cuemby/streamsched/pkg/types"
)

type fakeAdmin struct {
	mu        sync.Mutex
	size      int64
	callCount int
	err       error
}

func (a *fakeAdmin) GetConfig(streamID types.StreamId) (types.StreamConfig, error) {
	return types.StreamConfig{StreamId: streamID, Location: streamID.Name}, nil
}

func (a *fakeAdmin) FetchStreamSize(config types.StreamConfig) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callCount++
	if a.err != nil {
		return 0, a.err
	}
	return a.size, nil
}

func (a *fakeAdmin) setSize(size int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.size = size
}

func (a *fakeAdmin) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.callCount
}

type fakeDispatcher struct {
	mu   sync.Mutex
	runs []types.DispatchArgs
	err  error
}

func (d *fakeDispatcher) Run(ctx context.Context, program types.ProgramRef, args types.DispatchArgs) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runs = append(d.runs, args)
	return d.err
}

func (d *fakeDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.runs)
}

var _ dispatch.ProgramDispatcher = (*fakeDispatcher)(nil)

func testStreamID() types.StreamId {
	return types.StreamId{Namespace: "ns", Name: "logs"}
}

func testSpec(thresholdMB int) types.ScheduleSpec {
	return types.ScheduleSpec{ScheduleName: "sched-a", StreamName: "logs", DataTriggerMB: thresholdMB}
}

func newTestSubscriber(admin *fakeAdmin, notifier notify.NotificationService, pollingDelay time.Duration) *Subscriber {
	pool := notify.NewFixedPool(2)
	return NewSubscriber(testStreamID(), admin, notifier, pool, pollingDelay, zerolog.Nop())
}

func newTestTask(id string, spec types.ScheduleSpec, baseSize, baseTs int64, active bool, d *fakeDispatcher) *Task {
	sid := types.ScheduleId{Namespace: "ns", Application: "app", ProgramType: "job", ProgramName: "p", ScheduleName: id}
	return NewTask(sid, types.ProgramRef{Namespace: "ns", Application: "app", ProgramType: "job", ProgramName: "p"}, spec, baseSize, baseTs, active, d, zerolog.Nop())
}

func TestSubscriberAddTaskSeedsWatermarkViaProbe(t *testing.T) {
	admin := &fakeAdmin{size: 42}
	broker := notify.NewBroker()
	s := newTestSubscriber(admin, broker, time.Hour)
	if err := s.start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	d := &fakeDispatcher{}
	task := newTestTask("a", testSpec(1), unsetWatermark, unsetWatermark, true, d)

	if err := s.AddTask(context.Background(), task, unsetWatermark, unsetWatermark, true); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	snap := task.Snapshot()
	if snap.BaseSize != 42 {
		t.Fatalf("BaseSize = %d, want 42", snap.BaseSize)
	}
	if admin.calls() != 1 {
		t.Fatalf("probe calls = %d, want 1", admin.calls())
	}
}

func TestSubscriberAddTaskDuplicateRejected(t *testing.T) {
	admin := &fakeAdmin{size: 1}
	broker := notify.NewBroker()
	s := newTestSubscriber(admin, broker, time.Hour)
	if err := s.start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	d := &fakeDispatcher{}
	task := newTestTask("dup", testSpec(1), 0, 0, true, d)

	if err := s.AddTask(context.Background(), task, 0, 0, true); err != nil {
		t.Fatalf("first AddTask: %v", err)
	}
	err := s.AddTask(context.Background(), task, 0, 0, true)
	if !errors.Is(err, types.ErrAlreadyExists) {
		t.Fatalf("second AddTask err = %v, want ErrAlreadyExists", err)
	}
}

func TestSubscriberAddTaskUsesSuppliedWatermark(t *testing.T) {
	admin := &fakeAdmin{size: 999}
	broker := notify.NewBroker()
	s := newTestSubscriber(admin, broker, time.Hour)
	if err := s.start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	d := &fakeDispatcher{}
	task := newTestTask("b", testSpec(1), 10, 5, true, d)

	if err := s.AddTask(context.Background(), task, 10, 5, true); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	snap := task.Snapshot()
	if snap.BaseSize != 10 || snap.BaseTs != 5 {
		t.Fatalf("watermark = (%d, %d), want (10, 5)", snap.BaseSize, snap.BaseTs)
	}
	if admin.calls() != 0 {
		t.Fatalf("probe calls = %d, want 0 when watermark supplied", admin.calls())
	}
}

func TestSubscriberHandleObservationFansOutAndFires(t *testing.T) {
	admin := &fakeAdmin{size: 0}
	broker := notify.NewBroker()
	s := newTestSubscriber(admin, broker, time.Hour)
	if err := s.start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	d := &fakeDispatcher{}
	task := newTestTask("c", testSpec(1), 0, 0, true, d)
	if err := s.AddTask(context.Background(), task, 0, 0, true); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	threshold := testSpec(1).ThresholdBytes()
	s.handleObservation(context.Background(), types.SizeObservation{Size: threshold, Ts: 1000}, "poll")

	cached := s.notifyExecutor.(*notify.CachedExecutor)
	cached.Wait()

	if d.callCount() != 1 {
		t.Fatalf("dispatch calls = %d, want 1", d.callCount())
	}
}

func TestSubscriberHandleObservationRejectsNonIncreasingTs(t *testing.T) {
	admin := &fakeAdmin{size: 0}
	broker := notify.NewBroker()
	s := newTestSubscriber(admin, broker, time.Hour)
	if err := s.start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	d := &fakeDispatcher{}
	task := newTestTask("d", testSpec(1), 0, 0, true, d)
	if err := s.AddTask(context.Background(), task, 0, 0, true); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	threshold := testSpec(1).ThresholdBytes()
	s.handleObservation(context.Background(), types.SizeObservation{Size: threshold, Ts: 1000}, "poll")
	s.handleObservation(context.Background(), types.SizeObservation{Size: threshold * 2, Ts: 1000}, "poll")
	s.handleObservation(context.Background(), types.SizeObservation{Size: threshold * 2, Ts: 500}, "poll")

	cached := s.notifyExecutor.(*notify.CachedExecutor)
	cached.Wait()

	if d.callCount() != 1 {
		t.Fatalf("dispatch calls = %d, want 1 (later observations had non-increasing ts)", d.callCount())
	}
}

func TestSubscriberRemoveTaskReportsEmpty(t *testing.T) {
	admin := &fakeAdmin{size: 0}
	broker := notify.NewBroker()
	s := newTestSubscriber(admin, broker, time.Hour)
	if err := s.start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	d := &fakeDispatcher{}
	task := newTestTask("e", testSpec(1), 0, 0, true, d)
	if err := s.AddTask(context.Background(), task, 0, 0, true); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	removed, empty := s.RemoveTask(task.ScheduleId)
	if !removed || !empty {
		t.Fatalf("RemoveTask = (%v, %v), want (true, true)", removed, empty)
	}

	removed, _ = s.RemoveTask(task.ScheduleId)
	if removed {
		t.Fatalf("RemoveTask on already-removed id reported removed=true")
	}
}

func TestSubscriberSuspendResumeUpdatesActiveCount(t *testing.T) {
	admin := &fakeAdmin{size: 5}
	broker := notify.NewBroker()
	s := newTestSubscriber(admin, broker, time.Hour)
	if err := s.start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	d := &fakeDispatcher{}
	task := newTestTask("f", testSpec(1), 0, 0, true, d)
	if err := s.AddTask(context.Background(), task, 0, 0, true); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if s.ActiveTaskCount() != 1 {
		t.Fatalf("ActiveTaskCount = %d, want 1", s.ActiveTaskCount())
	}

	found, changed := s.SuspendTask(task.ScheduleId)
	if !found || !changed {
		t.Fatalf("SuspendTask = (%v, %v), want (true, true)", found, changed)
	}
	if s.ActiveTaskCount() != 0 {
		t.Fatalf("ActiveTaskCount after suspend = %d, want 0", s.ActiveTaskCount())
	}

	found, changed, err := s.ResumeTask(context.Background(), task.ScheduleId)
	if !found || !changed || err != nil {
		t.Fatalf("ResumeTask = (%v, %v, %v), want (true, true, nil)", found, changed, err)
	}
	if s.ActiveTaskCount() != 1 {
		t.Fatalf("ActiveTaskCount after resume = %d, want 1", s.ActiveTaskCount())
	}
}

func TestSubscriberInstanceIDIsUniquePerSubscriber(t *testing.T) {
	admin := &fakeAdmin{size: 0}
	broker := notify.NewBroker()
	a := newTestSubscriber(admin, broker, time.Hour)
	b := newTestSubscriber(admin, broker, time.Hour)

	if a.InstanceID() == "" || b.InstanceID() == "" {
		t.Fatalf("InstanceID should never be empty")
	}
	if a.InstanceID() == b.InstanceID() {
		t.Fatalf("two distinct Subscribers should not share an instance id")
	}
}

func TestSubscriberRecordPollFailureDegradesAfterThreshold(t *testing.T) {
	admin := &fakeAdmin{size: 1}
	broker := notify.NewBroker()
	s := newTestSubscriber(admin, broker, time.Hour)

	for i := 0; i < degradedPollFailureThreshold-1; i++ {
		s.recordPollFailure(errors.New("boom"))
		if s.pushOnlyDegraded {
			t.Fatalf("degraded after %d failures, want threshold %d", i+1, degradedPollFailureThreshold)
		}
	}
	s.recordPollFailure(errors.New("boom"))
	if !s.pushOnlyDegraded {
		t.Fatalf("expected push-only degraded after %d consecutive failures", degradedPollFailureThreshold)
	}

	s.recordPollRecovery()
	if s.pushOnlyDegraded {
		t.Fatalf("expected recovery to clear degraded state")
	}
}

func TestSubscriberResumeWakeUpProbesWhenStale(t *testing.T) {
	admin := &fakeAdmin{size: 100}
	broker := notify.NewBroker()
	s := newTestSubscriber(admin, broker, time.Millisecond)
	if err := s.start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	d := &fakeDispatcher{}
	task := newTestTask("g", testSpec(1), 0, 0, true, d)
	if err := s.AddTask(context.Background(), task, 0, 0, true); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	baseline := admin.calls()

	if _, changed := s.SuspendTask(task.ScheduleId); !changed {
		t.Fatalf("expected suspend to take effect")
	}

	time.Sleep(5 * time.Millisecond)

	found, changed, err := s.ResumeTask(context.Background(), task.ScheduleId)
	if !found || !changed || err != nil {
		t.Fatalf("ResumeTask = (%v, %v, %v)", found, changed, err)
	}
	if admin.calls() <= baseline {
		t.Fatalf("expected a fresh probe on resume wake-up, calls stayed at %d", admin.calls())
	}
}

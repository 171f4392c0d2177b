package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/streamsched/pkg/dispatch"
	"github.com/cuemby/streamsched/pkg/notify"
	"github.com/cuemby/streamsched/pkg/probe"
	"github.com/cuemby/streamsched/pkg/scheduler"
	"github.com/cuemby/streamsched/pkg/types"
)

type stubAdmin struct{ size int64 }

func (a *stubAdmin) GetConfig(streamID types.StreamId) (types.StreamConfig, error) {
	return types.StreamConfig{StreamId: streamID, Location: streamID.Name}, nil
}

func (a *stubAdmin) FetchStreamSize(types.StreamConfig) (int64, error) {
	return a.size, nil
}

type stubDispatcher struct{}

func (stubDispatcher) Run(context.Context, types.ProgramRef, types.DispatchArgs) error { return nil }

var _ dispatch.ProgramDispatcher = stubDispatcher{}
var _ probe.StreamAdmin = (*stubAdmin)(nil)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	pool := notify.NewFixedPool(2)
	reg := scheduler.NewRegistry(scheduler.Deps{
		Admin:        &stubAdmin{size: 0},
		Notifier:     notify.NewBroker(),
		Dispatcher:   stubDispatcher{},
		PollPool:     pool,
		PollingDelay: time.Hour,
		Logger:       zerolog.Nop(),
	})
	return NewServer(reg, zerolog.Nop())
}

func TestCreateAndGetState(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(scheduleRequest{
		Namespace: "ns", Application: "app", ProgramType: "job", ProgramName: "p",
		ScheduleName: "sched", StreamName: "logs", DataTriggerMB: 1,
	})

	req := httptest.NewRequest(http.MethodPost, "/schedules", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/schedules/ns:app:job:p:sched", nil)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(types.RunStateScheduled), resp["state"])
}

func TestGetStateUnknownScheduleReturns404(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/schedules/ns:app:job:p:missing", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSuspendThenResume(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(scheduleRequest{
		Namespace: "ns", Application: "app", ProgramType: "job", ProgramName: "p",
		ScheduleName: "sched", StreamName: "logs", DataTriggerMB: 1,
	})
	req := httptest.NewRequest(http.MethodPost, "/schedules", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/schedules/ns:app:job:p:sched/suspend", nil)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/schedules/ns:app:job:p:sched", nil)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(types.RunStateSuspended), resp["state"])

	req = httptest.NewRequest(http.MethodPost, "/schedules/ns:app:job:p:sched/resume", nil)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestDeleteThenListIsEmpty(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(scheduleRequest{
		Namespace: "ns", Application: "app", ProgramType: "job", ProgramName: "p",
		ScheduleName: "sched", StreamName: "logs", DataTriggerMB: 1,
	})
	req := httptest.NewRequest(http.MethodPost, "/schedules", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	req = httptest.NewRequest(http.MethodDelete, "/schedules/ns:app:job:p:sched", nil)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/schedules?namespace=ns&application=app&programType=job&programName=p", nil)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string][]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp["scheduleIds"])
}

func TestHealthAndReadyHandlers(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/ready", nil)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	notReady := NewServer(nil, zerolog.Nop())
	req = httptest.NewRequest(http.MethodGet, "/ready", nil)
	w = httptest.NewRecorder()
	notReady.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestInvalidScheduleIdReturnsBadRequest(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/schedules/not-enough-parts", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/streamsched/pkg/metrics"
	"github.com/cuemby/streamsched/pkg/scheduler"
	"github.com/cuemby/streamsched/pkg/types"
)

// Server exposes a Registry over HTTP.
type Server struct {
	registry *scheduler.Registry
	mux      *http.ServeMux
	logger   zerolog.Logger
}

// NewServer builds a Server wired to registry. A nil registry is
// accepted so /health can be probed before the registry is ready.
func NewServer(registry *scheduler.Registry, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{registry: registry, mux: mux, logger: logger}

	mux.HandleFunc("/schedules", s.schedulesHandler)
	mux.HandleFunc("/schedules/", s.scheduleHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/ready", s.readyHandler)
	mux.Handle("/metrics", metrics.Handler())

	return s
}

// Start serves on addr until the process exits or ListenAndServe fails.
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// Handler returns the HTTP handler, for embedding or httptest.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// scheduleRequest is the POST /schedules body.
type scheduleRequest struct {
	Namespace     string `json:"namespace"`
	Application   string `json:"application"`
	ProgramType   string `json:"programType"`
	ProgramName   string `json:"programName"`
	ScheduleName  string `json:"scheduleName"`
	StreamName    string `json:"streamName"`
	DataTriggerMB int    `json:"dataTriggerMB"`
}

func (r scheduleRequest) program() types.ProgramRef {
	return types.ProgramRef{
		Namespace:   r.Namespace,
		Application: r.Application,
		ProgramType: r.ProgramType,
		ProgramName: r.ProgramName,
	}
}

func (r scheduleRequest) spec() types.ScheduleSpec {
	return types.ScheduleSpec{
		ScheduleName:  r.ScheduleName,
		StreamName:    r.StreamName,
		DataTriggerMB: r.DataTriggerMB,
	}
}

// schedulesHandler implements POST /schedules (create) and GET
// /schedules?namespace=&application=&programType=&programName= (list).
func (s *Server) schedulesHandler(w http.ResponseWriter, r *http.Request) {
	timer := metrics.NewTimer()
	switch r.Method {
	case http.MethodPost:
		s.handleCreate(w, r)
	case http.MethodGet:
		s.handleList(w, r)
	default:
		s.writeError(w, r.Method, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
		return
	}
	timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r.Method, http.StatusBadRequest, err)
		return
	}

	if err := s.registry.Schedule(r.Context(), req.program(), req.spec()); err != nil {
		s.writeRegistryError(w, r.Method, err)
		return
	}

	s.writeJSON(w, r.Method, http.StatusCreated, map[string]string{"status": "scheduled"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ids := s.registry.ListIds(q.Get("namespace"), q.Get("application"), q.Get("programType"), q.Get("programName"))

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	s.writeJSON(w, r.Method, http.StatusOK, map[string][]string{"scheduleIds": out})
}

// scheduleHandler implements the per-schedule routes: GET (state), POST
// .../suspend, POST .../resume, DELETE, addressed by the canonical
// "ns:app:type:prog:sched" identifier in the URL path.
func (s *Server) scheduleHandler(w http.ResponseWriter, r *http.Request) {
	timer := metrics.NewTimer()
	defer func() { timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method) }()

	rest := strings.TrimPrefix(r.URL.Path, "/schedules/")
	var action string
	if idx := strings.LastIndex(rest, "/"); idx >= 0 {
		action = rest[idx+1:]
		rest = rest[:idx]
	}

	id, err := parseScheduleId(rest)
	if err != nil {
		s.writeError(w, r.Method, http.StatusBadRequest, err)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.handleState(w, r, id)
	case action == "suspend" && r.Method == http.MethodPost:
		s.handleSuspend(w, r, id)
	case action == "resume" && r.Method == http.MethodPost:
		s.handleResume(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		s.handleDelete(w, r, id)
	default:
		s.writeError(w, r.Method, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request, id types.ScheduleId) {
	state := s.registry.State(id)
	if state == types.RunStateNotFound {
		s.writeError(w, r.Method, http.StatusNotFound, types.ErrNotFound)
		return
	}
	s.writeJSON(w, r.Method, http.StatusOK, map[string]string{"scheduleId": id.String(), "state": string(state)})
}

func (s *Server) handleSuspend(w http.ResponseWriter, r *http.Request, id types.ScheduleId) {
	if err := s.registry.Suspend(id); err != nil {
		s.writeRegistryError(w, r.Method, err)
		return
	}
	s.writeJSON(w, r.Method, http.StatusOK, map[string]string{"status": "suspended"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request, id types.ScheduleId) {
	if err := s.registry.Resume(r.Context(), id); err != nil {
		s.writeRegistryError(w, r.Method, err)
		return
	}
	s.writeJSON(w, r.Method, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, id types.ScheduleId) {
	if err := s.registry.Delete(id); err != nil {
		s.writeRegistryError(w, r.Method, err)
		return
	}
	s.writeJSON(w, r.Method, http.StatusOK, map[string]string{"status": "deleted"})
}

// parseScheduleId splits the canonical "ns:app:type:prog:sched"
// identifier. No component may contain ":" (spec.md's ScheduleId
// ordering guarantee), so a plain 5-way split is exact.
func parseScheduleId(s string) (types.ScheduleId, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 5 {
		return types.ScheduleId{}, fmt.Errorf("%w: malformed schedule id %q", types.ErrInvalidArgument, s)
	}
	return types.ScheduleId{
		Namespace:    parts[0],
		Application:  parts[1],
		ProgramType:  parts[2],
		ProgramName:  parts[3],
		ScheduleName: parts[4],
	}, nil
}

func (s *Server) writeRegistryError(w http.ResponseWriter, method string, err error) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		s.writeError(w, method, http.StatusNotFound, err)
	case errors.Is(err, types.ErrInvalidArgument):
		s.writeError(w, method, http.StatusBadRequest, err)
	case errors.Is(err, types.ErrAlreadyExists):
		s.writeError(w, method, http.StatusConflict, err)
	default:
		s.writeError(w, method, http.StatusInternalServerError, err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, method string, status int, body any) {
	metrics.APIRequestsTotal.WithLabelValues(method, fmt.Sprintf("%d", status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode response body")
	}
}

func (s *Server) writeError(w http.ResponseWriter, method string, status int, err error) {
	s.writeJSON(w, method, status, map[string]string{"error": err.Error()})
}

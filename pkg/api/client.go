package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cuemby/streamsched/pkg/types"
)

// Client wraps the streamsched admin HTTP API for CLI usage, the same
// role pkg/client.Client plays for the teacher's gRPC surface.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client against the admin API listening at addr
// (host:port, no scheme).
func NewClient(addr string) *Client {
	return &Client{
		baseURL: "http://" + addr,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// CreateSchedule calls POST /schedules.
func (c *Client) CreateSchedule(ctx context.Context, program types.ProgramRef, spec types.ScheduleSpec) error {
	req := scheduleRequest{
		Namespace: program.Namespace, Application: program.Application,
		ProgramType: program.ProgramType, ProgramName: program.ProgramName,
		ScheduleName: spec.ScheduleName, StreamName: spec.StreamName, DataTriggerMB: spec.DataTriggerMB,
	}
	return c.do(ctx, http.MethodPost, "/schedules", req, nil)
}

// SuspendSchedule calls POST /schedules/{id}/suspend.
func (c *Client) SuspendSchedule(ctx context.Context, id types.ScheduleId) error {
	return c.do(ctx, http.MethodPost, "/schedules/"+id.String()+"/suspend", nil, nil)
}

// ResumeSchedule calls POST /schedules/{id}/resume.
func (c *Client) ResumeSchedule(ctx context.Context, id types.ScheduleId) error {
	return c.do(ctx, http.MethodPost, "/schedules/"+id.String()+"/resume", nil, nil)
}

// DeleteSchedule calls DELETE /schedules/{id}.
func (c *Client) DeleteSchedule(ctx context.Context, id types.ScheduleId) error {
	return c.do(ctx, http.MethodDelete, "/schedules/"+id.String(), nil, nil)
}

// GetScheduleState calls GET /schedules/{id}.
func (c *Client) GetScheduleState(ctx context.Context, id types.ScheduleId) (types.RunState, error) {
	var resp map[string]string
	if err := c.do(ctx, http.MethodGet, "/schedules/"+id.String(), nil, &resp); err != nil {
		return "", err
	}
	return types.RunState(resp["state"]), nil
}

// ListSchedules calls GET /schedules?namespace=...&application=...
func (c *Client) ListSchedules(ctx context.Context, namespace, application, programType, programName string) ([]string, error) {
	q := url.Values{}
	q.Set("namespace", namespace)
	q.Set("application", application)
	q.Set("programType", programType)
	q.Set("programName", programName)

	var resp map[string][]string
	if err := c.do(ctx, http.MethodGet, "/schedules?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp["scheduleIds"], nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errBody map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, errBody["error"])
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

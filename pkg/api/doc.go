/*
Package api exposes the Scheduler Registry surface of spec §4.1/§6 over
plain net/http and encoding/json, mirroring the teacher's
pkg/api/health.go rather than its heavier mTLS/gRPC server.go: a single
ServeMux, JSON request/response bodies, and /health, /ready, /metrics
alongside the schedule CRUD routes.
*/
package api

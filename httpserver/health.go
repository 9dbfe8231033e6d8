package httpserver

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/kroma-labs/sentinel-connect/lifecycle"
	"github.com/kroma-labs/sentinel-connect/middleware"
)

// HealthCheck is a function that checks the health of a dependency.
//
// Return nil if the dependency is healthy, or an error describing the issue.
//
//	func redisHealthCheck(ctx context.Context) error {
//	    return rdb.Ping(ctx).Err()
//	}
type HealthCheck func(ctx context.Context) error

// CheckResult contains the result of a single health check.
type CheckResult struct {
	Status              string `json:"status"`
	Latency             string `json:"latency"`
	Message             string `json:"message,omitempty"`
	LastChecked         string `json:"last_checked"`
	ConsecutiveSuccess  int    `json:"consecutive_successes,omitempty"`
	ConsecutiveFailures int    `json:"consecutive_failures,omitempty"`
}

// HealthResponse contains the full health response data.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime,omitempty"`
	Hostname  string                 `json:"hostname,omitempty"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// PingResponse contains the ping response data.
type PingResponse struct {
	Status string `json:"status"`
}

type checkState struct {
	check               HealthCheck
	consecutiveSuccess  int
	consecutiveFailures int
}

// HealthHandler serves health check routes on a lifecycle scope.
//
//	health := httpserver.NewHealthHandler(httpserver.WithVersion("1.0.0"))
//	health.AddReadinessCheck("redis", redisChecker)
//	health.Register(app.Scope)
type HealthHandler struct {
	serviceName string
	version     string
	startTime   time.Time
	hostname    string

	mu              sync.Mutex
	livenessChecks  map[string]*checkState
	readinessChecks map[string]*checkState
}

// HealthOption configures the HealthHandler.
type HealthOption func(*HealthHandler)

// withHealthServiceName is applied by the server from its ServiceName.
func withHealthServiceName(name string) HealthOption {
	return func(h *HealthHandler) {
		h.serviceName = name
	}
}

// WithVersion sets the version for health responses.
func WithVersion(version string) HealthOption {
	return func(h *HealthHandler) {
		h.version = version
	}
}

// NewHealthHandler creates a new HealthHandler. With a Server, prefer
// WithHealth, which also sets the service name and registers the routes.
func NewHealthHandler(opts ...HealthOption) *HealthHandler {
	hostname, _ := os.Hostname()

	h := &HealthHandler{
		serviceName:     "unknown",
		version:         "0.0.0",
		startTime:       time.Now(),
		hostname:        hostname,
		livenessChecks:  make(map[string]*checkState),
		readinessChecks: make(map[string]*checkState),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// AddLivenessCheck adds a check to /livez. A failing liveness check tells
// the orchestrator to restart the process; use sparingly.
func (h *HealthHandler) AddLivenessCheck(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.livenessChecks[name] = &checkState{check: check}
}

// AddReadinessCheck adds a check to /readyz. A failing readiness check
// stops traffic to the instance without restarting it.
func (h *HealthHandler) AddReadinessCheck(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessChecks[name] = &checkState{check: check}
}

// Register adds GET /ping, /livez and /readyz under the scope's prefix.
func (h *HealthHandler) Register(s *lifecycle.Scope) {
	s.Get("/ping", h.Ping)
	s.Get("/livez", h.Live)
	s.Get("/readyz", h.Ready)
}

// Ping always answers 200 without running checks.
func (h *HealthHandler) Ping(_ *lifecycle.Request, rep *lifecycle.Reply) error {
	return rep.Code(http.StatusOK).Send(middleware.Response[PingResponse]{
		Data: PingResponse{Status: "pong"},
	})
}

// Live runs the liveness checks: 200 if all pass, 503 otherwise.
func (h *HealthHandler) Live(req *lifecycle.Request, rep *lifecycle.Reply) error {
	return h.run(req, rep, h.livenessChecks)
}

// Ready runs the readiness checks: 200 if all pass, 503 otherwise.
func (h *HealthHandler) Ready(req *lifecycle.Request, rep *lifecycle.Reply) error {
	return h.run(req, rep, h.readinessChecks)
}

func (h *HealthHandler) run(req *lifecycle.Request, rep *lifecycle.Reply, checks map[string]*checkState) error {
	ctx := req.Context()
	now := time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	results := make(map[string]CheckResult, len(checks))
	var errs []middleware.Error
	allHealthy := true

	for name, state := range checks {
		start := time.Now()
		err := state.check(ctx)

		result := CheckResult{
			Latency:     time.Since(start).String(),
			LastChecked: now.Format(time.RFC3339),
		}

		if err != nil {
			state.consecutiveFailures++
			state.consecutiveSuccess = 0

			result.Status = "fail"
			result.Message = err.Error()
			result.ConsecutiveFailures = state.consecutiveFailures

			errs = append(errs, middleware.Error{Field: name, Message: err.Error()})
			allHealthy = false
		} else {
			state.consecutiveSuccess++
			state.consecutiveFailures = 0

			result.Status = "ok"
			result.Message = "connected"
			result.ConsecutiveSuccess = state.consecutiveSuccess
		}

		results[name] = result
	}

	status, statusCode, message := "ok", http.StatusOK, "all checks passed"
	if !allHealthy {
		status, statusCode, message = "fail", http.StatusServiceUnavailable, "one or more checks failed"
	}

	return rep.Code(statusCode).Send(middleware.Response[HealthResponse]{
		Data: HealthResponse{
			Status:    status,
			Service:   h.serviceName,
			Version:   h.version,
			Uptime:    time.Since(h.startTime).Round(time.Second).String(),
			Hostname:  h.hostname,
			Timestamp: now.Format(time.RFC3339),
			Checks:    results,
		},
		Errors:  errs,
		Message: message,
	})
}

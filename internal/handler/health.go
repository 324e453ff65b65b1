package handler

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// readinessTimeout bounds all dependency checks of one /readyz request.
const readinessTimeout = 5 * time.Second

// HealthChecker is anything that can report connectivity, such as the repository or cache.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type dependency struct {
	name    string
	checker HealthChecker
}

// HealthHandler serves the liveness, readiness and plain health endpoints.
type HealthHandler struct {
	deps []dependency
}

// NewHealthHandler creates a HealthHandler checking postgres and redis.
// A nil checker is reported as "not configured" and does not fail readiness.
func NewHealthHandler(db, cache HealthChecker) *HealthHandler {
	return &HealthHandler{
		deps: []dependency{
			{name: "postgres", checker: db},
			{name: "redis", checker: cache},
		},
	}
}

// HealthResponse is the body of the probe endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// SimpleHealthResponse is the body of GET /health.
type SimpleHealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Health reports that the process is serving requests.
//
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SimpleHealthResponse{
		Status:  "healthy",
		Message: "API is running",
	})
}

// Healthz is the liveness probe. It never touches dependencies.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz pings every dependency concurrently and returns 503 if any fails.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	results := make([]string, len(h.deps))
	var wg sync.WaitGroup
	for i, dep := range h.deps {
		if dep.checker == nil {
			results[i] = "not configured"
			continue
		}
		wg.Add(1)
		go func(i int, c HealthChecker) {
			defer wg.Done()
			if err := c.Ping(ctx); err != nil {
				results[i] = "error: " + err.Error()
				return
			}
			results[i] = "ok"
		}(i, dep.checker)
	}
	wg.Wait()

	response := HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.deps))}
	statusCode := http.StatusOK
	for i, dep := range h.deps {
		response.Checks[dep.name] = results[i]
		if dep.checker != nil && results[i] != "ok" {
			response.Status = "unhealthy"
			statusCode = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, statusCode, response)
}

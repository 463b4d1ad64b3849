package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const defaultHealthCheckTimeout = 5 * time.Second

// Pinger checks that a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WorkspaceCounter reports how many user workspaces are loaded.
type WorkspaceCounter interface {
	Len() int
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo       Pinger
	workspaces WorkspaceCounter
	timeout    time.Duration
}

// NewHealthHandler creates a health handler. workspaces may be nil.
func NewHealthHandler(repo Pinger, workspaces WorkspaceCounter) *HealthHandler {
	return &HealthHandler{repo: repo, workspaces: workspaces, timeout: defaultHealthCheckTimeout}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.workspaces != nil {
		status["workspaces"] = h.workspaces.Len()
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}

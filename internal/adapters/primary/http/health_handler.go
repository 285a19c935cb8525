package http

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lorrc/notification-relay/internal/core/ports"
)

const healthCheckTimeout = 5 * time.Second

// ReadinessChecker reports whether the broadcast subscription is live.
type ReadinessChecker interface {
	IsReady() bool
}

// ConnectionCounter reports how many authenticated connections this instance holds.
type ConnectionCounter interface {
	CountAll() int
}

// HealthHandler handles health check requests
type HealthHandler struct {
	store       ports.HealthChecker
	broadcast   ReadinessChecker
	connections ConnectionCounter
	startTime   time.Time
	version     string
	logger      *slog.Logger
}

// NewHealthHandler creates a new health handler. connections may be nil.
func NewHealthHandler(store ports.HealthChecker, broadcast ReadinessChecker, connections ConnectionCounter, version string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		store:       store,
		broadcast:   broadcast,
		connections: connections,
		startTime:   time.Now(),
		version:     version,
		logger:      logger.With("handler", "health"),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Version   string           `json:"version,omitempty"`
	Uptime    string           `json:"uptime,omitempty"`
	Checks    map[string]Check `json:"checks,omitempty"`
}

// Check represents an individual health check result
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// RegisterRoutes registers the liveness and readiness routes.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/isAlive", h.HandleIsAlive)
	r.Get("/isReady", h.HandleIsReady)
	r.Get("/health", h.HandleHealth)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}

// HandleIsAlive answers 200 when the shared store replies to a ping, 500 otherwise.
func (h *HealthHandler) HandleIsAlive(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "failed to ping redis in isAlive", "error", err)
		WriteStatus(w, http.StatusInternalServerError)
		return
	}
	WriteStatus(w, http.StatusOK)
}

// HandleIsReady answers 200 only while the broadcast subscription is live
// and the shared store replies to a ping.
func (h *HealthHandler) HandleIsReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if !h.broadcast.IsReady() || h.store.Ping(ctx) != nil {
		WriteStatus(w, http.StatusInternalServerError)
		return
	}
	WriteStatus(w, http.StatusOK)
}

// HandleLiveness reports the store check as JSON.
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]Check{"redis": h.checkStore(ctx)}
	h.writeHealth(w, HealthResponse{
		Status:    overall(checks, "unhealthy"),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

// HandleReadiness reports the store and subscription checks as JSON.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]Check{
		"redis":     h.checkStore(ctx),
		"broadcast": h.checkBroadcast(),
	}
	h.writeHealth(w, HealthResponse{
		Status:    overall(checks, "unhealthy"),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    checks,
	})
}

// HandleHealth handles detailed health check requests (for monitoring/debugging)
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]Check{
		"redis":     h.checkStore(ctx),
		"broadcast": h.checkBroadcast(),
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := struct {
		HealthResponse
		Memory struct {
			Alloc      uint64 `json:"alloc_bytes"`
			TotalAlloc uint64 `json:"total_alloc_bytes"`
			Sys        uint64 `json:"sys_bytes"`
			NumGC      uint32 `json:"num_gc"`
		} `json:"memory"`
		Goroutines  int `json:"goroutines"`
		Connections int `json:"connections"`
	}{
		HealthResponse: HealthResponse{
			Status:    overall(checks, "degraded"),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   h.version,
			Uptime:    time.Since(h.startTime).Round(time.Second).String(),
			Checks:    checks,
		},
		Goroutines: runtime.NumGoroutine(),
	}
	response.Memory.Alloc = memStats.Alloc
	response.Memory.TotalAlloc = memStats.TotalAlloc
	response.Memory.Sys = memStats.Sys
	response.Memory.NumGC = memStats.NumGC
	if h.connections != nil {
		response.Connections = h.connections.CountAll()
	}

	statusCode := http.StatusOK
	if response.Status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	WriteJSON(w, statusCode, response)
}

func (h *HealthHandler) writeHealth(w http.ResponseWriter, response HealthResponse) {
	statusCode := http.StatusOK
	if response.Status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	WriteJSON(w, statusCode, response)
}

func overall(checks map[string]Check, failed string) string {
	for _, c := range checks {
		if c.Status != "healthy" {
			return failed
		}
	}
	return "healthy"
}

// checkStore pings the shared store
func (h *HealthHandler) checkStore(ctx context.Context) Check {
	start := time.Now()

	if h.store == nil {
		return Check{
			Status:  "unhealthy",
			Message: "Store not configured",
		}
	}

	err := h.store.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return Check{
			Status:  "unhealthy",
			Message: "ping failed",
			Latency: latency.String(),
		}
	}

	return Check{
		Status:  "healthy",
		Latency: latency.String(),
	}
}

func (h *HealthHandler) checkBroadcast() Check {
	if h.broadcast == nil || !h.broadcast.IsReady() {
		return Check{Status: "unhealthy", Message: "not subscribed"}
	}
	return Check{Status: "healthy"}
}

package api

import (
	"net/http"
	"time"

	"github.com/gst3d/pushserver/internal/domain"
	"github.com/gst3d/pushserver/pkg/response"
)

const (
	serviceName = "push-server"
	version     = "1.0.0"
)

// HealthHandler handles health check and status endpoints
type HealthHandler struct {
	registry     domain.TokenRepository
	gatewayReady bool
	started      time.Time
	now          func() time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(registry domain.TokenRepository, gatewayReady bool) *HealthHandler {
	return &HealthHandler{
		registry:     registry,
		gatewayReady: gatewayReady,
		started:      time.Now(),
		now:          time.Now,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string  `json:"status"`
	Timestamp  string  `json:"timestamp"`
	Version    string  `json:"version,omitempty"`
	Uptime     float64 `json:"uptime,omitempty"`
	TokenCount *int    `json:"tokenCount,omitempty"`
}

func (h *HealthHandler) base(status string) HealthResponse {
	now := h.now()
	return HealthResponse{
		Status:    status,
		Timestamp: now.UTC().Format(time.RFC3339),
		Uptime:    now.Sub(h.started).Seconds(),
	}
}

// Health returns the health status
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := h.base("ok")
	resp.Version = version
	count := h.registry.Count()
	resp.TokenCount = &count
	response.OK(w, resp)
}

// Ready returns the readiness status (for Kubernetes)
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	if !h.gatewayReady {
		status = "degraded"
	}
	response.OK(w, h.base(status))
}

// Live returns the liveness status (for Kubernetes)
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.base("alive"))
}

// Ping handles the unauthenticated GET /api/test
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status":    "OK",
		"message":   "Push server is running",
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"version":   version,
	})
}

// Status handles GET /api/status
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	response.OK(w, map[string]interface{}{
		"service":          serviceName,
		"version":          version,
		"uptime":           now.Sub(h.started).Seconds(),
		"registeredTokens": h.registry.Count(),
		"gatewayReady":     h.gatewayReady,
		"timestamp":        now.UTC().Format(time.RFC3339),
	})
}

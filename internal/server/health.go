package server

import (
	"context"
	"net/http"
	"sort"
	"time"

	hr "github.com/julienschmidt/httprouter"
)

// HealthStatus represents the overall health of the system
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentStatus represents the health of an individual component
type ComponentStatus string

const (
	ComponentStatusUp       ComponentStatus = "up"
	ComponentStatusDown     ComponentStatus = "down"
	ComponentStatusDegraded ComponentStatus = "degraded"
)

// slowCheck marks a component degraded when its check takes longer.
const slowCheck = time.Second

// Health represents the complete health check response
type Health struct {
	Status       HealthStatus               `json:"status"`
	Timestamp    time.Time                  `json:"timestamp"`
	Version      string                     `json:"version,omitempty"`
	LiveSessions int                        `json:"live_sessions"`
	Components   map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents the health of a single system component
type ComponentHealth struct {
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	LatencyMs float64         `json:"latency_ms,omitempty"`
}

// handleHealth reports every dependency; 503 when any of them is down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ hr.Params) {
	health := s.checkHealth(r.Context())

	statusCode := http.StatusOK
	if health.Status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, health)
}

// handleReady is the readiness check for load balancers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request, _ hr.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.checks[name].Check(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, envelope{
				"status":  "not_ready",
				"message": name + " unavailable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, envelope{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleLive provides a liveness check (is the process running?)
func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request, _ hr.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) checkHealth(ctx context.Context) Health {
	health := Health{
		Timestamp:    time.Now(),
		Version:      s.cfg.Version,
		LiveSessions: s.hub.Sessions(),
		Components:   make(map[string]ComponentHealth, len(s.checks)),
	}
	for name, c := range s.checks {
		health.Components[name] = runCheck(ctx, c)
	}
	health.Status = determineOverallHealth(health.Components)
	return health
}

func runCheck(ctx context.Context, c Checker) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := c.Check(ctx); err != nil {
		return ComponentHealth{Status: ComponentStatusDown, Message: err.Error()}
	}
	latency := time.Since(start)
	ch := ComponentHealth{
		Status:    ComponentStatusUp,
		LatencyMs: float64(latency.Microseconds()) / 1000,
	}
	if latency > slowCheck {
		ch.Status = ComponentStatusDegraded
		ch.Message = "latency high"
	}
	return ch
}

// determineOverallHealth calculates overall health from component statuses
func determineOverallHealth(components map[string]ComponentHealth) HealthStatus {
	var (
		downCount     int
		degradedCount int
	)

	for _, component := range components {
		switch component.Status {
		case ComponentStatusDown:
			downCount++
		case ComponentStatusDegraded:
			degradedCount++
		}
	}

	// If any critical component is down, system is unhealthy
	if downCount > 0 {
		return HealthStatusUnhealthy
	}

	// If any component is degraded, system is degraded
	if degradedCount > 0 {
		return HealthStatusDegraded
	}

	return HealthStatusHealthy
}

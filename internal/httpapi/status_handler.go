package httpapi

import (
	"context"
	"net/http"
	"time"

	"sensorstream/internal/consumer"
	"sensorstream/internal/registry"
)

// StatusResult is the payload of GET /healthz.
type StatusResult struct {
	Status          string                   `json:"status"`
	StartedAt       time.Time                `json:"started_at"`
	SensorLog       string                   `json:"sensor_log"`
	ConnectionCount int                      `json:"connection_count"`
	Connections     []registry.Info          `json:"connections"`
	Metrics         consumer.MetricsSnapshot `json:"metrics"`
	Services        map[string]string        `json:"services"`
}

// ReceiverState is what the status endpoint reports on.
type ReceiverState interface {
	Connections() []registry.Info
	Metrics() *consumer.Metrics
}

// HealthCheck pings one optional backend.
type HealthCheck func(ctx context.Context) error

type StatusHandler struct {
	startedAt time.Time
	sensorLog string
	state     ReceiverState
	checks    map[string]HealthCheck
}

// NewStatusHandler reports on state. checks maps a backend name (redis,
// mqtt, database) to its ping; backends that are not configured are omitted.
func NewStatusHandler(startedAt time.Time, sensorLog string, state ReceiverState, checks map[string]HealthCheck) *StatusHandler {
	return &StatusHandler{
		startedAt: startedAt,
		sensorLog: sensorLog,
		state:     state,
		checks:    checks,
	}
}

// Health answers 200 with the receiver status, or 503 when a configured
// backend fails its ping. Backends only mirror data, so ingestion goes on
// either way.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	services := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := check(ctx)
		cancel()
		if err != nil {
			status = "unhealthy"
			services[name] = "unhealthy: " + err.Error()
		} else {
			services[name] = "healthy"
		}
	}

	conns := h.state.Connections()
	result := StatusResult{
		Status:          status,
		StartedAt:       h.startedAt,
		SensorLog:       h.sensorLog,
		ConnectionCount: len(conns),
		Connections:     conns,
		Metrics:         h.state.Metrics().GetSnapshot(),
		Services:        services,
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, Ok(result))
}

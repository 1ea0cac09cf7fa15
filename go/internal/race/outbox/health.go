package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type HealthStatus struct {
	Healthy           bool      `json:"healthy"`
	LastEventTime     time.Time `json:"last_event_time"`
	EventsProcessed   uint64    `json:"events_processed"`
	EventsFailed      uint64    `json:"events_failed"`
	PendingEvents     int       `json:"pending_events"`
	DatabaseConnected bool      `json:"database_connected"`
	SinkConnected     bool      `json:"sink_connected"`
	ListenerActive    bool      `json:"listener_active"`
	Errors            []string  `json:"errors"`
}

// Backlog reports the state of the outbox table.
type Backlog interface {
	Ping(ctx context.Context) error
	CountUnsent(ctx context.Context) (int, error)
}

// Connectivity is implemented by sinks that hold a connection, like JetStreamPublisher.
type Connectivity interface {
	IsConnected() bool
}

// HealthChecker reports whether the relay is keeping up.
type HealthChecker struct {
	relay     *Relay
	listener  interface{ Active() bool }
	backlog   Backlog
	sink      Connectivity
	threshold time.Duration // How long pending events may wait before unhealthy
	maxLag    int
}

// NewHealthChecker builds a checker. listener and sink may be nil.
func NewHealthChecker(relay *Relay, listener interface{ Active() bool }, backlog Backlog, sink Connectivity, threshold time.Duration) *HealthChecker {
	return &HealthChecker{
		relay:     relay,
		listener:  listener,
		backlog:   backlog,
		sink:      sink,
		threshold: threshold,
		maxLag:    1000,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}
	status.EventsProcessed, status.EventsFailed, status.LastEventTime = h.relay.Stats()

	if err := h.backlog.Ping(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	status.SinkConnected = true
	if h.sink != nil && !h.sink.IsConnected() {
		status.SinkConnected = false
		status.Healthy = false
		status.Errors = append(status.Errors, "event sink disconnected")
	}

	status.ListenerActive = h.listener == nil || h.listener.Active()
	if !status.ListenerActive {
		status.Healthy = false
		status.Errors = append(status.Errors, "listener not active")
	}

	if status.DatabaseConnected {
		pending, err := h.backlog.CountUnsent(ctx)
		if err != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("failed to count pending events: %v", err))
		} else {
			status.PendingEvents = pending
			if pending > h.maxLag {
				status.Errors = append(status.Errors, fmt.Sprintf("high pending event count: %d", pending))
			}
		}
	}

	if status.PendingEvents > 0 && !status.LastEventTime.IsZero() {
		if since := time.Since(status.LastEventTime); since > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no events processed for %s", since.Round(time.Second)))
		}
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

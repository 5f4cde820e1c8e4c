package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// pendingAlarm is the backlog size that gets reported as an error
const pendingAlarm = 1000

type HealthStatus struct {
	Healthy           bool      `json:"healthy"`
	LastEventTime     time.Time `json:"lastEventTime"`
	EventsProcessed   uint64    `json:"eventsProcessed"`
	PendingEvents     int       `json:"pendingEvents"`
	DatabaseConnected bool      `json:"databaseConnected"`
	NATSConnected     bool      `json:"natsConnected"`
	ListenerActive    bool      `json:"listenerActive"`
	Errors            []string  `json:"errors"`
}

// Pinger is satisfied by *sql.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ConnStatus is satisfied by *nats.Conn
type ConnStatus interface {
	IsConnected() bool
}

// ActivityReporter is satisfied by *Listener
type ActivityReporter interface {
	Active() bool
}

type HealthChecker struct {
	app       *App
	repo      Repository
	db        Pinger
	nats      ConnStatus
	listener  ActivityReporter
	clock     clockwork.Clock
	threshold time.Duration // How long without events before unhealthy
}

func NewHealthChecker(app *App, repo Repository, db Pinger, nats ConnStatus, listener ActivityReporter, clock clockwork.Clock, threshold time.Duration) *HealthChecker {
	return &HealthChecker{
		app:       app,
		repo:      repo,
		db:        db,
		nats:      nats,
		listener:  listener,
		clock:     clock,
		threshold: threshold,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	status.EventsProcessed, status.LastEventTime = h.app.Stats()

	if err := h.db.PingContext(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	if h.nats != nil {
		status.NATSConnected = h.nats.IsConnected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	status.ListenerActive = h.listener.Active()
	if !status.ListenerActive {
		status.Healthy = false
		status.Errors = append(status.Errors, "listener not active")
	}

	if status.DatabaseConnected {
		pending, err := h.repo.CountPending(ctx)
		if err != nil {
			status.Errors = append(status.Errors, err.Error())
		} else {
			status.PendingEvents = pending
			if pending > pendingAlarm {
				status.Errors = append(status.Errors, fmt.Sprintf("high pending event count: %d", pending))
			}
		}
	}

	// A backlog with nothing relayed lately means the relay is stuck
	if status.PendingEvents > 0 && !status.LastEventTime.IsZero() {
		since := h.clock.Since(status.LastEventTime)
		if since > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no events processed for %s", since))
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

	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to encode health status")
	}
}

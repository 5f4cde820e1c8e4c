package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

type ListenerConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to poll for missed events
	PingInterval     time.Duration
	MinReconnect     time.Duration
	MaxReconnect     time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:    "auction_outbox_events",
		FallbackInterval: 30 * time.Second,
		PingInterval:     90 * time.Second,
		MinReconnect:     10 * time.Second,
		MaxReconnect:     time.Minute,
	}
}

// Listener relays outbox rows as soon as Postgres notifies about them,
// with a periodic poll for anything a lost connection made it miss.
type Listener struct {
	app      *App
	listener *pq.Listener
	cfg      ListenerConfig
	clock    clockwork.Clock

	mu      sync.Mutex
	running bool
}

func NewListener(app *App, cfg ListenerConfig, clock clockwork.Clock) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		cfg.MinReconnect,
		cfg.MaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Int("event", int(ev)).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for notifications")

	return &Listener{
		app:      app,
		listener: l,
		cfg:      cfg,
		clock:    clock,
	}, nil
}

// Start relays events until ctx is done, then closes the LISTEN connection
func (l *Listener) Start(ctx context.Context) error {
	l.run(ctx, l.listener.Notify, l.listener.Ping)
	return l.listener.Close()
}

func (l *Listener) run(ctx context.Context, notify <-chan *pq.Notification, ping func() error) {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("listener started")

	l.setRunning(true)
	defer l.setRunning(false)

	// Catch up on whatever piled up while nobody was listening
	l.processUnsent(ctx)

	pingTicker := l.clock.NewTicker(l.cfg.PingInterval)
	fallbackTicker := l.clock.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return
		case note := <-notify:
			if note == nil {
				// The connection was re-established; notifications may have been lost
				l.processUnsent(ctx)
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-fallbackTicker.Chan():
			l.processUnsent(ctx)
		case <-pingTicker.Chan():
			if err := ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

// handleNotification relays the event whose id is the notification payload
func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid event ID in notification: %w", err)
	}
	return l.app.PublishByID(ctx, id)
}

func (l *Listener) processUnsent(ctx context.Context) {
	if _, err := l.app.ProcessUnsent(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("failed to process unsent events")
	}
}

// Active reports whether the relay loop is running
func (l *Listener) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Listener) setRunning(running bool) {
	l.mu.Lock()
	l.running = running
	l.mu.Unlock()
}

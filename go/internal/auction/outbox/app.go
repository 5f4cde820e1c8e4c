package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Config controls batching and publish retries
type Config struct {
	BatchSize  int
	MaxRetries int
	RetryDelay time.Duration // grows linearly with the attempt number
}

func DefaultConfig() Config {
	return Config{
		BatchSize:  100,
		MaxRetries: 5,
		RetryDelay: 200 * time.Millisecond,
	}
}

// App moves unsent outbox rows onto the bus and marks them sent
type App struct {
	repo      Repository
	publisher Publisher
	cfg       Config
	clock     clockwork.Clock

	mu            sync.Mutex
	processed     uint64
	lastEventTime time.Time
}

// NewApp creates a new outbox App
func NewApp(repo Repository, publisher Publisher, cfg Config, clock clockwork.Clock) *App {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	return &App{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		clock:     clock,
	}
}

// PublishByID relays a single event named by a notification.
// An event that is gone or already sent is not an error.
func (a *App) PublishByID(ctx context.Context, id uuid.UUID) error {
	event, err := a.repo.FetchByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			log.Debug().Str("event_id", id.String()).Msg("event already relayed")
			return nil
		}
		return fmt.Errorf("failed to fetch outbox event: %w", err)
	}
	return a.relay(ctx, *event)
}

// ProcessUnsent relays one batch of unsent events and returns how many made it
func (a *App) ProcessUnsent(ctx context.Context) (int, error) {
	unsent, err := a.repo.FetchUnsent(ctx, a.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, event := range unsent {
		if err := a.relay(ctx, event); err != nil {
			if ctx.Err() != nil {
				return sent, ctx.Err()
			}
			log.Error().
				Err(err).
				Str("event_id", event.ID.String()).
				Str("event_type", event.EventType).
				Msg("failed to relay event")
			continue
		}
		sent++
	}

	if len(unsent) > 0 {
		log.Info().
			Int("processed", sent).
			Int("errors", len(unsent)-sent).
			Int("total", len(unsent)).
			Msg("processed unsent events batch")
	}
	return sent, nil
}

func (a *App) relay(ctx context.Context, event OutboxEvent) error {
	if err := a.publishWithRetry(ctx, event); err != nil {
		return err
	}
	if err := a.repo.MarkSent(ctx, event.ID); err != nil {
		return err
	}

	a.mu.Lock()
	a.processed++
	a.lastEventTime = a.clock.Now()
	a.mu.Unlock()

	log.Debug().
		Str("event_id", event.ID.String()).
		Str("auction_id", event.AuctionID.String()).
		Str("event_type", event.EventType).
		Msg("published and marked event as sent")
	return nil
}

func (a *App) publishWithRetry(ctx context.Context, event OutboxEvent) error {
	var lastErr error

	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-a.clock.After(a.cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := a.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", a.cfg.MaxRetries+1, lastErr)
}

// Stats reports how many events were relayed and when the last one went out
func (a *App) Stats() (uint64, time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.processed, a.lastEventTime
}

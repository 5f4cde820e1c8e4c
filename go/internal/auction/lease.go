package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrLeaseLost means another process now owns the runtime.
var ErrLeaseLost = errors.New("runtime lease lost")

// LeaseClient is the part of *redis.Client the runtime lease uses.
type LeaseClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

const (
	// both scripts act only while the key still holds our token
	refreshScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("PEXPIRE", KEYS[1], ARGV[2]) else return 0 end`
	releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`
)

// RuntimeLease elects the single runtime process that owns countdowns, bot
// rotations and the recent-bid cache. Countdowns live in process memory, so a
// second process pointed at the same database waits as a standby instead of
// serving bids.
type RuntimeLease struct {
	client LeaseClient
	clock  clockwork.Clock
	key    string
	token  string
	ttl    time.Duration
	retry  time.Duration
}

// NewRuntimeLease creates a lease. ttl bounds how long a crashed owner blocks a standby.
func NewRuntimeLease(client LeaseClient, clock clockwork.Clock, ttl time.Duration) *RuntimeLease {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RuntimeLease{
		client: client,
		clock:  clock,
		key:    "pennyauction:runtime:owner",
		token:  uuid.NewString(),
		ttl:    ttl,
		retry:  ttl / 5,
	}
}

// Acquire blocks until this process owns the runtime or ctx is done.
func (l *RuntimeLease) Acquire(ctx context.Context) error {
	waiting := false
	for {
		ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("failed to acquire runtime lease: %w", err)
		}
		if ok {
			log.Info().Str("token", l.token).Dur("ttl", l.ttl).Msg("runtime lease acquired")
			return nil
		}
		if !waiting {
			log.Info().Msg("another runtime owns the auctions, waiting as standby")
			waiting = true
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(l.retry):
		}
	}
}

// Keep refreshes the lease every third of its ttl until ctx is done. It returns
// ErrLeaseLost when the key changed hands or could not be refreshed for a full ttl.
func (l *RuntimeLease) Keep(ctx context.Context) error {
	ticker := l.clock.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	lastRefresh := l.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		}

		held, err := l.client.Eval(ctx, refreshScript, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Msg("failed to refresh runtime lease")
			if l.clock.Now().Sub(lastRefresh) >= l.ttl {
				return fmt.Errorf("%w: not refreshed for %s", ErrLeaseLost, l.ttl)
			}
		case held == 0:
			return ErrLeaseLost
		default:
			lastRefresh = l.clock.Now()
		}
	}
}

// Release frees the lease so a standby can take over right away.
func (l *RuntimeLease) Release() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Err(); err != nil {
		log.Warn().Err(err).Msg("failed to release runtime lease")
		return
	}
	log.Info().Msg("runtime lease released")
}

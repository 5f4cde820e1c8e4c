// Package timer runs one repeating one-second countdown per live auction.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Handler receives countdown callbacks. Calls for one auction never overlap.
type Handler interface {
	// OnTick runs after every decrement, including the one that reaches zero.
	OnTick(ctx context.Context, auctionID uuid.UUID, remaining int)
	// OnExpire runs once the countdown reached zero and the timer was removed.
	OnExpire(ctx context.Context, auctionID uuid.UUID)
}

type entry struct {
	remaining int
	ticker    clockwork.Ticker
	done      chan struct{}
	stopOnce  sync.Once
}

func (e *entry) stop() {
	e.stopOnce.Do(func() {
		e.ticker.Stop()
		close(e.done)
	})
}

// Engine owns the countdowns of all running auctions.
type Engine struct {
	clock           clockwork.Clock
	handler         Handler
	defaultDuration int
	tickInterval    time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	timers map[uuid.UUID]*entry
}

// NewEngine creates an engine. defaultSeconds is used when Start/Reset get a non-positive value.
func NewEngine(clock clockwork.Clock, handler Handler, defaultSeconds int) *Engine {
	if defaultSeconds <= 0 {
		defaultSeconds = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		clock:           clock,
		handler:         handler,
		defaultDuration: defaultSeconds,
		tickInterval:    time.Second,
		ctx:             ctx,
		cancel:          cancel,
		timers:          make(map[uuid.UUID]*entry),
	}
}

func (e *Engine) seconds(s int) int {
	if s <= 0 {
		return e.defaultDuration
	}
	return s
}

// Start begins a countdown, replacing any existing one for the auction.
func (e *Engine) Start(auctionID uuid.UUID, seconds int) {
	ent := &entry{
		remaining: e.seconds(seconds),
		ticker:    e.clock.NewTicker(e.tickInterval),
		done:      make(chan struct{}),
	}

	e.mu.Lock()
	if existing, ok := e.timers[auctionID]; ok {
		existing.stop()
		log.Debug().Str("auction_id", auctionID.String()).Msg("replaced existing countdown")
	}
	e.timers[auctionID] = ent
	e.mu.Unlock()

	go e.run(auctionID, ent)

	log.Debug().
		Str("auction_id", auctionID.String()).
		Int("seconds", ent.remaining).
		Msg("countdown started")
}

// Reset puts the remaining time back to seconds without touching the tick cadence.
// It behaves like Start when no countdown exists.
func (e *Engine) Reset(auctionID uuid.UUID, seconds int) {
	e.mu.Lock()
	ent, ok := e.timers[auctionID]
	if ok {
		ent.remaining = e.seconds(seconds)
	}
	e.mu.Unlock()

	if !ok {
		e.Start(auctionID, seconds)
	}
}

// Stop cancels the countdown. Stopping an unknown auction is a no-op.
func (e *Engine) Stop(auctionID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ent, ok := e.timers[auctionID]; ok {
		ent.stop()
		delete(e.timers, auctionID)
		log.Debug().Str("auction_id", auctionID.String()).Msg("countdown stopped")
	}
}

// Remaining returns the seconds left, or 0 when no countdown runs.
func (e *Engine) Remaining(auctionID uuid.UUID) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ent, ok := e.timers[auctionID]; ok {
		return ent.remaining
	}
	return 0
}

// Running reports whether a countdown exists for the auction.
func (e *Engine) Running(auctionID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.timers[auctionID]
	return ok
}

// AllRemaining snapshots every running countdown.
func (e *Engine) AllRemaining() map[uuid.UUID]int {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[uuid.UUID]int, len(e.timers))
	for id, ent := range e.timers {
		out[id] = ent.remaining
	}
	return out
}

// Shutdown stops every countdown and cancels in-flight handler contexts.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	for id, ent := range e.timers {
		ent.stop()
		log.Debug().Str("auction_id", id.String()).Msg("cancelled countdown on shutdown")
	}
	e.timers = make(map[uuid.UUID]*entry)
	e.mu.Unlock()

	e.cancel()
}

func (e *Engine) run(auctionID uuid.UUID, ent *entry) {
	for {
		select {
		case <-ent.done:
			return
		case <-e.ctx.Done():
			return
		case <-ent.ticker.Chan():
			e.tick(auctionID, ent)
		}
	}
}

func (e *Engine) tick(auctionID uuid.UUID, ent *entry) {
	e.mu.Lock()
	if e.timers[auctionID] != ent {
		// replaced or stopped between the tick and now
		e.mu.Unlock()
		return
	}
	if ent.remaining > 0 {
		ent.remaining--
	}
	remaining := ent.remaining
	expired := remaining <= 0
	if expired {
		ent.stop()
		delete(e.timers, auctionID)
	}
	e.mu.Unlock()

	e.safely(auctionID, "tick", func() { e.handler.OnTick(e.ctx, auctionID, remaining) })
	if expired {
		log.Info().Str("auction_id", auctionID.String()).Msg("countdown expired")
		e.safely(auctionID, "expire", func() { e.handler.OnExpire(e.ctx, auctionID) })
	}
}

// safely isolates a handler failure to the auction and callback it happened in.
func (e *Engine) safely(auctionID uuid.UUID, phase string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("auction_id", auctionID.String()).
				Str("phase", phase).
				Msg("countdown handler panicked")
		}
	}()
	fn()
}

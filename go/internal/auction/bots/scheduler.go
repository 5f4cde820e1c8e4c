// Package bots decides when automated bidders join a live auction and which one bids.
package bots

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/pennyauction/go/internal/models"
	"github.com/rs/zerolog/log"
)

// BotStore is what the scheduler needs from persistence.
type BotStore interface {
	ListBotAssignments(ctx context.Context, auctionID uuid.UUID) ([]models.BotAssignment, error)
}

// Bidder places a bot bid through the auction state machine.
type Bidder interface {
	PlaceBotBid(ctx context.Context, auctionID, botID uuid.UUID) error
}

type auctionState struct {
	rotation int
	lastBid  time.Time
	busy     bool
}

// Scheduler keeps per-auction rotation state. Create one per runtime.
type Scheduler struct {
	clock   clockwork.Clock
	store   BotStore
	decide  Decider
	bidder  Bidder
	spacing time.Duration

	mu          sync.Mutex
	enabled     bool
	checkpoints map[int]bool
	auctions    map[uuid.UUID]*auctionState
}

// NewScheduler creates a scheduler. A nil decide uses the settings' checkpoint probabilities.
func NewScheduler(clock clockwork.Clock, store BotStore, bidder Bidder, decide Decider, settings Settings) *Scheduler {
	if decide == nil {
		decide = NewCheckpointDecider(settings.Checkpoints, nil)
	}
	cps := make(map[int]bool, len(settings.Checkpoints))
	for _, cp := range settings.Checkpoints {
		cps[cp.Remaining] = true
	}
	return &Scheduler{
		clock:       clock,
		store:       store,
		decide:      decide,
		bidder:      bidder,
		spacing:     settings.MinSpacing,
		enabled:     settings.Enabled,
		checkpoints: cps,
		auctions:    make(map[uuid.UUID]*auctionState),
	}
}

// SetEnabled toggles bot bidding for every auction.
func (s *Scheduler) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
	log.Info().Bool("enabled", enabled).Msg("bot bidding toggled")
}

// Enabled reports the global toggle.
func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// StartForAuction resets rotation state for a newly live auction.
func (s *Scheduler) StartForAuction(auctionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auctions[auctionID] = &auctionState{}
	log.Debug().Str("auction_id", auctionID.String()).Msg("bot rotation started")
}

// StopForAuction discards all state kept for the auction.
func (s *Scheduler) StopForAuction(auctionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.auctions[auctionID]; ok {
		delete(s.auctions, auctionID)
		log.Debug().Str("auction_id", auctionID.String()).Msg("bot rotation stopped")
	}
}

// Active reports whether the auction has rotation state.
func (s *Scheduler) Active(auctionID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.auctions[auctionID]
	return ok
}

// Shutdown drops the state of every auction.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auctions = make(map[uuid.UUID]*auctionState)
}

// CheckAndPlaceBotBid runs the per-tick bot policy. It returns true when a bot bid was accepted.
func (s *Scheduler) CheckAndPlaceBotBid(ctx context.Context, auctionID uuid.UUID, remaining int) (bool, error) {
	s.mu.Lock()
	st, ok := s.auctions[auctionID]
	if !ok || !s.enabled || s.bidder == nil || !s.checkpoints[remaining] {
		s.mu.Unlock()
		return false, nil
	}
	if !s.decide(remaining) {
		s.mu.Unlock()
		return false, nil
	}
	if st.busy {
		s.mu.Unlock()
		log.Debug().Str("auction_id", auctionID.String()).Msg("bot bid already in progress")
		return false, nil
	}
	now := s.clock.Now()
	if !st.lastBid.IsZero() && now.Sub(st.lastBid) < s.spacing {
		s.mu.Unlock()
		log.Debug().Str("auction_id", auctionID.String()).Msg("bot bid too soon after previous")
		return false, nil
	}
	st.busy = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		st.busy = false
		s.mu.Unlock()
	}()

	assignments, err := s.store.ListBotAssignments(ctx, auctionID)
	if err != nil {
		return false, fmt.Errorf("failed to list bot assignments: %w", err)
	}
	eligible := Eligible(assignments)

	// a lone bot stays the standing bidder instead of outbidding itself
	if len(eligible) < 2 {
		return false, nil
	}

	s.mu.Lock()
	pick := eligible[st.rotation%len(eligible)]
	st.rotation++
	s.mu.Unlock()

	if err := s.bidder.PlaceBotBid(ctx, auctionID, pick.BotID); err != nil {
		return false, fmt.Errorf("failed to place bot bid: %w", err)
	}

	// only accepted bids count toward spacing
	s.mu.Lock()
	st.lastBid = now
	s.mu.Unlock()

	log.Info().
		Str("auction_id", auctionID.String()).
		Str("bot_id", pick.BotID.String()).
		Int("remaining", remaining).
		Msg("bot bid placed")
	return true, nil
}

// Eligible filters assignments down to bots allowed to bid and orders them by
// remaining allowance, fewest first, so the rotation is predictable.
func Eligible(assignments []models.BotAssignment) []models.BotAssignment {
	out := make([]models.BotAssignment, 0, len(assignments))
	for _, a := range assignments {
		if a.Eligible() {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Remaining(), out[j].Remaining()
		if ri != rj {
			return ri < rj
		}
		return out[i].BotID.String() < out[j].BotID.String()
	})
	return out
}

// Package auction is the authoritative state machine for penny auctions: it
// promotes upcoming auctions, accepts human, prebid and bot bids, and finalizes
// auctions when their countdown runs out.
package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/pennyauction/go/internal/auction/bots"
	"github.com/mcdev12/pennyauction/go/internal/auction/events"
	"github.com/mcdev12/pennyauction/go/internal/auction/timer"
	"github.com/mcdev12/pennyauction/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Config tunes the runtime.
type Config struct {
	CountdownSeconds int
	DisplayPrefix    string
	SnapshotBids     int
	RecentCacheSize  int
	SweepInterval    time.Duration
}

// DefaultConfig mirrors the environment defaults.
func DefaultConfig() Config {
	return Config{
		CountdownSeconds: models.DefaultCountdownSeconds,
		DisplayPrefix:    "PA",
		SnapshotBids:     5,
		RecentCacheSize:  1024,
		SweepInterval:    time.Second,
	}
}

// Options carries the collaborators of an App. Nil fields get defaults.
type Options struct {
	Clock       clockwork.Clock
	Broadcaster Broadcaster
	Locker      Locker
	BotSettings *bots.Settings
	Decider     bots.Decider
}

// App is the bid/auction state machine. It owns the countdown engine and the
// bot scheduler of its process.
type App struct {
	store       Store
	cfg         Config
	clock       clockwork.Clock
	broadcaster Broadcaster
	locker      Locker
	timers      *timer.Engine
	bots        *bots.Scheduler
	recent      *lru.Cache
}

// NewApp wires the state machine with its own timer engine and bot scheduler.
func NewApp(store Store, cfg Config, opts Options) (*App, error) {
	def := DefaultConfig()
	if cfg.CountdownSeconds <= 0 {
		cfg.CountdownSeconds = def.CountdownSeconds
	}
	if cfg.DisplayPrefix == "" {
		cfg.DisplayPrefix = def.DisplayPrefix
	}
	if cfg.SnapshotBids <= 0 {
		cfg.SnapshotBids = def.SnapshotBids
	}
	if cfg.RecentCacheSize <= 0 {
		cfg.RecentCacheSize = def.RecentCacheSize
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Broadcaster == nil {
		opts.Broadcaster = nopBroadcaster{}
	}
	if opts.Locker == nil {
		opts.Locker = NewKeyedMutex()
	}
	settings := bots.DefaultSettings()
	if opts.BotSettings != nil {
		settings = *opts.BotSettings
	}

	recent, err := lru.New(cfg.RecentCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create recent bid cache: %w", err)
	}

	a := &App{
		store:       store,
		cfg:         cfg,
		clock:       opts.Clock,
		broadcaster: opts.Broadcaster,
		locker:      opts.Locker,
		recent:      recent,
	}
	a.timers = timer.NewEngine(opts.Clock, a, cfg.CountdownSeconds)
	a.bots = bots.NewScheduler(opts.Clock, store, a, opts.Decider, settings)
	return a, nil
}

func (a *App) now() time.Time { return a.clock.Now().UTC() }

// StartAuction moves an upcoming auction to live, converts its prebids into bids
// and starts its countdown and bot rotation.
func (a *App) StartAuction(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error) {
	unlock, err := a.locker.Lock(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		auc       *models.Auction
		converted []models.Bid
	)
	err = a.store.InTx(ctx, func(tx Store) error {
		var err error
		auc, err = tx.LockAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if !auc.Status.CanTransitionTo(models.AuctionStatusLive) {
			return fmt.Errorf("cannot start %s auction: %w", auc.Status, ErrWrongStatus)
		}

		prebids, err := tx.ListPrebids(ctx, auctionID)
		if err != nil {
			return err
		}
		now := a.now()
		converted = convertPrebids(*auc, prebids, now)
		for i := range converted {
			if err := tx.CreateBid(ctx, &converted[i]); err != nil {
				return err
			}
		}

		auc.Status = models.AuctionStatusLive
		auc.CurrentPrice = auc.StartingPrice.Add(auc.BidIncrement, len(converted))
		auc.UpdatedAt = now
		if err := tx.UpdateAuction(ctx, auc); err != nil {
			return err
		}

		return a.emit(ctx, tx, auctionID, events.AuctionStarted, events.AuctionStartedPayload{
			AuctionID:        auctionID.String(),
			DisplayCode:      auc.DisplayCode,
			StartedAt:        now,
			ConvertedPrebids: len(converted),
			CurrentPrice:     auc.CurrentPrice,
			CountdownSeconds: a.countdown(*auc),
		})
	})
	if err != nil {
		return nil, err
	}

	newestFirst := make([]models.Bid, 0, len(converted))
	for i := len(converted) - 1; i >= 0 && len(newestFirst) < a.cfg.SnapshotBids; i-- {
		newestFirst = append(newestFirst, converted[i])
	}
	a.recent.Add(auctionID, newestFirst)

	a.timers.Start(auctionID, a.countdown(*auc))
	a.bots.StartForAuction(auctionID)
	a.broadcastAuction(*auc, newestFirst)

	log.Info().
		Str("auction_id", auctionID.String()).
		Int("converted_prebids", len(converted)).
		Str("current_price", auc.CurrentPrice.String()).
		Msg("auction started")
	return auc, nil
}

// convertPrebids turns prebids, oldest first, into the opening sequence of bids.
// It is the authoritative counterpart of previewPrice.
func convertPrebids(auc models.Auction, prebids []models.Prebid, now time.Time) []models.Bid {
	bids := make([]models.Bid, 0, len(prebids))
	for i, p := range prebids {
		bids = append(bids, models.Bid{
			ID:        uuid.New(),
			AuctionID: auc.ID,
			Owner:     models.UserOwner(p.UserID),
			Amount:    auc.StartingPrice.Add(auc.BidIncrement, i+1),
			CreatedAt: now,
		})
	}
	return bids
}

// previewPrice is the price an upcoming auction displays once it holds n prebids.
func previewPrice(auc models.Auction, n int) models.Cents {
	return auc.StartingPrice.Add(auc.BidIncrement, n)
}

// EndAuction finalizes a live auction and determines its winner.
func (a *App) EndAuction(ctx context.Context, auctionID uuid.UUID) (*models.Outcome, error) {
	unlock, err := a.locker.Lock(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		auc     *models.Auction
		outcome *models.Outcome
	)
	err = a.store.InTx(ctx, func(tx Store) error {
		var err error
		auc, err = tx.LockAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if !auc.Status.CanTransitionTo(models.AuctionStatusFinished) {
			return fmt.Errorf("cannot end %s auction: %w", auc.Status, ErrWrongStatus)
		}

		outcome, err = a.decideWinner(ctx, tx, *auc)
		if err != nil {
			return err
		}

		now := a.now()
		auc.Status = models.AuctionStatusFinished
		auc.EndTime = &now
		auc.UpdatedAt = now
		if id, ok := outcome.Winner.UserID(); ok {
			auc.WinnerID = &id
		}
		if err := tx.UpdateAuction(ctx, auc); err != nil {
			return err
		}

		return a.emit(ctx, tx, auctionID, events.AuctionFinished, events.AuctionFinishedPayload{
			AuctionID:  auctionID.String(),
			FinishedAt: now,
			FinalPrice: outcome.FinalPrice,
			Winner:     outcome.Winner,
			Source:     outcome.Source,
		})
	})
	if err != nil {
		return nil, err
	}

	a.timers.Stop(auctionID)
	a.bots.StopForAuction(auctionID)
	recent, err := a.recentBids(ctx, auctionID)
	if err != nil {
		log.Warn().Err(err).Str("auction_id", auctionID.String()).Msg("failed to load bids for final snapshot")
	}
	a.broadcastAuction(*auc, recent)

	log.Info().
		Str("auction_id", auctionID.String()).
		Str("winner", outcome.Winner.String()).
		Str("source", string(outcome.Source)).
		Str("final_price", outcome.FinalPrice.String()).
		Msg("auction finished")
	return outcome, nil
}

// decideWinner applies last-bid-wins, falling back to the earliest prebid when
// no bid was ever recorded.
func (a *App) decideWinner(ctx context.Context, tx Store, auc models.Auction) (*models.Outcome, error) {
	outcome := &models.Outcome{AuctionID: auc.ID, FinalPrice: auc.CurrentPrice, Source: models.WinnerNone}

	last, err := tx.ListRecentBids(ctx, auc.ID, 1)
	if err != nil {
		return nil, err
	}
	if len(last) > 0 {
		outcome.Winner = last[0].Owner
		outcome.Source = models.WinnerFromLastBid
		return outcome, nil
	}

	prebids, err := tx.ListPrebids(ctx, auc.ID)
	if err != nil {
		return nil, err
	}
	if len(prebids) > 0 {
		outcome.Winner = models.UserOwner(prebids[0].UserID)
		outcome.Source = models.WinnerFromFirstPrebid
	}
	return outcome, nil
}

// PlaceBid spends one of the user's bids to raise the price by one increment.
func (a *App) PlaceBid(ctx context.Context, auctionID, userID uuid.UUID) (*models.Bid, error) {
	unlock, err := a.locker.Lock(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		auc  *models.Auction
		user *models.User
		bid  *models.Bid
	)
	err = a.store.InTx(ctx, func(tx Store) error {
		var err error
		auc, err = tx.LockAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if auc.Status != models.AuctionStatusLive {
			return fmt.Errorf("cannot bid on %s auction: %w", auc.Status, ErrWrongStatus)
		}
		user, err = tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		if !user.CanBid() {
			return ErrInsufficientBalance
		}

		bid, err = a.acceptBid(ctx, tx, auc, models.UserOwner(userID))
		if err != nil {
			return err
		}

		user.BidBalance--
		return tx.UpdateUserBalance(ctx, userID, user.BidBalance)
	})
	if err != nil {
		return nil, err
	}

	a.afterBid(ctx, *auc, *bid)
	a.broadcaster.Balance(userID, user.BidBalance)

	log.Info().
		Str("auction_id", auctionID.String()).
		Str("user_id", userID.String()).
		Str("amount", bid.Amount.String()).
		Msg("bid placed")
	return bid, nil
}

// PlaceBotBid places a bid for an assigned bot. It never touches user balances.
func (a *App) PlaceBotBid(ctx context.Context, auctionID, botID uuid.UUID) error {
	unlock, err := a.locker.Lock(ctx, auctionID)
	if err != nil {
		return err
	}
	defer unlock()

	var (
		auc *models.Auction
		bid *models.Bid
	)
	err = a.store.InTx(ctx, func(tx Store) error {
		var err error
		auc, err = tx.LockAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if auc.Status != models.AuctionStatusLive {
			return fmt.Errorf("cannot bid on %s auction: %w", auc.Status, ErrWrongStatus)
		}

		assignments, err := tx.ListBotAssignments(ctx, auctionID)
		if err != nil {
			return err
		}
		assigned := false
		for _, ba := range assignments {
			if ba.BotID == botID {
				if !ba.Eligible() {
					return fmt.Errorf("bot %s is inactive or out of bids: %w", botID, ErrBotNotAssigned)
				}
				assigned = true
				break
			}
		}
		if !assigned {
			return ErrBotNotAssigned
		}

		bid, err = a.acceptBid(ctx, tx, auc, models.BotOwner(botID))
		if err != nil {
			return err
		}
		return tx.IncrementBotBids(ctx, auctionID, botID)
	})
	if err != nil {
		return err
	}

	a.afterBid(ctx, *auc, *bid)
	return nil
}

// acceptBid records the next bid and raises the price inside tx.
func (a *App) acceptBid(ctx context.Context, tx Store, auc *models.Auction, owner models.BidOwner) (*models.Bid, error) {
	now := a.now()
	bid := &models.Bid{
		ID:        uuid.New(),
		AuctionID: auc.ID,
		Owner:     owner,
		Amount:    auc.CurrentPrice + auc.BidIncrement,
		CreatedAt: now,
	}
	if err := tx.CreateBid(ctx, bid); err != nil {
		return nil, err
	}

	auc.CurrentPrice = bid.Amount
	auc.UpdatedAt = now
	if err := tx.UpdateAuction(ctx, auc); err != nil {
		return nil, err
	}

	err := a.emit(ctx, tx, auc.ID, events.BidPlaced, events.BidPlacedPayload{
		AuctionID: auc.ID.String(),
		BidID:     bid.ID.String(),
		Owner:     owner,
		Amount:    bid.Amount,
		PlacedAt:  now,
	})
	if err != nil {
		return nil, err
	}
	return bid, nil
}

// afterBid runs inside the auction's critical section once the bid committed.
func (a *App) afterBid(ctx context.Context, auc models.Auction, bid models.Bid) {
	recent := a.pushRecent(ctx, auc.ID, bid)
	countdown := a.countdown(auc)
	a.timers.Reset(auc.ID, countdown)
	a.broadcaster.Timer(auc.ID, countdown)
	a.broadcastAuction(auc, recent)
}

// PlacePrebid reserves a spot in an upcoming auction's opening bids.
func (a *App) PlacePrebid(ctx context.Context, auctionID, userID uuid.UUID) (*models.Prebid, error) {
	unlock, err := a.locker.Lock(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		auc    *models.Auction
		user   *models.User
		prebid *models.Prebid
	)
	err = a.store.InTx(ctx, func(tx Store) error {
		var err error
		auc, err = tx.LockAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if auc.Status != models.AuctionStatusUpcoming {
			return fmt.Errorf("cannot prebid on %s auction: %w", auc.Status, ErrWrongStatus)
		}
		user, err = tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		exists, err := tx.HasPrebid(ctx, auctionID, userID)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicatePrebid
		}
		if !user.CanBid() {
			return ErrInsufficientBalance
		}

		now := a.now()
		prebid = &models.Prebid{ID: uuid.New(), AuctionID: auctionID, UserID: userID, CreatedAt: now}
		if err := tx.CreatePrebid(ctx, prebid); err != nil {
			return err
		}
		user.BidBalance--
		if err := tx.UpdateUserBalance(ctx, userID, user.BidBalance); err != nil {
			return err
		}

		prebids, err := tx.ListPrebids(ctx, auctionID)
		if err != nil {
			return err
		}
		auc.CurrentPrice = previewPrice(*auc, len(prebids))
		auc.UpdatedAt = now
		if err := tx.UpdateAuction(ctx, auc); err != nil {
			return err
		}

		return a.emit(ctx, tx, auctionID, events.PrebidPlaced, events.PrebidPlacedPayload{
			AuctionID:    auctionID.String(),
			PrebidID:     prebid.ID.String(),
			UserID:       userID.String(),
			PreviewPrice: auc.CurrentPrice,
			PlacedAt:     now,
		})
	})
	if err != nil {
		return nil, err
	}

	a.broadcaster.Balance(userID, user.BidBalance)
	a.broadcastAuction(*auc, nil)

	log.Info().
		Str("auction_id", auctionID.String()).
		Str("user_id", userID.String()).
		Str("preview_price", auc.CurrentPrice.String()).
		Msg("prebid placed")
	return prebid, nil
}

// CheckUpcomingAuctions starts every upcoming auction whose start time has passed.
// Failures of one auction are logged and do not stop the others.
func (a *App) CheckUpcomingAuctions(ctx context.Context) (int, error) {
	upcoming, err := a.store.ListAuctionsByStatus(ctx, models.AuctionStatusUpcoming)
	if err != nil {
		return 0, fmt.Errorf("failed to list upcoming auctions: %w", err)
	}

	now := a.now()
	started := 0
	for _, auc := range upcoming {
		if auc.StartTime.After(now) {
			continue
		}
		if _, err := a.StartAuction(ctx, auc.ID); err != nil {
			if errors.Is(err, ErrWrongStatus) {
				// started concurrently
				continue
			}
			log.Error().Err(err).Str("auction_id", auc.ID.String()).Msg("failed to start auction")
			continue
		}
		started++
	}
	return started, nil
}

// RunUpcomingSweep calls CheckUpcomingAuctions every sweep interval until ctx is done.
func (a *App) RunUpcomingSweep(ctx context.Context) {
	ticker := a.clock.NewTicker(a.cfg.SweepInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", a.cfg.SweepInterval).Msg("upcoming auction sweep started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("upcoming auction sweep stopped")
			return
		case <-ticker.Chan():
			if _, err := a.CheckUpcomingAuctions(ctx); err != nil {
				log.Error().Err(err).Msg("upcoming auction sweep failed")
			}
		}
	}
}

// RestartLiveAuctions resumes countdowns and bot rotations after a process restart.
// Prices and bids are left as persisted.
func (a *App) RestartLiveAuctions(ctx context.Context) (int, error) {
	live, err := a.store.ListAuctionsByStatus(ctx, models.AuctionStatusLive)
	if err != nil {
		return 0, fmt.Errorf("failed to list live auctions: %w", err)
	}
	for _, auc := range live {
		a.timers.Start(auc.ID, a.countdown(auc))
		a.bots.StartForAuction(auc.ID)
		log.Info().Str("auction_id", auc.ID.String()).Msg("resumed live auction")
	}
	return len(live), nil
}

// OnTick implements timer.Handler.
func (a *App) OnTick(ctx context.Context, auctionID uuid.UUID, remaining int) {
	placed, err := a.bots.CheckAndPlaceBotBid(ctx, auctionID, remaining)
	if err != nil {
		log.Error().Err(err).Str("auction_id", auctionID.String()).Int("remaining", remaining).Msg("bot bid failed")
	}
	if placed {
		// the bid already reset and announced the countdown
		return
	}
	a.broadcaster.Timer(auctionID, remaining)
}

// OnExpire implements timer.Handler. A finalize that fails on infrastructure
// re-arms a one-second countdown so the next tick tries again.
func (a *App) OnExpire(ctx context.Context, auctionID uuid.UUID) {
	_, err := a.EndAuction(ctx, auctionID)
	switch {
	case err == nil:
	case IsValidation(err):
		a.bots.StopForAuction(auctionID)
		log.Debug().Err(err).Str("auction_id", auctionID.String()).Msg("expired auction was already finished or removed")
	case ctx.Err() != nil:
		// shutting down; RestartLiveAuctions picks it up again
	default:
		log.Error().Err(err).Str("auction_id", auctionID.String()).Msg("failed to finalize expired auction, retrying")
		a.timers.Start(auctionID, 1)
	}
}

// CreateAuctionRequest holds the admin input for a new auction.
type CreateAuctionRequest struct {
	Title            string       `json:"title"`
	Description      string       `json:"description"`
	ImageURL         string       `json:"imageUrl"`
	RetailPrice      models.Cents `json:"retailPrice"`
	StartingPrice    models.Cents `json:"startingPrice"`
	BidIncrement     models.Cents `json:"bidIncrement"`
	StartTime        time.Time    `json:"startTime"`
	CountdownSeconds int          `json:"countdownSeconds"`
	IsBidPackage     bool         `json:"isBidPackage"`
}

func (r CreateAuctionRequest) validate() error {
	switch {
	case strings.TrimSpace(r.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidRequest)
	case r.BidIncrement <= 0:
		return fmt.Errorf("%w: bid increment must be positive", ErrInvalidRequest)
	case r.StartingPrice < 0 || r.RetailPrice < 0:
		return fmt.Errorf("%w: prices must not be negative", ErrInvalidRequest)
	case r.CountdownSeconds < 0:
		return fmt.Errorf("%w: countdown must not be negative", ErrInvalidRequest)
	case r.StartTime.IsZero():
		return fmt.Errorf("%w: start time is required", ErrInvalidRequest)
	}
	return nil
}

// CreateAuction adds an upcoming auction with the next display code.
func (a *App) CreateAuction(ctx context.Context, req CreateAuctionRequest) (*models.Auction, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := a.now()
	auc := &models.Auction{
		ID:               uuid.New(),
		Title:            strings.TrimSpace(req.Title),
		Description:      req.Description,
		ImageURL:         req.ImageURL,
		RetailPrice:      req.RetailPrice,
		StartingPrice:    req.StartingPrice,
		CurrentPrice:     req.StartingPrice,
		BidIncrement:     req.BidIncrement,
		Status:           models.AuctionStatusUpcoming,
		StartTime:        req.StartTime.UTC(),
		CountdownSeconds: req.CountdownSeconds,
		IsBidPackage:     req.IsBidPackage,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := a.store.InTx(ctx, func(tx Store) error {
		n, err := tx.NextDisplayNumber(ctx)
		if err != nil {
			return err
		}
		auc.DisplayCode = models.FormatDisplayCode(a.cfg.DisplayPrefix, n)
		return tx.CreateAuction(ctx, auc)
	})
	if err != nil {
		return nil, err
	}

	a.broadcastAuction(*auc, nil)
	log.Info().Str("auction_id", auc.ID.String()).Str("display_code", auc.DisplayCode).Msg("auction created")
	return auc, nil
}

// DeleteAuction removes an upcoming or finished auction.
func (a *App) DeleteAuction(ctx context.Context, auctionID uuid.UUID) error {
	unlock, err := a.locker.Lock(ctx, auctionID)
	if err != nil {
		return err
	}
	defer unlock()

	err = a.store.InTx(ctx, func(tx Store) error {
		auc, err := tx.LockAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if auc.Status == models.AuctionStatusLive {
			return fmt.Errorf("cannot delete live auction: %w", ErrWrongStatus)
		}
		return tx.DeleteAuction(ctx, auctionID)
	})
	if err != nil {
		return err
	}
	a.recent.Remove(auctionID)
	log.Info().Str("auction_id", auctionID.String()).Msg("auction deleted")
	return nil
}

// AssignBot lets a bot bid on an auction. A zero limit means unlimited.
func (a *App) AssignBot(ctx context.Context, auctionID, botID uuid.UUID, bidLimit int) error {
	if bidLimit < 0 {
		return fmt.Errorf("%w: bid limit must not be negative", ErrInvalidRequest)
	}
	return a.store.InTx(ctx, func(tx Store) error {
		auc, err := tx.GetAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if auc.Status == models.AuctionStatusFinished {
			return fmt.Errorf("cannot assign bots to finished auction: %w", ErrWrongStatus)
		}
		if _, err := tx.GetBot(ctx, botID); err != nil {
			return err
		}
		return tx.AssignBot(ctx, models.AuctionBot{
			AuctionID: auctionID,
			BotID:     botID,
			BidLimit:  bidLimit,
			Active:    true,
		})
	})
}

// UnassignBot removes a bot from an auction.
func (a *App) UnassignBot(ctx context.Context, auctionID, botID uuid.UUID) error {
	return a.store.UnassignBot(ctx, auctionID, botID)
}

// DeleteUser removes a user with their bids, prebids and wins.
func (a *App) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	if err := a.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	a.recent.Purge()
	log.Info().Str("user_id", userID.String()).Msg("user deleted")
	return nil
}

// DeleteBot removes a bot with its bids and assignments.
func (a *App) DeleteBot(ctx context.Context, botID uuid.UUID) error {
	if err := a.store.DeleteBot(ctx, botID); err != nil {
		return err
	}
	a.recent.Purge()
	log.Info().Str("bot_id", botID.String()).Msg("bot deleted")
	return nil
}

// SetBotsEnabled toggles bot bidding for every auction.
func (a *App) SetBotsEnabled(enabled bool) { a.bots.SetEnabled(enabled) }

// BotsEnabled reports the global bot toggle.
func (a *App) BotsEnabled() bool { return a.bots.Enabled() }

// Remaining returns the countdown of one auction, 0 when none runs.
func (a *App) Remaining(auctionID uuid.UUID) int { return a.timers.Remaining(auctionID) }

// AllRemaining returns every running countdown.
func (a *App) AllRemaining() map[uuid.UUID]int { return a.timers.AllRemaining() }

// Snapshot returns the auction with its most recent bids and all countdowns.
func (a *App) Snapshot(ctx context.Context, auctionID uuid.UUID) (*models.AuctionSnapshot, error) {
	auc, err := a.store.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	recent, err := a.recentBids(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return &models.AuctionSnapshot{Auction: *auc, Bids: recent, Timers: a.timers.AllRemaining()}, nil
}

// Shutdown stops every countdown and forgets all bot rotations.
func (a *App) Shutdown() {
	a.timers.Shutdown()
	a.bots.Shutdown()
	log.Info().Msg("auction runtime stopped")
}

func (a *App) countdown(auc models.Auction) int {
	return auc.Countdown(a.cfg.CountdownSeconds)
}

func (a *App) broadcastAuction(auc models.Auction, recent []models.Bid) {
	if recent == nil {
		recent = []models.Bid{}
	}
	a.broadcaster.Auction(models.AuctionSnapshot{Auction: auc, Bids: recent, Timers: a.timers.AllRemaining()})
}

// recentBids returns up to SnapshotBids bids, newest first, from the cache or the store.
func (a *App) recentBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	if v, ok := a.recent.Get(auctionID); ok {
		cached := v.([]models.Bid)
		return append([]models.Bid(nil), cached...), nil
	}
	bids, err := a.store.ListRecentBids(ctx, auctionID, a.cfg.SnapshotBids)
	if err != nil {
		return nil, err
	}
	if bids == nil {
		bids = []models.Bid{}
	}
	a.recent.Add(auctionID, bids)
	return append([]models.Bid(nil), bids...), nil
}

// pushRecent prepends a committed bid to the cached list.
func (a *App) pushRecent(ctx context.Context, auctionID uuid.UUID, bid models.Bid) []models.Bid {
	if v, ok := a.recent.Get(auctionID); ok {
		cached := v.([]models.Bid)
		next := make([]models.Bid, 0, a.cfg.SnapshotBids)
		next = append(next, bid)
		for _, b := range cached {
			if len(next) == a.cfg.SnapshotBids {
				break
			}
			next = append(next, b)
		}
		a.recent.Add(auctionID, next)
		return append([]models.Bid(nil), next...)
	}

	recent, err := a.recentBids(ctx, auctionID)
	if err != nil {
		log.Warn().Err(err).Str("auction_id", auctionID.String()).Msg("failed to load recent bids")
		return []models.Bid{bid}
	}
	return recent
}

func (a *App) emit(ctx context.Context, tx Store, auctionID uuid.UUID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return tx.InsertOutboxEvent(ctx, OutboxEvent{
		ID:        uuid.New(),
		AuctionID: auctionID,
		EventType: eventType,
		Payload:   data,
		CreatedAt: a.now(),
	})
}

package auction

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/pennyauction/go/internal/models"
)

type memData struct {
	auctions    map[uuid.UUID]models.Auction
	bids        []models.Bid
	prebids     []models.Prebid
	users       map[uuid.UUID]models.User
	bots        map[uuid.UUID]models.Bot
	assignments []models.AuctionBot
	outbox      []OutboxEvent
	displaySeq  int64
}

func (d memData) clone() memData {
	out := memData{
		auctions:    make(map[uuid.UUID]models.Auction, len(d.auctions)),
		bids:        append([]models.Bid(nil), d.bids...),
		prebids:     append([]models.Prebid(nil), d.prebids...),
		users:       make(map[uuid.UUID]models.User, len(d.users)),
		bots:        make(map[uuid.UUID]models.Bot, len(d.bots)),
		assignments: append([]models.AuctionBot(nil), d.assignments...),
		outbox:      append([]OutboxEvent(nil), d.outbox...),
		displaySeq:  d.displaySeq,
	}
	for k, v := range d.auctions {
		out.auctions[k] = v
	}
	for k, v := range d.users {
		out.users[k] = v
	}
	for k, v := range d.bots {
		out.bots[k] = v
	}
	return out
}

// memStore is an in-memory Store. Transactions are serialized and roll back on error.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data memData
	fail map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		data: memData{
			auctions: make(map[uuid.UUID]models.Auction),
			users:    make(map[uuid.UUID]models.User),
			bots:     make(map[uuid.UUID]models.Bot),
		},
		fail: make(map[string]error),
	}
}

func (s *memStore) failWith(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[method] = err
}

func (s *memStore) failure(method string) error {
	return s.fail[method]
}

func (s *memStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	saved := s.data.clone()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.data = saved
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) GetAuction(_ context.Context, id uuid.UUID) (*models.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.data.auctions[id]
	if !ok {
		return nil, ErrAuctionNotFound
	}
	return &a, nil
}

func (s *memStore) LockAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	return s.GetAuction(ctx, id)
}

func (s *memStore) ListAuctionsByStatus(_ context.Context, status models.AuctionStatus) ([]models.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Auction
	for _, a := range s.data.auctions {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) CreateAuction(_ context.Context, a *models.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.auctions[a.ID] = *a
	return nil
}

func (s *memStore) UpdateAuction(_ context.Context, a *models.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("UpdateAuction"); err != nil {
		return err
	}
	if _, ok := s.data.auctions[a.ID]; !ok {
		return ErrAuctionNotFound
	}
	s.data.auctions[a.ID] = *a
	return nil
}

func (s *memStore) DeleteAuction(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.auctions[id]; !ok {
		return ErrAuctionNotFound
	}
	delete(s.data.auctions, id)
	return nil
}

func (s *memStore) NextDisplayNumber(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.displaySeq++
	return s.data.displaySeq, nil
}

func (s *memStore) CreateBid(_ context.Context, bid *models.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CreateBid"); err != nil {
		return err
	}
	s.data.bids = append(s.data.bids, *bid)
	return nil
}

func (s *memStore) ListRecentBids(_ context.Context, auctionID uuid.UUID, limit int) ([]models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Bid
	for i := len(s.data.bids) - 1; i >= 0; i-- {
		if s.data.bids[i].AuctionID == auctionID {
			out = append(out, s.data.bids[i])
		}
	}
	// amount DESC, seq DESC; out is already in reverse insertion order
	sort.SliceStable(out, func(i, j int) bool { return out[i].Amount > out[j].Amount })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) CreatePrebid(_ context.Context, p *models.Prebid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.prebids {
		if existing.AuctionID == p.AuctionID && existing.UserID == p.UserID {
			return ErrDuplicatePrebid
		}
	}
	s.data.prebids = append(s.data.prebids, *p)
	return nil
}

func (s *memStore) ListPrebids(_ context.Context, auctionID uuid.UUID) ([]models.Prebid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Prebid
	for _, p := range s.data.prebids {
		if p.AuctionID == auctionID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) HasPrebid(_ context.Context, auctionID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.data.prebids {
		if p.AuctionID == auctionID && p.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (s *memStore) LockUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.GetUser(ctx, id)
}

func (s *memStore) UpdateUserBalance(_ context.Context, id uuid.UUID, balance int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("UpdateUserBalance"); err != nil {
		return err
	}
	u, ok := s.data.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.BidBalance = balance
	s.data.users[id] = u
	return nil
}

func (s *memStore) DeleteUser(_ context.Context, id uuid.UUID) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.users[id]; !ok {
		return ErrUserNotFound
	}
	for aid, a := range s.data.auctions {
		if a.WinnerID != nil && *a.WinnerID == id {
			a.WinnerID = nil
			s.data.auctions[aid] = a
		}
	}
	bids := s.data.bids[:0]
	for _, b := range s.data.bids {
		if uid, ok := b.Owner.UserID(); !ok || uid != id {
			bids = append(bids, b)
		}
	}
	s.data.bids = bids
	prebids := s.data.prebids[:0]
	for _, p := range s.data.prebids {
		if p.UserID != id {
			prebids = append(prebids, p)
		}
	}
	s.data.prebids = prebids
	delete(s.data.users, id)
	return nil
}

func (s *memStore) GetBot(_ context.Context, id uuid.UUID) (*models.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data.bots[id]
	if !ok {
		return nil, ErrBotNotFound
	}
	return &b, nil
}

func (s *memStore) DeleteBot(_ context.Context, id uuid.UUID) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.bots[id]; !ok {
		return ErrBotNotFound
	}
	bids := s.data.bids[:0]
	for _, b := range s.data.bids {
		if bid, ok := b.Owner.BotID(); !ok || bid != id {
			bids = append(bids, b)
		}
	}
	s.data.bids = bids
	assignments := s.data.assignments[:0]
	for _, ab := range s.data.assignments {
		if ab.BotID != id {
			assignments = append(assignments, ab)
		}
	}
	s.data.assignments = assignments
	delete(s.data.bots, id)
	return nil
}

func (s *memStore) ListBotAssignments(_ context.Context, auctionID uuid.UUID) ([]models.BotAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.BotAssignment
	for _, ab := range s.data.assignments {
		if ab.AuctionID == auctionID {
			out = append(out, models.BotAssignment{AuctionBot: ab, Bot: s.data.bots[ab.BotID]})
		}
	}
	return out, nil
}

func (s *memStore) AssignBot(_ context.Context, ab models.AuctionBot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.data.assignments {
		if existing.AuctionID == ab.AuctionID && existing.BotID == ab.BotID {
			s.data.assignments[i].BidLimit = ab.BidLimit
			s.data.assignments[i].Active = ab.Active
			return nil
		}
	}
	s.data.assignments = append(s.data.assignments, ab)
	return nil
}

func (s *memStore) UnassignBot(_ context.Context, auctionID, botID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ab := range s.data.assignments {
		if ab.AuctionID == auctionID && ab.BotID == botID {
			s.data.assignments = append(s.data.assignments[:i], s.data.assignments[i+1:]...)
			return nil
		}
	}
	return ErrBotNotAssigned
}

func (s *memStore) IncrementBotBids(_ context.Context, auctionID, botID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ab := range s.data.assignments {
		if ab.AuctionID == auctionID && ab.BotID == botID {
			s.data.assignments[i].CurrentBids++
			return nil
		}
	}
	return ErrBotNotAssigned
}

func (s *memStore) InsertOutboxEvent(_ context.Context, ev OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.outbox = append(s.data.outbox, ev)
	return nil
}

// seed helpers

func (s *memStore) putAuction(a models.Auction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.auctions[a.ID] = a
}

func (s *memStore) putUser(balance int) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.data.users[id] = models.User{ID: id, Username: "user-" + id.String()[:8], BidBalance: balance}
	return id
}

func (s *memStore) putBot(auctionID uuid.UUID, limit int) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.data.bots[id] = models.Bot{ID: id, Username: "bot-" + id.String()[:8], Active: true}
	s.data.assignments = append(s.data.assignments, models.AuctionBot{AuctionID: auctionID, BotID: id, BidLimit: limit, Active: true})
	return id
}

func (s *memStore) putPrebid(auctionID, userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.prebids = append(s.data.prebids, models.Prebid{ID: uuid.New(), AuctionID: auctionID, UserID: userID})
}

func (s *memStore) auction(id uuid.UUID) models.Auction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.auctions[id]
}

func (s *memStore) balance(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.users[id].BidBalance
}

func (s *memStore) bidsFor(auctionID uuid.UUID) []models.Bid {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Bid
	for _, b := range s.data.bids {
		if b.AuctionID == auctionID {
			out = append(out, b)
		}
	}
	return out
}

func (s *memStore) prebidsFor(auctionID uuid.UUID) []models.Prebid {
	out, _ := s.ListPrebids(context.Background(), auctionID)
	return out
}

func (s *memStore) assignment(auctionID, botID uuid.UUID) models.AuctionBot {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ab := range s.data.assignments {
		if ab.AuctionID == auctionID && ab.BotID == botID {
			return ab
		}
	}
	return models.AuctionBot{}
}

func (s *memStore) eventTypes(auctionID uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.data.outbox {
		if ev.AuctionID == auctionID {
			out = append(out, ev.EventType)
		}
	}
	return out
}

type timerEvent struct {
	auctionID uuid.UUID
	remaining int
}

type balanceEvent struct {
	userID  uuid.UUID
	balance int
}

type recordingBroadcaster struct {
	mu        sync.Mutex
	timers    []timerEvent
	snapshots []models.AuctionSnapshot
	balances  []balanceEvent
}

func (b *recordingBroadcaster) Timer(auctionID uuid.UUID, remaining int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timers = append(b.timers, timerEvent{auctionID, remaining})
}

func (b *recordingBroadcaster) Auction(snapshot models.AuctionSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots = append(b.snapshots, snapshot)
}

func (b *recordingBroadcaster) Balance(userID uuid.UUID, balance int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances = append(b.balances, balanceEvent{userID, balance})
}

func (b *recordingBroadcaster) timerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.timers)
}

func (b *recordingBroadcaster) lastSnapshot() models.AuctionSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.snapshots) == 0 {
		return models.AuctionSnapshot{}
	}
	return b.snapshots[len(b.snapshots)-1]
}

func (b *recordingBroadcaster) lastBalance() balanceEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.balances) == 0 {
		return balanceEvent{}
	}
	return b.balances[len(b.balances)-1]
}

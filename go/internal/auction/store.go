package auction

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/pennyauction/go/internal/models"
)

// Store is the persistence gateway the state machine runs against.
// Lookups of missing rows return ErrAuctionNotFound, ErrUserNotFound or ErrBotNotFound.
type Store interface {
	// InTx runs fn against a transaction-scoped Store. fn's error rolls everything back.
	InTx(ctx context.Context, fn func(tx Store) error) error

	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	// LockAuction reads the auction and holds its row lock until the transaction ends.
	LockAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	ListAuctionsByStatus(ctx context.Context, status models.AuctionStatus) ([]models.Auction, error)
	CreateAuction(ctx context.Context, a *models.Auction) error
	UpdateAuction(ctx context.Context, a *models.Auction) error
	DeleteAuction(ctx context.Context, id uuid.UUID) error
	NextDisplayNumber(ctx context.Context) (int64, error)

	CreateBid(ctx context.Context, bid *models.Bid) error
	// ListRecentBids returns up to limit bids, highest amount first. Prices only
	// rise, so that is also placement order and does not depend on host clocks.
	ListRecentBids(ctx context.Context, auctionID uuid.UUID, limit int) ([]models.Bid, error)

	CreatePrebid(ctx context.Context, p *models.Prebid) error
	// ListPrebids returns every prebid of the auction in creation order.
	ListPrebids(ctx context.Context, auctionID uuid.UUID) ([]models.Prebid, error)
	HasPrebid(ctx context.Context, auctionID, userID uuid.UUID) (bool, error)

	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	LockUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateUserBalance(ctx context.Context, id uuid.UUID, balance int) error
	// DeleteUser clears the user's wins, removes their bids and prebids, then the user.
	DeleteUser(ctx context.Context, id uuid.UUID) error

	GetBot(ctx context.Context, id uuid.UUID) (*models.Bot, error)
	// DeleteBot removes the bot's bids and assignments, then the bot.
	DeleteBot(ctx context.Context, id uuid.UUID) error
	ListBotAssignments(ctx context.Context, auctionID uuid.UUID) ([]models.BotAssignment, error)
	AssignBot(ctx context.Context, ab models.AuctionBot) error
	// UnassignBot returns ErrBotNotAssigned when no assignment exists.
	UnassignBot(ctx context.Context, auctionID, botID uuid.UUID) error
	// IncrementBotBids returns ErrBotNotAssigned when no assignment exists.
	IncrementBotBids(ctx context.Context, auctionID, botID uuid.UUID) error

	InsertOutboxEvent(ctx context.Context, ev OutboxEvent) error
}

// OutboxEvent is a domain event row written in the same transaction as the change it describes.
type OutboxEvent struct {
	ID        uuid.UUID
	AuctionID uuid.UUID
	EventType string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// Broadcaster delivers runtime state to real-time clients. Implementations must not block.
type Broadcaster interface {
	// Timer goes to viewers of the auction room.
	Timer(auctionID uuid.UUID, remaining int)
	// Auction goes to the room and to every connection.
	Auction(snapshot models.AuctionSnapshot)
	// Balance goes to every connection; only the matching user's client acts on it.
	Balance(userID uuid.UUID, balance int)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Timer(uuid.UUID, int)           {}
func (nopBroadcaster) Auction(models.AuctionSnapshot) {}
func (nopBroadcaster) Balance(uuid.UUID, int)         {}

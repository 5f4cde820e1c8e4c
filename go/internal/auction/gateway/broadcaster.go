package gateway

import (
	"github.com/google/uuid"
	"github.com/mcdev12/pennyauction/go/internal/auction"
	"github.com/mcdev12/pennyauction/go/internal/models"
)

// Broadcaster routes auction runtime updates onto WebSocket connections
type Broadcaster struct {
	cm *ConnectionManager
}

var _ auction.Broadcaster = (*Broadcaster)(nil)

func NewBroadcaster(cm *ConnectionManager) *Broadcaster {
	return &Broadcaster{cm: cm}
}

func (b *Broadcaster) Timer(auctionID uuid.UUID, remaining int) {
	b.cm.BroadcastToAuction(auctionID, NewTimerFrame(auctionID, remaining))
}

// Auction goes out globally. Room members are a subset of every connection,
// so a single global send covers the room without duplicate frames.
func (b *Broadcaster) Auction(snapshot models.AuctionSnapshot) {
	b.cm.BroadcastAll(NewAuctionFrame(snapshot))
}

func (b *Broadcaster) Balance(userID uuid.UUID, balance int) {
	b.cm.BroadcastAll(NewBalanceFrame(userID, balance))
}

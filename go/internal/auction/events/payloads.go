package events

import (
	"time"

	"github.com/mcdev12/pennyauction/go/internal/models"
)

// Event payload types that are shared between the auction, outbox and gateway packages

// Event type names written to the outbox and used as the subject suffix.
const (
	AuctionStarted  = "AuctionStarted"
	BidPlaced       = "BidPlaced"
	PrebidPlaced    = "PrebidPlaced"
	AuctionFinished = "AuctionFinished"
)

// AuctionStartedPayload is the payload for an AuctionStarted event
type AuctionStartedPayload struct {
	AuctionID        string       `json:"auctionId"`
	DisplayCode      string       `json:"displayCode"`
	StartedAt        time.Time    `json:"startedAt"`
	ConvertedPrebids int          `json:"convertedPrebids"`
	CurrentPrice     models.Cents `json:"currentPrice"`
	CountdownSeconds int          `json:"countdownSeconds"`
}

// BidPlacedPayload is the payload for a BidPlaced event
type BidPlacedPayload struct {
	AuctionID string          `json:"auctionId"`
	BidID     string          `json:"bidId"`
	Owner     models.BidOwner `json:"owner"`
	Amount    models.Cents    `json:"amount"`
	PlacedAt  time.Time       `json:"placedAt"`
}

// PrebidPlacedPayload is the payload for a PrebidPlaced event
type PrebidPlacedPayload struct {
	AuctionID    string       `json:"auctionId"`
	PrebidID     string       `json:"prebidId"`
	UserID       string       `json:"userId"`
	PreviewPrice models.Cents `json:"previewPrice"`
	PlacedAt     time.Time    `json:"placedAt"`
}

// AuctionFinishedPayload is the payload for an AuctionFinished event
type AuctionFinishedPayload struct {
	AuctionID  string              `json:"auctionId"`
	FinishedAt time.Time           `json:"finishedAt"`
	FinalPrice models.Cents        `json:"finalPrice"`
	Winner     models.BidOwner     `json:"winner"`
	Source     models.WinnerSource `json:"source"`
}

package models

import "github.com/google/uuid"

// AuctionSnapshot is the state pushed to viewers after every change.
type AuctionSnapshot struct {
	Auction Auction           `json:"auction"`
	Bids    []Bid             `json:"bids"`
	Timers  map[uuid.UUID]int `json:"timers,omitempty"`
}

// WinnerSource tells how an outcome's winner was decided.
type WinnerSource string

const (
	WinnerFromLastBid     WinnerSource = "last_bid"
	WinnerFromFirstPrebid WinnerSource = "first_prebid"
	WinnerNone            WinnerSource = "none"
)

// Outcome is the result of finalizing an auction.
type Outcome struct {
	AuctionID  uuid.UUID    `json:"auctionId"`
	FinalPrice Cents        `json:"finalPrice"`
	Winner     BidOwner     `json:"winner"`
	Source     WinnerSource `json:"source"`
}

package models

import (
	"math"

	"github.com/google/uuid"
)

// Bot is an automated bidder.
type Bot struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	Active      bool      `json:"active"`
}

// AuctionBot assigns a bot to an auction. BidLimit 0 means unlimited.
type AuctionBot struct {
	AuctionID   uuid.UUID `json:"auctionId"`
	BotID       uuid.UUID `json:"botId"`
	BidLimit    int       `json:"bidLimit"`
	CurrentBids int       `json:"currentBids"`
	Active      bool      `json:"active"`
}

// Remaining returns how many bids the assignment may still place.
func (ab AuctionBot) Remaining() int {
	if ab.BidLimit == 0 {
		return math.MaxInt
	}
	if r := ab.BidLimit - ab.CurrentBids; r > 0 {
		return r
	}
	return 0
}

// BotAssignment is an assignment joined with its bot.
type BotAssignment struct {
	AuctionBot
	Bot Bot `json:"bot"`
}

// Eligible reports whether the bot may bid on the assigned auction.
func (ba BotAssignment) Eligible() bool {
	return ba.AuctionBot.Active && ba.Bot.Active && ba.Remaining() > 0
}

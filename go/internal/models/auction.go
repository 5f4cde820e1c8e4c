package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuctionStatus defines the lifecycle state of an auction.
type AuctionStatus string

const (
	AuctionStatusUpcoming AuctionStatus = "upcoming"
	AuctionStatusLive     AuctionStatus = "live"
	AuctionStatusFinished AuctionStatus = "finished"
)

// DefaultCountdownSeconds is used when an auction does not carry its own countdown.
const DefaultCountdownSeconds = 10

// CanTransitionTo reports whether s -> next is a legal single step.
func (s AuctionStatus) CanTransitionTo(next AuctionStatus) bool {
	switch s {
	case AuctionStatusUpcoming:
		return next == AuctionStatusLive
	case AuctionStatusLive:
		return next == AuctionStatusFinished
	default:
		return false
	}
}

// Auction represents a single penny auction.
type Auction struct {
	ID               uuid.UUID     `json:"id"`
	DisplayCode      string        `json:"displayCode"`
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	ImageURL         string        `json:"imageUrl"`
	RetailPrice      Cents         `json:"retailPrice"`
	StartingPrice    Cents         `json:"startingPrice"`
	CurrentPrice     Cents         `json:"currentPrice"`
	BidIncrement     Cents         `json:"bidIncrement"`
	Status           AuctionStatus `json:"status"`
	StartTime        time.Time     `json:"startTime"`
	EndTime          *time.Time    `json:"endTime,omitempty"`
	CountdownSeconds int           `json:"countdownSeconds"`
	WinnerID         *uuid.UUID    `json:"winnerId,omitempty"` // users only; bot winners derive from the last bid
	IsBidPackage     bool          `json:"isBidPackage"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// Countdown returns the auction's countdown, falling back to fallback when unset.
func (a Auction) Countdown(fallback int) int {
	if a.CountdownSeconds > 0 {
		return a.CountdownSeconds
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultCountdownSeconds
}

// FormatDisplayCode renders PREFIX/NNNN.
func FormatDisplayCode(prefix string, n int64) string {
	return fmt.Sprintf("%s/%04d", strings.ToUpper(prefix), n)
}

// ParseDisplayCode splits PREFIX/NNNN into its parts.
func ParseDisplayCode(code string) (string, int64, error) {
	prefix, num, ok := strings.Cut(code, "/")
	if !ok || prefix == "" || len(num) < 4 {
		return "", 0, fmt.Errorf("invalid display code %q", code)
	}
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil || n < 0 {
		return "", 0, fmt.Errorf("invalid display code %q", code)
	}
	return prefix, n, nil
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a bidder. Only the fields the runtime touches are modelled.
type User struct {
	ID         uuid.UUID `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	BidBalance int       `json:"bidBalance"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CanBid reports whether the user owns at least one bid token.
func (u User) CanBid() bool { return u.BidBalance >= 1 }

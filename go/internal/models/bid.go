package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OwnerKind tags who placed a bid.
type OwnerKind string

const (
	OwnerKindUser OwnerKind = "user"
	OwnerKindBot  OwnerKind = "bot"
)

// BidOwner is either a user or a bot, never both.
type BidOwner struct {
	kind OwnerKind
	id   uuid.UUID
}

// UserOwner attributes a bid to a human bidder.
func UserOwner(id uuid.UUID) BidOwner { return BidOwner{kind: OwnerKindUser, id: id} }

// BotOwner attributes a bid to an automated bidder.
func BotOwner(id uuid.UUID) BidOwner { return BidOwner{kind: OwnerKindBot, id: id} }

func (o BidOwner) Kind() OwnerKind { return o.kind }
func (o BidOwner) ID() uuid.UUID   { return o.id }
func (o BidOwner) IsBot() bool     { return o.kind == OwnerKindBot }
func (o BidOwner) IsZero() bool    { return o.kind == "" }

// UserID returns the user id when the owner is a user.
func (o BidOwner) UserID() (uuid.UUID, bool) {
	if o.kind != OwnerKindUser {
		return uuid.Nil, false
	}
	return o.id, true
}

// BotID returns the bot id when the owner is a bot.
func (o BidOwner) BotID() (uuid.UUID, bool) {
	if o.kind != OwnerKindBot {
		return uuid.Nil, false
	}
	return o.id, true
}

// Columns splits the owner into the nullable user_id / bot_id pair used by storage.
func (o BidOwner) Columns() (userID, botID *uuid.UUID) {
	id := o.id
	switch o.kind {
	case OwnerKindUser:
		return &id, nil
	case OwnerKindBot:
		return nil, &id
	}
	return nil, nil
}

// OwnerFromColumns rebuilds an owner from storage columns.
func OwnerFromColumns(userID, botID *uuid.UUID) (BidOwner, error) {
	switch {
	case userID != nil && botID == nil:
		return UserOwner(*userID), nil
	case botID != nil && userID == nil:
		return BotOwner(*botID), nil
	}
	return BidOwner{}, fmt.Errorf("bid must reference exactly one of user or bot")
}

func (o BidOwner) String() string {
	if o.IsZero() {
		return "none"
	}
	return string(o.kind) + ":" + o.id.String()
}

type bidOwnerJSON struct {
	Kind OwnerKind `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

func (o BidOwner) MarshalJSON() ([]byte, error) {
	if o.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(bidOwnerJSON{Kind: o.kind, ID: o.id})
}

func (o *BidOwner) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = BidOwner{}
		return nil
	}
	var raw bidOwnerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Kind {
	case OwnerKindUser:
		*o = UserOwner(raw.ID)
	case OwnerKindBot:
		*o = BotOwner(raw.ID)
	default:
		return fmt.Errorf("unknown bid owner kind %q", raw.Kind)
	}
	return nil
}

// Bid represents an accepted price increment.
type Bid struct {
	ID        uuid.UUID `json:"id"`
	AuctionID uuid.UUID `json:"auctionId"`
	Owner     BidOwner  `json:"owner"`
	Amount    Cents     `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsBot mirrors the stored is_bot flag.
func (b Bid) IsBot() bool { return b.Owner.IsBot() }

// Prebid is a reservation placed while an auction is upcoming.
type Prebid struct {
	ID        uuid.UUID `json:"id"`
	AuctionID uuid.UUID `json:"auctionId"`
	UserID    uuid.UUID `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

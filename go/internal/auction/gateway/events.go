package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/pennyauction/go/internal/models"
)

// FrameType identifies a server to client frame
type FrameType string

const (
	FrameTimer   FrameType = "timer"
	FrameAuction FrameType = "auction"
	FrameBalance FrameType = "balance"
	FrameEvent   FrameType = "event"
)

// Frame is anything the gateway can push to a client
type Frame interface {
	FrameType() FrameType
}

// TimerFrame carries the seconds left on a running countdown
type TimerFrame struct {
	Type      FrameType `json:"type"`
	AuctionID uuid.UUID `json:"auctionId"`
	TimeLeft  int       `json:"timeLeft"`
}

func (TimerFrame) FrameType() FrameType { return FrameTimer }

// AuctionFrame carries a full auction snapshot
type AuctionFrame struct {
	Type    FrameType         `json:"type"`
	Auction models.Auction    `json:"auction"`
	Bids    []models.Bid      `json:"bids"`
	Timers  map[uuid.UUID]int `json:"timers,omitempty"`
}

func (AuctionFrame) FrameType() FrameType { return FrameAuction }

// BalanceFrame tells a user their bid balance changed
type BalanceFrame struct {
	Type       FrameType `json:"type"`
	UserID     uuid.UUID `json:"userId"`
	NewBalance int       `json:"newBalance"`
}

func (BalanceFrame) FrameType() FrameType { return FrameBalance }

// EventFrame relays a domain event from the event bus
type EventFrame struct {
	Type      FrameType       `json:"type"`
	EventType string          `json:"eventType"`
	AuctionID uuid.UUID       `json:"auctionId"`
	Payload   json.RawMessage `json:"payload"`
}

func (EventFrame) FrameType() FrameType { return FrameEvent }

func NewTimerFrame(auctionID uuid.UUID, timeLeft int) TimerFrame {
	return TimerFrame{Type: FrameTimer, AuctionID: auctionID, TimeLeft: timeLeft}
}

func NewAuctionFrame(snapshot models.AuctionSnapshot) AuctionFrame {
	bids := snapshot.Bids
	if bids == nil {
		bids = []models.Bid{}
	}
	return AuctionFrame{Type: FrameAuction, Auction: snapshot.Auction, Bids: bids, Timers: snapshot.Timers}
}

func NewBalanceFrame(userID uuid.UUID, balance int) BalanceFrame {
	return BalanceFrame{Type: FrameBalance, UserID: userID, NewBalance: balance}
}

func NewEventFrame(eventType string, auctionID uuid.UUID, payload json.RawMessage) EventFrame {
	return EventFrame{Type: FrameEvent, EventType: eventType, AuctionID: auctionID, Payload: payload}
}

// ClientAction is what a client may ask of the gateway
type ClientAction string

const (
	ActionJoin  ClientAction = "join"
	ActionLeave ClientAction = "leave"
)

// ClientMessage is a client to server frame
type ClientMessage struct {
	Action    ClientAction `json:"action"`
	AuctionID string       `json:"auctionId"`
}

// ParseClientMessage decodes and validates a client frame
func ParseClientMessage(data []byte) (ClientAction, uuid.UUID, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", uuid.Nil, fmt.Errorf("failed to decode client message: %w", err)
	}
	switch msg.Action {
	case ActionJoin, ActionLeave:
	default:
		return "", uuid.Nil, fmt.Errorf("unknown action %q", msg.Action)
	}
	id, err := uuid.Parse(msg.AuctionID)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("invalid auctionId: %w", err)
	}
	return msg.Action, id, nil
}

package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/pennyauction/go/internal/auction/events"
)

// ErrEventNotFound is returned when an event is missing or was already sent
var ErrEventNotFound = errors.New("outbox event not found or already sent")

// OutboxEvent is one row of auction_outbox
type OutboxEvent struct {
	ID        uuid.UUID         `json:"id"`
	AuctionID uuid.UUID         `json:"auctionId"`
	EventType string            `json:"eventType"`
	Payload   json.RawMessage   `json:"payload"`
	Headers   map[string]string `json:"headers,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	SentAt    *time.Time        `json:"sentAt,omitempty"`
}

// Envelope wraps the event for the bus
func (e OutboxEvent) Envelope() events.Envelope {
	return events.Envelope{
		EventID:   e.ID.String(),
		EventType: e.EventType,
		AuctionID: e.AuctionID.String(),
		Timestamp: e.CreatedAt.UTC(),
		Payload:   e.Payload,
	}
}

// Publisher delivers one event to the bus
type Publisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}

// Repository is what the relay needs from storage
type Repository interface {
	FetchUnsent(ctx context.Context, limit int) ([]OutboxEvent, error)
	FetchByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	CountPending(ctx context.Context) (int, error)
}

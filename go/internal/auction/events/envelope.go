package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// SubjectPrefix is prepended to the event type to form the bus subject
const SubjectPrefix = "auction.events."

// Envelope is the wire form of a domain event on the bus
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	AuctionID string          `json:"auctionId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Subject returns the subject an event type is published on
func Subject(eventType string) string {
	return SubjectPrefix + eventType
}

// Known reports whether eventType is one the runtime emits
func Known(eventType string) bool {
	switch eventType {
	case AuctionStarted, BidPlaced, PrebidPlaced, AuctionFinished:
		return true
	}
	return false
}

// ParseEnvelope decodes an envelope from the bus
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if env.EventID == "" || env.EventType == "" {
		return nil, fmt.Errorf("event envelope missing id or type")
	}
	return &env, nil
}

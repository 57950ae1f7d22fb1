package events

import (
	"context"
	"encoding/json"
	"time"
)

const (
	TypeTicketIssued  = "TicketIssued"
	TypeTicketSettled = "TicketSettled"
)

// Message is the envelope written to the tickets topic.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	TicketID   string          `json:"ticketId"`
	Producer   string          `json:"producer"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// NopPublisher drops every message. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Message) error { return nil }
func (NopPublisher) Close() error                           { return nil }

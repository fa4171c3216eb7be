package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type OutboxEvent struct {
	Id            int64           `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	Headers       json.RawMessage `db:"headers"`
	CreatedAt     time.Time       `db:"created_at"`
	PublishedAt   *time.Time      `db:"published_at"`
	Attempts      int64           `db:"attempts"`
	LastError     *string         `db:"last_error"`
	Topic         string          `db:"topic"`
}

// Envelope is the wire shape of every relayed message. EventID is filled in by the relay
// from the outbox row id and is what consumers deduplicate on.
type Envelope struct {
	Event   string          `json:"event"`
	EventID int64           `json:"event_id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

func NewEvent(topic, aggregateType string, aggregateID int64, eventType string, payload any) (*OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	envelope, err := json.Marshal(Envelope{Event: eventType, Payload: body})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	return &OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   fmt.Sprintf("%d", aggregateID),
		EventType:     eventType,
		Payload:       envelope,
		Topic:         topic,
	}, nil
}

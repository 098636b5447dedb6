// Package queue publishes domain events to RabbitMQ and consumes them.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/radquest/radquest/internal/domain"
)

// EventQueueName is the durable queue domain events are published to
const EventQueueName = "radquest.events"

// eventTTL bounds how long an unconsumed event stays queued
const eventTTL = 7 * 24 * time.Hour

// Envelope is the wire format of one domain event
type Envelope struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	PlayerID   string          `json:"player_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewEnvelope wraps a domain event. The payload is the event's own JSON.
func NewEnvelope(e domain.Event) (*Envelope, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", e.EventType(), err)
	}
	return &Envelope{
		ID:         e.EventID(),
		Type:       e.EventType(),
		PlayerID:   e.Player(),
		OccurredAt: e.OccurredAt(),
		Payload:    payload,
	}, nil
}

// declareEventQueue is idempotent; producer and consumer both call it so
// either may start first.
func declareEventQueue(ch *amqp.Channel) error {
	_, err := ch.QueueDeclare(EventQueueName, true, false, false, false, amqp.Table{
		"x-message-ttl": int32(eventTTL / time.Millisecond),
	})
	if err != nil {
		return fmt.Errorf("declare %s: %w", EventQueueName, err)
	}
	return nil
}

package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/radquest/radquest/internal/domain"
)

// publishTimeout bounds one best-effort publish from an event handler
const publishTimeout = 5 * time.Second

// publisher is the part of Connection the producer needs
type publisher interface {
	PublishJSON(ctx context.Context, queue string, data any) error
}

// Producer publishes domain events to the event queue
type Producer struct {
	conn   publisher
	logger *slog.Logger
}

// NewProducer creates a new queue producer
func NewProducer(conn *Connection) *Producer {
	return newProducer(conn)
}

func newProducer(conn publisher) *Producer {
	return &Producer{conn: conn, logger: slog.Default().With("component", "queue")}
}

// PublishEvent publishes one domain event wrapped in an Envelope
func (p *Producer) PublishEvent(ctx context.Context, e domain.Event) error {
	env, err := NewEnvelope(e)
	if err != nil {
		return err
	}

	if err := p.conn.PublishJSON(ctx, EventQueueName, env); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published event",
		"event_id", env.ID,
		"type", env.Type,
		"player_id", env.PlayerID,
	)
	return nil
}

// Handler returns an event handler for domain.EventDispatcher. Events are
// published after the state they describe has committed; failures are
// logged and never reach the caller.
func (p *Producer) Handler() domain.EventHandler {
	return func(e domain.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := p.PublishEvent(ctx, e); err != nil {
			p.logger.Warn("event not published",
				"event_id", e.EventID(),
				"type", e.EventType(),
				"error", err,
			)
		}
	}
}

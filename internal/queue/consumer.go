package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// EnvelopeHandler processes one event from the queue
type EnvelopeHandler func(ctx context.Context, env *Envelope) error

// ConsumerConfig sizes the worker pool. Zero fields take the defaults.
type ConsumerConfig struct {
	Workers  int
	Prefetch int           // unacked deliveries the broker hands out at once
	Timeout  time.Duration // per envelope
}

func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{Workers: 1, Prefetch: 10, Timeout: 30 * time.Second}
}

// Consumer reads the event queue with a pool of workers and acknowledges
// each delivery by hand
type Consumer struct {
	conn    *Connection
	handler EnvelopeHandler
	cfg     ConsumerConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewConsumer(conn *Connection, handler EnvelopeHandler, cfg ConsumerConfig) *Consumer {
	def := DefaultConsumerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = def.Prefetch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Consumer{conn: conn, handler: handler, cfg: cfg}
}

// Start subscribes to the event queue and returns once the workers run.
// Stop or cancelling ctx ends them.
func (c *Consumer) Start(ctx context.Context) error {
	ch := c.conn.Channel()
	if ch == nil {
		return ErrNotConnected
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	deliveries, err := ch.Consume(EventQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", EventQueueName, err)
	}

	ctx, c.cancel = context.WithCancel(ctx)
	slog.Info("event consumer started", "workers", c.cfg.Workers, "prefetch", c.cfg.Prefetch)

	c.wg.Add(c.cfg.Workers)
	for i := range c.cfg.Workers {
		go func(log *slog.Logger) {
			defer c.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						log.Info("delivery channel closed")
						return
					}
					c.deliver(ctx, log, d)
				}
			}
		}(slog.With("worker", i))
	}
	return nil
}

// deliver runs the handler on one delivery and settles it. Bodies that are
// not an Envelope are rejected outright; a failing handler is requeued once
// and dropped on the redelivery.
func (c *Consumer) deliver(ctx context.Context, log *slog.Logger, d amqp.Delivery) {
	var env Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		log.Error("dropping malformed event", "error", err)
		_ = d.Reject(false)
		return
	}
	log = log.With("event_id", env.ID, "type", env.Type)

	hctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	err := c.handler(hctx, &env)
	cancel()

	if err != nil {
		log.Error("event handler failed", "redelivered", d.Redelivered, "error", err)
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	if err := d.Ack(false); err != nil {
		log.Error("ack failed", "error", err)
	}
}

// Stop cancels the workers and waits for in-flight envelopes
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

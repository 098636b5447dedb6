package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected is returned when no open channel is available
var ErrNotConnected = errors.New("not connected to RabbitMQ")

const (
	maxReconnects    = 10
	maxReconnectWait = 30 * time.Second
)

// Connection is a RabbitMQ connection with one channel. A broken
// connection is redialed in the background until Close.
type Connection struct {
	url  string
	done chan struct{}

	mu     sync.RWMutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

// NewConnection dials the broker and declares the event queue
func NewConnection(rawURL string) (*Connection, error) {
	c := &Connection{url: rawURL, done: make(chan struct{})}

	conn, ch, err := dial(rawURL)
	if err != nil {
		return nil, err
	}
	c.conn, c.ch = conn, ch
	slog.Info("connected to RabbitMQ", "url", sanitizeURL(rawURL))

	go c.watch(conn)
	return c, nil
}

func dial(rawURL string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareEventQueue(ch); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// watch redials whenever the current connection drops with an error
func (c *Connection) watch(conn *amqp.Connection) {
	for conn != nil {
		reason, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
		if !ok || reason == nil {
			return
		}
		slog.Warn("RabbitMQ connection lost", "error", reason)
		conn = c.redial()
	}
}

// redial returns the new connection, or nil when Close was called or every
// attempt failed
func (c *Connection) redial() *amqp.Connection {
	for attempt := 1; attempt <= maxReconnects; attempt++ {
		select {
		case <-c.done:
			return nil
		case <-time.After(reconnectDelay(attempt)):
		}

		conn, ch, err := dial(c.url)
		if err != nil {
			slog.Error("RabbitMQ reconnect failed", "attempt", attempt, "error", err)
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return nil
		}
		c.conn, c.ch = conn, ch
		c.mu.Unlock()

		slog.Info("reconnected to RabbitMQ", "attempt", attempt)
		return conn
	}
	slog.Error("giving up on RabbitMQ", "attempts", maxReconnects)
	return nil
}

// reconnectDelay doubles from one second up to maxReconnectWait
func reconnectDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		return maxReconnectWait
	}
	return min(time.Duration(1<<(attempt-1))*time.Second, maxReconnectWait)
}

// Channel returns the current channel, nil before the first connect
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ch
}

func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// PublishJSON sends data as a persistent JSON message to queue
func (c *Connection) PublishJSON(ctx context.Context, queue string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ch := c.Channel()
	if ch == nil || ch.IsClosed() {
		return ErrNotConnected
	}
	return ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// Close stops reconnecting and closes the channel and connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// sanitizeURL hides the password for logging
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "invalid-url"
	}
	return u.Redacted()
}

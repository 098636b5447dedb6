package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Event Interface and Base Event
// -----------------------------------------------------------------------------

// Event represents a domain event
type Event interface {
	// EventID returns the unique identifier for this event
	EventID() uuid.UUID
	// EventType returns the type name of this event
	EventType() string
	// OccurredAt returns when this event occurred
	OccurredAt() time.Time
	// Player returns the player the event belongs to
	Player() string
}

// BaseEvent provides common event fields
type BaseEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"occurred_at"`
	PlayerID  string    `json:"player_id"`
}

// NewBaseEvent creates a new BaseEvent
func NewBaseEvent(eventType, playerID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		PlayerID:  playerID,
	}
}

func (e BaseEvent) EventID() uuid.UUID    { return e.ID }
func (e BaseEvent) EventType() string     { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) Player() string        { return e.PlayerID }

// Event type names
const (
	EventAttemptRecorded = "attempt.recorded"
	EventLevelStarted    = "level.started"
	EventLevelCompleted  = "level.completed"
)

// -----------------------------------------------------------------------------
// Event Handler and Dispatcher
// -----------------------------------------------------------------------------

// EventHandler processes domain events
type EventHandler func(event Event)

// EventDispatcher fans events out to subscribed handlers
type EventDispatcher struct {
	mu          sync.RWMutex
	handlers    map[string][]EventHandler
	allHandlers []EventHandler
}

// NewEventDispatcher creates a new event dispatcher
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		handlers: make(map[string][]EventHandler),
	}
}

// Subscribe registers a handler for a specific event type
func (d *EventDispatcher) Subscribe(eventType string, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// SubscribeAll registers a handler for all event types
func (d *EventDispatcher) SubscribeAll(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allHandlers = append(d.allHandlers, handler)
}

// Publish dispatches an event to all registered handlers
func (d *EventDispatcher) Publish(event Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, h := range d.handlers[event.EventType()] {
		h(event)
	}
	for _, h := range d.allHandlers {
		h(event)
	}
}

// -----------------------------------------------------------------------------
// Submission Events
// -----------------------------------------------------------------------------

// AttemptRecordedEvent is published after an attempt and its stats delta commit
type AttemptRecordedEvent struct {
	BaseEvent
	AttemptID   uuid.UUID `json:"attempt_id"`
	LevelID     string    `json:"level_id"`
	TaskID      string    `json:"task_id"`
	Kind        TaskKind  `json:"kind"`
	Correctness float64   `json:"correctness"`
	Points      int       `json:"points"`
	Dose        float64   `json:"dose_msv"`
	Evaluated   bool      `json:"evaluated"`
}

// NewAttemptRecordedEvent creates an event from a stored attempt
func NewAttemptRecordedEvent(a *Attempt) AttemptRecordedEvent {
	return AttemptRecordedEvent{
		BaseEvent:   NewBaseEvent(EventAttemptRecorded, a.PlayerID),
		AttemptID:   a.ID,
		LevelID:     a.LevelID,
		TaskID:      a.TaskID,
		Kind:        a.Kind,
		Correctness: a.Correctness,
		Points:      a.Points,
		Dose:        a.Dose,
		Evaluated:   a.Evaluated(),
	}
}

// -----------------------------------------------------------------------------
// Lifecycle Events
// -----------------------------------------------------------------------------

// LevelStartedEvent is published when a player first enters a level
type LevelStartedEvent struct {
	BaseEvent
	LevelID string `json:"level_id"`
}

// NewLevelStartedEvent creates a new level started event
func NewLevelStartedEvent(playerID, levelID string) LevelStartedEvent {
	return LevelStartedEvent{
		BaseEvent: NewBaseEvent(EventLevelStarted, playerID),
		LevelID:   levelID,
	}
}

// LevelCompletedEvent is published when a level moves to completed
type LevelCompletedEvent struct {
	BaseEvent
	LevelID  string        `json:"level_id"`
	Duration time.Duration `json:"duration"`
}

// NewLevelCompletedEvent creates a new level completed event
func NewLevelCompletedEvent(p LevelProgress) LevelCompletedEvent {
	var d time.Duration
	if p.CompletedAt != nil {
		d = p.CompletedAt.Sub(p.StartedAt)
	}
	return LevelCompletedEvent{
		BaseEvent: NewBaseEvent(EventLevelCompleted, p.PlayerID),
		LevelID:   p.LevelID,
		Duration:  d,
	}
}

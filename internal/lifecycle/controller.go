// Package lifecycle moves levels through not_started, in_progress and
// completed for each player. Transitions only move forward.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/radquest/radquest/internal/catalog"
	"github.com/radquest/radquest/internal/domain"
	"github.com/radquest/radquest/internal/keylock"
	"github.com/radquest/radquest/internal/metrics"
)

// Store persists level progress. StartLevel and CompleteLevel report
// whether they changed anything.
type Store interface {
	StartLevel(ctx context.Context, playerID, levelID string, at time.Time) (domain.LevelProgress, bool, error)
	CompleteLevel(ctx context.Context, playerID, levelID string, at time.Time) (domain.LevelProgress, bool, error)
	LevelProgress(ctx context.Context, playerID string) ([]domain.LevelProgress, error)
}

// Controller is the level lifecycle controller
type Controller struct {
	store   Store
	catalog catalog.Catalog
	locks   *keylock.Map
	now     func() time.Time

	logger  *slog.Logger
	metrics *metrics.Metrics
	events  *domain.EventDispatcher
}

// NewController creates a new controller
func NewController(store Store, cat catalog.Catalog, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:   store,
		catalog: cat,
		locks:   keylock.New(),
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With("component", "lifecycle"),
	}
}

// SetMetrics sets the collectors for state transitions
func (c *Controller) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// SetEvents sets the dispatcher for level events
func (c *Controller) SetEvents(d *domain.EventDispatcher) {
	c.events = d
}

// Start records that the player entered the level. Starting a level that
// is in progress or completed changes nothing.
func (c *Controller) Start(ctx context.Context, playerID, levelID string) (domain.LevelProgress, error) {
	playerID, levelID, err := c.check(ctx, playerID, levelID)
	if err != nil {
		return domain.LevelProgress{}, err
	}

	unlock := c.locks.Lock(playerID + "\x00" + levelID)
	defer unlock()

	p, created, err := c.store.StartLevel(context.WithoutCancel(ctx), playerID, levelID, c.now())
	if err != nil {
		return domain.LevelProgress{}, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	if created {
		c.logger.Info("level started", "player_id", playerID, "level_id", levelID)
		c.metrics.LevelTransition(string(domain.ProgressInProgress))
		c.publish(domain.NewLevelStartedEvent(playerID, levelID))
	}
	return p, nil
}

// Complete finishes the level. Completing a completed level changes
// nothing. Completing a level that was never started starts and completes
// it at the same instant.
func (c *Controller) Complete(ctx context.Context, playerID, levelID string) (domain.LevelProgress, error) {
	playerID, levelID, err := c.check(ctx, playerID, levelID)
	if err != nil {
		return domain.LevelProgress{}, err
	}

	unlock := c.locks.Lock(playerID + "\x00" + levelID)
	defer unlock()

	p, changed, err := c.store.CompleteLevel(context.WithoutCancel(ctx), playerID, levelID, c.now())
	if err != nil {
		return domain.LevelProgress{}, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	if changed {
		c.logger.Info("level completed", "player_id", playerID, "level_id", levelID)
		c.metrics.LevelTransition(string(domain.ProgressCompleted))
		c.publish(domain.NewLevelCompletedEvent(p))
	}
	return p, nil
}

// GetProgress lists the player's level records ordered by start time.
// Levels without a record are not_started and are not listed.
func (c *Controller) GetProgress(ctx context.Context, playerID string) ([]domain.LevelProgress, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, domain.NewSubmissionError("player_id", "required")
	}
	list, err := c.store.LevelProgress(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	if list == nil {
		list = []domain.LevelProgress{}
	}
	return list, nil
}

// State returns the state of one level, not_started if there is no record.
func (c *Controller) State(ctx context.Context, playerID, levelID string) (domain.ProgressState, error) {
	list, err := c.GetProgress(ctx, playerID)
	if err != nil {
		return "", err
	}
	for _, p := range list {
		if p.LevelID == levelID {
			return p.State, nil
		}
	}
	return domain.ProgressNotStarted, nil
}

func (c *Controller) check(ctx context.Context, playerID, levelID string) (string, string, error) {
	playerID = strings.TrimSpace(playerID)
	levelID = strings.TrimSpace(levelID)
	if playerID == "" {
		return "", "", domain.NewSubmissionError("player_id", "required")
	}
	if levelID == "" {
		return "", "", domain.NewSubmissionError("level_id", "required")
	}
	if _, err := c.catalog.Level(ctx, levelID); err != nil {
		return "", "", err
	}
	return playerID, levelID, nil
}

func (c *Controller) publish(e domain.Event) {
	if c.events != nil {
		c.events.Publish(e)
	}
}

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radquest/radquest/internal/domain"
)

// DefaultCacheTTL is how long catalog entries stay in Redis
const DefaultCacheTTL = 10 * time.Minute

// CachedCatalog serves lookups from Redis and falls back to the wrapped
// catalog on a miss. Redis failures are logged and bypassed.
type CachedCatalog struct {
	next   Catalog
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedCatalog wraps next with a Redis cache
func NewCachedCatalog(next Catalog, client *redis.Client, ttl time.Duration) *CachedCatalog {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedCatalog{
		next:   next,
		client: client,
		prefix: "radquest:catalog:",
		ttl:    ttl,
		logger: slog.Default().With("component", "catalog_cache"),
	}
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Level returns a level by ID
func (c *CachedCatalog) Level(ctx context.Context, id string) (domain.Level, error) {
	var rec levelRecord
	if c.get(ctx, "level:"+id, &rec) {
		return rec.toDomain(), nil
	}
	level, err := c.next.Level(ctx, id)
	if err != nil {
		return domain.Level{}, err
	}
	c.set(ctx, "level:"+id, levelToRecord(level))
	return level, nil
}

// Levels returns all levels in order
func (c *CachedCatalog) Levels(ctx context.Context) ([]domain.Level, error) {
	var recs []levelRecord
	if c.get(ctx, "levels", &recs) {
		levels := make([]domain.Level, len(recs))
		for i, r := range recs {
			levels[i] = r.toDomain()
		}
		return levels, nil
	}

	levels, err := c.next.Levels(ctx)
	if err != nil {
		return nil, err
	}
	recs = make([]levelRecord, len(levels))
	for i, l := range levels {
		recs[i] = levelToRecord(l)
	}
	c.set(ctx, "levels", recs)
	return levels, nil
}

// LevelTasks returns the tasks of a level in order
func (c *CachedCatalog) LevelTasks(ctx context.Context, levelID string) ([]domain.Task, error) {
	var recs []taskRecord
	if c.get(ctx, "level_tasks:"+levelID, &recs) {
		if tasks, err := recordsToTasks(recs); err == nil {
			return tasks, nil
		}
	}

	tasks, err := c.next.LevelTasks(ctx, levelID)
	if err != nil {
		return nil, err
	}
	recs = make([]taskRecord, len(tasks))
	for i, t := range tasks {
		recs[i] = taskToRecord(t)
	}
	c.set(ctx, "level_tasks:"+levelID, recs)
	return tasks, nil
}

// Task returns a task by ID
func (c *CachedCatalog) Task(ctx context.Context, id string) (domain.Task, error) {
	var rec taskRecord
	if c.get(ctx, "task:"+id, &rec) {
		if task, err := rec.toDomain(); err == nil {
			return task, nil
		}
	}

	task, err := c.next.Task(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	c.set(ctx, "task:"+id, taskToRecord(task))
	return task, nil
}

// Invalidate drops every cached catalog entry
func (c *CachedCatalog) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan catalog keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *CachedCatalog) get(ctx context.Context, key string, dst any) bool {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.Warn("cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (c *CachedCatalog) set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func recordsToTasks(recs []taskRecord) ([]domain.Task, error) {
	tasks := make([]domain.Task, len(recs))
	for i, r := range recs {
		t, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		tasks[i] = t
	}
	return tasks, nil
}

package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radquest/radquest/internal/domain"
)

// unreachableRedis returns a client whose every command fails fast
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCachedCatalog_FallsBackWhenRedisDown(t *testing.T) {
	seed, err := OpenFileCatalog("")
	if err != nil {
		t.Fatalf("OpenFileCatalog() error = %v", err)
	}
	c := NewCachedCatalog(seed, unreachableRedis(t), 0)
	ctx := context.Background()

	if c.ttl != DefaultCacheTTL {
		t.Errorf("ttl = %v; want %v", c.ttl, DefaultCacheTTL)
	}

	level, err := c.Level(ctx, "demo-level-1")
	if err != nil {
		t.Fatalf("Level() error = %v", err)
	}
	if level.ID != "demo-level-1" {
		t.Errorf("Level().ID = %q", level.ID)
	}

	levels, err := c.Levels(ctx)
	if err != nil || len(levels) != 3 {
		t.Errorf("Levels() = %d levels, %v; want 3", len(levels), err)
	}

	tasks, err := c.LevelTasks(ctx, "demo-level-1")
	if err != nil || len(tasks) != 2 {
		t.Errorf("LevelTasks() = %d tasks, %v; want 2", len(tasks), err)
	}

	task, err := c.Task(ctx, "demo-task-shopping")
	if err != nil {
		t.Fatalf("Task() error = %v", err)
	}
	if _, ok := task.Body.(domain.MultipleChoice); !ok {
		t.Errorf("Body = %T; want MultipleChoice", task.Body)
	}

	if _, err := c.Task(ctx, "nope"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("Task() error = %v; want ErrTaskNotFound", err)
	}

	if err := c.Invalidate(ctx); err == nil {
		t.Error("Invalidate() should fail when Redis is unreachable")
	}
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := NewRedisClient(ctx, "127.0.0.1:1", "", 0); err == nil {
		t.Error("NewRedisClient() should fail for an unreachable address")
	}
}

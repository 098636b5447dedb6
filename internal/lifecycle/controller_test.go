package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/radquest/radquest/internal/catalog"
	"github.com/radquest/radquest/internal/domain"
	"github.com/radquest/radquest/internal/metrics"
	"github.com/radquest/radquest/internal/storage/sqlite"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func setupController(t *testing.T) (*Controller, *clock) {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "lifecycle.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	cat, err := catalog.OpenFileCatalog("")
	if err != nil {
		t.Fatalf("OpenFileCatalog() error = %v", err)
	}

	clk := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	c := NewController(sqlite.NewStore(db), cat, nil)
	c.now = clk.now
	return c, clk
}

func TestController_ScenarioD(t *testing.T) {
	c, clk := setupController(t)
	ctx := context.Background()

	if _, err := c.Start(ctx, "P", "demo-level-1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	clk.advance(5 * time.Minute)
	first, err := c.Complete(ctx, "P", "demo-level-1")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	clk.advance(time.Hour)
	second, err := c.Complete(ctx, "P", "demo-level-1")
	if err != nil {
		t.Fatalf("Complete() again error = %v", err)
	}

	if second.State != domain.ProgressCompleted {
		t.Errorf("State = %q; want completed", second.State)
	}
	if !second.CompletedAt.Equal(*first.CompletedAt) {
		t.Errorf("CompletedAt = %v; want unchanged %v", second.CompletedAt, first.CompletedAt)
	}

	list, err := c.GetProgress(ctx, "P")
	if err != nil {
		t.Fatalf("GetProgress() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("GetProgress() len = %d; want exactly one record", len(list))
	}
}

func TestController_StartIsNoOpOnceStarted(t *testing.T) {
	c, clk := setupController(t)
	ctx := context.Background()

	first, err := c.Start(ctx, "P", "demo-level-1")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	clk.advance(time.Minute)
	second, err := c.Start(ctx, "P", "demo-level-1")
	if err != nil {
		t.Fatalf("Start() again error = %v", err)
	}
	if !second.StartedAt.Equal(first.StartedAt) || second.State != domain.ProgressInProgress {
		t.Errorf("Start() again = %+v; want unchanged %+v", second, first)
	}

	if _, err := c.Complete(ctx, "P", "demo-level-1"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	after, err := c.Start(ctx, "P", "demo-level-1")
	if err != nil {
		t.Fatalf("Start() after complete error = %v", err)
	}
	if after.State != domain.ProgressCompleted {
		t.Errorf("State = %q; a completed level must stay completed", after.State)
	}
}

func TestController_ImplicitStartOnComplete(t *testing.T) {
	c, _ := setupController(t)
	ctx := context.Background()

	p, err := c.Complete(ctx, "P", "demo-level-2")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if p.State != domain.ProgressCompleted || p.CompletedAt == nil {
		t.Fatalf("Complete() = %+v; want completed", p)
	}
	if !p.StartedAt.Equal(*p.CompletedAt) {
		t.Errorf("StartedAt = %v; want equal to CompletedAt %v", p.StartedAt, *p.CompletedAt)
	}
}

func TestController_State(t *testing.T) {
	c, _ := setupController(t)
	ctx := context.Background()

	state, err := c.State(ctx, "P", "demo-level-1")
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if state != domain.ProgressNotStarted {
		t.Errorf("State() = %q; want not_started", state)
	}

	c.Start(ctx, "P", "demo-level-1")
	if state, _ := c.State(ctx, "P", "demo-level-1"); state != domain.ProgressInProgress {
		t.Errorf("State() = %q; want in_progress", state)
	}
}

func TestController_Validation(t *testing.T) {
	c, _ := setupController(t)
	ctx := context.Background()

	if _, err := c.Start(ctx, "P", "no-such-level"); !errors.Is(err, domain.ErrLevelNotFound) {
		t.Errorf("Start() error = %v; want ErrLevelNotFound", err)
	}
	if _, err := c.Complete(ctx, "P", "no-such-level"); !errors.Is(err, domain.ErrLevelNotFound) {
		t.Errorf("Complete() error = %v; want ErrLevelNotFound", err)
	}
	if _, err := c.Start(ctx, "", "demo-level-1"); !errors.Is(err, domain.ErrInvalidSubmission) {
		t.Errorf("Start() error = %v; want ErrInvalidSubmission", err)
	}
	if _, err := c.Complete(ctx, "P", " "); !errors.Is(err, domain.ErrInvalidSubmission) {
		t.Errorf("Complete() error = %v; want ErrInvalidSubmission", err)
	}
	if _, err := c.GetProgress(ctx, ""); !errors.Is(err, domain.ErrInvalidSubmission) {
		t.Errorf("GetProgress() error = %v; want ErrInvalidSubmission", err)
	}

	list, err := c.GetProgress(ctx, "nobody")
	if err != nil {
		t.Fatalf("GetProgress() error = %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("GetProgress() = %v; want empty non-nil list", list)
	}
}

func TestController_ConcurrentCompleteTransitionsOnce(t *testing.T) {
	c, _ := setupController(t)
	m := metrics.New()
	c.SetMetrics(m)
	events := domain.NewEventDispatcher()
	c.SetEvents(events)

	var (
		mu        sync.Mutex
		completed int
	)
	events.Subscribe(domain.EventLevelCompleted, func(domain.Event) {
		mu.Lock()
		completed++
		mu.Unlock()
	})

	ctx := context.Background()
	c.Start(ctx, "P", "demo-level-1")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Complete(ctx, "P", "demo-level-1"); err != nil {
				t.Errorf("Complete() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if completed != 1 {
		t.Errorf("level.completed events = %d; want 1", completed)
	}
}

func TestController_PublishesEvents(t *testing.T) {
	c, clk := setupController(t)
	events := domain.NewEventDispatcher()
	c.SetEvents(events)

	var got []domain.Event
	events.SubscribeAll(func(e domain.Event) { got = append(got, e) })

	ctx := context.Background()
	c.Start(ctx, "P", "demo-level-3")
	clk.advance(90 * time.Second)
	c.Complete(ctx, "P", "demo-level-3")

	if len(got) != 2 {
		t.Fatalf("events = %d; want 2", len(got))
	}
	if got[0].EventType() != domain.EventLevelStarted {
		t.Errorf("first event = %q; want %q", got[0].EventType(), domain.EventLevelStarted)
	}
	done, ok := got[1].(domain.LevelCompletedEvent)
	if !ok {
		t.Fatalf("second event = %T; want LevelCompletedEvent", got[1])
	}
	if done.Duration != 90*time.Second {
		t.Errorf("Duration = %v; want 1m30s", done.Duration)
	}
}

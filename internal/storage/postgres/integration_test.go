//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/radquest/radquest/internal/domain"
	"github.com/radquest/radquest/internal/storage"
	"github.com/radquest/radquest/internal/storage/postgres"
)

// setupPostgres starts a PostgreSQL container and returns a migrated store
func setupPostgres(t *testing.T) *postgres.Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("radquest"),
		tcpostgres.WithUsername("radquest"),
		tcpostgres.WithPassword("radquest"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() second run error = %v", err)
	}
	if v, _ := db.Version(ctx); v != 2 {
		t.Fatalf("Version() = %d; want 2", v)
	}

	return postgres.NewStore(db)
}

func attempt(player, submissionID string, points int, dose float64) *domain.Attempt {
	return &domain.Attempt{
		ID:           uuid.New(),
		SubmissionID: submissionID,
		PlayerID:     player,
		LevelID:      "demo-level-1",
		TaskID:       "demo-task-2",
		Kind:         domain.TaskKindFreeText,
		AnswerText:   "Abstand halten",
		Correctness:  0,
		Points:       points,
		Dose:         dose,
	}
}

func TestIntegration_Store_Attempts(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	first := attempt("player-1", "sub-1", 8, 0.5)
	first.Verdict = &domain.Verdict{Score: 8, Summary: "gut", Weaknesses: []string{"kurz"}}
	if _, err := store.RecordAttempt(ctx, first); err != nil {
		t.Fatalf("RecordAttempt() error = %v", err)
	}

	stats, err := store.RecordAttempt(ctx, attempt("player-1", "", 2, 3))
	if err != nil {
		t.Fatalf("RecordAttempt() error = %v", err)
	}
	if stats.KnowledgePoints != 10 || stats.Dose != 3.5 || stats.Attempts != 2 {
		t.Errorf("stats = %+v; want 10 points, 3.5 dose, 2 attempts", stats)
	}

	_, err = store.RecordAttempt(ctx, attempt("player-1", "sub-1", 8, 0.5))
	if !errors.Is(err, storage.ErrDuplicateSubmission) {
		t.Fatalf("RecordAttempt() duplicate error = %v; want ErrDuplicateSubmission", err)
	}

	stored, err := store.AttemptBySubmission(ctx, "player-1", "sub-1")
	if err != nil {
		t.Fatalf("AttemptBySubmission() error = %v", err)
	}
	if stored.ID != first.ID || stored.Verdict == nil || stored.Verdict.Score != 8 {
		t.Errorf("AttemptBySubmission() = %+v; want first attempt with verdict", stored)
	}

	list, err := store.ListAttempts(ctx, "player-1", 10)
	if err != nil {
		t.Fatalf("ListAttempts() error = %v", err)
	}
	if len(list) != 2 || list[1].ID != first.ID {
		t.Errorf("ListAttempts() should return 2 attempts newest first")
	}

	totals, err := store.AttemptTotals(ctx, "player-1")
	if err != nil {
		t.Fatalf("AttemptTotals() error = %v", err)
	}
	if totals.KnowledgePoints != 10 || totals.Attempts != 2 {
		t.Errorf("AttemptTotals() = %+v; want 10 points, 2 attempts", totals)
	}
}

func TestIntegration_Store_ConcurrentDeltas(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(points int) {
			defer wg.Done()
			if _, err := store.RecordAttempt(ctx, attempt("player-1", "", points, 0)); err != nil {
				t.Errorf("RecordAttempt() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	stats, err := store.Stats(ctx, "player-1")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if want := n * (n + 1) / 2; stats.KnowledgePoints != want {
		t.Errorf("KnowledgePoints = %d; want %d", stats.KnowledgePoints, want)
	}
}

func TestIntegration_Store_LevelProgress(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, created, err := store.StartLevel(ctx, "player-1", "demo-level-1", at); err != nil || !created {
		t.Fatalf("StartLevel() = %v, %v; want created", created, err)
	}
	if _, created, _ := store.StartLevel(ctx, "player-1", "demo-level-1", at.Add(time.Hour)); created {
		t.Error("StartLevel() twice should not create")
	}

	p, changed, err := store.CompleteLevel(ctx, "player-1", "demo-level-1", at.Add(time.Minute))
	if err != nil || !changed || !p.Completed() {
		t.Fatalf("CompleteLevel() = %+v, %v, %v; want completed", p, changed, err)
	}
	if _, changed, _ := store.CompleteLevel(ctx, "player-1", "demo-level-1", at.Add(time.Hour)); changed {
		t.Error("CompleteLevel() twice should be a no-op")
	}

	p, changed, err = store.CompleteLevel(ctx, "player-1", "demo-level-2", at.Add(2*time.Minute))
	if err != nil || !changed || !p.StartedAt.Equal(*p.CompletedAt) {
		t.Errorf("CompleteLevel() without start = %+v, %v, %v", p, changed, err)
	}

	list, err := store.LevelProgress(ctx, "player-1")
	if err != nil {
		t.Fatalf("LevelProgress() error = %v", err)
	}
	if len(list) != 2 || list[0].LevelID != "demo-level-1" {
		t.Errorf("LevelProgress() = %+v", list)
	}
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sqlc-dev/pqtype"

	"github.com/radquest/radquest/internal/domain"
	"github.com/radquest/radquest/internal/storage"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Store persists attempts, player stats and level progress in PostgreSQL.
type Store struct {
	db  *DB
	now func() time.Time
}

// NewStore creates a new Store
func NewStore(db *DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// querier is satisfied by the pool and by pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RecordAttempt inserts the attempt and applies its delta in one transaction.
func (s *Store) RecordAttempt(ctx context.Context, a *domain.Attempt) (domain.PlayerStats, error) {
	verdict, err := storage.EncodeVerdict(a.Verdict)
	if err != nil {
		return domain.PlayerStats{}, err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return domain.PlayerStats{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO attempts (id, submission_id, player_id, level_id, task_id, kind, option_id,
			answer_text, reasoning, correctness, points_got, dose_msv_got, verdict, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = tx.Exec(ctx, query,
		a.ID, optionalText(a.SubmissionID), a.PlayerID, a.LevelID, a.TaskID, string(a.Kind), a.OptionID,
		a.AnswerText, a.Reasoning, a.Correctness, a.Points, a.Dose,
		pqtype.NullRawMessage{RawMessage: verdict, Valid: verdict != nil}, a.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.PlayerStats{}, storage.ErrDuplicateSubmission
		}
		return domain.PlayerStats{}, fmt.Errorf("insert attempt: %w", err)
	}

	stats, err := applyDelta(ctx, tx, a.PlayerID, a.Points, a.Dose, a.CreatedAt)
	if err != nil {
		return domain.PlayerStats{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.PlayerStats{}, fmt.Errorf("commit attempt: %w", err)
	}
	return stats, nil
}

// AttemptBySubmission returns the attempt stored under a client submission id.
func (s *Store) AttemptBySubmission(ctx context.Context, playerID, submissionID string) (*domain.Attempt, error) {
	query := selectAttempt + ` WHERE player_id = $1 AND submission_id = $2`
	a, err := scanAttempt(s.db.QueryRow(ctx, query, playerID, submissionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return a, err
}

// ListAttempts returns the player's attempts, newest first.
func (s *Store) ListAttempts(ctx context.Context, playerID string, limit int) ([]*domain.Attempt, error) {
	query := selectAttempt + ` WHERE player_id = $1 ORDER BY seq DESC LIMIT $2`
	rows, err := s.db.Query(ctx, query, playerID, storage.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*domain.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

const selectAttempt = `
	SELECT id, submission_id, player_id, level_id, task_id, kind, option_id, answer_text,
		reasoning, correctness, points_got, dose_msv_got, verdict, created_at
	FROM attempts`

func scanAttempt(row pgx.Row) (*domain.Attempt, error) {
	var (
		a            domain.Attempt
		kind         string
		submissionID *string
		verdict      pqtype.NullRawMessage
	)
	err := row.Scan(&a.ID, &submissionID, &a.PlayerID, &a.LevelID, &a.TaskID, &kind, &a.OptionID,
		&a.AnswerText, &a.Reasoning, &a.Correctness, &a.Points, &a.Dose, &verdict, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan attempt: %w", err)
	}

	a.Kind = domain.TaskKind(kind)
	if submissionID != nil {
		a.SubmissionID = *submissionID
	}
	if verdict.Valid {
		if a.Verdict, err = storage.DecodeVerdict(verdict.RawMessage); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func applyDelta(ctx context.Context, q querier, playerID string, points int, dose float64, at time.Time) (domain.PlayerStats, error) {
	query := `
		INSERT INTO player_stats (player_id, knowledge_points, dose_msv, attempts, updated_at)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (player_id) DO UPDATE SET
			knowledge_points = player_stats.knowledge_points + excluded.knowledge_points,
			dose_msv = player_stats.dose_msv + excluded.dose_msv,
			attempts = player_stats.attempts + 1,
			updated_at = excluded.updated_at
		RETURNING knowledge_points, dose_msv, attempts, updated_at
	`
	stats := domain.PlayerStats{PlayerID: playerID}
	err := q.QueryRow(ctx, query, playerID, points, dose, at).
		Scan(&stats.KnowledgePoints, &stats.Dose, &stats.Attempts, &stats.UpdatedAt)
	if err != nil {
		return domain.PlayerStats{}, fmt.Errorf("apply delta: %w", err)
	}
	return stats, nil
}

// Stats returns the player's stats; unknown players have zero stats.
func (s *Store) Stats(ctx context.Context, playerID string) (domain.PlayerStats, error) {
	query := `
		SELECT knowledge_points, dose_msv, attempts, updated_at
		FROM player_stats WHERE player_id = $1
	`
	stats := domain.PlayerStats{PlayerID: playerID}
	err := s.db.QueryRow(ctx, query, playerID).
		Scan(&stats.KnowledgePoints, &stats.Dose, &stats.Attempts, &stats.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PlayerStats{PlayerID: playerID}, nil
	}
	if err != nil {
		return stats, fmt.Errorf("read stats: %w", err)
	}
	return stats, nil
}

// AttemptTotals recomputes the player's stats from the attempt history.
func (s *Store) AttemptTotals(ctx context.Context, playerID string) (domain.PlayerStats, error) {
	query := `
		SELECT COALESCE(SUM(points_got), 0), COALESCE(SUM(dose_msv_got), 0), COUNT(*)
		FROM attempts WHERE player_id = $1
	`
	stats := domain.PlayerStats{PlayerID: playerID}
	err := s.db.QueryRow(ctx, query, playerID).Scan(&stats.KnowledgePoints, &stats.Dose, &stats.Attempts)
	if err != nil {
		return stats, fmt.Errorf("sum attempts: %w", err)
	}
	return stats, nil
}

// StartLevel creates an in-progress record if none exists.
func (s *Store) StartLevel(ctx context.Context, playerID, levelID string, at time.Time) (domain.LevelProgress, bool, error) {
	query := `
		INSERT INTO level_progress (player_id, level_id, state, started_at)
		VALUES ($1, $2, 'in_progress', $3)
		ON CONFLICT (player_id, level_id) DO NOTHING
	`
	tag, err := s.db.Exec(ctx, query, playerID, levelID, at)
	if err != nil {
		return domain.LevelProgress{}, false, fmt.Errorf("start level: %w", err)
	}
	p, err := s.levelProgress(ctx, playerID, levelID)
	return p, tag.RowsAffected() > 0, err
}

// CompleteLevel moves the record to completed, creating it if absent.
func (s *Store) CompleteLevel(ctx context.Context, playerID, levelID string, at time.Time) (domain.LevelProgress, bool, error) {
	query := `
		INSERT INTO level_progress (player_id, level_id, state, started_at, completed_at)
		VALUES ($1, $2, 'completed', $3, $3)
		ON CONFLICT (player_id, level_id) DO UPDATE SET
			state = 'completed',
			completed_at = excluded.completed_at
		WHERE level_progress.state <> 'completed'
	`
	tag, err := s.db.Exec(ctx, query, playerID, levelID, at)
	if err != nil {
		return domain.LevelProgress{}, false, fmt.Errorf("complete level: %w", err)
	}
	p, err := s.levelProgress(ctx, playerID, levelID)
	return p, tag.RowsAffected() > 0, err
}

// LevelProgress lists the player's level records ordered by start time.
func (s *Store) LevelProgress(ctx context.Context, playerID string) ([]domain.LevelProgress, error) {
	rows, err := s.db.Query(ctx, selectProgress+` WHERE player_id = $1 ORDER BY started_at, level_id`, playerID)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	defer rows.Close()

	var out []domain.LevelProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) levelProgress(ctx context.Context, playerID, levelID string) (domain.LevelProgress, error) {
	row := s.db.QueryRow(ctx, selectProgress+` WHERE player_id = $1 AND level_id = $2`, playerID, levelID)
	p, err := scanProgress(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, storage.ErrNotFound
	}
	return p, err
}

const selectProgress = `SELECT player_id, level_id, state, started_at, completed_at FROM level_progress`

func scanProgress(row pgx.Row) (domain.LevelProgress, error) {
	var (
		p     domain.LevelProgress
		state string
	)
	if err := row.Scan(&p.PlayerID, &p.LevelID, &state, &p.StartedAt, &p.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("scan progress: %w", err)
	}
	p.State = domain.ProgressState(state)
	return p, nil
}

func optionalText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

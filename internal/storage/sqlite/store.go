package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/radquest/radquest/internal/domain"
	"github.com/radquest/radquest/internal/storage"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists attempts, player stats and level progress in SQLite.
type Store struct {
	db  *DB
	now func() time.Time
}

// NewStore creates a Store over an opened and migrated database.
func NewStore(db *DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// -----------------------------------------------------------------------------
// Attempts
// -----------------------------------------------------------------------------

// RecordAttempt inserts the attempt and applies its delta to the player's
// stats in one transaction. It returns the stats after the delta.
func (s *Store) RecordAttempt(ctx context.Context, a *domain.Attempt) (domain.PlayerStats, error) {
	verdict, err := storage.EncodeVerdict(a.Verdict)
	if err != nil {
		return domain.PlayerStats{}, err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.PlayerStats{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attempts (id, submission_id, player_id, level_id, task_id, kind, option_id,
			answer_text, reasoning, correctness, points_got, dose_msv_got, verdict, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), nullString(a.SubmissionID), a.PlayerID, a.LevelID, a.TaskID, string(a.Kind),
		a.OptionID, a.AnswerText, a.Reasoning, a.Correctness, a.Points, a.Dose,
		nullBytes(verdict), a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.PlayerStats{}, storage.ErrDuplicateSubmission
		}
		return domain.PlayerStats{}, fmt.Errorf("insert attempt: %w", err)
	}

	stats, err := applyDelta(ctx, tx, a.PlayerID, a.Points, a.Dose, a.CreatedAt)
	if err != nil {
		return domain.PlayerStats{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.PlayerStats{}, fmt.Errorf("commit attempt: %w", err)
	}
	return stats, nil
}

// AttemptBySubmission returns the attempt stored under a client submission id.
func (s *Store) AttemptBySubmission(ctx context.Context, playerID, submissionID string) (*domain.Attempt, error) {
	row := s.db.QueryRowContext(ctx, selectAttempt+` WHERE player_id = ? AND submission_id = ?`, playerID, submissionID)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return a, err
}

// ListAttempts returns the player's attempts, newest first.
func (s *Store) ListAttempts(ctx context.Context, playerID string, limit int) ([]*domain.Attempt, error) {
	rows, err := s.db.QueryContext(ctx, selectAttempt+` WHERE player_id = ? ORDER BY rowid DESC LIMIT ?`,
		playerID, storage.ClampLimit(limit))
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

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row scanner) (*domain.Attempt, error) {
	var (
		a            domain.Attempt
		id, kind     string
		submissionID sql.NullString
		optionID     sql.NullString
		verdict      sql.NullString
	)
	err := row.Scan(&id, &submissionID, &a.PlayerID, &a.LevelID, &a.TaskID, &kind, &optionID,
		&a.AnswerText, &a.Reasoning, &a.Correctness, &a.Points, &a.Dose, &verdict, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan attempt: %w", err)
	}

	a.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse attempt id: %w", err)
	}
	a.Kind = domain.TaskKind(kind)
	a.SubmissionID = submissionID.String
	if optionID.Valid {
		opt := optionID.String
		a.OptionID = &opt
	}
	if verdict.Valid {
		if a.Verdict, err = storage.DecodeVerdict([]byte(verdict.String)); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

// -----------------------------------------------------------------------------
// Player stats
// -----------------------------------------------------------------------------

// applyDelta adds points and dose to the player's stats and counts one
// attempt. It only runs inside RecordAttempt's transaction so the stats
// never hold a delta without its attempt.
func applyDelta(ctx context.Context, ex execer, playerID string, points int, dose float64, at time.Time) (domain.PlayerStats, error) {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO player_stats (player_id, knowledge_points, dose_msv, attempts, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(player_id) DO UPDATE SET
			knowledge_points = player_stats.knowledge_points + excluded.knowledge_points,
			dose_msv = player_stats.dose_msv + excluded.dose_msv,
			attempts = player_stats.attempts + 1,
			updated_at = excluded.updated_at`,
		playerID, points, dose, at,
	)
	if err != nil {
		return domain.PlayerStats{}, fmt.Errorf("apply delta: %w", err)
	}
	return readStats(ctx, ex, playerID)
}

// Stats returns the player's stats; unknown players have zero stats.
func (s *Store) Stats(ctx context.Context, playerID string) (domain.PlayerStats, error) {
	stats, err := readStats(ctx, s.db, playerID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.PlayerStats{PlayerID: playerID}, nil
	}
	return stats, err
}

func readStats(ctx context.Context, ex execer, playerID string) (domain.PlayerStats, error) {
	stats := domain.PlayerStats{PlayerID: playerID}
	err := ex.QueryRowContext(ctx, `
		SELECT knowledge_points, dose_msv, attempts, updated_at
		FROM player_stats WHERE player_id = ?`, playerID,
	).Scan(&stats.KnowledgePoints, &stats.Dose, &stats.Attempts, &stats.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return stats, storage.ErrNotFound
	}
	if err != nil {
		return stats, fmt.Errorf("read stats: %w", err)
	}
	return stats, nil
}

// AttemptTotals recomputes the player's stats from the attempt history.
func (s *Store) AttemptTotals(ctx context.Context, playerID string) (domain.PlayerStats, error) {
	stats := domain.PlayerStats{PlayerID: playerID}
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(points_got), 0), COALESCE(SUM(dose_msv_got), 0.0), COUNT(*)
		FROM attempts WHERE player_id = ?`, playerID,
	).Scan(&stats.KnowledgePoints, &stats.Dose, &stats.Attempts)
	if err != nil {
		return stats, fmt.Errorf("sum attempts: %w", err)
	}
	return stats, nil
}

// -----------------------------------------------------------------------------
// Level progress
// -----------------------------------------------------------------------------

// StartLevel creates an in-progress record if none exists. The bool reports
// whether a record was created.
func (s *Store) StartLevel(ctx context.Context, playerID, levelID string, at time.Time) (domain.LevelProgress, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO level_progress (player_id, level_id, state, started_at)
		VALUES (?, ?, 'in_progress', ?)
		ON CONFLICT(player_id, level_id) DO NOTHING`,
		playerID, levelID, at,
	)
	if err != nil {
		return domain.LevelProgress{}, false, fmt.Errorf("start level: %w", err)
	}
	created, err := res.RowsAffected()
	if err != nil {
		return domain.LevelProgress{}, false, fmt.Errorf("start level: %w", err)
	}

	p, err := s.levelProgress(ctx, playerID, levelID)
	return p, created > 0, err
}

// CompleteLevel moves the record to completed. An absent record is created
// already completed with started_at equal to completed_at. The bool reports
// whether the state changed.
func (s *Store) CompleteLevel(ctx context.Context, playerID, levelID string, at time.Time) (domain.LevelProgress, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO level_progress (player_id, level_id, state, started_at, completed_at)
		VALUES (?, ?, 'completed', ?, ?)
		ON CONFLICT(player_id, level_id) DO UPDATE SET
			state = 'completed',
			completed_at = excluded.completed_at
		WHERE level_progress.state <> 'completed'`,
		playerID, levelID, at, at,
	)
	if err != nil {
		return domain.LevelProgress{}, false, fmt.Errorf("complete level: %w", err)
	}
	changed, err := res.RowsAffected()
	if err != nil {
		return domain.LevelProgress{}, false, fmt.Errorf("complete level: %w", err)
	}

	p, err := s.levelProgress(ctx, playerID, levelID)
	return p, changed > 0, err
}

// LevelProgress lists the player's level records ordered by start time.
func (s *Store) LevelProgress(ctx context.Context, playerID string) ([]domain.LevelProgress, error) {
	rows, err := s.db.QueryContext(ctx, selectProgress+` WHERE player_id = ? ORDER BY started_at, rowid`, playerID)
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
	row := s.db.QueryRowContext(ctx, selectProgress+` WHERE player_id = ? AND level_id = ?`, playerID, levelID)
	p, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return p, storage.ErrNotFound
	}
	return p, err
}

const selectProgress = `SELECT player_id, level_id, state, started_at, completed_at FROM level_progress`

func scanProgress(row scanner) (domain.LevelProgress, error) {
	var (
		p         domain.LevelProgress
		state     string
		completed sql.NullTime
	)
	if err := row.Scan(&p.PlayerID, &p.LevelID, &state, &p.StartedAt, &completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("scan progress: %w", err)
	}
	p.State = domain.ProgressState(state)
	if completed.Valid {
		t := completed.Time
		p.CompletedAt = &t
	}
	return p, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

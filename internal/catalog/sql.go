package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/radquest/radquest/internal/domain"
)

// SQLCatalog reads content from the levels, tasks and options tables.
// It works against SQLite (mattn/go-sqlite3) and PostgreSQL (lib/pq); both
// accept $N placeholders.
type SQLCatalog struct {
	db *sql.DB
}

// NewSQLCatalog creates a catalog over an open database
func NewSQLCatalog(db *sql.DB) *SQLCatalog {
	return &SQLCatalog{db: db}
}

// OpenPostgresCatalog opens a catalog over a PostgreSQL DSN using lib/pq
func OpenPostgresCatalog(dsn string) (*SQLCatalog, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres catalog: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres catalog: %w", err)
	}
	return NewSQLCatalog(db), nil
}

// Close closes the underlying database
func (c *SQLCatalog) Close() error {
	return c.db.Close()
}

const levelColumns = `id, title, intro_text, topic_tag, ordering, is_active`

func scanLevel(row interface{ Scan(...any) error }) (domain.Level, error) {
	var l domain.Level
	err := row.Scan(&l.ID, &l.Title, &l.Intro, &l.Topic, &l.Ordering, &l.Active)
	return l, err
}

// Level returns a level by ID
func (c *SQLCatalog) Level(ctx context.Context, id string) (domain.Level, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+levelColumns+` FROM levels WHERE id = $1 AND is_active`, id)
	level, err := scanLevel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Level{}, fmt.Errorf("%w: %s", domain.ErrLevelNotFound, id)
	}
	if err != nil {
		return domain.Level{}, fmt.Errorf("query level: %w", err)
	}
	return level, nil
}

// Levels returns all active levels in order
func (c *SQLCatalog) Levels(ctx context.Context) ([]domain.Level, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+levelColumns+` FROM levels WHERE is_active ORDER BY ordering, id`)
	if err != nil {
		return nil, fmt.Errorf("query levels: %w", err)
	}
	defer rows.Close()

	var levels []domain.Level
	for rows.Next() {
		l, err := scanLevel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan level: %w", err)
		}
		levels = append(levels, l)
	}
	return levels, rows.Err()
}

const taskColumns = `id, level_id, kind, prompt_text, evaluation_criteria, example_answer,
	ordering, is_active, max_points, fallback_points, dose_delta_msv`

func scanTaskRecord(row interface{ Scan(...any) error }) (taskRecord, error) {
	var (
		r      taskRecord
		active bool
	)
	err := row.Scan(&r.ID, &r.LevelID, &r.Kind, &r.Prompt, &r.Rubric, &r.ExampleAnswer,
		&r.Ordering, &active, &r.MaxPoints, &r.FallbackPoints, &r.DoseDelta)
	r.Active = &active
	return r, err
}

// LevelTasks returns the active tasks of a level in order
func (c *SQLCatalog) LevelTasks(ctx context.Context, levelID string) ([]domain.Task, error) {
	if _, err := c.Level(ctx, levelID); err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE level_id = $1 AND is_active ORDER BY ordering, id`, levelID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	var records []taskRecord
	for rows.Next() {
		r, err := scanTaskRecord(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan task: %w", err)
		}
		records = append(records, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}

	tasks := make([]domain.Task, 0, len(records))
	for _, r := range records {
		task, err := c.assemble(ctx, r)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Task returns an active task by ID
func (c *SQLCatalog) Task(ctx context.Context, id string) (domain.Task, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND is_active`, id)
	r, err := scanTaskRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("query task: %w", err)
	}
	return c.assemble(ctx, r)
}

func (c *SQLCatalog) assemble(ctx context.Context, r taskRecord) (domain.Task, error) {
	if r.Kind == domain.TaskKindMultipleChoice {
		opts, err := c.options(ctx, r.ID)
		if err != nil {
			return domain.Task{}, err
		}
		r.Options = opts
	}
	return r.toDomain()
}

func (c *SQLCatalog) options(ctx context.Context, taskID string) ([]optionRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, option_text, points_awarded, dose_delta_msv, correctness, cost
		FROM options WHERE task_id = $1 ORDER BY ordering, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query options: %w", err)
	}
	defer rows.Close()

	var opts []optionRecord
	for rows.Next() {
		var o optionRecord
		if err := rows.Scan(&o.ID, &o.Text, &o.Points, &o.DoseDelta, &o.Correctness, &o.Cost); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		opts = append(opts, o)
	}
	return opts, rows.Err()
}

// Import copies every level and task of src into the tables, replacing
// rows with the same ids
func (c *SQLCatalog) Import(ctx context.Context, src Catalog) error {
	levels, err := src.Levels(ctx)
	if err != nil {
		return fmt.Errorf("list source levels: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	for _, l := range levels {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO levels (id, title, intro_text, topic_tag, ordering, is_active)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				title = excluded.title,
				intro_text = excluded.intro_text,
				topic_tag = excluded.topic_tag,
				ordering = excluded.ordering,
				is_active = excluded.is_active`,
			l.ID, l.Title, l.Intro, l.Topic, l.Ordering, l.Active); err != nil {
			return fmt.Errorf("import level %s: %w", l.ID, err)
		}

		tasks, err := src.LevelTasks(ctx, l.ID)
		if err != nil {
			return fmt.Errorf("list source tasks: %w", err)
		}
		for _, t := range tasks {
			if err := importTask(ctx, tx, taskToRecord(t)); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

func importTask(ctx context.Context, tx *sql.Tx, r taskRecord) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tasks (id, level_id, kind, prompt_text, evaluation_criteria, example_answer,
			ordering, is_active, max_points, fallback_points, dose_delta_msv)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			level_id = excluded.level_id,
			kind = excluded.kind,
			prompt_text = excluded.prompt_text,
			evaluation_criteria = excluded.evaluation_criteria,
			example_answer = excluded.example_answer,
			ordering = excluded.ordering,
			is_active = excluded.is_active,
			max_points = excluded.max_points,
			fallback_points = excluded.fallback_points,
			dose_delta_msv = excluded.dose_delta_msv`,
		r.ID, r.LevelID, string(r.Kind), r.Prompt, r.Rubric, r.ExampleAnswer,
		r.Ordering, isActive(r.Active), r.MaxPoints, r.FallbackPoints, r.DoseDelta); err != nil {
		return fmt.Errorf("import task %s: %w", r.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM options WHERE task_id = $1`, r.ID); err != nil {
		return fmt.Errorf("clear options of %s: %w", r.ID, err)
	}
	for i, o := range r.Options {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO options (id, task_id, option_text, points_awarded, dose_delta_msv, correctness, cost, ordering)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			o.ID, r.ID, o.Text, o.Points, o.DoseDelta, o.Correctness, o.Cost, i+1); err != nil {
			return fmt.Errorf("import option %s: %w", o.ID, err)
		}
	}
	return nil
}

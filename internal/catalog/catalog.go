// Package catalog provides read-only access to levels, tasks and options.
//
// Three implementations share the Catalog interface: FileCatalog reads YAML
// level files, SQLCatalog reads the levels/tasks/options tables and
// CachedCatalog puts a Redis cache in front of either.
package catalog

import (
	"context"

	"github.com/radquest/radquest/internal/domain"
)

// Catalog is the read-only content source consumed by the core.
// Only active levels and tasks are visible. Lookups of unknown ids return
// domain.ErrLevelNotFound or domain.ErrTaskNotFound.
type Catalog interface {
	// Level returns one level
	Level(ctx context.Context, id string) (domain.Level, error)
	// Levels returns all levels ordered by Ordering
	Levels(ctx context.Context) ([]domain.Level, error)
	// LevelTasks returns the tasks of a level ordered by Ordering
	LevelTasks(ctx context.Context, levelID string) ([]domain.Task, error)
	// Task returns one task with its options
	Task(ctx context.Context, id string) (domain.Task, error)
}

package catalog

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/radquest/radquest/internal/domain"
)

//go:embed seed/*.yaml
var seedFS embed.FS

// Seed returns the built-in demo content
func Seed() fs.FS {
	sub, err := fs.Sub(seedFS, "seed")
	if err != nil {
		panic(err)
	}
	return sub
}

// FileCatalog serves levels loaded from YAML files, one level per file
type FileCatalog struct {
	fsys fs.FS

	mu     sync.RWMutex
	levels map[string]domain.Level
	tasks  map[string]domain.Task
	byLvl  map[string][]string
}

// NewFileCatalog creates a catalog reading *.yaml files from fsys
func NewFileCatalog(fsys fs.FS) *FileCatalog {
	return &FileCatalog{fsys: fsys}
}

// OpenFileCatalog loads the catalog from a directory. An empty dir loads
// the built-in seed content.
func OpenFileCatalog(dir string) (*FileCatalog, error) {
	var fsys fs.FS
	if dir == "" {
		fsys = Seed()
	} else {
		fsys = os.DirFS(dir)
	}
	c := NewFileCatalog(fsys)
	if err := c.Load(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load parses every level file. The previous content stays in place if any
// file fails to parse.
func (c *FileCatalog) Load() error {
	entries, err := fs.ReadDir(c.fsys, ".")
	if err != nil {
		return fmt.Errorf("read catalog directory: %w", err)
	}

	levels := make(map[string]domain.Level)
	tasks := make(map[string]domain.Task)
	byLvl := make(map[string][]string)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (path.Ext(name) != ".yaml" && path.Ext(name) != ".yml") {
			continue
		}

		rec, err := c.loadLevelFile(name)
		if err != nil {
			return fmt.Errorf("load level %s: %w", name, err)
		}
		if rec.ID == "" {
			rec.ID = strings.TrimSuffix(name, path.Ext(name))
		}
		if _, dup := levels[rec.ID]; dup {
			return fmt.Errorf("duplicate level id %s", rec.ID)
		}

		level := rec.toDomain()
		if !level.Active {
			continue
		}
		levels[level.ID] = level

		for i, tr := range rec.Tasks {
			tr.LevelID = level.ID
			if tr.Ordering == 0 {
				tr.Ordering = i + 1
			}
			task, err := tr.toDomain()
			if err != nil {
				return fmt.Errorf("level %s: %w", level.ID, err)
			}
			if _, dup := tasks[task.ID]; dup {
				return fmt.Errorf("duplicate task id %s", task.ID)
			}
			if !task.Active {
				continue
			}
			tasks[task.ID] = task
			byLvl[level.ID] = append(byLvl[level.ID], task.ID)
		}

		ids := byLvl[level.ID]
		sort.SliceStable(ids, func(i, j int) bool {
			return tasks[ids[i]].Ordering < tasks[ids[j]].Ordering
		})
	}

	c.mu.Lock()
	c.levels, c.tasks, c.byLvl = levels, tasks, byLvl
	c.mu.Unlock()
	return nil
}

func (c *FileCatalog) loadLevelFile(name string) (levelRecord, error) {
	data, err := fs.ReadFile(c.fsys, name)
	if err != nil {
		return levelRecord{}, fmt.Errorf("read level file: %w", err)
	}

	var rec levelRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return levelRecord{}, fmt.Errorf("parse level file: %w", err)
	}
	return rec, nil
}

// Level returns a level by ID
func (c *FileCatalog) Level(_ context.Context, id string) (domain.Level, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	level, ok := c.levels[id]
	if !ok {
		return domain.Level{}, fmt.Errorf("%w: %s", domain.ErrLevelNotFound, id)
	}
	return level, nil
}

// Levels returns all levels ordered by Ordering
func (c *FileCatalog) Levels(_ context.Context) ([]domain.Level, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	levels := make([]domain.Level, 0, len(c.levels))
	for _, l := range c.levels {
		levels = append(levels, l)
	}
	sort.Slice(levels, func(i, j int) bool {
		if levels[i].Ordering != levels[j].Ordering {
			return levels[i].Ordering < levels[j].Ordering
		}
		return levels[i].ID < levels[j].ID
	})
	return levels, nil
}

// LevelTasks returns the tasks of a level in order
func (c *FileCatalog) LevelTasks(_ context.Context, levelID string) ([]domain.Task, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.levels[levelID]; !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrLevelNotFound, levelID)
	}
	ids := c.byLvl[levelID]
	tasks := make([]domain.Task, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, c.tasks[id])
	}
	return tasks, nil
}

// Task returns a task by ID
func (c *FileCatalog) Task(_ context.Context, id string) (domain.Task, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	task, ok := c.tasks[id]
	if !ok {
		return domain.Task{}, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	return task, nil
}

package catalog

import (
	"fmt"

	"github.com/radquest/radquest/internal/domain"
)

// levelRecord is the serialized form of a level used by YAML files and the
// Redis cache
type levelRecord struct {
	ID       string       `yaml:"id" json:"id"`
	Title    string       `yaml:"title" json:"title"`
	Intro    string       `yaml:"intro" json:"intro"`
	Topic    string       `yaml:"topic" json:"topic"`
	Ordering int          `yaml:"ordering" json:"ordering"`
	Active   *bool        `yaml:"active,omitempty" json:"active,omitempty"`
	Tasks    []taskRecord `yaml:"tasks,omitempty" json:"tasks,omitempty"`
}

type taskRecord struct {
	ID            string          `yaml:"id" json:"id"`
	LevelID       string          `yaml:"level_id,omitempty" json:"level_id"`
	Kind          domain.TaskKind `yaml:"kind" json:"kind"`
	Prompt        string          `yaml:"prompt" json:"prompt"`
	Rubric        string          `yaml:"rubric" json:"rubric"`
	ExampleAnswer string          `yaml:"example_answer" json:"example_answer"`
	Ordering      int             `yaml:"ordering" json:"ordering"`
	Active        *bool           `yaml:"active,omitempty" json:"active,omitempty"`

	// multiple choice
	Options []optionRecord `yaml:"options,omitempty" json:"options,omitempty"`

	// free text
	MaxPoints      int     `yaml:"max_points,omitempty" json:"max_points,omitempty"`
	FallbackPoints int     `yaml:"fallback_points,omitempty" json:"fallback_points,omitempty"`
	DoseDelta      float64 `yaml:"dose_delta,omitempty" json:"dose_delta,omitempty"`
}

type optionRecord struct {
	ID          string  `yaml:"id" json:"id"`
	Text        string  `yaml:"text" json:"text"`
	Points      int     `yaml:"points" json:"points"`
	DoseDelta   float64 `yaml:"dose_delta" json:"dose_delta"`
	Correctness float64 `yaml:"correctness" json:"correctness"`
	Cost        int     `yaml:"cost" json:"cost"`
}

func isActive(b *bool) bool {
	return b == nil || *b
}

func (r levelRecord) toDomain() domain.Level {
	return domain.Level{
		ID:       r.ID,
		Title:    r.Title,
		Intro:    r.Intro,
		Topic:    r.Topic,
		Ordering: r.Ordering,
		Active:   isActive(r.Active),
	}
}

func levelToRecord(l domain.Level) levelRecord {
	active := l.Active
	return levelRecord{
		ID:       l.ID,
		Title:    l.Title,
		Intro:    l.Intro,
		Topic:    l.Topic,
		Ordering: l.Ordering,
		Active:   &active,
	}
}

func (r taskRecord) toDomain() (domain.Task, error) {
	task := domain.Task{
		ID:            r.ID,
		LevelID:       r.LevelID,
		Prompt:        r.Prompt,
		Rubric:        r.Rubric,
		ExampleAnswer: r.ExampleAnswer,
		Ordering:      r.Ordering,
		Active:        isActive(r.Active),
	}

	switch r.Kind {
	case domain.TaskKindMultipleChoice:
		if len(r.Options) == 0 {
			return domain.Task{}, fmt.Errorf("task %s: multiple choice task has no options", r.ID)
		}
		body := domain.MultipleChoice{Options: make([]domain.Option, len(r.Options))}
		seen := make(map[string]bool, len(r.Options))
		for i, o := range r.Options {
			if o.ID == "" {
				return domain.Task{}, fmt.Errorf("task %s: option %d has no id", r.ID, i)
			}
			if seen[o.ID] {
				return domain.Task{}, fmt.Errorf("task %s: duplicate option %s", r.ID, o.ID)
			}
			if o.Points < 0 {
				return domain.Task{}, fmt.Errorf("task %s: option %s has negative points", r.ID, o.ID)
			}
			seen[o.ID] = true
			body.Options[i] = domain.Option{
				ID:          o.ID,
				TaskID:      r.ID,
				Text:        o.Text,
				Points:      o.Points,
				DoseDelta:   o.DoseDelta,
				Correctness: o.Correctness,
				Cost:        o.Cost,
				Ordering:    i + 1,
			}
		}
		task.Body = body
	case domain.TaskKindFreeText:
		if r.MaxPoints < 0 || r.FallbackPoints < 0 {
			return domain.Task{}, fmt.Errorf("task %s: negative points", r.ID)
		}
		task.Body = domain.FreeText{
			MaxPoints:      r.MaxPoints,
			FallbackPoints: r.FallbackPoints,
			DoseDelta:      r.DoseDelta,
		}
	default:
		return domain.Task{}, fmt.Errorf("task %s: %w: %q", r.ID, domain.ErrUnknownTaskKind, r.Kind)
	}

	return task, nil
}

func taskToRecord(t domain.Task) taskRecord {
	active := t.Active
	r := taskRecord{
		ID:            t.ID,
		LevelID:       t.LevelID,
		Kind:          t.Kind(),
		Prompt:        t.Prompt,
		Rubric:        t.Rubric,
		ExampleAnswer: t.ExampleAnswer,
		Ordering:      t.Ordering,
		Active:        &active,
	}
	_, _ = domain.VisitTask[struct{}](t, recordFiller{r: &r})
	return r
}

type recordFiller struct {
	r *taskRecord
}

func (f recordFiller) MultipleChoice(_ domain.Task, body domain.MultipleChoice) (struct{}, error) {
	f.r.Options = make([]optionRecord, len(body.Options))
	for i, o := range body.Options {
		f.r.Options[i] = optionRecord{
			ID:          o.ID,
			Text:        o.Text,
			Points:      o.Points,
			DoseDelta:   o.DoseDelta,
			Correctness: o.Correctness,
			Cost:        o.Cost,
		}
	}
	return struct{}{}, nil
}

func (f recordFiller) FreeText(_ domain.Task, body domain.FreeText) (struct{}, error) {
	f.r.MaxPoints = body.MaxPoints
	f.r.FallbackPoints = body.FallbackPoints
	f.r.DoseDelta = body.DoseDelta
	return struct{}{}, nil
}

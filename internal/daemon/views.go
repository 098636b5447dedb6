package daemon

import (
	"time"

	"github.com/google/uuid"

	"github.com/radquest/radquest/internal/domain"
)

// attemptView is the audit record of one attempt
type attemptView struct {
	ID           uuid.UUID       `json:"id"`
	SubmissionID string          `json:"submission_id,omitempty"`
	LevelID      string          `json:"level_id"`
	TaskID       string          `json:"task_id"`
	Kind         domain.TaskKind `json:"kind"`
	OptionID     *string         `json:"option_id,omitempty"`
	AnswerText   string          `json:"answer_text"`
	Reasoning    string          `json:"reasoning,omitempty"`
	Correctness  float64         `json:"correctness"`
	Points       int             `json:"points"`
	Dose         float64         `json:"dose_msv"`
	Verdict      *domain.Verdict `json:"verdict"`
	CreatedAt    time.Time       `json:"created_at"`
}

func newAttemptView(a *domain.Attempt) attemptView {
	return attemptView{
		ID:           a.ID,
		SubmissionID: a.SubmissionID,
		LevelID:      a.LevelID,
		TaskID:       a.TaskID,
		Kind:         a.Kind,
		OptionID:     a.OptionID,
		AnswerText:   a.AnswerText,
		Reasoning:    a.Reasoning,
		Correctness:  a.Correctness,
		Points:       a.Points,
		Dose:         a.Dose,
		Verdict:      a.Verdict,
		CreatedAt:    a.CreatedAt,
	}
}

type levelView struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Intro    string `json:"intro"`
	Topic    string `json:"topic,omitempty"`
	Ordering int    `json:"ordering"`
}

func newLevelView(l domain.Level) levelView {
	return levelView{
		ID:       l.ID,
		Title:    l.Title,
		Intro:    l.Intro,
		Topic:    l.Topic,
		Ordering: l.Ordering,
	}
}

// taskView is what a player may see of a task: no rubric, no example
// answer and no option scoring.
type taskView struct {
	ID        string          `json:"id"`
	LevelID   string          `json:"level_id"`
	Kind      domain.TaskKind `json:"kind"`
	Prompt    string          `json:"prompt"`
	Ordering  int             `json:"ordering"`
	Options   []optionView    `json:"options,omitempty"`
	MaxPoints int             `json:"max_points,omitempty"`
}

type optionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Cost int    `json:"cost"`
}

type taskViewer struct{}

func (taskViewer) base(t domain.Task) taskView {
	return taskView{
		ID:       t.ID,
		LevelID:  t.LevelID,
		Kind:     t.Kind(),
		Prompt:   t.Prompt,
		Ordering: t.Ordering,
	}
}

func (v taskViewer) MultipleChoice(t domain.Task, body domain.MultipleChoice) (taskView, error) {
	view := v.base(t)
	view.Options = make([]optionView, 0, len(body.Options))
	for _, o := range body.Options {
		view.Options = append(view.Options, optionView{ID: o.ID, Text: o.Text, Cost: o.Cost})
	}
	return view, nil
}

func (v taskViewer) FreeText(t domain.Task, body domain.FreeText) (taskView, error) {
	view := v.base(t)
	view.MaxPoints = body.MaxPoints
	return view, nil
}

package domain

import (
	"fmt"
	"sort"
)

// Level groups tasks under a shared framing story
type Level struct {
	ID       string
	Title    string
	Intro    string // framing text shown before the first task
	Topic    string
	Ordering int
	Active   bool
}

// TaskKind identifies the answer format of a task
type TaskKind string

const (
	TaskKindMultipleChoice TaskKind = "multiple_choice"
	TaskKindFreeText       TaskKind = "free_text"
)

// Valid reports whether k is a known task kind
func (k TaskKind) Valid() bool {
	return k == TaskKindMultipleChoice || k == TaskKindFreeText
}

// Task is a single question inside a level. Tasks are owned by the content
// catalog and never mutated by the core.
type Task struct {
	ID            string
	LevelID       string
	Prompt        string
	Rubric        string // evaluation criteria for the judge
	ExampleAnswer string
	Ordering      int
	Active        bool
	Body          TaskBody
}

// Kind returns the kind of the task body
func (t Task) Kind() TaskKind {
	if t.Body == nil {
		return ""
	}
	return t.Body.Kind()
}

// TaskBody holds the kind-specific part of a task. The only implementations
// are MultipleChoice and FreeText.
type TaskBody interface {
	Kind() TaskKind
	taskBody()
}

// MultipleChoice is a task answered by picking one option plus a reasoning
type MultipleChoice struct {
	Options []Option
}

func (MultipleChoice) Kind() TaskKind { return TaskKindMultipleChoice }
func (MultipleChoice) taskBody()      {}

// Option returns the option with the given id
func (m MultipleChoice) Option(id string) (Option, bool) {
	for _, o := range m.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// BestOption returns the option with the highest correctness. Ties are
// broken by points (higher first) and then by id.
func (m MultipleChoice) BestOption() (Option, bool) {
	if len(m.Options) == 0 {
		return Option{}, false
	}
	ranked := make([]Option, len(m.Options))
	copy(ranked, m.Options)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Correctness != b.Correctness {
			return a.Correctness > b.Correctness
		}
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		return a.ID < b.ID
	})
	return ranked[0], true
}

// FreeText is a task answered with prose only
type FreeText struct {
	MaxPoints      int     // awarded for a perfect verdict score
	FallbackPoints int     // awarded when no verdict is available
	DoseDelta      float64 // dose applied regardless of the verdict
}

func (FreeText) Kind() TaskKind { return TaskKindFreeText }
func (FreeText) taskBody()      {}

// Option is one answer choice of a MultipleChoice task
type Option struct {
	ID          string
	TaskID      string
	Text        string
	Points      int
	DoseDelta   float64
	Correctness float64 // > 0 is a best answer, <= 0 wrong or suboptimal
	Cost        int     // in-game price, informational only
	Ordering    int
}

// Correct reports whether the option counts as a right answer
func (o Option) Correct() bool {
	return o.Correctness > 0
}

// TaskVisitor handles every task kind. Adding a kind adds a method here,
// so each visitor fails to compile until it handles the new kind.
type TaskVisitor[T any] interface {
	MultipleChoice(task Task, body MultipleChoice) (T, error)
	FreeText(task Task, body FreeText) (T, error)
}

// VisitTask dispatches task to the visitor method matching its kind
func VisitTask[T any](task Task, v TaskVisitor[T]) (T, error) {
	switch body := task.Body.(type) {
	case MultipleChoice:
		return v.MultipleChoice(task, body)
	case *MultipleChoice:
		return v.MultipleChoice(task, *body)
	case FreeText:
		return v.FreeText(task, body)
	case *FreeText:
		return v.FreeText(task, *body)
	default:
		var zero T
		return zero, fmt.Errorf("task %s: %w", task.ID, ErrUnknownTaskKind)
	}
}

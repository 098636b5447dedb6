// Package scoring computes the deterministic outcome of a submission.
// Nothing in this package performs I/O.
package scoring

import (
	"math"

	"github.com/radquest/radquest/internal/domain"
)

// Outcome is the stats delta and correctness of one submission
type Outcome struct {
	Correctness float64
	Points      int
	Dose        float64
}

// ScoreChoice scores a chosen option of a MultipleChoice task.
// The option must belong to the task.
func ScoreChoice(task domain.Task, body domain.MultipleChoice, optionID string) (Outcome, error) {
	if optionID == "" {
		return Outcome{}, domain.NewSubmissionError("option_id", "required for multiple choice tasks")
	}
	opt, ok := body.Option(optionID)
	if !ok {
		return Outcome{}, domain.NewSubmissionError("option_id", "option does not belong to task "+task.ID)
	}
	return Outcome{
		Correctness: opt.Correctness,
		Points:      opt.Points,
		Dose:        opt.DoseDelta,
	}, nil
}

// ScoreFreeText applies the free text rule. With a verdict, points scale
// linearly with the verdict score and correctness maps 0..10 onto -1..1.
// Without one, the task's fallback points apply and correctness is 0.
// The dose delta is applied either way.
func ScoreFreeText(body domain.FreeText, verdict *domain.Verdict) Outcome {
	if verdict == nil {
		return Outcome{
			Points: body.FallbackPoints,
			Dose:   body.DoseDelta,
		}
	}
	score := float64(clamp(verdict.Score, domain.MinVerdictScore, domain.MaxVerdictScore))
	return Outcome{
		Correctness: (score - 5) / 5,
		Points:      int(math.Round(score / domain.MaxVerdictScore * float64(body.MaxPoints))),
		Dose:        body.DoseDelta,
	}
}

// Score dispatches on the task kind. FreeText tasks have no options, so a
// non-empty optionID is rejected for them. verdict is ignored for
// MultipleChoice tasks.
func Score(task domain.Task, optionID string, verdict *domain.Verdict) (Outcome, error) {
	return domain.VisitTask[Outcome](task, scorer{optionID: optionID, verdict: verdict})
}

type scorer struct {
	optionID string
	verdict  *domain.Verdict
}

func (s scorer) MultipleChoice(task domain.Task, body domain.MultipleChoice) (Outcome, error) {
	return ScoreChoice(task, body, s.optionID)
}

func (s scorer) FreeText(task domain.Task, body domain.FreeText) (Outcome, error) {
	if s.optionID != "" {
		return Outcome{}, domain.NewSubmissionError("option_id", "free text task "+task.ID+" has no options")
	}
	return ScoreFreeText(body, s.verdict), nil
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Verdict score bounds
const (
	MinVerdictScore = 0
	MaxVerdictScore = 10
)

// Verdict is the external judge's assessment of a reasoning text
type Verdict struct {
	Score      int      `json:"score"`
	Summary    string   `json:"summary"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
}

// Validate checks the score range
func (v Verdict) Validate() error {
	if v.Score < MinVerdictScore || v.Score > MaxVerdictScore {
		return fmt.Errorf("verdict score %d outside [%d, %d]", v.Score, MinVerdictScore, MaxVerdictScore)
	}
	return nil
}

// Attempt is the write-once record of one submission
type Attempt struct {
	ID           uuid.UUID
	SubmissionID string // client idempotency key, may be empty
	PlayerID     string
	LevelID      string
	TaskID       string
	Kind         TaskKind
	OptionID     *string
	AnswerText   string
	Reasoning    string
	Correctness  float64
	Points       int
	Dose         float64
	Verdict      *Verdict
	CreatedAt    time.Time
}

// Evaluated reports whether a verdict was stored with the attempt
func (a *Attempt) Evaluated() bool {
	return a.Verdict != nil
}

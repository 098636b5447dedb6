package domain

import "time"

// PlayerStats holds the cumulative counters of one player.
// KnowledgePoints and Dose always equal the sums over the player's attempts.
type PlayerStats struct {
	PlayerID        string    `json:"player_id"`
	KnowledgePoints int       `json:"knowledge_points"`
	Dose            float64   `json:"dose_msv"`
	Attempts        int       `json:"attempts"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

// ProgressState is the lifecycle state of a level for one player
type ProgressState string

const (
	ProgressNotStarted ProgressState = "not_started"
	ProgressInProgress ProgressState = "in_progress"
	ProgressCompleted  ProgressState = "completed"
)

// LevelProgress tracks one (player, level) pair. States only move forward.
type LevelProgress struct {
	PlayerID    string        `json:"player_id"`
	LevelID     string        `json:"level_id"`
	State       ProgressState `json:"state"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Completed reports whether the level was finished
func (p LevelProgress) Completed() bool {
	return p.State == ProgressCompleted
}

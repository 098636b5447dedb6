// Package progression reads player stats. Stats are written only by the
// ledger, inside the same transaction as the attempt they count.
package progression

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/radquest/radquest/internal/domain"
)

// doseTolerance absorbs float rounding between the running total and a
// fresh sum over the attempts.
const doseTolerance = 1e-6

// Store reads stats and recomputes them from the attempt history
type Store interface {
	Stats(ctx context.Context, playerID string) (domain.PlayerStats, error)
	AttemptTotals(ctx context.Context, playerID string) (domain.PlayerStats, error)
}

// Service serves player stats
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new progression service
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger.With("component", "progression")}
}

// Stats returns the player's cumulative stats. Unknown players have zero stats.
func (s *Service) Stats(ctx context.Context, playerID string) (domain.PlayerStats, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return domain.PlayerStats{}, domain.NewSubmissionError("player_id", "required")
	}
	stats, err := s.store.Stats(ctx, playerID)
	if err != nil {
		return domain.PlayerStats{}, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return stats, nil
}

// Report compares the stored stats with the sums over the attempts
type Report struct {
	Stored       domain.PlayerStats `json:"stored"`
	Recomputed   domain.PlayerStats `json:"recomputed"`
	PointsDiff   int                `json:"points_diff"`
	DoseDiff     float64            `json:"dose_diff"`
	AttemptsDiff int                `json:"attempts_diff"`
}

// Consistent reports whether stored and recomputed stats agree
func (r Report) Consistent() bool {
	return r.PointsDiff == 0 && r.AttemptsDiff == 0 && math.Abs(r.DoseDiff) <= doseTolerance
}

// Verify recomputes the player's stats from the attempts and reports any
// drift from the stored counters.
func (s *Service) Verify(ctx context.Context, playerID string) (Report, error) {
	stored, err := s.Stats(ctx, playerID)
	if err != nil {
		return Report{}, err
	}
	recomputed, err := s.store.AttemptTotals(ctx, stored.PlayerID)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}

	r := Report{
		Stored:       stored,
		Recomputed:   recomputed,
		PointsDiff:   stored.KnowledgePoints - recomputed.KnowledgePoints,
		DoseDiff:     stored.Dose - recomputed.Dose,
		AttemptsDiff: stored.Attempts - recomputed.Attempts,
	}
	if !r.Consistent() {
		s.logger.Error("player stats drifted from attempts",
			"player_id", stored.PlayerID,
			"points_diff", r.PointsDiff,
			"dose_diff", r.DoseDiff,
			"attempts_diff", r.AttemptsDiff)
	}
	return r, nil
}

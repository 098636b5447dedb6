package progression

import (
	"context"
	"errors"
	"testing"

	"github.com/radquest/radquest/internal/domain"
)

type fakeStore struct {
	stats  map[string]domain.PlayerStats
	totals map[string]domain.PlayerStats
	err    error
}

func (f *fakeStore) Stats(_ context.Context, playerID string) (domain.PlayerStats, error) {
	if f.err != nil {
		return domain.PlayerStats{}, f.err
	}
	s, ok := f.stats[playerID]
	if !ok {
		return domain.PlayerStats{PlayerID: playerID}, nil
	}
	return s, nil
}

func (f *fakeStore) AttemptTotals(_ context.Context, playerID string) (domain.PlayerStats, error) {
	t := f.totals[playerID]
	t.PlayerID = playerID
	return t, nil
}

func TestService_Stats(t *testing.T) {
	store := &fakeStore{stats: map[string]domain.PlayerStats{
		"p1": {PlayerID: "p1", KnowledgePoints: 12, Dose: 3.5, Attempts: 2},
	}}
	svc := NewService(store, nil)
	ctx := context.Background()

	got, err := svc.Stats(ctx, " p1 ")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if got.KnowledgePoints != 12 || got.Dose != 3.5 {
		t.Errorf("Stats() = %+v", got)
	}

	got, err = svc.Stats(ctx, "unknown")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if got.PlayerID != "unknown" || got.KnowledgePoints != 0 || got.Dose != 0 {
		t.Errorf("Stats(unknown) = %+v; want zero stats", got)
	}

	if _, err := svc.Stats(ctx, ""); !errors.Is(err, domain.ErrInvalidSubmission) {
		t.Errorf("Stats(\"\") error = %v; want ErrInvalidSubmission", err)
	}
}

func TestService_StatsStoreFailure(t *testing.T) {
	svc := NewService(&fakeStore{err: errors.New("db closed")}, nil)

	if _, err := svc.Stats(context.Background(), "p1"); !errors.Is(err, domain.ErrPersistence) {
		t.Errorf("Stats() error = %v; want ErrPersistence", err)
	}
}

func TestService_Verify(t *testing.T) {
	tests := []struct {
		name       string
		stored     domain.PlayerStats
		totals     domain.PlayerStats
		consistent bool
	}{
		{
			name:       "consistent",
			stored:     domain.PlayerStats{KnowledgePoints: 10, Dose: 3.0000000001, Attempts: 2},
			totals:     domain.PlayerStats{KnowledgePoints: 10, Dose: 3, Attempts: 2},
			consistent: true,
		},
		{
			name:       "points drift",
			stored:     domain.PlayerStats{KnowledgePoints: 18, Dose: 3, Attempts: 2},
			totals:     domain.PlayerStats{KnowledgePoints: 10, Dose: 3, Attempts: 2},
			consistent: false,
		},
		{
			name:       "dose drift",
			stored:     domain.PlayerStats{KnowledgePoints: 10, Dose: 6, Attempts: 2},
			totals:     domain.PlayerStats{KnowledgePoints: 10, Dose: 3, Attempts: 2},
			consistent: false,
		},
		{
			name:       "unknown player",
			consistent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{
				stats:  map[string]domain.PlayerStats{},
				totals: map[string]domain.PlayerStats{"p1": tt.totals},
			}
			if tt.stored != (domain.PlayerStats{}) {
				tt.stored.PlayerID = "p1"
				store.stats["p1"] = tt.stored
			}

			report, err := NewService(store, nil).Verify(context.Background(), "p1")
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if report.Consistent() != tt.consistent {
				t.Errorf("Consistent() = %v; want %v (report %+v)", report.Consistent(), tt.consistent, report)
			}
		})
	}
}

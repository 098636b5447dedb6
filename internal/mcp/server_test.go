package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/radquest/radquest/internal/domain"
	"github.com/radquest/radquest/internal/ledger"
)

type fakeLedger struct {
	got ledger.SubmitRequest
	res *ledger.Result
	err error
}

func (f *fakeLedger) Submit(_ context.Context, req ledger.SubmitRequest) (*ledger.Result, error) {
	f.got = req
	return f.res, f.err
}

type fakeStats struct {
	stats domain.PlayerStats
	err   error
}

func (f fakeStats) Stats(_ context.Context, playerID string) (domain.PlayerStats, error) {
	st := f.stats
	st.PlayerID = playerID
	return st, f.err
}

type fakeLevels struct {
	progress []domain.LevelProgress
	err      error
}

func (f *fakeLevels) Complete(_ context.Context, playerID, levelID string) (domain.LevelProgress, error) {
	if f.err != nil {
		return domain.LevelProgress{}, f.err
	}
	now := time.Now().UTC()
	p := domain.LevelProgress{
		PlayerID:    playerID,
		LevelID:     levelID,
		State:       domain.ProgressCompleted,
		StartedAt:   now,
		CompletedAt: &now,
	}
	f.progress = append(f.progress, p)
	return p, nil
}

func (f *fakeLevels) GetProgress(_ context.Context, _ string) ([]domain.LevelProgress, error) {
	return f.progress, f.err
}

func TestNewServer(t *testing.T) {
	s := NewServer(Config{})

	if s == nil {
		t.Fatal("NewServer() returned nil")
	}
	if s.GetMCPServer() == nil {
		t.Error("GetMCPServer() returned nil")
	}
}

func TestHandleSubmit(t *testing.T) {
	id := uuid.New()
	led := &fakeLedger{res: &ledger.Result{
		AttemptID:     id,
		Correctness:   1,
		PointsAwarded: 8,
		Stats:         domain.PlayerStats{PlayerID: "p1", KnowledgePoints: 8, Attempts: 1},
	}}
	s := NewServer(Config{Ledger: led})

	out, err := s.handleSubmit(context.Background(), SubmitInput{
		SubmissionID: "sub-1",
		PlayerID:     "p1",
		LevelID:      "demo-level-1",
		TaskID:       "demo-task-shopping",
		OptionID:     "demo-option-radiation-suit",
		Reasoning:    "Der Anzug schirmt Strahlung ab",
	})
	if err != nil {
		t.Fatalf("handleSubmit() error = %v", err)
	}

	if led.got.SubmissionID != "sub-1" || led.got.OptionID != "demo-option-radiation-suit" {
		t.Errorf("request = %+v", led.got)
	}
	if out.AttemptID != id.String() {
		t.Errorf("AttemptID = %q, want %q", out.AttemptID, id)
	}
	if !out.Correct || out.PointsAwarded != 8 || out.KnowledgePoints != 8 {
		t.Errorf("output = %+v", out)
	}
	if out.Feedback != "" {
		t.Errorf("Feedback = %q; want empty without verdict", out.Feedback)
	}
}

func TestHandleSubmit_Verdict(t *testing.T) {
	led := &fakeLedger{res: &ledger.Result{
		AttemptID:     uuid.New(),
		PointsAwarded: 7,
		Verdict: &domain.Verdict{
			Score:      7,
			Summary:    "Gute Antwort",
			Strengths:  []string{"Abschirmung erkannt"},
			Weaknesses: []string{"Halbwertszeit fehlt"},
		},
	}}
	s := NewServer(Config{Ledger: led})

	out, err := s.handleSubmit(context.Background(), SubmitInput{PlayerID: "p1", AnswerText: "Blei"})
	if err != nil {
		t.Fatalf("handleSubmit() error = %v", err)
	}

	for _, want := range []string{"Score 7/10", "Gute Antwort", "+ Abschirmung erkannt", "- Halbwertszeit fehlt"} {
		if !strings.Contains(out.Feedback, want) {
			t.Errorf("Feedback = %q; missing %q", out.Feedback, want)
		}
	}
}

func TestHandleSubmit_Errors(t *testing.T) {
	ctx := context.Background()

	if _, err := NewServer(Config{}).handleSubmit(ctx, SubmitInput{}); err == nil {
		t.Error("handleSubmit() without ledger should fail")
	}

	led := &fakeLedger{err: domain.NewSubmissionError("reasoning", "too short")}
	_, err := NewServer(Config{Ledger: led}).handleSubmit(ctx, SubmitInput{PlayerID: "p1"})
	if !errors.Is(err, domain.ErrInvalidSubmission) {
		t.Errorf("handleSubmit() error = %v; want ErrInvalidSubmission", err)
	}
}

func TestHandleStats(t *testing.T) {
	s := NewServer(Config{Progression: fakeStats{stats: domain.PlayerStats{
		KnowledgePoints: 10,
		Dose:            3,
		Attempts:        2,
	}}})

	out, err := s.handleStats(context.Background(), PlayerInput{PlayerID: "p1"})
	if err != nil {
		t.Fatalf("handleStats() error = %v", err)
	}
	if out.PlayerID != "p1" || out.KnowledgePoints != 10 || out.Dose != 3 || out.Attempts != 2 {
		t.Errorf("output = %+v", out)
	}
	if out.Summary != "10 WP, 3.00 mSv after 2 attempts" {
		t.Errorf("Summary = %q", out.Summary)
	}

	s = NewServer(Config{Progression: fakeStats{err: domain.ErrPersistence}})
	if _, err := s.handleStats(context.Background(), PlayerInput{PlayerID: "p1"}); !errors.Is(err, domain.ErrPersistence) {
		t.Errorf("handleStats() error = %v; want ErrPersistence", err)
	}
}

func TestHandleCompleteAndProgress(t *testing.T) {
	levels := &fakeLevels{progress: []domain.LevelProgress{{
		PlayerID:  "p1",
		LevelID:   "demo-level-2",
		State:     domain.ProgressInProgress,
		StartedAt: time.Now().UTC(),
	}}}
	s := NewServer(Config{Lifecycle: levels})
	ctx := context.Background()

	out, err := s.handleCompleteLevel(ctx, LevelInput{PlayerID: "p1", LevelID: "demo-level-1"})
	if err != nil {
		t.Fatalf("handleCompleteLevel() error = %v", err)
	}
	if out.State != string(domain.ProgressCompleted) || out.LevelID != "demo-level-1" {
		t.Errorf("output = %+v", out)
	}

	progress, err := s.handleProgress(ctx, PlayerInput{PlayerID: "p1"})
	if err != nil {
		t.Fatalf("handleProgress() error = %v", err)
	}
	if len(progress.Levels) != 2 {
		t.Fatalf("len(Levels) = %d, want 2", len(progress.Levels))
	}
	if progress.Completed != 1 {
		t.Errorf("Completed = %d, want 1", progress.Completed)
	}
}

func TestHandleLevels_Errors(t *testing.T) {
	ctx := context.Background()

	s := NewServer(Config{})
	if _, err := s.handleProgress(ctx, PlayerInput{PlayerID: "p1"}); err == nil {
		t.Error("handleProgress() without lifecycle should fail")
	}
	if _, err := s.handleCompleteLevel(ctx, LevelInput{PlayerID: "p1", LevelID: "l"}); err == nil {
		t.Error("handleCompleteLevel() without lifecycle should fail")
	}

	s = NewServer(Config{Lifecycle: &fakeLevels{err: domain.ErrLevelNotFound}})
	if _, err := s.handleCompleteLevel(ctx, LevelInput{PlayerID: "p1", LevelID: "nope"}); !errors.Is(err, domain.ErrLevelNotFound) {
		t.Errorf("handleCompleteLevel() error = %v; want ErrLevelNotFound", err)
	}
}

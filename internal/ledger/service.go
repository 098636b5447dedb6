// Package ledger records scored submissions. It is the only writer of
// player stats: every attempt and its delta commit together.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/radquest/radquest/internal/catalog"
	"github.com/radquest/radquest/internal/domain"
	"github.com/radquest/radquest/internal/evaluation"
	"github.com/radquest/radquest/internal/keylock"
	"github.com/radquest/radquest/internal/metrics"
	"github.com/radquest/radquest/internal/scoring"
	"github.com/radquest/radquest/internal/storage"
)

// DefaultMinReasoningLength is the minimum reasoning length in characters
// for MultipleChoice submissions.
const DefaultMinReasoningLength = 10

// Store persists attempts together with their stats delta
type Store interface {
	// RecordAttempt inserts the attempt and applies its delta atomically.
	// A repeated submission id fails with storage.ErrDuplicateSubmission.
	RecordAttempt(ctx context.Context, a *domain.Attempt) (domain.PlayerStats, error)
	AttemptBySubmission(ctx context.Context, playerID, submissionID string) (*domain.Attempt, error)
	ListAttempts(ctx context.Context, playerID string, limit int) ([]*domain.Attempt, error)
	Stats(ctx context.Context, playerID string) (domain.PlayerStats, error)
}

// Options configures a Service
type Options struct {
	MinReasoningLength int
	Logger             *slog.Logger
	Metrics            *metrics.Metrics
	Events             *domain.EventDispatcher
}

// Service is the attempt ledger
type Service struct {
	store     Store
	catalog   catalog.Catalog
	evaluator evaluation.Evaluator
	locks     *keylock.Map

	minReasoning int
	logger       *slog.Logger
	metrics      *metrics.Metrics
	events       *domain.EventDispatcher
}

// NewService creates a ledger. evaluator may be nil to skip judging.
func NewService(store Store, cat catalog.Catalog, evaluator evaluation.Evaluator, opts Options) *Service {
	if opts.MinReasoningLength <= 0 {
		opts.MinReasoningLength = DefaultMinReasoningLength
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		store:        store,
		catalog:      cat,
		evaluator:    evaluator,
		locks:        keylock.New(),
		minReasoning: opts.MinReasoningLength,
		logger:       opts.Logger.With("component", "ledger"),
		metrics:      opts.Metrics,
		events:       opts.Events,
	}
}

// SubmitRequest is one answer to one task
type SubmitRequest struct {
	SubmissionID string `json:"submission_id,omitempty"`
	PlayerID     string `json:"player_id"`
	LevelID      string `json:"level_id"`
	TaskID       string `json:"task_id"`
	OptionID     string `json:"option_id,omitempty"`
	AnswerText   string `json:"answer_text,omitempty"`
	Reasoning    string `json:"reasoning,omitempty"`
}

// Result is what a submission earned
type Result struct {
	AttemptID     uuid.UUID          `json:"attempt_id"`
	Correctness   float64            `json:"correctness"`
	PointsAwarded int                `json:"points_awarded"`
	DoseReceived  float64            `json:"dose_received"`
	Verdict       *domain.Verdict    `json:"verdict"`
	Stats         domain.PlayerStats `json:"stats"`
	Replayed      bool               `json:"replayed,omitempty"`
}

// Submit validates, scores, judges and records one submission. Invalid
// input fails with a *domain.SubmissionError before anything is written.
// Judging failures are absorbed. Storage failures wrap domain.ErrPersistence.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Result, error) {
	req = normalize(req)

	level, task, err := s.resolve(ctx, req)
	if err != nil {
		s.rejected(req, "unknown", err)
		return nil, err
	}

	if req.SubmissionID != "" {
		res, err := s.replay(ctx, req)
		if err == nil {
			return res, nil
		}
		var se *domain.SubmissionError
		if errors.As(err, &se) {
			s.rejected(req, string(task.Kind()), err)
			return nil, err
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
	}

	chosen, err := domain.VisitTask[string](task, validator{req: req, minReasoning: s.minReasoning})
	if err != nil {
		s.rejected(req, string(task.Kind()), err)
		return nil, err
	}

	verdict := s.judge(ctx, level, task, req)

	outcome, err := scoring.Score(task, req.OptionID, verdict)
	if err != nil {
		s.rejected(req, string(task.Kind()), err)
		return nil, err
	}

	attempt := &domain.Attempt{
		ID:           uuid.New(),
		SubmissionID: req.SubmissionID,
		PlayerID:     req.PlayerID,
		LevelID:      req.LevelID,
		TaskID:       task.ID,
		Kind:         task.Kind(),
		AnswerText:   req.AnswerText,
		Reasoning:    req.Reasoning,
		Correctness:  outcome.Correctness,
		Points:       outcome.Points,
		Dose:         outcome.Dose,
		Verdict:      verdict,
		CreatedAt:    time.Now().UTC(),
	}
	if task.Kind() == domain.TaskKindMultipleChoice {
		opt := req.OptionID
		attempt.OptionID = &opt
		if attempt.AnswerText == "" {
			attempt.AnswerText = chosen
		}
	}

	stats, err := s.persist(ctx, attempt)
	if errors.Is(err, storage.ErrDuplicateSubmission) {
		res, err := s.replay(ctx, req.PlayerID, req.SubmissionID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
		return res, nil
	}
	if err != nil {
		s.logger.Error("attempt not recorded",
			"player_id", req.PlayerID,
			"task_id", task.ID,
			"error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}

	s.metrics.SubmissionRecorded(string(attempt.Kind), attempt.Points, attempt.Dose)
	s.logger.Info("attempt recorded",
		"player_id", attempt.PlayerID,
		"task_id", attempt.TaskID,
		"points", attempt.Points,
		"dose_msv", attempt.Dose,
		"evaluated", attempt.Evaluated())
	if s.events != nil {
		s.events.Publish(domain.NewAttemptRecordedEvent(attempt))
	}

	return resultOf(attempt, stats, false), nil
}

// ListAttempts returns a player's attempt history, newest first.
func (s *Service) ListAttempts(ctx context.Context, playerID string, limit int) ([]*domain.Attempt, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, domain.NewSubmissionError("player_id", "required")
	}
	attempts, err := s.store.ListAttempts(ctx, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return attempts, nil
}

// resolve checks the ids and loads the level and task from the catalog.
func (s *Service) resolve(ctx context.Context, req SubmitRequest) (domain.Level, domain.Task, error) {
	switch {
	case req.PlayerID == "":
		return domain.Level{}, domain.Task{}, domain.NewSubmissionError("player_id", "required")
	case req.LevelID == "":
		return domain.Level{}, domain.Task{}, domain.NewSubmissionError("level_id", "required")
	case req.TaskID == "":
		return domain.Level{}, domain.Task{}, domain.NewSubmissionError("task_id", "required")
	}

	level, err := s.catalog.Level(ctx, req.LevelID)
	if err != nil {
		return domain.Level{}, domain.Task{}, err
	}
	task, err := s.catalog.Task(ctx, req.TaskID)
	if err != nil {
		return domain.Level{}, domain.Task{}, err
	}
	if task.LevelID != level.ID {
		return domain.Level{}, domain.Task{}, domain.NewSubmissionError("task_id",
			fmt.Sprintf("task %s does not belong to level %s", task.ID, level.ID))
	}
	return level, task, nil
}

// judge asks the evaluator for a verdict. Failures are logged and yield nil.
func (s *Service) judge(ctx context.Context, level domain.Level, task domain.Task, req SubmitRequest) *domain.Verdict {
	if s.evaluator == nil {
		return nil
	}
	verdict, err := s.evaluator.Evaluate(ctx, evaluation.Request{
		Level:     level,
		Task:      task,
		OptionID:  req.OptionID,
		Answer:    req.AnswerText,
		Reasoning: req.Reasoning,
	})
	if err != nil {
		s.logger.Warn("evaluation unavailable, continuing without verdict",
			"player_id", req.PlayerID,
			"task_id", task.ID,
			"error", err)
		return nil
	}
	return verdict
}

// persist runs the unit of work under the player's lock. The caller's
// cancellation no longer applies once it has started.
func (s *Service) persist(ctx context.Context, a *domain.Attempt) (domain.PlayerStats, error) {
	unlock := s.locks.Lock(a.PlayerID)
	defer unlock()
	return s.store.RecordAttempt(context.WithoutCancel(ctx), a)
}

// replay returns the stored result of an earlier submission with the same id.
// replay returns the stored result for a retried submission. A submission
// id reused for a different task or option is a conflict, not a replay.
func (s *Service) replay(ctx context.Context, req SubmitRequest) (*Result, error) {
	a, err := s.store.AttemptBySubmission(ctx, req.PlayerID, req.SubmissionID)
	if err != nil {
		return nil, err
	}
	var storedOption string
	if a.OptionID != nil {
		storedOption = *a.OptionID
	}
	if a.LevelID != req.LevelID || a.TaskID != req.TaskID || storedOption != req.OptionID {
		return nil, domain.NewSubmissionError("submission_id",
			fmt.Sprintf("already used for task %s/%s", a.LevelID, a.TaskID))
	}

	stats, err := s.store.Stats(ctx, req.PlayerID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("submission replayed", "player_id", req.PlayerID, "submission_id", req.SubmissionID)
	return resultOf(a, stats, true), nil
}

func (s *Service) rejected(req SubmitRequest, kind string, err error) {
	var se *domain.SubmissionError
	if !errors.As(err, &se) {
		return
	}
	s.metrics.SubmissionRejected(kind, se.Field)
	s.logger.Debug("submission rejected",
		"player_id", req.PlayerID,
		"task_id", req.TaskID,
		"field", se.Field,
		"reason", se.Reason)
}

func resultOf(a *domain.Attempt, stats domain.PlayerStats, replayed bool) *Result {
	return &Result{
		AttemptID:     a.ID,
		Correctness:   a.Correctness,
		PointsAwarded: a.Points,
		DoseReceived:  a.Dose,
		Verdict:       a.Verdict,
		Stats:         stats,
		Replayed:      replayed,
	}
}

func normalize(req SubmitRequest) SubmitRequest {
	req.SubmissionID = strings.TrimSpace(req.SubmissionID)
	req.PlayerID = strings.TrimSpace(req.PlayerID)
	req.LevelID = strings.TrimSpace(req.LevelID)
	req.TaskID = strings.TrimSpace(req.TaskID)
	req.OptionID = strings.TrimSpace(req.OptionID)
	req.AnswerText = strings.TrimSpace(req.AnswerText)
	req.Reasoning = strings.TrimSpace(req.Reasoning)
	return req
}

// validator checks kind specific input. For MultipleChoice it returns the
// chosen option's text.
type validator struct {
	req          SubmitRequest
	minReasoning int
}

func (v validator) MultipleChoice(task domain.Task, body domain.MultipleChoice) (string, error) {
	if v.req.OptionID == "" {
		return "", domain.NewSubmissionError("option_id", "required for multiple choice tasks")
	}
	opt, ok := body.Option(v.req.OptionID)
	if !ok {
		return "", domain.NewSubmissionError("option_id", "option does not belong to task "+task.ID)
	}
	if n := utf8.RuneCountInString(v.req.Reasoning); n < v.minReasoning {
		return "", domain.NewSubmissionError("reasoning",
			fmt.Sprintf("must be at least %d characters, got %d", v.minReasoning, n))
	}
	return opt.Text, nil
}

func (v validator) FreeText(task domain.Task, _ domain.FreeText) (string, error) {
	if v.req.OptionID != "" {
		return "", domain.NewSubmissionError("option_id", "free text task "+task.ID+" has no options")
	}
	if v.req.AnswerText == "" {
		return "", domain.NewSubmissionError("answer_text", "required for free text tasks")
	}
	return "", nil
}

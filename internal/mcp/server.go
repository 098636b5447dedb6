// Package mcp exposes submissions, stats and level progress as MCP tools so
// assistant clients can play radquest.
package mcp

import (
	"context"
	"fmt"
	"strings"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"

	"github.com/radquest/radquest/internal/domain"
	"github.com/radquest/radquest/internal/ledger"
)

// Submitter records submissions
type Submitter interface {
	Submit(ctx context.Context, req ledger.SubmitRequest) (*ledger.Result, error)
}

// StatsReader reads cumulative player stats
type StatsReader interface {
	Stats(ctx context.Context, playerID string) (domain.PlayerStats, error)
}

// LevelTracker moves levels through their lifecycle
type LevelTracker interface {
	Complete(ctx context.Context, playerID, levelID string) (domain.LevelProgress, error)
	GetProgress(ctx context.Context, playerID string) ([]domain.LevelProgress, error)
}

// Server wraps the MCP server with radquest tools
type Server struct {
	mcpServer *server.Server
	ledger    Submitter
	stats     StatsReader
	levels    LevelTracker
}

// Config contains the services behind the tools
type Config struct {
	Ledger      Submitter
	Progression StatsReader
	Lifecycle   LevelTracker
}

// NewServer creates a new MCP server for radquest
func NewServer(cfg Config) *Server {
	s := &Server{
		ledger: cfg.Ledger,
		stats:  cfg.Progression,
		levels: cfg.Lifecycle,
	}

	s.mcpServer = server.New(server.Info{
		Name:    "radquest",
		Version: "0.1.0",
	}, server.WithInstructions(`
radquest is a learning game about radioactivity. Players answer tasks,
earn knowledge points (WP) and collect a dose in mSv for risky choices.

Available tools:
- radquest_submit: Answer a task (option plus reasoning, or free text)
- radquest_stats: Show a player's knowledge points, dose and attempt count
- radquest_progress: List the player's level progress
- radquest_complete_level: Mark a level as completed

Multiple choice answers need a reasoning of at least 10 characters.
Pass a submission_id to make retries safe.
`))

	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("radquest_submit").
		Description("Submit an answer to a task and get the score, dose and updated stats.").
		Handler(s.handleSubmit)

	s.mcpServer.Tool("radquest_stats").
		Description("Get a player's knowledge points, dose and number of attempts.").
		Handler(s.handleStats)

	s.mcpServer.Tool("radquest_progress").
		Description("List the levels a player has started or completed.").
		Handler(s.handleProgress)

	s.mcpServer.Tool("radquest_complete_level").
		Description("Mark a level as completed for a player.").
		Handler(s.handleCompleteLevel)
}

// Input/Output types for tools

type SubmitInput struct {
	SubmissionID string `json:"submission_id,omitempty" jsonschema:"description=Client idempotency key; repeating it returns the first result"`
	PlayerID     string `json:"player_id" jsonschema:"description=Player ID"`
	LevelID      string `json:"level_id" jsonschema:"description=Level ID"`
	TaskID       string `json:"task_id" jsonschema:"description=Task ID"`
	OptionID     string `json:"option_id,omitempty" jsonschema:"description=Chosen option for multiple choice tasks"`
	AnswerText   string `json:"answer_text,omitempty" jsonschema:"description=Answer for free text tasks"`
	Reasoning    string `json:"reasoning,omitempty" jsonschema:"description=Why this answer; required for multiple choice"`
}

type SubmitOutput struct {
	AttemptID       string          `json:"attempt_id"`
	Correct         bool            `json:"correct"`
	PointsAwarded   int             `json:"points_awarded"`
	DoseReceived    float64         `json:"dose_received_msv"`
	Feedback        string          `json:"feedback,omitempty"`
	Verdict         *domain.Verdict `json:"verdict,omitempty"`
	KnowledgePoints int             `json:"knowledge_points"`
	Dose            float64         `json:"dose_msv"`
	Replayed        bool            `json:"replayed,omitempty"`
}

type PlayerInput struct {
	PlayerID string `json:"player_id" jsonschema:"description=Player ID"`
}

type StatsOutput struct {
	PlayerID        string  `json:"player_id"`
	KnowledgePoints int     `json:"knowledge_points"`
	Dose            float64 `json:"dose_msv"`
	Attempts        int     `json:"attempts"`
	Summary         string  `json:"summary"`
}

type ProgressOutput struct {
	PlayerID  string                 `json:"player_id"`
	Levels    []domain.LevelProgress `json:"levels"`
	Completed int                    `json:"completed"`
}

type LevelInput struct {
	PlayerID string `json:"player_id" jsonschema:"description=Player ID"`
	LevelID  string `json:"level_id" jsonschema:"description=Level ID"`
}

type LevelOutput struct {
	PlayerID string `json:"player_id"`
	LevelID  string `json:"level_id"`
	State    string `json:"state"`
	Message  string `json:"message"`
}

// Tool handlers

func (s *Server) handleSubmit(ctx context.Context, input SubmitInput) (SubmitOutput, error) {
	if s.ledger == nil {
		return SubmitOutput{}, fmt.Errorf("submissions not available")
	}

	res, err := s.ledger.Submit(ctx, ledger.SubmitRequest{
		SubmissionID: input.SubmissionID,
		PlayerID:     input.PlayerID,
		LevelID:      input.LevelID,
		TaskID:       input.TaskID,
		OptionID:     input.OptionID,
		AnswerText:   input.AnswerText,
		Reasoning:    input.Reasoning,
	})
	if err != nil {
		return SubmitOutput{}, fmt.Errorf("submit: %w", err)
	}

	out := SubmitOutput{
		AttemptID:       res.AttemptID.String(),
		Correct:         res.Correctness > 0,
		PointsAwarded:   res.PointsAwarded,
		DoseReceived:    res.DoseReceived,
		Verdict:         res.Verdict,
		KnowledgePoints: res.Stats.KnowledgePoints,
		Dose:            res.Stats.Dose,
		Replayed:        res.Replayed,
	}
	if res.Verdict != nil {
		out.Feedback = feedback(res.Verdict)
	}
	return out, nil
}

func (s *Server) handleStats(ctx context.Context, input PlayerInput) (StatsOutput, error) {
	if s.stats == nil {
		return StatsOutput{}, fmt.Errorf("stats not available")
	}

	st, err := s.stats.Stats(ctx, input.PlayerID)
	if err != nil {
		return StatsOutput{}, fmt.Errorf("stats: %w", err)
	}

	return StatsOutput{
		PlayerID:        st.PlayerID,
		KnowledgePoints: st.KnowledgePoints,
		Dose:            st.Dose,
		Attempts:        st.Attempts,
		Summary:         fmt.Sprintf("%d WP, %.2f mSv after %d attempts", st.KnowledgePoints, st.Dose, st.Attempts),
	}, nil
}

func (s *Server) handleProgress(ctx context.Context, input PlayerInput) (ProgressOutput, error) {
	if s.levels == nil {
		return ProgressOutput{}, fmt.Errorf("progress not available")
	}

	list, err := s.levels.GetProgress(ctx, input.PlayerID)
	if err != nil {
		return ProgressOutput{}, fmt.Errorf("progress: %w", err)
	}

	completed := 0
	for _, p := range list {
		if p.Completed() {
			completed++
		}
	}
	return ProgressOutput{
		PlayerID:  strings.TrimSpace(input.PlayerID),
		Levels:    list,
		Completed: completed,
	}, nil
}

func (s *Server) handleCompleteLevel(ctx context.Context, input LevelInput) (LevelOutput, error) {
	if s.levels == nil {
		return LevelOutput{}, fmt.Errorf("progress not available")
	}

	p, err := s.levels.Complete(ctx, input.PlayerID, input.LevelID)
	if err != nil {
		return LevelOutput{}, fmt.Errorf("complete level: %w", err)
	}

	return LevelOutput{
		PlayerID: p.PlayerID,
		LevelID:  p.LevelID,
		State:    string(p.State),
		Message:  fmt.Sprintf("Level %s completed", p.LevelID),
	}, nil
}

// feedback renders a verdict as a short text for chat clients
func feedback(v *domain.Verdict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Score %d/10", v.Score)
	if v.Summary != "" {
		b.WriteString(": ")
		b.WriteString(v.Summary)
	}
	if len(v.Strengths) > 0 {
		b.WriteString("\n+ ")
		b.WriteString(strings.Join(v.Strengths, "\n+ "))
	}
	if len(v.Weaknesses) > 0 {
		b.WriteString("\n- ")
		b.WriteString(strings.Join(v.Weaknesses, "\n- "))
	}
	return b.String()
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}

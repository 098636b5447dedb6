package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/radquest/radquest/internal/config"
	"github.com/radquest/radquest/internal/domain"
	"github.com/radquest/radquest/internal/ledger"
)

// apiError is the daemon's error body
type apiError struct {
	Message string `json:"error"`
	Status  int    `json:"status"`
	Details string `json:"details,omitempty"`
}

func (e *apiError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s (%d): %s", e.Message, e.Status, e.Details)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// client talks to a running radquestd
type client struct {
	base string
	http *http.Client
}

func newClient(base string) *client {
	return &client{
		base: base,
		http: &http.Client{Timeout: 90 * time.Second},
	}
}

// daemonClient builds a client for the configured daemon address
func daemonClient() (*client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newClient("http://" + cfg.Addr()), nil
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &apiError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (c *client) healthy(ctx context.Context) bool {
	return c.do(ctx, http.MethodGet, "/v1/health", nil, nil) == nil
}

type statusResponse struct {
	Status        string   `json:"status"`
	Version       string   `json:"version"`
	UptimeSeconds int      `json:"uptime_seconds"`
	LLMProviders  []string `json:"llm_providers"`
	Evaluation    bool     `json:"evaluation"`
	Database      string   `json:"database"`
	Catalog       string   `json:"catalog"`
	CatalogCache  bool     `json:"catalog_cache"`
	Events        bool     `json:"events"`
}

func (c *client) status(ctx context.Context) (statusResponse, error) {
	var out statusResponse
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, &out)
	return out, err
}

func (c *client) submit(ctx context.Context, req ledger.SubmitRequest) (*ledger.Result, error) {
	var out ledger.Result
	if err := c.do(ctx, http.MethodPost, "/v1/submissions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) stats(ctx context.Context, player string) (domain.PlayerStats, error) {
	var out domain.PlayerStats
	err := c.do(ctx, http.MethodGet, playerPath(player, "stats"), nil, &out)
	return out, err
}

type verifyResponse struct {
	Consistent bool `json:"consistent"`
	Report     struct {
		Stored       domain.PlayerStats `json:"stored"`
		Recomputed   domain.PlayerStats `json:"recomputed"`
		PointsDiff   int                `json:"points_diff"`
		DoseDiff     float64            `json:"dose_diff"`
		AttemptsDiff int                `json:"attempts_diff"`
	} `json:"report"`
}

func (c *client) verify(ctx context.Context, player string) (verifyResponse, error) {
	var out verifyResponse
	err := c.do(ctx, http.MethodGet, playerPath(player, "stats/verify"), nil, &out)
	return out, err
}

type attemptEntry struct {
	ID          string          `json:"id"`
	LevelID     string          `json:"level_id"`
	TaskID      string          `json:"task_id"`
	Kind        domain.TaskKind `json:"kind"`
	AnswerText  string          `json:"answer_text"`
	Correctness float64         `json:"correctness"`
	Points      int             `json:"points"`
	Dose        float64         `json:"dose_msv"`
	Verdict     *domain.Verdict `json:"verdict"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (c *client) attempts(ctx context.Context, player string, limit int) ([]attemptEntry, error) {
	path := playerPath(player, "attempts")
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Attempts []attemptEntry `json:"attempts"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Attempts, err
}

func (c *client) progress(ctx context.Context, player string) ([]domain.LevelProgress, error) {
	var out struct {
		Levels []domain.LevelProgress `json:"levels"`
	}
	err := c.do(ctx, http.MethodGet, playerPath(player, "progress"), nil, &out)
	return out.Levels, err
}

// level moves a level to started or completed
func (c *client) level(ctx context.Context, player, level, action string) (domain.LevelProgress, error) {
	var out domain.LevelProgress
	path := playerPath(player, "levels/"+url.PathEscape(level)+"/"+action)
	err := c.do(ctx, http.MethodPost, path, nil, &out)
	return out, err
}

type levelEntry struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Intro    string `json:"intro"`
	Topic    string `json:"topic,omitempty"`
	Ordering int    `json:"ordering"`
}

func (c *client) levels(ctx context.Context) ([]levelEntry, error) {
	var out struct {
		Levels []levelEntry `json:"levels"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/levels", nil, &out)
	return out.Levels, err
}

type taskEntry struct {
	ID      string          `json:"id"`
	Kind    domain.TaskKind `json:"kind"`
	Prompt  string          `json:"prompt"`
	Options []struct {
		ID   string `json:"id"`
		Text string `json:"text"`
		Cost int    `json:"cost"`
	} `json:"options,omitempty"`
	MaxPoints int `json:"max_points,omitempty"`
}

func (c *client) tasks(ctx context.Context, level string) ([]taskEntry, error) {
	var out struct {
		Tasks []taskEntry `json:"tasks"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/levels/"+url.PathEscape(level)+"/tasks", nil, &out)
	return out.Tasks, err
}

func playerPath(player, rest string) string {
	return "/v1/players/" + url.PathEscape(player) + "/" + rest
}

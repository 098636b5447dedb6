// Package evaluation asks an external language model to judge a player's
// reasoning. Judging is best effort: every failure yields no verdict.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/radquest/radquest/internal/domain"
	"github.com/radquest/radquest/internal/llm"
	"github.com/radquest/radquest/internal/metrics"
)

// DefaultTimeout bounds one evaluation including its retry
const DefaultTimeout = 20 * time.Second

// Evaluator judges a submission
type Evaluator interface {
	// Evaluate returns a verdict, or nil and an error wrapping
	// domain.ErrEvaluationUnavailable. A nil verdict with a nil error means
	// evaluation is switched off.
	Evaluate(ctx context.Context, req Request) (*domain.Verdict, error)
}

// Config configures a Client
type Config struct {
	Timeout  time.Duration
	Prompter Prompter
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Client is the Evaluator backed by an llm.Provider
type Client struct {
	provider llm.Provider
	prompter Prompter
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewClient creates a client. A nil provider disables evaluation.
func NewClient(provider llm.Provider, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		provider: provider,
		prompter: cfg.Prompter,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger.With("component", "evaluation"),
		metrics:  cfg.Metrics,
	}
}

// Enabled reports whether a provider is configured
func (c *Client) Enabled() bool {
	return c != nil && c.provider != nil
}

// Evaluate performs one bounded evaluation
func (c *Client) Evaluate(ctx context.Context, req Request) (*domain.Verdict, error) {
	if !c.Enabled() {
		c.metrics.EvaluationObserved(metrics.EvalDisabled, 0)
		return nil, nil
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt, err := c.prompter.Build(req)
	if err != nil {
		c.metrics.EvaluationObserved(metrics.EvalUnavailable, 0)
		return nil, fmt.Errorf("%w: %w", domain.ErrEvaluationUnavailable, err)
	}

	resp, err := c.provider.Generate(ctx, prompt)
	if err != nil {
		c.metrics.EvaluationObserved(metrics.EvalUnavailable, time.Since(start))
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrEvaluationUnavailable, c.provider.Name(), err)
	}

	verdict, err := ParseVerdict(resp.Content)
	if err != nil {
		c.metrics.EvaluationObserved(metrics.EvalMalformed, time.Since(start))
		c.logger.Debug("unparseable judge reply", "task_id", req.Task.ID, "reply", truncate(resp.Content, 500))
		return nil, fmt.Errorf("%w: %w", domain.ErrEvaluationUnavailable, err)
	}

	c.metrics.EvaluationObserved(metrics.EvalOK, time.Since(start))
	c.logger.Debug("evaluation complete",
		"task_id", req.Task.ID,
		"score", verdict.Score,
		"duration", time.Since(start))
	return verdict, nil
}

// IsUnavailable reports whether err is an absorbed evaluation failure
func IsUnavailable(err error) bool {
	return errors.Is(err, domain.ErrEvaluationUnavailable)
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

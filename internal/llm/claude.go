package llm

import (
	"cmp"
	"context"
	"net/http"
	"strings"
)

const (
	anthropicVersion = "2023-06-01"
	claudeMaxTokens  = 1024
)

// ClaudeConfig configures the Anthropic Messages API
type ClaudeConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// ClaudeProvider talks to /v1/messages. The API has no JSON mode, so
// Request.JSON is left to the prompt.
type ClaudeProvider struct {
	endpoint
}

func NewClaudeProvider(cfg ClaudeConfig) *ClaudeProvider {
	h := http.Header{}
	h.Set("x-api-key", cfg.APIKey)
	h.Set("anthropic-version", anthropicVersion)
	return &ClaudeProvider{newEndpoint("claude",
		cmp.Or(cfg.BaseURL, "https://api.anthropic.com"),
		cmp.Or(cfg.Model, "claude-sonnet-4-20250514"),
		h,
	)}
}

type claudeRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature,omitempty"`
}

type claudeBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeResponse struct {
	Content    []claudeBlock `json:"content"`
	StopReason string        `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *ClaudeProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	body := claudeRequest{
		Model:       p.modelFor(req),
		System:      req.System,
		MaxTokens:   cmp.Or(req.MaxTokens, claudeMaxTokens),
		Temperature: req.Temperature,
	}
	// System turns move to the top-level field; the first one wins when
	// req.System is empty
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			body.System = cmp.Or(body.System, m.Content)
			continue
		}
		body.Messages = append(body.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	var out claudeResponse
	if err := p.post(ctx, "/v1/messages", body, &out); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, b := range out.Content {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}
	return &Response{
		Content:      text.String(),
		FinishReason: out.StopReason,
		Usage:        Usage{InputTokens: out.Usage.InputTokens, OutputTokens: out.Usage.OutputTokens},
	}, nil
}

package llm

import (
	"cmp"
	"context"
)

// OllamaConfig configures a local Ollama server
type OllamaConfig struct {
	BaseURL string
	Model   string
}

// OllamaProvider talks to the Ollama /api/chat endpoint without streaming
type OllamaProvider struct {
	endpoint
}

func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	return &OllamaProvider{newEndpoint("ollama",
		cmp.Or(cfg.BaseURL, "http://localhost:11434"),
		cmp.Or(cfg.Model, "deepseek-r1:32b"),
		nil,
	)}
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message         chatMessage `json:"message"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

func (p *OllamaProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	body := ollamaRequest{
		Model:    p.modelFor(req),
		Messages: inlineSystem(req),
	}
	if req.JSON {
		body.Format = "json"
	}
	if req.Temperature > 0 {
		body.Options = map[string]any{"temperature": req.Temperature}
	}
	if req.MaxTokens > 0 {
		if body.Options == nil {
			body.Options = map[string]any{}
		}
		body.Options["num_predict"] = req.MaxTokens
	}

	var out ollamaResponse
	if err := p.post(ctx, "/api/chat", body, &out); err != nil {
		return nil, err
	}
	return &Response{
		Content:      out.Message.Content,
		FinishReason: cmp.Or(out.DoneReason, "stop"),
		Usage:        Usage{InputTokens: out.PromptEvalCount, OutputTokens: out.EvalCount},
	}, nil
}

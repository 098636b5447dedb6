package llm

import (
	"cmp"
	"context"
	"net/http"
)

// OpenAIConfig configures an OpenAI-compatible chat completions API.
// BaseURL may point at any compatible gateway.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type OpenAIProvider struct {
	endpoint
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+cfg.APIKey)
	return &OpenAIProvider{newEndpoint("openai",
		cmp.Or(cfg.BaseURL, "https://api.openai.com"),
		cmp.Or(cfg.Model, "gpt-4o-mini"),
		h,
	)}
}

type openaiRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Temperature    float64           `json:"temperature,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type openaiChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// response takes the first choice; an empty choice list yields empty content
func (r *openaiResponse) response() *Response {
	out := &Response{Usage: Usage{
		InputTokens:  r.Usage.PromptTokens,
		OutputTokens: r.Usage.CompletionTokens,
	}}
	if len(r.Choices) > 0 {
		out.Content = r.Choices[0].Message.Content
		out.FinishReason = r.Choices[0].FinishReason
	}
	return out
}

func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	body := openaiRequest{
		Model:       p.modelFor(req),
		Messages:    inlineSystem(req),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.JSON {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}

	var out openaiResponse
	if err := p.post(ctx, "/v1/chat/completions", body, &out); err != nil {
		return nil, err
	}
	return out.response(), nil
}

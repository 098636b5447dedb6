package llm

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// maxErrorBody caps how much of a failed response ends up in a StatusError
const maxErrorBody = 4 << 10

// StatusError is a non-200 answer from a provider API
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Retryable is true for throttling and server-side failures
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		(e.StatusCode >= 500 && e.StatusCode != http.StatusNotImplemented)
}

// sharedTransport pools connections across providers. Every call carries a
// context deadline, so the client timeout only catches leaks.
var sharedTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
	TLSHandshakeTimeout:   10 * time.Second,
	ResponseHeaderTimeout: time.Minute,
	IdleConnTimeout:       90 * time.Second,
	MaxIdleConnsPerHost:   4,
	ForceAttemptHTTP2:     true,
}

// endpoint is the HTTP half of a provider: where to send, which model to
// default to and which headers authenticate
type endpoint struct {
	name    string
	baseURL string
	model   string
	header  http.Header
	client  *http.Client
}

func newEndpoint(name, baseURL, model string, header http.Header) endpoint {
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Type", "application/json")
	return endpoint{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		header:  header,
		client:  &http.Client{Transport: sharedTransport, Timeout: 2 * time.Minute},
	}
}

func (e endpoint) Name() string { return e.name }

// modelFor lets a request override the configured model
func (e endpoint) modelFor(req *Request) string {
	return cmp.Or(req.Model, e.model)
}

// post sends in as JSON to path and decodes a 200 answer into out
func (e endpoint) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", e.name, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", e.name, err)
	}
	httpReq.Header = e.header.Clone()

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w", e.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Provider: e.name, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", e.name, err)
	}
	return nil
}

// chatMessage is the role/content pair all three chat APIs accept
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// inlineSystem puts req.System in front of the conversation, for APIs
// without a separate system field
func inlineSystem(req *Request) []chatMessage {
	out := make([]chatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, chatMessage{Role: string(RoleSystem), Content: req.System})
	}
	for _, m := range req.Messages {
		out = append(out, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

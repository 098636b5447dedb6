// Package llm talks to chat-completion style language model APIs.
package llm

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var (
	ErrProviderNotFound  = errors.New("provider not found")
	ErrNoDefaultProvider = errors.New("no default provider configured")
	ErrRateLimited       = errors.New("rate limit exceeded")
)

// AutoSelect asks Select for the most preferred registered provider
const AutoSelect = "auto"

// preference orders providers for AutoSelect. The local model comes first
// so judging works offline; names not listed sort after these by name.
var preference = []string{"ollama", "claude", "openai"}

// Provider generates completions
type Provider interface {
	Name() string
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Role of a chat message author
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation
type Message struct {
	Role    Role
	Content string
}

// Request is a provider-neutral completion request. System is sent as a
// separate field to APIs that have one and as a leading message otherwise.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	JSON        bool // request a JSON object when the API supports it
}

// Response carries the generated text and token accounting
type Response struct {
	Content      string
	FinishReason string
	Usage        Usage
}

type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Registry holds the usable providers keyed by their Name
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds p under p.Name(), replacing an earlier provider of that name
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	r.providers[p.Name()] = p
	r.mu.Unlock()
}

// Lookup returns the provider registered under name
func (r *Registry) Lookup(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.providers[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
}

// Select resolves a configured provider name. An empty name or AutoSelect
// picks the first registered provider in preference order.
func (r *Registry) Select(name string) (Provider, error) {
	if name != "" && name != AutoSelect {
		return r.Lookup(name)
	}

	names := r.Names()
	if len(names) == 0 {
		return nil, ErrNoDefaultProvider
	}
	return r.Lookup(names[0])
}

// Names lists the registered providers in preference order
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	r.mu.RUnlock()

	slices.SortFunc(names, func(a, b string) int {
		return cmp.Or(cmp.Compare(rank(a), rank(b)), strings.Compare(a, b))
	})
	return names
}

func rank(name string) int {
	if i := slices.Index(preference, name); i >= 0 {
		return i
	}
	return len(preference)
}

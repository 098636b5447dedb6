package llm

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"
)

// ResilientConfig selects the fortify patterns around a provider. Zero
// numeric fields take the defaults from DefaultResilientConfig.
type ResilientConfig struct {
	EnableCircuitBreaker bool
	EnableRetry          bool
	EnableBulkhead       bool
	EnableRateLimit      bool

	MaxAttempts    int           // includes the first call
	RetryDelay     time.Duration // first backoff step
	MaxConcurrent  int
	RatePerSecond  int
	FailuresToTrip uint32 // consecutive failures that open the breaker

	Logger *slog.Logger
}

// DefaultResilientConfig suits judge calls: one short retry, and a breaker
// that opens after three straight failures
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		EnableCircuitBreaker: true,
		EnableRetry:          true,
		EnableBulkhead:       true,
		EnableRateLimit:      true,
		MaxAttempts:          2,
		RetryDelay:           500 * time.Millisecond,
		MaxConcurrent:        5,
		RatePerSecond:        2,
		FailuresToTrip:       3,
	}
}

type generateFunc func(context.Context) (*Response, error)

// layer wraps one call in a resilience pattern
type layer func(generateFunc) generateFunc

// ResilientProvider runs a provider behind the layers enabled in its
// config. Order from the outside in: circuit breaker, retry, bulkhead. The
// rate limit is checked before any of them.
type ResilientProvider struct {
	provider Provider
	limiter  ratelimit.RateLimiter
	layers   []layer
}

func NewResilientProvider(provider Provider, cfg ResilientConfig) *ResilientProvider {
	def := DefaultResilientConfig()
	logger := cmp.Or(cfg.Logger, slog.New(slog.DiscardHandler))
	rp := &ResilientProvider{provider: provider}

	if cfg.EnableCircuitBreaker {
		rp.layers = append(rp.layers, breakerLayer(provider.Name(), cmp.Or(cfg.FailuresToTrip, def.FailuresToTrip), logger))
	}
	if cfg.EnableRetry {
		rp.layers = append(rp.layers, retryLayer(cmp.Or(cfg.MaxAttempts, def.MaxAttempts), cmp.Or(cfg.RetryDelay, def.RetryDelay)))
	}
	if cfg.EnableBulkhead {
		rp.layers = append(rp.layers, bulkheadLayer(cmp.Or(cfg.MaxConcurrent, def.MaxConcurrent)))
	}
	if cfg.EnableRateLimit {
		rate := cmp.Or(cfg.RatePerSecond, def.RatePerSecond)
		rp.limiter = ratelimit.New(&ratelimit.Config{
			Rate:     rate,
			Burst:    rate * 3,
			Interval: time.Second,
		})
	}
	return rp
}

func breakerLayer(name string, trip uint32, logger *slog.Logger) layer {
	cb := circuitbreaker.New[*Response](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c circuitbreaker.Counts) bool {
			return c.ConsecutiveFailures >= trip
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			logger.Warn("judge circuit breaker", "provider", name, "from", from.String(), "to", to.String())
		},
	})
	return func(next generateFunc) generateFunc {
		return func(ctx context.Context) (*Response, error) {
			return cb.Execute(ctx, func(ctx context.Context) (*Response, error) { return next(ctx) })
		}
	}
}

func retryLayer(attempts int, delay time.Duration) layer {
	r := retry.New[*Response](retry.Config{
		MaxAttempts:   attempts,
		InitialDelay:  delay,
		MaxDelay:      4 * delay,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable:   isRetryable,
	})
	return func(next generateFunc) generateFunc {
		return func(ctx context.Context) (*Response, error) {
			return r.Do(ctx, func(ctx context.Context) (*Response, error) { return next(ctx) })
		}
	}
}

func bulkheadLayer(limit int) layer {
	bh := bulkhead.New[*Response](bulkhead.Config{
		MaxConcurrent: limit,
		MaxQueue:      2 * limit,
		QueueTimeout:  5 * time.Second,
	})
	return func(next generateFunc) generateFunc {
		return func(ctx context.Context) (*Response, error) {
			return bh.Execute(ctx, func(ctx context.Context) (*Response, error) { return next(ctx) })
		}
	}
}

func (p *ResilientProvider) Name() string { return p.provider.Name() }

func (p *ResilientProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	if p.limiter != nil && !p.limiter.Allow(ctx, p.Name()) {
		return nil, fmt.Errorf("%s: %w", p.Name(), ErrRateLimited)
	}

	call := func(ctx context.Context) (*Response, error) {
		return p.provider.Generate(ctx, req)
	}
	for i := len(p.layers) - 1; i >= 0; i-- {
		call = p.layers[i](call)
	}
	return call(ctx)
}

// Close stops the rate limiter's background cleanup
func (p *ResilientProvider) Close() error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Close()
}

// isRetryable retries transient HTTP statuses and transport failures, never
// a cancelled or expired context
func isRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	if se := (*StatusError)(nil); errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}

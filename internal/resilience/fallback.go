package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrWong99/agora/internal/observe"
	"github.com/MrWong99/agora/pkg/apperr"
)

// ErrAllFailed wraps the final error when no entry of a [FallbackGroup]
// produced a result.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures the breaker created for every group entry.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type entry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary value and ordered fallbacks of the same type,
// each behind its own [CircuitBreaker]. Entries must be added before the
// group is used concurrently.
type FallbackGroup[T any] struct {
	entries []entry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a group with primary as its first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.AddFallback(primaryName, primary)
	return g
}

// AddFallback appends an entry tried after all earlier ones.
func (g *FallbackGroup[T]) AddFallback(name string, value T) {
	cb := g.cfg.CircuitBreaker
	cb.Name = name
	g.entries = append(g.entries, entry[T]{name: name, value: value, breaker: NewCircuitBreaker(cb)})
}

// Names lists the entries in the order they are tried.
func (g *FallbackGroup[T]) Names() []string {
	names := make([]string, len(g.entries))
	for i, e := range g.entries {
		names[i] = e.name
	}
	return names
}

// Breaker returns the circuit breaker guarding the named entry, or nil.
func (g *FallbackGroup[T]) Breaker(name string) *CircuitBreaker {
	for _, e := range g.entries {
		if e.name == name {
			return e.breaker
		}
	}
	return nil
}

// Execute calls fn for each entry in order until one succeeds. See
// [ExecuteWithResult] for the error contract.
func (g *FallbackGroup[T]) Execute(ctx context.Context, fn func(T) error) error {
	_, err := ExecuteWithResult(ctx, g, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult calls fn for each entry of g in order and returns the
// first successful result. Entries whose breaker is open are skipped.
//
// When ctx is done, the context error is returned without trying further
// entries. When every entry fails, the error wraps [ErrAllFailed] and the last
// backend error, so apperr classification (rate limited, quota exceeded)
// survives. When every breaker was open, the error is an upstream error.
func ExecuteWithResult[T, R any](ctx context.Context, g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	log := observe.Logger(ctx)
	for i := range g.entries {
		e := &g.entries[i]
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		var res R
		err := e.breaker.Execute(func() error {
			var callErr error
			res, callErr = fn(e.value)
			return callErr
		})
		switch {
		case err == nil:
			if i > 0 {
				log.Info("served by fallback provider", "provider", e.name)
			}
			return res, nil
		case errors.Is(err, ErrCircuitOpen):
			log.Debug("skipping provider, circuit open", "provider", e.name)
		case ctx.Err() != nil:
			return zero, err
		default:
			log.Warn("provider failed", "provider", e.name, "err", err)
			lastErr = err
		}
	}
	if lastErr == nil {
		return zero, apperr.Upstream(http.StatusServiceUnavailable, fmt.Errorf("%w: %w", ErrAllFailed, ErrCircuitOpen))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

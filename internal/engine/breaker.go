package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// Breaker short-circuits a Generator after consecutive failures so a dead
// backend is skipped instead of waiting out its timeout on every request.
type Breaker struct {
	gen Generator
	cb  *gobreaker.CircuitBreaker[string]
}

// NewBreaker wraps gen. The circuit opens after failures consecutive errors
// and half-opens again after openTimeout.
func NewBreaker(name string, gen Generator, failures uint32, openTimeout time.Duration) *Breaker {
	if failures == 0 {
		failures = 5
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about backend health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Info("circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
			breakerState.WithLabelValues(name).Set(float64(to))
		},
	}
	return &Breaker{gen: gen, cb: gobreaker.NewCircuitBreaker[string](settings)}
}

func (b *Breaker) Generate(ctx context.Context, prompt string, expectJSON bool) (string, error) {
	out, err := b.cb.Execute(func() (string, error) {
		return b.gen.Generate(ctx, prompt, expectJSON)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%s: %w: %w", b.cb.Name(), ErrUnavailable, err)
	}
	return out, err
}

// State returns the breaker state as a string ("closed", "open", "half-open").
func (b *Breaker) State() string {
	return b.cb.State().String()
}

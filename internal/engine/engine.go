package engine

import (
	"context"
	"errors"
)

var (
	// ErrNotConfigured is returned when text generation is disabled or no
	// backend has been configured.
	ErrNotConfigured = errors.New("text generation not configured")

	// ErrUnavailable is returned when every backend failed or is short-circuited.
	ErrUnavailable = errors.New("text generation unavailable")
)

// Generator produces a completion for a single prompt. When expectJSON is
// set the backend is asked for a JSON object; callers still validate the
// output themselves.
type Generator interface {
	Generate(ctx context.Context, prompt string, expectJSON bool) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string, expectJSON bool) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string, expectJSON bool) (string, error) {
	return f(ctx, prompt, expectJSON)
}

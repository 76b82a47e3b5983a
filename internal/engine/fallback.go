package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Named is a Generator with a provider name used in logs and metrics.
type Named struct {
	Name string
	Gen  Generator
}

// Fallback tries each backend in order and returns the first success.
type Fallback struct {
	Backends []Named
	Logger   *slog.Logger
}

func (f *Fallback) Generate(ctx context.Context, prompt string, expectJSON bool) (string, error) {
	if len(f.Backends) == 0 {
		return "", ErrNotConfigured
	}
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var errs []error
	for _, b := range f.Backends {
		out, err := b.Gen.Generate(ctx, prompt, expectJSON)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.Warn("text generation failed, trying next backend", "provider", b.Name, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", b.Name, err))
	}
	return "", fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
}

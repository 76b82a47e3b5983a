// Package ranking orders candidate items, by rating or with a text
// generation pass, and falls back across strategies.
package ranking

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kalambet/cinesense/internal/catalog"
)

// ErrMalformedOutput is returned when ranking output cannot be mapped back
// onto the candidates.
var ErrMalformedOutput = errors.New("malformed ranking output")

var fallbacksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cinesense_ranking_fallbacks_total",
		Help: "Total number of ranking strategy failures that fell through to the next strategy",
	},
	[]string{"strategy"},
)

// Strategy orders candidates. watched lists titles the user has seen, for
// strategies that can use them.
type Strategy interface {
	Name() string
	Rank(ctx context.Context, items []catalog.Item, watched []string) ([]catalog.Item, error)
}

// Heuristic orders by rating, highest first. Unparsable ratings count as 0
// and ties keep their input order.
type Heuristic struct{}

func (Heuristic) Name() string { return "heuristic" }

func (Heuristic) Rank(_ context.Context, items []catalog.Item, _ []string) ([]catalog.Item, error) {
	return SortByRating(items), nil
}

// SortByRating returns a copy of items ordered by rating descending.
func SortByRating(items []catalog.Item) []catalog.Item {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b catalog.Item) int {
		ra, rb := parseRating(a.Rating), parseRating(b.Rating)
		switch {
		case ra > rb:
			return -1
		case ra < rb:
			return 1
		}
		return 0
	})
	return out
}

func parseRating(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// Chain tries each strategy in order and returns the first success. When
// every strategy fails the input order is kept.
type Chain struct {
	Strategies []Strategy
	Logger     *slog.Logger
}

func (c Chain) Rank(ctx context.Context, items []catalog.Item, watched []string) []catalog.Item {
	if len(items) == 0 {
		return items
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, s := range c.Strategies {
		out, err := s.Rank(ctx, items, watched)
		if err == nil && len(out) == len(items) {
			return out
		}
		if err == nil {
			err = errors.New("strategy changed the candidate count")
		}
		fallbacksTotal.WithLabelValues(s.Name()).Inc()
		logger.Warn("ranking strategy failed", "strategy", s.Name(), "error", err)
	}
	return slices.Clone(items)
}

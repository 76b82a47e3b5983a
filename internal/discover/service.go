// Package discover runs the personalized discovery pipeline: history, taste
// profile, criteria, candidates, ranking, cache.
package discover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/cinesense/internal/candidates"
	"github.com/kalambet/cinesense/internal/catalog"
	"github.com/kalambet/cinesense/internal/criteria"
	"github.com/kalambet/cinesense/internal/engine"
	"github.com/kalambet/cinesense/internal/history"
	"github.com/kalambet/cinesense/internal/kvcache"
	"github.com/kalambet/cinesense/internal/ranking"
	"github.com/kalambet/cinesense/internal/tasteprofile"
)

// Fallback modes for users without watch history.
const (
	FallbackPopular = "popular"
	FallbackEmpty   = "empty"
)

const (
	popularKey   = "discover:popular"
	popularLimit = 25
	recentLimit  = 5
	watchedLimit = 20
	dislikeLimit = 10
)

// CacheKey returns the cache key holding username's discovery list.
func CacheKey(username string) string {
	return "discover:" + username
}

// Catalog is the catalog surface the pipeline uses.
type Catalog interface {
	candidates.Catalog
	Popular(ctx context.Context, limit int) ([]catalog.Item, error)
}

// Profiles reads cached taste profiles and schedules builds for missing ones.
type Profiles interface {
	Get(ctx context.Context, username string) (*tasteprofile.Profile, error)
	Trigger(username string)
}

type Options struct {
	TTL             time.Duration
	Fallback        string
	CriteriaCount   int
	PageLimit       int
	RankCeiling     int
	CriteriaTimeout time.Duration
	RankTimeout     time.Duration
	// IntN picks the random extra catalog page; nil uses math/rand/v2.
	IntN func(n int) int
}

type Deps struct {
	Cache     kvcache.Cache
	History   history.Store
	Catalog   Catalog
	Generator func() engine.Generator
	Profiles  Profiles
	Logger    *slog.Logger
	Options   Options
}

// Service holds no per-request state; concurrent runs for the same user
// may each recompute and overwrite the cache.
type Service struct {
	cache     kvcache.Cache
	history   history.Store
	catalog   Catalog
	gen       func() engine.Generator
	profiles  Profiles
	logger    *slog.Logger
	opts      Options
	aggregate *candidates.Aggregator
}

func New(d Deps) *Service {
	opts := d.Options
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.Fallback == "" {
		opts.Fallback = FallbackPopular
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gen := d.Generator
	if gen == nil {
		gen = func() engine.Generator { return nil }
	}
	return &Service{
		cache:    d.Cache,
		history:  d.History,
		catalog:  d.Catalog,
		gen:      gen,
		profiles: d.Profiles,
		logger:   logger,
		opts:     opts,
		aggregate: candidates.New(d.Catalog, candidates.Options{
			PageLimit: opts.PageLimit,
			IntN:      opts.IntN,
			Logger:    logger,
		}),
	}
}

// Cached returns the cached list for username without computing anything.
func (s *Service) Cached(ctx context.Context, username string) ([]Result, bool, error) {
	var out []Result
	ok, err := kvcache.GetJSON(ctx, s.cache, CacheKey(username), &out)
	if err != nil {
		return nil, false, fmt.Errorf("reading discover cache: %w", err)
	}
	return out, ok, nil
}

// GetRecommendations returns the cached list when present and otherwise
// runs the pipeline. Degraded paths yield an empty list, not an error.
func (s *Service) GetRecommendations(ctx context.Context, username string) ([]Result, error) {
	if out, ok, err := s.Cached(ctx, username); err != nil {
		s.logger.Warn("discover cache read failed", "user", username, "error", err)
	} else if ok {
		requestsTotal.WithLabelValues(outcomeCacheHit).Inc()
		return out, nil
	}
	return s.compute(ctx, username, nil)
}

// Refresh recomputes the list, ignoring any cached value, and overwrites
// the cache when the result is cacheable.
func (s *Service) Refresh(ctx context.Context, username string) ([]Result, error) {
	return s.compute(ctx, username, nil)
}

// Stream emits a rating-ordered batch as soon as candidates are known and
// the final ranked list afterwards. A cache hit is emitted once. After emit
// fails nothing more is emitted, but the pipeline finishes and caches.
func (s *Service) Stream(ctx context.Context, username string, emit func([]Result) error) error {
	if out, ok, err := s.Cached(ctx, username); err == nil && ok {
		requestsTotal.WithLabelValues(outcomeCacheHit).Inc()
		return emit(out)
	}

	var emitErr error
	send := func(r []Result) {
		if emitErr == nil {
			emitErr = emit(r)
		}
	}
	out, err := s.compute(ctx, username, send)
	if err != nil {
		return err
	}
	send(out)
	return emitErr
}

// Fallback returns the static list for a user with no valid history; ok
// is false when the user has enough history for the full pipeline. It
// never calls text generation.
func (s *Service) Fallback(ctx context.Context, username string) ([]Result, bool, error) {
	records, err := s.history.GetAllPlayRecords(ctx, username)
	if err != nil {
		return nil, false, fmt.Errorf("loading play records: %w", err)
	}
	if valid, _ := history.ClassifyMap(records); len(valid) > 0 {
		return nil, false, nil
	}
	requestsTotal.WithLabelValues(outcomeFallback).Inc()
	return s.fallback(ctx), true, nil
}

// compute runs the pipeline. early, when set, receives the unranked
// candidates before the ranking pass.
func (s *Service) compute(ctx context.Context, username string, early func([]Result)) ([]Result, error) {
	records, err := s.history.GetAllPlayRecords(ctx, username)
	if err != nil {
		requestsTotal.WithLabelValues(outcomeError).Inc()
		return nil, fmt.Errorf("loading play records: %w", err)
	}
	valid, abandoned := history.ClassifyMap(records)

	if len(valid) == 0 {
		requestsTotal.WithLabelValues(outcomeFallback).Inc()
		return s.fallback(ctx), nil
	}

	gen := s.gen()
	if gen == nil {
		requestsTotal.WithLabelValues(outcomeNotConfigured).Inc()
		s.logger.Debug("text generation not configured, skipping discovery", "user", username)
		return []Result{}, nil
	}

	profile, err := s.profiles.Get(ctx, username)
	if err != nil {
		s.logger.Warn("reading taste profile failed", "user", username, "error", err)
	}
	if profile == nil {
		s.profiles.Trigger(username)
	}

	crit, err := criteria.New(gen, criteria.Options{
		Count:   s.opts.CriteriaCount,
		Timeout: s.opts.CriteriaTimeout,
		Logger:  s.logger,
	}).Generate(ctx, criteria.Request{
		Profile:      profile,
		RecentTitles: history.RecentTitles(valid, recentLimit),
		Disliked:     history.RecentTitles(abandoned, dislikeLimit),
	})
	if err != nil {
		requestsTotal.WithLabelValues(outcomeNoCriteria).Inc()
		var me *criteria.MalformedResponseError
		if errors.As(err, &me) {
			s.logger.Warn("criteria response malformed", "user", username, "reason", me.Reason)
		} else {
			s.logger.Warn("criteria generation failed", "user", username, "error", err)
		}
		return []Result{}, nil
	}

	items := s.aggregate.Fetch(ctx, crit, history.WatchedKeys(records))
	if len(items) == 0 {
		requestsTotal.WithLabelValues(outcomeNoCandidates).Inc()
		s.logger.Info("no discovery candidates", "user", username, "criteria", len(crit))
		return []Result{}, nil
	}

	if early != nil {
		early(FromItems(ranking.SortByRating(items)))
	}

	chain := ranking.Chain{
		Strategies: []ranking.Strategy{
			ranking.LLM{Gen: gen, MaxCandidates: s.opts.RankCeiling, Timeout: s.opts.RankTimeout, Logger: s.logger},
			ranking.Heuristic{},
		},
		Logger: s.logger,
	}
	out := FromItems(chain.Rank(ctx, items, history.RecentTitles(valid, watchedLimit)))

	if err := kvcache.SetJSON(ctx, s.cache, CacheKey(username), out, s.opts.TTL); err != nil {
		s.logger.Warn("writing discover cache failed", "user", username, "error", err)
	}
	requestsTotal.WithLabelValues(outcomeRanked).Inc()
	s.logger.Info("discovery list built", "user", username, "criteria", len(crit), "results", len(out))
	return out, nil
}

// fallback serves users with no usable history. The popular list is shared
// across users and makes no text generation calls.
func (s *Service) fallback(ctx context.Context) []Result {
	if s.opts.Fallback != FallbackPopular || s.catalog == nil {
		return []Result{}
	}

	var out []Result
	if ok, err := kvcache.GetJSON(ctx, s.cache, popularKey, &out); err == nil && ok {
		return out
	}

	items, err := s.catalog.Popular(ctx, popularLimit)
	if err != nil {
		s.logger.Warn("fetching popular list failed", "error", err)
		return []Result{}
	}
	out = FromItems(items)
	if len(out) > 0 {
		if err := kvcache.SetJSON(ctx, s.cache, popularKey, out, s.opts.TTL); err != nil {
			s.logger.Warn("writing popular cache failed", "error", err)
		}
	}
	return out
}

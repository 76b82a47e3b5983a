// Package tasteprofile builds and caches a per-user taste profile from
// viewing history with one text generation call.
package tasteprofile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/kalambet/cinesense/internal/engine"
	"github.com/kalambet/cinesense/internal/history"
	"github.com/kalambet/cinesense/internal/kvcache"
	"github.com/kalambet/cinesense/internal/prompt"
)

const (
	defaultTTL          = 7 * 24 * time.Hour
	defaultBuildTimeout = 2 * time.Minute

	// insufficientTTL is how long a user found below the history threshold
	// is skipped by Trigger.
	insufficientTTL = 30 * time.Minute
)

// CacheKey returns the cache key holding username's profile.
func CacheKey(username string) string {
	return "taste_profile:" + username
}

func insufficientKey(username string) string {
	return "taste_profile_insufficient:" + username
}

// Options tunes profile generation.
type Options struct {
	TTL             time.Duration
	MinValidRecords int
	MinFavorites    int
	BuildTimeout    time.Duration
}

// Deps are the collaborators a Store needs. Generator is consulted on
// every build so backend changes apply without rebuilding the Store; it may
// return nil when generation is disabled.
type Deps struct {
	Cache     kvcache.Cache
	History   history.Store
	Generator func() engine.Generator
	Logger    *slog.Logger
	Options   Options
}

// Store reads cached profiles and builds missing ones in the background.
type Store struct {
	cache   kvcache.Cache
	history history.Store
	gen     func() engine.Generator
	logger  *slog.Logger
	opts    Options

	group singleflight.Group
	wg    sync.WaitGroup
}

func New(d Deps) *Store {
	opts := d.Options
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.MinValidRecords <= 0 {
		opts.MinValidRecords = 5
	}
	if opts.BuildTimeout <= 0 {
		opts.BuildTimeout = defaultBuildTimeout
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gen := d.Generator
	if gen == nil {
		gen = func() engine.Generator { return nil }
	}
	return &Store{cache: d.Cache, history: d.History, gen: gen, logger: logger, opts: opts}
}

// Get returns the cached profile for username, or nil when there is none.
// It never triggers generation. An undecodable entry reads as a miss.
func (s *Store) Get(ctx context.Context, username string) (*Profile, error) {
	var p Profile
	ok, err := kvcache.GetJSON(ctx, s.cache, CacheKey(username), &p)
	if err != nil {
		return nil, fmt.Errorf("reading taste profile: %w", err)
	}
	if !ok {
		return nil, nil
	}
	p.normalize()
	return &p, nil
}

// Build generates a profile for username and caches it. It returns nil, nil
// when there is not enough signal or no generator is configured.
func (s *Store) Build(ctx context.Context, username string) (*Profile, error) {
	gen := s.gen()
	if gen == nil {
		return nil, nil
	}

	records, err := s.history.GetAllPlayRecords(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("loading play records: %w", err)
	}
	favMap, err := s.history.GetAllFavorites(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("loading favorites: %w", err)
	}

	valid, abandoned := history.ClassifyMap(records)
	enoughFavorites := s.opts.MinFavorites > 0 && len(favMap) >= s.opts.MinFavorites
	if len(valid) < s.opts.MinValidRecords && !enoughFavorites {
		s.logger.Debug("not enough history for taste profile", "user", username, "valid", len(valid), "favorites", len(favMap))
		if err := s.cache.Set(ctx, insufficientKey(username), []byte("1"), insufficientTTL); err != nil {
			s.logger.Warn("marking insufficient history failed", "user", username, "error", err)
		}
		return nil, nil
	}

	searches, err := s.history.GetSearchHistory(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("loading search history: %w", err)
	}

	text := buildPrompt(sortedFavorites(favMap), valid, abandoned, searches)
	raw, err := gen.Generate(ctx, text, true)
	if err != nil {
		return nil, fmt.Errorf("generating taste profile: %w", err)
	}

	p, err := parseProfile(raw)
	if err != nil {
		return nil, err
	}

	if err := kvcache.SetJSON(ctx, s.cache, CacheKey(username), p, s.opts.TTL); err != nil {
		return nil, fmt.Errorf("caching taste profile: %w", err)
	}
	s.logger.Info("taste profile built", "user", username, "genres", len(p.PreferredGenres))
	return p, nil
}

// BuildAndCache is Build with failures logged instead of returned.
func (s *Store) BuildAndCache(ctx context.Context, username string) {
	if _, err := s.Build(ctx, username); err != nil {
		s.logger.Warn("taste profile build failed", "user", username, "error", err)
	}
}

// Trigger starts a background build for username and returns immediately.
// Concurrent triggers for the same user share one build. The build runs
// with its own timeout, detached from any request context. Users recently
// found below the history threshold are skipped.
func (s *Store) Trigger(username string) {
	if s.recentlyInsufficient(username) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.group.Do(username, func() (any, error) {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("taste profile build panicked", "user", username, "panic", r)
				}
			}()
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.BuildTimeout)
			defer cancel()
			s.BuildAndCache(ctx, username)
			return nil, nil
		})
	}()
}

func (s *Store) recentlyInsufficient(username string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, ok, err := s.cache.Get(ctx, insufficientKey(username))
	return err == nil && ok
}

// Wait blocks until every triggered build has finished.
func (s *Store) Wait() {
	s.wg.Wait()
}

func parseProfile(raw string) (*Profile, error) {
	obj, err := prompt.ExtractJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing taste profile: %w", err)
	}
	var p Profile
	if err := json.Unmarshal([]byte(obj), &p); err != nil {
		return nil, fmt.Errorf("decoding taste profile: %w", err)
	}
	p.normalize()
	if p.IsEmpty() {
		return nil, fmt.Errorf("taste profile is empty")
	}
	return &p, nil
}

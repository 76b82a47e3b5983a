// Package assistant answers free-text search requests: direct site search
// first, then criteria-driven catalog results when nothing matched.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/cinesense/internal/candidates"
	"github.com/kalambet/cinesense/internal/catalog"
	"github.com/kalambet/cinesense/internal/criteria"
	"github.com/kalambet/cinesense/internal/engine"
	"github.com/kalambet/cinesense/internal/history"
	"github.com/kalambet/cinesense/internal/ranking"
	"github.com/kalambet/cinesense/internal/sitesearch"
	"github.com/kalambet/cinesense/internal/storage"
	"github.com/kalambet/cinesense/internal/tasteprofile"
)

const recentLimit = 5

// Searcher runs the direct site search.
type Searcher interface {
	Search(ctx context.Context, query string) []sitesearch.Result
}

// History is the per-user state the assistant reads and appends to.
type History interface {
	GetAllPlayRecords(ctx context.Context, username string) (map[string]storage.PlayRecord, error)
	AddSearchHistory(ctx context.Context, username, keyword string) error
}

type Profiles interface {
	Get(ctx context.Context, username string) (*tasteprofile.Profile, error)
}

type Options struct {
	PageLimit       int
	CriteriaTimeout time.Duration
	IntN            func(n int) int
}

type Deps struct {
	Sites     Searcher
	History   History
	Catalog   candidates.Catalog
	Generator func() engine.Generator
	Profiles  Profiles
	Logger    *slog.Logger
	Options   Options
}

type Assistant struct {
	sites     Searcher
	history   History
	gen       func() engine.Generator
	profiles  Profiles
	logger    *slog.Logger
	opts      Options
	aggregate *candidates.Aggregator
}

func New(d Deps) *Assistant {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gen := d.Generator
	if gen == nil {
		gen = func() engine.Generator { return nil }
	}
	return &Assistant{
		sites:    d.Sites,
		history:  d.History,
		gen:      gen,
		profiles: d.Profiles,
		logger:   logger,
		opts:     d.Options,
		aggregate: candidates.New(d.Catalog, candidates.Options{
			PageLimit: d.Options.PageLimit,
			IntN:      d.Options.IntN,
			Logger:    logger,
		}),
	}
}

// Answer emits results for query one at a time. Direct site matches win;
// otherwise, when text generation is configured, catalog items matching
// generated criteria are emitted in rating order, excluding titles the
// user has already played.
func (a *Assistant) Answer(ctx context.Context, username, query string, emit func(sitesearch.Result) error) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return errors.New("empty query")
	}
	if err := a.history.AddSearchHistory(ctx, username, query); err != nil {
		a.logger.Warn("recording search history failed", "user", username, "error", err)
	}

	if direct := a.sites.Search(ctx, query); len(direct) > 0 {
		return emitAll(direct, emit)
	}

	gen := a.gen()
	if gen == nil {
		return nil
	}

	records, err := a.history.GetAllPlayRecords(ctx, username)
	if err != nil {
		return fmt.Errorf("loading play records: %w", err)
	}
	valid, _ := history.ClassifyMap(records)

	var profile *tasteprofile.Profile
	if a.profiles != nil {
		if profile, err = a.profiles.Get(ctx, username); err != nil {
			a.logger.Warn("reading taste profile failed", "user", username, "error", err)
		}
	}

	crit, err := criteria.New(gen, criteria.Options{Timeout: a.opts.CriteriaTimeout, Logger: a.logger}).
		Generate(ctx, criteria.Request{
			Profile:      profile,
			RecentTitles: history.RecentTitles(valid, recentLimit),
			Query:        query,
		})
	if err != nil {
		a.logger.Warn("assistant criteria failed", "user", username, "error", err)
		return nil
	}

	items := a.aggregate.Fetch(ctx, crit, history.WatchedKeys(records))
	return emitAll(fromItems(ranking.SortByRating(items)), emit)
}

func emitAll(results []sitesearch.Result, emit func(sitesearch.Result) error) error {
	for _, r := range results {
		if err := emit(r); err != nil {
			return err
		}
	}
	return nil
}

func fromItems(items []catalog.Item) []sitesearch.Result {
	out := make([]sitesearch.Result, len(items))
	for i, it := range items {
		out[i] = sitesearch.Result{
			ID:             it.ID,
			Title:          it.Title,
			Poster:         it.Poster,
			Episodes:       []string{},
			EpisodesTitles: []string{},
			Source:         "douban",
			SourceName:     "豆瓣",
			Year:           it.Year,
		}
	}
	return out
}

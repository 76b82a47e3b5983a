// Package candidates fans criteria out to the catalog and merges the pages
// into one de-duplicated candidate list.
package candidates

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/cinesense/internal/catalog"
	"github.com/kalambet/cinesense/internal/criteria"
	"github.com/kalambet/cinesense/internal/history"
)

const (
	defaultPageLimit   = 20
	defaultConcurrency = 4
	defaultTimeout     = 10 * time.Second
)

// Catalog is the subset of the catalog client the aggregator needs.
type Catalog interface {
	Recommend(ctx context.Context, q catalog.Query) (catalog.Page, error)
}

type Options struct {
	PageLimit   int
	Concurrency int
	// Timeout bounds each catalog call.
	Timeout time.Duration
	// IntN returns a value in [0, n). Defaults to math/rand/v2.
	IntN   func(n int) int
	Logger *slog.Logger
}

type Aggregator struct {
	catalog     Catalog
	pageLimit   int
	concurrency int
	timeout     time.Duration
	intN        func(int) int
	logger      *slog.Logger
}

func New(c Catalog, opts Options) *Aggregator {
	a := &Aggregator{
		catalog:     c,
		pageLimit:   opts.PageLimit,
		concurrency: opts.Concurrency,
		timeout:     opts.Timeout,
		intN:        opts.IntN,
		logger:      opts.Logger,
	}
	if a.pageLimit <= 0 {
		a.pageLimit = defaultPageLimit
	}
	if a.concurrency <= 0 {
		a.concurrency = defaultConcurrency
	}
	if a.timeout <= 0 {
		a.timeout = defaultTimeout
	}
	if a.intN == nil {
		a.intN = rand.IntN
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Fetch queries the catalog once per criterion, plus one random extra page
// when the source reports more than a page of results. Failed criteria
// contribute nothing. The merged list keeps criterion order, drops
// duplicates by (title, year) and drops every excluded key.
func (a *Aggregator) Fetch(ctx context.Context, crit []criteria.Criterion, exclude map[history.Key]struct{}) []catalog.Item {
	results := make([][]catalog.Item, len(crit))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, c := range crit {
		g.Go(func() error {
			results[i] = a.fetchOne(gctx, c)
			return nil
		})
	}
	g.Wait()

	var merged []catalog.Item
	for _, r := range results {
		merged = append(merged, r...)
	}
	merged = Dedupe(merged)

	out := merged[:0]
	for _, it := range merged {
		if _, skip := exclude[KeyOf(it)]; skip {
			continue
		}
		out = append(out, it)
	}
	return out
}

func (a *Aggregator) fetchOne(ctx context.Context, c criteria.Criterion) []catalog.Item {
	q := catalog.Query{
		Kind:     c.Kind,
		Category: c.Category,
		Region:   c.Region,
		Year:     c.Year,
		Label:    c.Label,
		Platform: c.Platform,
		Limit:    a.pageLimit,
	}

	first, err := a.recommend(ctx, q)
	if err != nil {
		a.logger.Warn("catalog fetch failed", "criterion", c.String(), "error", err)
		return nil
	}
	items := first.Items

	pages := (first.Total + a.pageLimit - 1) / a.pageLimit
	if pages > 1 {
		q.Start = (1 + a.intN(pages-1)) * a.pageLimit
		extra, err := a.recommend(ctx, q)
		if err != nil {
			a.logger.Warn("catalog extra page failed", "criterion", c.String(), "start", q.Start, "error", err)
		} else {
			items = append(items, extra.Items...)
		}
	}
	return items
}

func (a *Aggregator) recommend(ctx context.Context, q catalog.Query) (catalog.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.catalog.Recommend(ctx, q)
}

// KeyOf returns the identity of a catalog item.
func KeyOf(it catalog.Item) history.Key {
	return history.Key{Title: it.Title, Year: it.Year}
}

// Dedupe keeps the first item for each (title, year). The input is not
// modified.
func Dedupe(items []catalog.Item) []catalog.Item {
	seen := make(map[history.Key]struct{}, len(items))
	out := make([]catalog.Item, 0, len(items))
	for _, it := range items {
		k := KeyOf(it)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}

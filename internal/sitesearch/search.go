package sitesearch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTimeout     = 20 * time.Second
	defaultConcurrency = 8
)

var requestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cinesense_sitesearch_requests_total",
		Help: "Total number of video site search requests",
	},
	[]string{"site", "outcome"},
)

type Options struct {
	Sites              []Site
	DisableAdultFilter bool
	// Timeout bounds each site request.
	Timeout     time.Duration
	Concurrency int
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Searcher fans a query out to every configured site.
type Searcher struct {
	sites       []Site
	adultFilter bool
	timeout     time.Duration
	concurrency int
	httpClient  *http.Client
	logger      *slog.Logger
}

func New(opts Options) *Searcher {
	s := &Searcher{
		sites:       opts.Sites,
		adultFilter: !opts.DisableAdultFilter,
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if s.concurrency <= 0 {
		s.concurrency = defaultConcurrency
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Sites returns the configured sites.
func (s *Searcher) Sites() []Site { return s.sites }

// SearchSite queries one site.
func (s *Searcher) SearchSite(ctx context.Context, site Site, query string) (results []Result, err error) {
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		requestsTotal.WithLabelValues(site.Key, outcome).Inc()
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sep := "?"
	if strings.Contains(site.API, "?") {
		sep = "&"
	}
	target := site.API + sep + "ac=videolist&wd=" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", site.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("searching %s: unexpected status %d", site.Name, resp.StatusCode)
	}

	var data apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", site.Name, err)
	}

	results = make([]Result, 0, len(data.List))
	for _, it := range data.List {
		if s.adultFilter && isAdult(it.TypeName) {
			continue
		}
		r := toResult(site, it)
		if len(r.Episodes) == 0 {
			continue
		}
		results = append(results, r)
	}
	return results, nil
}

// Batch is one site's results.
type Batch struct {
	Site    Site
	Results []Result
}

// Stream searches every site and calls emit with each non-empty batch as
// it arrives. emit is never called concurrently. Site failures are logged
// and skipped; an emit error cancels the remaining requests and is
// returned.
func (s *Searcher) Stream(ctx context.Context, query string, emit func(Batch) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	batches := make(chan Batch)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	go func() {
		for _, site := range s.sites {
			g.Go(func() error {
				res, err := s.SearchSite(gctx, site, query)
				if err != nil {
					s.logger.Warn("site search failed", "site", site.Key, "error", err)
					return nil
				}
				if len(res) == 0 {
					return nil
				}
				select {
				case batches <- Batch{Site: site, Results: res}:
				case <-gctx.Done():
				}
				return nil
			})
		}
		g.Wait()
		close(batches)
	}()

	var emitErr error
	for b := range batches {
		if emitErr != nil {
			continue
		}
		if emitErr = emit(b); emitErr != nil {
			cancel()
		}
	}
	return emitErr
}

// Search returns every site's results in site order.
func (s *Searcher) Search(ctx context.Context, query string) []Result {
	perSite := make([][]Result, len(s.sites))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, site := range s.sites {
		g.Go(func() error {
			res, err := s.SearchSite(gctx, site, query)
			if err != nil {
				s.logger.Warn("site search failed", "site", site.Key, "error", err)
				return nil
			}
			perSite[i] = res
			return nil
		})
	}
	g.Wait()

	out := []Result{}
	for _, r := range perSite {
		out = append(out, r...)
	}
	return out
}

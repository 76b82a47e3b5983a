package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"
	referer   = "https://movie.douban.com/"

	defaultTimeout   = 10 * time.Second
	defaultPageLimit = 20

	rexxarDirect  = "https://m.douban.com/rexxar/api/v2"
	rexxarTencent = "https://m.douban.cmliussss.net/rexxar/api/v2"
	rexxarAli     = "https://m.douban.cmliussss.com/rexxar/api/v2"
	suggestDirect  = "https://movie.douban.com/j/subject_suggest"
	suggestTencent = "https://movie.douban.cmliussss.net/j/subject_suggest"
	suggestAli     = "https://movie.douban.cmliussss.com/j/subject_suggest"

	corsZwei     = "https://ciao-cors.is-an.org/"
	corsAnywhere = "https://cors-anywhere.com/"
)

// Options configures a Douban client.
type Options struct {
	ProxyType string
	ProxyURL  string
	// RateLimit caps outbound requests per second; zero disables the limit.
	RateLimit float64
	Timeout   time.Duration

	// BaseURL and SuggestURL override the upstream endpoints.
	BaseURL    string
	SuggestURL string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Douban talks to the rexxar recommend API and the subject suggest endpoint.
type Douban struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	proxyType  string
	proxyURL   string
	baseURL    string
	suggestURL string
	timeout    time.Duration
	logger     *slog.Logger
}

func NewDouban(opts Options) *Douban {
	d := &Douban{
		httpClient: opts.HTTPClient,
		proxyType:  opts.ProxyType,
		proxyURL:   opts.ProxyURL,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		suggestURL: opts.SuggestURL,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
	}
	if d.httpClient == nil {
		d.httpClient = &http.Client{}
	}
	if d.proxyType == "" {
		d.proxyType = ProxyCDNTencent
	}
	base, suggest := rexxarDirect, suggestDirect
	switch d.proxyType {
	case ProxyCDNTencent:
		base, suggest = rexxarTencent, suggestTencent
	case ProxyCDNAli:
		base, suggest = rexxarAli, suggestAli
	}
	if d.baseURL == "" {
		d.baseURL = base
	}
	if d.suggestURL == "" {
		d.suggestURL = suggest
	}
	if d.timeout <= 0 {
		d.timeout = defaultTimeout
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	limit := rate.Inf
	burst := 1
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
		burst = max(1, int(opts.RateLimit))
	}
	d.limiter = rate.NewLimiter(limit, burst)
	return d
}

// wrap routes target through the configured CORS proxy, if any.
func (d *Douban) wrap(target string) string {
	switch d.proxyType {
	case ProxyCorsZwei:
		return corsZwei + url.QueryEscape(target)
	case ProxyCorsAnywhere:
		return corsAnywhere + target
	case ProxyCustom:
		switch {
		case d.proxyURL == "":
		case strings.HasSuffix(d.proxyURL, "cors-anywhere.com/"):
			return d.proxyURL + target
		default:
			return d.proxyURL + url.QueryEscape(target)
		}
	}
	return target
}

type selectedCategories struct {
	Category string `json:"类型"`
	Format   string `json:"形式,omitempty"`
	Region   string `json:"地区,omitempty"`
}

func clean(v string) string {
	if v == "all" {
		return ""
	}
	return v
}

// recommendURL builds the rexxar request URL for q.
func (d *Douban) recommendURL(q Query) (string, error) {
	if q.Kind != "movie" && q.Kind != "tv" {
		return "", fmt.Errorf("unsupported kind %q", q.Kind)
	}
	category, format, label := clean(q.Category), clean(q.Format), clean(q.Label)
	region, year, platform := clean(q.Region), clean(q.Year), clean(q.Platform)
	sort := q.Sort
	if sort == "T" {
		sort = ""
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}

	sel, err := json.Marshal(selectedCategories{Category: category, Format: format, Region: region})
	if err != nil {
		return "", err
	}

	var tags []string
	if category != "" {
		tags = append(tags, category)
	} else if format != "" {
		tags = append(tags, format)
	}
	for _, t := range []string{label, region, year, platform} {
		if t != "" {
			tags = append(tags, t)
		}
	}

	params := url.Values{}
	params.Set("refresh", "0")
	params.Set("start", strconv.Itoa(q.Start))
	params.Set("count", strconv.Itoa(limit))
	params.Set("selected_categories", string(sel))
	params.Set("uncollect", "false")
	params.Set("score_range", "0,10")
	params.Set("tags", strings.Join(tags, ","))
	if sort != "" {
		params.Set("sort", sort)
	}
	return fmt.Sprintf("%s/%s/recommend?%s", d.baseURL, q.Kind, params.Encode()), nil
}

type recommendResponse struct {
	Total int `json:"total"`
	Items []struct {
		ID           flexString `json:"id"`
		Title        string     `json:"title"`
		Year         flexString `json:"year"`
		Type         string     `json:"type"`
		CardSubtitle string     `json:"card_subtitle"`
		Pic          *struct {
			Large  string `json:"large"`
			Normal string `json:"normal"`
		} `json:"pic"`
		Rating *struct {
			Value float64 `json:"value"`
		} `json:"rating"`
	} `json:"items"`
}

// Recommend fetches one page of the recommendation list.
func (d *Douban) Recommend(ctx context.Context, q Query) (Page, error) {
	target, err := d.recommendURL(q)
	if err != nil {
		return Page{}, err
	}

	var data recommendResponse
	if err := d.fetch(ctx, "recommend", d.wrap(target), &data); err != nil {
		return Page{}, fmt.Errorf("fetching douban recommendations: %w", err)
	}

	items := make([]Item, 0, len(data.Items))
	for _, it := range data.Items {
		if it.Type != "movie" && it.Type != "tv" {
			continue
		}
		item := Item{
			ID:    string(it.ID),
			Title: it.Title,
			Year:  string(it.Year),
			Intro: it.CardSubtitle,
			Kind:  it.Type,
		}
		if it.Pic != nil {
			item.Poster = it.Pic.Normal
			if item.Poster == "" {
				item.Poster = it.Pic.Large
			}
		}
		if it.Rating != nil {
			item.Rating = formatRating(it.Rating.Value)
		}
		items = append(items, item)
	}
	return Page{Items: items, Total: data.Total}, nil
}

// Popular returns the first page of the trending movie list.
func (d *Douban) Popular(ctx context.Context, limit int) ([]Item, error) {
	page, err := d.Recommend(ctx, Query{Kind: "movie", Category: "热门", Sort: "U", Limit: limit})
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (d *Douban) fetch(ctx context.Context, endpoint, target string, v any) (err error) {
	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		requestsTotal.WithLabelValues(endpoint, outcome).Inc()
	}()

	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	d.logger.Debug("douban request", "url", target)
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

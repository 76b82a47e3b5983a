// Package api exposes discovery, search and per-user history over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/cinesense/internal/catalog"
	"github.com/kalambet/cinesense/internal/discover"
	"github.com/kalambet/cinesense/internal/engine"
	"github.com/kalambet/cinesense/internal/sitesearch"
	"github.com/kalambet/cinesense/internal/storage"
	"github.com/kalambet/cinesense/internal/tasteprofile"
)

const maxRequestBodySize = 1 << 20 // 1MB

var validate = validator.New()

// Discoverer serves cached and streamed discovery lists.
type Discoverer interface {
	Cached(ctx context.Context, username string) ([]discover.Result, bool, error)
	Fallback(ctx context.Context, username string) ([]discover.Result, bool, error)
	Stream(ctx context.Context, username string, emit func([]discover.Result) error) error
}

// Answerer handles free-text assistant queries.
type Answerer interface {
	Answer(ctx context.Context, username, query string, emit func(sitesearch.Result) error) error
}

// SiteSearcher queries the configured video sites.
type SiteSearcher interface {
	Search(ctx context.Context, query string) []sitesearch.Result
	Stream(ctx context.Context, query string, emit func(sitesearch.Batch) error) error
}

// Suggester returns Douban title suggestions.
type Suggester interface {
	Suggest(ctx context.Context, q string) ([]catalog.Item, error)
}

// ProfileReader reads cached taste profiles.
type ProfileReader interface {
	Get(ctx context.Context, username string) (*tasteprofile.Profile, error)
}

type Deps struct {
	Store     *storage.Store
	Discover  Discoverer
	Assistant Answerer
	Sites     SiteSearcher
	Douban    Suggester
	Profiles  ProfileReader
	// AI is optional; without it the admin endpoints answer 503.
	AI *engine.Controller
	// Generator reports the active generator; nil means AI is disabled.
	Generator func() engine.Generator
	// MCP is mounted at /mcp when set.
	MCP http.Handler

	Token       string
	UserHeader  string
	DefaultUser string
	Logger      *slog.Logger
}

// NewRouter builds the HTTP handler. /health and /metrics are public;
// everything under /api requires the bearer token when one is set.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Generator == nil {
		d.Generator = func() engine.Generator { return nil }
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if d.Token != "" {
			r.Use(BearerAuth(d.Token))
		}
		r.Use(ResolveUser(d.UserHeader, d.DefaultUser))

		r.Route("/api", func(r chi.Router) {
			r.Get("/discover", handleDiscover(d))
			r.Get("/discover/stream", handleDiscoverStream(d))
			r.Post("/discover/refresh", handleDiscoverRefresh(d))

			r.Post("/ai/assistant", handleAssistant(d))
			r.Get("/profile", handleGetProfile(d))

			r.Get("/search", handleSearch(d))
			r.Get("/search/ws", handleSearchWS(d))
			r.Get("/douban/search", handleDoubanSearch(d))

			r.Get("/playrecords", handleListPlayRecords(d))
			r.Post("/playrecords", handleSavePlayRecord(d))
			r.Delete("/playrecords/{key}", handleDeletePlayRecord(d))
			r.Get("/favorites", handleListFavorites(d))
			r.Post("/favorites", handleSaveFavorite(d))
			r.Delete("/favorites/{key}", handleDeleteFavorite(d))
			r.Get("/searchhistory", handleListSearchHistory(d))
			r.Post("/searchhistory", handleAddSearchHistory(d))
			r.Delete("/searchhistory", handleDeleteSearchHistory(d))

			r.Get("/admin/ai", handleGetAISettings(d))
			r.Post("/admin/ai", handleSetAISettings(d))
		})

		if d.MCP != nil {
			r.Handle("/mcp", d.MCP)
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

// decodeBody reads a size-limited JSON body into v and validates it.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	if err := validate.Struct(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return false
	}
	return true
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

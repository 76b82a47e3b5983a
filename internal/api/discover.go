package api

import (
	"context"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/kalambet/cinesense/internal/discover"
	"github.com/kalambet/cinesense/internal/worker"
)

// streamErrorLine terminates an NDJSON stream that failed after headers
// were sent.
const streamErrorLine = `{"error":"Internal Server Error"}` + "\n"

func handleDiscover(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		empty := discover.Page{List: []discover.Result{}}
		if d.Generator() == nil {
			writeJSON(w, http.StatusOK, empty)
			return
		}

		user := userFrom(r.Context())
		list, ok, err := d.Discover.Cached(r.Context(), user)
		if err != nil {
			d.Logger.Error("reading cached discovery list", "user", user, "error", err)
			writeJSON(w, http.StatusOK, empty)
			return
		}
		if !ok {
			// Users without usable history get the static list; a refresh
			// would only recompute it.
			fb, isFallback, err := d.Discover.Fallback(r.Context(), user)
			if err != nil {
				d.Logger.Error("reading discovery fallback", "user", user, "error", err)
				writeJSON(w, http.StatusOK, empty)
				return
			}
			if !isFallback {
				// Nothing computed yet; let the worker fill the cache for the next visit.
				if _, _, err := worker.Enqueue(r.Context(), d.Store, worker.JobDiscoverRefresh, user); err != nil {
					d.Logger.Warn("scheduling discovery refresh", "user", user, "error", err)
				}
				writeJSON(w, http.StatusOK, empty)
				return
			}
			list = fb
		}

		start := parseIntParam(r, "start", 0, 0)
		limit := parseIntParam(r, "limit", 0, 100)
		writeJSON(w, http.StatusOK, discover.Paginate(list, start, limit))
	}
}

// handleDiscoverStream writes each batch as one NDJSON line: a quick
// rating-ordered list first, then the final ranked list. The pipeline
// keeps running after the client disconnects so the result still reaches
// the cache.
func handleDiscoverStream(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}
		user := userFrom(r.Context())

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Cache-Control", "no-cache")

		enc := json.NewEncoder(w)
		err := d.Discover.Stream(context.WithoutCancel(r.Context()), user, func(batch []discover.Result) error {
			if err := enc.Encode(batch); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		})
		if err != nil {
			d.Logger.Error("discovery stream failed", "user", user, "error", err)
			w.Write([]byte(streamErrorLine))
			flusher.Flush()
		}
	}
}

func handleDiscoverRefresh(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r.Context())
		id, added, err := worker.Enqueue(r.Context(), d.Store, worker.JobDiscoverRefresh, user)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue refresh: %v", err)
			return
		}
		if !added {
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "already_queued"})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "queued"})
	}
}

// handleGetProfile returns the cached taste profile. Profiles are built in
// the background, so a missing one is a 404 rather than a build.
func handleGetProfile(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r.Context())
		p, err := d.Profiles.Get(r.Context(), user)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get taste profile: %v", err)
			return
		}
		if p == nil {
			httpError(w, http.StatusNotFound, "not_found", "no taste profile for %s yet", user)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/kalambet/cinesense/internal/catalog"
	"github.com/kalambet/cinesense/internal/sitesearch"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	HandshakeTimeout: 10 * time.Second,
}

type searchResponse struct {
	Douban  []catalog.Item      `json:"douban"`
	Results []sitesearch.Result `json:"results"`
}

// wsEvent is one websocket frame of a streamed search.
type wsEvent struct {
	Event   string              `json:"event"`
	Site    string              `json:"site,omitempty"`
	Results []sitesearch.Result `json:"results,omitempty"`
}

// handleSearch answers with Douban suggestions when there are any and
// falls back to the video sites otherwise.
func handleSearch(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := searchResponse{Douban: []catalog.Item{}, Results: []sitesearch.Result{}}
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			writeJSON(w, http.StatusOK, resp)
			return
		}

		if d.Douban != nil {
			items, err := d.Douban.Suggest(r.Context(), q)
			if err != nil {
				d.Logger.Warn("douban suggest failed", "query", q, "error", err)
			}
			if len(items) > 0 {
				resp.Douban = items
				writeJSON(w, http.StatusOK, resp)
				return
			}
		}

		if results := d.Sites.Search(r.Context(), q); len(results) > 0 {
			resp.Results = results
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleDoubanSearch(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		items, err := d.Douban.Suggest(r.Context(), q)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "douban request failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"list": items})
	}
}

// handleSearchWS streams one "batch" frame per responding site, then "done".
func handleSearchWS(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			d.Logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		// Reading is only needed to notice the client going away.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		send := func(ev wsEvent) error {
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			return conn.WriteJSON(ev)
		}

		err = d.Sites.Stream(ctx, q, func(b sitesearch.Batch) error {
			return send(wsEvent{Event: "batch", Site: b.Site.Key, Results: b.Results})
		})
		if err != nil {
			d.Logger.Debug("search stream ended early", "query", q, "error", err)
			return
		}
		if err := send(wsEvent{Event: "done"}); err != nil {
			return
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
}

type assistantRequest struct {
	Query string `json:"query" validate:"required"`
}

// handleAssistant streams assistant results as NDJSON, one result per line.
func handleAssistant(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assistantRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}
		user := userFrom(r.Context())

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Cache-Control", "no-cache")

		enc := json.NewEncoder(w)
		err := d.Assistant.Answer(r.Context(), user, req.Query, func(res sitesearch.Result) error {
			if err := enc.Encode(res); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		})
		if err != nil && r.Context().Err() == nil {
			d.Logger.Error("assistant failed", "user", user, "query", req.Query, "error", err)
			w.Write([]byte(streamErrorLine))
			flusher.Flush()
		}
	}
}

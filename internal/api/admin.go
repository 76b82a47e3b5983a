package api

import (
	"net/http"

	"github.com/kalambet/cinesense/internal/engine"
)

type aiSettingsResponse struct {
	engine.Settings
	OpenRouterKeySet bool `json:"openrouter_key_set"`
}

func handleGetAISettings(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.AI == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "ai settings are not managed by this server")
			return
		}
		s := d.AI.Settings()
		writeJSON(w, http.StatusOK, aiSettingsResponse{Settings: s, OpenRouterKeySet: s.OpenRouterAPIKey != ""})
	}
}

// handleSetAISettings merges the body over the live settings, so omitted
// fields keep their value, then rebuilds the generator chain.
func handleSetAISettings(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.AI == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "ai settings are not managed by this server")
			return
		}
		s := d.AI.Settings()
		if !decodeBody(w, r, &s) {
			return
		}
		if err := d.AI.Apply(r.Context(), s); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to apply ai settings: %v", err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

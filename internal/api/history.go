package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/cinesense/internal/storage"
)

func handleListPlayRecords(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := d.Store.GetAllPlayRecords(r.Context(), userFrom(r.Context()))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list play records: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func handleSavePlayRecord(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rec storage.PlayRecord
		if !decodeBody(w, r, &rec) {
			return
		}
		if err := d.Store.SavePlayRecord(r.Context(), userFrom(r.Context()), rec); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save play record: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
	}
}

func handleDeletePlayRecord(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := d.Store.DeletePlayRecord(r.Context(), userFrom(r.Context()), chi.URLParam(r, "key"))
		writeDeleted(w, "play record", err)
	}
}

func handleListFavorites(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		favs, err := d.Store.GetAllFavorites(r.Context(), userFrom(r.Context()))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list favorites: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, favs)
	}
}

func handleSaveFavorite(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var fav storage.Favorite
		if !decodeBody(w, r, &fav) {
			return
		}
		if err := d.Store.SaveFavorite(r.Context(), userFrom(r.Context()), fav); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save favorite: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
	}
}

func handleDeleteFavorite(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := d.Store.DeleteFavorite(r.Context(), userFrom(r.Context()), chi.URLParam(r, "key"))
		writeDeleted(w, "favorite", err)
	}
}

func writeDeleted(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "%s not found", what)
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to delete %s: %v", what, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func handleListSearchHistory(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keywords, err := d.Store.GetSearchHistory(r.Context(), userFrom(r.Context()))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list search history: %v", err)
			return
		}
		if keywords == nil {
			keywords = []string{}
		}
		writeJSON(w, http.StatusOK, keywords)
	}
}

type searchHistoryRequest struct {
	Keyword string `json:"keyword" validate:"required,max=200"`
}

func handleAddSearchHistory(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req searchHistoryRequest
		if !decodeBody(w, r, &req) {
			return
		}
		keyword := strings.TrimSpace(req.Keyword)
		if err := d.Store.AddSearchHistory(r.Context(), userFrom(r.Context()), keyword); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save search keyword: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
	}
}

// handleDeleteSearchHistory removes ?keyword=, or everything without it.
func handleDeleteSearchHistory(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
		if err := d.Store.DeleteSearchHistory(r.Context(), userFrom(r.Context()), keyword); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete search history: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

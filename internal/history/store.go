package history

import (
	"context"

	"github.com/kalambet/cinesense/internal/storage"
)

// Store is the read side of per-user history. Implemented by storage.Store.
type Store interface {
	GetAllPlayRecords(ctx context.Context, username string) (map[string]storage.PlayRecord, error)
	GetSearchHistory(ctx context.Context, username string) ([]string, error)
	GetAllFavorites(ctx context.Context, username string) (map[string]storage.Favorite, error)
}

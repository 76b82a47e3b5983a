package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// maxSearchHistory caps the number of search keywords kept per user.
const maxSearchHistory = 100

// --- Play records ---

// SavePlayRecord inserts or replaces the record identified by r.Key.
func (s *Store) SavePlayRecord(ctx context.Context, username string, r PlayRecord) error {
	if r.LastSavedAt.IsZero() {
		r.LastSavedAt = s.clock.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO play_records (username, record_key, title, source_name, cover, year, description,
			episode_index, total_episodes, play_time, total_time, save_time, search_title)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(username, record_key) DO UPDATE SET
			title = excluded.title, source_name = excluded.source_name, cover = excluded.cover,
			year = excluded.year, description = excluded.description, episode_index = excluded.episode_index,
			total_episodes = excluded.total_episodes, play_time = excluded.play_time,
			total_time = excluded.total_time, save_time = excluded.save_time, search_title = excluded.search_title`,
		username, r.Key, r.Title, r.SourceName, r.Cover, r.Year, r.Description,
		r.EpisodeIndex, r.TotalEpisodes, r.PlayPositionSeconds, r.TotalDurationSeconds,
		r.LastSavedAt.UnixMilli(), r.SearchTitle,
	)
	if err != nil {
		return fmt.Errorf("saving play record %s: %w", r.Key, err)
	}
	return nil
}

// GetAllPlayRecords returns every play record for username keyed by record key.
func (s *Store) GetAllPlayRecords(ctx context.Context, username string) (map[string]PlayRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_key, title, source_name, cover, year, description, episode_index,
			total_episodes, play_time, total_time, save_time, search_title
		FROM play_records WHERE username = ?`, username)
	if err != nil {
		return nil, fmt.Errorf("querying play records: %w", err)
	}
	defer rows.Close()

	out := make(map[string]PlayRecord)
	for rows.Next() {
		var r PlayRecord
		var saved int64
		if err := rows.Scan(&r.Key, &r.Title, &r.SourceName, &r.Cover, &r.Year, &r.Description,
			&r.EpisodeIndex, &r.TotalEpisodes, &r.PlayPositionSeconds, &r.TotalDurationSeconds,
			&saved, &r.SearchTitle); err != nil {
			return nil, err
		}
		r.LastSavedAt = time.UnixMilli(saved).UTC()
		out[r.Key] = r
	}
	return out, rows.Err()
}

func (s *Store) DeletePlayRecord(ctx context.Context, username, key string) error {
	return s.deleteByKey(ctx, "play_records", username, key)
}

// --- Favorites ---

func (s *Store) SaveFavorite(ctx context.Context, username string, f Favorite) error {
	if f.SavedAt.IsZero() {
		f.SavedAt = s.clock.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO favorites (username, record_key, title, source_name, cover, year, total_episodes, save_time, search_title)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(username, record_key) DO UPDATE SET
			title = excluded.title, source_name = excluded.source_name, cover = excluded.cover,
			year = excluded.year, total_episodes = excluded.total_episodes,
			save_time = excluded.save_time, search_title = excluded.search_title`,
		username, f.Key, f.Title, f.SourceName, f.Cover, f.Year, f.TotalEpisodes,
		f.SavedAt.UnixMilli(), f.SearchTitle,
	)
	if err != nil {
		return fmt.Errorf("saving favorite %s: %w", f.Key, err)
	}
	return nil
}

// GetAllFavorites returns every favorite for username keyed by record key.
func (s *Store) GetAllFavorites(ctx context.Context, username string) (map[string]Favorite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_key, title, source_name, cover, year, total_episodes, save_time, search_title
		FROM favorites WHERE username = ?`, username)
	if err != nil {
		return nil, fmt.Errorf("querying favorites: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Favorite)
	for rows.Next() {
		var f Favorite
		var saved int64
		if err := rows.Scan(&f.Key, &f.Title, &f.SourceName, &f.Cover, &f.Year, &f.TotalEpisodes,
			&saved, &f.SearchTitle); err != nil {
			return nil, err
		}
		f.SavedAt = time.UnixMilli(saved).UTC()
		out[f.Key] = f
	}
	return out, rows.Err()
}

func (s *Store) DeleteFavorite(ctx context.Context, username, key string) error {
	return s.deleteByKey(ctx, "favorites", username, key)
}

func (s *Store) deleteByKey(ctx context.Context, table, username, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE username = ? AND record_key = ?`, username, key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Search history ---

// AddSearchHistory records keyword as the user's most recent search. A
// repeated keyword moves to the front; the oldest entries beyond the cap
// are dropped.
func (s *Store) AddSearchHistory(ctx context.Context, username, keyword string) error {
	if keyword == "" {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning search history transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.clock.Now().UnixNano()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO search_history (username, keyword, created_at) VALUES (?, ?, ?)
		ON CONFLICT(username, keyword) DO UPDATE SET created_at = excluded.created_at`,
		username, keyword, now); err != nil {
		return fmt.Errorf("inserting search keyword: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM search_history WHERE username = ? AND keyword NOT IN (
			SELECT keyword FROM search_history WHERE username = ?
			ORDER BY created_at DESC LIMIT ?
		)`, username, username, maxSearchHistory); err != nil {
		return fmt.Errorf("trimming search history: %w", err)
	}

	return tx.Commit()
}

// GetSearchHistory returns the user's search keywords, most recent first.
func (s *Store) GetSearchHistory(ctx context.Context, username string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT keyword FROM search_history WHERE username = ? ORDER BY created_at DESC`, username)
	if err != nil {
		return nil, fmt.Errorf("querying search history: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// DeleteSearchHistory removes keyword, or the whole history when keyword is empty.
func (s *Store) DeleteSearchHistory(ctx context.Context, username, keyword string) error {
	var err error
	if keyword == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM search_history WHERE username = ?`, username)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM search_history WHERE username = ? AND keyword = ?`, username, keyword)
	}
	return err
}

// ListUsers returns every username that has at least one play record.
func (s *Store) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT username FROM play_records ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// --- Settings ---

// GetSetting returns the raw value stored under key, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.clock.Now().UTC().Format(time.RFC3339))
	return err
}

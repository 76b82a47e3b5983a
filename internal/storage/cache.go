package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Get returns the cached value for key. Expired entries read as a miss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expiresAt sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache key %s: %w", key, err)
	}
	if expiresAt.Valid && s.clock.Now().UnixMilli() >= expiresAt.Int64 {
		return nil, false, nil
	}
	return value, true, nil
}

// Set stores value under key for ttl. A non-positive ttl never expires.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt sql.NullInt64
	if ttl > 0 {
		expiresAt = sql.NullInt64{Int64: s.clock.Now().Add(ttl).UnixMilli(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("writing cache key %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	return err
}

// PurgeExpired deletes expired cache entries and returns how many were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		s.clock.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purging cache: %w", err)
	}
	return res.RowsAffected()
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Entry is one row of the key/value storage. A nil Value marks a removed key;
// the row is kept so other processes see the removal as a new revision.
type Entry struct {
	Key       string
	Value     *string
	Origin    string
	Revision  int64
	UpdatedAt time.Time
}

// Store is a durable key/value store shared between processes. Every write
// gets a new global revision and is stamped with the writer's origin.
type Store struct {
	DB     *sql.DB
	origin string
}

func NewStore(db *sql.DB) *Store {
	return &Store{DB: db, origin: uuid.NewString()}
}

func (s *Store) Origin() string {
	return s.origin
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value sql.NullString
	err := s.DB.QueryRowContext(ctx, "SELECT value FROM storage WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	if !value.Valid {
		return "", false, nil
	}
	return value.String, true, nil
}

func (s *Store) SetItems(ctx context.Context, items map[string]string) error {
	return s.write(ctx, func(tx *sql.Tx, revision int64) (int64, error) {
		return s.writeItems(ctx, tx, items, revision)
	})
}

// CompareAndSetItems writes items only while key still holds expected. It
// reports whether the write happened.
func (s *Store) CompareAndSetItems(ctx context.Context, key, expected string, items map[string]string) (bool, error) {
	swapped := false
	err := s.write(ctx, func(tx *sql.Tx, revision int64) (int64, error) {
		var current sql.NullString
		err := tx.QueryRowContext(ctx, "SELECT value FROM storage WHERE key = ?", key).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return revision, fmt.Errorf("check %s: %w", key, err)
		}
		if !current.Valid || current.String != expected {
			return revision, nil
		}
		swapped = true
		return s.writeItems(ctx, tx, items, revision)
	})
	if err != nil {
		return false, err
	}
	return swapped, nil
}

func (s *Store) writeItems(ctx context.Context, tx *sql.Tx, items map[string]string, revision int64) (int64, error) {
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := items[key]
		if err := upsert(ctx, tx, key, &value, s.origin, revision); err != nil {
			return revision, err
		}
		revision++
	}
	return revision, nil
}

// RemoveItems skips keys that were never written.
func (s *Store) RemoveItems(ctx context.Context, keys ...string) error {
	return s.write(ctx, func(tx *sql.Tx, revision int64) (int64, error) {
		for _, key := range keys {
			var exists int
			err := tx.QueryRowContext(ctx, "SELECT 1 FROM storage WHERE key = ? AND value IS NOT NULL", key).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return revision, fmt.Errorf("check %s: %w", key, err)
			}
			if err := upsert(ctx, tx, key, nil, s.origin, revision); err != nil {
				return revision, err
			}
			revision++
		}
		return revision, nil
	})
}

func (s *Store) write(ctx context.Context, fn func(tx *sql.Tx, revision int64) (int64, error)) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var latest int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(revision), 0) FROM storage").Scan(&latest); err != nil {
		return fmt.Errorf("latest revision: %w", err)
	}

	if _, err := fn(tx, latest+1); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func upsert(ctx context.Context, tx *sql.Tx, key string, value *string, origin string, revision int64) error {
	var stored sql.NullString
	if value != nil {
		stored = sql.NullString{String: *value, Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO storage (key, value, origin, revision, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			origin = excluded.origin,
			revision = excluded.revision,
			updated_at = excluded.updated_at`,
		key, stored, origin, revision)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *Store) LatestRevision(ctx context.Context) (int64, error) {
	var latest int64
	if err := s.DB.QueryRowContext(ctx, "SELECT COALESCE(MAX(revision), 0) FROM storage").Scan(&latest); err != nil {
		return 0, fmt.Errorf("latest revision: %w", err)
	}
	return latest, nil
}

func (s *Store) Changes(ctx context.Context, after int64) ([]Entry, error) {
	rows, err := s.DB.QueryContext(ctx,
		"SELECT key, value, origin, revision, updated_at FROM storage WHERE revision > ? ORDER BY revision",
		after)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry Entry
			value sql.NullString
		)
		if err := rows.Scan(&entry.Key, &value, &entry.Origin, &entry.Revision, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		if value.Valid {
			v := value.String
			entry.Value = &v
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

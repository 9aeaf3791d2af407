package state

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/pollwatch/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Read loads the state map stored under key. Entries whose LastSeenAt is
// older than ttl are dropped before returning; a key with no rows yields
// an empty map.
func (s *SQLiteStore) Read(
	ctx context.Context,
	key string,
	ttl time.Duration,
) (model.StateMap, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT uri, version, first_seen_at, last_seen_at FROM trigger_entries WHERE state_key = ?",
		key,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state %q: %w", key, err)
	}
	defer rows.Close()

	m := model.StateMap{}
	for rows.Next() {
		var entry model.StateEntry
		if err := rows.Scan(
			&entry.URI, &entry.Version, &entry.FirstSeenAt, &entry.LastSeenAt,
		); err != nil {
			return nil, fmt.Errorf("scanning state entry for %q: %w", key, err)
		}
		m[entry.URI] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading state %q: %w", key, err)
	}

	m.Prune(ttl, time.Now())

	return m, nil
}

// Write replaces all persisted state for key with the given map in a
// single transaction.
func (s *SQLiteStore) Write(
	ctx context.Context,
	key string,
	m model.StateMap,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM trigger_entries WHERE state_key = ?", key,
	); err != nil {
		return fmt.Errorf("clearing state %q: %w", key, err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO trigger_entries (
			state_key, uri, version, first_seen_at, last_seen_at
		) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing state insert: %w", err)
	}
	defer stmt.Close()

	for uri, entry := range m {
		_, err = stmt.ExecContext(ctx,
			key, uri, entry.Version,
			entry.FirstSeenAt.UTC(), entry.LastSeenAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("writing state entry %q for %q: %w", uri, key, err)
		}
	}

	return tx.Commit()
}

// Delete removes all state stored under key.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM trigger_entries WHERE state_key = ?", key,
	)
	if err != nil {
		return fmt.Errorf("deleting state %q: %w", key, err)
	}
	return nil
}

package browser

import (
	"context"
	"database/sql"
	"fmt"
)

// SessionStore persists per-(user, domain) session snapshots so a later task
// can resume a prior authenticated state. Snapshots are opaque blobs owned by
// the driver; the engine restores one at init and saves one at cleanup.
type SessionStore interface {
	// LoadSession returns the saved snapshot, or nil when none exists.
	LoadSession(ctx context.Context, userID, domain string) ([]byte, error)

	// SaveSession upserts the snapshot for the user and domain.
	SaveSession(ctx context.Context, userID, domain string, state []byte) error
}

// SQLiteSessionStore keeps session snapshots in the shared SQLite database.
type SQLiteSessionStore struct {
	db *sql.DB
}

// NewSQLiteSessionStore wraps an open database handle and ensures the
// sessions schema exists.
func NewSQLiteSessionStore(db *sql.DB) (*SQLiteSessionStore, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS browser_sessions (
		user_id TEXT NOT NULL,
		domain TEXT NOT NULL,
		state BLOB NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, domain)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize sessions schema: %w", err)
	}
	return &SQLiteSessionStore{db: db}, nil
}

// LoadSession returns the saved snapshot, or nil when none exists.
func (s *SQLiteSessionStore) LoadSession(ctx context.Context, userID, domain string) ([]byte, error) {
	var state []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM browser_sessions WHERE user_id = ? AND domain = ?`,
		userID, domain).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return state, nil
}

// SaveSession upserts the snapshot for the user and domain.
func (s *SQLiteSessionStore) SaveSession(ctx context.Context, userID, domain string, state []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO browser_sessions (user_id, domain, state, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(user_id, domain) DO UPDATE SET
			state = excluded.state, updated_at = CURRENT_TIMESTAMP`,
		userID, domain, state)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

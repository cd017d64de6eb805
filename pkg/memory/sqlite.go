package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// stalenessModifier is the SQLite datetime modifier matching the advisory
// staleness cutoff. Comparison happens in SQL so stored CURRENT_TIMESTAMP
// strings and the cutoff share a clock and format.
const stalenessModifier = "-90 days"

// SQLiteStore persists failure memory in a SQLite database. The schema is
// created on open if missing.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path. Use ":memory:" for an
// ephemeral store.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// NewSQLiteStore wraps an open database handle and ensures the
// failure-memory schema exists.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize failure memory schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS failure_memory (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		site_domain TEXT NOT NULL,
		site_path TEXT,
		action_type TEXT NOT NULL,
		original_selector TEXT NOT NULL,
		original_method TEXT,
		error_type TEXT,
		error_message TEXT,
		solution_method TEXT,
		solution_selector TEXT,
		solution_steps TEXT,
		success_rate REAL NOT NULL DEFAULT 0,
		times_used INTEGER NOT NULL DEFAULT 0,
		last_seen_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(site_domain, action_type, original_selector)
	);

	CREATE INDEX IF NOT EXISTS idx_failure_memory_site_action
		ON failure_memory(site_domain, action_type);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const recordColumns = `id, site_domain, site_path, action_type, original_selector,
	original_method, error_type, error_message, solution_method, solution_selector,
	solution_steps, success_rate, times_used, last_seen_at, created_at, updated_at`

// Lookup applies the tiered search: exact key first, then any proven fix for
// the same site and action, then globally promoted records. Stale records
// (not seen within 90 days) are excluded but never deleted.
func (s *SQLiteStore) Lookup(ctx context.Context, q Query) (*Record, error) {
	// Tier 1: exact selector match with a better-than-even rate.
	rec, err := s.queryOne(ctx, fmt.Sprintf(
		`SELECT %s FROM failure_memory
		 WHERE site_domain = ? AND action_type = ? AND original_selector = ?
		   AND success_rate > 50 AND last_seen_at > datetime('now', ?)`, recordColumns),
		q.SiteDomain, q.ActionType, q.Selector, stalenessModifier)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}

	// Tier 2: any selector for the same site and action with a proven rate.
	rec, err = s.queryOne(ctx, fmt.Sprintf(
		`SELECT %s FROM failure_memory
		 WHERE site_domain = ? AND action_type = ?
		   AND success_rate > ? AND last_seen_at > datetime('now', ?)
		 ORDER BY success_rate DESC LIMIT 1`, recordColumns),
		q.SiteDomain, q.ActionType, promotionMinRate, stalenessModifier)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}

	// Tier 3: the same selector proven on other sites, promoted only after
	// repeated confirmed use.
	return s.queryOne(ctx, fmt.Sprintf(
		`SELECT %s FROM failure_memory
		 WHERE action_type = ? AND original_selector = ?
		   AND times_used >= ? AND success_rate > ? AND last_seen_at > datetime('now', ?)
		 ORDER BY success_rate DESC LIMIT 1`, recordColumns),
		q.ActionType, q.Selector, promotionMinUses, promotionMinRate, stalenessModifier)
}

// RecordFailure records a failed observation. The first observation for a key
// sets the rate to exactly 100 (a solution was found) or 0; later
// observations blend via EMA and bump times_used.
func (s *SQLiteStore) RecordFailure(ctx context.Context, f Failure) (int64, error) {
	selector := f.Selector
	if !ValidSelector(selector) {
		selector = ""
	}

	var solMethod, solSelector, solSteps string
	event := 0.0
	if f.Solution != nil {
		event = 100
		solMethod = f.Solution.Method
		solSelector = f.Solution.Selector
		if !ValidSelector(solSelector) {
			solSelector = ""
		}
		if len(f.Solution.Steps) > 0 {
			encoded, err := json.Marshal(f.Solution.Steps)
			if err != nil {
				return 0, fmt.Errorf("failed to encode solution steps: %w", err)
			}
			solSteps = string(encoded)
		}
	}

	existing, err := s.queryOne(ctx, fmt.Sprintf(
		`SELECT %s FROM failure_memory
		 WHERE site_domain = ? AND action_type = ? AND original_selector = ?`, recordColumns),
		f.SiteDomain, f.ActionType, selector)
	if err != nil {
		return 0, err
	}

	if existing == nil {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO failure_memory (
				site_domain, site_path, action_type, original_selector,
				original_method, error_type, error_message,
				solution_method, solution_selector, solution_steps,
				success_rate, times_used, last_seen_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, CURRENT_TIMESTAMP)`,
			f.SiteDomain, f.SitePath, f.ActionType, selector,
			f.Method, f.ErrorType, f.Err,
			solMethod, solSelector, solSteps, event)
		if err != nil {
			return 0, fmt.Errorf("failed to insert failure record: %w", err)
		}
		return res.LastInsertId()
	}

	rate := ema(existing.SuccessRate, event)
	_, err = s.db.ExecContext(ctx,
		`UPDATE failure_memory SET
			success_rate = ?, times_used = times_used + 1,
			error_type = ?, error_message = ?,
			solution_method = CASE WHEN ? != '' THEN ? ELSE solution_method END,
			solution_selector = CASE WHEN ? != '' THEN ? ELSE solution_selector END,
			solution_steps = CASE WHEN ? != '' THEN ? ELSE solution_steps END,
			last_seen_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		rate,
		f.ErrorType, f.Err,
		solMethod, solMethod,
		solSelector, solSelector,
		solSteps, solSteps,
		existing.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to update failure record: %w", err)
	}
	return existing.ID, nil
}

// RecordSuccess blends a positive observation into the record's rate.
func (s *SQLiteStore) RecordSuccess(ctx context.Context, id int64) error {
	return s.observe(ctx, id, 100)
}

// RecordSolutionFailed blends a negative observation into the record's rate.
func (s *SQLiteStore) RecordSolutionFailed(ctx context.Context, id int64) error {
	return s.observe(ctx, id, 0)
}

func (s *SQLiteStore) observe(ctx context.Context, id int64, event float64) error {
	var rate float64
	err := s.db.QueryRowContext(ctx,
		`SELECT success_rate FROM failure_memory WHERE id = ?`, id).Scan(&rate)
	if err == sql.ErrNoRows {
		return fmt.Errorf("failure record %d not found", id)
	}
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE failure_memory SET
			success_rate = ?, times_used = times_used + 1,
			last_seen_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, ema(rate, event), id)
	if err != nil {
		return fmt.Errorf("failed to update failure record %d: %w", id, err)
	}
	return nil
}

// LearnSolution upserts a discovered fix at 100% confidence. An existing
// solution with a proven rate (>= 70) is never displaced: a worse fix must
// not overwrite one that keeps working.
func (s *SQLiteStore) LearnSolution(ctx context.Context, l Learned) error {
	selector := l.OriginalSelector
	if !ValidSelector(selector) {
		selector = ""
	}

	existing, err := s.queryOne(ctx, fmt.Sprintf(
		`SELECT %s FROM failure_memory
		 WHERE site_domain = ? AND action_type = ? AND original_selector = ?`, recordColumns),
		l.SiteDomain, l.ActionType, selector)
	if err != nil {
		return err
	}
	if existing.HasSolution() && existing.SuccessRate >= promotionMinRate {
		return nil
	}

	solSelector := l.Solution.Selector
	if !ValidSelector(solSelector) {
		solSelector = ""
	}
	var solSteps string
	if len(l.Solution.Steps) > 0 {
		encoded, err := json.Marshal(l.Solution.Steps)
		if err != nil {
			return fmt.Errorf("failed to encode solution steps: %w", err)
		}
		solSteps = string(encoded)
	}

	if existing == nil {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO failure_memory (
				site_domain, action_type, original_selector, original_method,
				error_message, solution_method, solution_selector, solution_steps,
				success_rate, times_used, last_seen_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 100, 1, CURRENT_TIMESTAMP)`,
			l.SiteDomain, l.ActionType, selector, l.OriginalMethod,
			l.Err, l.Solution.Method, solSelector, solSteps)
		if err != nil {
			return fmt.Errorf("failed to insert learned solution: %w", err)
		}
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE failure_memory SET
			original_method = ?, error_message = ?,
			solution_method = ?, solution_selector = ?, solution_steps = ?,
			success_rate = 100,
			last_seen_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		l.OriginalMethod, l.Err,
		l.Solution.Method, solSelector, solSteps, existing.ID)
	if err != nil {
		return fmt.Errorf("failed to update learned solution: %w", err)
	}
	return nil
}

func (s *SQLiteStore) queryOne(ctx context.Context, query string, args ...any) (*Record, error) {
	row := s.db.QueryRowContext(ctx, query, args...)

	var rec Record
	var sitePath, origMethod, errType, errMsg sql.NullString
	var solMethod, solSelector, solSteps sql.NullString

	err := row.Scan(
		&rec.ID, &rec.SiteDomain, &sitePath, &rec.ActionType, &rec.OriginalSelector,
		&origMethod, &errType, &errMsg, &solMethod, &solSelector,
		&solSteps, &rec.SuccessRate, &rec.TimesUsed,
		&rec.LastSeenAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec.SitePath = sitePath.String
	rec.OriginalMethod = origMethod.String
	rec.ErrorType = errType.String
	rec.ErrorMessage = errMsg.String
	rec.SolutionMethod = solMethod.String
	rec.SolutionSelector = solSelector.String
	if solSteps.String != "" {
		if err := json.Unmarshal([]byte(solSteps.String), &rec.SolutionSteps); err != nil {
			return nil, fmt.Errorf("failed to decode solution steps: %w", err)
		}
	}
	return &rec, nil
}

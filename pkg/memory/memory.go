// Package memory implements the persistent cross-run learning store. It
// records which selectors and methods worked or failed per (site, action,
// selector) key and feeds learned fixes back into future attempts. Records
// are shared across all users and tasks: one user's discovered fix benefits
// every user hitting the same site and action.
//
// The store is advisory. Every lookup failure degrades to "no learned data";
// the engine treats the store as best-effort and never lets it block a step.
package memory

import (
	"context"
	"math"
	"time"
)

// EMA weight for success-rate updates. A new observation (0 or 100)
// contributes 30% of the updated rate.
const emaWeight = 0.3

// staleness is the advisory cutoff: records not seen for longer are excluded
// from lookups but never deleted.
const staleness = 90 * 24 * time.Hour

// Promotion thresholds: a record becomes usable beyond the context that
// produced it only after enough observations with a high enough rate.
const (
	promotionMinUses = 3
	promotionMinRate = 70.0
)

// Record mirrors one row of the failure-memory table.
type Record struct {
	ID               int64
	SiteDomain       string
	SitePath         string
	ActionType       string
	OriginalSelector string
	OriginalMethod   string
	ErrorType        string
	ErrorMessage     string
	SolutionMethod   string
	SolutionSelector string
	SolutionSteps    []string
	SuccessRate      float64
	TimesUsed        int
	LastSeenAt       time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasSolution reports whether the record carries a learned fix.
func (r *Record) HasSolution() bool {
	return r != nil && r.SolutionMethod != ""
}

// Solution describes a discovered fix for a failing action.
type Solution struct {
	Method   string
	Selector string
	Steps    []string
}

// Query keys a lookup.
type Query struct {
	SiteDomain string
	ActionType string
	Selector   string
}

// Failure describes one failed action observation.
type Failure struct {
	SiteDomain string
	SitePath   string
	ActionType string
	Selector   string
	Method     string
	Err        string
	ErrorType  string

	// Solution, when set, records the fix that eventually worked on this run.
	Solution *Solution
}

// Learned describes a fix discovered at runtime, submitted via LearnSolution.
type Learned struct {
	SiteDomain       string
	ActionType       string
	OriginalSelector string
	OriginalMethod   string
	Err              string
	Solution         Solution
}

// Store is the engine-facing interface. Implementations must be safe for
// concurrent use by independent engine instances; writes are idempotent
// upserts, so last-write-wins races are acceptable.
type Store interface {
	// Lookup returns the best learned record for the query, or nil when no
	// tier matches. Implementations return (nil, err) on backend failure so
	// the caller can choose to log and continue.
	Lookup(ctx context.Context, q Query) (*Record, error)

	// RecordFailure records a failed observation, creating the record on
	// first sight. Returns the record id.
	RecordFailure(ctx context.Context, f Failure) (int64, error)

	// RecordSuccess applies a positive EMA observation to a record by id.
	RecordSuccess(ctx context.Context, id int64) error

	// RecordSolutionFailed applies a negative EMA observation to a record
	// by id.
	RecordSolutionFailed(ctx context.Context, id int64) error

	// LearnSolution upserts a discovered fix. It must not overwrite an
	// existing solution whose success rate is already proven (>= 70).
	LearnSolution(ctx context.Context, l Learned) error

	Close() error
}

// ema blends a new observation event (0 or 100) into the running success
// rate, rounded to two decimals and clamped to [0,100].
func ema(old, event float64) float64 {
	v := emaWeight*event + (1-emaWeight)*old
	v = math.Round(v*100) / 100
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

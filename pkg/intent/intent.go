// Package intent defines the locked intent: an immutable, per-task
// authorization record bounding which actions the execution engine may take,
// against which domains, and for how long. The validator compiled from it is
// consulted before every step; an action outside the intent is rejected before
// any side effect occurs.
package intent

import (
	"fmt"
	"time"

	"github.com/entrhq/webpilot/pkg/step"
)

// LockedIntent is created once per task by the planner and never mutated by
// the engine. All fields are read through accessors so the record stays
// immutable for the task's lifetime.
type LockedIntent struct {
	userID         string
	taskType       string
	goal           string
	allowedActions map[step.Kind]bool
	allowedDomains []string
	maxDuration    time.Duration
	maxActions     int
	startedAt      time.Time
}

// NewLockedIntent constructs an intent. allowedDomains entries may be exact
// hostnames, glob patterns such as "*.example.com", or the single wildcard
// "*" which matches any host.
func NewLockedIntent(userID, taskType, goal string, allowedActions []step.Kind, allowedDomains []string, maxDuration time.Duration, maxActions int) *LockedIntent {
	actions := make(map[step.Kind]bool, len(allowedActions))
	for _, a := range allowedActions {
		actions[a] = true
	}
	domains := make([]string, len(allowedDomains))
	copy(domains, allowedDomains)

	return &LockedIntent{
		userID:         userID,
		taskType:       taskType,
		goal:           goal,
		allowedActions: actions,
		allowedDomains: domains,
		maxDuration:    maxDuration,
		maxActions:     maxActions,
		startedAt:      time.Now(),
	}
}

// UserID returns the owning user.
func (li *LockedIntent) UserID() string { return li.userID }

// TaskType returns the planner-assigned task category.
func (li *LockedIntent) TaskType() string { return li.taskType }

// Goal returns the natural-language goal the plan was derived from.
func (li *LockedIntent) Goal() string { return li.goal }

// StartedAt returns when the intent was locked.
func (li *LockedIntent) StartedAt() time.Time { return li.startedAt }

// MaxActions returns the action budget, 0 meaning unlimited.
func (li *LockedIntent) MaxActions() int { return li.maxActions }

// MaxDuration returns the wall-clock budget, 0 meaning unlimited.
func (li *LockedIntent) MaxDuration() time.Duration { return li.maxDuration }

// AllowsAction reports whether the action kind is inside the intent.
func (li *LockedIntent) AllowsAction(kind step.Kind) bool {
	return li.allowedActions[kind]
}

// AllowedDomains returns a copy of the domain patterns.
func (li *LockedIntent) AllowedDomains() []string {
	out := make([]string, len(li.allowedDomains))
	copy(out, li.allowedDomains)
	return out
}

// Expired reports whether the intent's duration budget has been exhausted.
func (li *LockedIntent) Expired(now time.Time) bool {
	if li.maxDuration <= 0 {
		return false
	}
	return now.Sub(li.startedAt) > li.maxDuration
}

// ActionBudgetExceeded reports whether executing one more action would exceed
// the intent's action budget.
func (li *LockedIntent) ActionBudgetExceeded(executed int) bool {
	if li.maxActions <= 0 {
		return false
	}
	return executed >= li.maxActions
}

// String describes the intent for logs without exposing user data beyond the
// goal summary.
func (li *LockedIntent) String() string {
	return fmt.Sprintf("intent{user=%s type=%s actions=%d domains=%v}",
		li.userID, li.taskType, len(li.allowedActions), li.allowedDomains)
}

package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/webpilot/pkg/intent"
	"github.com/entrhq/webpilot/pkg/step"
)

// planFile is the on-disk task plan: the intent fields plus the ordered
// steps. Steps decode through step.Step's own YAML handling, so malformed
// steps are rejected at load time.
type planFile struct {
	UserID         string      `yaml:"user_id"`
	TaskType       string      `yaml:"task_type"`
	Goal           string      `yaml:"goal"`
	AllowedActions []string    `yaml:"allowed_actions"`
	AllowedDomains []string    `yaml:"allowed_domains"`
	MaxDuration    string      `yaml:"max_duration"`
	MaxActions     int         `yaml:"max_actions"`
	Steps          []step.Step `yaml:"steps"`
}

// loadPlan reads and validates a plan file, returning the locked intent and
// the steps to execute.
func loadPlan(path string) (*intent.LockedIntent, []step.Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read plan %s: %w", path, err)
	}

	var plan planFile
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, nil, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}

	if plan.UserID == "" {
		return nil, nil, fmt.Errorf("plan is missing user_id")
	}
	if plan.Goal == "" {
		return nil, nil, fmt.Errorf("plan is missing a goal")
	}
	if len(plan.AllowedActions) == 0 {
		return nil, nil, fmt.Errorf("plan allows no actions")
	}
	if len(plan.AllowedDomains) == 0 {
		return nil, nil, fmt.Errorf("plan allows no domains")
	}
	if len(plan.Steps) == 0 {
		return nil, nil, fmt.Errorf("plan has no steps")
	}

	actions := make([]step.Kind, 0, len(plan.AllowedActions))
	for _, raw := range plan.AllowedActions {
		kind := step.Kind(raw)
		if !kind.Valid() {
			return nil, nil, fmt.Errorf("unknown allowed action %q", raw)
		}
		actions = append(actions, kind)
	}

	var maxDuration time.Duration
	if plan.MaxDuration != "" {
		maxDuration, err = time.ParseDuration(plan.MaxDuration)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid max_duration %q: %w", plan.MaxDuration, err)
		}
	}

	li := intent.NewLockedIntent(
		plan.UserID, plan.TaskType, plan.Goal,
		actions, plan.AllowedDomains,
		maxDuration, plan.MaxActions,
	)
	return li, plan.Steps, nil
}

// Package engine implements the autonomous task-execution engine. Given an
// ordered plan of actions and a locked intent, it drives a browser session to
// carry the plan out: validating every step against the intent, consulting
// and updating the failure-memory store, delegating to fallback strategies,
// enforcing per-step and per-task timeouts, retrying transient failures,
// capturing screenshot evidence, and verifying outcomes fail-closed.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/intent"
	"github.com/entrhq/webpilot/pkg/logging"
	"github.com/entrhq/webpilot/pkg/memory"
	"github.com/entrhq/webpilot/pkg/retry"
	"github.com/entrhq/webpilot/pkg/step"
	"github.com/entrhq/webpilot/pkg/vision"
)

// Failure classification sentinels. Public engine methods never return these
// directly; they are wrapped into result errors so callers can classify with
// errors.Is.
var (
	ErrTaskTimeout        = errors.New("task timed out")
	ErrValidationBlocked  = errors.New("action blocked")
	ErrVerificationFailed = errors.New("verification failed")
	ErrPageCrashed        = errors.New("page crashed")
)

// State tracks the engine lifecycle.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitialized   State = "initialized"
	StateRunning       State = "running"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
	StateCleaned       State = "cleaned"
)

// Config bounds the engine's execution discipline.
type Config struct {
	// TaskTimeout caps the whole plan's wall-clock time.
	TaskTimeout time.Duration

	// StepTimeout caps one handler dispatch, per attempt.
	StepTimeout time.Duration

	// SettleDelay is the fixed wait after state-changing actions, on top of
	// network idle, to absorb client-side re-renders.
	SettleDelay time.Duration

	// SettleTimeout bounds the network-idle wait itself.
	SettleTimeout time.Duration

	// Retry governs transient step failures.
	Retry retry.Policy
}

// DefaultConfig returns the production execution discipline: 180s per task,
// 30s per step, up to 3 attempts with exponential backoff.
func DefaultConfig() Config {
	return Config{
		TaskTimeout:   180 * time.Second,
		StepTimeout:   30 * time.Second,
		SettleDelay:   800 * time.Millisecond,
		SettleTimeout: 5 * time.Second,
		Retry: retry.Policy{
			MaxRetries: 2,
			BaseDelay:  time.Second,
			MaxDelay:   8 * time.Second,
		},
	}
}

// DriverFactory acquires a browser session, restoring the given storage
// snapshot when non-nil. The engine uses it at initialization and again for
// transparent re-initialization after a page crash.
type DriverFactory func(ctx context.Context, storageState []byte) (browser.Driver, error)

// Params wires an engine's collaborators. Validator, Memory, NewDriver, and
// Logger are required; Vision and Sessions are optional.
type Params struct {
	Validator *intent.Validator
	Memory    memory.Store
	Vision    vision.Provider
	Sessions  browser.SessionStore
	NewDriver DriverFactory
	Logger    *logging.Logger
	Config    Config
}

// Engine executes one task plan. An instance owns exactly one browser
// session for its lifetime and must not be shared across concurrent tasks;
// run independent instances for parallelism. Only the failure-memory store
// is shared between instances.
type Engine struct {
	cfg       Config
	validator *intent.Validator
	memory    memory.Store
	vision    vision.Provider
	sessions  browser.SessionStore
	newDriver DriverFactory
	log       *logging.Logger

	mu              sync.Mutex
	state           State
	driver          browser.Driver
	userID          string
	domain          string
	results         step.Trace
	totalCost       float64
	actionsExecuted int

	cleanupOnce sync.Once
}

// New constructs an engine. The engine never mutates the locked intent; the
// caller owns any cross-task counters.
func New(p Params) (*Engine, error) {
	if p.Validator == nil {
		return nil, fmt.Errorf("engine requires a validator")
	}
	if p.Memory == nil {
		return nil, fmt.Errorf("engine requires a failure memory store")
	}
	if p.NewDriver == nil {
		return nil, fmt.Errorf("engine requires a driver factory")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("engine requires a logger")
	}
	cfg := p.Config
	if cfg.TaskTimeout <= 0 || cfg.StepTimeout <= 0 {
		defaults := DefaultConfig()
		if cfg.TaskTimeout <= 0 {
			cfg.TaskTimeout = defaults.TaskTimeout
		}
		if cfg.StepTimeout <= 0 {
			cfg.StepTimeout = defaults.StepTimeout
		}
		if cfg.SettleDelay <= 0 {
			cfg.SettleDelay = defaults.SettleDelay
		}
		if cfg.SettleTimeout <= 0 {
			cfg.SettleTimeout = defaults.SettleTimeout
		}
	}

	return &Engine{
		cfg:       cfg,
		validator: p.Validator,
		memory:    p.Memory,
		vision:    p.Vision,
		sessions:  p.Sessions,
		newDriver: p.NewDriver,
		log:       p.Logger,
		state:     StateUninitialized,
	}, nil
}

// Initialize acquires the browser session, restoring a saved snapshot for
// the user and domain when one exists.
func (e *Engine) Initialize(ctx context.Context, userID, domain string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateUninitialized {
		return fmt.Errorf("engine already initialized (state %s)", e.state)
	}

	e.userID = userID
	e.domain = domain

	driver, err := e.acquireDriver(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize browser session: %w", err)
	}

	e.driver = driver
	e.state = StateInitialized
	e.log.Infof("session initialized user=%s domain=%s", userID, domain)
	return nil
}

// acquireDriver creates a driver, restoring the stored session snapshot when
// available. A snapshot load failure is logged and ignored: a fresh session
// is always preferable to no session.
func (e *Engine) acquireDriver(ctx context.Context) (browser.Driver, error) {
	var snapshot []byte
	if e.sessions != nil && e.userID != "" && e.domain != "" {
		loaded, err := e.sessions.LoadSession(ctx, e.userID, e.domain)
		if err != nil {
			e.log.Warnf("failed to load session snapshot: %v", err)
		} else {
			snapshot = loaded
		}
	}
	return e.newDriver(ctx, snapshot)
}

// Results returns a copy of the execution trace so far.
func (e *Engine) Results() step.Trace {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(step.Trace, len(e.results))
	copy(out, e.results)
	return out
}

// TotalCost returns the accumulated vision-verification spend.
func (e *Engine) TotalCost() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalCost
}

// CurrentURL returns the browser's current URL, or "" before initialization.
func (e *Engine) CurrentURL() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.driver == nil {
		return ""
	}
	return e.driver.CurrentURL()
}

// State returns the engine's lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) appendResult(r step.Result) {
	e.mu.Lock()
	e.results = append(e.results, r)
	e.mu.Unlock()
}

func (e *Engine) addCost(c float64) {
	e.mu.Lock()
	e.totalCost += c
	e.mu.Unlock()
}

// Cleanup saves the session snapshot and releases browser resources. It is
// idempotent and safe to call at any point in the lifecycle.
func (e *Engine) Cleanup() {
	e.cleanupOnce.Do(func() {
		e.mu.Lock()
		driver := e.driver
		userID, domain := e.userID, e.domain
		e.state = StateCleaned
		e.mu.Unlock()

		if driver == nil {
			return
		}

		if e.sessions != nil && userID != "" && domain != "" && driver.IsAlive() {
			if snapshot, err := driver.StorageState(); err != nil {
				e.log.Warnf("failed to capture session snapshot: %v", err)
			} else {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := e.sessions.SaveSession(ctx, userID, domain, snapshot); err != nil {
					e.log.Warnf("failed to save session snapshot: %v", err)
				}
				cancel()
			}
		}

		if err := driver.Close(); err != nil {
			e.log.Warnf("failed to close browser session: %v", err)
		}
		e.log.Infof("session cleaned up user=%s domain=%s", userID, domain)
	})
}

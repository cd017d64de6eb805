package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/memory"
	"github.com/entrhq/webpilot/pkg/retry"
	"github.com/entrhq/webpilot/pkg/step"
)

// Outcome is the aggregate result of one plan execution. The full per-step
// trace remains available via Results even on failure.
type Outcome struct {
	Success bool   `json:"success"`
	Data    string `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ExecuteSteps runs the plan in order under the task-level timeout. A step
// that exhausts its retries stops the plan; the accumulated trace is kept for
// diagnosis. On task timeout the engine forces cleanup and reports failure.
func (e *Engine) ExecuteSteps(ctx context.Context, steps []step.Step) Outcome {
	e.mu.Lock()
	if e.state != StateInitialized {
		state := e.state
		e.mu.Unlock()
		return Outcome{Success: false, Error: fmt.Sprintf("engine not ready to execute (state %s)", state)}
	}
	e.state = StateRunning
	e.mu.Unlock()

	taskCtx, cancel := context.WithTimeout(ctx, e.cfg.TaskTimeout)
	defer cancel()

	done := make(chan Outcome, 1)
	go func() {
		done <- e.runSteps(taskCtx, steps)
	}()

	select {
	case out := <-done:
		if out.Success {
			e.setState(StateCompleted)
		} else {
			e.setState(StateFailed)
		}
		return out
	case <-taskCtx.Done():
		e.log.Errorf("task deadline exceeded after %s, forcing cleanup", e.cfg.TaskTimeout)
		e.Cleanup()
		e.setState(StateFailed)
		return Outcome{
			Success: false,
			Error:   fmt.Sprintf("%v after %s", ErrTaskTimeout, e.cfg.TaskTimeout),
		}
	}
}

func (e *Engine) runSteps(ctx context.Context, steps []step.Step) Outcome {
	for i, st := range steps {
		if err := st.Validate(); err != nil {
			res := step.Result{Action: st.Action, Error: err.Error()}
			e.appendResult(res)
			return Outcome{Success: false, Error: fmt.Sprintf("step %d is invalid: %v", i+1, err)}
		}

		li := e.validator.Intent()
		if li.Expired(time.Now()) {
			msg := fmt.Sprintf("%v: intent duration budget exhausted", ErrValidationBlocked)
			e.appendResult(step.Result{Action: st.Action, Error: msg})
			return Outcome{Success: false, Error: msg}
		}
		if li.ActionBudgetExceeded(e.executedCount()) {
			msg := fmt.Sprintf("%v: intent action budget exhausted", ErrValidationBlocked)
			e.appendResult(step.Result{Action: st.Action, Error: msg})
			return Outcome{Success: false, Error: msg}
		}

		if err := e.ensureAlive(ctx); err != nil {
			msg := fmt.Sprintf("%v: %v", ErrPageCrashed, err)
			e.appendResult(step.Result{Action: st.Action, Error: msg})
			return Outcome{Success: false, Error: msg}
		}

		// Substitute a learned fix before validation so the validator sees
		// the selector that will actually run.
		original := st
		var learnedFrom *memory.Record
		if st.Action == step.KindClick || st.Action == step.KindFill {
			if rec := e.learnedFix(ctx, st); rec != nil {
				learnedFrom = rec
				st = st.WithSelector(rec.SolutionSelector)
				e.log.Infof("substituting learned selector %q for %q (%s, rate %.1f)",
					rec.SolutionSelector, original.Selector(), st.Action, rec.SuccessRate)
			}
		}

		if decision := e.validator.Validate(st.Action, e.targetURL(st)); !decision.Approved {
			msg := fmt.Sprintf("%v: %s", ErrValidationBlocked, decision.Reason)
			e.log.Warnf("step %d rejected: %s", i+1, decision.Reason)
			e.appendResult(step.Result{Action: st.Action, Error: msg})
			return Outcome{Success: false, Error: msg}
		}

		res := e.executeWithRetries(ctx, st)
		e.countAction()
		e.appendResult(res)

		if !res.Success {
			e.feedbackFailure(ctx, original, st, res)
			if learnedFrom != nil {
				e.observeSolution(ctx, learnedFrom.ID, false)
			}
			return Outcome{Success: false, Error: res.Error}
		}

		e.feedbackSuccess(ctx, original, st, res)
		if learnedFrom != nil {
			e.observeSolution(ctx, learnedFrom.ID, true)
		}
	}

	data := e.Results().LastData()
	if data == "" {
		data = "Task completed successfully"
	}
	return Outcome{Success: true, Data: data}
}

// executeWithRetries dispatches the step, retrying transient failures with
// exponential backoff. Verify and wait steps get a single attempt, and a
// failed outcome verification is never retried: re-submitting a form whose
// result is already in doubt could double the side effect.
func (e *Engine) executeWithRetries(ctx context.Context, st step.Step) step.Result {
	policy := e.cfg.Retry
	if st.Action == step.KindVerify || st.Action == step.KindWait {
		policy = retry.Policy{}
	}

	var res step.Result
	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			e.log.Infof("retrying %s (attempt %d)", st.Action, attempt)
			if err := e.ensureAlive(ctx); err != nil {
				return err
			}
		}
		res = e.executeStep(ctx, st)
		if res.Success {
			return nil
		}
		if strings.Contains(res.Error, ErrVerificationFailed.Error()) {
			return retry.Permanent(errors.New(res.Error))
		}
		return errors.New(res.Error)
	})
	if err != nil && res.Error == "" {
		res = step.Result{Action: st.Action, Error: err.Error()}
	}
	return res
}

// executeStep runs one handler dispatch under the per-step timeout and
// captures screenshot evidence. The timeout bounds the step's logical
// outcome; the driver call carries its own deadline so it does not linger
// far beyond it.
func (e *Engine) executeStep(ctx context.Context, st step.Step) step.Result {
	start := time.Now()
	res := step.Result{Action: st.Action}

	type dispatched struct {
		data   string
		method string
		err    error
	}

	stepCtx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
	defer cancel()

	ch := make(chan dispatched, 1)
	go func() {
		data, method, err := e.dispatch(stepCtx, st)
		ch <- dispatched{data: data, method: method, err: err}
	}()

	select {
	case d := <-ch:
		res.Data = d.data
		res.Method = d.method
		if d.err != nil {
			res.Error = d.err.Error()
		} else {
			res.Success = true
		}
	case <-stepCtx.Done():
		res.Error = fmt.Sprintf("%v: step exceeded %s budget", retry.ErrTimeout, e.cfg.StepTimeout)
	}

	if res.Success && settles(st.Action) {
		e.settle(ctx)
	}

	if wantsEvidence(st.Action) {
		if shot := e.captureEvidence(ctx); shot != "" {
			res.Screenshot = shot
		}
	}

	res.Duration = time.Since(start)
	return res
}

// settles reports whether the action changes page state and needs a
// network-idle wait plus a settle delay before the next step.
func settles(kind step.Kind) bool {
	switch kind {
	case step.KindClick, step.KindFill, step.KindSubmit, step.KindSelect:
		return true
	default:
		return false
	}
}

// wantsEvidence reports whether the step gets a post-action screenshot.
func wantsEvidence(kind step.Kind) bool {
	return kind != step.KindScreenshot && kind != step.KindWait
}

func (e *Engine) settle(ctx context.Context) {
	driver := e.currentDriver()
	if driver == nil {
		return
	}
	err := retry.WithTimeout(ctx, e.cfg.SettleTimeout, func(ctx context.Context) error {
		return driver.WaitForNetworkIdle(ctx)
	})
	if err != nil {
		e.log.Debugf("network idle wait ended early: %v", err)
	}
	select {
	case <-time.After(e.cfg.SettleDelay):
	case <-ctx.Done():
	}
}

func (e *Engine) captureEvidence(ctx context.Context) string {
	driver := e.currentDriver()
	if driver == nil {
		return ""
	}
	shot, err := driver.Screenshot(ctx)
	if err != nil {
		e.log.Debugf("evidence screenshot failed: %v", err)
		return ""
	}
	return base64.StdEncoding.EncodeToString(shot)
}

// ensureAlive re-initializes a fresh session for the same user and domain
// when the page has crashed or closed, transparently to the caller.
func (e *Engine) ensureAlive(ctx context.Context) error {
	if driver := e.currentDriver(); driver != nil && driver.IsAlive() {
		return nil
	}

	e.log.Warnf("browser session lost, re-initializing")
	if old := e.currentDriver(); old != nil {
		_ = old.Close()
	}

	driver, err := e.acquireDriver(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover browser session: %w", err)
	}

	e.mu.Lock()
	e.driver = driver
	e.mu.Unlock()
	return nil
}

func (e *Engine) currentDriver() browser.Driver {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.driver == nil {
		return nil
	}
	return e.driver
}

func (e *Engine) executedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.actionsExecuted
}

func (e *Engine) countAction() {
	e.mu.Lock()
	e.actionsExecuted++
	e.mu.Unlock()
}

// targetURL returns the URL the step will act against: the navigation target
// for navigate steps, the current page otherwise.
func (e *Engine) targetURL(st step.Step) string {
	if p, ok := st.Params.(step.NavigateParams); ok {
		return p.URL
	}
	return e.CurrentURL()
}

// currentHost returns the hostname of the current page, or "" when unknown.
func (e *Engine) currentHost() string {
	raw := e.CurrentURL()
	if raw == "" {
		return ""
	}
	host := raw
	if idx := strings.Index(host, "://"); idx >= 0 {
		host = host[idx+3:]
	}
	if idx := strings.IndexAny(host, "/:?"); idx >= 0 {
		host = host[:idx]
	}
	return host
}

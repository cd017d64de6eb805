package engine

import (
	"context"
	"strings"

	"github.com/entrhq/webpilot/pkg/executor"
	"github.com/entrhq/webpilot/pkg/memory"
	"github.com/entrhq/webpilot/pkg/step"
)

// learnable reports whether the action participates in failure learning.
func learnable(kind step.Kind) bool {
	return kind == step.KindClick || kind == step.KindFill
}

// learnedFix looks up a stored solution that differs from the step's own
// selector. The store is advisory: any lookup error is logged and treated as
// "no learned data".
func (e *Engine) learnedFix(ctx context.Context, st step.Step) *memory.Record {
	host := e.currentHost()
	if host == "" {
		return nil
	}

	rec, err := e.memory.Lookup(ctx, memory.Query{
		SiteDomain: host,
		ActionType: string(st.Action),
		Selector:   st.Selector(),
	})
	if err != nil {
		e.log.Warnf("failure memory lookup failed: %v", err)
		return nil
	}
	if !rec.HasSolution() {
		return nil
	}
	if rec.SolutionSelector == "" || rec.SolutionSelector == st.Selector() {
		return nil
	}
	if !memory.ValidSelector(rec.SolutionSelector) {
		return nil
	}
	return rec
}

// feedbackSuccess records a learned solution when a fallback strategy, not
// the primary one, carried the step.
func (e *Engine) feedbackSuccess(ctx context.Context, original, executed step.Step, res step.Result) {
	if !learnable(executed.Action) || res.Method == "" {
		return
	}
	if executor.Method(res.Method).Primary() {
		return
	}

	err := e.memory.LearnSolution(ctx, memory.Learned{
		SiteDomain:       e.currentHost(),
		ActionType:       string(executed.Action),
		OriginalSelector: original.Selector(),
		OriginalMethod:   string(executor.MethodCSSSelector),
		Err:              "primary strategy did not resolve the element",
		Solution: memory.Solution{
			Method:   res.Method,
			Selector: executed.Selector(),
		},
	})
	if err != nil {
		e.log.Warnf("failed to record learned solution: %v", err)
		return
	}
	e.log.Infof("learned solution for %s on %s: method=%s", executed.Action, e.currentHost(), res.Method)
}

// feedbackFailure records the exhausted step in failure memory. Validation
// rejections never reach here; they are terminal before dispatch.
func (e *Engine) feedbackFailure(ctx context.Context, original, executed step.Step, res step.Result) {
	if executed.Action == step.KindVerify || executed.Action == step.KindWait {
		return
	}

	errType := "execution"
	if containsTimeout(res.Error) {
		errType = "timeout"
	}

	_, err := e.memory.RecordFailure(ctx, memory.Failure{
		SiteDomain: e.currentHost(),
		ActionType: string(executed.Action),
		Selector:   original.Selector(),
		Method:     res.Method,
		Err:        res.Error,
		ErrorType:  errType,
	})
	if err != nil {
		e.log.Warnf("failed to record failure: %v", err)
	}
}

// observeSolution feeds usage feedback for a substituted learned fix so its
// success rate tracks reality.
func (e *Engine) observeSolution(ctx context.Context, id int64, worked bool) {
	var err error
	if worked {
		err = e.memory.RecordSuccess(ctx, id)
	} else {
		err = e.memory.RecordSolutionFailed(ctx, id)
	}
	if err != nil {
		e.log.Warnf("failed to update solution record %d: %v", id, err)
	}
}

// containsTimeout classifies an error message as a timeout.
func containsTimeout(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "timed out") || strings.Contains(msg, "timeout")
}

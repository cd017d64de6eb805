package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/webpilot/pkg/browser/browsertest"
	"github.com/entrhq/webpilot/pkg/memory"
	"github.com/entrhq/webpilot/pkg/step"
	"github.com/entrhq/webpilot/pkg/vision"
)

func TestExecuteStepsHappyPath(t *testing.T) {
	h := newHarness()
	eng := h.engine(t)

	out := eng.ExecuteSteps(context.Background(), []step.Step{
		step.New(step.NavigateParams{URL: "https://shop.example.com"}),
		step.New(step.ClickParams{Selector: "button.add-to-cart"}),
		step.New(step.ExtractParams{Selector: ".order-id"}),
	})

	require.True(t, out.Success, out.Error)
	assert.Equal(t, StateCompleted, eng.State())

	results := eng.Results()
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Success)
		assert.NotEmpty(t, r.Screenshot)
	}
	assert.Equal(t, "css_selector", results[1].Method)
}

func TestExecuteStepsRequiresInitialization(t *testing.T) {
	h := newHarness()
	eng := h.engine(t)

	out := eng.ExecuteSteps(context.Background(), []step.Step{
		step.New(step.ClickParams{Selector: "a"}),
	})
	require.True(t, out.Success)

	// A second run on the same instance is rejected.
	out = eng.ExecuteSteps(context.Background(), []step.Step{
		step.New(step.ClickParams{Selector: "a"}),
	})
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "not ready")
}

func TestFallbackRecordsLearnedSolution(t *testing.T) {
	d := &browsertest.Driver{
		URL:     "https://shop.example.com/cart",
		ClickFn: func(ctx context.Context, selector string) error { return errors.New("no element matches") },
	}
	h := newHarness(d)
	eng := h.engine(t)

	out := eng.ExecuteSteps(context.Background(), []step.Step{
		step.New(step.ClickParams{Selector: "button.buy", Text: "Buy now"}),
	})
	require.True(t, out.Success, out.Error)

	require.Len(t, h.store.learned, 1)
	l := h.store.learned[0]
	assert.Equal(t, "shop.example.com", l.SiteDomain)
	assert.Equal(t, "click", l.ActionType)
	assert.Equal(t, "button.buy", l.OriginalSelector)
	assert.Equal(t, "text_match", l.Solution.Method)
}

func TestPrimarySuccessLearnsNothing(t *testing.T) {
	h := newHarness()
	eng := h.engine(t)

	out := eng.ExecuteSteps(context.Background(), []step.Step{
		step.New(step.ClickParams{Selector: "button.buy"}),
	})
	require.True(t, out.Success)
	assert.Empty(t, h.store.learned)
	assert.Empty(t, h.store.failures)
}

func TestRetryRecoversTransientFailure(t *testing.T) {
	var calls atomic.Int32
	d := &browsertest.Driver{
		URL: "https://shop.example.com",
		ClickFn: func(ctx context.Context, selector string) error {
			if calls.Add(1) < 3 {
				return errors.New("element is detached")
			}
			return nil
		},
	}
	h := newHarness(d)
	eng := h.engine(t)

	out := eng.ExecuteSteps(context.Background(), []step.Step{
		step.New(step.ClickParams{Selector: "button.buy"}),
	})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, int32(3), calls.Load())

	// A recovered step is not a failure worth remembering.
	assert.Empty(t, h.store.failures)
}

func TestExhaustedRetriesRecordFailure(t *testing.T) {
	d := &browsertest.Driver{
		URL:     "https://shop.example.com",
		ClickFn: func(ctx context.Context, selector string) error { return errors.New("no element matches") },
		ClickJSFn: func(ctx context.Context, selector string) error {
			return errors.New("no element matches")
		},
	}
	h := newHarness(d)
	eng := h.engine(t)

	out := eng.ExecuteSteps(context.Background(), []step.Step{
		step.New(step.ClickParams{Selector: "button.gone"}),
		step.New(step.ExtractParams{}),
	})
	require.False(t, out.Success)
	assert.Equal(t, StateFailed, eng.State())

	// Execution stops at the failed step; extract never runs.
	require.Len(t, eng.Results(), 1)

	require.Len(t, h.store.failures, 1)
	f := h.store.failures[0]
	assert.Equal(t, "click", f.ActionType)
	assert.Equal(t, "button.gone", f.Selector)
	assert.Equal(t, "execution", f.ErrorType)
}

func TestStepTimeoutClassifiedAsTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	d := &browsertest.Driver{
		URL: "https://shop.example.com",
		ClickFn: func(ctx context.Context, selector string) error {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return errors.New("interrupted")
		},
	}
	h := newHarness(d)
	h.cfg.StepTimeout = 30 * time.Millisecond
	h.cfg.Retry.MaxRetries = 0
	eng := h.engine(t)

	start := time.Now()
	out := eng.ExecuteSteps(context.Background(), []step.Step{
		step.New(step.ClickParams{Selector: "button.slow"}),
	})
	require.False(t, out.Success)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, h.store.failures, 1)
	assert.Equal(t, "timeout", h.store.failures[0].ErrorType)
}

func TestTaskTimeoutForcesCleanup(t *testing.T) {
	h := newHarness()
	h.cfg.TaskTimeout = 50 * time.Millisecond
	eng := h.engine(t)

	out := eng.ExecuteSteps(context.Background(), []step.Step{
		step.New(step.WaitParams{Duration: 10 * time.Second}),
	})
	require.False(t, out.Success)
	assert.Contains(t, out.Error, "task timed out")
	assert.Equal(t, StateFailed, eng.State())
	assert.False(t, h.drivers[0].IsAlive())
}

func TestValidationBlocksForeignDomain(t *testing.T) {
	h := newHarness()
	h.domains = []string{"shop.example.com"}
	eng := h.engine(t)

	out := eng.ExecuteSteps(context.Background(), []step.Step{
		step.New(step.NavigateParams{URL: "https://other-domain.com/steal"}),
	})
	require.False(t, out.Success)
	assert.Contains(t, out.Error, "other-domain.com")

	// The rejected navigation never reaches the browser, and a policy
	// rejection is not an execution failure to learn from.
	for _, op := range h.drivers[0].Ops() {
		assert.NotEqual(t, "Navigate", op)
	}
	assert.Empty(t, h.store.failures)
}

func TestValidationBlocksForbiddenAction(t *testing.T) {
	h := newHarness()
	h.actions = []step.Kind{step.KindNavigate, step.KindClick}
	eng := h.engine(t)

	out := eng.ExecuteSteps(context.Background(), []step.Step{
		step.New(step.FillParams{Selector: "input.card", Value: "4111"}),
	})
	require.False(t, out.Success)
	assert.Contains(t, out.Error, "fill")
}

func TestActionBudgetEnforced(t *testing.T) {
	h := newHarness()
	h.maxActions = 1
	eng := h.engine(t)

	out := eng.ExecuteSteps(context.Background(), []step.Step{
		step.New(step.ClickParams{Selector: "a.one"}),
		step.New(step.ClickParams{Selector: "a.two"}),
	})
	require.False(t, out.Success)
	assert.Contains(t, out.Error, "action budget")

	// The first step ran; the second was blocked before dispatch.
	results := eng.Results()
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
}

func TestLearnedFixSubstitution(t *testing.T) {
	var clicked []string
	d := &browsertest.Driver{
		URL: "https://shop.example.com",
		ClickFn: func(ctx context.Context, selector string) error {
			clicked = append(clicked, selector)
			return nil
		},
	}
	h := newHarness(d)
	h.store.lookupFn = func(q memory.Query) (*memory.Record, error) {
		if q.Selector != "button.old" {
			return nil, nil
		}
		return &memory.Record{
			ID:               7,
			SiteDomain:       q.SiteDomain,
			ActionType:       q.ActionType,
			OriginalSelector: q.Selector,
			SolutionMethod:   "css_selector",
			SolutionSelector: "button.new",
			SuccessRate:      92,
		}, nil
	}
	eng := h.engine(t)

	out := eng.ExecuteSteps(context.Background(), []step.Step{
		step.New(step.ClickParams{Selector: "button.old"}),
	})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, []string{"button.new"}, clicked)
	assert.Equal(t, []int64{7}, h.store.succeeded)
	assert.Empty(t, h.store.failedIDs)
}

func TestLearnedFixFailureIsPenalized(t *testing.T) {
	d := &browsertest.Driver{
		URL:       "https://shop.example.com",
		ClickFn:   func(ctx context.Context, selector string) error { return errors.New("nope") },
		ClickJSFn: func(ctx context.Context, selector string) error { return errors.New("nope") },
	}
	h := newHarness(d)
	h.store.lookupFn = func(q memory.Query) (*memory.Record, error) {
		return &memory.Record{
			ID:               9,
			SolutionMethod:   "css_selector",
			SolutionSelector: "button.learned",
			SuccessRate:      80,
		}, nil
	}
	eng := h.engine(t)

	out := eng.ExecuteSteps(context.Background(), []step.Step{
		step.New(step.ClickParams{Selector: "button.old"}),
	})
	require.False(t, out.Success)
	assert.Equal(t, []int64{9}, h.store.failedIDs)

	// The failure is recorded under the plan's own selector, not the
	// substituted one.
	require.Len(t, h.store.failures, 1)
	assert.Equal(t, "button.old", h.store.failures[0].Selector)
}

func TestLookupErrorIsAdvisory(t *testing.T) {
	h := newHarness()
	h.store.lookupFn = func(q memory.Query) (*memory.Record, error) {
		return nil, errors.New("database locked")
	}
	eng := h.engine(t)

	out := eng.ExecuteSteps(context.Background(), []step.Step{
		step.New(step.ClickParams{Selector: "button.buy"}),
	})
	assert.True(t, out.Success, out.Error)
}

func TestVerifyGetsSingleAttempt(t *testing.T) {
	var checks atomic.Int32
	d := &browsertest.Driver{
		URL: "https://shop.example.com",
		IsVisibleFn: func(ctx context.Context, selector string) (bool, error) {
			checks.Add(1)
			return false, nil
		},
	}
	h := newHarness(d)
	eng := h.engine(t)

	out := eng.ExecuteSteps(context.Background(), []step.Step{
		step.New(step.VerifyParams{Selector: ".confirmation"}),
	})
	require.False(t, out.Success)
	assert.Equal(t, int32(1), checks.Load())

	// Verification results never feed the learning store.
	assert.Empty(t, h.store.failures)
}

func TestCrashRecoveryMidPlan(t *testing.T) {
	first := &browsertest.Driver{URL: "https://shop.example.com"}
	second := &browsertest.Driver{URL: "https://shop.example.com"}
	first.ClickFn = func(ctx context.Context, selector string) error {
		first.Kill()
		return nil
	}
	h := newHarness(first, second)
	eng := h.engine(t)

	out := eng.ExecuteSteps(context.Background(), []step.Step{
		step.New(step.ClickParams{Selector: "a.one"}),
		step.New(step.ClickParams{Selector: "a.two"}),
	})
	require.True(t, out.Success, out.Error)

	// The second step ran on a fresh session from the same factory.
	assert.Equal(t, 2, h.factoryCalls())
	assert.Equal(t, []string{"Click"}, opsNamed(second.Ops(), "Click"))
}

func TestSubmitVerificationPositiveIndicator(t *testing.T) {
	v := &fakeVision{reply: vision.Reply{Content: "YES"}}
	d := &browsertest.Driver{
		URL:  "https://shop.example.com",
		HTML: "<html><body><h1>Thank you for your order</h1></body></html>",
	}
	h := newHarness(d)
	h.vision = v
	eng := h.engine(t)

	out := eng.ExecuteSteps(context.Background(), []step.Step{
		step.New(step.SubmitParams{Selector: "button.place-order"}).WithExpected("order confirmed"),
	})
	require.True(t, out.Success, out.Error)

	// Clear page evidence settles it without spending on vision.
	assert.Equal(t, 0, v.callCount())
}

func TestSubmitVerificationNegativeIndicator(t *testing.T) {
	d := &browsertest.Driver{
		URL:  "https://shop.example.com",
		HTML: "<html><body><p>Your card was declined</p></body></html>",
	}
	h := newHarness(d)
	h.vision = &fakeVision{reply: vision.Reply{Content: "YES"}}
	eng := h.engine(t)

	out := eng.ExecuteSteps(context.Background(), []step.Step{
		step.New(step.SubmitParams{Selector: "button.place-order"}).WithExpected("order confirmed"),
	})
	require.False(t, out.Success)
	assert.Contains(t, out.Error, "verification failed")
}

func TestSubmitVerificationAmbiguousEscalatesToVision(t *testing.T) {
	v := &fakeVision{reply: vision.Reply{Content: "YES - the order number is visible", Cost: 0.0125}}
	d := &browsertest.Driver{
		URL:  "https://shop.example.com",
		HTML: "<html><body><p>Reference 84113</p></body></html>",
	}
	h := newHarness(d)
	h.vision = v
	eng := h.engine(t)

	out := eng.ExecuteSteps(context.Background(), []step.Step{
		step.New(step.SubmitParams{Selector: "button.place-order"}).WithExpected("order confirmed"),
	})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, 1, v.callCount())
	assert.InDelta(t, 0.0125, eng.TotalCost(), 0.0001)
}

func TestSubmitVerificationVisionSaysNo(t *testing.T) {
	v := &fakeVision{reply: vision.Reply{Content: "NO - an error dialog is open"}}
	d := &browsertest.Driver{
		URL:  "https://shop.example.com",
		HTML: "<html><body><p>Reference 84113</p></body></html>",
	}
	h := newHarness(d)
	h.vision = v
	eng := h.engine(t)

	out := eng.ExecuteSteps(context.Background(), []step.Step{
		step.New(step.SubmitParams{Selector: "button.place-order"}).WithExpected("order confirmed"),
	})
	require.False(t, out.Success)
	assert.Contains(t, out.Error, "verification failed")
}

func TestSubmitVerificationFailsClosedWithoutVision(t *testing.T) {
	d := &browsertest.Driver{
		URL:  "https://shop.example.com",
		HTML: "<html><body><p>Reference 84113</p></body></html>",
	}
	h := newHarness(d)
	eng := h.engine(t)

	out := eng.ExecuteSteps(context.Background(), []step.Step{
		step.New(step.SubmitParams{Selector: "button.place-order"}).WithExpected("order confirmed"),
	})
	require.False(t, out.Success)
	assert.Contains(t, out.Error, "verification failed")
}

func TestSubmitVerificationRateLimitedFailsClosed(t *testing.T) {
	v := &fakeVision{err: vision.ErrRateLimited}
	d := &browsertest.Driver{
		URL:  "https://shop.example.com",
		HTML: "<html><body><p>Reference 84113</p></body></html>",
	}
	h := newHarness(d)
	h.vision = v
	eng := h.engine(t)

	out := eng.ExecuteSteps(context.Background(), []step.Step{
		step.New(step.SubmitParams{Selector: "button.place-order"}).WithExpected("order confirmed"),
	})
	require.False(t, out.Success)
	assert.Contains(t, out.Error, "rate limited")
}

func opsNamed(ops []string, name string) []string {
	var out []string
	for _, op := range ops {
		if op == name {
			out = append(out, op)
		}
	}
	return out
}

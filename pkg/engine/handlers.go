package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/webpilot/pkg/executor"
	"github.com/entrhq/webpilot/pkg/step"
)

// dispatch routes the step to its handler. Returns the step's output data
// and the execution method that succeeded (for actions with fallback
// strategies).
func (e *Engine) dispatch(ctx context.Context, st step.Step) (data, method string, err error) {
	driver := e.currentDriver()
	if driver == nil {
		return "", "", fmt.Errorf("no browser session")
	}

	switch p := st.Params.(type) {
	case step.NavigateParams:
		if err := driver.Navigate(ctx, p.URL); err != nil {
			return "", "", err
		}
		if dismissed := driver.DismissObstacles(ctx); dismissed > 0 {
			e.log.Infof("dismissed %d page obstacle(s) after navigation", dismissed)
		}
		return driver.CurrentURL(), "", nil

	case step.ClickParams:
		m, err := executor.ExecuteClick(ctx, driver, p)
		return "", string(m), err

	case step.FillParams:
		m, err := executor.ExecuteFill(ctx, driver, p)
		return "", string(m), err

	case step.SelectParams:
		if err := driver.SelectOption(ctx, p.Selector, p.Value); err != nil {
			return "", "", err
		}
		return "", string(executor.MethodCSSSelector), nil

	case step.SubmitParams:
		return e.handleSubmit(ctx, p, st.Expected)

	case step.ExtractParams:
		return e.handleExtract(ctx, p)

	case step.VerifyParams:
		return e.handleVerify(ctx, p)

	case step.ScrollParams:
		direction := p.Direction
		if direction == "" {
			direction = "down"
		}
		return "", "", driver.Scroll(ctx, direction, p.Pixels)

	case step.WaitParams:
		return "", "", e.handleWait(ctx, p)

	case step.ScreenshotParams:
		shot, err := driver.Screenshot(ctx)
		if err != nil {
			return "", "", err
		}
		return base64.StdEncoding.EncodeToString(shot), "", nil

	default:
		return "", "", fmt.Errorf("no handler for action %q", st.Action)
	}
}

// handleSubmit clicks the submit control, waits for the page to settle, and
// runs outcome verification when the step carries an expected criterion.
func (e *Engine) handleSubmit(ctx context.Context, p step.SubmitParams, expected string) (string, string, error) {
	driver := e.currentDriver()
	if err := driver.Click(ctx, p.Selector); err != nil {
		return "", "", fmt.Errorf("submit click failed: %w", err)
	}
	e.settle(ctx)

	if expected != "" {
		if err := e.verifyOutcome(ctx, expected); err != nil {
			return "", string(executor.MethodCSSSelector), err
		}
		return fmt.Sprintf("verified: %s", expected), string(executor.MethodCSSSelector), nil
	}
	return "", string(executor.MethodCSSSelector), nil
}

// handleExtract reads text from a selector, or the visible page text when no
// selector is given.
func (e *Engine) handleExtract(ctx context.Context, p step.ExtractParams) (string, string, error) {
	driver := e.currentDriver()
	if p.Selector != "" {
		text, err := driver.TextContent(ctx, p.Selector)
		if err != nil {
			return "", "", err
		}
		return strings.TrimSpace(text), "", nil
	}

	html, err := driver.Content(ctx)
	if err != nil {
		return "", "", err
	}
	return extractVisibleText(html), "", nil
}

// handleVerify checks element visibility or body-text containment. It never
// retries and never feeds the learning store.
func (e *Engine) handleVerify(ctx context.Context, p step.VerifyParams) (string, string, error) {
	driver := e.currentDriver()

	if p.Selector != "" {
		visible, err := driver.IsVisible(ctx, p.Selector)
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrVerificationFailed, err)
		}
		if !visible {
			return "", "", fmt.Errorf("%w: element %q is not visible", ErrVerificationFailed, p.Selector)
		}
		return fmt.Sprintf("element %q is visible", p.Selector), "", nil
	}

	html, err := driver.Content(ctx)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	text := strings.ToLower(extractVisibleText(html))
	if !strings.Contains(text, strings.ToLower(p.Condition)) {
		return "", "", fmt.Errorf("%w: page does not contain %q", ErrVerificationFailed, p.Condition)
	}
	return fmt.Sprintf("page contains %q", p.Condition), "", nil
}

func (e *Engine) handleWait(ctx context.Context, p step.WaitParams) error {
	if p.Selector != "" {
		return e.currentDriver().WaitForSelector(ctx, p.Selector)
	}
	d := p.Duration
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

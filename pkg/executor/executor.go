// Package executor implements per-action execution strategies. Click and fill
// actions try an ordered list of resolution methods against the page; the
// first one that succeeds wins, and the engine records any non-primary winner
// as a learned solution for the site.
package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/step"
)

// Method names an execution strategy. The primary method for selector-driven
// actions is css_selector; everything else is a fallback worth learning.
type Method string

const (
	MethodCSSSelector Method = "css_selector"
	MethodTextMatch   Method = "text_match"
	MethodRoleMatch   Method = "role_match"
	MethodJSClick     Method = "js_click"
	MethodLabelMatch  Method = "label_match"
	MethodJSFill      Method = "js_fill"
)

// Primary reports whether the method is the default strategy for its action,
// i.e. not a learned fallback.
func (m Method) Primary() bool {
	return m == MethodCSSSelector
}

// strategy is one attempt at performing an action.
type strategy struct {
	method Method
	run    func(ctx context.Context) error
}

// ExecuteClick tries the click strategies in order: CSS selector, visible
// text, ARIA role, then a scripted click. Returns the winning method, or the
// collected attempt errors when everything fails.
func ExecuteClick(ctx context.Context, d browser.Driver, p step.ClickParams) (Method, error) {
	var strategies []strategy
	if p.Selector != "" {
		strategies = append(strategies, strategy{MethodCSSSelector, func(ctx context.Context) error {
			return d.Click(ctx, p.Selector)
		}})
	}
	if p.Text != "" {
		strategies = append(strategies, strategy{MethodTextMatch, func(ctx context.Context) error {
			return d.ClickByText(ctx, p.Text)
		}})
	}
	if p.Role != "" {
		strategies = append(strategies, strategy{MethodRoleMatch, func(ctx context.Context) error {
			return d.ClickByRole(ctx, p.Role, p.Text)
		}})
	}
	if p.Selector != "" {
		strategies = append(strategies, strategy{MethodJSClick, func(ctx context.Context) error {
			return d.ClickJS(ctx, p.Selector)
		}})
	}
	return execute(ctx, "click", strategies)
}

// ExecuteFill tries the fill strategies in order: CSS selector, label match,
// then a scripted value assignment.
func ExecuteFill(ctx context.Context, d browser.Driver, p step.FillParams) (Method, error) {
	var strategies []strategy
	if p.Selector != "" {
		strategies = append(strategies, strategy{MethodCSSSelector, func(ctx context.Context) error {
			return d.Fill(ctx, p.Selector, p.Value)
		}})
	}
	if p.Label != "" {
		strategies = append(strategies, strategy{MethodLabelMatch, func(ctx context.Context) error {
			return d.FillByLabel(ctx, p.Label, p.Value)
		}})
	}
	if p.Selector != "" {
		strategies = append(strategies, strategy{MethodJSFill, func(ctx context.Context) error {
			return d.FillJS(ctx, p.Selector, p.Value)
		}})
	}
	return execute(ctx, "fill", strategies)
}

func execute(ctx context.Context, action string, strategies []strategy) (Method, error) {
	if len(strategies) == 0 {
		return "", fmt.Errorf("%s has no usable strategy", action)
	}

	var attempts []string
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		err := s.run(ctx)
		if err == nil {
			return s.method, nil
		}
		attempts = append(attempts, fmt.Sprintf("%s: %v", s.method, err))
	}
	return "", fmt.Errorf("all %s strategies failed: %s", action, strings.Join(attempts, "; "))
}

// Package browsertest provides a configurable fake Driver for tests. Every
// operation succeeds by default and is recorded; individual operations are
// overridden by assigning the corresponding hook.
package browsertest

import (
	"context"
	"fmt"
	"sync"
)

// Call records one driver invocation.
type Call struct {
	Op   string
	Args []string
}

// Driver is a fake browser driver. The zero value is usable: every call
// succeeds, the page is alive, and Content returns an empty page.
type Driver struct {
	mu    sync.Mutex
	calls []Call

	// URL is what CurrentURL returns.
	URL string

	// Alive defaults to true via the alive tri-state below.
	dead bool

	// HTML is what Content returns.
	HTML string

	// PNG is what Screenshot returns.
	PNG []byte

	// Hooks. A nil hook means the operation succeeds.
	NavigateFn           func(ctx context.Context, url string) error
	ClickFn              func(ctx context.Context, selector string) error
	ClickByTextFn        func(ctx context.Context, text string) error
	ClickByRoleFn        func(ctx context.Context, role, name string) error
	ClickJSFn            func(ctx context.Context, selector string) error
	FillFn               func(ctx context.Context, selector, value string) error
	FillByLabelFn        func(ctx context.Context, label, value string) error
	FillJSFn             func(ctx context.Context, selector, value string) error
	SelectOptionFn       func(ctx context.Context, selector, value string) error
	ScreenshotFn         func(ctx context.Context) ([]byte, error)
	TextContentFn        func(ctx context.Context, selector string) (string, error)
	ContentFn            func(ctx context.Context) (string, error)
	IsVisibleFn          func(ctx context.Context, selector string) (bool, error)
	WaitForSelectorFn    func(ctx context.Context, selector string) error
	WaitForNetworkIdleFn func(ctx context.Context) error
	ScrollFn             func(ctx context.Context, direction string, pixels int) error
	StorageStateFn       func() ([]byte, error)
	CloseFn              func() error
}

func (d *Driver) record(op string, args ...string) {
	d.mu.Lock()
	d.calls = append(d.calls, Call{Op: op, Args: args})
	d.mu.Unlock()
}

// Calls returns a copy of the recorded invocations.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// Ops returns just the operation names, in order.
func (d *Driver) Ops() []string {
	calls := d.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Op
	}
	return out
}

// Kill marks the page as crashed.
func (d *Driver) Kill() {
	d.mu.Lock()
	d.dead = true
	d.mu.Unlock()
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.record("Navigate", url)
	d.mu.Lock()
	d.URL = url
	d.mu.Unlock()
	if d.NavigateFn != nil {
		return d.NavigateFn(ctx, url)
	}
	return nil
}

func (d *Driver) Click(ctx context.Context, selector string) error {
	d.record("Click", selector)
	if d.ClickFn != nil {
		return d.ClickFn(ctx, selector)
	}
	return nil
}

func (d *Driver) ClickByText(ctx context.Context, text string) error {
	d.record("ClickByText", text)
	if d.ClickByTextFn != nil {
		return d.ClickByTextFn(ctx, text)
	}
	return nil
}

func (d *Driver) ClickByRole(ctx context.Context, role, name string) error {
	d.record("ClickByRole", role, name)
	if d.ClickByRoleFn != nil {
		return d.ClickByRoleFn(ctx, role, name)
	}
	return nil
}

func (d *Driver) ClickJS(ctx context.Context, selector string) error {
	d.record("ClickJS", selector)
	if d.ClickJSFn != nil {
		return d.ClickJSFn(ctx, selector)
	}
	return nil
}

func (d *Driver) Fill(ctx context.Context, selector, value string) error {
	d.record("Fill", selector, value)
	if d.FillFn != nil {
		return d.FillFn(ctx, selector, value)
	}
	return nil
}

func (d *Driver) FillByLabel(ctx context.Context, label, value string) error {
	d.record("FillByLabel", label, value)
	if d.FillByLabelFn != nil {
		return d.FillByLabelFn(ctx, label, value)
	}
	return nil
}

func (d *Driver) FillJS(ctx context.Context, selector, value string) error {
	d.record("FillJS", selector, value)
	if d.FillJSFn != nil {
		return d.FillJSFn(ctx, selector, value)
	}
	return nil
}

func (d *Driver) SelectOption(ctx context.Context, selector, value string) error {
	d.record("SelectOption", selector, value)
	if d.SelectOptionFn != nil {
		return d.SelectOptionFn(ctx, selector, value)
	}
	return nil
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	d.record("Screenshot")
	if d.ScreenshotFn != nil {
		return d.ScreenshotFn(ctx)
	}
	if d.PNG != nil {
		return d.PNG, nil
	}
	return []byte("png"), nil
}

func (d *Driver) TextContent(ctx context.Context, selector string) (string, error) {
	d.record("TextContent", selector)
	if d.TextContentFn != nil {
		return d.TextContentFn(ctx, selector)
	}
	return "", nil
}

func (d *Driver) Content(ctx context.Context) (string, error) {
	d.record("Content")
	if d.ContentFn != nil {
		return d.ContentFn(ctx)
	}
	return d.HTML, nil
}

func (d *Driver) IsVisible(ctx context.Context, selector string) (bool, error) {
	d.record("IsVisible", selector)
	if d.IsVisibleFn != nil {
		return d.IsVisibleFn(ctx, selector)
	}
	return true, nil
}

func (d *Driver) WaitForSelector(ctx context.Context, selector string) error {
	d.record("WaitForSelector", selector)
	if d.WaitForSelectorFn != nil {
		return d.WaitForSelectorFn(ctx, selector)
	}
	return nil
}

func (d *Driver) WaitForNetworkIdle(ctx context.Context) error {
	d.record("WaitForNetworkIdle")
	if d.WaitForNetworkIdleFn != nil {
		return d.WaitForNetworkIdleFn(ctx)
	}
	return nil
}

func (d *Driver) Scroll(ctx context.Context, direction string, pixels int) error {
	d.record("Scroll", direction, fmt.Sprint(pixels))
	if d.ScrollFn != nil {
		return d.ScrollFn(ctx, direction, pixels)
	}
	return nil
}

func (d *Driver) DismissObstacles(ctx context.Context) int {
	d.record("DismissObstacles")
	return 0
}

func (d *Driver) CurrentURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.URL
}

func (d *Driver) IsAlive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.dead
}

func (d *Driver) StorageState() ([]byte, error) {
	d.record("StorageState")
	if d.StorageStateFn != nil {
		return d.StorageStateFn()
	}
	return []byte(`{"cookies":[]}`), nil
}

func (d *Driver) Close() error {
	d.record("Close")
	d.mu.Lock()
	d.dead = true
	d.mu.Unlock()
	if d.CloseFn != nil {
		return d.CloseFn()
	}
	return nil
}

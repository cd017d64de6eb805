package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightDriver drives a local headless Chromium via Playwright.
type PlaywrightDriver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	defaultTimeout time.Duration
	closeOnce      sync.Once
	closeErr       error
}

// NewPlaywright launches a Chromium instance and opens one page. When
// opts.StorageState is set, the saved cookies and storage are restored into
// the new context before any navigation.
func NewPlaywright(ctx context.Context, opts Options) (Driver, error) {
	if opts.DefaultTimeout == 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	if opts.ViewportWidth == 0 {
		opts.ViewportWidth = DefaultViewportWidth
	}
	if opts.ViewportHeight == 0 {
		opts.ViewportHeight = DefaultViewportHeight
	}

	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
	}
	if len(opts.StorageState) > 0 {
		var state playwright.OptionalStorageState
		if err := json.Unmarshal(opts.StorageState, &state); err != nil {
			b.Close()
			pw.Stop()
			return nil, fmt.Errorf("failed to decode session snapshot: %w", err)
		}
		contextOpts.StorageState = &state
	}

	bc, err := b.NewContext(contextOpts)
	if err != nil {
		b.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := bc.NewPage()
	if err != nil {
		bc.Close()
		b.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(opts.DefaultTimeout.Milliseconds()))

	return &PlaywrightDriver{
		pw:             pw,
		browser:        b,
		context:        bc,
		page:           page,
		defaultTimeout: opts.DefaultTimeout,
	}, nil
}

// timeoutMs derives a per-call timeout from the context deadline, falling
// back to the driver default.
func (d *PlaywrightDriver) timeoutMs(ctx context.Context) *float64 {
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining > 0 {
			return playwright.Float(float64(remaining.Milliseconds()))
		}
	}
	return playwright.Float(float64(d.defaultTimeout.Milliseconds()))
}

// Navigate loads the URL and waits for the DOM to be ready.
func (d *PlaywrightDriver) Navigate(ctx context.Context, url string) error {
	waitUntil := playwright.WaitUntilStateDomcontentloaded
	_, err := d.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: waitUntil,
		Timeout:   d.timeoutMs(ctx),
	})
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Click clicks the element matched by the CSS selector.
func (d *PlaywrightDriver) Click(ctx context.Context, selector string) error {
	err := d.page.Click(selector, playwright.PageClickOptions{Timeout: d.timeoutMs(ctx)})
	if err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

// ClickByText clicks the first element whose visible text matches.
func (d *PlaywrightDriver) ClickByText(ctx context.Context, text string) error {
	err := d.page.GetByText(text).First().Click(playwright.LocatorClickOptions{Timeout: d.timeoutMs(ctx)})
	if err != nil {
		return fmt.Errorf("click by text failed: %w", err)
	}
	return nil
}

// ClickByRole clicks the first element with the ARIA role and accessible name.
func (d *PlaywrightDriver) ClickByRole(ctx context.Context, role, name string) error {
	locator := d.page.GetByRole(playwright.AriaRole(role), playwright.PageGetByRoleOptions{Name: name})
	err := locator.First().Click(playwright.LocatorClickOptions{Timeout: d.timeoutMs(ctx)})
	if err != nil {
		return fmt.Errorf("click by role failed: %w", err)
	}
	return nil
}

// ClickJS dispatches a synthetic click, bypassing actionability checks.
// Some pages cover their controls with transparent overlays; a scripted
// click still reaches the element.
func (d *PlaywrightDriver) ClickJS(ctx context.Context, selector string) error {
	_, err := d.page.Evaluate(`(sel) => {
		const el = document.querySelector(sel);
		if (!el) throw new Error("no element matches " + sel);
		el.click();
		el.dispatchEvent(new MouseEvent("click", { bubbles: true }));
	}`, selector)
	if err != nil {
		return fmt.Errorf("js click failed: %w", err)
	}
	return nil
}

// Fill types a value into the matched input.
func (d *PlaywrightDriver) Fill(ctx context.Context, selector, value string) error {
	err := d.page.Fill(selector, value, playwright.PageFillOptions{Timeout: d.timeoutMs(ctx)})
	if err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

// FillByLabel fills the input associated with a form label.
func (d *PlaywrightDriver) FillByLabel(ctx context.Context, label, value string) error {
	err := d.page.GetByLabel(label).First().Fill(value, playwright.LocatorFillOptions{Timeout: d.timeoutMs(ctx)})
	if err != nil {
		return fmt.Errorf("fill by label failed: %w", err)
	}
	return nil
}

// FillJS sets the input's value via script and fires an input event so
// framework-bound forms notice the change.
func (d *PlaywrightDriver) FillJS(ctx context.Context, selector, value string) error {
	_, err := d.page.Evaluate(`([sel, val]) => {
		const el = document.querySelector(sel);
		if (!el) throw new Error("no element matches " + sel);
		el.value = val;
		el.dispatchEvent(new Event("input", { bubbles: true }));
		el.dispatchEvent(new Event("change", { bubbles: true }));
	}`, []string{selector, value})
	if err != nil {
		return fmt.Errorf("js fill failed: %w", err)
	}
	return nil
}

// SelectOption chooses an option value in a select element.
func (d *PlaywrightDriver) SelectOption(ctx context.Context, selector, value string) error {
	_, err := d.page.SelectOption(selector, playwright.SelectOptionValues{
		Values: &[]string{value},
	}, playwright.PageSelectOptionOptions{Timeout: d.timeoutMs(ctx)})
	if err != nil {
		return fmt.Errorf("select failed: %w", err)
	}
	return nil
}

// Screenshot captures the current viewport as PNG bytes.
func (d *PlaywrightDriver) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := d.page.Screenshot(playwright.PageScreenshotOptions{Timeout: d.timeoutMs(ctx)})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return data, nil
}

// TextContent returns the text content of the matched element.
func (d *PlaywrightDriver) TextContent(ctx context.Context, selector string) (string, error) {
	text, err := d.page.TextContent(selector, playwright.PageTextContentOptions{Timeout: d.timeoutMs(ctx)})
	if err != nil {
		return "", fmt.Errorf("text extraction failed: %w", err)
	}
	return text, nil
}

// Content returns the full HTML of the current page.
func (d *PlaywrightDriver) Content(ctx context.Context) (string, error) {
	html, err := d.page.Content()
	if err != nil {
		return "", fmt.Errorf("content extraction failed: %w", err)
	}
	return html, nil
}

// IsVisible reports whether the matched element is visible.
func (d *PlaywrightDriver) IsVisible(ctx context.Context, selector string) (bool, error) {
	visible, err := d.page.IsVisible(selector)
	if err != nil {
		return false, fmt.Errorf("visibility check failed: %w", err)
	}
	return visible, nil
}

// WaitForSelector blocks until the selector is visible.
func (d *PlaywrightDriver) WaitForSelector(ctx context.Context, selector string) error {
	state := playwright.WaitForSelectorStateVisible
	_, err := d.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   state,
		Timeout: d.timeoutMs(ctx),
	})
	if err != nil {
		return fmt.Errorf("wait for selector failed: %w", err)
	}
	return nil
}

// WaitForNetworkIdle blocks until in-flight network activity settles.
func (d *PlaywrightDriver) WaitForNetworkIdle(ctx context.Context) error {
	state := playwright.LoadStateNetworkidle
	err := d.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   state,
		Timeout: d.timeoutMs(ctx),
	})
	if err != nil {
		return fmt.Errorf("wait for network idle failed: %w", err)
	}
	return nil
}

// Scroll scrolls the page by the given pixel distance.
func (d *PlaywrightDriver) Scroll(ctx context.Context, direction string, pixels int) error {
	if pixels <= 0 {
		pixels = DefaultViewportHeight
	}
	if direction == "up" {
		pixels = -pixels
	}
	_, err := d.page.Evaluate(`(px) => window.scrollBy(0, px)`, pixels)
	if err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

// CurrentURL returns the page's current URL.
func (d *PlaywrightDriver) CurrentURL() string {
	if d.page == nil {
		return ""
	}
	return d.page.URL()
}

// IsAlive reports whether the page is still usable.
func (d *PlaywrightDriver) IsAlive() bool {
	return d.page != nil && !d.page.IsClosed()
}

// StorageState serializes the context's cookies and storage so the session
// can resume an authenticated state on a later run.
func (d *PlaywrightDriver) StorageState() ([]byte, error) {
	state, err := d.context.StorageState()
	if err != nil {
		return nil, fmt.Errorf("failed to read storage state: %w", err)
	}
	blob, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode storage state: %w", err)
	}
	return blob, nil
}

// Close releases the page, context, browser, and Playwright runtime. Safe to
// call multiple times.
func (d *PlaywrightDriver) Close() error {
	d.closeOnce.Do(func() {
		if d.page != nil {
			_ = d.page.Close()
		}
		if d.context != nil {
			_ = d.context.Close()
		}
		if d.browser != nil {
			_ = d.browser.Close()
		}
		if d.pw != nil {
			d.closeErr = d.pw.Stop()
		}
	})
	return d.closeErr
}

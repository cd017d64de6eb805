// Package browser provides the browser automation backend for the execution
// engine. The engine consumes the Driver interface so either the local
// Playwright implementation or a cloud-hosted driver can satisfy it; tests
// substitute fakes.
package browser

import (
	"context"
	"time"
)

// Driver is the narrow browser surface the engine and executors depend on.
// Each task execution owns exactly one driver for its entire lifetime;
// drivers are never shared across concurrent tasks.
type Driver interface {
	// Navigate loads the URL and waits for the page to be interactive.
	Navigate(ctx context.Context, url string) error

	// Click clicks the element matched by a CSS selector.
	Click(ctx context.Context, selector string) error

	// ClickByText clicks the first element whose visible text matches.
	ClickByText(ctx context.Context, text string) error

	// ClickByRole clicks the first element with the ARIA role and
	// accessible name.
	ClickByRole(ctx context.Context, role, name string) error

	// ClickJS dispatches a synthetic click via script, bypassing
	// actionability checks. Last-resort strategy for overlapped elements.
	ClickJS(ctx context.Context, selector string) error

	// Fill types a value into the input matched by a CSS selector.
	Fill(ctx context.Context, selector, value string) error

	// FillByLabel fills the input associated with a form label.
	FillByLabel(ctx context.Context, label, value string) error

	// FillJS sets an input's value via script and fires an input event.
	FillJS(ctx context.Context, selector, value string) error

	// SelectOption chooses an option value in a select element.
	SelectOption(ctx context.Context, selector, value string) error

	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// TextContent returns the text content of the matched element.
	TextContent(ctx context.Context, selector string) (string, error)

	// Content returns the full HTML of the current page.
	Content(ctx context.Context) (string, error)

	// IsVisible reports whether the matched element is visible.
	IsVisible(ctx context.Context, selector string) (bool, error)

	// WaitForSelector blocks until the selector is visible.
	WaitForSelector(ctx context.Context, selector string) error

	// WaitForNetworkIdle blocks until in-flight network activity settles.
	WaitForNetworkIdle(ctx context.Context) error

	// Scroll scrolls the page "up" or "down" by the given pixel distance.
	Scroll(ctx context.Context, direction string, pixels int) error

	// DismissObstacles closes common page obstacles (cookie banners,
	// modal overlays). Best effort; returns how many were dismissed.
	DismissObstacles(ctx context.Context) int

	// CurrentURL returns the page's current URL.
	CurrentURL() string

	// IsAlive reports whether the underlying page is still usable.
	IsAlive() bool

	// StorageState serializes cookies and storage for later restoration.
	StorageState() ([]byte, error)

	// Close releases all browser resources. Idempotent.
	Close() error
}

// Options configures a new driver.
type Options struct {
	Headless bool

	// StorageState, when set, restores a previously saved session snapshot
	// (cookies and storage) into the new browser context.
	StorageState []byte

	// DefaultTimeout bounds individual driver operations when the caller's
	// context has no sooner deadline.
	DefaultTimeout time.Duration

	ViewportWidth  int
	ViewportHeight int
}

// Factory creates a driver. The engine uses it for initial session
// acquisition and for transparent re-initialization after a page crash.
type Factory func(ctx context.Context, opts Options) (Driver, error)

// Default driver settings, matching a desktop viewport.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)

package browser

import (
	"context"
	"time"
)

// obstacleSelectors match the dismiss controls of common page obstacles:
// cookie consent banners, newsletter modals, and generic dialog closes.
// Ordered roughly by how often each appears in the wild.
var obstacleSelectors = []string{
	"#onetrust-accept-btn-handler",
	"button#accept-cookies",
	"button[aria-label='Accept cookies']",
	"[data-testid='cookie-accept']",
	".cookie-consent button.accept",
	"button[aria-label='Close']",
	"button[title='Close']",
	"[role='dialog'] button[aria-label='Close']",
	".modal-close",
}

// DismissObstacles tries to close whatever is covering the page after a
// navigation. Every attempt is best effort with a short budget; a site
// without obstacles costs a handful of visibility checks.
func (d *PlaywrightDriver) DismissObstacles(ctx context.Context) int {
	dismissed := 0
	for _, selector := range obstacleSelectors {
		attemptCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		visible, err := d.IsVisible(attemptCtx, selector)
		if err == nil && visible {
			if err := d.Click(attemptCtx, selector); err == nil {
				dismissed++
			}
		}
		cancel()
		if ctx.Err() != nil {
			break
		}
	}
	return dismissed
}

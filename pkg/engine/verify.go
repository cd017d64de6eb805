package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/webpilot/pkg/vision"
)

// Page-text indicators scanned after a submit. The lists are deliberately
// generic: site-specific signals belong in the step's expected criterion.
var (
	positiveIndicators = []string{
		"success", "thank you", "confirmed", "confirmation",
		"complete", "received", "submitted", "order placed",
	}
	negativeIndicators = []string{
		"error", "failed", "invalid", "declined",
		"try again", "problem", "unable to",
	}
)

const visionSystemPrompt = "You verify the outcome of automated browser actions. " +
	"Look at the screenshot and answer whether the expected outcome occurred. " +
	"Reply with YES or NO on the first line, followed by a one-sentence reason."

// verifyOutcome checks whether the expected outcome occurred. The policy is
// fail-closed: absence of positive evidence is failure. Page-text indicators
// decide clear cases; ambiguity escalates to the vision provider, and with no
// provider configured the ambiguous case fails.
func (e *Engine) verifyOutcome(ctx context.Context, expected string) error {
	driver := e.currentDriver()
	if driver == nil {
		return fmt.Errorf("%w: no browser session", ErrVerificationFailed)
	}

	html, err := driver.Content(ctx)
	if err != nil {
		return fmt.Errorf("%w: cannot read page: %v", ErrVerificationFailed, err)
	}
	text := strings.ToLower(extractVisibleText(html))

	positive := containsAny(text, positiveIndicators)
	negative := containsAny(text, negativeIndicators)

	switch {
	case positive && !negative:
		return nil
	case negative && !positive:
		return fmt.Errorf("%w: page shows a failure indicator", ErrVerificationFailed)
	}

	// Ambiguous. Escalate to the vision model when one is configured.
	if e.vision == nil {
		return fmt.Errorf("%w: no positive evidence on page and no vision provider configured", ErrVerificationFailed)
	}

	shot, err := driver.Screenshot(ctx)
	if err != nil {
		return fmt.Errorf("%w: cannot capture screenshot: %v", ErrVerificationFailed, err)
	}

	prompt := fmt.Sprintf("Expected outcome: %s\n\nDid this outcome occur?", expected)
	reply, err := e.vision.VerifyScreenshot(ctx, prompt, base64.StdEncoding.EncodeToString(shot), visionSystemPrompt)
	if err != nil {
		if errors.Is(err, vision.ErrRateLimited) {
			return fmt.Errorf("%w: vision provider rate limited", ErrVerificationFailed)
		}
		return fmt.Errorf("%w: vision check failed: %v", ErrVerificationFailed, err)
	}
	e.addCost(reply.Cost)

	verdict := strings.ToUpper(strings.TrimSpace(reply.Content))
	if strings.HasPrefix(verdict, "YES") {
		return nil
	}
	return fmt.Errorf("%w: vision verdict: %s", ErrVerificationFailed, firstLine(reply.Content))
}

func containsAny(text string, indicators []string) bool {
	for _, ind := range indicators {
		if strings.Contains(text, ind) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

// Package step defines the planned-action model consumed by the execution
// engine: a tagged union of action kinds with strongly typed parameters, and
// the per-step result records that form the execution trace.
package step

import (
	"fmt"
	"time"
)

// Kind identifies the type of a planned action.
type Kind string

const (
	KindNavigate   Kind = "navigate"
	KindClick      Kind = "click"
	KindFill       Kind = "fill"
	KindSelect     Kind = "select"
	KindSubmit     Kind = "submit"
	KindExtract    Kind = "extract"
	KindVerify     Kind = "verify"
	KindScroll     Kind = "scroll"
	KindWait       Kind = "wait"
	KindScreenshot Kind = "screenshot"
)

// Kinds lists every supported action kind.
func Kinds() []Kind {
	return []Kind{
		KindNavigate, KindClick, KindFill, KindSelect, KindSubmit,
		KindExtract, KindVerify, KindScroll, KindWait, KindScreenshot,
	}
}

// Valid reports whether k is a known action kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Params carries the action-specific arguments for one step. Each action kind
// has its own parameter struct; the engine dispatches with an exhaustive type
// switch rather than inspecting untyped maps.
type Params interface {
	Kind() Kind
}

// NavigateParams loads a URL.
type NavigateParams struct {
	URL string `yaml:"url"`
}

// ClickParams clicks an element. Selector is the primary CSS target; Text and
// Role drive the fallback strategies when the selector misses.
type ClickParams struct {
	Selector string `yaml:"selector"`
	Text     string `yaml:"text"`
	Role     string `yaml:"role"`
}

// FillParams types a value into an input. Label drives the label-match
// fallback strategy.
type FillParams struct {
	Selector string `yaml:"selector"`
	Label    string `yaml:"label"`
	Value    string `yaml:"value"`
}

// SelectParams chooses an option in a select element.
type SelectParams struct {
	Selector string `yaml:"selector"`
	Value    string `yaml:"value"`
}

// SubmitParams clicks a submit control and waits for the page to settle.
type SubmitParams struct {
	Selector string `yaml:"selector"`
}

// ExtractParams reads text from an element, or the whole page body when
// Selector is empty.
type ExtractParams struct {
	Selector string `yaml:"selector"`
}

// VerifyParams checks element visibility (Selector) or body-text containment
// (Condition).
type VerifyParams struct {
	Selector  string `yaml:"selector"`
	Condition string `yaml:"condition"`
}

// ScrollParams scrolls the page. Direction is "up" or "down"; Pixels defaults
// to a viewport-ish distance when zero.
type ScrollParams struct {
	Direction string `yaml:"direction"`
	Pixels    int    `yaml:"pixels"`
}

// WaitParams pauses for a duration or until a selector appears.
type WaitParams struct {
	Duration time.Duration `yaml:"duration"`
	Selector string        `yaml:"selector"`
}

// ScreenshotParams captures the current viewport.
type ScreenshotParams struct{}

func (NavigateParams) Kind() Kind   { return KindNavigate }
func (ClickParams) Kind() Kind      { return KindClick }
func (FillParams) Kind() Kind       { return KindFill }
func (SelectParams) Kind() Kind     { return KindSelect }
func (SubmitParams) Kind() Kind     { return KindSubmit }
func (ExtractParams) Kind() Kind    { return KindExtract }
func (VerifyParams) Kind() Kind     { return KindVerify }
func (ScrollParams) Kind() Kind     { return KindScroll }
func (WaitParams) Kind() Kind       { return KindWait }
func (ScreenshotParams) Kind() Kind { return KindScreenshot }

// Step is one planned action. Expected optionally carries a natural-language
// success criterion checked after submit-style actions.
type Step struct {
	Action   Kind
	Expected string
	Params   Params
}

// New constructs a step from typed params.
func New(p Params) Step {
	return Step{Action: p.Kind(), Params: p}
}

// WithExpected returns a copy of the step carrying a success criterion.
func (s Step) WithExpected(expected string) Step {
	s.Expected = expected
	return s
}

// Selector returns the primary selector for kinds that carry one, and ""
// otherwise.
func (s Step) Selector() string {
	switch p := s.Params.(type) {
	case ClickParams:
		return p.Selector
	case FillParams:
		return p.Selector
	case SelectParams:
		return p.Selector
	case SubmitParams:
		return p.Selector
	case ExtractParams:
		return p.Selector
	case VerifyParams:
		return p.Selector
	case WaitParams:
		return p.Selector
	default:
		return ""
	}
}

// WithSelector returns a copy of the step with the primary selector replaced.
// Used by the engine to substitute a learned selector before dispatch; kinds
// without a selector are returned unchanged.
func (s Step) WithSelector(selector string) Step {
	switch p := s.Params.(type) {
	case ClickParams:
		p.Selector = selector
		s.Params = p
	case FillParams:
		p.Selector = selector
		s.Params = p
	case SelectParams:
		p.Selector = selector
		s.Params = p
	case SubmitParams:
		p.Selector = selector
		s.Params = p
	}
	return s
}

// Validate checks that the step is structurally executable.
func (s Step) Validate() error {
	if !s.Action.Valid() {
		return fmt.Errorf("unknown action kind %q", s.Action)
	}
	if s.Params == nil {
		return fmt.Errorf("step %q has no parameters", s.Action)
	}
	if s.Params.Kind() != s.Action {
		return fmt.Errorf("step %q carries %q parameters", s.Action, s.Params.Kind())
	}
	switch p := s.Params.(type) {
	case NavigateParams:
		if p.URL == "" {
			return fmt.Errorf("navigate requires a url")
		}
	case ClickParams:
		if p.Selector == "" && p.Text == "" && p.Role == "" {
			return fmt.Errorf("click requires a selector, text, or role")
		}
	case FillParams:
		if p.Selector == "" && p.Label == "" {
			return fmt.Errorf("fill requires a selector or label")
		}
	case SelectParams:
		if p.Selector == "" {
			return fmt.Errorf("select requires a selector")
		}
	case SubmitParams:
		if p.Selector == "" {
			return fmt.Errorf("submit requires a selector")
		}
	case VerifyParams:
		if p.Selector == "" && p.Condition == "" {
			return fmt.Errorf("verify requires a selector or condition")
		}
	}
	return nil
}

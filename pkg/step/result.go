package step

import "time"

// Result records the outcome of one executed step. Results are appended to an
// ordered trace for the task and returned to the caller even on failure, for
// diagnosis.
type Result struct {
	Success bool `json:"success"`

	// Action is the kind of the step that produced this result.
	Action Kind `json:"action"`

	// Method names the execution strategy that succeeded (e.g. "css_selector",
	// "text_match"). Empty for actions without fallback strategies.
	Method string `json:"method,omitempty"`

	// Data carries action output: extracted text, the final URL after a
	// navigation, a verification verdict.
	Data string `json:"data,omitempty"`

	Error string `json:"error,omitempty"`

	// Screenshot is base64-encoded PNG evidence, omitted for screenshot and
	// wait actions.
	Screenshot string `json:"screenshot,omitempty"`

	Duration time.Duration `json:"duration"`
}

// Trace is the ordered, append-only list of step results for one task.
type Trace []Result

// LastData returns the Data of the most recent result that produced any,
// or "" when none did.
func (t Trace) LastData() string {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Data != "" {
			return t[i].Data
		}
	}
	return ""
}

// Failed reports whether any step in the trace failed.
func (t Trace) Failed() bool {
	for _, r := range t {
		if !r.Success {
			return true
		}
	}
	return false
}

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/webpilot/pkg/engine"
	"github.com/entrhq/webpilot/pkg/intent"
	"github.com/entrhq/webpilot/pkg/step"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// printSummary renders the per-step trace and the task outcome.
func printSummary(w io.Writer, li *intent.LockedIntent, steps []step.Step, trace step.Trace, outcome engine.Outcome, cost float64) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Task: %s", li.Goal())))

	for i, res := range trace {
		mark := okStyle.Render("✓")
		detail := dimStyle.Render(fmt.Sprintf("(%s, %s)", methodLabel(res.Method), res.Duration.Round(time.Millisecond)))
		if !res.Success {
			mark = failStyle.Render("✗")
			detail = failStyle.Render(res.Error)
		}
		fmt.Fprintf(w, "  %s %d/%d %-10s %s\n", mark, i+1, len(steps), res.Action, detail)
	}

	fmt.Fprintln(w)
	if outcome.Success {
		fmt.Fprintln(w, okStyle.Render("Task completed"))
		if outcome.Data != "" {
			fmt.Fprintln(w, dimStyle.Render(outcome.Data))
		}
	} else {
		fmt.Fprintln(w, failStyle.Render("Task failed: "+outcome.Error))
	}
	if cost > 0 {
		fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("Vision spend: $%.4f", cost)))
	}
}

func methodLabel(method string) string {
	if method == "" {
		return "direct"
	}
	return method
}

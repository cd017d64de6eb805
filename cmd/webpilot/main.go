// Command webpilot executes browser task plans from the command line. A plan
// file pairs a locked intent with an ordered list of actions; webpilot drives
// a browser session through the plan and prints a per-step summary.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	// Local .env files are a convenience for API keys; absence is fine.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "webpilot",
		Short:         "Autonomous browser task execution",
		Long:          "webpilot executes YAML task plans in a real browser, bounded by a locked intent.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

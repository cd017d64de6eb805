package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/config"
	"github.com/entrhq/webpilot/pkg/engine"
	"github.com/entrhq/webpilot/pkg/intent"
	"github.com/entrhq/webpilot/pkg/logging"
	"github.com/entrhq/webpilot/pkg/memory"
	"github.com/entrhq/webpilot/pkg/retry"
	"github.com/entrhq/webpilot/pkg/vision"
)

func newRunCmd() *cobra.Command {
	var (
		planPath   string
		configPath string
		headed     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a task plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if headed {
				cfg.Headless = false
			}
			return runPlan(cmd.Context(), cfg, planPath)
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "path to the task plan YAML (required)")
	cmd.Flags().StringVar(&configPath, "config", "", "path to the config file")
	cmd.Flags().BoolVar(&headed, "headed", false, "run the browser with a visible window")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func runPlan(parent context.Context, cfg config.Config, planPath string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := logging.New("cli", cfg.LogDir)
	if err != nil {
		return err
	}
	defer log.Close()

	li, steps, err := loadPlan(planPath)
	if err != nil {
		return err
	}

	validator, err := intent.NewValidator(li)
	if err != nil {
		return err
	}

	db, err := memory.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := memory.NewSQLiteStore(db)
	if err != nil {
		return err
	}
	sessions, err := browser.NewSQLiteSessionStore(db)
	if err != nil {
		return err
	}

	params := engine.Params{
		Validator: validator,
		Memory:    store,
		Sessions:  sessions,
		Logger:    log,
		Config: engine.Config{
			TaskTimeout: cfg.TaskTimeout.Std(),
			StepTimeout: cfg.StepTimeout.Std(),
			Retry: retry.Policy{
				MaxRetries: cfg.MaxRetries,
				BaseDelay:  time.Second,
				MaxDelay:   8 * time.Second,
			},
		},
		NewDriver: func(ctx context.Context, storageState []byte) (browser.Driver, error) {
			return browser.NewPlaywright(ctx, browser.Options{
				Headless:       cfg.Headless,
				StorageState:   storageState,
				DefaultTimeout: cfg.StepTimeout.Std(),
			})
		},
	}

	// The interface stays nil unless a provider is actually constructed.
	if cfg.Vision.APIKey != "" {
		opts := []vision.ProviderOption{vision.WithModel(cfg.Vision.Model)}
		if cfg.Vision.BaseURL != "" {
			opts = append(opts, vision.WithBaseURL(cfg.Vision.BaseURL))
		}
		provider, err := vision.NewOpenAIProvider(cfg.Vision.APIKey, opts...)
		if err != nil {
			return err
		}
		params.Vision = provider
	} else {
		log.Warnf("no vision API key configured, ambiguous verifications will fail")
	}

	eng, err := engine.New(params)
	if err != nil {
		return err
	}
	defer eng.Cleanup()

	if err := eng.Initialize(ctx, li.UserID(), sessionDomain(li)); err != nil {
		return err
	}

	outcome := eng.ExecuteSteps(ctx, steps)
	printSummary(os.Stdout, li, steps, eng.Results(), outcome, eng.TotalCost())

	if !outcome.Success {
		return fmt.Errorf("task failed: %s", outcome.Error)
	}
	return nil
}

// sessionDomain picks the snapshot key for the plan: the first concrete
// allowed domain, with any wildcard prefix trimmed. A pure wildcard intent
// gets no snapshot key.
func sessionDomain(li *intent.LockedIntent) string {
	for _, d := range li.AllowedDomains() {
		if d == "*" {
			continue
		}
		return strings.TrimPrefix(d, "*.")
	}
	return ""
}

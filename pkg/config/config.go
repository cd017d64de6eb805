// Package config loads webpilot's YAML configuration file and applies
// environment overrides. Every field has a usable default, so a missing
// config file is not an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	// DatabasePath locates the SQLite database holding failure memory and
	// session snapshots.
	DatabasePath string `yaml:"database_path"`

	// LogDir is where run logs are written.
	LogDir string `yaml:"log_dir"`

	// Headless controls browser visibility.
	Headless bool `yaml:"headless"`

	// TaskTimeout bounds a whole task; StepTimeout bounds one action.
	TaskTimeout Duration `yaml:"task_timeout"`
	StepTimeout Duration `yaml:"step_timeout"`

	// MaxRetries is the number of re-attempts after a failed action.
	MaxRetries int `yaml:"max_retries"`

	// Vision configures the screenshot verification model.
	Vision VisionConfig `yaml:"vision"`
}

// VisionConfig selects the vision provider used for outcome verification.
// An empty APIKey disables vision escalation entirely.
type VisionConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"-"`
}

// Duration wraps time.Duration so YAML values like "30s" decode directly.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in configuration.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".webpilot")
	return Config{
		DatabasePath: filepath.Join(base, "webpilot.db"),
		LogDir:       filepath.Join(base, "logs"),
		Headless:     true,
		TaskTimeout:  Duration(180 * time.Second),
		StepTimeout:  Duration(30 * time.Second),
		MaxRetries:   2,
		Vision: VisionConfig{
			Model: "gpt-4o-mini",
		},
	}
}

// Load reads the config file at path, merged over defaults, then applies
// environment overrides. An empty path or missing file yields defaults plus
// overrides; any other read or parse failure is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Defaults apply.
		default:
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays WEBPILOT_* environment variables. The vision API key is
// only ever sourced from the environment, never the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("WEBPILOT_DB"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("WEBPILOT_LOG_DIR"); v != "" {
		c.LogDir = v
	}
	if v := os.Getenv("WEBPILOT_HEADLESS"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			c.Headless = parsed
		}
	}
	if v := os.Getenv("WEBPILOT_VISION_MODEL"); v != "" {
		c.Vision.Model = v
	}
	if v := os.Getenv("WEBPILOT_VISION_BASE_URL"); v != "" {
		c.Vision.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Vision.APIKey = v
	}
}

func (c Config) validate() error {
	if c.TaskTimeout <= 0 {
		return fmt.Errorf("task_timeout must be positive")
	}
	if c.StepTimeout <= 0 {
		return fmt.Errorf("step_timeout must be positive")
	}
	if c.StepTimeout.Std() > c.TaskTimeout.Std() {
		return fmt.Errorf("step_timeout %s exceeds task_timeout %s", c.StepTimeout.Std(), c.TaskTimeout.Std())
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	return nil
}

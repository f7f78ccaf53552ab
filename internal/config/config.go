package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models fundtrail.yml.
type Config struct {
	Workflow struct {
		// AllowDirectDecide lets committee admins decide a request immediately
		// without going through chief-admin finalization. The chief admin can
		// always decide directly.
		AllowDirectDecide bool `yaml:"allow_direct_decide"`
		// UrgentWindowDays is the number of days before a project's end date
		// during which it is flagged urgent.
		UrgentWindowDays int `yaml:"urgent_window_days"`
	} `yaml:"workflow"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

// WebhookConfig describes one outbound ledger subscription.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Actions        []string `yaml:"actions,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// Load reads and validates config from the workspace, falling back to the
// defaults when no file exists.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Workflow.UrgentWindowDays < 0 {
		return fmt.Errorf("config.workflow.urgent_window_days must not be negative")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		for _, action := range hook.Actions {
			if action == "" {
				return fmt.Errorf("config.webhooks[%d] has empty action filter", i)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "fundtrail.yml")
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `workflow:
  # Committee admins may decide a pending request immediately, without a
  # chief-admin finalization step. Votes stay advisory either way.
  allow_direct_decide: true

  # Projects within this many days of their end date are flagged urgent.
  urgent_window_days: 7

# Outbound notifications: every matching audit ledger entry is POSTed to the
# configured URL.
# webhooks:
#   - url: https://example.org/hooks/fundtrail
#     actions: [ApproveRequest, RejectRequest, FinalizeRequest]
#     secret: change-me
`

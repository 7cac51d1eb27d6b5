// Package config loads the service configuration from nudge.yaml with
// NUDGE_* environment overrides. Malformed values are a fatal load
// error: the service refuses to start on a bad config rather than
// misfire reminders later.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	DBPath     string `mapstructure:"db-path"`
	ListenAddr string `mapstructure:"listen-addr"`

	// BaseURL is the public origin embedded in tracked redirect links.
	BaseURL string `mapstructure:"base-url"`

	CronToken string `mapstructure:"cron-token"`
	// CronOnly restricts the cycle endpoint to platform cron requests.
	CronOnly bool `mapstructure:"cron-only"`

	MaxConcurrentCompanies int           `mapstructure:"max-concurrent-companies"`
	CompanyTimeout         time.Duration `mapstructure:"company-timeout"`
	ReportPeriod           time.Duration `mapstructure:"report-period"`

	Trello     TrelloConfig     `mapstructure:"trello"`
	KanbanFlow KanbanFlowConfig `mapstructure:"kanbanflow"`
	Vikunja    VikunjaConfig    `mapstructure:"vikunja"`
	Slack      SlackConfig      `mapstructure:"slack"`
	LineWorks  LineWorksConfig  `mapstructure:"lineworks"`
}

type TrelloConfig struct {
	APIKey   string `mapstructure:"api-key"`
	APIToken string `mapstructure:"api-token"`
}

type KanbanFlowConfig struct {
	APIToken string `mapstructure:"api-token"`
}

// VikunjaConfig points at a self-hosted instance's /api/v1 root.
type VikunjaConfig struct {
	BaseURL  string `mapstructure:"base-url"`
	APIToken string `mapstructure:"api-token"`
}

type SlackConfig struct {
	BotToken string `mapstructure:"bot-token"`
}

type LineWorksConfig struct {
	BotID       string `mapstructure:"bot-id"`
	AccessToken string `mapstructure:"access-token"`
}

// Load reads nudge.yaml from the given directory (or the working
// directory when empty) and applies NUDGE_* environment overrides.
// A missing config file is fine; a malformed one is not.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("nudge")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	} else {
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("NUDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("db-path", "nudge.db")
	v.SetDefault("listen-addr", ":8080")
	v.SetDefault("base-url", "http://localhost:8080")
	v.SetDefault("max-concurrent-companies", 4)
	v.SetDefault("company-timeout", 2*time.Minute)
	v.SetDefault("report-period", 7*24*time.Hour)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the scheduler cannot run with.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db-path is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base-url is required")
	}
	if c.MaxConcurrentCompanies <= 0 {
		return fmt.Errorf("max-concurrent-companies must be positive, got %d", c.MaxConcurrentCompanies)
	}
	if c.CompanyTimeout <= 0 {
		return fmt.Errorf("company-timeout must be positive, got %s", c.CompanyTimeout)
	}
	if c.ReportPeriod <= 0 {
		return fmt.Errorf("report-period must be positive, got %s", c.ReportPeriod)
	}
	return nil
}

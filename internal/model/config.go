package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// MailboxConfig holds the configuration for the mailbox that batches are
// fetched from.
type MailboxConfig struct {
	// Type identifies the provider kind ("gmail" or "imap"). Empty disables
	// batch refreshes.
	Type string `mapstructure:"type" yaml:"type"`

	// UserEmail is the mailbox owner's address, used for to/cc and
	// last-sender checks.
	UserEmail string `mapstructure:"user_email" yaml:"user_email"`

	// Query is the provider search used to list recent messages.
	Query string `mapstructure:"query" yaml:"query"`

	// LookbackDays bounds how far back providers without a query language
	// (IMAP) search.
	LookbackDays int `mapstructure:"lookback_days" yaml:"lookback_days"`

	// Config holds provider-specific key-value settings
	// (e.g., IMAP host and username, Gmail credential and token files).
	Config map[string]string `mapstructure:"config" yaml:"config"`
}

// ReasoningConfig holds settings for the external reasoning service.
type ReasoningConfig struct {
	Model     string `mapstructure:"model" yaml:"model"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
	APIURL    string `mapstructure:"api_url" yaml:"api_url"`

	// TimeoutSec bounds the whole call, including connection setup.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// GenerationTimeoutSec bounds the wait for the service's reply once
	// the request has been sent.
	GenerationTimeoutSec int `mapstructure:"generation_timeout_sec" yaml:"generation_timeout_sec"`

	// CredentialKey is the credential store key holding the API key.
	CredentialKey string `mapstructure:"credential_key" yaml:"credential_key"`
}

// Timeout returns TimeoutSec as a duration.
func (c ReasoningConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// GenerationTimeout returns GenerationTimeoutSec as a duration.
func (c ReasoningConfig) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSec) * time.Second
}

// NormalizerConfig holds content extraction settings.
type NormalizerConfig struct {
	MaxBodyLength int `mapstructure:"max_body_length" yaml:"max_body_length"`
}

// RulesConfig holds rule engine and merge settings.
type RulesConfig struct {
	// NoiseLabels are provider labels that mark bulk mail.
	NoiseLabels []string `mapstructure:"noise_labels" yaml:"noise_labels"`

	// OverrideThreshold is the rule confidence above which the rule's
	// category replaces the reasoning service's category.
	OverrideThreshold float64 `mapstructure:"override_threshold" yaml:"override_threshold"`
}

// BatchConfig controls mailbox refreshes.
type BatchConfig struct {
	// Size is the maximum number of messages listed per refresh.
	Size int `mapstructure:"size" yaml:"size"`

	// Concurrency caps in-flight classifications.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`

	// DeadlineSec bounds a whole refresh.
	DeadlineSec int `mapstructure:"deadline_sec" yaml:"deadline_sec"`

	// FetchRetries is the number of retries for provider calls.
	FetchRetries int `mapstructure:"fetch_retries" yaml:"fetch_retries"`

	// PollIntervalSec is how often the poller refreshes; 0 disables it.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Mailbox    MailboxConfig    `mapstructure:"mailbox" yaml:"mailbox"`
	Reasoning  ReasoningConfig  `mapstructure:"reasoning" yaml:"reasoning"`
	Normalizer NormalizerConfig `mapstructure:"normalizer" yaml:"normalizer"`
	Rules      RulesConfig      `mapstructure:"rules" yaml:"rules"`
	Batch      BatchConfig      `mapstructure:"batch" yaml:"batch"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/clarity/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "clarity")
}

// defaults lists every configuration key with its default value. Keys
// must be registered for environment overrides to apply.
func defaults() map[string]any {
	return map[string]any{
		"mailbox.type":                     "",
		"mailbox.user_email":               "",
		"mailbox.query":                    "newer_than:3d in:inbox",
		"mailbox.lookback_days":            3,
		"reasoning.model":                  "claude-haiku-4-5-20251001",
		"reasoning.max_tokens":             500,
		"reasoning.api_url":                "https://api.anthropic.com/v1/messages",
		"reasoning.timeout_sec":            15,
		"reasoning.generation_timeout_sec": 10,
		"reasoning.credential_key":         "reasoning_api_key",
		"normalizer.max_body_length":       10000,
		"rules.noise_labels": []string{
			"CATEGORY_PROMOTIONS", "CATEGORY_SOCIAL", "CATEGORY_UPDATES", "SPAM",
		},
		"rules.override_threshold": 0.8,
		"batch.size":               10,
		"batch.concurrency":        4,
		"batch.deadline_sec":       120,
		"batch.fetch_retries":      3,
		"batch.poll_interval_sec":  0,
		"store.path":               filepath.Join(configDir(), "clarity.db"),
		"server.addr":              ":8080",
		"log.level":                "info",
		"log.format":               "json",
	}
}

// newViper returns a viper instance with defaults and CLARITY_* environment
// overrides registered.
func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix("clarity")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	cfg := &AppConfig{}
	// Unmarshal of registered defaults cannot fail.
	_ = newViper().Unmarshal(cfg)
	return cfg
}

// flagKeys maps command-line flag names onto configuration keys.
var flagKeys = map[string]string{
	"addr":       "server.addr",
	"store":      "store.path",
	"log-level":  "log.level",
	"log-format": "log.format",
	"batch-size": "batch.size",
	"interval":   "batch.poll_interval_sec",
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A missing file is not an error: defaults and environment overrides still
// apply.
func LoadConfig(path string) (*AppConfig, error) {
	return LoadConfigWithFlags(path, nil)
}

// LoadConfigWithFlags is LoadConfig with command-line overrides. Flags in
// flags that name a known setting take precedence over the file and the
// environment when they were set explicitly.
func LoadConfigWithFlags(path string, flags *pflag.FlagSet) (*AppConfig, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag --%s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks value ranges that would otherwise fail later at runtime.
func (c *AppConfig) Validate() error {
	var problems []string

	if c.Normalizer.MaxBodyLength <= 0 {
		problems = append(problems, "normalizer.max_body_length must be positive")
	}
	if c.Rules.OverrideThreshold < 0 || c.Rules.OverrideThreshold > 1 {
		problems = append(problems, "rules.override_threshold must be within [0,1]")
	}
	if c.Batch.Concurrency <= 0 {
		problems = append(problems, "batch.concurrency must be positive")
	}
	if c.Reasoning.TimeoutSec <= 0 {
		problems = append(problems, "reasoning.timeout_sec must be positive")
	}
	switch c.Mailbox.Type {
	case "", "gmail", "imap":
	default:
		problems = append(problems, fmt.Sprintf("mailbox.type %q is not supported", c.Mailbox.Type))
	}
	if c.Mailbox.Type != "" && c.Mailbox.UserEmail == "" {
		problems = append(problems, "mailbox.user_email is required when a mailbox is configured")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("mailbox", cfg.Mailbox)
	v.Set("reasoning", cfg.Reasoning)
	v.Set("normalizer", cfg.Normalizer)
	v.Set("rules", cfg.Rules)
	v.Set("batch", cfg.Batch)
	v.Set("store", cfg.Store)
	v.Set("server", cfg.Server)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

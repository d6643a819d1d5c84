package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 10000, cfg.Normalizer.MaxBodyLength)
	assert.Equal(t, 15, cfg.Reasoning.TimeoutSec)
	assert.Equal(t, 10, cfg.Reasoning.GenerationTimeoutSec)
	assert.Equal(t, 0.8, cfg.Rules.OverrideThreshold)
	assert.Equal(t, 10, cfg.Batch.Size)
	assert.ElementsMatch(t,
		[]string{"CATEGORY_PROMOTIONS", "CATEGORY_SOCIAL", "CATEGORY_UPDATES", "SPAM"},
		cfg.Rules.NoiseLabels,
	)
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
mailbox:
  type: imap
  user_email: me@example.com
  config:
    host: imap.example.com
normalizer:
  max_body_length: 500
batch:
  concurrency: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "imap", cfg.Mailbox.Type)
	assert.Equal(t, "me@example.com", cfg.Mailbox.UserEmail)
	assert.Equal(t, "imap.example.com", cfg.Mailbox.Config["host"])
	assert.Equal(t, 500, cfg.Normalizer.MaxBodyLength)
	assert.Equal(t, 2, cfg.Batch.Concurrency)
	// Untouched keys keep their defaults.
	assert.Equal(t, 10, cfg.Batch.Size)
}

func TestLoadConfigEnvironmentOverride(t *testing.T) {
	t.Setenv("CLARITY_REASONING_MODEL", "claude-test")
	t.Setenv("CLARITY_BATCH_SIZE", "25")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "claude-test", cfg.Reasoning.Model)
	assert.Equal(t, 25, cfg.Batch.Size)
}

func TestLoadConfigFlagsOverrideFileAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9000\"\n"), 0o600))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("addr", ":8080", "")
	flags.Int("batch-size", 10, "")
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse([]string{"--batch-size=25", "--log-level=debug"}))

	cfg, err := LoadConfigWithFlags(path, flags)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr, "unset flags must not shadow the file")
	assert.Equal(t, 25, cfg.Batch.Size)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
mailbox:
  type: pop3
rules:
  override_threshold: 1.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "override_threshold")
	assert.Contains(t, err.Error(), "pop3")
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultAppConfig()
	cfg.Mailbox.Type = "gmail"
	cfg.Mailbox.UserEmail = "me@example.com"

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "gmail", loaded.Mailbox.Type)
	assert.Equal(t, "me@example.com", loaded.Mailbox.UserEmail)
}

func TestParseCategory(t *testing.T) {
	c, ok := ParseCategory(" follow_up ")
	assert.True(t, ok)
	assert.Equal(t, CategoryFollowUp, c)

	c, ok = ParseCategory("URGENT")
	assert.False(t, ok)
	assert.False(t, c.IsSet())
}

func TestImportanceLevel(t *testing.T) {
	assert.Equal(t, ImportanceHigh, ImportanceLevel(0.8))
	assert.Equal(t, ImportanceMedium, ImportanceLevel(0.5))
	assert.Equal(t, ImportanceLow, ImportanceLevel(0.49))
}

func TestRequestRecipientChecksIgnoreCase(t *testing.T) {
	req := ClassificationRequest{
		UserEmail: "user@x.com",
		To:        []string{"other@x.com"},
		Cc:        []string{"User@X.com"},
	}
	assert.False(t, req.UserInTo())
	assert.True(t, req.UserInCc())
}

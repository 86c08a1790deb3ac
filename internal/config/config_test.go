package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://google.serper.dev", cfg.Serper.BaseURL)
	assert.Equal(t, "gh", cfg.Serper.Country)
	assert.Equal(t, 20, cfg.Serper.NumResults)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, int64(2000), cfg.Anthropic.MaxTokens)
	assert.Equal(t, "News Data", cfg.Sheets.Worksheet)
	assert.Equal(t, 4, cfg.Classifier.MaxAttempts)
	assert.Equal(t, 180, cfg.Classifier.RateLimitBackoffSecs)
	assert.Equal(t, 10, cfg.Classifier.ParseRetryDelaySecs)
	assert.Len(t, cfg.Backfill.Queries, 16)
	assert.Equal(t, 3, cfg.Backfill.BatchSize)
	assert.Equal(t, 1, cfg.Backfill.QueryPauseSecs)
	assert.Equal(t, 60, cfg.Backfill.BatchPauseSecs)
	assert.Equal(t, "cropwatch.db", cfg.Journal.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
serper:
  key: test-serper-key
  num_results: 10
backfill:
  batch_size: 5
  queries:
    - "Ghana cocoa news"
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-serper-key", cfg.Serper.Key)
	assert.Equal(t, 10, cfg.Serper.NumResults)
	assert.Equal(t, 5, cfg.Backfill.BatchSize)
	assert.Equal(t, []string{"Ghana cocoa news"}, cfg.Backfill.Queries)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	// Unlisted keys keep their defaults.
	assert.Equal(t, 60, cfg.Backfill.BatchPauseSecs)
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("CROPWATCH_ANTHROPIC_KEY", "env-key")
	t.Setenv("CROPWATCH_SHEETS_SPREADSHEET_ID", "sheet-123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Anthropic.Key)
	assert.Equal(t, "sheet-123", cfg.Sheets.SpreadsheetID)
}

func TestMissingCredentials(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	missing := cfg.MissingCredentials()
	assert.Equal(t, []string{
		"CROPWATCH_SERPER_KEY",
		"CROPWATCH_ANTHROPIC_KEY",
		"CROPWATCH_SHEETS_SPREADSHEET_ID",
		"CROPWATCH_SHEETS_CREDENTIALS_JSON",
	}, missing)

	cfg.Serper.Key = "s"
	cfg.Anthropic.Key = "a"
	cfg.Sheets.SpreadsheetID = "id"
	cfg.Sheets.CredentialsJSON = `{"type":"service_account"}`
	assert.Empty(t, cfg.MissingCredentials())
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	assert.Error(t, InitLogger(LogConfig{Level: "not-a-level", Format: "json"}))
}

package config_test

import (
	"os"
	"path/filepath"
	"river/config"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "river.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	policy := cfg.Policy()
	assert.Equal(t, 15*time.Minute, policy.PollInterval)
	assert.Equal(t, 3, policy.UnhealthyThreshold)
	assert.Equal(t, [3]time.Duration{5 * time.Minute, 15 * time.Minute, time.Hour}, policy.BackoffTiers)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout())
	assert.Equal(t, 30*24*time.Hour, cfg.RetentionPeriod())
	assert.Equal(t, time.Hour, cfg.RetentionInterval())
	assert.Equal(t, time.Minute, cfg.PollTick())
	assert.Equal(t, 1000, cfg.Ingestion.SnippetLength)
}

func TestLoadConfig_OverridesKeepDefaults(t *testing.T) {
	path := writeConfig(t, `
[ingestion]
poll_interval_minutes = 5
snippet_length = 280

[retention]
days = 7

[[feeds]]
url = "https://example.com/feed.xml"
title = "Example"

[[feeds]]
url = "https://example.org/rss"
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Policy().PollInterval)
	assert.Equal(t, 280, cfg.Ingestion.SnippetLength)
	assert.Equal(t, 7*24*time.Hour, cfg.RetentionPeriod())
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout())
	assert.Equal(t, 3, cfg.Ingestion.UnhealthyThreshold)

	require.Len(t, cfg.Feeds, 2)
	assert.Equal(t, config.TomlFeed{Url: "https://example.com/feed.xml", Title: "Example"}, cfg.Feeds[0])
	assert.Empty(t, cfg.Feeds[1].Title)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "syntax error", body: "[ingestion\npoll_interval_minutes = 5"},
		{name: "negative interval", body: "[ingestion]\npoll_interval_minutes = -1"},
		{name: "zero retention", body: "[retention]\ndays = 0"},
		{name: "feed without url", body: "[[feeds]]\ntitle = \"nope\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigOrDefault(t *testing.T) {
	cfg, err := config.LoadConfigOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	_, err = config.LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestShippedConfigIsValid(t *testing.T) {
	cfg, err := config.LoadConfig("river.toml")
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Feeds)
}

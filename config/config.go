package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"river/scheduler"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// TomlFeed is a feed subscribed at startup when not already present
type TomlFeed struct {
	Url   string `toml:"url"`
	Title string `toml:"title,omitempty"`
}

// TomlIngestion holds polling, backoff and extraction settings
type TomlIngestion struct {
	PollIntervalMinutes int    `toml:"poll_interval_minutes"`
	FetchTimeoutSeconds int    `toml:"fetch_timeout_seconds"`
	UnhealthyThreshold  int    `toml:"unhealthy_threshold"`
	BackoffTier1Minutes int    `toml:"backoff_tier1_minutes"`
	BackoffTier2Minutes int    `toml:"backoff_tier2_minutes"`
	BackoffTier3Minutes int    `toml:"backoff_tier3_minutes"`
	SnippetLength       int    `toml:"snippet_length"`
	UserAgent           string `toml:"user_agent"`
}

// TomlRetention controls how long items are kept
type TomlRetention struct {
	Days          int `toml:"days"`
	IntervalHours int `toml:"interval_hours"`
}

// TomlJobs controls the background tick rate
type TomlJobs struct {
	PollTickSeconds int `toml:"poll_tick_seconds"`
}

// TomlConfig represents the top-level configuration
type TomlConfig struct {
	Ingestion TomlIngestion `toml:"ingestion"`
	Retention TomlRetention `toml:"retention"`
	Jobs      TomlJobs      `toml:"jobs"`
	Feeds     []TomlFeed    `toml:"feeds"`
}

func Default() *TomlConfig {
	return &TomlConfig{
		Ingestion: TomlIngestion{
			PollIntervalMinutes: 15,
			FetchTimeoutSeconds: 10,
			UnhealthyThreshold:  3,
			BackoffTier1Minutes: 5,
			BackoffTier2Minutes: 15,
			BackoffTier3Minutes: 60,
			SnippetLength:       1000,
			UserAgent:           "RiverOfNews/1.0",
		},
		Retention: TomlRetention{
			Days:          30,
			IntervalHours: 1,
		},
		Jobs: TomlJobs{
			PollTickSeconds: 60,
		},
	}
}

func LoadConfig(path string) (*TomlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := Default()
	md, err := toml.Decode(string(data), config)
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	for _, key := range md.Undecoded() {
		log.WithFields(log.Fields{"key": key.String(), "path": path}).Warn("Unknown configuration key")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadConfigOrDefault behaves like LoadConfig but falls back to defaults when the
// file does not exist
func LoadConfigOrDefault(path string) (*TomlConfig, error) {
	config, err := LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.WithField("path", path).Info("No config file found, using defaults")
		return Default(), nil
	}
	return config, err
}

func (c *TomlConfig) Validate() error {
	positive := map[string]int{
		"ingestion.poll_interval_minutes": c.Ingestion.PollIntervalMinutes,
		"ingestion.fetch_timeout_seconds": c.Ingestion.FetchTimeoutSeconds,
		"ingestion.unhealthy_threshold":   c.Ingestion.UnhealthyThreshold,
		"ingestion.backoff_tier1_minutes": c.Ingestion.BackoffTier1Minutes,
		"ingestion.backoff_tier2_minutes": c.Ingestion.BackoffTier2Minutes,
		"ingestion.backoff_tier3_minutes": c.Ingestion.BackoffTier3Minutes,
		"ingestion.snippet_length":        c.Ingestion.SnippetLength,
		"retention.days":                  c.Retention.Days,
		"retention.interval_hours":        c.Retention.IntervalHours,
		"jobs.poll_tick_seconds":          c.Jobs.PollTickSeconds,
	}
	for key, value := range positive {
		if value <= 0 {
			return fmt.Errorf("invalid config: %s must be positive, got %d", key, value)
		}
	}

	for i, feed := range c.Feeds {
		if feed.Url == "" {
			return fmt.Errorf("invalid config: feeds[%d] is missing url", i)
		}
	}

	return nil
}

func (c *TomlConfig) Policy() scheduler.Policy {
	return scheduler.Policy{
		PollInterval:       time.Duration(c.Ingestion.PollIntervalMinutes) * time.Minute,
		UnhealthyThreshold: c.Ingestion.UnhealthyThreshold,
		BackoffTiers: [3]time.Duration{
			time.Duration(c.Ingestion.BackoffTier1Minutes) * time.Minute,
			time.Duration(c.Ingestion.BackoffTier2Minutes) * time.Minute,
			time.Duration(c.Ingestion.BackoffTier3Minutes) * time.Minute,
		},
	}
}

func (c *TomlConfig) FetchTimeout() time.Duration {
	return time.Duration(c.Ingestion.FetchTimeoutSeconds) * time.Second
}

func (c *TomlConfig) RetentionPeriod() time.Duration {
	return time.Duration(c.Retention.Days) * 24 * time.Hour
}

func (c *TomlConfig) RetentionInterval() time.Duration {
	return time.Duration(c.Retention.IntervalHours) * time.Hour
}

func (c *TomlConfig) PollTick() time.Duration {
	return time.Duration(c.Jobs.PollTickSeconds) * time.Second
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Persistence
	DBPath       string `envconfig:"DIGEST_DB_PATH" default:"digest.db"`
	ProjectsFile string `envconfig:"DIGEST_PROJECTS_FILE" default:"projects.yaml"`

	// Slack ingestion (optional — without a token the service runs on
	// already-ingested messages only)
	SlackBotToken string        `envconfig:"DIGEST_SLACK_BOT_TOKEN"`
	SlackChannels string        `envconfig:"DIGEST_SLACK_CHANNELS"` // comma-separated channel IDs to ingest
	SlackLookback time.Duration `envconfig:"DIGEST_SLACK_LOOKBACK" default:"24h"`

	// Summarizer (optional — falls back to deterministic summaries)
	AnthropicAPIKey   string        `envconfig:"ANTHROPIC_API_KEY"`
	SummarizerModel   string        `envconfig:"SUMMARIZER_MODEL" default:"claude-sonnet-4-5"`
	SummarizerTimeout time.Duration `envconfig:"SUMMARIZER_TIMEOUT" default:"20s"`

	// Digest users and schedule
	DigestUsers    string        `envconfig:"DIGEST_USERS"` // comma-separated user IDs to generate digests for
	DigestInterval time.Duration `envconfig:"DIGEST_INTERVAL" default:"24h"`
	MessageWindow  time.Duration `envconfig:"DIGEST_MESSAGE_WINDOW" default:"24h"`

	// Phase state machine thresholds
	StalenessWindow time.Duration `envconfig:"DIGEST_STALENESS_WINDOW" default:"336h"` // 14 days
	ActivityWindow  time.Duration `envconfig:"DIGEST_ACTIVITY_WINDOW" default:"168h"`  // 7 days

	// Relevance scoring constants
	RecencyHalfLife   time.Duration `envconfig:"DIGEST_RECENCY_HALF_LIFE" default:"8h"`
	UrgencyBoost      float64       `envconfig:"DIGEST_URGENCY_BOOST" default:"1.5"`
	MentionBoost      float64       `envconfig:"DIGEST_MENTION_BOOST" default:"1.8"`
	ActivityBoostStep float64       `envconfig:"DIGEST_ACTIVITY_BOOST_STEP" default:"0.05"`
	ActivityBoostCap  float64       `envconfig:"DIGEST_ACTIVITY_BOOST_CAP" default:"1.5"`
	ReviewMultiplier  float64       `envconfig:"DIGEST_REVIEW_MULTIPLIER" default:"0.5"`
	UnknownScore      float64       `envconfig:"DIGEST_UNKNOWN_SCORE" default:"0.3"`
	BlockedFloorScore float64       `envconfig:"DIGEST_BLOCKED_FLOOR_SCORE" default:"0.1"`

	// Assembly
	MaxDigestItems int `envconfig:"DIGEST_MAX_ITEMS" default:"20"`

	// Management API
	MgmtListenAddr     string `envconfig:"MGMT_LISTEN_ADDR" default:":8090"`
	MgmtAuthMode       string `envconfig:"MGMT_AUTH_MODE" default:"api-key"`
	MgmtAPIKey         string `envconfig:"MGMT_API_KEY"`
	MgmtRateLimitRPS   int    `envconfig:"MGMT_RATE_LIMIT_RPS" default:"100"`
	MgmtRateLimitBurst int    `envconfig:"MGMT_RATE_LIMIT_BURST" default:"200"`
	MgmtCORSOrigins    string `envconfig:"MGMT_CORS_ORIGINS"`
}

// SlackEnabled returns true if a Slack bot token is configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != ""
}

// SummarizerEnabled returns true if an Anthropic API key is configured.
func (c *Config) SummarizerEnabled() bool {
	return c.AnthropicAPIKey != ""
}

// SlackChannelList returns the parsed list of channel IDs to ingest.
// Returns nil if not configured.
func (c *Config) SlackChannelList() []string {
	return splitCommaList(c.SlackChannels)
}

// DigestUserList returns the parsed list of user IDs digests are generated for.
func (c *Config) DigestUserList() []string {
	return splitCommaList(c.DigestUsers)
}

func splitCommaList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks threshold sanity so a bad environment fails at startup,
// not mid-run.
func (c *Config) Validate() error {
	if c.StalenessWindow <= 0 {
		return fmt.Errorf("staleness window must be positive, got %s", c.StalenessWindow)
	}
	if c.ActivityWindow <= 0 {
		return fmt.Errorf("activity window must be positive, got %s", c.ActivityWindow)
	}
	if c.RecencyHalfLife <= 0 {
		return fmt.Errorf("recency half-life must be positive, got %s", c.RecencyHalfLife)
	}
	if c.MaxDigestItems <= 0 {
		return fmt.Errorf("max digest items must be positive, got %d", c.MaxDigestItems)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// Package config defines the process configuration of the swap-arb bot and
// provides validation helpers. Strategy parameters are not part of it; they
// live in the config store and are hot-reloaded by the supervisor.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SWAPARB_* environment variables.
type Config struct {
	BotID    string         `toml:"bot_id"`
	Bot      BotConfig      `toml:"bot"`
	Venues   []VenueConfig  `toml:"venues"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	LogLevel string         `toml:"log_level"`
}

// BotConfig holds worker cadences.
type BotConfig struct {
	LoopInterval      duration `toml:"loop_interval"`
	ReloadInterval    duration `toml:"reload_interval"`
	ReconcileInterval duration `toml:"reconcile_interval"`
	PollInterval      duration `toml:"poll_interval"`
	PublishInterval   duration `toml:"publish_interval"`
	SampleInterval    duration `toml:"sample_interval"`
	DispatchTimeout   duration `toml:"dispatch_timeout"`
	MaxLegGap         duration `toml:"max_leg_gap"`
	StaleAfter        duration `toml:"stale_after"`
	LeaseTTL          duration `toml:"lease_ttl"`
	// StartupTimeout bounds the wait for the venue pair's feeds to deliver
	// their first frames before the control loop starts.
	StartupTimeout duration `toml:"startup_timeout"`
	// StrategySeed is a JSON strategy config written to the store when the
	// bot has none yet.
	StrategySeed string `toml:"strategy_seed"`
}

// VenueConfig describes one exchange connection.
type VenueConfig struct {
	Name   string `toml:"name"`
	Feed   string `toml:"feed"` // binance | bybit
	WSURL  string `toml:"ws_url"`
	Depth  int    `toml:"depth"`
	Trader string `toml:"trader"` // paper
	// PaperLatency delays paper fills to mimic venue round trips.
	PaperLatency duration             `toml:"paper_latency"`
	Lots         map[string]LotConfig `toml:"lots"`
}

// LotConfig is one instrument's lot filter.
type LotConfig struct {
	StepSize           float64 `toml:"step_size"`
	MinQty             float64 `toml:"min_qty"`
	TickSize           float64 `toml:"tick_size"`
	ContractMultiplier float64 `toml:"contract_multiplier"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// TickerTTL expires mirrored tickers; zero keeps them forever.
	TickerTTL duration `toml:"ticker_ttl"`
}

// PostgresConfig holds the time-series database parameters.
type PostgresConfig struct {
	Enabled       bool     `toml:"enabled"`
	DSN           string   `toml:"dsn"`
	Host          string   `toml:"host"`
	Port          int      `toml:"port"`
	Database      string   `toml:"database"`
	User          string   `toml:"user"`
	Password      string   `toml:"password"`
	SSLMode       string   `toml:"ssl_mode"`
	PoolMaxConns  int      `toml:"pool_max_conns"`
	PoolMinConns  int      `toml:"pool_min_conns"`
	RunMigrations bool     `toml:"run_migrations"`
	FlushInterval duration `toml:"flush_interval"`
	MaxBatch      int      `toml:"max_batch"`
	AuditLog      bool     `toml:"audit_log"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled         bool     `toml:"enabled"`
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	ArchiveInterval duration `toml:"archive_interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"` // empty disables auth
	// RateLimit caps requests per client per minute; zero disables it.
	RateLimit int `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	RateLimit         int      `toml:"rate_limit"`
	RateWindow        duration `toml:"rate_window"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		BotID: "swaparb-1",
		Bot: BotConfig{
			LoopInterval:      duration{5 * time.Millisecond},
			ReloadInterval:    duration{10 * time.Second},
			ReconcileInterval: duration{time.Second},
			PollInterval:      duration{5 * time.Second},
			PublishInterval:   duration{time.Second},
			SampleInterval:    duration{10 * time.Millisecond},
			DispatchTimeout:   duration{10 * time.Second},
			MaxLegGap:         duration{10 * time.Second},
			StaleAfter:        duration{30 * time.Second},
			LeaseTTL:          duration{15 * time.Second},
			StartupTimeout:    duration{time.Minute},
		},
		Venues: []VenueConfig{
			{
				Name:   "binance",
				Feed:   "binance",
				WSURL:  "wss://fstream.binance.com/ws",
				Depth:  20,
				Trader: "paper",
			},
			{
				Name:   "bybit",
				Feed:   "bybit",
				WSURL:  "wss://stream.bybit.com/v5/public/linear",
				Depth:  50,
				Trader: "paper",
			},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			TickerTTL:  duration{time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "swaparb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
			FlushInterval: duration{time.Second},
			MaxBatch:      1000,
		},
		S3: S3Config{
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "swaparb-snapshots",
			ForcePathStyle:  true,
			ArchiveInterval: duration{5 * time.Minute},
		},
		Server: ServerConfig{
			Enabled:   true,
			Port:      8000,
			RateLimit: 120,
		},
		Notify: NotifyConfig{
			Events:     []string{"config_change", "trading_disabled", "unhedged_leg"},
			RateLimit:  10,
			RateWindow: duration{time.Minute},
		},
		LogLevel: "info",
	}
}

var validFeeds = map[string]bool{"binance": true, "bybit": true}

var validTraders = map[string]bool{"paper": true}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Venue returns the venue named name.
func (c *Config) Venue(name string) (VenueConfig, bool) {
	for _, v := range c.Venues {
		if v.Name == name {
			return v, true
		}
	}
	return VenueConfig{}, false
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.BotID) == "" {
		errs = append(errs, "bot_id must not be empty")
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	for _, d := range []struct {
		name string
		val  duration
	}{
		{"loop_interval", c.Bot.LoopInterval},
		{"reload_interval", c.Bot.ReloadInterval},
		{"reconcile_interval", c.Bot.ReconcileInterval},
		{"poll_interval", c.Bot.PollInterval},
		{"publish_interval", c.Bot.PublishInterval},
		{"dispatch_timeout", c.Bot.DispatchTimeout},
		{"stale_after", c.Bot.StaleAfter},
		{"lease_ttl", c.Bot.LeaseTTL},
		{"startup_timeout", c.Bot.StartupTimeout},
	} {
		if d.val.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("bot: %s must be > 0", d.name))
		}
	}

	// Venues
	if len(c.Venues) < 2 {
		errs = append(errs, fmt.Sprintf("venues: need at least two, got %d", len(c.Venues)))
	}
	seen := make(map[string]bool, len(c.Venues))
	for i, v := range c.Venues {
		if v.Name == "" {
			errs = append(errs, fmt.Sprintf("venues[%d]: name must not be empty", i))
			continue
		}
		if seen[v.Name] {
			errs = append(errs, fmt.Sprintf("venues: duplicate name %q", v.Name))
		}
		seen[v.Name] = true
		if !validFeeds[v.Feed] {
			errs = append(errs, fmt.Sprintf("venues.%s: unknown feed %q (valid: binance, bybit)", v.Name, v.Feed))
		}
		if v.WSURL == "" {
			errs = append(errs, fmt.Sprintf("venues.%s: ws_url must not be empty", v.Name))
		}
		if !validTraders[v.Trader] {
			errs = append(errs, fmt.Sprintf("venues.%s: unknown trader %q (valid: paper)", v.Name, v.Trader))
		}
		for sym, lot := range v.Lots {
			if lot.StepSize < 0 || lot.MinQty < 0 || lot.TickSize < 0 || lot.ContractMultiplier < 0 {
				errs = append(errs, fmt.Sprintf("venues.%s.lots.%s: values must be >= 0", v.Name, sym))
			}
		}
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	if c.Notify.RateLimit > 0 && c.Notify.RateWindow.Duration <= 0 {
		errs = append(errs, "notify: rate_window must be > 0 when rate_limit is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

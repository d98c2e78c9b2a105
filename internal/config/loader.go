package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SWAPARB_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned
// Config has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		// A [[venues]] table in the file replaces the default venue list.
		var venuesOnly struct {
			Venues []VenueConfig `toml:"venues"`
		}
		if _, err := toml.DecodeFile(path, &venuesOnly); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if len(venuesOnly.Venues) > 0 {
			cfg.Venues = nil
		}
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SWAPARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.BotID, "SWAPARB_BOT_ID")
	setStr(&cfg.LogLevel, "SWAPARB_LOG_LEVEL")

	// ── Bot ──
	setDuration(&cfg.Bot.LoopInterval, "SWAPARB_BOT_LOOP_INTERVAL")
	setDuration(&cfg.Bot.ReloadInterval, "SWAPARB_BOT_RELOAD_INTERVAL")
	setDuration(&cfg.Bot.PublishInterval, "SWAPARB_BOT_PUBLISH_INTERVAL")
	setDuration(&cfg.Bot.StaleAfter, "SWAPARB_BOT_STALE_AFTER")
	setDuration(&cfg.Bot.StartupTimeout, "SWAPARB_BOT_STARTUP_TIMEOUT")
	setStr(&cfg.Bot.StrategySeed, "SWAPARB_BOT_STRATEGY_SEED")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SWAPARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SWAPARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SWAPARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SWAPARB_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "SWAPARB_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "SWAPARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "SWAPARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SWAPARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SWAPARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SWAPARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SWAPARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SWAPARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SWAPARB_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "SWAPARB_POSTGRES_RUN_MIGRATIONS")
	setBool(&cfg.Postgres.AuditLog, "SWAPARB_POSTGRES_AUDIT_LOG")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SWAPARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SWAPARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SWAPARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "SWAPARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SWAPARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SWAPARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SWAPARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SWAPARB_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SWAPARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SWAPARB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SWAPARB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SWAPARB_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SWAPARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SWAPARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SWAPARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SWAPARB_NOTIFY_EVENTS")
	setInt(&cfg.Notify.RateLimit, "SWAPARB_NOTIFY_RATE_LIMIT")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

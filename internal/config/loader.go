package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies C9MARKET_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known C9MARKET_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setStr(&cfg.Market.AdminAddress, "C9MARKET_MARKET_ADMIN_ADDRESS")
	setInt64(&cfg.Market.MinFloorCents, "C9MARKET_MARKET_MIN_FLOOR_CENTS")
	setInt64(&cfg.Market.MaxCeilingCents, "C9MARKET_MARKET_MAX_CEILING_CENTS")

	// ── Operator ──
	setStr(&cfg.Operator.PrivateKey, "C9MARKET_OPERATOR_PRIVATE_KEY")
	setStr(&cfg.Operator.EncryptedKeyPath, "C9MARKET_OPERATOR_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Operator.KeyPassword, "C9MARKET_OPERATOR_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "C9MARKET_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "C9MARKET_CHAIN_CHAIN_ID")
	setStr(&cfg.Chain.RegistryAddress, "C9MARKET_CHAIN_REGISTRY_ADDRESS")
	setDuration(&cfg.Chain.ReceiptTimeout, "C9MARKET_CHAIN_RECEIPT_TIMEOUT")

	// ── Oracle ──
	setStr(&cfg.Oracle.FeedAddress, "C9MARKET_ORACLE_FEED_ADDRESS")
	setStr(&cfg.Oracle.FixedRate, "C9MARKET_ORACLE_FIXED_RATE")
	setInt(&cfg.Oracle.FixedDecimals, "C9MARKET_ORACLE_FIXED_DECIMALS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "C9MARKET_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "C9MARKET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "C9MARKET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "C9MARKET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "C9MARKET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "C9MARKET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "C9MARKET_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "C9MARKET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "C9MARKET_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "C9MARKET_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "C9MARKET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "C9MARKET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "C9MARKET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "C9MARKET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "C9MARKET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "C9MARKET_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.QuoteTTL, "C9MARKET_REDIS_QUOTE_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "C9MARKET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "C9MARKET_S3_REGION")
	setStr(&cfg.S3.Bucket, "C9MARKET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "C9MARKET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "C9MARKET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "C9MARKET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "C9MARKET_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "C9MARKET_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "C9MARKET_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "C9MARKET_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "C9MARKET_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "C9MARKET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "C9MARKET_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "C9MARKET_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "C9MARKET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "C9MARKET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "C9MARKET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "C9MARKET_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "C9MARKET_MODE")
	setStr(&cfg.LogLevel, "C9MARKET_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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

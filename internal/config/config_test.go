package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func validStandalone() Config {
	cfg := Defaults()
	cfg.Market.AdminAddress = "0xAd111111111111111111111111111111111111AA"
	return cfg
}

func TestDefaultsValidateAfterAdminIsSet(t *testing.T) {
	cfg := validStandalone()
	require.NoError(t, cfg.Validate())
}

func TestValidateCatchesProblems(t *testing.T) {
	testcases := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Mode = "turbo" },
			wantMsg: "unknown mode",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.LogLevel = "loud" },
			wantMsg: "unknown log_level",
		},
		{
			name:    "missing admin",
			mutate:  func(c *Config) { c.Market.AdminAddress = "" },
			wantMsg: "admin_address",
		},
		{
			name:    "inverted market bounds",
			mutate:  func(c *Config) { c.Market.MaxCeilingCents = c.Market.MinFloorCents },
			wantMsg: "max_ceiling_cents",
		},
		{
			name: "full mode without operator key",
			mutate: func(c *Config) {
				c.Mode = "full"
				c.Chain.RegistryAddress = "0x1"
			},
			wantMsg: "operator",
		},
		{
			name: "encrypted key without password",
			mutate: func(c *Config) {
				c.Mode = "full"
				c.Chain.RegistryAddress = "0x1"
				c.Operator.EncryptedKeyPath = "key.json"
			},
			wantMsg: "key_password",
		},
		{
			name: "server mode without postgres host",
			mutate: func(c *Config) {
				c.Mode = "server"
				c.Postgres.Host = ""
			},
			wantMsg: "postgres",
		},
		{
			name: "archive without bucket",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.S3.Bucket = ""
			},
			wantMsg: "bucket",
		},
		{
			name:    "oracle with neither feed nor fixed rate",
			mutate:  func(c *Config) { c.Oracle.FixedRate = "" },
			wantMsg: "oracle",
		},
		{
			name:    "bad server port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantMsg: "port",
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validStandalone()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "standalone"
log_level = "debug"

[market]
admin_address = "0xAd111111111111111111111111111111111111AA"
min_floor_cents = 500

[redis]
quote_ttl = "45s"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.EqualValues(t, 500, cfg.Market.MinFloorCents)
	require.Equal(t, "45s", cfg.Redis.QuoteTTL.Duration.String())

	// Untouched sections keep their defaults.
	require.Equal(t, 5432, cfg.Postgres.Port)
	require.NoError(t, cfg.Validate())
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[market]
admin_address = "0xAd111111111111111111111111111111111111AA"

[server]
port = 8000
`), 0o600))

	t.Setenv("C9MARKET_SERVER_PORT", "9100")
	t.Setenv("C9MARKET_MODE", "server")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, "server", cfg.Mode)
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := validStandalone()
	cfg.Operator.PrivateKey = "deadbeef"
	cfg.Postgres.Password = "hunter2"
	cfg.Server.APIKey = "sekrit"

	red := RedactedConfig(&cfg)
	require.Equal(t, "***", red.Operator.PrivateKey)
	require.Equal(t, "***", red.Postgres.Password)
	require.Equal(t, "***", red.Server.APIKey)

	// The original is untouched.
	require.Equal(t, "hunter2", cfg.Postgres.Password)
}

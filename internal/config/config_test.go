package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GUARD_DB_PATH", "TARGET_DB_PATH", "LISTEN_ADDR", "TLS_CERT_FILE",
		"TLS_KEY_FILE", "JWT_SECRET", "LOG_LEVEL", "ENV", "POLICY_SEED_PATH",
		"AUDIT_EXPORT_DIR", "AUDIT_EXPORT_SCHEDULE", "RATE_LIMIT_RPS",
		"RATE_LIMIT_BURST", "POLICY_REFRESH_INTERVAL", "CORS_ALLOWED_ORIGINS",
		"ALLOW_INSECURE_HTTP",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "sqlguard.sqlite", cfg.GuardDBPath)
	assert.Equal(t, "target.sqlite", cfg.TargetDBPath)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.PolicyRefreshInterval)
	assert.Equal(t, "0 * * * *", cfg.ExportSchedule)
	assert.Equal(t, 100.0, cfg.RateLimitRPS)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.NotEmpty(t, cfg.Warnings, "default JWT secret warns")
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GUARD_DB_PATH", "/data/guard.sqlite")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("RATE_LIMIT_RPS", "5.5")
	t.Setenv("POLICY_REFRESH_INTERVAL", "2m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/data/guard.sqlite", cfg.GuardDBPath)
	assert.Equal(t, 5.5, cfg.RateLimitRPS)
	assert.Equal(t, 2*time.Minute, cfg.PolicyRefreshInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadFromEnv_ProductionHardening(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "production")

	_, err := LoadFromEnv()
	require.Error(t, err, "missing JWT_SECRET is fatal in production")

	t.Setenv("JWT_SECRET", "s3cret")
	_, err = LoadFromEnv()
	require.Error(t, err, "CORS wildcard is fatal in production")

	t.Setenv("CORS_ALLOWED_ORIGINS", "https://console.example")
	_, err = LoadFromEnv()
	require.Error(t, err, "plain HTTP is fatal in production")

	t.Setenv("ALLOW_INSECURE_HTTP", "true")
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestLoadFromEnv_TLSPairRequired(t *testing.T) {
	clearEnv(t)
	t.Setenv("TLS_CERT_FILE", "/tls/cert.pem")

	_, err := LoadFromEnv()
	require.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", (&Config{LogLevel: "debug"}).SlogLevel().String())
	assert.Equal(t, "WARN", (&Config{LogLevel: "warning"}).SlogLevel().String())
	assert.Equal(t, "ERROR", (&Config{LogLevel: "error"}).SlogLevel().String())
	assert.Equal(t, "INFO", (&Config{LogLevel: ""}).SlogLevel().String())
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"# comment\n"+
			"GUARD_DB_PATH=/from/dotenv.sqlite\n"+
			"LISTEN_ADDR=\":9090\"\n"+
			"malformed line\n"), 0o600))

	t.Setenv("GUARD_DB_PATH", "/already/set.sqlite")
	require.NoError(t, LoadDotEnv(path))

	assert.Equal(t, "/already/set.sqlite", os.Getenv("GUARD_DB_PATH"), "env vars take precedence")
	assert.Equal(t, ":9090", os.Getenv("LISTEN_ADDR"), "quotes stripped")

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")), "missing file is not an error")
}

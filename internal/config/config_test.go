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
	for _, key := range []string{"CONFIG_PATH", "PORT", "CLIENT_URL", "GRPC_ADDR", "DB_DSN", "JWT_SECRET", "JWT_ISSUER",
		"AMQP_URL", "AMQP_EXCHANGE", "OTEL_EXPORTER_OTLP_ENDPOINT", "APP_ENV", "LOG_LEVEL", "DEBUG_ROUTES"} {
		if val, ok := os.LookupEnv(key); ok {
			require.NoError(t, os.Unsetenv(key))
			t.Cleanup(func() { _ = os.Setenv(key, val) })
		}
	}
}

func TestLoadFromEnvFillsDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_DSN", "postgres://localhost/messaging")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "9000")
	t.Setenv("DEBUG_ROUTES", "true")
	t.Setenv("CLIENT_URL", "http://localhost:3000, https://chat.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, ":9083", cfg.GRPC.Addr)
	assert.Equal(t, "messaging", cfg.AMQP.Exchange)
	assert.Equal(t, "dev", cfg.Logging.Env)
	assert.True(t, cfg.Debug.Enabled)
	assert.Equal(t, 8, cfg.WS.MaxInflight)
	assert.Equal(t, []string{"http://localhost:3000", "https://chat.example.com"}, cfg.AllowedOrigins())
	assert.Equal(t, 30*time.Second, cfg.PingInterval())
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
service: messaging-service
http:
  addr: ":8080"
postgres:
  dsn: postgres://file/messaging
auth:
  jwtSecret: from-file
ws:
  maxInflight: 2
  pingInterval: 5s
messages:
  maxContentLength: 500
`), 0o600))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "postgres://file/messaging", cfg.Postgres.DSN)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, 2, cfg.WS.MaxInflight)
	assert.Equal(t, 5*time.Second, cfg.PingInterval())
	assert.Equal(t, 500, cfg.Messages.MaxContentLength)
}

func TestValidateRequiresSecrets(t *testing.T) {
	cfg := Config{Postgres: Postgres{DSN: "postgres://x"}}
	assert.EqualError(t, cfg.Validate(), "auth.jwtSecret is required")

	cfg = Config{Auth: Auth{JWTSecret: "x"}}
	assert.EqualError(t, cfg.Validate(), "postgres.dsn is required")
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

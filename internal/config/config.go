package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr      string `yaml:"addr"`
	ClientURL string `yaml:"clientUrl"` // allowed websocket origins, comma separated
}

type GRPC struct {
	Addr string `yaml:"addr"`
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

type Auth struct {
	JWTSecret string `yaml:"jwtSecret"`
	Issuer    string `yaml:"issuer"`
}

type AMQP struct {
	URL         string `yaml:"url"`
	Exchange    string `yaml:"exchange"`
	RoutingKey  string `yaml:"routingKey"`
	DialRetries uint64 `yaml:"dialRetries"`
}

type Tracing struct {
	Endpoint string `yaml:"endpoint"`
}

type Logging struct {
	Env   string `yaml:"env"`   // dev|stage|prod
	Level string `yaml:"level"` // debug|info|warn|error
}

type Debug struct {
	Enabled bool `yaml:"enabled"`
}

type WS struct {
	MaxInflight  int    `yaml:"maxInflight"`
	SendBuffer   int    `yaml:"sendBuffer"`
	PingInterval string `yaml:"pingInterval"`
	PongWait     string `yaml:"pongWait"`
	WriteWait    string `yaml:"writeWait"`
	MaxFrameSize int64  `yaml:"maxFrameSize"`
}

type Messages struct {
	MaxContentLength int `yaml:"maxContentLength"`
}

type Config struct {
	Service  string   `yaml:"service"`
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Postgres Postgres `yaml:"postgres"`
	Auth     Auth     `yaml:"auth"`
	AMQP     AMQP     `yaml:"amqp"`
	Tracing  Tracing  `yaml:"tracing"`
	Logging  Logging  `yaml:"logging"`
	Debug    Debug    `yaml:"debug"`
	WS       WS       `yaml:"ws"`
	Messages Messages `yaml:"messages"`
}

// Load reads the optional YAML file named by CONFIG_PATH, overlays the
// environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if port, ok := os.LookupEnv("PORT"); ok && port != "" {
		c.HTTP.Addr = ":" + port
	}
	c.HTTP.ClientURL = getEnv("CLIENT_URL", c.HTTP.ClientURL)
	c.GRPC.Addr = getEnv("GRPC_ADDR", c.GRPC.Addr)
	c.Postgres.DSN = getEnv("DB_DSN", c.Postgres.DSN)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.Issuer = getEnv("JWT_ISSUER", c.Auth.Issuer)
	c.AMQP.URL = getEnv("AMQP_URL", c.AMQP.URL)
	c.AMQP.Exchange = getEnv("AMQP_EXCHANGE", c.AMQP.Exchange)
	c.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Tracing.Endpoint)
	c.Logging.Env = getEnv("APP_ENV", c.Logging.Env)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	if v, ok := os.LookupEnv("DEBUG_ROUTES"); ok {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Debug.Enabled = enabled
		}
	}
}

// Validate rejects a config the service cannot start with and fills in
// defaults for everything else.
func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwtSecret is required")
	}
	if c.Service == "" {
		c.Service = "messaging-service"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8083"
	}
	if c.GRPC.Addr == "" {
		c.GRPC.Addr = ":9083"
	}
	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "messaging"
	}
	if c.AMQP.RoutingKey == "" {
		c.AMQP.RoutingKey = "messaging"
	}
	if c.AMQP.DialRetries == 0 {
		c.AMQP.DialRetries = 3
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.WS.MaxInflight <= 0 {
		c.WS.MaxInflight = 8
	}
	if c.WS.SendBuffer <= 0 {
		c.WS.SendBuffer = 64
	}
	if c.WS.MaxFrameSize <= 0 {
		c.WS.MaxFrameSize = 64 << 10
	}
	if c.Messages.MaxContentLength <= 0 {
		c.Messages.MaxContentLength = 4096
	}
	return nil
}

// AllowedOrigins splits the configured client URLs.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.HTTP.ClientURL, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (c *Config) PingInterval() time.Duration {
	return parseDurationOr(30*time.Second, c.WS.PingInterval)
}

func (c *Config) PongWait() time.Duration {
	return parseDurationOr(60*time.Second, c.WS.PongWait)
}

func (c *Config) WriteWait() time.Duration {
	return parseDurationOr(10*time.Second, c.WS.WriteWait)
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// helper for parsing timeouts
func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}

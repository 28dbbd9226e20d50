package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/flare-fhir/flare/internal/platform/fhir"
	"github.com/flare-fhir/flare/internal/platform/workerpool"
)

type Config struct {
	FHIRBaseURL           string        `mapstructure:"FHIR_BASE_URL"`
	FHIRUsername          string        `mapstructure:"FHIR_USERNAME"`
	FHIRPassword          string        `mapstructure:"FHIR_PASSWORD"`
	FHIRPageCount         int           `mapstructure:"FHIR_PAGE_COUNT"`
	FHIRTimeout           time.Duration `mapstructure:"FHIR_TIMEOUT"`
	FHIRRequestsPerSecond float64       `mapstructure:"FHIR_REQUESTS_PER_SECOND"`

	PoolCoreSize         int `mapstructure:"POOL_CORE_SIZE"`
	PoolMaxSize          int `mapstructure:"POOL_MAX_SIZE"`
	PoolKeepAliveSeconds int `mapstructure:"POOL_KEEPALIVE_SECONDS"`
	PoolQueueSize        int `mapstructure:"POOL_QUEUE_SIZE"`

	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`

	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL    string `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`

	// DatabaseURL is optional; without it runs are not recorded.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
}

var keys = []string{
	"FHIR_BASE_URL", "FHIR_USERNAME", "FHIR_PASSWORD", "FHIR_PAGE_COUNT", "FHIR_TIMEOUT", "FHIR_REQUESTS_PER_SECOND",
	"POOL_CORE_SIZE", "POOL_MAX_SIZE", "POOL_KEEPALIVE_SECONDS", "POOL_QUEUE_SIZE",
	"PORT", "ENV", "LOG_LEVEL", "REQUEST_TIMEOUT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
}

// Load reads the environment, and a .env file in the working directory when
// one exists. Nothing is validated here; call Validate once flags have been
// applied.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	pool := workerpool.DefaultConfig()
	v.SetDefault("FHIR_PAGE_COUNT", 0)
	v.SetDefault("FHIR_TIMEOUT", "60s")
	v.SetDefault("FHIR_REQUESTS_PER_SECOND", 0)
	v.SetDefault("POOL_CORE_SIZE", pool.CoreSize)
	v.SetDefault("POOL_MAX_SIZE", pool.MaxSize)
	v.SetDefault("POOL_KEEPALIVE_SECONDS", int(pool.KeepAlive/time.Second))
	v.SetDefault("POOL_QUEUE_SIZE", pool.QueueSize)
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REQUEST_TIMEOUT", "5m")
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)

	// Unmarshal only sees keys viper knows about.
	for _, k := range keys {
		v.BindEnv(k)
	}

	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// PoolConfig returns the worker pool sizing.
func (c *Config) PoolConfig() workerpool.Config {
	return workerpool.Config{
		CoreSize:  c.PoolCoreSize,
		MaxSize:   c.PoolMaxSize,
		KeepAlive: time.Duration(c.PoolKeepAliveSeconds) * time.Second,
		QueueSize: c.PoolQueueSize,
	}
}

func (c *Config) FHIRClientConfig() fhir.ClientConfig {
	return fhir.ClientConfig{
		BaseURL:           c.FHIRBaseURL,
		Username:          c.FHIRUsername,
		Password:          c.FHIRPassword,
		PageCount:         c.FHIRPageCount,
		Timeout:           c.FHIRTimeout,
		RequestsPerSecond: c.FHIRRequestsPerSecond,
	}
}

// Validate checks everything the engine needs: pool sizing, the FHIR
// connection and the log level.
func (c *Config) Validate() error {
	if err := c.PoolConfig().Validate(); err != nil {
		return err
	}
	if c.FHIRBaseURL == "" {
		return fmt.Errorf("FHIR_BASE_URL is required")
	}
	u, err := url.Parse(c.FHIRBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("FHIR_BASE_URL %q must be an absolute http or https url", c.FHIRBaseURL)
	}
	if c.FHIRPageCount < 0 {
		return fmt.Errorf("FHIR_PAGE_COUNT must not be negative, got %d", c.FHIRPageCount)
	}
	if c.FHIRRequestsPerSecond < 0 {
		return fmt.Errorf("FHIR_REQUESTS_PER_SECOND must not be negative")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// ValidateServer adds the checks that only apply to the HTTP service.
// Outside development a key source for bearer tokens is required, and a
// shared signing key is refused in production.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive and RATE_LIMIT_BURST at least 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.IsDev() {
		return nil
	}
	if c.AuthJWKSURL == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_JWKS_URL or AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.IsProduction() && c.AuthSigningKey != "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is for development and testing only; use AUTH_JWKS_URL in production")
	}
	return nil
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the order dashboard service
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Pagination PaginationConfig `mapstructure:"pagination"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Services   ServicesConfig   `mapstructure:"services"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Teams      TeamsConfig      `mapstructure:"teams"`
}

// AppConfig holds application configuration
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
}

// UpstreamConfig holds the merchant-order API settings
type UpstreamConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	ClientID          string        `mapstructure:"client_id"`
	ClientSecret      string        `mapstructure:"client_secret"`
	Timeout           time.Duration `mapstructure:"timeout"`
	PageSize          int           `mapstructure:"page_size"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	TokenCheck        time.Duration `mapstructure:"token_check"`
}

// CacheConfig holds the orders and counts cache settings
type CacheConfig struct {
	TTL         time.Duration `mapstructure:"ttl"`
	CountsTTL   time.Duration `mapstructure:"counts_ttl"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
	StaleFactor int           `mapstructure:"stale_factor"`
}

// BreakerConfig holds circuit breaker settings
type BreakerConfig struct {
	Threshold      int           `mapstructure:"threshold"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// PaginationConfig overrides parts of the default pagination policy
type PaginationConfig struct {
	MaxPages        int           `mapstructure:"max_pages"`
	MaxRows         int           `mapstructure:"max_rows"`
	PageTimeout     time.Duration `mapstructure:"page_timeout"`
	SkipPages       []int         `mapstructure:"skip_pages"`
	SlowPageTimeout time.Duration `mapstructure:"slow_page_timeout"`
	PageDelay       time.Duration `mapstructure:"page_delay"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
}

// RedisConfig holds Redis snapshot store configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// ServicesConfig holds URLs for other services
type ServicesConfig struct {
	ProxyURL string `mapstructure:"proxy_url"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

// TeamsConfig holds the MS Teams escalation webhook settings
type TeamsConfig struct {
	WebhookURL     string `mapstructure:"webhook_url"`
	RequestsPerMin int    `mapstructure:"requests_per_minute"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	v := viper.New()

	v.AutomaticEnv()
	v.SetEnvPrefix("")

	_ = v.BindEnv("app.name", "APP_NAME")
	_ = v.BindEnv("app.env", "APP_ENV", "NODE_ENV")
	_ = v.BindEnv("app.port", "APP_PORT", "PORT")

	// Merchant-order API
	_ = v.BindEnv("upstream.base_url", "API_BASE_URL")
	_ = v.BindEnv("upstream.client_id", "PARTNER_CLIENT_ID")
	_ = v.BindEnv("upstream.client_secret", "PARTNER_CLIENT_SECRET")
	_ = v.BindEnv("upstream.timeout", "API_TIMEOUT")
	_ = v.BindEnv("upstream.page_size", "API_PAGE_SIZE")
	_ = v.BindEnv("upstream.requests_per_second", "API_REQUESTS_PER_SECOND")
	_ = v.BindEnv("upstream.token_check", "API_TOKEN_CHECK_INTERVAL")

	_ = v.BindEnv("cache.ttl", "CACHE_TTL")
	_ = v.BindEnv("cache.counts_ttl", "COUNTS_CACHE_TTL")
	_ = v.BindEnv("cache.snapshot_ttl", "SNAPSHOT_TTL")
	_ = v.BindEnv("cache.stale_factor", "CACHE_STALE_FACTOR")

	_ = v.BindEnv("breaker.threshold", "BREAKER_THRESHOLD")
	_ = v.BindEnv("breaker.cooldown", "BREAKER_COOLDOWN")
	_ = v.BindEnv("breaker.request_timeout", "BREAKER_REQUEST_TIMEOUT")

	_ = v.BindEnv("pagination.max_pages", "PAGINATION_MAX_PAGES")
	_ = v.BindEnv("pagination.max_rows", "PAGINATION_MAX_ROWS")
	_ = v.BindEnv("pagination.page_timeout", "PAGINATION_PAGE_TIMEOUT")
	_ = v.BindEnv("pagination.skip_pages", "PAGINATION_SKIP_PAGES")
	_ = v.BindEnv("pagination.slow_page_timeout", "PAGINATION_SLOW_PAGE_TIMEOUT")
	_ = v.BindEnv("pagination.page_delay", "PAGINATION_PAGE_DELAY")
	_ = v.BindEnv("pagination.retry_attempts", "PAGINATION_RETRY_ATTEMPTS")

	// Redis
	_ = v.BindEnv("redis.host", "REDIS_HOST")
	_ = v.BindEnv("redis.port", "REDIS_PORT")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")

	_ = v.BindEnv("nats.url", "NATS_URL")

	_ = v.BindEnv("services.proxy_url", "SERVICE_ORDER_PROXY_URL")

	_ = v.BindEnv("cors.allowed_origins", "ALLOWED_ORIGINS")

	_ = v.BindEnv("teams.webhook_url", "MS_TEAMS_WEBHOOK_URL", "NEXT_PUBLIC_MS_TEAMS_WEBHOOK_URL")
	_ = v.BindEnv("teams.requests_per_minute", "TEAMS_REQUESTS_PER_MINUTE")

	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "service-order-dashboard")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8010")

	// Upstream
	v.SetDefault("upstream.base_url", "")
	v.SetDefault("upstream.timeout", "30s")
	v.SetDefault("upstream.page_size", 5000)
	v.SetDefault("upstream.requests_per_second", 5)
	v.SetDefault("upstream.token_check", "1m")

	// Cache
	v.SetDefault("cache.ttl", "60s")
	v.SetDefault("cache.counts_ttl", "5s")
	v.SetDefault("cache.snapshot_ttl", "10m")
	v.SetDefault("cache.stale_factor", 2)

	// Breaker
	v.SetDefault("breaker.threshold", 3)
	v.SetDefault("breaker.cooldown", "30s")
	v.SetDefault("breaker.request_timeout", "5m")

	// Pagination
	v.SetDefault("pagination.max_pages", 10)
	v.SetDefault("pagination.max_rows", 25000)
	v.SetDefault("pagination.page_timeout", "30s")
	v.SetDefault("pagination.skip_pages", []int{2})
	v.SetDefault("pagination.slow_page_timeout", "5s")
	v.SetDefault("pagination.page_delay", "100ms")
	v.SetDefault("pagination.retry_attempts", 3)

	// Redis, disabled unless REDIS_HOST is set
	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// NATS, disabled unless NATS_URL is set
	v.SetDefault("nats.url", "")

	v.SetDefault("services.proxy_url", "")

	v.SetDefault("cors.allowed_origins", "*")

	// Escalations fail with a configuration error until a webhook is set
	v.SetDefault("teams.webhook_url", "")
	v.SetDefault("teams.requests_per_minute", 10)
}

// IsDevelopment reports whether development-only behaviour is enabled.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.App.Env, "development")
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production")
}

// RedisAddr returns host:port, or "" when Redis is not configured.
func (c *Config) RedisAddr() string {
	if c.Redis.Host == "" {
		return ""
	}
	return c.Redis.Host + ":" + c.Redis.Port
}

// AllowedOrigins splits the comma-separated CORS origin list.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORS.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

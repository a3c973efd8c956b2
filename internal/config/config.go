package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Database drivers supported by the repository layer.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DBDriver           string
	DatabaseURL        string
	MySQLDSN           string
	RedisURL           string
	MigrateOnStart     bool
	PromotionScopeMode string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	CORSAllowedOrigins []string

	CheckoutLockTTL   time.Duration
	IdempotencyTTL    time.Duration
	StoreCacheTTL     time.Duration
	RateLimitCheckout string

	PaymentGatewayBaseURL      string
	PaymentGatewayAccessToken  string
	PaymentWebhookSecret       string
	PaymentTimeout             time.Duration
	PaymentBreakerMinRequests  int
	PaymentBreakerFailureRatio float64
	PaymentBreakerOpenFor      time.Duration
	PaymentReturnURLs          ReturnURLs
	PixFallbackEnabled         bool
	WebhookReplayTTL           time.Duration

	KafkaBrokers      []string
	KafkaTopic        string
	QueueConcurrency  int
	ReconcileMaxRetry int
}

// ReturnURLs are the redirect targets handed to the gateway for card preferences.
type ReturnURLs struct {
	Success string
	Failure string
	Pending string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(firstNonEmpty(k.String("APP_PORT"), k.String("PORT")), "8080"),
		DBDriver:           strings.ToLower(valueOrDefault(k.String("DB_DRIVER"), DriverPostgres)),
		DatabaseURL:        k.String("DATABASE_URL"),
		MySQLDSN:           k.String("MYSQL_DSN"),
		RedisURL:           k.String("REDIS_URL"),
		MigrateOnStart:     parseBool(k.String("MIGRATE_ON_START")),
		PromotionScopeMode: strings.ToLower(valueOrDefault(k.String("PROMOTION_SCOPE_MODE"), "auto")),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          strings.TrimSpace(k.String("JWT_ISSUER")),
		JWTAudience:        strings.TrimSpace(k.String("JWT_AUDIENCE")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		CheckoutLockTTL:   parseDuration(k.String("CHECKOUT_LOCK_TTL"), "15s"),
		IdempotencyTTL:    parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		StoreCacheTTL:     parseDuration(k.String("STORE_CACHE_TTL"), "1m"),
		RateLimitCheckout: valueOrDefault(k.String("RATE_LIMIT_CHECKOUT"), "20-M"),

		PaymentGatewayBaseURL:      strings.TrimRight(valueOrDefault(k.String("PAYMENT_GATEWAY_BASE_URL"), "https://api.mercadopago.com"), "/"),
		PaymentGatewayAccessToken:  k.String("PAYMENT_GATEWAY_ACCESS_TOKEN"),
		PaymentWebhookSecret:       k.String("PAYMENT_WEBHOOK_SECRET"),
		PaymentTimeout:             parseDuration(k.String("PAYMENT_TIMEOUT"), "10s"),
		PaymentBreakerMinRequests:  parseInt(k.String("PAYMENT_BREAKER_MIN_REQUESTS"), 10),
		PaymentBreakerFailureRatio: parseFloat(k.String("PAYMENT_BREAKER_FAILURE_RATIO"), 0.5),
		PaymentBreakerOpenFor:      parseDuration(k.String("PAYMENT_BREAKER_OPEN_FOR"), "30s"),
		PaymentReturnURLs: ReturnURLs{
			Success: k.String("PAYMENT_RETURN_URL_SUCCESS"),
			Failure: k.String("PAYMENT_RETURN_URL_FAILURE"),
			Pending: k.String("PAYMENT_RETURN_URL_PENDING"),
		},
		PixFallbackEnabled: parseBoolDefault(k.String("PIX_FALLBACK_ENABLED"), true),
		WebhookReplayTTL:   parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),

		KafkaBrokers:      splitAndTrim(k.String("KAFKA_BROKERS")),
		KafkaTopic:        valueOrDefault(k.String("KAFKA_TOPIC"), "checkout.events"),
		QueueConcurrency:  parseInt(k.String("QUEUE_CONCURRENCY"), 5),
		ReconcileMaxRetry: parseInt(k.String("RECONCILE_MAX_RETRY"), 10),
	}

	switch cfg.DBDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required")
		}
	case DriverMySQL:
		if cfg.MySQLDSN == "" {
			return nil, errors.New("MYSQL_DSN is required when DB_DRIVER=mysql")
		}
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	switch cfg.PromotionScopeMode {
	case "auto", "column", "json":
	default:
		return nil, fmt.Errorf("unsupported PROMOTION_SCOPE_MODE %q", cfg.PromotionScopeMode)
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// GatewayEnabled reports whether an external payment gateway is configured.
func (c *Config) GatewayEnabled() bool {
	return strings.TrimSpace(c.PaymentGatewayAccessToken) != ""
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return parseBool(value)
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}

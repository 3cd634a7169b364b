package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	JWTSecret          string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeAPIBase       string
	PaymentCurrency     string
	PlatformFeeBPS      int64

	// Zoom server-to-server OAuth
	ZoomAccountID      string
	ZoomClientID       string
	ZoomClientSecret   string
	ZoomAPIBase        string
	ZoomTokenURL       string
	VideoAutoProvision bool
	VideoLockTTL       time.Duration

	DefaultTimezone string

	// Background workers
	ReminderLeadTime time.Duration
	ReminderInterval time.Duration
	OutboxInterval   time.Duration
	NotifyStream     string
	StaleBookingAge  time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		JWTSecret:          getEnv("JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeAPIBase:       getEnv("STRIPE_API_BASE", ""),
		PaymentCurrency:     strings.ToLower(getEnv("PAYMENT_CURRENCY", "usd")),
		PlatformFeeBPS:      int64(getEnvAsInt("PLATFORM_FEE_BPS", 2000)),

		ZoomAccountID:      getEnv("ZOOM_ACCOUNT_ID", ""),
		ZoomClientID:       getEnv("ZOOM_CLIENT_ID", ""),
		ZoomClientSecret:   getEnv("ZOOM_CLIENT_SECRET", ""),
		ZoomAPIBase:        getEnv("ZOOM_API_BASE", "https://api.zoom.us/v2"),
		ZoomTokenURL:       getEnv("ZOOM_TOKEN_URL", "https://zoom.us/oauth/token"),
		VideoAutoProvision: getEnvAsBool("VIDEO_AUTO_PROVISION", true),
		VideoLockTTL:       getEnvAsDuration("VIDEO_LOCK_TTL", 30*time.Second),

		DefaultTimezone: getEnv("DEFAULT_TIMEZONE", "UTC"),

		ReminderLeadTime: getEnvAsDuration("REMINDER_LEAD_TIME", 24*time.Hour),
		ReminderInterval: getEnvAsDuration("REMINDER_INTERVAL", 5*time.Minute),
		OutboxInterval:   getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),
		NotifyStream:     getEnv("NOTIFY_STREAM", "notifications"),
		StaleBookingAge:  getEnvAsDuration("STALE_BOOKING_AGE", time.Hour),
	}
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env      string
	HTTPAddr string

	DatabaseDriver string
	DatabaseURL    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTIssuer        string
	JWTAudience      string
	JWTAccessSecret  string
	JWTRefreshSecret string
	JWTAccessTTL     time.Duration
	JWTRefreshTTL    time.Duration
	TokenPepper      string

	SessionTTL           time.Duration
	SessionAllowIPChange bool

	LockoutMaxAttempts int
	LockoutWindow      time.Duration

	AnomalyThreshold        int
	AnomalyLocationWeight   int
	AnomalyHourWeight       int
	AnomalyConcurrentWeight int

	KeyRotationInterval time.Duration
	KeyCacheTTL         time.Duration
	MaxPlaintextBytes   int

	AuthRateLimitRPM int
	APIRateLimitRPM  int

	OTELMetricsEnabled        bool
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELServiceName           string
	OTELEnvironment           string
	OTELMetricsExportInterval time.Duration

	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:      getEnv("APP_ENV", "dev"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseURL:    getEnv("DATABASE_URL", "file:secure-session.db?cache=shared"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		JWTIssuer:        getEnv("JWT_ISSUER", "secure-session-service"),
		JWTAudience:      getEnv("JWT_AUDIENCE", "secure-session-service"),
		JWTAccessSecret:  os.Getenv("JWT_ACCESS_SECRET"),
		JWTRefreshSecret: os.Getenv("JWT_REFRESH_SECRET"),
		TokenPepper:      os.Getenv("TOKEN_PEPPER"),

		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "secure-session-service"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", "dev"),
	}

	var err error
	if cfg.RedisDB, err = parseInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.JWTAccessTTL, err = parseDuration("JWT_ACCESS_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.JWTRefreshTTL, err = parseDuration("JWT_REFRESH_TTL", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = parseDuration("SESSION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SessionAllowIPChange, err = parseBool("SESSION_ALLOW_IP_CHANGE", false); err != nil {
		return nil, err
	}
	if cfg.LockoutMaxAttempts, err = parseInt("LOCKOUT_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.LockoutWindow, err = parseDuration("LOCKOUT_WINDOW", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.AnomalyThreshold, err = parseInt("ANOMALY_THRESHOLD", 3); err != nil {
		return nil, err
	}
	if cfg.AnomalyLocationWeight, err = parseInt("ANOMALY_LOCATION_WEIGHT", 2); err != nil {
		return nil, err
	}
	if cfg.AnomalyHourWeight, err = parseInt("ANOMALY_HOUR_WEIGHT", 1); err != nil {
		return nil, err
	}
	if cfg.AnomalyConcurrentWeight, err = parseInt("ANOMALY_CONCURRENT_WEIGHT", 3); err != nil {
		return nil, err
	}
	if cfg.KeyRotationInterval, err = parseDuration("KEY_ROTATION_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.KeyCacheTTL, err = parseDuration("KEY_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MaxPlaintextBytes, err = parseInt("CRYPTO_MAX_PLAINTEXT_BYTES", 1<<20); err != nil {
		return nil, err
	}
	if cfg.AuthRateLimitRPM, err = parseInt("AUTH_RATE_LIMIT_RPM", 10); err != nil {
		return nil, err
	}
	if cfg.APIRateLimitRPM, err = parseInt("API_RATE_LIMIT_RPM", 120); err != nil {
		return nil, err
	}
	if cfg.OTELMetricsEnabled, err = parseBool("OTEL_METRICS_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.OTELExporterOTLPInsecure, err = parseBool("OTEL_EXPORTER_OTLP_INSECURE", true); err != nil {
		return nil, err
	}
	if cfg.OTELMetricsExportInterval, err = parseDuration("OTEL_METRICS_EXPORT_INTERVAL", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = parseDuration("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		recordConfigValidationEvent(context.Background(), cfg.Env, "failure", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigValidationEvent(context.Background(), cfg.Env, "success", "none")
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("validate config: unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("validate config: DATABASE_URL is required")
	}
	if c.IsProd() {
		if c.JWTAccessSecret == "" || c.JWTRefreshSecret == "" {
			return fmt.Errorf("validate config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required in prod")
		}
		if len(c.JWTAccessSecret) < 32 || len(c.JWTRefreshSecret) < 32 {
			return fmt.Errorf("validate config: JWT secrets must be at least 32 bytes in prod")
		}
		if c.TokenPepper == "" {
			return fmt.Errorf("validate config: TOKEN_PEPPER is required in prod")
		}
	}
	if c.JWTAccessSecret == "" {
		c.JWTAccessSecret = "dev-access-secret-not-for-production"
	}
	if c.JWTRefreshSecret == "" {
		c.JWTRefreshSecret = "dev-refresh-secret-not-for-production"
	}
	if c.LockoutMaxAttempts <= 0 {
		return fmt.Errorf("validate config: LOCKOUT_MAX_ATTEMPTS must be positive")
	}
	if c.AnomalyThreshold <= 0 {
		return fmt.Errorf("validate config: ANOMALY_THRESHOLD must be positive")
	}
	if c.KeyCacheTTL >= c.KeyRotationInterval {
		return fmt.Errorf("validate config: KEY_CACHE_TTL must be shorter than KEY_ROTATION_INTERVAL")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("validate config: SESSION_TTL must be positive")
	}
	return nil
}

func (c *Config) IsProd() bool {
	return normalizeConfigProfile(c.Env) == "prod"
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/raakeshmj/vpnshield/internal/reliability"
)

const devSessionSecret = "dev-only-session-secret-change-me-0000"

// MinSecretLength is the minimum signing secret size accepted in production.
const MinSecretLength = 32

type Config struct {
	Env         string
	ServerPort  string
	DatabaseURL string
	RedisAddr   string
	JWTSecret   string
	LogLevel    string

	AllowedOrigins []string
	TrustProxy     bool
	// ProxyHops is the number of trusted proxies appending to X-Forwarded-For.
	ProxyHops int

	RateLimitMax        int
	RateLimitWindow     time.Duration
	AuthRateLimitMax    int
	AuthRateLimitWindow time.Duration
	LockoutMaxFailures  int
	LockoutWindow       time.Duration
	LimiterStrategy     reliability.FailureStrategy

	MaxBodyBytes int64
	BcryptCost   int
	BlockedIPs   []string

	GoogleUserInfoURL string
	GitHubUserURL     string
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads the environment. In production the signing secret, allowed
// origins and rate limits have no defaults and must be set.
func Load() (*Config, error) {
	var errs []error
	env := strings.ToLower(getEnv("APP_ENV", "development"))
	prod := env == "production"

	required := func(key, fallback string) string {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v
		}
		if prod {
			errs = append(errs, fmt.Errorf("%s must be set in production", key))
		}
		return fallback
	}

	secret := getEnv("SESSION_SECRET", getEnv("JWT_SECRET", ""))
	switch {
	case secret == "" && prod:
		errs = append(errs, errors.New("SESSION_SECRET must be set in production"))
	case secret == "":
		secret = devSessionSecret
	case prod && len(secret) < MinSecretLength:
		errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least %d bytes", MinSecretLength))
	}

	cfg := &Config{
		Env:         env,
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisAddr:   getEnv("REDIS_ADDR", ""),
		JWTSecret:   secret,
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		AllowedOrigins: splitList(required("ALLOWED_ORIGINS", "http://localhost:3000")),
		TrustProxy:     getBool("TRUST_PROXY", false, &errs),
		ProxyHops:      parseInt("TRUSTED_PROXY_HOPS", getEnv("TRUSTED_PROXY_HOPS", "1"), &errs),

		RateLimitMax:        parseInt("RATE_LIMIT_MAX", required("RATE_LIMIT_MAX", "100"), &errs),
		RateLimitWindow:     parseDuration("RATE_LIMIT_WINDOW", required("RATE_LIMIT_WINDOW", "15m"), &errs),
		AuthRateLimitMax:    parseInt("AUTH_RATE_LIMIT_MAX", required("AUTH_RATE_LIMIT_MAX", "10"), &errs),
		AuthRateLimitWindow: parseDuration("AUTH_RATE_LIMIT_WINDOW", required("AUTH_RATE_LIMIT_WINDOW", "15m"), &errs),
		LockoutMaxFailures:  parseInt("LOCKOUT_MAX_FAILURES", getEnv("LOCKOUT_MAX_FAILURES", "5"), &errs),
		LockoutWindow:       parseDuration("LOCKOUT_WINDOW", getEnv("LOCKOUT_WINDOW", "15m"), &errs),
		LimiterStrategy:     reliability.FailureStrategy(getEnv("LIMITER_FAILURE_STRATEGY", string(reliability.FailClosed))),

		MaxBodyBytes: int64(parseInt("MAX_BODY_BYTES", getEnv("MAX_BODY_BYTES", "10240"), &errs)),
		BcryptCost:   parseInt("BCRYPT_COST", getEnv("BCRYPT_COST", "12"), &errs),
		BlockedIPs:   splitList(getEnv("BLOCKED_IPS", "")),

		GoogleUserInfoURL: getEnv("OAUTH_GOOGLE_USERINFO_URL", "https://openidconnect.googleapis.com/v1/userinfo"),
		GitHubUserURL:     getEnv("OAUTH_GITHUB_USER_URL", "https://api.github.com/user"),
	}

	if err := reliability.ParseStrategy(string(cfg.LimiterStrategy)); err != nil {
		errs = append(errs, err)
	}
	if len(cfg.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("ALLOWED_ORIGINS must list at least one origin"))
	}
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			errs = append(errs, errors.New("ALLOWED_ORIGINS must not contain a wildcard"))
		}
	}
	if cfg.RateLimitMax <= 0 || cfg.AuthRateLimitMax <= 0 || cfg.LockoutMaxFailures <= 0 {
		errs = append(errs, errors.New("rate limit and lockout maxima must be positive"))
	}
	if cfg.RateLimitWindow <= 0 || cfg.AuthRateLimitWindow <= 0 || cfg.LockoutWindow <= 0 {
		errs = append(errs, errors.New("rate limit and lockout windows must be positive"))
	}
	if cfg.TrustProxy && cfg.ProxyHops <= 0 {
		errs = append(errs, errors.New("TRUSTED_PROXY_HOPS must be positive when TRUST_PROXY is set"))
	}
	if cfg.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("MAX_BODY_BYTES must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool, errs *[]error) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func parseInt(key, v string, errs *[]error) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
	}
	return n
}

// parseDuration accepts Go durations ("15m") or bare milliseconds ("900000").
func parseDuration(key, v string, errs *[]error) time.Duration {
	v = strings.TrimSpace(v)
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

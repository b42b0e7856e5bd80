// Package config reads process configuration from the environment. A .env file
// in the working directory is loaded first when present; real environment
// variables win over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const devSigningKey = "dev-secret-key-change-in-production"

// Server captures HTTP server level configuration.
type Server struct {
	Addr        string
	LogLevel    string
	LogFormat   string
	Environment string

	Auth      Auth
	RateLimit RateLimit
	Redis     Redis

	// DatabaseURL selects the Postgres user store; empty uses the in-memory registry.
	DatabaseURL    string
	// UsersFile is a YAML seed file for the in-memory registry.
	UsersFile      string
	// TrustedProxies may set X-Forwarded-For; every other peer is keyed by its own address.
	TrustedProxies []netip.Prefix
}

type Auth struct {
	JWTSigningKey   string
	Issuer          string
	Audience        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	LegacyTokens    bool
	// DeviceFingerprint enables refresh-token binding to a coarse client fingerprint.
	DeviceFingerprint bool
}

type RateLimit struct {
	Disabled         bool
	FailureThreshold int
	SuccessThreshold int
	CleanupInterval  time.Duration
}

// Redis is optional; an empty URL keeps every store in process.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Load reads .env (if any) and then the environment.
func Load() (Server, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Server{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var errs []error
	cfg := Server{
		Addr:        getEnv("TELLER_ADDR", ":8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
		Environment: getEnv("ENVIRONMENT", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		UsersFile:   os.Getenv("USERS_FILE"),
		Auth: Auth{
			JWTSigningKey:     getEnv("JWT_SIGNING_KEY", devSigningKey),
			Issuer:            getEnv("JWT_ISSUER", "interswitch-banking"),
			Audience:          getEnv("JWT_AUDIENCE", "interswitch-banking-client"),
			AccessTokenTTL:    getDuration("ACCESS_TOKEN_TTL", time.Hour, &errs),
			RefreshTokenTTL:   getDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour, &errs),
			LegacyTokens:      getBool("LEGACY_TOKENS", false, &errs),
			DeviceFingerprint: getBool("DEVICE_FINGERPRINT", true, &errs),
		},
		RateLimit: RateLimit{
			Disabled:         getBool("RATE_LIMIT_DISABLED", false, &errs),
			FailureThreshold: getInt("RATE_LIMIT_BREAKER_FAILURES", 5, &errs),
			SuccessThreshold: getInt("RATE_LIMIT_BREAKER_SUCCESSES", 3, &errs),
			CleanupInterval:  getDuration("RATE_LIMIT_CLEANUP_INTERVAL", time.Minute, &errs),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10, &errs),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2, &errs),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second, &errs),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second, &errs),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second, &errs),
		},
		TrustedProxies: getPrefixes("TRUSTED_PROXIES", &errs),
	}
	if err := errors.Join(errs...); err != nil {
		return Server{}, err
	}
	if cfg.IsProduction() && cfg.Auth.JWTSigningKey == devSigningKey {
		return Server{}, errors.New("JWT_SIGNING_KEY must be set in production")
	}
	return cfg, nil
}

func (s Server) IsProduction() bool {
	return strings.EqualFold(s.Environment, "production")
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool, errs *[]error) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func getInt(key string, fallback int, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	if d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: must be positive, got %s", key, d))
		return fallback
	}
	return d
}

// getPrefixes parses a comma-separated list of CIDRs or bare addresses.
func getPrefixes(key string, errs *[]error) []netip.Prefix {
	var out []netip.Prefix
	for _, field := range strings.Split(os.Getenv(key), ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if addr, err := netip.ParseAddr(field); err == nil {
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(field)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		out = append(out, p.Masked())
	}
	return out
}

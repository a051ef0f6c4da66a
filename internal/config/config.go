package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// DefaultJWTSecret is only acceptable outside production.
const DefaultJWTSecret = "dev-secret"

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	minProductionSecretLen = 32
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig          `env:", prefix=APP_"`
	Postgres     PostgresConfig     `env:", prefix=POSTGRES_"`
	Redis        RedisConfig        `env:", prefix=REDIS_"`
	Logger       LoggerConfig       `env:", prefix=LOG_"`
	Auth         AuthConfig         `env:", prefix=AUTH_"`
	RateLimit    RateLimitConfig    `env:", prefix=RATE_LIMIT_"`
	Admin        AdminSeedConfig    `env:", prefix=ADMIN_"`
	Notification NotificationConfig `env:", prefix=NOTIFY_"`
	Refresh      RefreshConfig      `env:", prefix=REFRESH_"`
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `env:"NAME, default=helpdesk-service"`
	Env                   string `env:"ENV, default=development"`
	Host                  string `env:"HOST, default=0.0.0.0"`
	Port                  string `env:"PORT, default=8080"`
	Version               string `env:"VERSION, default=dev"`
	RequestTimeoutSeconds int    `env:"REQUEST_TIMEOUT_SECONDS, default=30"`
	TrustProxy            bool   `env:"TRUST_PROXY, default=false"`
	CORSOrigins           string `env:"CORS_ORIGINS, default=http://localhost:5173"`
}

// PostgresConfig holds DB connection values. An empty DSN selects the in-memory store.
type PostgresConfig struct {
	DSN            string `env:"DSN"`
	MaxConns       int32  `env:"MAX_CONNS, default=10"`
	MinConns       int32  `env:"MIN_CONNS, default=2"`
	RunMigrations  bool   `env:"RUN_MIGRATIONS, default=false"`
	ConnMaxIdleSec int32  `env:"CONN_MAX_IDLE_SECONDS, default=30"`
	ConnMaxLifeSec int32  `env:"CONN_MAX_LIFE_SECONDS, default=300"`
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string `env:"ADDR, default=127.0.0.1:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB, default=0"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string `env:"LEVEL, default=info"`
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string `env:"JWT_SECRET, default=dev-secret"`
	AccessTokenTTLMinutes int    `env:"ACCESS_TOKEN_TTL_MINUTES, default=60"`
	BcryptCost            int    `env:"BCRYPT_COST, default=12"`
}

// RateLimitConfig tunes the auth endpoint windows and the general throttle.
type RateLimitConfig struct {
	Backend             string `env:"BACKEND, default=memory"`
	LoginLimit          int    `env:"LOGIN_LIMIT, default=5"`
	LoginWindowSec      int    `env:"LOGIN_WINDOW_SECONDS, default=60"`
	RegisterLimit       int    `env:"REGISTER_LIMIT, default=3"`
	RegisterWindowSec   int    `env:"REGISTER_WINDOW_SECONDS, default=60"`
	GeneralRPS          int    `env:"GENERAL_RPS, default=20"`
	GeneralBurst        int    `env:"GENERAL_BURST, default=40"`
	PruneIntervalSecond int    `env:"PRUNE_INTERVAL_SECONDS, default=60"`
}

// AdminSeedConfig is read by the seed-admin command.
type AdminSeedConfig struct {
	Email    string `env:"EMAIL, default=admin@example.com"`
	Name     string `env:"NAME, default=Admin"`
	Password string `env:"PASSWORD"`
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string `env:"EMAIL_FROM, default=noreply@example.com"`
	WebhookURL string `env:"WEBHOOK_URL"`
}

// RefreshConfig tunes the refresh-tickets job.
type RefreshConfig struct {
	Concurrency  int `env:"CONCURRENCY, default=5"`
	MaxAttempts  int `env:"MAX_ATTEMPTS, default=3"`
	BaseDelayMS  int `env:"BASE_DELAY_MS, default=1000"`
	MarkerTTLSec int `env:"MARKER_TTL_SECONDS, default=3600"`
}

// BaseDelay is the first retry delay; later retries double it.
func (r RefreshConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

// MarkerTTL is how long a processed marker suppresses another run.
func (r RefreshConfig) MarkerTTL() time.Duration {
	return time.Duration(r.MarkerTTLSec) * time.Second
}

// Load reads configuration from the environment, after merging an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFrom(context.Background(), envconfig.OsLookuper())
}

// LoadFrom fills the configuration from the given lookuper.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configurations that must not reach a production deployment.
func (c *Config) Validate() error {
	var errs []error
	if c.IsProduction() {
		secret := strings.TrimSpace(c.Auth.JWTSecret)
		switch {
		case secret == "":
			errs = append(errs, errors.New("AUTH_JWT_SECRET is required in production"))
		case secret == DefaultJWTSecret:
			errs = append(errs, errors.New("AUTH_JWT_SECRET must not use the development default in production"))
		case len(secret) < minProductionSecretLen:
			errs = append(errs, fmt.Errorf("AUTH_JWT_SECRET must be at least %d bytes in production", minProductionSecretLen))
		}
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required in production"))
		}
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET must not be empty"))
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND %q is not one of memory, redis", c.RateLimit.Backend))
	}
	if c.RateLimit.LoginLimit <= 0 || c.RateLimit.RegisterLimit <= 0 {
		errs = append(errs, errors.New("rate limit counts must be positive"))
	}
	if c.Refresh.Concurrency <= 0 || c.Refresh.MaxAttempts <= 0 {
		errs = append(errs, errors.New("REFRESH_CONCURRENCY and REFRESH_MAX_ATTEMPTS must be positive"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, EnvProduction) || strings.EqualFold(c.App.Env, "prod")
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the bearer token lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	if a.AccessTokenTTLMinutes <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// LoginWindow returns the sliding window used for login attempts.
func (r RateLimitConfig) LoginWindow() time.Duration {
	return seconds(r.LoginWindowSec, time.Minute)
}

// RegisterWindow returns the sliding window used for registrations.
func (r RateLimitConfig) RegisterWindow() time.Duration {
	return seconds(r.RegisterWindowSec, time.Minute)
}

// PruneInterval returns how often idle rate-limit keys are dropped.
func (r RateLimitConfig) PruneInterval() time.Duration {
	return seconds(r.PruneIntervalSecond, time.Minute)
}

func seconds(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Second
}

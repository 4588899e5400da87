package app

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the console.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`
	RateLimit         int           `envconfig:"RATE_LIMIT" default:"240"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"720h"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	GovernanceAPIURL   string        `envconfig:"GOVERNANCE_API_URL" default:"http://127.0.0.1:9000"`
	GovernanceAPIToken string        `envconfig:"GOVERNANCE_API_TOKEN"`
	GovernanceTimeout  time.Duration `envconfig:"GOVERNANCE_TIMEOUT" default:"10s"`

	LookupCacheTTL     time.Duration `envconfig:"LOOKUP_CACHE_TTL" default:"10m"`
	WorkspaceCacheSize int           `envconfig:"WORKSPACE_CACHE_SIZE" default:"512"`
	WorkspaceTTL       time.Duration `envconfig:"WORKSPACE_TTL" default:"30m"`

	// DemoFallback shows the fallback rows of screens whose backend is not
	// available yet.
	DemoFallback bool   `envconfig:"DEMO_FALLBACK" default:"false"`
	WarmupCron   string `envconfig:"WARMUP_CRON" default:"*/15 * * * *"`

	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"5"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("session secret must be provided")
	}
	if cfg.CSRFSecret == "" {
		return nil, errors.New("csrf secret must be provided")
	}
	if cfg.GovernanceAPIURL == "" {
		return nil, errors.New("governance api url must be provided")
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

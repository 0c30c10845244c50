package config

import (
	"fmt"
	"time"

	cenv "github.com/caarlos0/env/v11"

	"github.com/ManuelReschke/MarketFox/internal/pkg/env"
)

// Config is the typed process configuration.
type Config struct {
	AppHost string `env:"APP_HOST" envDefault:"0.0.0.0"`
	AppPort string `env:"APP_PORT" envDefault:"4000"`
	AppEnv  string `env:"APP_ENV" envDefault:"prod"`

	DBHost     string `env:"DB_HOST" envDefault:"127.0.0.1"`
	DBPort     string `env:"DB_PORT" envDefault:"3306"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" envDefault:"marketfox"`

	CacheHost     string        `env:"CACHE_HOST" envDefault:"localhost"`
	CachePort     string        `env:"CACHE_PORT" envDefault:"6379"`
	CachePassword string        `env:"CACHE_PASSWORD"`
	CacheDriver   string        `env:"CACHE_DRIVER" envDefault:"redis"`
	PlanCacheTTL  time.Duration `env:"PLAN_CACHE_TTL" envDefault:"6h"`

	CronSecret   string `env:"CRON_SECRET"`
	CronSchedule string `env:"CRON_SCHEDULE"`

	AdminAPIToken       string `env:"ADMIN_API_TOKEN"`
	WebhookSecret       string `env:"WEBHOOK_SECRET"`
	CheckoutURLTemplate string `env:"CHECKOUT_URL_TEMPLATE" envDefault:"https://checkout.example.com/pay?ref={reference}&plan={plan}&amount={amount}"`

	TrialDays        int           `env:"TRIAL_DAYS" envDefault:"30"`
	PlanDurationDays int           `env:"PLAN_DURATION_DAYS" envDefault:"30"`
	SweepConcurrency int           `env:"SWEEP_CONCURRENCY" envDefault:"4"`
	NotifyTimeout    time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`

	SendGridAPIKey string `env:"SENDGRID_API_KEY"`
	SMTPHost       string `env:"SMTP_HOST"`
	SMTPPort       string `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser       string `env:"SMTP_USER"`
	SMTPPassword   string `env:"SMTP_PASSWORD"`
	MailSender     string `env:"MAIL_SENDER" envDefault:"billing@marketfox.local"`
	MailSenderName string `env:"MAIL_SENDER_NAME" envDefault:"MarketFox"`

	SentryDSN    string `env:"SENTRY_DSN"`
	QueueWorkers int    `env:"QUEUE_WORKERS" envDefault:"2"`
}

// Load parses the configuration from the process environment merged with the
// values of the loaded .env file.
func Load() (*Config, error) {
	return LoadFrom(env.Environ())
}

// LoadFrom parses the configuration from an explicit variable map.
func LoadFrom(vars map[string]string) (*Config, error) {
	var cfg Config
	if err := cenv.ParseWithOptions(&cfg, cenv.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.CacheDriver != "redis" && c.CacheDriver != "memory" {
		return fmt.Errorf("CACHE_DRIVER must be redis or memory, got %q", c.CacheDriver)
	}
	if c.TrialDays <= 0 || c.PlanDurationDays <= 0 {
		return fmt.Errorf("TRIAL_DAYS and PLAN_DURATION_DAYS must be positive")
	}
	if c.SweepConcurrency < 1 {
		c.SweepConcurrency = 1
	}
	if c.QueueWorkers < 1 {
		c.QueueWorkers = 1
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.AppEnv == "dev"
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.AppHost, c.AppPort)
}

func (c *Config) CacheAddr() string {
	return fmt.Sprintf("%s:%s", c.CacheHost, c.CachePort)
}

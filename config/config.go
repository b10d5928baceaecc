package config

import (
	"fmt"
	"log"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config is read once at startup from the environment (and .env when present).
type Config struct {
	Env      string `env:"APP_ENV" env-default:"development"`
	Port     string `env:"PORT" env-default:"8080"`
	AppURL   string `env:"APP_URL" env-default:"http://localhost:5173"`
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`

	CORSOrigin string `env:"CORS_ORIGIN" env-default:"http://localhost:5173"`

	DBURL     string        `env:"DB_URL" env-required:"true"`
	JWTSecret string        `env:"JWT_SECRET" env-required:"true"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" env-default:"24h"`

	Redis
	Stripe
	Checkout
	Google
	SMTP
	RateLimit
}

type Redis struct {
	RedisAddr        string        `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisUser        string        `env:"REDIS_USER"`
	RedisDB          int           `env:"REDIS_DB" env-default:"0"`
	RedisMaxRetries  int           `env:"REDIS_MAX_RETRIES" env-default:"3"`
	RedisDialTimeout time.Duration `env:"REDIS_DIAL_TIMEOUT" env-default:"5s"`
	RedisTimeout     time.Duration `env:"REDIS_TIMEOUT" env-default:"3s"`
}

type Stripe struct {
	StripeSecretKey           string        `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret       string        `env:"STRIPE_WEBHOOK_SECRET"`
	StripeMembershipProductID string        `env:"STRIPE_MEMBERSHIP_PRODUCT_ID"`
	StripeReadyTimeout        time.Duration `env:"STRIPE_READY_TIMEOUT" env-default:"10s"`
}

type Checkout struct {
	Currency        string        `env:"CURRENCY" env-default:"usd"`
	CheckoutTimeout time.Duration `env:"CHECKOUT_TIMEOUT" env-default:"30s"`
	PreviewEnforce  bool          `env:"PREVIEW_ENFORCE" env-default:"true"`
}

type Google struct {
	GoogleClientID         string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret     string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL      string `env:"GOOGLE_REDIRECT_URL"`
	GoogleFrontendRedirect string `env:"GOOGLE_FRONTEND_REDIRECT"`
}

type SMTP struct {
	SMTPHost string `env:"SMTP_HOST"`
	SMTPPort int    `env:"SMTP_PORT" env-default:"587"`
	SMTPUser string `env:"SMTP_USER"`
	SMTPPass string `env:"SMTP_PASS"`
	SMTPFrom string `env:"SMTP_FROM" env-default:"no-reply@localhost"`
}

type RateLimit struct {
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" env-default:"10"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" env-default:"20"`
}

// GoogleEnabled reports whether Google sign-in is configured.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

func (c *Config) IsProduction() bool { return c.Env == "production" }

// Load reads .env (if any) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Using system environment variables.")
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	// set-but-empty counts as missing
	for key, v := range map[string]string{"DB_URL": cfg.DBURL, "JWT_SECRET": cfg.JWTSecret} {
		if v == "" {
			return nil, fmt.Errorf("config: missing required environment variable: %s", key)
		}
	}
	return &cfg, nil
}

// MustLoad is Load that exits the process on a missing required variable.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

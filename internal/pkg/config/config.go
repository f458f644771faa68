// Package config collects every setting of the service into one value that is
// passed explicitly to the constructors in cmd/kazka.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kazka-books/kazka/internal/pkg/env"
)

type Config struct {
	AppEnv  string
	Host    string
	Port    string
	BaseURL string // public URL used to build redirect and webhook URLs

	// CORSOrigins lists the storefront origins allowed to call the public API.
	CORSOrigins string

	Database Database
	Redis    Redis
	Monobank Monobank
	Admin    Admin
	Mail     Mail
	Captcha  Captcha
	S3       S3
	Limiter  Limiter
	Queue    Queue
}

type Database struct {
	Driver   string // postgres or mysql
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type Redis struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (r Redis) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

type Monobank struct {
	BaseURL          string
	Token            string
	PersonalToken    string
	AccountID        string
	InvoiceValidity  time.Duration
	SkipSignature    bool // local development only
	RedirectPath     string
	WebhookPath      string
	RequestTimeout   time.Duration
	WebhookTimeout   time.Duration
	WebhookBodyLimit int
}

type Admin struct {
	Username string
	Password string
	Email    string
}

type Mail struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (m Mail) Enabled() bool {
	return m.Host != "" && m.From != ""
}

type Captcha struct {
	Secret  string
	SiteKey string
}

func (c Captcha) Enabled() bool {
	return c.Secret != ""
}

type S3 struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Prefix    string
}

func (s S3) Enabled() bool {
	return s.Bucket != "" && s.AccessKey != "" && s.SecretKey != ""
}

type Limiter struct {
	Max        int
	Expiration time.Duration
}

type Queue struct {
	Workers       int
	SweepInterval time.Duration
}

// Load reads the configuration from the loaded .env file and the process
// environment.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:      env.GetEnv("APP_ENV", "prod"),
		Host:        env.GetEnv("APP_HOST", "0.0.0.0"),
		Port:        env.GetEnv("APP_PORT", "4000"),
		BaseURL:     strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"), "/"),
		CORSOrigins: env.GetEnv("CORS_ALLOW_ORIGINS", "*"),
		Database:    LoadDatabase(),
		Redis: Redis{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Port:     env.GetEnv("CACHE_PORT", "6379"),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
			DB:       env.GetInt("CACHE_DB", 0),
		},
		Monobank: Monobank{
			BaseURL:          env.GetEnv("MONOBANK_API_URL", "https://api.monobank.ua"),
			Token:            env.GetEnv("MONOBANK_TOKEN", ""),
			PersonalToken:    env.GetEnv("MONOBANK_PERSONAL_TOKEN", ""),
			AccountID:        env.GetEnv("MONOBANK_ACCOUNT_ID", "0"),
			InvoiceValidity:  env.GetDuration("MONOBANK_INVOICE_VALIDITY", 24*time.Hour),
			SkipSignature:    env.GetBool("MONOBANK_SKIP_SIGNATURE", false),
			RedirectPath:     env.GetEnv("MONOBANK_REDIRECT_PATH", "/subscribe/thanks"),
			WebhookPath:      "/api/payments/monobank/webhook",
			RequestTimeout:   env.GetDuration("MONOBANK_REQUEST_TIMEOUT", 15*time.Second),
			WebhookTimeout:   env.GetDuration("MONOBANK_WEBHOOK_TIMEOUT", 15*time.Second),
			WebhookBodyLimit: env.GetInt("MONOBANK_WEBHOOK_BODY_LIMIT", 256*1024),
		},
		Admin: Admin{
			Username: env.GetEnv("ADMIN_USERNAME", "admin"),
			Password: env.GetEnv("ADMIN_PASSWORD", ""),
			Email:    env.GetEnv("ADMIN_EMAIL", ""),
		},
		Mail: Mail{
			Host:     env.GetEnv("SMTP_HOST", ""),
			Port:     env.GetInt("SMTP_PORT", 587),
			Username: env.GetEnv("SMTP_USERNAME", ""),
			Password: env.GetEnv("SMTP_PASSWORD", ""),
			From:     env.GetEnv("SMTP_FROM", ""),
		},
		Captcha: Captcha{
			Secret:  env.GetEnv("HCAPTCHA_SECRET", ""),
			SiteKey: env.GetEnv("HCAPTCHA_SITEKEY", ""),
		},
		S3: S3{
			Endpoint:  env.GetEnv("S3_ENDPOINT", ""),
			Region:    env.GetEnv("S3_REGION", "eu-central-1"),
			Bucket:    env.GetEnv("S3_BUCKET", ""),
			AccessKey: env.GetEnv("S3_ACCESS_KEY", ""),
			SecretKey: env.GetEnv("S3_SECRET_KEY", ""),
			Prefix:    env.GetEnv("S3_PREFIX", "statements/"),
		},
		Limiter: Limiter{
			Max:        env.GetInt("SUBSCRIBE_RATE_LIMIT", 5),
			Expiration: env.GetDuration("SUBSCRIBE_RATE_WINDOW", time.Minute),
		},
		Queue: Queue{
			Workers:       env.GetInt("JOB_QUEUE_WORKERS", 2),
			SweepInterval: env.GetDuration("JOB_QUEUE_SWEEP_INTERVAL", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase reads only the database settings. cmd/migrate uses it without
// the rest of the configuration.
func LoadDatabase() Database {
	db := Database{
		Driver:   strings.ToLower(env.GetEnv("DB_DRIVER", "postgres")),
		Host:     env.GetEnv("DB_HOST", "127.0.0.1"),
		Port:     env.GetEnv("DB_PORT", ""),
		User:     env.GetEnv("DB_USER", ""),
		Password: env.GetEnv("DB_PASSWORD", ""),
		Name:     env.GetEnv("DB_NAME", "kazka"),
		SSLMode:  env.GetEnv("DB_SSLMODE", "disable"),
	}
	if db.Port == "" {
		if db.Driver == "mysql" {
			db.Port = "3306"
		} else {
			db.Port = "5432"
		}
	}
	return db
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres", "mysql":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be postgres or mysql, got %q", c.Database.Driver))
	}
	if c.Admin.Password == "" {
		errs = append(errs, errors.New("ADMIN_PASSWORD is required"))
	}
	if c.Monobank.SkipSignature && c.AppEnv != "dev" {
		errs = append(errs, errors.New("MONOBANK_SKIP_SIGNATURE is only allowed with APP_ENV=dev"))
	}
	if c.Monobank.WebhookBodyLimit <= 0 {
		errs = append(errs, errors.New("MONOBANK_WEBHOOK_BODY_LIMIT must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsDev() bool {
	return c.AppEnv == "dev"
}

// WebhookURL is the public URL monobank posts notifications to.
func (c *Config) WebhookURL() string {
	return c.BaseURL + c.Monobank.WebhookPath
}

// RedirectURL is where the payer returns after the hosted payment page.
func (c *Config) RedirectURL() string {
	return c.BaseURL + c.Monobank.RedirectPath
}

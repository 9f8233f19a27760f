package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"market-api"`
	ServerPort  int    `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseURL string `env:"DATABASE_URL"`

	UsersPerPage    int `env:"USERS_PER_PAGE" envDefault:"10"`
	ProductsPerPage int `env:"PRODUCTS_PER_PAGE" envDefault:"10"`

	AccessExpirationMinutes int  `env:"ACCESS_EXPIRATION_IN_MINUTES" envDefault:"15"`
	RefreshExpirationDays   int  `env:"REFRESH_EXPIRATION_IN_DAYS" envDefault:"7"`
	RefreshTokenInCookie    bool `env:"REFRESH_TOKEN_IN_COOKIE" envDefault:"true"`
	RefreshTokenInBody      bool `env:"REFRESH_TOKEN_IN_BODY" envDefault:"false"`

	AdminEmail string `env:"ADMIN_EMAIL"`

	Stripe Stripe `envPrefix:"STRIPE_"`
	Mail   Mail   `envPrefix:"MAIL_"`

	CheckoutSuccessURL string `env:"CHECKOUT_SUCCESS" envDefault:"http://localhost:3000/success"`
	CheckoutCancelURL  string `env:"CHECKOUT_FAIL" envDefault:"http://localhost:3000/fail"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	ESURL      string `env:"ES_URL"`
	ESUser     string `env:"ES_USER"`
	ESPassword string `env:"ES_PASSWORD"`
}

type Stripe struct {
	BaseAPIURL    string `env:"BASE_API_URL" envDefault:"https://api.stripe.com"`
	SecretKey     string `env:"SECRET_KEY"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
}

type Mail struct {
	Server   string `env:"SERVER" envDefault:"smtp.googlemail.com"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	UseTLS   bool   `env:"USE_TLS" envDefault:"true"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	return cfg, nil
}

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessExpirationMinutes) * time.Minute
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshExpirationDays) * 24 * time.Hour
}

func MustNonEmpty(value, envName string) {
	if value == "" {
		log.Fatalf("missing required env %s", envName)
	}
}

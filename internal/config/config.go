package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default location of the optional YAML config file.
const ConfigPath = "config.yaml"

// Config holds runtime settings. Values come from the YAML file first and are
// then overridden by environment variables.
type Config struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"logLevel"`
	DatabaseURL string `yaml:"databaseURL"`

	JWTSecret string `yaml:"jwtSecret"`
	TokenTTL  string `yaml:"tokenTTL"`

	PublicBaseURL string `yaml:"publicBaseURL"`

	TelegramBotToken    string `yaml:"telegramBotToken"`
	TelegramChatID      int64  `yaml:"telegramChatID"`
	TelegramAPIEndpoint string `yaml:"telegramAPIEndpoint"`
	TelegramWebhookURL  string `yaml:"telegramWebhookURL"`
	TelegramLinkSecret  string `yaml:"telegramLinkSecret"`
	TelegramSendTimeout string `yaml:"telegramSendTimeout"`

	// TelegramWebhookSecret is registered as the webhook's secret_token and
	// must come back on every update. Derived from jwtSecret when unset.
	TelegramWebhookSecret string `yaml:"telegramWebhookSecret"`

	StripeSecretKey   string `yaml:"stripeSecretKey"`
	StripeAPIURL      string `yaml:"stripeAPIURL"`
	PaymentCurrency   string `yaml:"paymentCurrency"`
	PaymentSuccessURL string `yaml:"paymentSuccessURL"`
	PaymentCancelURL  string `yaml:"paymentCancelURL"`
	PaymentTimeout    string `yaml:"paymentTimeout"`

	OTLPEndpoint         string `yaml:"otlpEndpoint"`
	OverdueSweepInterval string `yaml:"overdueSweepInterval"`
}

// Load reads path (a missing file is not an error), applies environment
// overrides and defaults, and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	overrideString(&cfg.Port, "PORT")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")
	overrideString(&cfg.DatabaseURL, "DATABASE_URL")
	overrideString(&cfg.JWTSecret, "JWT_SECRET")
	overrideString(&cfg.TokenTTL, "TOKEN_TTL")
	overrideString(&cfg.PublicBaseURL, "PUBLIC_BASE_URL")
	overrideString(&cfg.TelegramBotToken, "TELEGRAM_BOT_TOKEN")
	overrideString(&cfg.TelegramAPIEndpoint, "TELEGRAM_API_ENDPOINT")
	overrideString(&cfg.TelegramWebhookURL, "TELEGRAM_WEBHOOK_URL")
	overrideString(&cfg.TelegramLinkSecret, "TELEGRAM_LINK_SECRET")
	overrideString(&cfg.TelegramWebhookSecret, "TELEGRAM_WEBHOOK_SECRET")
	overrideString(&cfg.TelegramSendTimeout, "TELEGRAM_SEND_TIMEOUT")
	overrideString(&cfg.StripeSecretKey, "STRIPE_SECRET_KEY")
	overrideString(&cfg.StripeAPIURL, "STRIPE_API_URL")
	overrideString(&cfg.PaymentCurrency, "PAYMENT_CURRENCY")
	overrideString(&cfg.PaymentSuccessURL, "PAYMENT_SUCCESS_URL")
	overrideString(&cfg.PaymentCancelURL, "PAYMENT_CANCEL_URL")
	overrideString(&cfg.PaymentTimeout, "PAYMENT_TIMEOUT")
	overrideString(&cfg.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	overrideString(&cfg.OverdueSweepInterval, "OVERDUE_SWEEP_INTERVAL")
	if v := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("config: invalid TELEGRAM_CHAT_ID %q", v)
		}
		cfg.TelegramChatID = id
	}

	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func overrideString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.TokenTTL == "" {
		cfg.TokenTTL = "24h"
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "http://localhost:" + cfg.Port
	}
	if cfg.TelegramAPIEndpoint == "" {
		cfg.TelegramAPIEndpoint = "https://api.telegram.org/bot%s/%s"
	}
	if cfg.TelegramSendTimeout == "" {
		cfg.TelegramSendTimeout = "5s"
	}
	if cfg.StripeAPIURL == "" {
		cfg.StripeAPIURL = "https://api.stripe.com"
	}
	if cfg.PaymentCurrency == "" {
		cfg.PaymentCurrency = "usd"
	}
	if cfg.PaymentSuccessURL == "" {
		cfg.PaymentSuccessURL = strings.TrimRight(cfg.PublicBaseURL, "/") + "/payments/success/"
	}
	if cfg.PaymentCancelURL == "" {
		cfg.PaymentCancelURL = strings.TrimRight(cfg.PublicBaseURL, "/") + "/payments/cancel/"
	}
	if cfg.PaymentTimeout == "" {
		cfg.PaymentTimeout = "10s"
	}
	if cfg.TelegramLinkSecret == "" {
		cfg.TelegramLinkSecret = cfg.JWTSecret
	}
	if cfg.TelegramWebhookSecret == "" && cfg.JWTSecret != "" {
		sum := sha256.Sum256([]byte("telegram-webhook:" + cfg.JWTSecret))
		cfg.TelegramWebhookSecret = hex.EncodeToString(sum[:16])
	}
}

// Telegram accepts 1-256 characters from this set for secret_token.
var webhookSecretPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)

func validateConfig(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: port is required")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or JWT_SECRET)")
	}
	if !webhookSecretPattern.MatchString(cfg.TelegramWebhookSecret) {
		return errors.New("config: telegramWebhookSecret must be 1-256 characters of A-Z, a-z, 0-9, _ or -")
	}
	for name, value := range map[string]string{
		"tokenTTL":            cfg.TokenTTL,
		"telegramSendTimeout": cfg.TelegramSendTimeout,
		"paymentTimeout":      cfg.PaymentTimeout,
	} {
		if _, err := parsePositiveDuration(value); err != nil {
			return fmt.Errorf("config: invalid %s: %w", name, err)
		}
	}
	if cfg.OverdueSweepInterval != "" {
		if _, err := parsePositiveDuration(cfg.OverdueSweepInterval); err != nil {
			return fmt.Errorf("config: invalid overdueSweepInterval: %w", err)
		}
	}
	return nil
}

func parsePositiveDuration(value string) (time.Duration, error) {
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if dur <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", value)
	}
	return dur, nil
}

// TokenTTLDuration returns the parsed access token lifetime.
func (c Config) TokenTTLDuration() time.Duration {
	d, _ := parsePositiveDuration(c.TokenTTL)
	return d
}

func (c Config) TelegramSendTimeoutDuration() time.Duration {
	d, _ := parsePositiveDuration(c.TelegramSendTimeout)
	return d
}

func (c Config) PaymentTimeoutDuration() time.Duration {
	d, _ := parsePositiveDuration(c.PaymentTimeout)
	return d
}

// OverdueSweepEvery returns the in-process sweep interval, or 0 when the sweep
// is left to an external scheduler.
func (c Config) OverdueSweepEvery() time.Duration {
	if c.OverdueSweepInterval == "" {
		return 0
	}
	d, _ := parsePositiveDuration(c.OverdueSweepInterval)
	return d
}

// TelegramEnabled reports whether notifications can be sent at all.
func (c Config) TelegramEnabled() bool {
	return strings.TrimSpace(c.TelegramBotToken) != ""
}

package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	// HTTP Server
	Port            string
	ShutdownTimeout time.Duration
	TrustedProxies  []string

	// Expense backend
	ExpenseAPIURL string
	APITimeout    time.Duration
	HealthTimeout time.Duration
	DefaultIncome decimal.Decimal

	// Rate limiting of mutating requests
	RateLimitRPS   float64
	RateLimitBurst int

	// AMQP (optional, disabled when AMQPURL is empty)
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	// Logging
	LogLevel string
	LogFile  string
}

func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8081"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		TrustedProxies:  getEnvList("TRUSTED_PROXIES"),

		ExpenseAPIURL: getEnv("EXPENSE_API_URL", "http://localhost:8000"),
		APITimeout:    getEnvDuration("API_TIMEOUT", 10*time.Second),
		HealthTimeout: getEnvDuration("HEALTH_TIMEOUT", 3*time.Second),
		DefaultIncome: getEnvDecimal("DEFAULT_INCOME", decimal.NewFromInt(3000)),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "expenses"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "expense_changes"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}
}

// AMQPEnabled reports whether store events should be published.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.ExpenseAPIURL == "" {
		errors = append(errors, "expense API URL cannot be empty")
	} else if parsedURL, err := url.Parse(c.ExpenseAPIURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid expense API URL '%s': %v", c.ExpenseAPIURL, err))
	} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid expense API URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
	} else if parsedURL.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid expense API URL '%s': missing host", c.ExpenseAPIURL))
	}

	if c.APITimeout < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid API timeout %v: must be at least 100ms", c.APITimeout))
	} else if c.APITimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid API timeout %v: must be at most 5 minutes", c.APITimeout))
	}
	if c.HealthTimeout < 100*time.Millisecond || c.HealthTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid health timeout %v: must be between 100ms and 1 minute", c.HealthTimeout))
	}

	if c.DefaultIncome.IsNegative() {
		errors = append(errors, fmt.Sprintf("invalid default income %s: must not be negative", c.DefaultIncome))
	}

	if c.RateLimitRPS <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %v: must be greater than 0", c.RateLimitRPS))
	}
	if c.RateLimitBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimitBurst))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPRoutingKey == "" {
			errors = append(errors, "AMQP routing key cannot be empty when AMQP URL is provided")
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

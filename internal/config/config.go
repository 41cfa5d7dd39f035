package config

import (
	"fmt"
	"net/mail"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Accepted values for the selector keys.
var (
	DataBackends  = []string{"memory", "sqlite"}
	LockBackends  = []string{"local", "redis"}
	DeliveryModes = []string{"outbox", "sync"}
	AIProviders   = []string{"static", "gemini", "openai"}
	LogLevels     = []string{"debug", "info", "warn", "error"}
)

type Config struct {
	// HTTP Server
	Port           string
	RateLimitRPS   float64
	RateLimitBurst int

	// Storage
	DataBackend  string
	SQLiteDBPath string
	DataDir      string

	// AMQP; an empty URL runs alert checks inline.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Alerts
	AlertDelivery     string
	AlertPollInterval time.Duration
	AlertBatchSize    int
	AlertMaxRetries   int
	SweepConcurrency  int

	// Locking
	LockBackend   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// AI
	AIProvider string
	AIAPIKey   string
	AIModel    string
	AIBaseURL  string

	// Email
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPass     string
	FromName     string
	FromEmail    string
	DashboardURL string

	LogLevel string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "5000")
	v.SetDefault("RATE_LIMIT_RPS", 1.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)

	v.SetDefault("DATA_BACKEND", "memory")
	v.SetDefault("SQLITE_DB_PATH", "./data/spendyze.db")
	v.SetDefault("DATA_DIR", "data")

	v.SetDefault("AMQP_URL", "")
	v.SetDefault("AMQP_EXCHANGE", "spendyze")
	v.SetDefault("AMQP_QUEUE", "alert_checks")

	v.SetDefault("ALERT_DELIVERY", "outbox")
	v.SetDefault("ALERT_POLL_INTERVAL", 10*time.Second)
	v.SetDefault("ALERT_BATCH_SIZE", 10)
	v.SetDefault("ALERT_MAX_RETRIES", 3)
	v.SetDefault("ALERT_SWEEP_CONCURRENCY", 4)

	v.SetDefault("LOCK_BACKEND", "local")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("AI_PROVIDER", "static")
	v.SetDefault("AI_API_KEY", "")
	v.SetDefault("AI_MODEL", "")
	v.SetDefault("AI_BASE_URL", "")

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASS", "")
	v.SetDefault("FROM_NAME", "Spendyze")
	v.SetDefault("FROM_EMAIL", "")
	v.SetDefault("DASHBOARD_URL", "http://localhost:5173")

	v.SetDefault("LOG_LEVEL", "info")
}

// Load reads the configuration from the environment.
func Load() *Config {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Port:           strings.TrimSpace(v.GetString("PORT")),
		RateLimitRPS:   v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst: v.GetInt("RATE_LIMIT_BURST"),

		DataBackend:  strings.ToLower(v.GetString("DATA_BACKEND")),
		SQLiteDBPath: v.GetString("SQLITE_DB_PATH"),
		DataDir:      v.GetString("DATA_DIR"),

		AMQPURL:      v.GetString("AMQP_URL"),
		AMQPExchange: v.GetString("AMQP_EXCHANGE"),
		AMQPQueue:    v.GetString("AMQP_QUEUE"),

		AlertDelivery:     strings.ToLower(v.GetString("ALERT_DELIVERY")),
		AlertPollInterval: v.GetDuration("ALERT_POLL_INTERVAL"),
		AlertBatchSize:    v.GetInt("ALERT_BATCH_SIZE"),
		AlertMaxRetries:   v.GetInt("ALERT_MAX_RETRIES"),
		SweepConcurrency:  v.GetInt("ALERT_SWEEP_CONCURRENCY"),

		LockBackend:   strings.ToLower(v.GetString("LOCK_BACKEND")),
		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		AIProvider: strings.ToLower(v.GetString("AI_PROVIDER")),
		AIAPIKey:   cleanSecret(v.GetString("AI_API_KEY")),
		AIModel:    v.GetString("AI_MODEL"),
		AIBaseURL:  v.GetString("AI_BASE_URL"),

		SMTPHost:     cleanSecret(v.GetString("SMTP_HOST")),
		SMTPPort:     v.GetInt("SMTP_PORT"),
		SMTPUser:     cleanSecret(v.GetString("SMTP_USER")),
		SMTPPass:     cleanSecret(v.GetString("SMTP_PASS")),
		FromName:     cleanSecret(v.GetString("FROM_NAME")),
		FromEmail:    cleanSecret(v.GetString("FROM_EMAIL")),
		DashboardURL: v.GetString("DASHBOARD_URL"),

		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),
	}
}

// cleanSecret strips whitespace and one pair of surrounding quotes, which
// hosting dashboards tend to keep when values are pasted.
func cleanSecret(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

// SMTPConfigured reports whether real mail can be sent.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != "" && c.SMTPPort > 0 && c.SMTPUser != "" && c.SMTPPass != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitRPS <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %v: must be positive", c.RateLimitRPS))
	}
	if c.RateLimitBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimitBurst))
	}

	if !oneOf(c.DataBackend, DataBackends) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, DataBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
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
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if !oneOf(c.AlertDelivery, DeliveryModes) {
		errors = append(errors, fmt.Sprintf("invalid alert delivery '%s': must be one of %v", c.AlertDelivery, DeliveryModes))
	}
	if c.AlertBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid alert batch size %d: must be at least 1", c.AlertBatchSize))
	} else if c.AlertBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid alert batch size %d: must be at most 1000", c.AlertBatchSize))
	}
	if c.AlertPollInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid alert poll interval %v: must be at least 1 second", c.AlertPollInterval))
	} else if c.AlertPollInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid alert poll interval %v: must be at most 24 hours", c.AlertPollInterval))
	}
	if c.AlertMaxRetries < 1 {
		errors = append(errors, fmt.Sprintf("invalid alert max retries %d: must be at least 1", c.AlertMaxRetries))
	}
	if c.SweepConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("invalid sweep concurrency %d: must be at least 1", c.SweepConcurrency))
	}

	if !oneOf(c.LockBackend, LockBackends) {
		errors = append(errors, fmt.Sprintf("invalid lock backend '%s': must be one of %v", c.LockBackend, LockBackends))
	} else if c.LockBackend == "redis" && c.RedisAddr == "" {
		errors = append(errors, "REDIS_ADDR is required when using the redis lock backend")
	}

	if !oneOf(c.AIProvider, AIProviders) {
		errors = append(errors, fmt.Sprintf("invalid AI provider '%s': must be one of %v", c.AIProvider, AIProviders))
	} else if c.AIProvider != "static" && c.AIAPIKey == "" {
		errors = append(errors, fmt.Sprintf("AI_API_KEY is required for the %s provider", c.AIProvider))
	}

	if c.SMTPHost != "" && (c.SMTPPort < 1 || c.SMTPPort > 65535) {
		errors = append(errors, fmt.Sprintf("invalid SMTP port %d: must be between 1 and 65535", c.SMTPPort))
	}
	if c.FromEmail != "" {
		if _, err := mail.ParseAddress(c.FromEmail); err != nil {
			errors = append(errors, fmt.Sprintf("invalid FROM_EMAIL '%s': %v", c.FromEmail, err))
		}
	} else if c.SMTPConfigured() {
		errors = append(errors, "FROM_EMAIL is required when SMTP is configured")
	}

	if !oneOf(c.LogLevel, LogLevels) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, LogLevels))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

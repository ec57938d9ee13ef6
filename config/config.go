package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	StoreMemory  = "memory"
	StoreSQLite  = "sqlite"
	StoreMongoDB = "mongodb"
)

// Config holds the application configuration
type Config struct {
	// HTTP server configuration
	HTTP HTTPConfig

	// Auth holds the bearer token verification settings
	Auth AuthConfig

	// LLM holds the chat model client settings
	LLM LLMConfig

	// Store selects and configures the document store backend
	Store StoreConfig

	// Chat holds orchestrator limits
	Chat ChatConfig

	// Billing holds Stripe settings
	Billing BillingConfig

	// Log holds logger settings
	Log LogConfig
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// AuthConfig holds JWT verification settings
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// LLMConfig holds chat model client settings
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// StoreConfig holds store backend settings
type StoreConfig struct {
	Driver        string
	SQLitePath    string
	MongoURI      string
	MongoDatabase string
}

// ChatConfig holds orchestrator limits
type ChatConfig struct {
	Timeout          time.Duration
	MaxToolIters     int
	HistoryLimit     int
	PersistToolCalls bool
}

// BillingConfig holds Stripe settings
type BillingConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
	MonthlyPriceID      string
	YearlyPriceID       string
	CouponID            string
	SuccessURL          string
	CancelURL           string
	PortalReturnURL     string
	TrialDays           int
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables.
// A .env file in the working directory is read first when present;
// variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		HTTP: HTTPConfig{
			Host:            getEnvString("VAULTCOACH_HTTP_HOST", "0.0.0.0"),
			Port:            getEnvInt("VAULTCOACH_HTTP_PORT", 8080),
			ShutdownTimeout: getEnvDuration("VAULTCOACH_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: getEnvString("VAULTCOACH_JWT_SECRET", ""),
			Issuer:    getEnvString("VAULTCOACH_JWT_ISSUER", ""),
		},
		LLM: LLMConfig{
			APIKey:      getEnvString("OPENAI_API_KEY", ""),
			BaseURL:     getEnvString("OPENAI_BASE_URL", ""),
			Model:       getEnvString("VAULTCOACH_LLM_MODEL", "gpt-4o-mini"),
			Temperature: float32(getEnvFloat("VAULTCOACH_LLM_TEMPERATURE", 0.4)),
			MaxTokens:   getEnvInt("VAULTCOACH_LLM_MAX_TOKENS", 1024),
		},
		Store: StoreConfig{
			Driver:        strings.ToLower(getEnvString("VAULTCOACH_STORE", StoreSQLite)),
			SQLitePath:    getEnvString("VAULTCOACH_SQLITE_PATH", "vaultcoach.db"),
			MongoURI:      getEnvString("VAULTCOACH_MONGO_URI", "mongodb://localhost:27017"),
			MongoDatabase: getEnvString("VAULTCOACH_MONGO_DATABASE", "vaultcoach"),
		},
		Chat: ChatConfig{
			Timeout:          getEnvDuration("VAULTCOACH_CHAT_TIMEOUT", 60*time.Second),
			MaxToolIters:     getEnvInt("VAULTCOACH_CHAT_MAX_TOOL_ITERATIONS", 5),
			HistoryLimit:     getEnvInt("VAULTCOACH_CHAT_HISTORY_LIMIT", 10),
			PersistToolCalls: getEnvBool("VAULTCOACH_CHAT_PERSIST_TOOL_CALLS", true),
		},
		Billing: BillingConfig{
			StripeSecretKey:     getEnvString("STRIPE_SECRET_KEY", ""),
			StripeWebhookSecret: getEnvString("STRIPE_WEBHOOK_SECRET", ""),
			MonthlyPriceID:      getEnvString("STRIPE_PRICE_MONTHLY", ""),
			YearlyPriceID:       getEnvString("STRIPE_PRICE_YEARLY", ""),
			CouponID:            getEnvString("STRIPE_COUPON_ID", ""),
			SuccessURL:          getEnvString("VAULTCOACH_CHECKOUT_SUCCESS_URL", "https://app.vaultcoach.io/billing/success"),
			CancelURL:           getEnvString("VAULTCOACH_CHECKOUT_CANCEL_URL", "https://app.vaultcoach.io/billing/cancel"),
			PortalReturnURL:     getEnvString("VAULTCOACH_PORTAL_RETURN_URL", "https://app.vaultcoach.io/settings"),
			TrialDays:           getEnvInt("VAULTCOACH_TRIAL_DAYS", 7),
		},
		Log: LogConfig{
			Level:  getEnvString("VAULTCOACH_LOG_LEVEL", "info"),
			Format: getEnvString("VAULTCOACH_LOG_FORMAT", "text"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at runtime
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StoreSQLite, StoreMongoDB:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port %d", c.HTTP.Port)
	}
	if c.Chat.MaxToolIters < 1 {
		return fmt.Errorf("chat tool iterations must be at least 1")
	}
	return nil
}

// GetAddress returns the HTTP server address
func (c *Config) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// PriceIDs returns the Stripe prices a checkout may use
func (b BillingConfig) PriceIDs() []string {
	ids := make([]string, 0, 2)
	for _, id := range []string{b.MonthlyPriceID, b.YearlyPriceID} {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Helper functions for environment variables
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

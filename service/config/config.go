package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr     string
	LogLevel       string
	MetricsEnabled bool

	// Solana configuration
	SolanaRPCURL       string
	SolanaRPCRateLimit int // requests per second

	// Redemption configuration
	OperatorWallet      solana.PublicKey
	FeeBasisPoints      int
	MaxSelectedAccounts int

	// Confirmation configuration
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration

	// NATS configuration; empty disables event publishing
	NATSURL string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	metricsEnabled, err := parseBool("METRICS_ENABLED", true)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MetricsEnabled = metricsEnabled
	}

	// Solana configuration
	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}

	rateLimit, err := parseInt("SOLANA_RPC_RATE_LIMIT", 10)
	if err != nil {
		errs = append(errs, err)
	} else if rateLimit <= 0 {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_RATE_LIMIT must be positive, got %d", rateLimit))
	} else {
		cfg.SolanaRPCRateLimit = rateLimit
	}

	// Redemption configuration. DEVELOPER_WALLET is the older name of OPERATOR_WALLET.
	operator := os.Getenv("OPERATOR_WALLET")
	if operator == "" {
		operator = os.Getenv("DEVELOPER_WALLET")
	}
	if operator == "" {
		errs = append(errs, fmt.Errorf("OPERATOR_WALLET is required"))
	} else if pk, err := solana.PublicKeyFromBase58(operator); err != nil {
		errs = append(errs, fmt.Errorf("OPERATOR_WALLET: invalid public key %q: %w", operator, err))
	} else {
		cfg.OperatorWallet = pk
	}

	feeBPS, err := parseInt("FEE_BASIS_POINTS", 100)
	if err != nil {
		errs = append(errs, err)
	} else if feeBPS < 0 || feeBPS > 10000 {
		errs = append(errs, fmt.Errorf("FEE_BASIS_POINTS must be between 0 and 10000, got %d", feeBPS))
	} else {
		cfg.FeeBasisPoints = feeBPS
	}

	maxSelected, err := parseInt("MAX_SELECTED_ACCOUNTS", 20)
	if err != nil {
		errs = append(errs, err)
	} else if maxSelected < 1 || maxSelected > 100 {
		errs = append(errs, fmt.Errorf("MAX_SELECTED_ACCOUNTS must be between 1 and 100, got %d", maxSelected))
	} else {
		cfg.MaxSelectedAccounts = maxSelected
	}

	// Confirmation configuration
	timeout, err := parseDuration("CONFIRM_TIMEOUT", "90s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmTimeout = timeout
	}

	pollInterval, err := parseDuration("CONFIRM_POLL_INTERVAL", "2s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmPollInterval = pollInterval
	}

	if cfg.ConfirmPollInterval > 0 && cfg.ConfirmPollInterval < 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("CONFIRM_POLL_INTERVAL must be at least 100ms, got %v", cfg.ConfirmPollInterval))
	}
	if cfg.ConfirmTimeout > 0 && cfg.ConfirmTimeout < cfg.ConfirmPollInterval {
		errs = append(errs, fmt.Errorf("CONFIRM_TIMEOUT (%v) cannot be less than CONFIRM_POLL_INTERVAL (%v)",
			cfg.ConfirmTimeout, cfg.ConfirmPollInterval))
	}

	// NATS configuration
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.SolanaRPCRateLimit <= 0 {
		errs = append(errs, fmt.Errorf("SolanaRPCRateLimit must be positive"))
	}

	if c.OperatorWallet.IsZero() {
		errs = append(errs, fmt.Errorf("OperatorWallet is required"))
	}

	if c.FeeBasisPoints < 0 || c.FeeBasisPoints > 10000 {
		errs = append(errs, fmt.Errorf("FeeBasisPoints must be between 0 and 10000"))
	}

	if c.MaxSelectedAccounts < 1 || c.MaxSelectedAccounts > 100 {
		errs = append(errs, fmt.Errorf("MaxSelectedAccounts must be between 1 and 100"))
	}

	if c.ConfirmPollInterval < 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("ConfirmPollInterval must be at least 100ms"))
	}

	if c.ConfirmTimeout < c.ConfirmPollInterval {
		errs = append(errs, fmt.Errorf("ConfirmTimeout cannot be less than ConfirmPollInterval"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseBool parses a boolean from an environment variable or uses a default.
func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}

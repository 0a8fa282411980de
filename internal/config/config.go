package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/chain"
	"github.com/aman-zulfiqar/crosschain-swap/internal/constants"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Ledger backends.
const (
	LedgerMemory   = "memory"
	LedgerRedis    = "redis"
	LedgerPostgres = "postgres"
)

type Config struct {
	// Aggregator
	AggregatorBaseURL  string
	AggregatorAPIKey   string
	QuoteTimeout       time.Duration
	DefaultSlippageBps uint16

	// Settlement polling
	PollInterval    time.Duration
	PollTimeout     time.Duration
	MaxPollFailures int

	// Chain RPC
	RPCTimeout                time.Duration
	MaxRetries                int
	RetryBackoff              time.Duration
	RPCOverrides              map[string]string
	SolanaPreflightCommitment string
	ApprovalTimeout           time.Duration

	// Risk
	MaxSwapValueUSD float64
	DailyLimitUSD   float64
	QuoteMaxAge     time.Duration

	// Storage
	LedgerBackend string
	VaultPath     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PostgresURL   string

	// ClickHouse settings
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// AI
	OpenRouterAPIKey string
	AIModel          string

	// API server
	APIAddr string
	APIKey  string
	DevMode bool

	LogLevel string
}

// Load reads defaults, an optional .crosschain-swap.yaml and the environment,
// in increasing order of precedence.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".crosschain-swap")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("aggregator_base_url", "https://li.quest/v1")
	v.SetDefault("quote_timeout", 15*time.Second)
	v.SetDefault("default_slippage_bps", constants.DefaultSlippageBps)

	v.SetDefault("poll_interval", constants.DefaultPollInterval)
	v.SetDefault("poll_timeout", constants.DefaultPollTimeout)
	v.SetDefault("max_poll_failures", constants.DefaultMaxConsecutiveFailures)

	v.SetDefault("rpc_timeout", 30*time.Second)
	v.SetDefault("max_retries", 3)
	v.SetDefault("retry_backoff", time.Second)
	v.SetDefault("solana_preflight_commitment", "confirmed")
	v.SetDefault("approval_timeout", 3*time.Minute)

	v.SetDefault("quote_max_age", constants.DefaultQuoteMaxAge)

	v.SetDefault("ledger_backend", LedgerMemory)
	v.SetDefault("vault_path", defaultVaultPath())
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("clickhouse_database", "crosschain")
	v.SetDefault("clickhouse_username", "default")

	v.SetDefault("ai_model", "openai/gpt-4.1-mini")

	v.SetDefault("api_addr", ":8080")
	v.SetDefault("log_level", "info")
}

func fromViper(v *viper.Viper) *Config {
	overrides := make(map[string]string)
	for _, c := range chain.Defaults() {
		if u := strings.TrimSpace(v.GetString("rpc_" + c.Key)); u != "" {
			overrides[c.Key] = u
		}
	}

	return &Config{
		AggregatorBaseURL:  v.GetString("aggregator_base_url"),
		AggregatorAPIKey:   v.GetString("aggregator_api_key"),
		QuoteTimeout:       v.GetDuration("quote_timeout"),
		DefaultSlippageBps: uint16(v.GetUint("default_slippage_bps")),

		PollInterval:    v.GetDuration("poll_interval"),
		PollTimeout:     v.GetDuration("poll_timeout"),
		MaxPollFailures: v.GetInt("max_poll_failures"),

		RPCTimeout:                v.GetDuration("rpc_timeout"),
		MaxRetries:                v.GetInt("max_retries"),
		RetryBackoff:              v.GetDuration("retry_backoff"),
		RPCOverrides:              overrides,
		SolanaPreflightCommitment: v.GetString("solana_preflight_commitment"),
		ApprovalTimeout:           v.GetDuration("approval_timeout"),

		MaxSwapValueUSD: v.GetFloat64("max_swap_value_usd"),
		DailyLimitUSD:   v.GetFloat64("daily_limit_usd"),
		QuoteMaxAge:     v.GetDuration("quote_max_age"),

		LedgerBackend: strings.ToLower(strings.TrimSpace(v.GetString("ledger_backend"))),
		VaultPath:     v.GetString("vault_path"),
		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),
		PostgresURL:   v.GetString("postgres_url"),

		ClickHouseAddr:     v.GetString("clickhouse_addr"),
		ClickHouseDatabase: v.GetString("clickhouse_database"),
		ClickHouseUsername: v.GetString("clickhouse_username"),
		ClickHousePassword: v.GetString("clickhouse_password"),

		OpenRouterAPIKey: v.GetString("openrouter_api_key"),
		AIModel:          v.GetString("ai_model"),

		APIAddr: v.GetString("api_addr"),
		APIKey:  v.GetString("api_key"),
		DevMode: v.GetBool("dev_mode"),

		LogLevel: v.GetString("log_level"),
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.LedgerBackend {
	case LedgerMemory:
	case LedgerRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("LEDGER_BACKEND=redis requires REDIS_ADDR")
		}
	case LedgerPostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("LEDGER_BACKEND=postgres requires POSTGRES_URL")
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q (want memory, redis or postgres)", c.LedgerBackend)
	}

	if c.DefaultSlippageBps == 0 || c.DefaultSlippageBps > constants.MaxSlippageBps {
		return fmt.Errorf("DEFAULT_SLIPPAGE_BPS must be in 1..%d", constants.MaxSlippageBps)
	}
	if c.PollInterval <= 0 || c.PollTimeout <= 0 {
		return fmt.Errorf("POLL_INTERVAL and POLL_TIMEOUT must be positive")
	}
	if c.MaxPollFailures < 0 {
		return fmt.Errorf("MAX_POLL_FAILURES must not be negative")
	}
	if c.QuoteTimeout <= 0 || c.RPCTimeout <= 0 || c.ApprovalTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.MaxSwapValueUSD < 0 || c.DailyLimitUSD < 0 {
		return fmt.Errorf("risk limits must not be negative")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// NewLogger builds the process logger from LOG_LEVEL.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

func defaultVaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".crosschain-swap-vault.json"
	}
	return filepath.Join(home, ".crosschain-swap", "vault.json")
}

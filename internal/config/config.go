package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// TokenSpec describes a token to register at startup, written as
// SYMBOL:0xADDRESS or SYMBOL:0xADDRESS:DECIMALS.
type TokenSpec struct {
	Symbol   string
	Address  common.Address
	Decimals uint8
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TokenSpec) UnmarshalText(text []byte) error {
	parts := strings.Split(strings.TrimSpace(string(text)), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return fmt.Errorf("token %q must be SYMBOL:ADDRESS[:DECIMALS]", text)
	}
	if parts[0] == "" {
		return fmt.Errorf("token %q has an empty symbol", text)
	}
	if !common.IsHexAddress(parts[1]) {
		return fmt.Errorf("token %q has an invalid address", text)
	}
	t.Symbol = parts[0]
	t.Address = common.HexToAddress(parts[1])
	t.Decimals = 18
	if len(parts) == 3 {
		d, err := strconv.ParseUint(parts[2], 10, 8)
		if err != nil || d > 77 {
			return fmt.Errorf("token %q has invalid decimals", text)
		}
		t.Decimals = uint8(d)
	}
	return nil
}

// Config holds all runtime configuration for the vault service.
type Config struct {
	Port      int    `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	AdminAddress       common.Address `env:"ADMIN_ADDRESS,required"`
	VaultAddress       common.Address `env:"VAULT_ADDRESS" envDefault:"0x0000000000000000000000000000000000001000"`
	OrderModuleAddress common.Address `env:"ORDER_MODULE_ADDRESS" envDefault:"0x0000000000000000000000000000000000002000"`
	OracleAddress      common.Address `env:"ORACLE_ADDRESS" envDefault:"0x0000000000000000000000000000000000003000"`
	SwapTarget         common.Address `env:"SWAP_TARGET" envDefault:"0x0000000000000000000000000000000000004000"`
	Tokens             []TokenSpec    `env:"TOKENS" envSeparator:"," envDefault:"WETH:0x00000000000000000000000000000000000000e1:18,USDC:0x00000000000000000000000000000000000000c1:6"`

	KeeperEnabled   bool           `env:"KEEPER_ENABLED" envDefault:"true"`
	KeeperAddress   common.Address `env:"KEEPER_ADDRESS" envDefault:"0x0000000000000000000000000000000000005000"`
	KeeperBatchSize int            `env:"KEEPER_BATCH_SIZE" envDefault:"0"`
	PollInterval    time.Duration  `env:"POLL_INTERVAL" envDefault:"12s"`

	ExpirationInterval time.Duration `env:"EXPIRATION_INTERVAL" envDefault:"1s"`

	DatabaseURL    string        `env:"DATABASE_URL"`
	JournalTimeout time.Duration `env:"JOURNAL_TIMEOUT" envDefault:"5s"`

	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads configuration from the environment (and a .env file when
// present), applies defaults, and validates values. It returns an error
// for any invalid value.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d, must be between 1 and 65535", c.Port)
	}
	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", c.LogLevel)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("invalid LOG_FORMAT: %q, must be one of: json, text", c.LogFormat)
	}

	addrs := []struct {
		key  string
		addr common.Address
	}{
		{"ADMIN_ADDRESS", c.AdminAddress},
		{"VAULT_ADDRESS", c.VaultAddress},
		{"ORDER_MODULE_ADDRESS", c.OrderModuleAddress},
		{"ORACLE_ADDRESS", c.OracleAddress},
		{"SWAP_TARGET", c.SwapTarget},
		{"KEEPER_ADDRESS", c.KeeperAddress},
	}
	for _, a := range addrs {
		if a.addr == (common.Address{}) {
			return fmt.Errorf("invalid %s: must not be the zero address", a.key)
		}
	}
	if c.VaultAddress == c.OrderModuleAddress {
		return errors.New("invalid ORDER_MODULE_ADDRESS: must differ from VAULT_ADDRESS")
	}

	if len(c.Tokens) == 0 {
		return errors.New("invalid TOKENS: at least one token is required")
	}
	seen := make(map[string]bool, len(c.Tokens))
	for _, t := range c.Tokens {
		key := strings.ToUpper(t.Symbol)
		if seen[key] {
			return fmt.Errorf("invalid TOKENS: duplicate symbol %q", t.Symbol)
		}
		seen[key] = true
	}

	if c.KeeperBatchSize < 0 {
		return fmt.Errorf("invalid KEEPER_BATCH_SIZE: %d, must not be negative", c.KeeperBatchSize)
	}
	durations := []struct {
		key string
		d   time.Duration
	}{
		{"POLL_INTERVAL", c.PollInterval},
		{"EXPIRATION_INTERVAL", c.ExpirationInterval},
		{"JOURNAL_TIMEOUT", c.JournalTimeout},
		{"READ_TIMEOUT", c.ReadTimeout},
		{"WRITE_TIMEOUT", c.WriteTimeout},
		{"IDLE_TIMEOUT", c.IdleTimeout},
		{"SHUTDOWN_TIMEOUT", c.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("invalid %s: %v, must be positive", d.key, d.d)
		}
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

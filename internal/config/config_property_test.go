package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"pgregory.net/rapid"
)

// durationEnvKeys lists all Config fields that are parsed as time.Duration.
var durationEnvKeys = []string{
	"POLL_INTERVAL",
	"EXPIRATION_INTERVAL",
	"JOURNAL_TIMEOUT",
	"READ_TIMEOUT",
	"WRITE_TIMEOUT",
	"IDLE_TIMEOUT",
	"SHUTDOWN_TIMEOUT",
}

// allEnvKeys is every config-related env var key.
var allEnvKeys = append([]string{
	"PORT", "LOG_LEVEL", "LOG_FORMAT", "ADMIN_ADDRESS", "VAULT_ADDRESS",
	"ORDER_MODULE_ADDRESS", "ORACLE_ADDRESS", "SWAP_TARGET", "TOKENS",
	"KEEPER_ENABLED", "KEEPER_ADDRESS", "KEEPER_BATCH_SIZE", "DATABASE_URL",
}, durationEnvKeys...)

// unsetAllConfigEnv clears all config env vars and sets the one required
// key.
func unsetAllConfigEnv() {
	for _, key := range allEnvKeys {
		os.Unsetenv(key)
	}
	os.Setenv("ADMIN_ADDRESS", testAdmin)
}

// genAddress generates a non-zero address.
func genAddress() *rapid.Generator[common.Address] {
	return rapid.Custom(func(t *rapid.T) common.Address {
		b := rapid.SliceOfN(rapid.Byte(), 20, 20).Draw(t, "bytes")
		b[19] |= 0x01
		return common.BytesToAddress(b)
	})
}

// genDurationString generates a valid Go duration string (e.g. "3s", "500ms", "2m").
func genDurationString() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		unit := rapid.SampledFrom([]string{"ms", "s", "m"}).Draw(t, "unit")
		val := rapid.IntRange(1, 600).Draw(t, "val")
		return fmt.Sprintf("%d%s", val, unit)
	})
}

func TestProperty_DeploymentAddressesParsing(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		vault := genAddress().Draw(t, "vault")
		module := genAddress().Filter(func(a common.Address) bool { return a != vault }).Draw(t, "module")
		keeper := genAddress().Draw(t, "keeper")
		target := genAddress().Draw(t, "swapTarget")
		batch := rapid.IntRange(0, 500).Draw(t, "batchSize")
		enabled := rapid.Bool().Draw(t, "keeperEnabled")

		// Lowercase hex is accepted as well as checksummed.
		os.Setenv("VAULT_ADDRESS", strings.ToLower(vault.Hex()))
		os.Setenv("ORDER_MODULE_ADDRESS", module.Hex())
		os.Setenv("KEEPER_ADDRESS", keeper.Hex())
		os.Setenv("SWAP_TARGET", target.Hex())
		os.Setenv("KEEPER_BATCH_SIZE", strconv.Itoa(batch))
		os.Setenv("KEEPER_ENABLED", strconv.FormatBool(enabled))

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned error for valid inputs: %v", err)
		}
		if cfg.VaultAddress != vault || cfg.OrderModuleAddress != module || cfg.KeeperAddress != keeper || cfg.SwapTarget != target {
			t.Fatalf("addresses = %s %s %s %s", cfg.VaultAddress.Hex(), cfg.OrderModuleAddress.Hex(), cfg.KeeperAddress.Hex(), cfg.SwapTarget.Hex())
		}
		if cfg.KeeperBatchSize != batch || cfg.KeeperEnabled != enabled {
			t.Fatalf("keeper = (%v, %d), want (%v, %d)", cfg.KeeperEnabled, cfg.KeeperBatchSize, enabled, batch)
		}
	})
}

func TestProperty_VaultModuleCollisionRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		addr := genAddress().Draw(t, "addr")
		os.Setenv("VAULT_ADDRESS", addr.Hex())
		os.Setenv("ORDER_MODULE_ADDRESS", strings.ToLower(addr.Hex()))

		if _, err := Load(); err == nil {
			t.Fatalf("Load() accepted vault and module both at %s", addr.Hex())
		}
	})
}

func TestProperty_TokenListParsing(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		symbols := rapid.SliceOfNDistinct(rapid.StringMatching(`[A-Z]{2,6}`), 1, 5, func(s string) string { return s }).Draw(t, "symbols")
		want := make([]TokenSpec, len(symbols))
		entries := make([]string, len(symbols))
		for i, sym := range symbols {
			want[i] = TokenSpec{
				Symbol:   sym,
				Address:  genAddress().Draw(t, "address"),
				Decimals: uint8(rapid.IntRange(0, 36).Draw(t, "decimals")),
			}
			entries[i] = fmt.Sprintf("%s:%s:%d", sym, want[i].Address.Hex(), want[i].Decimals)
		}
		os.Setenv("TOKENS", strings.Join(entries, ","))

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned error for TOKENS=%q: %v", os.Getenv("TOKENS"), err)
		}
		if len(cfg.Tokens) != len(want) {
			t.Fatalf("len(Tokens) = %d, want %d", len(cfg.Tokens), len(want))
		}
		for i := range want {
			if cfg.Tokens[i] != want[i] {
				t.Fatalf("Tokens[%d] = %+v, want %+v", i, cfg.Tokens[i], want[i])
			}
		}
	})
}

func TestProperty_DuplicateSymbolRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		sym := rapid.StringMatching(`[A-Z]{2,6}`).Draw(t, "symbol")
		a := genAddress().Draw(t, "first")
		b := genAddress().Draw(t, "second")
		os.Setenv("TOKENS", fmt.Sprintf("%s:%s,%s:%s", sym, a.Hex(), strings.ToLower(sym), b.Hex()))

		if _, err := Load(); err == nil {
			t.Fatalf("Load() accepted duplicate symbol %q", sym)
		}
	})
}

func TestProperty_NegativeBatchSizeRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		n := rapid.IntRange(-1000, -1).Draw(t, "batchSize")
		os.Setenv("KEEPER_BATCH_SIZE", strconv.Itoa(n))

		if _, err := Load(); err == nil {
			t.Fatalf("Load() accepted KEEPER_BATCH_SIZE=%d", n)
		}
	})
}

func TestProperty_DurationParsing(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		durStrs := make(map[string]string, len(durationEnvKeys))
		for _, key := range durationEnvKeys {
			durStrs[key] = rapid.OneOf(rapid.Just(""), genDurationString()).Draw(t, key)
			if durStrs[key] != "" {
				os.Setenv(key, durStrs[key])
			}
		}

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned error for valid durations: %v", err)
		}

		got := map[string]time.Duration{
			"POLL_INTERVAL":       cfg.PollInterval,
			"EXPIRATION_INTERVAL": cfg.ExpirationInterval,
			"JOURNAL_TIMEOUT":     cfg.JournalTimeout,
			"READ_TIMEOUT":        cfg.ReadTimeout,
			"WRITE_TIMEOUT":       cfg.WriteTimeout,
			"IDLE_TIMEOUT":        cfg.IdleTimeout,
			"SHUTDOWN_TIMEOUT":    cfg.ShutdownTimeout,
		}
		defaults := map[string]time.Duration{
			"POLL_INTERVAL":       12 * time.Second,
			"EXPIRATION_INTERVAL": time.Second,
			"JOURNAL_TIMEOUT":     5 * time.Second,
			"READ_TIMEOUT":        5 * time.Second,
			"WRITE_TIMEOUT":       10 * time.Second,
			"IDLE_TIMEOUT":        60 * time.Second,
			"SHUTDOWN_TIMEOUT":    10 * time.Second,
		}
		for _, key := range durationEnvKeys {
			want := defaults[key]
			if durStrs[key] != "" {
				want, _ = time.ParseDuration(durStrs[key])
			}
			if got[key] != want {
				t.Fatalf("%s = %v, want %v (env=%q)", key, got[key], want, durStrs[key])
			}
		}
	})
}

func TestProperty_InvalidDurationReturnsError(t *testing.T) {
	for _, key := range durationEnvKeys {
		t.Run(key, func(t *testing.T) {
			rapid.Check(t, func(t *rapid.T) {
				unsetAllConfigEnv()
				defer unsetAllConfigEnv()

				invalidDur := rapid.OneOf(
					rapid.StringMatching(`[a-zA-Z]{2,10}`),
					rapid.Just("5x"),
					rapid.Just("-3s"),
					rapid.Just("0s"),
				).Filter(func(s string) bool {
					d, err := time.ParseDuration(s)
					return err != nil || d <= 0
				}).Draw(t, "invalidDuration")

				os.Setenv(key, invalidDur)

				if _, err := Load(); err == nil {
					t.Fatalf("Load() should return error for invalid %s=%q", key, invalidDur)
				}
			})
		})
	}
}

func TestProperty_TokenSpecParsing(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		symbol := rapid.StringMatching(`[A-Z][A-Z0-9]{0,9}`).Draw(t, "symbol")
		addr := genAddress().Draw(t, "address")
		decimals := rapid.IntRange(0, 36).Draw(t, "decimals")

		var spec TokenSpec
		text := fmt.Sprintf("%s:%s:%d", symbol, addr.Hex(), decimals)
		if err := spec.UnmarshalText([]byte(text)); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if spec.Symbol != symbol || spec.Address != addr || int(spec.Decimals) != decimals {
			t.Fatalf("UnmarshalText(%q) = %+v", text, spec)
		}

		// Without decimals a token defaults to 18.
		if err := spec.UnmarshalText([]byte(symbol + ":" + addr.Hex())); err != nil || spec.Decimals != 18 {
			t.Fatalf("UnmarshalText without decimals = %+v, %v", spec, err)
		}
	})
}

// Package config loads jpycli settings from viper (config file, .env and JPYCLI_* env vars).
package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
	"github.com/yolodolo42/jpycli/internal/chain"
)

// EnvPrefix prefixes every environment override, e.g. JPYCLI_NETWORK.
const EnvPrefix = "JPYCLI"

type Config struct {
	// Network is the network the wallet should end up on after connecting.
	Network  string         `mapstructure:"network"`
	DataDir  string         `mapstructure:"data_dir"`
	Log      LogConfig      `mapstructure:"log"`
	RPC      RPCConfig      `mapstructure:"rpc"`
	Provider ProviderConfig `mapstructure:"provider"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	// File receives JSON logs when set; otherwise logs go to stderr.
	File string `mapstructure:"file"`
}

type RPCConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is requests per second per chain; zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	// Overrides replaces the built-in RPC URLs of a network, keyed by network key.
	Overrides map[string][]string `mapstructure:"overrides"`
}

type ProviderConfig struct {
	// KnownChains are the chain ids the bundled wallet has already seen.
	// Switching to any other supported network goes through add-chain.
	KnownChains []int64 `mapstructure:"known_chains"`
	// Account is the keystore address offered first when unlocking.
	Account string `mapstructure:"account"`
	// ReceiptTimeout bounds a whole transfer, receipt wait included.
	ReceiptTimeout time.Duration `mapstructure:"receipt_timeout"`
}

// DefaultDataDir is $HOME/.jpycli, or .jpycli when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".jpycli"
	}
	return filepath.Join(home, ".jpycli")
}

// SetDefaults registers defaults for every key so env overrides are seen by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("network", chain.DefaultRegistry().Default().Key)
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.file", "")
	v.SetDefault("rpc.timeout", 15*time.Second)
	v.SetDefault("rpc.rate_limit", 10.0)
	v.SetDefault("rpc.overrides", map[string][]string{})
	v.SetDefault("provider.known_chains", []int64{1})
	v.SetDefault("provider.account", "")
	v.SetDefault("provider.receipt_timeout", 3*time.Minute)
}

// ConfigureEnv wires JPYCLI_* environment variables into v.
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every key against the built-in network registry.
func (c *Config) Validate() error {
	registry := chain.DefaultRegistry()

	if _, ok := registry.Get(c.Network); !ok {
		return fmt.Errorf("network: unknown network %q (want one of %s)", c.Network, strings.Join(registry.Keys(), ", "))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	if c.RPC.Timeout <= 0 {
		return fmt.Errorf("rpc.timeout: must be positive, got %s", c.RPC.Timeout)
	}
	if c.RPC.RateLimit < 0 {
		return fmt.Errorf("rpc.rate_limit: must not be negative, got %v", c.RPC.RateLimit)
	}
	for key, urls := range c.RPC.Overrides {
		if _, ok := registry.Get(key); !ok {
			return fmt.Errorf("rpc.overrides.%s: unknown network", key)
		}
		if len(urls) == 0 {
			return fmt.Errorf("rpc.overrides.%s: needs at least one URL", key)
		}
	}
	if len(c.Provider.KnownChains) == 0 {
		return fmt.Errorf("provider.known_chains: needs at least one chain id")
	}
	for _, id := range c.Provider.KnownChains {
		if _, ok := registry.ByChainID(big.NewInt(id)); !ok {
			return fmt.Errorf("provider.known_chains: chain %d is not a supported network", id)
		}
	}
	if c.Provider.Account != "" && !common.IsHexAddress(c.Provider.Account) {
		return fmt.Errorf("provider.account: %q is not an address", c.Provider.Account)
	}
	if c.Provider.ReceiptTimeout <= 0 {
		return fmt.Errorf("provider.receipt_timeout: must be positive, got %s", c.Provider.ReceiptTimeout)
	}
	return nil
}

// Registry returns the network registry with configured RPC overrides applied.
func (c *Config) Registry() (*chain.Registry, error) {
	return chain.DefaultRegistry().WithRPCOverrides(c.RPC.Overrides)
}

// KnownChainIDs returns provider.known_chains as big integers.
func (c *Config) KnownChainIDs() []*big.Int {
	ids := make([]*big.Int, 0, len(c.Provider.KnownChains))
	for _, id := range c.Provider.KnownChains {
		ids = append(ids, big.NewInt(id))
	}
	return ids
}

// PreferredAccount returns provider.account, or the zero address when unset.
func (c *Config) PreferredAccount() common.Address {
	if c.Provider.Account == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.Provider.Account)
}

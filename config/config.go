package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	yaml "gopkg.in/yaml.v2"
)

type Config struct {
	// Chain and network settings
	ChainID     uint64 `json:"chain_id" yaml:"chain_id"`
	RPCEndpoint string `json:"rpc_endpoint" yaml:"rpc_endpoint"`
	WSEndpoint  string `json:"ws_endpoint" yaml:"ws_endpoint"`
	RelayURL    string `json:"relay_url" yaml:"relay_url"`

	// On-chain addresses
	ExecutorAddress  string   `json:"executor_address" yaml:"executor_address"`
	LookupAddress    string   `json:"lookup_address" yaml:"lookup_address"`
	FactoryAddresses []string `json:"factory_addresses" yaml:"factory_addresses"`
	BaseToken        string   `json:"base_token" yaml:"base_token"`

	// Trading thresholds, decimal wei of the base token. Strings because
	// big integers do not survive YAML round trips.
	MinProfit      string `json:"min_profit" yaml:"min_profit"`
	MinBaseReserve string `json:"min_base_reserve" yaml:"min_base_reserve"`

	// Execution settings
	GasCeiling            uint64 `json:"gas_ceiling" yaml:"gas_ceiling"`
	MinerRewardPercentage int64  `json:"miner_reward_percentage" yaml:"miner_reward_percentage"`

	// Block watcher settings
	BlockPollInterval time.Duration `json:"block_poll_interval" yaml:"block_poll_interval"`

	// Relay rate limiting
	RelayRateLimit RateLimitConfig `json:"relay_rate_limit" yaml:"relay_rate_limit"`

	// Metrics
	PrometheusEnabled  bool   `json:"prometheus_enabled" yaml:"prometheus_enabled"`
	PrometheusEndpoint string `json:"prometheus_endpoint" yaml:"prometheus_endpoint"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int     `json:"burst_size" yaml:"burst_size"`
}

// MinProfitWei returns the opportunity acceptance floor. Call only after
// ValidateConfig has passed.
func (c *Config) MinProfitWei() *big.Int {
	wei, _ := new(big.Int).SetString(c.MinProfit, 10)
	return wei
}

// MinBaseReserveWei returns the market liquidity floor. Call only after
// ValidateConfig has passed.
func (c *Config) MinBaseReserveWei() *big.Int {
	wei, _ := new(big.Int).SetString(c.MinBaseReserve, 10)
	return wei
}

// SecureConfig holds key material, sourced from the environment only so it
// never lands in a config file.
type SecureConfig struct {
	PrivateKey   string
	FlashbotsKey string
}

func (c *Config) ValidateConfig() error {
	var errors []string

	if c.ChainID == 0 {
		errors = append(errors, "chain_id must be specified")
	}
	if c.RPCEndpoint == "" {
		errors = append(errors, "rpc_endpoint must be specified")
	}
	if c.RelayURL == "" {
		errors = append(errors, "relay_url must be specified")
	}

	if !common.IsHexAddress(c.ExecutorAddress) {
		errors = append(errors, "executor_address must be a valid address")
	}
	if !common.IsHexAddress(c.LookupAddress) {
		errors = append(errors, "lookup_address must be a valid address")
	}
	if !common.IsHexAddress(c.BaseToken) {
		errors = append(errors, "base_token must be a valid address")
	}
	if len(c.FactoryAddresses) == 0 {
		errors = append(errors, "at least one factory address must be specified")
	}
	for _, addr := range c.FactoryAddresses {
		if !common.IsHexAddress(addr) {
			errors = append(errors, fmt.Sprintf("invalid factory address: %s", addr))
		}
	}

	if wei, ok := new(big.Int).SetString(c.MinProfit, 10); !ok || wei.Sign() <= 0 {
		errors = append(errors, "min_profit must be a positive decimal wei amount")
	}
	if wei, ok := new(big.Int).SetString(c.MinBaseReserve, 10); !ok || wei.Sign() <= 0 {
		errors = append(errors, "min_base_reserve must be a positive decimal wei amount")
	}

	if c.GasCeiling == 0 {
		errors = append(errors, "gas_ceiling must be positive")
	}
	if c.MinerRewardPercentage < 0 || c.MinerRewardPercentage > 100 {
		errors = append(errors, "miner_reward_percentage must be between 0 and 100")
	}

	if err := c.RelayRateLimit.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("relay rate limit error: %v", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (r *RateLimitConfig) Validate() error {
	if r.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	if r.BurstSize <= 0 {
		return fmt.Errorf("burst size must be positive")
	}

	return nil
}

// LoadConfig reads and validates the config file. YAML or JSON is chosen by
// extension; an empty path falls back to ~/.arbbot.yaml.
func LoadConfig(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfgFile = filepath.Join(home, ".arbbot.yaml")
	}

	raw, err := os.ReadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	switch filepath.Ext(cfgFile) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	default:
		if err := json.Unmarshal(raw, config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if err := config.ValidateConfig(); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadSecureConfig pulls key material from the environment. LoadEnv should
// run first so a local .env file is honored.
func LoadSecureConfig() (*SecureConfig, error) {
	privateKey, err := GetRequiredEnv(EnvPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("private key not found: %w", err)
	}

	flashbotsKey, err := GetRequiredEnv(EnvFlashbotsKey)
	if err != nil {
		return nil, fmt.Errorf("flashbots signing key not found: %w", err)
	}

	return &SecureConfig{
		PrivateKey:   privateKey,
		FlashbotsKey: flashbotsKey,
	}, nil
}

func SaveConfig(cfg *Config, cfgFile string) error {
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		cfgFile = filepath.Join(home, ".arbbot.yaml")
	}

	var raw []byte
	var err error
	switch filepath.Ext(cfgFile) {
	case ".yaml", ".yml":
		raw, err = yaml.Marshal(cfg)
	default:
		raw, err = json.MarshalIndent(cfg, "", "    ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(cfgFile, raw, 0o600)
}

// DefaultConfig returns mainnet defaults: the canonical WETH, the public
// Flashbots relay, and conservative thresholds. Addresses that are
// deployment-specific (executor, lookup) are left empty.
func DefaultConfig() *Config {
	return &Config{
		ChainID:     1,
		RPCEndpoint: "http://localhost:8545",
		WSEndpoint:  "ws://localhost:8546",
		RelayURL:    "https://relay.flashbots.net",

		BaseToken: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		FactoryAddresses: []string{
			"0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f", // Uniswap V2
			"0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac", // Sushiswap
		},

		MinProfit:      "1000000000000000",    // 0.001 ETH
		MinBaseReserve: "1000000000000000000", // 1 ETH

		GasCeiling:            1000000,
		MinerRewardPercentage: 80,

		BlockPollInterval: time.Second * 3,

		RelayRateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			BurstSize:         20,
		},

		PrometheusEnabled:  false,
		PrometheusEndpoint: ":9090",
	}
}

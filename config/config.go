package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/michaelpento.lv/backrunner/gas"
	"github.com/michaelpento.lv/backrunner/strategies/backrun"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"
)

// DefaultConfigFile is read when --config is not given.
const DefaultConfigFile = "config.yaml"

type Config struct {
	Network         string        `yaml:"network"`
	RPCURL          string        `yaml:"rpc_url"`
	ExecutorAddress string        `yaml:"executor_address"`
	RPCTimeout      time.Duration `yaml:"rpc_timeout"`
	EventTimeout    time.Duration `yaml:"event_timeout"`

	// Chain overrides the network preset field by field.
	Chain   ChainConfig   `yaml:"chain"`
	Feed    FeedConfig    `yaml:"feed"`
	Relay   RelayConfig   `yaml:"relay"`
	Bundle  BundleConfig  `yaml:"bundle"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

type ChainConfig struct {
	ChainID          uint64 `yaml:"chain_id"`
	UniswapFactory   string `yaml:"uniswap_factory"`
	SushiswapFactory string `yaml:"sushiswap_factory"`
	WETH             string `yaml:"weth"`
	MatchmakerURL    string `yaml:"matchmaker_url"`
	BundleAPIURL     string `yaml:"bundle_api_url"`
	SyncTopic        string `yaml:"sync_topic"`
}

type FeedConfig struct {
	Transport        string        `yaml:"transport"`
	URL              string        `yaml:"url"`
	BufferSize       int           `yaml:"buffer_size"`
	DedupeSize       int           `yaml:"dedupe_size"`
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`
	MaxReconnects    int           `yaml:"max_reconnects"`
}

type RelayConfig struct {
	URL          string          `yaml:"url"`
	Timeout      time.Duration   `yaml:"timeout"`
	MaxRetries   int             `yaml:"max_retries"`
	RetryBackoff time.Duration   `yaml:"retry_backoff"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	BurstSize         int           `yaml:"burst_size"`
	WaitTimeout       time.Duration `yaml:"wait_timeout"`
}

type BundleConfig struct {
	Strategy            backrun.StrategyKind `yaml:"strategy"`
	GasPolicyKind       gas.PolicyKind       `yaml:"gas_policy"`
	BlocksToTry         uint64               `yaml:"blocks_to_try"`
	PercentageToKeep    uint64               `yaml:"percentage_to_keep"`
	CanRevert           bool                 `yaml:"can_revert"`
	StaticGasLimit      uint64               `yaml:"static_gas_limit"`
	GasLimitHeadroomPct uint64               `yaml:"gas_limit_headroom_pct"`
	GasPriceHeadroomPct uint64               `yaml:"gas_price_headroom_pct"`
	FeeBps              uint64               `yaml:"fee_bps"`
	// MinProfit is a decimal wei amount for the flash-loan strategy.
	MinProfit string `yaml:"min_profit"`
	Simulate  bool   `yaml:"simulate"`
}

type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Namespace  string `yaml:"namespace"`
}

type LoggingConfig struct {
	Debug       bool     `yaml:"debug"`
	OutputPaths []string `yaml:"output_paths"`
}

// SecureConfig holds the secrets read from the environment.
type SecureConfig struct {
	PrivateKey   string
	RelayAuthKey string
}

func DefaultConfig() *Config {
	return &Config{
		Network:      NetworkMainnet,
		RPCURL:       "http://localhost:8545",
		RPCTimeout:   5 * time.Second,
		EventTimeout: 10 * time.Second,
		Feed: FeedConfig{
			Transport:        TransportSSE,
			BufferSize:       256,
			DedupeSize:       4096,
			ReconnectBackoff: time.Second,
			MaxReconnects:    0,
		},
		Relay: RelayConfig{
			Timeout:      3 * time.Second,
			MaxRetries:   0,
			RetryBackoff: 100 * time.Millisecond,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 10,
				BurstSize:         20,
				WaitTimeout:       time.Second,
			},
		},
		Bundle: BundleConfig{
			Strategy:            backrun.StrategyDirect,
			GasPolicyKind:       gas.PolicyEstimate,
			BlocksToTry:         10,
			PercentageToKeep:    10,
			GasLimitHeadroomPct: 10,
			GasPriceHeadroomPct: 20,
			FeeBps:              30,
			MinProfit:           "1",
		},
		Metrics: MetricsConfig{
			Namespace: "backrunner",
		},
		Logging: LoggingConfig{
			OutputPaths: []string{"stdout", "backrunner.log"},
		},
	}
}

// LoadConfig reads cfgFile over the defaults. A missing default file is not
// an error; an explicitly named one is.
func LoadConfig(cfgFile string) (*Config, error) {
	cfg := DefaultConfig()

	path := cfgFile
	if path == "" {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && cfgFile == "":
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overlays the non-secret environment overrides.
func (c *Config) ApplyEnv() {
	c.RPCURL = GetEnvWithDefault(EnvRPCURL, c.RPCURL)
	c.ExecutorAddress = GetEnvWithDefault(EnvExecutorAddress, c.ExecutorAddress)
	c.Network = GetEnvWithDefault(EnvNetwork, c.Network)
}

// ApplyNetwork fills chain fields left empty from the network preset.
func (c *Config) ApplyNetwork() error {
	preset, ok := Networks[c.Network]
	if !ok {
		return fmt.Errorf("unsupported network: %s", c.Network)
	}

	if c.Chain.ChainID == 0 {
		c.Chain.ChainID = preset.ChainID
	}
	fill(&c.Chain.UniswapFactory, preset.UniswapFactory)
	fill(&c.Chain.SushiswapFactory, preset.SushiswapFactory)
	fill(&c.Chain.WETH, preset.WETH)
	fill(&c.Chain.MatchmakerURL, preset.MatchmakerURL)
	fill(&c.Chain.BundleAPIURL, preset.BundleAPIURL)
	fill(&c.Chain.SyncTopic, preset.SyncTopic)
	fill(&c.Feed.URL, c.Chain.MatchmakerURL)
	fill(&c.Relay.URL, c.Chain.BundleAPIURL)
	return nil
}

func fill(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}

func (c *Config) ValidateConfig() error {
	var errors []string

	if _, ok := Networks[c.Network]; !ok {
		errors = append(errors, fmt.Sprintf("network must be one of %s", strings.Join(NetworkNames(), ", ")))
	}
	if c.RPCURL == "" {
		errors = append(errors, "rpc_url must be specified")
	}
	if !common.IsHexAddress(c.ExecutorAddress) {
		errors = append(errors, "executor_address must be a hex address")
	}
	if c.RPCTimeout <= 0 {
		errors = append(errors, "rpc_timeout must be positive")
	}
	if c.EventTimeout <= 0 {
		errors = append(errors, "event_timeout must be positive")
	}

	if err := c.Chain.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("chain config error: %v", err))
	}
	if err := c.Feed.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("feed config error: %v", err))
	}
	if c.Relay.URL == "" {
		errors = append(errors, "relay url must be specified")
	}
	if c.Relay.Timeout <= 0 {
		errors = append(errors, "relay timeout must be positive")
	}
	if c.Relay.MaxRetries < 0 {
		errors = append(errors, "relay max_retries must not be negative")
	}
	if err := c.Relay.RateLimit.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("relay rate limit error: %v", err))
	}
	if err := c.Bundle.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("bundle config error: %v", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (c *ChainConfig) Validate() error {
	if c.ChainID == 0 {
		return fmt.Errorf("chain_id must be specified")
	}
	for _, field := range []struct{ name, value string }{
		{"uniswap_factory", c.UniswapFactory},
		{"sushiswap_factory", c.SushiswapFactory},
		{"weth", c.WETH},
	} {
		if !common.IsHexAddress(field.value) {
			return fmt.Errorf("%s must be a hex address", field.name)
		}
	}
	if strings.EqualFold(c.UniswapFactory, c.SushiswapFactory) {
		return fmt.Errorf("factories must differ")
	}
	if len(common.FromHex(c.SyncTopic)) != common.HashLength {
		return fmt.Errorf("sync_topic must be a 32-byte hex hash")
	}
	return nil
}

func (f *FeedConfig) Validate() error {
	if f.Transport != TransportSSE && f.Transport != TransportWebSocket {
		return fmt.Errorf("transport must be %s or %s", TransportSSE, TransportWebSocket)
	}
	if f.URL == "" {
		return fmt.Errorf("url must be specified")
	}
	if f.BufferSize <= 0 {
		return fmt.Errorf("buffer size must be positive")
	}
	if f.DedupeSize <= 0 {
		return fmt.Errorf("dedupe size must be positive")
	}
	if f.ReconnectBackoff <= 0 {
		return fmt.Errorf("reconnect backoff must be positive")
	}
	if f.MaxReconnects < 0 {
		return fmt.Errorf("max reconnects must not be negative")
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
	if r.WaitTimeout <= 0 {
		return fmt.Errorf("wait timeout must be positive")
	}

	return nil
}

func (b *BundleConfig) Validate() error {
	if err := b.Strategy.Validate(); err != nil {
		return err
	}
	if err := b.GasPolicy().Validate(); err != nil {
		return err
	}
	if b.BlocksToTry == 0 {
		return fmt.Errorf("blocks_to_try must be positive")
	}
	if b.PercentageToKeep > 100 {
		return fmt.Errorf("percentage_to_keep must be at most 100")
	}
	if b.FeeBps >= 10000 {
		return fmt.Errorf("fee_bps must be below 10000")
	}
	if _, err := b.MinProfitWei(); err != nil {
		return err
	}
	return nil
}

// GasPolicy returns the gas settings as a gas.Policy.
func (b *BundleConfig) GasPolicy() gas.Policy {
	return gas.Policy{
		Kind:                b.GasPolicyKind,
		GasLimitHeadroomPct: b.GasLimitHeadroomPct,
		GasPriceHeadroomPct: b.GasPriceHeadroomPct,
		StaticGasLimit:      b.StaticGasLimit,
	}
}

// MinProfitWei parses MinProfit.
func (b *BundleConfig) MinProfitWei() (*big.Int, error) {
	if b.MinProfit == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(b.MinProfit, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("min_profit must be a non-negative integer wei amount")
	}
	return v, nil
}

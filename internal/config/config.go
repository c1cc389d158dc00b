package config

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eigerco/appealproxy/internal/appeal"
	"github.com/eigerco/appealproxy/internal/crypto"
	"github.com/eigerco/appealproxy/internal/proxy"
	"github.com/eigerco/appealproxy/internal/safemath"
	"github.com/eigerco/appealproxy/internal/store"
	"github.com/eigerco/appealproxy/pkg/log"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Network  NetworkConfig  `yaml:"network"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Proxy    ProxyConfig    `yaml:"proxy"`
	Devnet   DevnetConfig   `yaml:"devnet"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Type  string `yaml:"type"`
}

type DatabaseConfig struct {
	// Path of the pebble directory. Empty keeps the ledger in memory, which
	// is required while the arbitrator and oracle are simulated: they start
	// over on every run and would reuse dispute ids already in the ledger.
	Path      string `yaml:"path"`
	CacheSize int    `yaml:"cache_size"`
}

type NetworkConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Name       string `yaml:"name"`
	// PrivateKey is the hex ed25519 key of the node. Empty generates one at startup.
	PrivateKey string `yaml:"private_key"`
}

type MetricsConfig struct {
	// Addr of the prometheus endpoint. Empty disables it.
	Addr string `yaml:"addr"`
}

type ProxyConfig struct {
	ExtraData    string             `yaml:"extra_data"`
	Metadata     string             `yaml:"metadata"`
	MetaEvidence string             `yaml:"meta_evidence"`
	Multipliers  appeal.Multipliers `yaml:"multipliers"`
}

// DevnetConfig sets up the simulated arbitrator and oracle the proxy runs against.
type DevnetConfig struct {
	ArbitratorAddress string `yaml:"arbitrator_address"`
	ArbitrationCost   string `yaml:"arbitration_cost"`
	// Operators are hex ed25519 public keys allowed to drive the simulated collaborators.
	Operators []string `yaml:"operators"`
}

func Default() Config {
	return Config{
		Log: LogConfig{
			Level: "info",
			Type:  "console",
		},
		Database: DatabaseConfig{
			CacheSize: store.DefaultRequestCacheSize,
		},
		Network: NetworkConfig{
			ListenAddr: "127.0.0.1:9900",
			Name:       "devnet",
		},
		Proxy: ProxyConfig{
			Multipliers: appeal.DefaultMultipliers(),
		},
		Devnet: DevnetConfig{
			ArbitratorAddress: "0x00000000000000000000000000000000000000a0",
			ArbitrationCost:   "1000",
		},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := log.ParseLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log level: %v", ErrInvalidConfig, err)
	}
	if _, err := log.ParseLoggerType(c.Log.Type); err != nil {
		return fmt.Errorf("%w: log type: %v", ErrInvalidConfig, err)
	}
	if c.Database.Path != "" {
		return fmt.Errorf("%w: database path must be empty, the simulated arbitrator and oracle keep their state in memory", ErrInvalidConfig)
	}
	if c.Database.CacheSize < 0 {
		return fmt.Errorf("%w: negative cache size", ErrInvalidConfig)
	}
	if c.Network.ListenAddr == "" {
		return fmt.Errorf("%w: listen address required", ErrInvalidConfig)
	}
	if _, err := c.ProxyConfig(); err != nil {
		return err
	}
	if _, err := c.NodeKey(); err != nil {
		return err
	}
	if _, err := c.ArbitratorAddress(); err != nil {
		return err
	}
	if _, err := c.ArbitrationCost(); err != nil {
		return err
	}
	if _, err := c.OperatorKeys(); err != nil {
		return err
	}
	return nil
}

// ProxyConfig converts the proxy section, checking the multipliers.
func (c Config) ProxyConfig() (proxy.Config, error) {
	if err := c.Proxy.Multipliers.Validate(); err != nil {
		return proxy.Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	extra, err := decodeHex(c.Proxy.ExtraData)
	if err != nil {
		return proxy.Config{}, fmt.Errorf("%w: extra data: %v", ErrInvalidConfig, err)
	}
	return proxy.Config{
		ExtraData:    extra,
		Metadata:     c.Proxy.Metadata,
		MetaEvidence: c.Proxy.MetaEvidence,
		Multipliers:  c.Proxy.Multipliers,
	}, nil
}

// NodeKey returns the configured key, or nil when one should be generated.
func (c Config) NodeKey() (ed25519.PrivateKey, error) {
	if c.Network.PrivateKey == "" {
		return nil, nil
	}
	b, err := decodeHex(c.Network.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %v", ErrInvalidConfig, err)
	}
	switch len(b) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(b), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(b), nil
	default:
		return nil, fmt.Errorf("%w: private key must be %d or %d bytes, got %d", ErrInvalidConfig, ed25519.SeedSize, ed25519.PrivateKeySize, len(b))
	}
}

func (c Config) ArbitratorAddress() (crypto.Address, error) {
	addr, err := crypto.ParseAddress(c.Devnet.ArbitratorAddress)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: arbitrator address: %v", ErrInvalidConfig, err)
	}
	return addr, nil
}

func (c Config) ArbitrationCost() (*big.Int, error) {
	cost, ok := new(big.Int).SetString(c.Devnet.ArbitrationCost, 10)
	if !ok || !safemath.InRange(cost) {
		return nil, fmt.Errorf("%w: arbitration cost %q", ErrInvalidConfig, c.Devnet.ArbitrationCost)
	}
	return cost, nil
}

func (c Config) OperatorKeys() (crypto.ED25519PublicKeySet, error) {
	set := crypto.NewED25519PublicKeySet()
	for i, s := range c.Devnet.Operators {
		b, err := decodeHex(s)
		if err != nil || len(b) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: operator %d is not a hex ed25519 public key", ErrInvalidConfig, i)
		}
		set.Add(ed25519.PublicKey(b))
	}
	return set, nil
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

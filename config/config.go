// Package config loads and validates the node's on-disk configuration,
// grounded on teacher's config/config.go (DefaultConfig/Load/Save/Validate
// shape), ported from teacher's encoding/json onto gopkg.in/yaml.v3 and
// expanded to Ephemera's membership/broadcast/storage/transport fields.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MembershipSource selects how the node discovers its broadcast group
// (spec §4.B).
type MembershipSource string

const (
	MembershipStatic MembershipSource = "static"
	MembershipHTTP   MembershipSource = "http"
)

// TLSConfig holds paths to the PEM files needed for mTLS between peers.
// When nil or all paths empty, the transport falls back to plain TCP.
type TLSConfig struct {
	CACert   string `yaml:"ca_cert"`
	PeerCert string `yaml:"peer_cert"`
	PeerKey  string `yaml:"peer_key"`
}

// Config holds all node configuration (spec §6 "Persisted state layout",
// "CLI surface").
type Config struct {
	KeystorePath string `yaml:"keystore_path"`
	DataDir      string `yaml:"data_dir"`

	MembershipSource MembershipSource `yaml:"membership_source"`
	PeersConfigFile  string           `yaml:"peers_config_file,omitempty"` // used when membership_source=static
	MembershipURL    string           `yaml:"membership_url,omitempty"`    // used when membership_source=http

	ThresholdFraction float64 `yaml:"threshold_fraction"`
	BlockIntervalMs   int64   `yaml:"block_interval_ms"`
	TickIntervalMs    int64   `yaml:"tick_interval_ms"`
	StaleTimeoutMs    int64   `yaml:"stale_timeout_ms"`

	MaxMempoolSize      int  `yaml:"max_mempool_size"`
	MaxMessagesPerBlock int  `yaml:"max_messages_per_block"`
	ProduceEmptyBlocks  bool `yaml:"produce_empty_blocks"`

	TransportListenAddr string     `yaml:"transport_listen_addr"`
	TLS                 *TLSConfig `yaml:"tls,omitempty"`

	APIListenAddr string `yaml:"api_listen_addr"`
	APIAuthToken  string `yaml:"api_auth_token,omitempty"`

	MetricsListenAddr string `yaml:"metrics_listen_addr,omitempty"`
}

// Peer describes one member of the broadcast group for the static
// membership source (spec §4.B).
type Peer struct {
	PeerID    string `yaml:"peer_id"`
	PublicKey string `yaml:"public_key"` // hex-encoded ed25519 pubkey
	Address   string `yaml:"address"`    // host:port for transport dial
}

// PeersConfig is the on-disk peers file produced by init-local-peers-config
// and read by the static MembershipProvider.
type PeersConfig struct {
	Peers []Peer `yaml:"peers"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		KeystorePath:        "./keystore.json",
		DataDir:             "./data",
		MembershipSource:    MembershipStatic,
		PeersConfigFile:     "./peers.yaml",
		ThresholdFraction:   0.67,
		BlockIntervalMs:     1000,
		TickIntervalMs:      500,
		StaleTimeoutMs:      30_000,
		MaxMempoolSize:      10_000,
		MaxMessagesPerBlock: 500,
		ProduceEmptyBlocks:  false,
		TransportListenAddr: "0.0.0.0:30303",
		APIListenAddr:       "0.0.0.0:8545",
	}
}

// Load reads a YAML config file from path, applying DefaultConfig for
// unset fields, and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML with 0600 permissions.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadPeers reads a peers file from path.
func LoadPeers(path string) (*PeersConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pc PeersConfig
	if err := yaml.Unmarshal(data, &pc); err != nil {
		return nil, fmt.Errorf("parse peers config: %w", err)
	}
	return &pc, nil
}

// SavePeers writes pc to path as YAML with 0600 permissions.
func SavePeers(pc *PeersConfig, path string) error {
	data, err := yaml.Marshal(pc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.KeystorePath == "" {
		return fmt.Errorf("keystore_path must not be empty")
	}
	if c.ThresholdFraction <= 0 || c.ThresholdFraction > 1 {
		return fmt.Errorf("threshold_fraction must be in (0, 1], got %f", c.ThresholdFraction)
	}
	if c.BlockIntervalMs <= 0 {
		return fmt.Errorf("block_interval_ms must be positive")
	}
	if c.TickIntervalMs <= 0 {
		return fmt.Errorf("tick_interval_ms must be positive")
	}
	if c.StaleTimeoutMs <= 0 {
		return fmt.Errorf("stale_timeout_ms must be positive")
	}
	if c.MaxMessagesPerBlock <= 0 {
		return fmt.Errorf("max_messages_per_block must be positive")
	}
	switch c.MembershipSource {
	case MembershipStatic:
		if c.PeersConfigFile == "" {
			return fmt.Errorf("peers_config_file must be set when membership_source=static")
		}
	case MembershipHTTP:
		if c.MembershipURL == "" {
			return fmt.Errorf("membership_url must be set when membership_source=http")
		}
	default:
		return fmt.Errorf("membership_source must be %q or %q, got %q", MembershipStatic, MembershipHTTP, c.MembershipSource)
	}
	if c.TransportListenAddr == "" {
		return fmt.Errorf("transport_listen_addr must not be empty")
	}
	if c.APIListenAddr == "" {
		return fmt.Errorf("api_listen_addr must not be empty")
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.PeerCert != "" && t.PeerKey != ""
		allEmpty := t.CACert == "" && t.PeerCert == "" && t.PeerKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, peer_cert, peer_key) must be set or all empty")
		}
	}
	return nil
}

// SetProperty assigns a single named field from its string form, used by
// the `update-config --property --value` CLI command.
func (c *Config) SetProperty(property, value string) error {
	switch property {
	case "data_dir":
		c.DataDir = value
	case "keystore_path":
		c.KeystorePath = value
	case "peers_config_file":
		c.PeersConfigFile = value
	case "membership_source":
		c.MembershipSource = MembershipSource(value)
	case "membership_url":
		c.MembershipURL = value
	case "transport_listen_addr":
		c.TransportListenAddr = value
	case "api_listen_addr":
		c.APIListenAddr = value
	case "api_auth_token":
		c.APIAuthToken = value
	case "metrics_listen_addr":
		c.MetricsListenAddr = value
	default:
		return fmt.Errorf("unknown or non-string property %q", property)
	}
	return c.Validate()
}

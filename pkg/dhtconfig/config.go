// Package dhtconfig provides configuration loading and validation for the
// DHT node daemon: network behavior, timeouts, and the ambient logging/
// metrics knobs, loaded from a YAML file with sensible defaults.
package dhtconfig

import (
	"fmt"
	"time"
)

// Config holds every tunable the DHT server and its host daemon need.
type Config struct {
	// Network settings.
	ListenAddr string `yaml:"listen_addr"`
	EnableIPv6 bool   `yaml:"enable_ipv6"`

	// Behavior flags (spec §4.8 configuration mutators).
	EnableLANDiscovery bool `yaml:"enable_lan_discovery"`
	EnableHolePunching bool `yaml:"enable_hole_punching"`

	// Bootstrap info advertised to BootstrapInfo probes (spec §4.2).
	Version int    `yaml:"version"`
	Motd    string `yaml:"motd"`

	// Seed list. If empty, the embedded default seed list is used.
	BootstrapSeedsPath string `yaml:"bootstrap_seeds_path"`

	// Timeouts, all configurable per spec §5.
	PingTimeout            time.Duration `yaml:"ping_timeout"`
	PingInterval           time.Duration `yaml:"ping_interval"`
	NodesReqInterval       time.Duration `yaml:"nodes_req_interval"`
	NatPingReqInterval     time.Duration `yaml:"nat_ping_req_interval"`
	OnionRefreshKeyInterval time.Duration `yaml:"onion_refresh_key_interval"`
	MaxBootstrapTimes      int           `yaml:"max_bootstrap_times"`

	// Close-list / bucket sizing.
	BucketCapacity int `yaml:"bucket_capacity"`

	// Ambient stack.
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultConfig returns a configuration populated with the constants named
// throughout spec §5.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:              ":33445",
		EnableIPv6:              true,
		EnableLANDiscovery:      true,
		EnableHolePunching:      true,
		Version:                 1,
		Motd:                    "",
		PingTimeout:             5 * time.Second,
		PingInterval:            60 * time.Second,
		NodesReqInterval:        20 * time.Second,
		NatPingReqInterval:      3 * time.Second,
		OnionRefreshKeyInterval: 7200 * time.Second,
		MaxBootstrapTimes:       5,
		BucketCapacity:          8,
		LogLevel:                "info",
		MetricsAddr:             "",
	}
}

// Validate checks the configuration for internal consistency, returning
// the first problem found.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("dhtconfig: listen_addr is required")
	}
	if c.PingTimeout <= 0 {
		return fmt.Errorf("dhtconfig: ping_timeout must be positive")
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("dhtconfig: ping_interval must be positive")
	}
	if c.NodesReqInterval <= 0 {
		return fmt.Errorf("dhtconfig: nodes_req_interval must be positive")
	}
	if c.NatPingReqInterval <= 0 {
		return fmt.Errorf("dhtconfig: nat_ping_req_interval must be positive")
	}
	if c.OnionRefreshKeyInterval <= 0 {
		return fmt.Errorf("dhtconfig: onion_refresh_key_interval must be positive")
	}
	if c.MaxBootstrapTimes < 1 {
		return fmt.Errorf("dhtconfig: max_bootstrap_times must be at least 1")
	}
	if c.BucketCapacity < 1 {
		return fmt.Errorf("dhtconfig: bucket_capacity must be at least 1")
	}
	if len(c.Motd) > 255 {
		return fmt.Errorf("dhtconfig: motd must be at most 255 bytes, got %d", len(c.Motd))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("dhtconfig: invalid log_level %q (must be debug, info, warn, or error)", c.LogLevel)
	}
	return nil
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

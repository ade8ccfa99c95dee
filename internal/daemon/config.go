// Package daemon wires the escrowd process: configuration, storage, the
// accounting engine, and the HTTP API.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the escrowd daemon configuration, loaded from
// ~/.escrowd/config.toml.
type Config struct {
	API      APIConfig     `toml:"api"`
	Database DBConfig      `toml:"database"`
	Fees     FeesConfig    `toml:"fees"`
	Tracing  TracingConfig `toml:"tracing"`
	Network  NetworkConfig `toml:"network"`
}

// APIConfig controls the HTTP listener.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
}

// Addr returns the host:port listen address.
func (a APIConfig) Addr() string { return fmt.Sprintf("%s:%d", a.Host, a.Port) }

// DBConfig controls sqlite persistence. An empty path means
// ~/.escrowd/escrowd.db.
type DBConfig struct {
	Path string `toml:"path"`
}

// FeesConfig names the account that receives the network fee.
type FeesConfig struct {
	Collector string `toml:"collector"`
}

// TracingConfig controls the in-memory span tracer.
type TracingConfig struct {
	Enabled  bool `toml:"enabled"`
	MaxSpans int  `toml:"max_spans"`
}

// NetworkConfig declares the permission fabric the engine runs against:
// the skill tree, the domains hanging off it, and the initial authority
// grants.
type NetworkConfig struct {
	RootDomainID uint64         `toml:"root_domain_id"`
	Skills       []SkillConfig  `toml:"skills"`
	Domains      []DomainConfig `toml:"domains"`
	Grants       []GrantConfig  `toml:"grants"`
}

// SkillConfig declares one skill. A nonzero ParentID links it as a child
// of that skill, in declaration order.
type SkillConfig struct {
	ID         uint64 `toml:"id"`
	ParentID   uint64 `toml:"parent_id"`
	Global     bool   `toml:"global"`
	Deprecated bool   `toml:"deprecated"`
}

// DomainConfig binds a domain id to its skill. The backing funding pot is
// allocated (or recovered from storage) at boot.
type DomainConfig struct {
	ID      uint64 `toml:"id"`
	SkillID uint64 `toml:"skill_id"`
}

// GrantConfig gives an account one or more operations in a domain.
// Operations are "administration", "funding", and "arbitration".
type GrantConfig struct {
	Account    string   `toml:"account"`
	DomainID   uint64   `toml:"domain_id"`
	Operations []string `toml:"operations"`
}

// DefaultConfig returns the daemon defaults: a localhost API, metrics on,
// and a single root domain.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    8425,
			Metrics: true,
		},
		Fees: FeesConfig{
			Collector: "fee-collector",
		},
		Tracing: TracingConfig{
			Enabled:  true,
			MaxSpans: 10_000,
		},
		Network: NetworkConfig{
			RootDomainID: 1,
			Skills:       []SkillConfig{{ID: 1}},
			Domains:      []DomainConfig{{ID: 1, SkillID: 1}},
		},
	}
}

// HomeDir returns the escrowd state directory (~/.escrowd).
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".escrowd"
	}
	return filepath.Join(home, ".escrowd")
}

// ConfigPath returns the default config file location.
func ConfigPath() string { return filepath.Join(HomeDir(), "config.toml") }

// DatabasePath resolves the sqlite file location.
func (c Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(HomeDir(), "escrowd.db")
}

// LoadConfig reads a TOML config file, layered over the defaults. A missing
// file yields the defaults; path "" means ConfigPath().
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Package config loads a node's static configuration: its bus table,
// its daemon roster, and its peer supervisor, from a single YAML file.
// Structure and defaulting style are grounded on cellorg's config.go.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level document for one meshwire node.
type Config struct {
	NodeName string `yaml:"node_name"`
	Debug    bool   `yaml:"debug"`

	Buses   []BusConfig    `yaml:"buses"`
	Daemons []DaemonConfig `yaml:"daemons"`
	Peer    *PeerConfig    `yaml:"peer,omitempty"`

	AwaitTimeoutSeconds int `yaml:"await_timeout_seconds"`

	// AuditDir, when set, turns on the controller's frame-history log at
	// that path. An empty value, whether omitted or written as "", leaves
	// auditing off; meshd never opens the in-memory log that
	// audit.Open("") would give.
	AuditDir string `yaml:"audit_dir,omitempty"`
}

// BusConfig is the on-disk form of bus.Config before its router/address
// fields are resolved against a concrete address type.
type BusConfig struct {
	ID       string `yaml:"id"`
	Role     string `yaml:"role"` // request|reply|publish|subscribe|push|pull|router|dealer
	URI      string `yaml:"uri"`
	Router   string `yaml:"router,omitempty"`
	Queued   bool   `yaml:"queued"`
	Topic    string `yaml:"topic,omitempty"`
	Identity string `yaml:"identity"`
}

// DaemonConfig describes one launcher-managed daemon.
type DaemonConfig struct {
	Name    string   `yaml:"name"`
	Binary  string   `yaml:"binary"`
	Mode    string   `yaml:"mode"` // thread|process
	Args    []string `yaml:"args,omitempty"`
}

// PeerConfig describes the peer supervisor for this node.
type PeerConfig struct {
	Mode      string `yaml:"mode"` // listen|connect
	Addr      string `yaml:"addr"`
	SpawnMode string `yaml:"spawn_mode,omitempty"` // thread|fork
	KeyFile   string `yaml:"key_file"`
}

// Load reads and parses filename, applying the same kind of defaulting
// cellorg's Load does.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", filename, err)
	}

	if cfg.AwaitTimeoutSeconds == 0 {
		cfg.AwaitTimeoutSeconds = 30
	}
	if cfg.AwaitTimeoutSeconds < 0 {
		return nil, fmt.Errorf("config: await_timeout_seconds cannot be negative: %d", cfg.AwaitTimeoutSeconds)
	}
	for i, d := range cfg.Daemons {
		if d.Mode == "" {
			cfg.Daemons[i].Mode = "thread"
		}
	}
	if cfg.Peer != nil && cfg.Peer.SpawnMode == "" {
		cfg.Peer.SpawnMode = "thread"
	}

	return &cfg, nil
}

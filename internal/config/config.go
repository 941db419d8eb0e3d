// Package config provides TOML configuration file loading and parsing for the
// collaboration server. The configuration file lives at ~/.collab/config.toml
// by default, but can be overridden with the --config flag. CLI flags always
// take precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the server configuration file structure.
// Field names use Go camelCase internally but map to snake_case in TOML files
// via struct tags.
type Config struct {
	// Addr is the host:port for the WebSocket server.
	// Default: 127.0.0.1:3001
	Addr string `toml:"addr"`

	// Database is the path to the SQLite database shared with the project app.
	// Default: ~/.collab/collab.db
	Database string `toml:"database"`

	// TLSCert is the path to the TLS certificate file.
	// TLS is enabled only when both TLSCert and TLSKey are set.
	TLSCert string `toml:"tls_cert"`

	// TLSKey is the path to the TLS key file.
	TLSKey string `toml:"tls_key"`

	// TLSSelfSigned serves wss:// with a generated certificate kept in
	// ~/.collab/certs when TLSCert and TLSKey are not set.
	TLSSelfSigned bool `toml:"tls_self_signed"`

	// RequireAuth enables bearer-token authentication for WebSocket connections.
	// Default: false
	RequireAuth bool `toml:"require_auth"`

	// AllowedOrigins restricts which browser origins may open a WebSocket.
	// Empty means any origin is accepted.
	AllowedOrigins []string `toml:"allowed_origins"`

	// CursorIntervalMs is the minimum spacing between forwarded cursor events
	// per session, in milliseconds.
	// Default: 50 (20 events per second)
	CursorIntervalMs int `toml:"cursor_interval_ms"`

	// SendBuffer is the per-session outbound message queue length.
	// Default: 256
	SendBuffer int `toml:"send_buffer"`

	// MaxProtocolViolations is how many malformed or out-of-state events a
	// session may send before it is force-closed. -1 disables the limit.
	// Default: 5
	MaxProtocolViolations int `toml:"max_protocol_violations"`
}

// DefaultConfigPath returns the default config file location: ~/.collab/config.toml.
// Returns an error only if the user's home directory cannot be determined.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".collab", "config.toml"), nil
}

// DefaultDatabasePath returns the default SQLite location: ~/.collab/collab.db.
func DefaultDatabasePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".collab", "collab.db"), nil
}

// Load reads a TOML config file from the given path and returns a Config.
//
// Behavior:
//   - If path is empty, attempts to load from the default location (~/.collab/config.toml).
//     Returns an empty Config without error if the default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return cfg, nil
		}
		path = defaultPath
	} else {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	// Unknown keys are an error so a typo does not silently fall back to defaults.
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q in config file %s", undecoded[0].String(), path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects values that can never work. Zero values are allowed
// everywhere because ApplyDefaults fills them in.
func (c *Config) Validate() error {
	if c.CursorIntervalMs < 0 {
		return fmt.Errorf("cursor_interval_ms must not be negative")
	}
	if c.SendBuffer < 0 {
		return fmt.Errorf("send_buffer must not be negative")
	}
	if c.MaxProtocolViolations < -1 {
		return fmt.Errorf("max_protocol_violations must be -1 (unlimited) or positive")
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("tls_cert and tls_key must be set together")
	}
	return nil
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.Database == "" {
		if path, err := DefaultDatabasePath(); err == nil {
			c.Database = path
		} else {
			c.Database = DefaultDatabaseFile
		}
	}
	if c.CursorIntervalMs == 0 {
		c.CursorIntervalMs = DefaultCursorIntervalMs
	}
	if c.SendBuffer == 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	if c.MaxProtocolViolations == 0 {
		c.MaxProtocolViolations = DefaultMaxProtocolViolations
	}
}

// CursorInterval returns CursorIntervalMs as a duration.
func (c *Config) CursorInterval() time.Duration {
	return time.Duration(c.CursorIntervalMs) * time.Millisecond
}

// TLSEnabled reports whether both TLS files are configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

package config

import (
	"path/filepath"
	"time"
)

// Config represents the complete kolibrid configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Home    string        `yaml:"home"`
	State   StateConfig   `yaml:"state"`
	HTTP    HTTPConfig    `yaml:"http"`
	API     APIConfig     `yaml:"api,omitempty"`
}

// ServiceConfig defines core daemon settings.
type ServiceConfig struct {
	Name        string        `yaml:"name"`
	LogLevel    string        `yaml:"log_level"`
	PollTimeout time.Duration `yaml:"poll_timeout"`
	Autostart   bool          `yaml:"autostart"`
}

// StateConfig defines where the shared state database lives.
type StateConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig defines listen ports for the managed webapp.
// Port 0 asks the kernel for an ephemeral port; the actual bound port is
// reported back through the SERVING / ZIP_SERVING lifecycle events.
type HTTPConfig struct {
	Port    int `yaml:"port"`
	ZipPort int `yaml:"zip_port"`
}

// APIConfig defines the controller HTTP API settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings. An empty APIKey leaves
// the API unauthenticated (intended for loopback listeners only).
type APIAuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// PIDLockPath returns the daemon's single-instance lock path, colocated with
// the state database.
func (c *Config) PIDLockPath() string {
	return filepath.Join(filepath.Dir(c.State.Path), "kolibrid.pid")
}

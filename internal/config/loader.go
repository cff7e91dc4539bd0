package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file. If configPath is a
// directory, config.yaml inside it is used. When a .checksums file exists
// next to the config, the file is integrity-verified before use.
func Load(configPath string) (*Config, error) {
	// Resolve to absolute path for consistent relative path resolution
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", absPath, err)
	}

	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", absPath, err)
	}

	applyDefaults(&cfg, filepath.Dir(absPath))

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", absPath, err)
	}

	return &cfg, nil
}

// DiscoverConfigDir looks for a configuration in the usual places:
// $KOLIBRID_CONFIG, ~/.config/kolibrid, /etc/kolibrid, then ./config.yaml.
func DiscoverConfigDir() (string, error) {
	if dir := os.Getenv("KOLIBRID_CONFIG"); dir != "" {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfigDir := filepath.Join(homeDir, ".config", "kolibrid")
		if _, err := os.Stat(userConfigDir); err == nil {
			return userConfigDir, nil
		}
	}

	systemConfigDir := "/etc/kolibrid"
	if _, err := os.Stat(systemConfigDir); err == nil {
		return systemConfigDir, nil
	}

	localConfigPath := "./config.yaml"
	if _, err := os.Stat(localConfigPath); err == nil {
		return localConfigPath, nil
	}

	return "", fmt.Errorf("no config found (checked: $KOLIBRID_CONFIG, ~/.config/kolibrid, /etc/kolibrid, ./config.yaml)")
}

// expandEnvVars substitutes ${VAR} references with environment values.
// Unset variables expand to the empty string.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

func applyDefaults(cfg *Config, configDir string) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "kolibrid"
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = "info"
	}
	if cfg.Service.PollTimeout <= 0 {
		cfg.Service.PollTimeout = 5 * time.Second
	}
	if cfg.Home == "" {
		cfg.Home = filepath.Join(configDir, "home")
	}
	if cfg.State.Path == "" {
		cfg.State.Path = filepath.Join(cfg.Home, "state.db")
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = "127.0.0.1:5678"
	}
}

func validate(cfg *Config) error {
	if cfg.HTTP.Port < 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.ZipPort < 0 || cfg.HTTP.ZipPort > 65535 {
		return fmt.Errorf("http.zip_port out of range: %d", cfg.HTTP.ZipPort)
	}
	if cfg.HTTP.Port != 0 && cfg.HTTP.Port == cfg.HTTP.ZipPort {
		return fmt.Errorf("http.port and http.zip_port must differ (both %d)", cfg.HTTP.Port)
	}
	if !filepath.IsAbs(cfg.Home) {
		return fmt.Errorf("home must be an absolute path, got %q", cfg.Home)
	}
	if cfg.Service.PollTimeout < 100*time.Millisecond {
		return fmt.Errorf("service.poll_timeout too small: %s", cfg.Service.PollTimeout)
	}
	return nil
}

package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultServer  = "http://localhost:8080"
	DefaultTimeout = 30 * time.Second

	// ServerEnv overrides the server of the config file.
	ServerEnv = "ESTUDO_SERVER"
)

// Config is the CLI configuration file:
//
//	server: https://estudo.example.com
//	timeout: 20s
type Config struct {
	Server  string        `yaml:"server"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfigPath is <user config dir>/estudo/config.yaml.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cli: locating config dir: %w", err)
	}
	return filepath.Join(dir, "estudo", "config.yaml"), nil
}

// LoadConfig reads path. A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := Config{Server: DefaultServer, Timeout: DefaultTimeout}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("cli: reading %s: %w", path, err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("cli: parsing %s: %w", path, err)
	}
	if file.Server != "" {
		cfg.Server = file.Server
	}
	if file.Timeout < 0 {
		return cfg, fmt.Errorf("cli: %s: timeout must not be negative", path)
	}
	if file.Timeout > 0 {
		cfg.Timeout = file.Timeout
	}
	return cfg, nil
}

// resolveServer applies the precedence flag > environment > file.
func (c Config) resolveServer(flag, env string) Config {
	switch {
	case strings.TrimSpace(flag) != "":
		c.Server = strings.TrimSpace(flag)
	case strings.TrimSpace(env) != "":
		c.Server = strings.TrimSpace(env)
	}
	c.Server = strings.TrimRight(c.Server, "/")
	return c
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/dmcooke/ftactive/internal/protocol/session"
)

// ServerConfig is the on-disk shape for ftserver overrides.
type ServerConfig struct {
	Dir                 string  `toml:"dir"`
	AdminAddr           string  `toml:"admin_addr"`
	MaxConnectAttempts  int     `toml:"max_connect_attempts"`
	ConnectTimeout      string  `toml:"connect_timeout"`
	ReadTimeout         string  `toml:"read_timeout"`
	WriteTimeout        string  `toml:"write_timeout"`
	BackoffInitialDelay string  `toml:"backoff_initial_delay"`
	BackoffMultiplier   float64 `toml:"backoff_multiplier"`
	BackoffMaxDelay     string  `toml:"backoff_max_delay"`
	BackoffJitter       bool    `toml:"backoff_jitter"`
}

// ClientConfig is the on-disk shape for ftclient overrides.
type ClientConfig struct {
	OutputDir      string `toml:"output_dir"`
	DataPort       int    `toml:"data_port"`
	ConnectTimeout string `toml:"connect_timeout"`
	ReadTimeout    string `toml:"read_timeout"`
}

func LoadServerConfig(path string) (ServerConfig, error) {
	var cfg ServerConfig
	if err := loadToml(path, &cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("load server config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func LoadClientConfig(path string) (ClientConfig, error) {
	var cfg ClientConfig
	if err := loadToml(path, &cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("load client config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func (c ServerConfig) Validate() error {
	if c.MaxConnectAttempts < 0 {
		return fmt.Errorf("server config: max_connect_attempts must be positive")
	}
	for key, raw := range map[string]string{
		"connect_timeout":       c.ConnectTimeout,
		"read_timeout":          c.ReadTimeout,
		"write_timeout":         c.WriteTimeout,
		"backoff_initial_delay": c.BackoffInitialDelay,
		"backoff_max_delay":     c.BackoffMaxDelay,
	} {
		if err := validateDuration(key, raw); err != nil {
			return err
		}
	}
	return nil
}

func (c ClientConfig) Validate() error {
	if c.DataPort < 0 || c.DataPort > 65535 {
		return fmt.Errorf("client config: data_port out of range: %d", c.DataPort)
	}
	for key, raw := range map[string]string{
		"connect_timeout": c.ConnectTimeout,
		"read_timeout":    c.ReadTimeout,
	} {
		if err := validateDuration(key, raw); err != nil {
			return err
		}
	}
	return nil
}

// SessionConfig converts on-disk overrides into session defaults.
func (c ServerConfig) SessionConfig() (session.Config, error) {
	cfg := session.DefaultConfig()
	if c.MaxConnectAttempts > 0 {
		cfg.MaxConnectAttempts = c.MaxConnectAttempts
	}
	if err := overlayDuration(&cfg.ConnectTimeout, c.ConnectTimeout); err != nil {
		return session.Config{}, err
	}
	if err := overlayDuration(&cfg.ReadTimeout, c.ReadTimeout); err != nil {
		return session.Config{}, err
	}
	if err := overlayDuration(&cfg.WriteTimeout, c.WriteTimeout); err != nil {
		return session.Config{}, err
	}
	if err := overlayDuration(&cfg.Backoff.InitialDelay, c.BackoffInitialDelay); err != nil {
		return session.Config{}, err
	}
	if err := overlayDuration(&cfg.Backoff.MaxDelay, c.BackoffMaxDelay); err != nil {
		return session.Config{}, err
	}
	if c.BackoffMultiplier > 0 {
		cfg.Backoff.Multiplier = c.BackoffMultiplier
	}
	cfg.Backoff.Jitter = c.BackoffJitter
	return cfg, nil
}

func validateDuration(key, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if _, err := time.ParseDuration(strings.TrimSpace(raw)); err != nil {
		return fmt.Errorf("config: parse %s: %w", key, err)
	}
	return nil
}

func overlayDuration(dst *time.Duration, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func loadToml(path string, v any) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return toml.Unmarshal(content, v)
}

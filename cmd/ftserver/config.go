package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/dmcooke/ftactive/internal/dirfs"
	"github.com/dmcooke/ftactive/internal/server"
)

type fileConfig struct {
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

func applyFileConfig(path string, cfg server.Config) (server.Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return server.Config{}, fmt.Errorf("load server config: %w", err)
	}

	if meta.IsDefined("dir") {
		dir := strings.TrimSpace(raw.Dir)
		if dir != "" {
			cfg.Dir = dirfs.OS(dir)
		}
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("max_connect_attempts") {
		if raw.MaxConnectAttempts <= 0 {
			return server.Config{}, fmt.Errorf("max_connect_attempts must be positive: %d", raw.MaxConnectAttempts)
		}
		cfg.Session.MaxConnectAttempts = raw.MaxConnectAttempts
	}

	if err := overlayDuration(meta, "connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout); err != nil {
		return server.Config{}, err
	}
	if err := overlayDuration(meta, "read_timeout", raw.ReadTimeout, &cfg.Session.ReadTimeout); err != nil {
		return server.Config{}, err
	}
	if err := overlayDuration(meta, "write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout); err != nil {
		return server.Config{}, err
	}
	if err := overlayDuration(meta, "backoff_initial_delay", raw.BackoffInitialDelay, &cfg.Session.Backoff.InitialDelay); err != nil {
		return server.Config{}, err
	}
	if err := overlayDuration(meta, "backoff_max_delay", raw.BackoffMaxDelay, &cfg.Session.Backoff.MaxDelay); err != nil {
		return server.Config{}, err
	}
	if meta.IsDefined("backoff_multiplier") {
		cfg.Session.Backoff.Multiplier = raw.BackoffMultiplier
	}
	if meta.IsDefined("backoff_jitter") {
		cfg.Session.Backoff.Jitter = raw.BackoffJitter
	}
	return cfg, nil
}

func overlayDuration(meta toml.MetaData, key, raw string, dst *time.Duration) error {
	if !meta.IsDefined(key) {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = d
	return nil
}

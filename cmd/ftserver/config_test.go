package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmcooke/ftactive/internal/protocol/session"
	"github.com/dmcooke/ftactive/internal/server"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func baseConfig() server.Config {
	return server.Config{ListenAddr: ":9100", Session: session.DefaultConfig()}
}

func TestApplyFileConfigOverlaysOnlyDefinedKeys(t *testing.T) {
	path := writeConfig(t, `
admin_addr = "127.0.0.1:9901"
max_connect_attempts = 3
backoff_initial_delay = "10ms"
`)

	cfg, err := applyFileConfig(path, baseConfig())
	if err != nil {
		t.Fatalf("apply config: %v", err)
	}
	if cfg.AdminListenAddr != "127.0.0.1:9901" {
		t.Fatalf("admin addr=%q", cfg.AdminListenAddr)
	}
	if cfg.Session.MaxConnectAttempts != 3 {
		t.Fatalf("attempts=%d", cfg.Session.MaxConnectAttempts)
	}
	if cfg.Session.Backoff.InitialDelay != 10*time.Millisecond {
		t.Fatalf("initial delay=%v", cfg.Session.Backoff.InitialDelay)
	}
	// Undefined keys keep their defaults.
	if cfg.Session.ConnectTimeout != session.DefaultConfig().ConnectTimeout {
		t.Fatalf("connect timeout overwritten: %v", cfg.Session.ConnectTimeout)
	}
}

func TestApplyFileConfigRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "read_timeout = \"whenever\"\n")
	if _, err := applyFileConfig(path, baseConfig()); err == nil {
		t.Fatalf("expected duration parse error")
	}
}

func TestApplyFileConfigRejectsNonPositiveAttempts(t *testing.T) {
	path := writeConfig(t, "max_connect_attempts = 0\n")
	if _, err := applyFileConfig(path, baseConfig()); err == nil {
		t.Fatalf("expected attempts validation error")
	}
}

func TestParsePort(t *testing.T) {
	if _, err := parsePort("8080"); err != nil {
		t.Fatalf("valid port rejected: %v", err)
	}
	for _, raw := range []string{"abc", "80a", "1023", "65536", "-1"} {
		if _, err := parsePort(raw); err == nil {
			t.Fatalf("port %q should be rejected", raw)
		}
	}
}

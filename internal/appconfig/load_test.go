package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transport.Mode != TransportSimulated {
		t.Fatalf("expected default transport mode, got %q", cfg.Transport.Mode)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Setenv("TERMLINK_TEST_KEY", "sk-test")
	path := writeConfig(t, `
config_version: 1
transport:
  mode: live
  socket_path: /tmp/bridge.sock
session:
  default_working_dir: /work
  credential: $TERMLINK_TEST_KEY
http:
  addr: 127.0.0.1:9000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transport.Mode != TransportLive || cfg.Transport.SocketPath != "/tmp/bridge.sock" {
		t.Fatalf("unexpected transport: %+v", cfg.Transport)
	}
	if cfg.Session.DefaultWorkingDir != "/work" || cfg.Session.Credential != "sk-test" {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected http addr %q", cfg.HTTP.Addr)
	}
	if cfg.HTTP.ReadLimitBytes != 64*1024 {
		t.Fatalf("expected default read limit, got %d", cfg.HTTP.ReadLimitBytes)
	}
}

func TestLoadRejectsUnsupportedConfigVersion(t *testing.T) {
	path := writeConfig(t, `
config_version: 3
transport:
  mode: simulated
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported config_version") {
		t.Fatalf("expected config_version error, got %v", err)
	}
}

func TestLoadRejectsUnsupportedTransportMode(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
transport:
  mode: carrier-pigeon
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported transport.mode") {
		t.Fatalf("expected transport mode error, got %v", err)
	}
}

func TestLoadRejectsNegativeDelays(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
transport:
  simulated:
    output_delay_ms: -1
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "must not be negative") {
		t.Fatalf("expected delay error, got %v", err)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	value := expandEnv("$FOO/$UID/$GID/$MISSING")
	if !strings.HasPrefix(value, "bar/") {
		t.Fatalf("expected env expansion, got %q", value)
	}
	if strings.Contains(value, "$UID") || strings.Contains(value, "$GID") {
		t.Fatalf("expected UID/GID expansion, got %q", value)
	}
	if !strings.HasSuffix(value, "/$MISSING") {
		t.Fatalf("expected missing vars to remain, got %q", value)
	}
}

func TestWriteDefaultRespectsOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")
	written, err := WriteDefault(path, false)
	if err != nil {
		t.Fatalf("write default: %v", err)
	}
	if written != path {
		t.Fatalf("expected path %q, got %q", path, written)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config to exist: %v", err)
	}
	if _, err := WriteDefault(path, false); err == nil {
		t.Fatalf("expected error when config exists")
	}
	if _, err := WriteDefault(path, true); err != nil {
		t.Fatalf("expected overwrite to succeed: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load written default: %v", err)
	}
	if cfg.ConfigVersion != CurrentConfigVersion {
		t.Fatalf("expected written config to round trip version, got %d", cfg.ConfigVersion)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

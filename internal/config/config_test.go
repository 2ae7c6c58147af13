package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Cleanup(func() { getenv = os.Getenv })
	getenv = func(string) string { return "secret" }

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.RelayURL != defaultRelayURL {
		t.Fatalf("expected default relay url %s, got %s", defaultRelayURL, cfg.RelayURL)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Fatalf("expected default log level %s, got %s", defaultLogLevel, cfg.LogLevel)
	}
	if cfg.ReconnectDelay != defaultReconnectDelay {
		t.Fatalf("expected default reconnect delay %s, got %s", defaultReconnectDelay, cfg.ReconnectDelay)
	}
	if cfg.InboundBuffer != defaultInboundBuffer {
		t.Fatalf("expected default inbound buffer %d, got %d", defaultInboundBuffer, cfg.InboundBuffer)
	}
	if cfg.OverflowPolicy != OverflowDropNewest {
		t.Fatalf("expected default overflow policy, got %s", cfg.OverflowPolicy)
	}
	if cfg.Keystore.Path != defaultKeystorePath {
		t.Fatalf("expected default keystore path %s, got %s", defaultKeystorePath, cfg.Keystore.Path)
	}
	if cfg.TransferMaxAge != 0 {
		t.Fatalf("expected unbounded transfer age by default, got %s", cfg.TransferMaxAge)
	}
}

func TestLoadWithFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(`
relay_url: "ws://relay.example:9000/ws"
log_level: "debug"
reconnect_delay: "5s"
overflow_policy: "drop_oldest"
keystore:
  path: "/tmp/keystore.json"
  passphrase_env: "CUSTOM_ENV"
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("KRYPT_RELAY_URL", "ws://override.example/ws")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.RelayURL != "ws://override.example/ws" {
		t.Fatalf("expected env override for relay url, got %s", cfg.RelayURL)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log level debug, got %s", cfg.LogLevel)
	}
	if cfg.ReconnectDelay != 5*time.Second {
		t.Fatalf("expected reconnect delay 5s, got %s", cfg.ReconnectDelay)
	}
	if cfg.OverflowPolicy != OverflowDropOldest {
		t.Fatalf("expected drop_oldest policy, got %s", cfg.OverflowPolicy)
	}
	if cfg.Keystore.Path != "/tmp/keystore.json" {
		t.Fatalf("expected keystore path from file, got %s", cfg.Keystore.Path)
	}
	if cfg.Keystore.PassphraseEnv != "CUSTOM_ENV" {
		t.Fatalf("expected passphrase env CUSTOM_ENV, got %s", cfg.Keystore.PassphraseEnv)
	}
}

func TestLoadRejectsUnknownOverflowPolicy(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("overflow_policy: \"drop_random\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("expected error for unknown overflow policy")
	}
}

func TestPassphraseFetch(t *testing.T) {
	t.Cleanup(func() { getenv = os.Getenv })
	getenv = func(key string) string {
		if key == "CUSTOM_ENV" {
			return "hunter2"
		}
		return ""
	}

	cfg := Config{Keystore: KeystoreConfig{PassphraseEnv: "CUSTOM_ENV"}}
	pass, err := cfg.Passphrase()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pass != "hunter2" {
		t.Fatalf("expected passphrase from env, got %s", pass)
	}

	cfg.Keystore.PassphraseEnv = "MISSING_ENV"
	if _, err := cfg.Passphrase(); err == nil {
		t.Fatal("expected error when passphrase env is missing")
	}
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the client runtime parameters.
type Config struct {
	RelayURL       string         `mapstructure:"relay_url"`
	LogLevel       string         `mapstructure:"log_level"`
	AdminAddress   string         `mapstructure:"admin_address"`
	ReconnectDelay time.Duration  `mapstructure:"reconnect_delay"`
	InboundBuffer  int            `mapstructure:"inbound_buffer"`
	OverflowPolicy string         `mapstructure:"overflow_policy"`
	ChunkSize      int            `mapstructure:"chunk_size"`
	TransferMaxAge time.Duration  `mapstructure:"transfer_max_age"`
	SweepInterval  time.Duration  `mapstructure:"sweep_interval"`
	StatusTTL      time.Duration  `mapstructure:"status_ttl"`
	Keystore       KeystoreConfig `mapstructure:"keystore"`
	Store          StoreConfig    `mapstructure:"store"`
}

// KeystoreConfig describes how the keystore backend is initialized.
type KeystoreConfig struct {
	Path          string `mapstructure:"path"`
	PassphraseEnv string `mapstructure:"passphrase_env"`
}

// StoreConfig describes where the local store snapshots its records.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// Overflow policies for the inbound envelope buffer.
const (
	OverflowDropNewest = "drop_newest"
	OverflowDropOldest = "drop_oldest"
)

const (
	defaultRelayURL       = "ws://127.0.0.1:8080/ws"
	defaultLogLevel       = "info"
	defaultReconnectDelay = 3 * time.Second
	defaultInboundBuffer  = 256
	defaultOverflowPolicy = OverflowDropNewest
	defaultChunkSize      = 64 * 1024
	defaultSweepInterval  = time.Minute
	defaultStatusTTL      = 24 * time.Hour
	defaultPassphraseEnv  = "KRYPT_KEYSTORE_PASSPHRASE"
	defaultKeystorePath   = "data/keystore.json"
	defaultStorePath      = "data/store.json"
)

// Load reads configuration from the provided file path (if any) and the environment.
// Environment variables are prefixed with KRYPT_ and can override file values.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("KRYPT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("relay_url", defaultRelayURL)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("admin_address", "")
	v.SetDefault("reconnect_delay", defaultReconnectDelay.String())
	v.SetDefault("inbound_buffer", defaultInboundBuffer)
	v.SetDefault("overflow_policy", defaultOverflowPolicy)
	v.SetDefault("chunk_size", defaultChunkSize)
	v.SetDefault("transfer_max_age", "0s")
	v.SetDefault("sweep_interval", defaultSweepInterval.String())
	v.SetDefault("status_ttl", defaultStatusTTL.String())
	v.SetDefault("keystore.path", defaultKeystorePath)
	v.SetDefault("keystore.passphrase_env", defaultPassphraseEnv)
	v.SetDefault("store.path", defaultStorePath)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// Viper leaves durations as strings; normalize them here.
	durations := []struct {
		key string
		dst *time.Duration
		def time.Duration
	}{
		{"reconnect_delay", &cfg.ReconnectDelay, defaultReconnectDelay},
		{"transfer_max_age", &cfg.TransferMaxAge, 0},
		{"sweep_interval", &cfg.SweepInterval, defaultSweepInterval},
		{"status_ttl", &cfg.StatusTTL, defaultStatusTTL},
	}
	for _, d := range durations {
		if !v.IsSet(d.key) {
			*d.dst = d.def
			continue
		}
		dur, err := time.ParseDuration(v.GetString(d.key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = dur
	}

	if cfg.RelayURL == "" {
		cfg.RelayURL = defaultRelayURL
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.InboundBuffer <= 0 {
		cfg.InboundBuffer = defaultInboundBuffer
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	switch cfg.OverflowPolicy {
	case OverflowDropNewest, OverflowDropOldest:
	case "":
		cfg.OverflowPolicy = defaultOverflowPolicy
	default:
		return Config{}, fmt.Errorf("invalid overflow_policy %q", cfg.OverflowPolicy)
	}
	if cfg.Keystore.PassphraseEnv == "" {
		cfg.Keystore.PassphraseEnv = defaultPassphraseEnv
	}
	if cfg.Keystore.Path == "" {
		cfg.Keystore.Path = defaultKeystorePath
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = defaultStorePath
	}

	return cfg, nil
}

// Passphrase fetches the keystore passphrase from the configured environment variable.
func (c Config) Passphrase() (string, error) {
	env := c.Keystore.PassphraseEnv
	if env == "" {
		env = defaultPassphraseEnv
	}
	val := strings.TrimSpace(getenv(env))
	if val == "" {
		return "", fmt.Errorf("keystore passphrase env %s is empty", env)
	}
	return val, nil
}

// split out for testing.
var getenv = os.Getenv

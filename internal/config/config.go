// Package config loads service configuration from flags, environment, .env and
// an optional config file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Configuration keys.
const (
	KeyListenAddr        = "listen_addr"
	KeyPostgresDSN       = "postgres_dsn"
	KeyClickHouseDSN     = "clickhouse_dsn"
	KeyUseMemory         = "use_memory"
	KeyCoinGeckoURL      = "coingecko_url"
	KeyCoinGeckoAPIKey   = "coingecko_api_key"
	KeyCodexURL          = "codex_url"
	KeyCodexAPIKey       = "codex_api_key"
	KeyDexScreenerURL    = "dexscreener_url"
	KeyDexPreferredChain = "dex_preferred_chain"
	KeyDexPreferredDex   = "dex_preferred_dex"
	KeyAdapterRetries    = "adapter_retries"
	KeyAdminToken        = "admin_token"
	KeyLogLevel          = "log_level"
	KeyLogDevelopment    = "log_development"
)

// EnvPrefix is prepended to every environment variable (BRIDGE_LISTEN_ADDR, ...).
const EnvPrefix = "BRIDGE"

// Config holds the resolved service configuration.
type Config struct {
	ListenAddr string

	PostgresDSN   string
	ClickHouseDSN string // empty disables price history
	UseMemory     bool

	CoinGeckoURL    string
	CoinGeckoAPIKey string
	CodexURL        string
	CodexAPIKey     string // empty disables the Codex source
	DexScreenerURL  string

	DexPreferredChain string
	DexPreferredDex   string

	AdapterRetries int

	AdminToken string

	LogLevel       string
	LogDevelopment bool
}

// New returns a viper instance with defaults and environment bindings applied.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyListenAddr, ":5000")
	v.SetDefault(KeyUseMemory, false)
	v.SetDefault(KeyCoinGeckoURL, "https://api.coingecko.com")
	v.SetDefault(KeyCodexURL, "https://graph.codex.io/graphql")
	v.SetDefault(KeyDexScreenerURL, "https://api.dexscreener.com")
	v.SetDefault(KeyDexPreferredChain, "megaeth")
	v.SetDefault(KeyDexPreferredDex, "")
	v.SetDefault(KeyAdapterRetries, 0)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogDevelopment, false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// The Codex key keeps its historical unprefixed name as an alternative.
	_ = v.BindEnv(KeyCodexAPIKey, EnvPrefix+"_CODEX_API_KEY", "CODEX_API_KEY")

	return v
}

// LoadDotEnv loads variables from the given .env files without overriding
// variables already present in the environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ReadFile merges a config file (yaml, json, toml, ...) into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	return nil
}

// Load resolves and validates the configuration.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		ListenAddr:        v.GetString(KeyListenAddr),
		PostgresDSN:       v.GetString(KeyPostgresDSN),
		ClickHouseDSN:     v.GetString(KeyClickHouseDSN),
		UseMemory:         v.GetBool(KeyUseMemory),
		CoinGeckoURL:      strings.TrimRight(v.GetString(KeyCoinGeckoURL), "/"),
		CoinGeckoAPIKey:   v.GetString(KeyCoinGeckoAPIKey),
		CodexURL:          v.GetString(KeyCodexURL),
		CodexAPIKey:       v.GetString(KeyCodexAPIKey),
		DexScreenerURL:    strings.TrimRight(v.GetString(KeyDexScreenerURL), "/"),
		DexPreferredChain: strings.ToLower(v.GetString(KeyDexPreferredChain)),
		DexPreferredDex:   strings.ToLower(v.GetString(KeyDexPreferredDex)),
		AdapterRetries:    v.GetInt(KeyAdapterRetries),
		AdminToken:        v.GetString(KeyAdminToken),
		LogLevel:          v.GetString(KeyLogLevel),
		LogDevelopment:    v.GetBool(KeyLogDevelopment),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and bounds.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen_addr is required")
	}
	if !c.UseMemory && c.PostgresDSN == "" {
		return errors.New("postgres_dsn is required (set use_memory for in-memory storage)")
	}
	if c.AdapterRetries < 0 || c.AdapterRetries > 5 {
		return fmt.Errorf("adapter_retries must be within [0, 5], got %d", c.AdapterRetries)
	}
	if c.CoinGeckoURL == "" || c.DexScreenerURL == "" {
		return errors.New("price source urls must not be empty")
	}
	return nil
}

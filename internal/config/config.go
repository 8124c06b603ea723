package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Transport  TransportConfig  `yaml:"transport"`
	Auth       AuthConfig       `yaml:"auth"`
	DB         DBConfig         `yaml:"db"`
	Log        LogConfig        `yaml:"log"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Disclosure DisclosureConfig `yaml:"disclosure"`
	Signer     SignerConfig     `yaml:"signer"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type TransportConfig struct {
	Mode string `yaml:"mode"` // stdio or http
}

type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
	// Identity is the caller identity when auth is disabled (stdio).
	Identity string   `yaml:"identity"`
	Keys     []APIKey `yaml:"keys"`
}

// APIKey binds a sha256 token hash to an identity.
type APIKey struct {
	TokenHash string `yaml:"token_hash"`
	Identity  string `yaml:"identity"`
}

// DBConfig locates the SQLite database holding the activity log and api keys.
type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // text, json or pretty
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type LedgerConfig struct {
	Driver string `yaml:"driver"` // memory, file, sqlite, postgres or remote
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
}

type DisclosureConfig struct {
	ChainID         int64  `yaml:"chain_id"`
	ContractAddress string `yaml:"contract_address"`
	DurationDays    int    `yaml:"duration_days"`
	SessionCache    int    `yaml:"session_cache"`
}

type SignerConfig struct {
	KeyPath string `yaml:"key_path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Transport: TransportConfig{
			Mode: "http",
		},
		Auth: AuthConfig{
			Enabled: true,
		},
		DB: DBConfig{
			Path: "sealab.db",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  6,
			MaxBackups: 3,
		},
		Ledger: LedgerConfig{
			Driver: "sqlite",
		},
		Disclosure: DisclosureConfig{
			ChainID:         11155111,
			ContractAddress: "0x0000000000000000000000000000000000000000",
			DurationDays:    30,
			SessionCache:    256,
		},
		Signer: SignerConfig{
			KeyPath: "sealab.key",
		},
	}
}

// Load reads configuration from .env, an optional YAML file and environment
// variables, in that order of increasing precedence.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path := os.Getenv("SEALAB_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) error {
		v := os.Getenv(name)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = n
		return nil
	}

	setString("SEALAB_SERVER_HOST", &cfg.Server.Host)
	if err := setInt("SEALAB_SERVER_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	setString("SEALAB_TRANSPORT_MODE", &cfg.Transport.Mode)
	if v := os.Getenv("SEALAB_AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SEALAB_AUTH_ENABLED: %w", err)
		}
		cfg.Auth.Enabled = enabled
	}
	setString("SEALAB_AUTH_IDENTITY", &cfg.Auth.Identity)
	setString("SEALAB_DB_PATH", &cfg.DB.Path)
	setString("SEALAB_LOG_LEVEL", &cfg.Log.Level)
	setString("SEALAB_LOG_FORMAT", &cfg.Log.Format)
	setString("SEALAB_LOG_FILE", &cfg.Log.File)
	setString("SEALAB_LEDGER_DRIVER", &cfg.Ledger.Driver)
	setString("SEALAB_LEDGER_PATH", &cfg.Ledger.Path)
	setString("SEALAB_LEDGER_DSN", &cfg.Ledger.DSN)
	setString("SEALAB_LEDGER_URL", &cfg.Ledger.URL)
	setString("SEALAB_LEDGER_TOKEN", &cfg.Ledger.Token)
	setString("SEALAB_CONTRACT_ADDRESS", &cfg.Disclosure.ContractAddress)
	if v := os.Getenv("SEALAB_CHAIN_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid SEALAB_CHAIN_ID: %w", err)
		}
		cfg.Disclosure.ChainID = id
	}
	if err := setInt("SEALAB_DURATION_DAYS", &cfg.Disclosure.DurationDays); err != nil {
		return err
	}
	setString("SEALAB_SIGNER_KEY_PATH", &cfg.Signer.KeyPath)
	return nil
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	switch c.Transport.Mode {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid transport mode %q", c.Transport.Mode)
	}
	if c.Transport.Mode == "http" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json", "pretty":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}

	switch c.Ledger.Driver {
	case "memory", "sqlite":
	case "file":
		if c.Ledger.Path == "" {
			return fmt.Errorf("ledger driver file requires ledger.path")
		}
	case "postgres":
		if c.Ledger.DSN == "" {
			return fmt.Errorf("ledger driver postgres requires ledger.dsn")
		}
	case "remote":
		if c.Ledger.URL == "" {
			return fmt.Errorf("ledger driver remote requires ledger.url")
		}
	default:
		return fmt.Errorf("invalid ledger driver %q", c.Ledger.Driver)
	}

	if c.Disclosure.DurationDays <= 0 {
		return fmt.Errorf("disclosure.duration_days must be positive")
	}
	for i, k := range c.Auth.Keys {
		if len(k.TokenHash) != 64 || k.Identity == "" {
			return fmt.Errorf("auth.keys[%d] needs a sha256 token_hash and an identity", i)
		}
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// Package config loads the server configuration from an optional YAML file
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ChainConfig points at the payment-network node.
type ChainConfig struct {
	RPCURL  string        `yaml:"rpc_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// OracleConfig points at the exchange-rate feed.
type OracleConfig struct {
	URL      string `yaml:"url"`
	RatePath string `yaml:"rate_path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Config is the full server configuration.
type Config struct {
	Server      ServerConfig  `yaml:"server"`
	Chain       ChainConfig   `yaml:"chain"`
	Oracle      OracleConfig  `yaml:"oracle"`
	Logging     LoggingConfig `yaml:"logging"`
	JWTSecret   string        `yaml:"jwt_secret"`
	Treasury    string        `yaml:"treasury"`
	DatabaseDSN string        `yaml:"database_dsn"`
	Season      string        `yaml:"season"`
}

// Load reads config.yaml when present, applies environment overrides and
// validates the result. An empty DatabaseDSN selects the in-memory store.
func Load() (*Config, error) {
	return LoadFromPath("config.yaml")
}

// LoadFromPath loads configuration from a specific file path. A missing
// file is not an error; defaults and environment apply.
func LoadFromPath(path string) (*Config, error) {
	cfg := defaults()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(cfg)

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Treasury == "" {
		return nil, fmt.Errorf("TREASURY_ADDRESS is required")
	}
	return cfg, nil
}

func defaults() *Config {
	now := time.Now().UTC()
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 3000},
		Chain: ChainConfig{
			RPCURL:  "https://api.devnet.solana.com",
			Timeout: 30 * time.Second,
		},
		Oracle: OracleConfig{
			URL:      "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=usd",
			RatePath: "solana.usd",
		},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
		Season:  fmt.Sprintf("season-%d-q%d", now.Year(), (int(now.Month())-1)/3+1),
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CHAIN_RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("ORACLE_URL"); v != "" {
		cfg.Oracle.URL = v
	}
	if v := os.Getenv("ORACLE_RATE_PATH"); v != "" {
		cfg.Oracle.RatePath = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("TREASURY_ADDRESS"); v != "" {
		cfg.Treasury = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("SEASON"); v != "" {
		cfg.Season = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

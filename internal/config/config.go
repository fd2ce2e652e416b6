// Package config loads service configuration from YAML and the environment.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"boil-protocol/internal/solana"
)

// Environment names.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Config holds all application configuration.
type Config struct {
	Solana struct {
		RPCURL            string `yaml:"rpc_url"`
		CreatorPrivateKey string `yaml:"creator_private_key"`
		BackendPrivateKey string `yaml:"backend_private_key"`
	} `yaml:"solana"`
	Token struct {
		Mint string `yaml:"mint"`
	} `yaml:"token"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	ClickHouse struct {
		DSN string `yaml:"dsn"`
	} `yaml:"clickhouse"`
	PumpPortal struct {
		APIURL        string `yaml:"api_url"`
		StreamURL     string `yaml:"stream_url"`
		PumpFunAPIURL string `yaml:"pumpfun_api_url"`
	} `yaml:"pumpportal"`
	Server struct {
		Port        int    `yaml:"port"`
		Env         string `yaml:"env"`
		MetricsAddr string `yaml:"metrics_addr"`
		UseMemory   bool   `yaml:"use_memory"`
	} `yaml:"server"`
	Cycle struct {
		DurationMs       int64   `yaml:"duration_ms"`
		AlphaShare       float64 `yaml:"alpha_share"`
		ShatterShare     float64 `yaml:"shatter_share"`
		Reserve          float64 `yaml:"reserve_sol"`
		Dust             float64 `yaml:"dust_sol"`
		ResolveTimeoutMs int64   `yaml:"resolve_timeout_ms"`
		SOLPrice         float64 `yaml:"sol_price_usd"`
	} `yaml:"cycle"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error. ${VAR}
// references inside the file are expanded from the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("SOLANA_RPC_URL", &c.Solana.RPCURL)
	setString("CREATOR_PRIVATE_KEY", &c.Solana.CreatorPrivateKey)
	setString("BACKEND_WALLET_PRIVATE_KEY", &c.Solana.BackendPrivateKey)
	setString("MOLTDOWN_TOKEN_MINT", &c.Token.Mint)
	setString("DATABASE_URL", &c.Database.URL)
	setString("REDIS_URL", &c.Redis.URL)
	setString("CLICKHOUSE_DSN", &c.ClickHouse.DSN)
	setString("PUMPPORTAL_API_URL", &c.PumpPortal.APIURL)
	setString("PUMPSTREAM_WS_URL", &c.PumpPortal.StreamURL)
	setString("PUMPFUN_API_URL", &c.PumpPortal.PumpFunAPIURL)
	setString("NODE_ENV", &c.Server.Env)
	setString("METRICS_ADDR", &c.Server.MetricsAddr)
	setString("LOG_LEVEL", &c.Log.Level)
	setString("LOG_FORMAT", &c.Log.Format)

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("CYCLE_DURATION_MS"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CYCLE_DURATION_MS: %w", err)
		}
		c.Cycle.DurationMs = ms
	}
	if v := os.Getenv("USE_MEMORY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("USE_MEMORY: %w", err)
		}
		c.Server.UseMemory = b
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Redis.URL == "" {
		c.Redis.URL = "redis://localhost:6379"
	}
	if c.PumpPortal.APIURL == "" {
		c.PumpPortal.APIURL = "https://pumpportal.fun/api"
	}
	if c.PumpPortal.StreamURL == "" {
		c.PumpPortal.StreamURL = "wss://pumpportal.fun/api/data"
	}
	if c.PumpPortal.PumpFunAPIURL == "" {
		c.PumpPortal.PumpFunAPIURL = "https://pump.fun/api"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.Env == "" {
		c.Server.Env = EnvDevelopment
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = ":9090"
	}
	if c.Cycle.DurationMs == 0 {
		c.Cycle.DurationMs = 60000
	}
	if c.Cycle.AlphaShare == 0 && c.Cycle.ShatterShare == 0 {
		c.Cycle.AlphaShare = 0.7
		c.Cycle.ShatterShare = 0.3
	}
	if c.Cycle.Reserve == 0 {
		c.Cycle.Reserve = 0.005
	}
	if c.Cycle.Dust == 0 {
		c.Cycle.Dust = 0.001
	}
	if c.Cycle.ResolveTimeoutMs == 0 {
		c.Cycle.ResolveTimeoutMs = 120000
	}
	if c.Cycle.SOLPrice == 0 {
		c.Cycle.SOLPrice = 190
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Solana.RPCURL == "" {
		return fmt.Errorf("solana.rpc_url is required")
	}
	if c.Solana.CreatorPrivateKey == "" {
		return fmt.Errorf("solana.creator_private_key is required")
	}
	if _, err := solana.ParseKeypair(c.Solana.CreatorPrivateKey); err != nil {
		return fmt.Errorf("solana.creator_private_key: %w", err)
	}
	if c.Solana.BackendPrivateKey != "" {
		if _, err := solana.ParseKeypair(c.Solana.BackendPrivateKey); err != nil {
			return fmt.Errorf("solana.backend_private_key: %w", err)
		}
	}
	if c.Token.Mint == "" {
		return fmt.Errorf("token.mint is required")
	}
	if err := solana.ValidateAddress(c.Token.Mint); err != nil {
		return fmt.Errorf("token.mint: %w", err)
	}
	if !c.Server.UseMemory && c.Database.URL == "" {
		return fmt.Errorf("database.url is required (use --use-memory for in-memory storage)")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Cycle.DurationMs <= 0 {
		return fmt.Errorf("cycle.duration_ms must be positive")
	}
	if c.Cycle.AlphaShare < 0 || c.Cycle.AlphaShare > 1 || c.Cycle.ShatterShare < 0 || c.Cycle.ShatterShare > 1 {
		return fmt.Errorf("cycle shares must be within [0,1]")
	}
	if math.Abs(c.Cycle.AlphaShare+c.Cycle.ShatterShare-1) > 1e-9 {
		return fmt.Errorf("cycle.alpha_share + cycle.shatter_share must equal 1, got %v", c.Cycle.AlphaShare+c.Cycle.ShatterShare)
	}
	if c.Cycle.Reserve < 0 || c.Cycle.Dust < 0 {
		return fmt.Errorf("cycle reserve and dust must not be negative")
	}
	if c.Cycle.ResolveTimeoutMs <= 0 {
		return fmt.Errorf("cycle.resolve_timeout_ms must be positive")
	}
	return nil
}

// CycleDuration returns the configured cycle length.
func (c *Config) CycleDuration() time.Duration {
	return time.Duration(c.Cycle.DurationMs) * time.Millisecond
}

// ResolveTimeout returns the bound on a resolution's external calls.
func (c *Config) ResolveTimeout() time.Duration {
	return time.Duration(c.Cycle.ResolveTimeoutMs) * time.Millisecond
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Env, EnvProduction)
}

// LoadEnvFile loads environment variables from a .env file if it exists.
// Variables already set in the environment are not overridden.
func LoadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

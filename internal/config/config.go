// Package config defines the top-level configuration for the auction house
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by AUCTIOND_* environment
// variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Registry RegistryConfig `toml:"registry"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Archive  ArchiveConfig  `toml:"archive"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds the engine identity and auction policy.
type EngineConfig struct {
	// CustodyAddress is the engine's escrow account in the registry and
	// fund gateway.
	CustodyAddress string `toml:"custody_address"`
	// OwnerAddress is the only account allowed to withdraw platform fees.
	OwnerAddress string `toml:"owner_address"`

	FeeBps          int64 `toml:"fee_bps"`
	MinIncrementPct int64 `toml:"min_increment_pct"`
	// FloorHours is the minimum total auction duration from the first bid.
	FloorHours int `toml:"floor_hours"`
	// SnipeWindowMinutes is the trailing window that triggers extensions.
	SnipeWindowMinutes int `toml:"snipe_window_minutes"`
	// ExtensionMinutes is the deadline push-out per anti-snipe extension.
	ExtensionMinutes int `toml:"extension_minutes"`
	// RefundGas is the delivery budget for recipient-uncontrolled payouts.
	RefundGas uint64 `toml:"refund_gas"`
	// DevFaucet enables the local fund-minting endpoint. Never enable in
	// production.
	DevFaucet bool `toml:"dev_faucet"`
}

// RegistryConfig selects and configures the asset registry backend.
type RegistryConfig struct {
	// Backend is "memory" (in-process, dev/test) or "eth" (EVM adapter).
	Backend string `toml:"backend"`

	RPCURL          string `toml:"rpc_url"`
	ContractAddress string `toml:"contract_address"`
	ChainID         int64  `toml:"chain_id"`

	// Signer key for the eth backend: raw hex or an encrypted key file.
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds object-storage parameters for settlement archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the HTTP/WebSocket API parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey protects mutating endpoints; empty disables authentication.
	APIKey string `toml:"api_key"`
	// RateLimit is requests per second per client IP; zero disables it.
	RateLimit int `toml:"rate_limit"`
}

// ArchiveConfig controls settlement-history archival.
type ArchiveConfig struct {
	Enabled bool `toml:"enabled"`
	// RetainDays is how long settlements stay in PostgreSQL before being
	// shipped to object storage.
	RetainDays int `toml:"retain_days"`
}

// Defaults returns the built-in configuration defaults.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			CustodyAddress:     "0x00000000000000000000000000000000000a0c71",
			FeeBps:             250,
			MinIncrementPct:    5,
			FloorHours:         72,
			SnipeWindowMinutes: 15,
			ExtensionMinutes:   15,
			RefundGas:          30_000,
		},
		Registry: RegistryConfig{
			Backend: "memory",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "auctionhouse",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Server: ServerConfig{
			Port:      8080,
			RateLimit: 50,
		},
		Archive: ArchiveConfig{
			RetainDays: 90,
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// FloorDuration returns the configured duration floor.
func (e EngineConfig) FloorDuration() time.Duration {
	return time.Duration(e.FloorHours) * time.Hour
}

// SnipeWindow returns the configured anti-snipe window.
func (e EngineConfig) SnipeWindow() time.Duration {
	return time.Duration(e.SnipeWindowMinutes) * time.Minute
}

// Extension returns the configured anti-snipe extension.
func (e EngineConfig) Extension() time.Duration {
	return time.Duration(e.ExtensionMinutes) * time.Minute
}

// Validate checks the configuration for missing or inconsistent values.
func (c *Config) Validate() error {
	switch c.Mode {
	case "serve", "archive":
	default:
		return fmt.Errorf("config: unknown mode %q (want serve or archive)", c.Mode)
	}

	if !common.IsHexAddress(c.Engine.CustodyAddress) {
		return fmt.Errorf("config: engine.custody_address %q is not a hex address", c.Engine.CustodyAddress)
	}
	if c.Engine.OwnerAddress != "" && !common.IsHexAddress(c.Engine.OwnerAddress) {
		return fmt.Errorf("config: engine.owner_address %q is not a hex address", c.Engine.OwnerAddress)
	}
	if c.Engine.FeeBps < 0 || c.Engine.FeeBps >= 10_000 {
		return fmt.Errorf("config: engine.fee_bps %d out of range", c.Engine.FeeBps)
	}
	if c.Engine.FloorHours <= 0 || c.Engine.ExtensionMinutes <= 0 || c.Engine.SnipeWindowMinutes <= 0 {
		return fmt.Errorf("config: engine durations must be positive")
	}

	switch strings.ToLower(c.Registry.Backend) {
	case "memory":
	case "eth":
		if c.Registry.RPCURL == "" {
			return fmt.Errorf("config: registry.rpc_url is required for the eth backend")
		}
		if !common.IsHexAddress(c.Registry.ContractAddress) {
			return fmt.Errorf("config: registry.contract_address %q is not a hex address", c.Registry.ContractAddress)
		}
		if c.Registry.PrivateKey == "" && c.Registry.EncryptedKeyPath == "" {
			return fmt.Errorf("config: registry signer key is required for the eth backend")
		}
	default:
		return fmt.Errorf("config: unknown registry backend %q", c.Registry.Backend)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Archive.Enabled {
		if c.S3.Bucket == "" || c.S3.Region == "" {
			return fmt.Errorf("config: s3 bucket and region are required when archive is enabled")
		}
		if c.Archive.RetainDays <= 0 {
			return fmt.Errorf("config: archive.retain_days must be positive")
		}
	}
	return nil
}

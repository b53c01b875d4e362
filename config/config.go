package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// SettlementConfig carries the money and fee rules for the platform.
// Percentages are parsed into decimals once at load; amounts everywhere
// in the system carry at most MinorUnitExponent fractional digits.
type SettlementConfig struct {
	Currency             string        `mapstructure:"currency"`
	MinorUnitExponent    int32         `mapstructure:"minor_unit_exponent"`
	PlatformFeePercent   string        `mapstructure:"platform_fee_percent"`
	WithdrawalFeePercent string        `mapstructure:"withdrawal_fee_percent"`
	PlatformWalletCode   string        `mapstructure:"platform_wallet_code"`
	EscrowWalletCode     string        `mapstructure:"escrow_wallet_code"`
	IdempotencyCacheTTL  time.Duration `mapstructure:"idempotency_cache_ttl"`
}

// PlatformFee returns the default platform fee percentage as a decimal.
func (s SettlementConfig) PlatformFee() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s.PlatformFeePercent)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse platform_fee_percent %q: %w", s.PlatformFeePercent, err)
	}
	return d, nil
}

// WithdrawalFee returns the withdrawal fee percentage as a decimal.
func (s SettlementConfig) WithdrawalFee() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s.WithdrawalFeePercent)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse withdrawal_fee_percent %q: %w", s.WithdrawalFeePercent, err)
	}
	return d, nil
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: MPS_ (Marketplace
// Settlement). Nested keys use underscore: MPS_DATABASE_HOST,
// MPS_SETTLEMENT_PLATFORM_FEE_PERCENT, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "settlement")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("settlement.currency", "VND")
	v.SetDefault("settlement.minor_unit_exponent", 0)
	v.SetDefault("settlement.platform_fee_percent", "10")
	v.SetDefault("settlement.withdrawal_fee_percent", "1")
	v.SetDefault("settlement.platform_wallet_code", "platform-main")
	v.SetDefault("settlement.escrow_wallet_code", "platform-escrow")
	v.SetDefault("settlement.idempotency_cache_ttl", "24h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: MPS_DATABASE_HOST -> database.host
	v.SetEnvPrefix("MPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required — env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

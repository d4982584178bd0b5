// Package config loads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string
	LogLevel string

	// Empty endpoints disable the adapter; in-memory fallbacks are used.
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SnapshotTTL   time.Duration

	KafkaBrokers  []string
	TradesTopic   string
	OrdersTopic   string
	OrdersGroupID string
	SnapshotTopic string

	OutboxDir string

	RingSize       int
	SettleBuffer   int
	DefaultFeeRate decimal.Decimal
	RateLimit      time.Duration
	PairRefresh    time.Duration
	ShutdownGrace  time.Duration

	// Symbols are served with default pair settings when no database is
	// configured, and their books are created at startup.
	Symbols []string
}

func DefaultConfig() Config {
	return Config{
		HTTPAddr:       ":8080",
		GRPCAddr:       ":9090",
		LogLevel:       "info",
		SnapshotTTL:    time.Minute,
		TradesTopic:    "executed-trades",
		OrdersTopic:    "order-commands",
		OrdersGroupID:  "matching-core",
		SnapshotTopic:  "orderbook-snapshots",
		RingSize:       1024,
		SettleBuffer:   65536,
		DefaultFeeRate: decimal.RequireFromString("0.001"),
		RateLimit:      100 * time.Millisecond,
		PairRefresh:    time.Minute,
		ShutdownGrace:  10 * time.Second,
		Symbols:        []string{"BTCUSDT", "ETHUSDT"},
	}
}

// Load overlays the environment on DefaultConfig.
func Load() (Config, error) {
	c := DefaultConfig()
	var errs []error
	read := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	var err error

	c.HTTPAddr, err = GetEnv("HTTP_ADDR", c.HTTPAddr)
	read(err)
	c.GRPCAddr, err = GetEnv("GRPC_ADDR", c.GRPCAddr)
	read(err)
	c.LogLevel, err = GetEnv("LOG_LEVEL", c.LogLevel)
	read(err)
	c.PostgresDSN, err = GetEnv("PG_DSN", c.PostgresDSN)
	read(err)
	c.RedisAddr, err = GetEnv("REDIS_ADDR", c.RedisAddr)
	read(err)
	c.RedisPassword, err = GetEnv("REDIS_PASSWORD", c.RedisPassword)
	read(err)
	c.RedisDB, err = GetEnv("REDIS_DB", c.RedisDB)
	read(err)
	c.SnapshotTTL, err = GetEnv("SNAPSHOT_TTL", c.SnapshotTTL)
	read(err)
	c.KafkaBrokers, err = GetEnv("KAFKA_BROKERS", c.KafkaBrokers)
	read(err)
	c.TradesTopic, err = GetEnv("TRADES_TOPIC", c.TradesTopic)
	read(err)
	c.OrdersTopic, err = GetEnv("ORDERS_TOPIC", c.OrdersTopic)
	read(err)
	c.OrdersGroupID, err = GetEnv("ORDERS_GROUP_ID", c.OrdersGroupID)
	read(err)
	c.SnapshotTopic, err = GetEnv("SNAPSHOT_TOPIC", c.SnapshotTopic)
	read(err)
	c.OutboxDir, err = GetEnv("OUTBOX_DIR", c.OutboxDir)
	read(err)
	c.RingSize, err = GetEnv("RING_SIZE", c.RingSize)
	read(err)
	c.SettleBuffer, err = GetEnv("SETTLE_BUFFER", c.SettleBuffer)
	read(err)
	c.RateLimit, err = GetEnv("RATE_LIMIT", c.RateLimit)
	read(err)
	c.PairRefresh, err = GetEnv("PAIR_REFRESH", c.PairRefresh)
	read(err)
	c.ShutdownGrace, err = GetEnv("SHUTDOWN_GRACE", c.ShutdownGrace)
	read(err)
	c.Symbols, err = GetEnv("SYMBOLS", c.Symbols)
	read(err)

	fee, err := GetEnv("DEFAULT_FEE_RATE", c.DefaultFeeRate.String())
	read(err)
	if d, err := decimal.NewFromString(fee); err != nil {
		read(fmt.Errorf("failed to parse env DEFAULT_FEE_RATE: %w", err))
	} else {
		c.DefaultFeeRate = d
	}

	for i, s := range c.Symbols {
		c.Symbols[i] = strings.ToUpper(s)
	}
	if err := errors.Join(errs...); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.RingSize <= 0:
		return fmt.Errorf("config: RING_SIZE must be positive, got %d", c.RingSize)
	case c.SettleBuffer <= 0:
		return fmt.Errorf("config: SETTLE_BUFFER must be positive, got %d", c.SettleBuffer)
	case c.DefaultFeeRate.IsNegative():
		return fmt.Errorf("config: DEFAULT_FEE_RATE must not be negative, got %s", c.DefaultFeeRate)
	case c.PairRefresh <= 0:
		return fmt.Errorf("config: PAIR_REFRESH must be positive, got %s", c.PairRefresh)
	}
	return nil
}

func (c Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

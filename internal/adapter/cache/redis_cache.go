package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/olyamironova/matching-core/internal/domain"
	"github.com/olyamironova/matching-core/internal/port"
	"github.com/redis/go-redis/v9"
)

const (
	BroadcastChannel = "market:broadcast"
	orderNoTTL       = 24 * time.Hour
)

// RedisCache publishes snapshots and trades for the market data layer and
// guards order numbers against redelivery.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

var (
	_ port.SnapshotSink  = (*RedisCache)(nil)
	_ port.SnapshotCache = (*RedisCache)(nil)
	_ port.TradeSink     = (*RedisCache)(nil)
	_ port.Deduper       = (*RedisCache)(nil)
)

func NewRedisCache(addr string, password string, db int, ttl time.Duration) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{
		client: rdb,
		ttl:    ttl,
	}
}

func SnapshotKey(symbol string) string     { return "match:orderbook:" + symbol }
func SnapshotChannel(symbol string) string { return "orderbook:" + symbol }
func TradeChannel(symbol string) string    { return "trade:update:" + symbol }
func orderNoKey(orderNo string) string     { return "match:order-no:" + orderNo }

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// WriteSnapshot stores snap under a TTL and publishes it on the symbol
// channel in one round trip.
func (c *RedisCache) WriteSnapshot(ctx context.Context, snap *domain.OrderbookSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: encode snapshot: %w", err)
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, SnapshotKey(snap.Symbol), b, c.ttl)
	pipe.Publish(ctx, SnapshotChannel(snap.Symbol), b)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: write snapshot %s: %w", snap.Symbol, err)
	}
	return nil
}

func (c *RedisCache) GetSnapshot(ctx context.Context, symbol string) (*domain.OrderbookSnapshot, error) {
	b, err := c.client.Get(ctx, SnapshotKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get snapshot %s: %w", symbol, err)
	}
	var snap domain.OrderbookSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("redis: decode snapshot %s: %w", symbol, err)
	}
	return &snap, nil
}

type tradeEnvelope struct {
	Type  string              `json:"type"`
	Trade *domain.TradeRecord `json:"data"`
}

// ApplyTrade fans the trade out to the per-symbol trade channel and the
// market-wide broadcast channel.
func (c *RedisCache) ApplyTrade(ctx context.Context, t *domain.TradeRecord) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("redis: encode trade: %w", err)
	}
	env, err := json.Marshal(tradeEnvelope{Type: "trade", Trade: t})
	if err != nil {
		return fmt.Errorf("redis: encode trade envelope: %w", err)
	}
	pipe := c.client.Pipeline()
	pipe.Publish(ctx, TradeChannel(t.Symbol), b)
	pipe.Publish(ctx, BroadcastChannel, env)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish trade %s: %w", t.TradeNo, err)
	}
	return nil
}

// Reserve claims orderNo for 24h with SETNX.
func (c *RedisCache) Reserve(ctx context.Context, orderNo string) (bool, error) {
	ok, err := c.client.SetNX(ctx, orderNoKey(orderNo), 1, orderNoTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis: reserve %s: %w", orderNo, err)
	}
	return ok, nil
}

func (c *RedisCache) Release(ctx context.Context, orderNo string) error {
	if err := c.client.Del(ctx, orderNoKey(orderNo)).Err(); err != nil {
		return fmt.Errorf("redis: release %s: %w", orderNo, err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

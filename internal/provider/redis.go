package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"pitscout/pkg/model"
)

// BarStore is the byte-level cache behind RedisCachingProvider
type BarStore interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisStore implements BarStore on a Redis client
type RedisStore struct {
	client *redis.Client
}

// RedisConfig holds the Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore connects to Redis and pings it
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (r *RedisStore) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisStore) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// RedisCachingProvider caches daily bars in a shared store so repeated runs
// (daemon ticks, API requests) do not refetch the same history.
// Cache failures are logged and fall through to the inner provider.
type RedisCachingProvider struct {
	inner  Provider
	store  BarStore
	ttl    time.Duration
	prefix string
	logger zerolog.Logger
}

// NewRedisCachingProvider wraps inner with store. Entries expire after ttl.
func NewRedisCachingProvider(inner Provider, store BarStore, ttl time.Duration, logger zerolog.Logger) *RedisCachingProvider {
	return &RedisCachingProvider{
		inner:  inner,
		store:  store,
		ttl:    ttl,
		prefix: "pitscout:bars",
		logger: logger.With().Str("component", "bar_cache").Logger(),
	}
}

func (p *RedisCachingProvider) Name() string      { return p.inner.Name() }
func (p *RedisCachingProvider) IsAvailable() bool { return p.inner.IsAvailable() }
func (p *RedisCachingProvider) RateLimit() int    { return p.inner.RateLimit() }

func (p *RedisCachingProvider) GetDailyBars(ctx context.Context, code string, days int) ([]model.Bar, error) {
	key := fmt.Sprintf("%s:%s:%d", p.prefix, code, days)

	raw, ok, err := p.store.GetBytes(ctx, key)
	switch {
	case err != nil:
		p.logger.Warn().Err(err).Str("code", code).Msg("cache read failed")
	case ok:
		bars, err := decodeBars(raw)
		if err == nil {
			return bars, nil
		}
		p.logger.Warn().Err(err).Str("code", code).Msg("cache entry corrupt")
	}

	bars, err := p.inner.GetDailyBars(ctx, code, days)
	if err != nil {
		return nil, err
	}

	if raw, err := encodeBars(bars); err == nil {
		if err := p.store.SetBytes(ctx, key, raw, p.ttl); err != nil {
			p.logger.Warn().Err(err).Str("code", code).Msg("cache write failed")
		}
	}
	return bars, nil
}

// storedBar is the cache encoding of a bar. JSON has no NaN, missing values are null.
type storedBar struct {
	Date   string   `json:"d"`
	Open   *float64 `json:"o"`
	High   *float64 `json:"h"`
	Low    *float64 `json:"l"`
	Close  *float64 `json:"c"`
	Volume *float64 `json:"v"`
}

const storedDateLayout = "2006-01-02"

func encodeBars(bars []model.Bar) ([]byte, error) {
	out := make([]storedBar, len(bars))
	for i, b := range bars {
		out[i] = storedBar{
			Date:   b.Date.In(chinaTZ).Format(storedDateLayout),
			Open:   nullable(b.Open),
			High:   nullable(b.High),
			Low:    nullable(b.Low),
			Close:  nullable(b.Close),
			Volume: nullable(b.Volume),
		}
	}
	return json.Marshal(out)
}

func decodeBars(raw []byte) ([]model.Bar, error) {
	var stored []storedBar
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	bars := make([]model.Bar, len(stored))
	for i, s := range stored {
		date, err := time.ParseInLocation(storedDateLayout, s.Date, chinaTZ)
		if err != nil {
			return nil, err
		}
		bars[i] = model.Bar{
			Date:   date,
			Open:   orNaN(s.Open),
			High:   orNaN(s.High),
			Low:    orNaN(s.Low),
			Close:  orNaN(s.Close),
			Volume: orNaN(s.Volume),
		}
	}
	return bars, nil
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

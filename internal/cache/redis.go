package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/homequest/realestate-search/internal/config"
	"github.com/homequest/realestate-search/internal/models"
	"github.com/homequest/realestate-search/internal/observability"
)

// RedisCache fronts the resolver and search surfaces. A miss or a cache
// error is never fatal; callers fall through to the source of truth.
type RedisCache struct {
	client redis.UniversalClient
	ttl    config.CacheTTLConfig
	logger *zap.Logger
}

func NewRedisCache(cfg config.RedisConfig, logger *zap.Logger) (*RedisCache, error) {
	var client redis.UniversalClient

	if len(cfg.Addresses) > 1 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addresses,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Addresses[0],
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("redis cache connected", zap.Strings("addresses", cfg.Addresses))

	return &RedisCache{
		client: client,
		ttl:    cfg.TTL,
		logger: logger,
	}, nil
}

// GetDecision returns a cached resolve decision, or nil on a miss.
func (rc *RedisCache) GetDecision(ctx context.Context, q, cityID, contextURL string) (*models.Decision, error) {
	key := decisionKey(q, cityID, contextURL)
	val, err := rc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		observability.CacheMisses.Inc()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get decision: %w", err)
	}

	observability.CacheHits.Inc()
	var decision models.Decision
	if err := json.Unmarshal([]byte(val), &decision); err != nil {
		return nil, fmt.Errorf("cache unmarshal decision: %w", err)
	}
	return &decision, nil
}

func (rc *RedisCache) SetDecision(ctx context.Context, q, cityID, contextURL string, decision *models.Decision) error {
	key := decisionKey(q, cityID, contextURL)
	data, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("cache marshal decision: %w", err)
	}
	return rc.client.Set(ctx, key, data, rc.ttl.Decisions).Err()
}

// GetSuggest returns the cached raw suggest payload for a prefix, or nil.
func (rc *RedisCache) GetSuggest(ctx context.Context, q, cityID string, limit int) ([]byte, error) {
	key := suggestKey(q, cityID, limit)
	val, err := rc.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		observability.CacheMisses.Inc()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get suggest: %w", err)
	}
	observability.CacheHits.Inc()
	return val, nil
}

func (rc *RedisCache) SetSuggest(ctx context.Context, q, cityID string, limit int, payload []byte) error {
	key := suggestKey(q, cityID, limit)
	return rc.client.Set(ctx, key, payload, rc.ttl.Suggest).Err()
}

func (rc *RedisCache) GetTrending(ctx context.Context, cityID string) ([]models.Entity, error) {
	key := fmt.Sprintf("trend:%s", cityID)
	val, err := rc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		observability.CacheMisses.Inc()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get trending: %w", err)
	}
	observability.CacheHits.Inc()
	var entities []models.Entity
	if err := json.Unmarshal([]byte(val), &entities); err != nil {
		return nil, fmt.Errorf("cache unmarshal trending: %w", err)
	}
	return entities, nil
}

func (rc *RedisCache) SetTrending(ctx context.Context, cityID string, entities []models.Entity) error {
	key := fmt.Sprintf("trend:%s", cityID)
	data, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("cache marshal trending: %w", err)
	}
	return rc.client.Set(ctx, key, data, rc.ttl.Trending).Err()
}

func (rc *RedisCache) GetZeroState(ctx context.Context, cityID string) (*models.ZeroState, error) {
	key := fmt.Sprintf("zs:%s", cityID)
	val, err := rc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		observability.CacheMisses.Inc()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get zero state: %w", err)
	}
	observability.CacheHits.Inc()
	var zs models.ZeroState
	if err := json.Unmarshal([]byte(val), &zs); err != nil {
		return nil, fmt.Errorf("cache unmarshal zero state: %w", err)
	}
	return &zs, nil
}

func (rc *RedisCache) SetZeroState(ctx context.Context, cityID string, zs *models.ZeroState) error {
	key := fmt.Sprintf("zs:%s", cityID)
	data, err := json.Marshal(zs)
	if err != nil {
		return fmt.Errorf("cache marshal zero state: %w", err)
	}
	return rc.client.Set(ctx, key, data, rc.ttl.Trending).Err()
}

// InvalidatePattern drops every key matching the given glob patterns. Used
// by the ingestion pipeline when entities change.
func (rc *RedisCache) InvalidatePattern(ctx context.Context, patterns []string) error {
	for _, pattern := range patterns {
		iter := rc.client.Scan(ctx, 0, pattern, 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			rc.logger.Warn("cache scan error", zap.String("pattern", pattern), zap.Error(err))
			continue
		}
		if len(keys) > 0 {
			if err := rc.client.Del(ctx, keys...).Err(); err != nil {
				rc.logger.Warn("cache delete error", zap.Strings("keys", keys), zap.Error(err))
			}
		}
	}
	return nil
}

// InvalidateResolveSurfaces drops all decision, suggest, trending and
// zero-state entries. Entity changes can shift any resolve outcome, so the
// pipeline clears the whole surface rather than guessing affected keys.
func (rc *RedisCache) InvalidateResolveSurfaces(ctx context.Context) error {
	return rc.InvalidatePattern(ctx, []string{"dec:*", "sg:*", "trend:*", "zs:*"})
}

func (rc *RedisCache) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

func decisionKey(q, cityID, contextURL string) string {
	raw := fmt.Sprintf("%s|%s|%s", q, cityID, contextURL)
	return fmt.Sprintf("dec:%s", hashString(raw))
}

func suggestKey(q, cityID string, limit int) string {
	raw := fmt.Sprintf("%s|%s|%d", q, cityID, limit)
	return fmt.Sprintf("sg:%s", hashString(raw))
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:8])
}

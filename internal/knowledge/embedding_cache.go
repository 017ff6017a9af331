package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const embeddingCachePrefix = "rag:embedding"

// CacheObserver 缓存命中统计回调
type CacheObserver interface {
	CacheHit()
	CacheMiss()
}

// CachedEmbedder 以 Redis 缓存问题向量，缓存故障时直接调用下游
type CachedEmbedder struct {
	next     Embedder
	client   redis.UniversalClient
	model    string
	ttl      time.Duration
	observer CacheObserver
	logger   *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedEmbedder 创建带缓存的嵌入器，client 为 nil 时返回原嵌入器
func NewCachedEmbedder(next Embedder, client redis.UniversalClient, model string, ttl time.Duration, logger *zap.Logger) Embedder {
	if client == nil {
		return next
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{next: next, client: client, model: model, ttl: ttl, logger: logger}
}

// SetObserver 设置命中统计回调
func (c *CachedEmbedder) SetObserver(observer CacheObserver) {
	c.observer = observer
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	key := EmbeddingCacheKey(c.model, text)

	if cached, ok := c.lookup(ctx, key); ok {
		return cached, nil
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal([]float32(vec))
	if err == nil {
		err = c.client.Set(ctx, key, data, c.ttl).Err()
	}
	if err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
	return vec, nil
}

func (c *CachedEmbedder) lookup(ctx context.Context, key string) (Vector, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Embedding cache read failed", zap.String("key", key), zap.Error(err))
		}
		c.miss()
		return nil, false
	}

	var values []float32
	if err := json.Unmarshal(raw, &values); err != nil || len(values) == 0 {
		c.logger.Warn("Discarding unreadable cached embedding", zap.String("key", key))
		c.client.Del(ctx, key)
		c.miss()
		return nil, false
	}

	c.hits.Add(1)
	if c.observer != nil {
		c.observer.CacheHit()
	}
	return Vector(values), true
}

func (c *CachedEmbedder) miss() {
	c.misses.Add(1)
	if c.observer != nil {
		c.observer.CacheMiss()
	}
}

// Stats 返回命中与未命中次数
func (c *CachedEmbedder) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// EmbeddingCacheKey 模型与文本摘要组成缓存键
func EmbeddingCacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s:%s:%s", embeddingCachePrefix, model, hex.EncodeToString(sum[:]))
}

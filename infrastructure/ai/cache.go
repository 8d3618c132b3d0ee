package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	cache "github.com/patrickmn/go-cache"

	"trellis-backend/application/ports"
	"trellis-backend/pkg/observability"
)

// CachingEmbedder memoizes embedding calls by text. Repeated questions
// and unchanged node bodies hit the cache instead of the provider; keys
// are content hashes so arbitrarily long texts stay cheap to store.
type CachingEmbedder struct {
	inner   ports.Embedder
	cache   *cache.Cache
	metrics *observability.Collector
}

// NewCachingEmbedder wraps an embedder with a TTL cache
func NewCachingEmbedder(inner ports.Embedder, ttl, cleanupInterval time.Duration, metrics *observability.Collector) *CachingEmbedder {
	return &CachingEmbedder{
		inner:   inner,
		cache:   cache.New(ttl, cleanupInterval),
		metrics: metrics,
	}
}

// Embed returns the cached vector when the exact text was embedded
// recently. Cached vectors are copied on the way in and out so callers
// can never alias the stored slice.
func (c *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := embedKey(text)
	if cached, ok := c.cache.Get(key); ok {
		c.metrics.CacheHits.Inc()
		return cloneVector(cached.([]float32)), nil
	}
	c.metrics.CacheMisses.Inc()

	vector, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, cloneVector(vector), cache.DefaultExpiration)
	return vector, nil
}

// Dimensions reports the wrapped embedder's width
func (c *CachingEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

func embedKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

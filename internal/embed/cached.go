package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of query embeddings kept in memory.
const DefaultCacheSize = 512

// CachedProvider wraps a Provider with an LRU cache over text-query
// embeddings. Repeated searches for the same query skip the model server
// round trip. File embeddings are not cached: a file embed happens once
// per on-disk change and its bytes may differ between calls.
type CachedProvider struct {
	inner Provider
	cache *lru.Cache[string, []float32]
}

var _ Provider = (*CachedProvider)(nil)

// NewCachedProvider wraps inner with a query cache of the given size.
func NewCachedProvider(inner Provider, size int) *CachedProvider {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &CachedProvider{inner: inner, cache: cache}
}

// key derives a stable cache key from the query, target type, and provider
// identity.
func (c *CachedProvider) key(text, targetType string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + targetType + "\x00" + c.inner.Name()))
	return hex.EncodeToString(sum[:])
}

// EmbedText returns a cached vector when available, otherwise delegates
// and caches the result.
func (c *CachedProvider) EmbedText(ctx context.Context, text string, targetType string) ([]float32, error) {
	k := c.key(text, targetType)
	if vec, ok := c.cache.Get(k); ok {
		return vec, nil
	}
	vec, err := c.inner.EmbedText(ctx, text, targetType)
	if err != nil {
		return nil, err
	}
	c.cache.Add(k, vec)
	return vec, nil
}

// EmbedFile delegates to the inner provider without caching.
func (c *CachedProvider) EmbedFile(ctx context.Context, path string, embeddingType string) ([]float32, error) {
	return c.inner.EmbedFile(ctx, path, embeddingType)
}

// Dimensions returns the inner provider's vector dimension.
func (c *CachedProvider) Dimensions() int { return c.inner.Dimensions() }

// Name returns the inner provider's identifier.
func (c *CachedProvider) Name() string { return c.inner.Name() }

// Available delegates to the inner provider.
func (c *CachedProvider) Available(ctx context.Context) bool { return c.inner.Available(ctx) }

// Close purges the cache and closes the inner provider.
func (c *CachedProvider) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}

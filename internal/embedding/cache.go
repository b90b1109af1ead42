package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Cache stores vectors by key. Lookup returns only the keys it has.
type Cache interface {
	Lookup(ctx context.Context, keys []string) (map[string][]float32, error)
	Store(ctx context.Context, entries map[string][]float32) error
}

// CacheKey identifies a text under a given model.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return model + ":" + hex.EncodeToString(sum[:])
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{vectors: make(map[string][]float32)}
}

func (m *MemoryCache) Lookup(_ context.Context, keys []string) (map[string][]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	found := make(map[string][]float32, len(keys))
	for _, k := range keys {
		if v, ok := m.vectors[k]; ok {
			found[k] = v
		}
	}
	return found, nil
}

func (m *MemoryCache) Store(_ context.Context, entries map[string][]float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range entries {
		m.vectors[k] = slices.Clone(v)
	}
	return nil
}

func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

// CachingEmbedder serves repeated texts from a Cache and only sends misses
// to the wrapped Embedder. Cache failures are logged and bypassed.
type CachingEmbedder struct {
	inner  Embedder
	model  string
	cache  Cache
	logger *slog.Logger
}

type CacheOption func(*CachingEmbedder)

func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *CachingEmbedder) {
		c.logger = logger
	}
}

func NewCachingEmbedder(inner Embedder, model string, cache Cache, opts ...CacheOption) *CachingEmbedder {
	c := &CachingEmbedder{
		inner:  inner,
		model:  model,
		cache:  cache,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = CacheKey(c.model, t)
	}

	found, err := c.cache.Lookup(ctx, keys)
	if err != nil {
		c.logger.Warn("embedding cache lookup failed", "error", err)
		found = nil
	}

	var missTexts, missKeys []string
	seen := make(map[string]bool)
	for i, k := range keys {
		if _, ok := found[k]; ok || seen[k] {
			continue
		}
		seen[k] = true
		missTexts = append(missTexts, texts[i])
		missKeys = append(missKeys, k)
	}

	fresh := make(map[string][]float32, len(missKeys))
	if len(missTexts) > 0 {
		vecs, err := c.inner.Embed(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(missTexts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missTexts))
		}
		for i, k := range missKeys {
			fresh[k] = vecs[i]
		}
		if err := c.cache.Store(ctx, fresh); err != nil {
			c.logger.Warn("embedding cache store failed", "error", err)
		}
	}

	c.logger.Debug("embedded texts", "total", len(texts), "cached", len(texts)-len(missTexts))

	out := make([][]float32, len(texts))
	for i, k := range keys {
		if v, ok := found[k]; ok {
			out[i] = v
		} else {
			out[i] = fresh[k]
		}
	}
	return out, nil
}

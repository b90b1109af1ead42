package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/kevinmichaelchen/papers-without-code/internal/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 1}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCosineStaysInRange(t *testing.T) {
	for _, text := range []string{"a", "bert", "graph neural network", "transformer"} {
		a := mock.HashVector(text, 64)
		b := mock.HashVector(text+"!", 64)
		s := Cosine(a, b)
		assert.False(t, math.IsNaN(s))
		assert.GreaterOrEqual(t, s, -1.0)
		assert.LessOrEqual(t, s, 1.0)
		assert.InDelta(t, 1.0, Cosine(a, a), 1e-6)
	}
}

func TestResolveSource(t *testing.T) {
	dir := t.TempDir()
	modelDir := filepath.Join(dir, "gte-small")
	require.NoError(t, os.Mkdir(modelDir, 0o755))
	file := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	const remote, local = "https://api.example.com/v1", "http://localhost:8081/v1"

	tests := []struct {
		name     string
		cacheDir string
		model    string
		localURL string
		want     Source
	}{
		{"local copy with local server", modelDir, DefaultModel, local, Source{Model: DefaultModel, BaseURL: local, LocalDir: modelDir}},
		{"local copy without local server", modelDir, DefaultModel, "", Source{Model: DefaultModel, BaseURL: remote, LocalDir: modelDir}},
		{"missing dir", filepath.Join(dir, "missing"), DefaultModel, local, Source{Model: DefaultModel, BaseURL: remote}},
		{"file not dir", file, DefaultModel, local, Source{Model: DefaultModel, BaseURL: remote}},
		{"defaults", "", "", local, Source{Model: DefaultModel, BaseURL: remote}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveSource(tt.cacheDir, tt.model, remote, tt.localURL))
		})
	}
}

func TestLocalCopyKeepsModelNameOnTheWire(t *testing.T) {
	modelDir := filepath.Join(t.TempDir(), "sentence-transformers_thenlper", "gte-small")
	require.NoError(t, os.MkdirAll(modelDir, 0o755))

	var sent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		sent.Store(req.Model)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": []float32{1, 0}}},
			"model":  req.Model,
		})
	}))
	defer srv.Close()

	src := ResolveSource(modelDir, DefaultModel, "http://unused.invalid/v1", srv.URL)
	require.Equal(t, srv.URL, src.BaseURL)

	cache := NewMemoryCache()
	e := NewCachingEmbedder(NewClient(src.BaseURL, "k", src.Model), src.Model, cache)
	_, err := e.Embed(context.Background(), []string{"scibert"})
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, sent.Load())
	hits, err := cache.Lookup(context.Background(), []string{CacheKey(DefaultModel, "scibert")})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestLazyLoadsOnce(t *testing.T) {
	var loads atomic.Int32
	inner := mock.NewEmbedder()
	lazy := NewLazy(func() (Embedder, error) {
		loads.Add(1)
		return inner, nil
	})
	assert.Equal(t, int32(0), loads.Load())

	for range 3 {
		_, err := lazy.Embed(context.Background(), []string{"x"})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), loads.Load())
	assert.Equal(t, 3, inner.CallCount())
}

func TestLazyErrorIsSticky(t *testing.T) {
	var loads atomic.Int32
	lazy := NewLazy(func() (Embedder, error) {
		loads.Add(1)
		return nil, errors.New("no model")
	})

	_, err := lazy.Embed(context.Background(), []string{"x"})
	assert.EqualError(t, err, "no model")
	_, err = lazy.Get()
	assert.Error(t, err)
	assert.Equal(t, int32(1), loads.Load())
}

func TestCachingEmbedderServesRepeats(t *testing.T) {
	ctx := context.Background()
	inner := mock.NewEmbedder()
	cache := NewMemoryCache()
	e := NewCachingEmbedder(inner, "gte-small", cache)

	first, err := e.Embed(ctx, []string{"a", "b", "a"})
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, first[0], first[2])
	assert.Equal(t, [][]string{{"a", "b"}}, inner.Inputs(), "duplicates are embedded once")
	assert.Equal(t, 2, cache.Len())

	second, err := e.Embed(ctx, []string{"b", "c"})
	require.NoError(t, err)
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, []string{"c"}, inner.Inputs()[1])
}

func TestCachingEmbedderKeysByModel(t *testing.T) {
	assert.NotEqual(t, CacheKey("m1", "text"), CacheKey("m2", "text"))
	assert.Equal(t, CacheKey("m1", "text"), CacheKey("m1", "text"))
}

type failingCache struct{}

func (failingCache) Lookup(context.Context, []string) (map[string][]float32, error) {
	return nil, errors.New("down")
}

func (failingCache) Store(context.Context, map[string][]float32) error {
	return errors.New("down")
}

func TestCachingEmbedderBypassesBrokenCache(t *testing.T) {
	inner := mock.NewEmbedder()
	e := NewCachingEmbedder(inner, "m", failingCache{})

	vecs, err := e.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, mock.HashVector("a", mock.Dim), vecs[0])
}

func TestClientEmbedBatchesInInputOrder(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gte-small", req.Model)

		// Reply out of order to prove the client places vectors by index.
		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Object: "embedding", Index: i, Embedding: []float32{float32(len(req.Input[i]))}})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "key", "gte-small")
	texts := make([]string, maxBatchSize+2)
	for i := range texts {
		texts[i] = string(make([]byte, i%7+1))
	}

	vecs, err := c.Embed(context.Background(), texts)
	require.NoError(t, err)
	assert.Equal(t, int32(2), requests.Load())
	for i, v := range vecs {
		assert.Equal(t, float32(i%7+1), v[0])
	}
}

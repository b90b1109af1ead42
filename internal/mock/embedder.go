// Package mock provides test doubles for the embedding and keyword
// interfaces so pipeline tests run without a model server.
package mock

import (
	"context"
	"hash/fnv"
	"sync"
)

const Dim = 32

// Embedder is a test double for embedding.Embedder. Texts listed in Vectors
// get that vector; anything else gets a deterministic vector derived from
// its hash. EmbedFunc, when set, replaces both.
type Embedder struct {
	EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)
	Vectors   map[string][]float32

	mu     sync.Mutex
	calls  int
	inputs [][]string
}

func NewEmbedder() *Embedder {
	return &Embedder{Vectors: map[string][]float32{}}
}

func (m *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.calls++
	m.inputs = append(m.inputs, append([]string(nil), texts...))
	m.mu.Unlock()

	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, texts)
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := m.Vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = HashVector(t, Dim)
	}
	return out, nil
}

// CallCount returns the number of Embed calls.
func (m *Embedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Inputs returns the texts passed to each Embed call.
func (m *Embedder) Inputs() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.inputs...)
}

// HashVector derives a signed vector from text, stable across runs.
func HashVector(text string, dim int) []float32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()

	v := make([]float32, dim)
	for i := range v {
		seed = seed*1664525 + 1013904223
		v[i] = float32(int(seed%2001)-1000) / 1000
	}
	return v
}

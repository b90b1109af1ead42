package embedding

import (
	"context"
	"os"
	"path/filepath"
	"sync"
)

const (
	DefaultModel    = "thenlper/gte-small"
	DefaultCacheDir = "./sentence-transformers_thenlper/gte-small"
)

// Source says where embeddings for a model come from. Model is what goes
// over the wire and into cache keys; it never changes with the host.
type Source struct {
	Model    string
	BaseURL  string
	LocalDir string
}

// ResolveSource routes requests to localURL when cacheDir holds a local copy
// of the model and a local server is configured, and to remoteURL otherwise.
func ResolveSource(cacheDir, model, remoteURL, localURL string) Source {
	if model == "" {
		model = DefaultModel
	}
	src := Source{Model: model, BaseURL: remoteURL}
	if cacheDir == "" {
		return src
	}
	info, err := os.Stat(cacheDir)
	if err != nil || !info.IsDir() {
		return src
	}
	if abs, err := filepath.Abs(cacheDir); err == nil {
		src.LocalDir = abs
	} else {
		src.LocalDir = cacheDir
	}
	if localURL != "" {
		src.BaseURL = localURL
	}
	return src
}

// Lazy defers building an Embedder until the first call and then shares it.
// The loader runs at most once; its error is sticky.
type Lazy struct {
	load func() (Embedder, error)

	once sync.Once
	e    Embedder
	err  error
}

func NewLazy(load func() (Embedder, error)) *Lazy {
	return &Lazy{load: load}
}

// Get returns the shared Embedder, loading it on first use.
func (l *Lazy) Get() (Embedder, error) {
	l.once.Do(func() {
		l.e, l.err = l.load()
	})
	return l.e, l.err
}

func (l *Lazy) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e, err := l.Get()
	if err != nil {
		return nil, err
	}
	return e.Embed(ctx, texts)
}

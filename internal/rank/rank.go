// Package rank orders candidate repositories by how close their README is to
// the paper in embedding space.
package rank

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"unicode/utf8"

	"github.com/kevinmichaelchen/papers-without-code/internal/embedding"
	"github.com/kevinmichaelchen/papers-without-code/internal/models"
)

// DefaultMaxReadmeChars caps how much README text is sent to the model.
const DefaultMaxReadmeChars = 4000

type Ranker struct {
	embedder embedding.Embedder
	maxChars int
	logger   *slog.Logger
}

type Option func(*Ranker)

func WithMaxReadmeChars(n int) Option {
	return func(r *Ranker) {
		if n > 0 {
			r.maxChars = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Ranker) {
		r.logger = logger
	}
}

func New(embedder embedding.Embedder, opts ...Option) *Ranker {
	r := &Ranker{
		embedder: embedder,
		maxChars: DefaultMaxReadmeChars,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rank embeds the paper text once and every README once, scores each README
// by cosine similarity and returns the repositories best first. Equal scores
// keep their input order.
func (r *Ranker) Rank(ctx context.Context, paper models.PaperDetails, readmes []models.RepoReadme) ([]models.RankedRepo, error) {
	if len(readmes) == 0 {
		return []models.RankedRepo{}, nil
	}

	paperText := paper.RankingText()
	if paperText == "" {
		return nil, models.Errorf(models.KindEmptyInput, "rank.Rank", "paper has neither title nor abstract")
	}

	texts := make([]string, 0, len(readmes)+1)
	texts = append(texts, paperText)
	for _, rm := range readmes {
		texts = append(texts, clip(rm.ReadmeText, r.maxChars))
	}

	vecs, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding paper and READMEs: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}

	ranked := make([]models.RankedRepo, len(readmes))
	for i, rm := range readmes {
		ranked[i] = models.NewRankedRepo(rm, embedding.Cosine(vecs[0], vecs[i+1]))
	}
	Sort(ranked)

	r.logger.Debug("ranked repositories", "count", len(ranked))
	return ranked, nil
}

// Sort orders repositories by similarity, highest first, stably.
func Sort(repos []models.RankedRepo) {
	sort.SliceStable(repos, func(i, j int) bool {
		return repos[i].Similarity > repos[j].Similarity
	})
}

// clip shortens s to at most n runes.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// Package keywords extracts salient phrases from paper text by comparing the
// embedding of each candidate phrase with the embedding of the whole text.
package keywords

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/kevinmichaelchen/papers-without-code/internal/embedding"
	"github.com/kevinmichaelchen/papers-without-code/internal/models"
)

const (
	DefaultTopN          = 5
	DefaultMaxCandidates = 1000
	minNGram             = 1
	maxNGram             = 4
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Extractor ranks n-gram candidates of one to four words. Each call runs
// twice over the same text, once with English stop words removed and once
// keeping them, and returns the union of both top-N lists.
type Extractor struct {
	embedder      embedding.Embedder
	topN          int
	maxCandidates int
	logger        *slog.Logger
}

type Option func(*Extractor)

func WithTopN(n int) Option {
	return func(x *Extractor) {
		if n > 0 {
			x.topN = n
		}
	}
}

// WithMaxCandidates caps the candidates considered per mode so very long
// texts do not produce an unbounded embedding request.
func WithMaxCandidates(n int) Option {
	return func(x *Extractor) {
		if n > 0 {
			x.maxCandidates = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(x *Extractor) {
		x.logger = logger
	}
}

func New(embedder embedding.Embedder, opts ...Option) *Extractor {
	x := &Extractor{
		embedder:      embedder,
		topN:          DefaultTopN,
		maxCandidates: DefaultMaxCandidates,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Extract returns up to 2*topN phrases, stop-word-filtered results first.
// Empty text yields an empty list.
func (x *Extractor) Extract(ctx context.Context, text string) ([]models.Keyword, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []models.Keyword{}, nil
	}

	tokens := tokenPattern.FindAllString(text, -1)
	filtered := candidates(tokens, true, x.maxCandidates)
	unfiltered := candidates(tokens, false, x.maxCandidates)
	if len(filtered) == 0 && len(unfiltered) == 0 {
		return []models.Keyword{}, nil
	}

	// One request: the document followed by every distinct candidate.
	inputs := []string{text}
	index := make(map[string]int)
	for _, c := range append(append([]string(nil), filtered...), unfiltered...) {
		if _, ok := index[c]; ok {
			continue
		}
		index[c] = len(inputs)
		inputs = append(inputs, c)
	}

	vecs, err := x.embedder.Embed(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("embedding keyword candidates: %w", err)
	}
	if len(vecs) != len(inputs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(vecs), len(inputs))
	}
	doc := vecs[0]

	score := func(cands []string) []models.Keyword {
		scored := make([]models.Keyword, len(cands))
		for i, c := range cands {
			scored[i] = models.Keyword{Phrase: c, Score: embedding.Cosine(doc, vecs[index[c]])}
		}
		sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
		if len(scored) > x.topN {
			scored = scored[:x.topN]
		}
		return scored
	}

	out := Union(score(filtered), score(unfiltered))
	x.logger.Debug("extracted keywords", "candidates", len(inputs)-1, "keywords", len(out))
	return out, nil
}

// Union concatenates keyword lists, keeping the first occurrence of each
// phrase. Phrases compare case-sensitively.
func Union(lists ...[]models.Keyword) []models.Keyword {
	seen := make(map[string]bool)
	out := []models.Keyword{}
	for _, list := range lists {
		for _, k := range list {
			if seen[k.Phrase] {
				continue
			}
			seen[k.Phrase] = true
			out = append(out, k)
		}
	}
	return out
}

// candidates builds the distinct n-grams of tokens in order of first
// appearance. With stopWords set, stop words are dropped before n-grams are
// formed.
func candidates(tokens []string, stopWords bool, limit int) []string {
	if stopWords {
		kept := make([]string, 0, len(tokens))
		for _, t := range tokens {
			if !isStopWord(t) {
				kept = append(kept, t)
			}
		}
		tokens = kept
	}

	seen := make(map[string]bool)
	var out []string
	for n := minNGram; n <= maxNGram; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			phrase := strings.Join(tokens[i:i+n], " ")
			if seen[phrase] {
				continue
			}
			seen[phrase] = true
			out = append(out, phrase)
			if len(out) >= limit {
				return out
			}
		}
	}
	return out
}

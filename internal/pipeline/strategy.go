package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/kevinmichaelchen/papers-without-code/internal/models"
)

// QueryStrategy turns a paper into the searches to run.
//
// Two variants exist: papers that arrive with keywords use them as-is, and
// everything else goes through a KeywordExtractor. Either way every query
// is an exact phrase.
type QueryStrategy interface {
	Queries(ctx context.Context, paper models.PaperDetails) ([]models.SearchQuery, error)
}

// SuppliedKeywords builds one query per keyword already on the paper.
type SuppliedKeywords struct{}

func (SuppliedKeywords) Queries(_ context.Context, paper models.PaperDetails) ([]models.SearchQuery, error) {
	return exactQueries(paper.Keywords), nil
}

// ExtractedKeywords runs the extractor once over the paper content: title
// and abstract joined by a blank line, or whichever one exists.
type ExtractedKeywords struct {
	Extractor KeywordExtractor
}

func (s ExtractedKeywords) Queries(ctx context.Context, paper models.PaperDetails) ([]models.SearchQuery, error) {
	if s.Extractor == nil {
		return nil, fmt.Errorf("no keyword extractor configured")
	}
	kws, err := s.Extractor.Extract(ctx, paper.Content())
	if err != nil {
		return nil, fmt.Errorf("extracting keywords: %w", err)
	}
	return exactQueries(kws), nil
}

// exactQueries dedupes keywords by phrase, in order.
func exactQueries(kws []models.Keyword) []models.SearchQuery {
	seen := make(map[string]bool, len(kws))
	queries := make([]models.SearchQuery, 0, len(kws))
	for _, k := range kws {
		text := strings.TrimSpace(k.Phrase)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		queries = append(queries, models.SearchQuery{Text: text, ExactPhrase: true})
	}
	return queries
}

// Package pipeline finds and ranks repositories that may implement a paper.
//
// A run has four linear stages: query formation, concurrent search, concurrent
// README fetch, and ranking. Each concurrent stage drains completely before
// the next begins. Failures of individual searches or fetches are logged and
// dropped; only a paper without text, a failed keyword extraction, or a
// failed ranking abort the run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kevinmichaelchen/papers-without-code/internal/fanout"
	"github.com/kevinmichaelchen/papers-without-code/internal/models"
)

type RepoSearcher interface {
	SearchRepositories(ctx context.Context, q models.SearchQuery) ([]models.SearchHit, error)
}

// ReadmeFetcher returns nil without error when the repository has no README.
type ReadmeFetcher interface {
	FetchReadme(ctx context.Context, hit models.SearchHit) (*models.RepoReadme, error)
}

type KeywordExtractor interface {
	Extract(ctx context.Context, text string) ([]models.Keyword, error)
}

type Ranker interface {
	Rank(ctx context.Context, paper models.PaperDetails, readmes []models.RepoReadme) ([]models.RankedRepo, error)
}

type PaperLookup interface {
	GetPaper(ctx context.Context, query string) (models.PaperDetails, error)
}

const defaultWorkers = 8

type Pipeline struct {
	searcher  RepoSearcher
	fetcher   ReadmeFetcher
	extractor KeywordExtractor
	ranker    Ranker
	lookup    PaperLookup
	logger    *slog.Logger

	searchWorkers int
	fetchWorkers  int
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithSearchWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.searchWorkers = n
		}
	}
}

func WithFetchWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.fetchWorkers = n
		}
	}
}

// WithPaperLookup enables Search and LookupPaper.
func WithPaperLookup(l PaperLookup) Option {
	return func(p *Pipeline) {
		p.lookup = l
	}
}

func New(searcher RepoSearcher, fetcher ReadmeFetcher, extractor KeywordExtractor, ranker Ranker, opts ...Option) *Pipeline {
	p := &Pipeline{
		searcher:      searcher,
		fetcher:       fetcher,
		extractor:     extractor,
		ranker:        ranker,
		logger:        slog.Default(),
		searchWorkers: defaultWorkers,
		fetchWorkers:  defaultWorkers,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LookupPaper resolves a paper identifier through the configured lookup.
func (p *Pipeline) LookupPaper(ctx context.Context, query string) (models.PaperDetails, error) {
	if p.lookup == nil {
		return models.PaperDetails{}, models.Errorf(models.KindInvalidInput, "pipeline.LookupPaper", "no paper lookup configured")
	}
	return p.lookup.GetPaper(ctx, query)
}

// Search looks a paper up and then runs FindRepos on it.
func (p *Pipeline) Search(ctx context.Context, query string) ([]models.RankedRepo, error) {
	paper, err := p.LookupPaper(ctx, query)
	if err != nil {
		return nil, err
	}
	return p.FindRepos(ctx, paper)
}

// FindRepos returns candidate repositories for paper, most similar first.
// An empty, non-nil slice means nothing usable was found.
func (p *Pipeline) FindRepos(ctx context.Context, paper models.PaperDetails) ([]models.RankedRepo, error) {
	const op = "pipeline.FindRepos"
	if !paper.HasText() {
		return nil, models.Errorf(models.KindEmptyInput, op, "paper has neither title nor abstract")
	}

	queries, err := p.strategyFor(paper).Queries(ctx, paper)
	if err != nil {
		return nil, fmt.Errorf("%s: forming queries: %w", op, err)
	}
	p.logger.Info("searching repositories", "paper", paper.Title, "queries", queryTexts(queries))
	if len(queries) == 0 {
		return []models.RankedRepo{}, nil
	}

	hits := p.searchAll(ctx, queries)
	if len(hits) == 0 {
		p.logger.Info("no repositories found", "paper", paper.Title)
		return []models.RankedRepo{}, nil
	}

	readmes := p.fetchAll(ctx, hits)
	if len(readmes) == 0 {
		p.logger.Info("no READMEs found", "paper", paper.Title, "hits", len(hits))
		return []models.RankedRepo{}, nil
	}

	ranked, err := p.ranker.Rank(ctx, paper, readmes)
	if err != nil {
		return nil, fmt.Errorf("%s: ranking: %w", op, err)
	}
	p.logger.Info("ranked repositories", "paper", paper.Title, "hits", len(hits), "ranked", len(ranked))
	return ranked, nil
}

func (p *Pipeline) strategyFor(paper models.PaperDetails) QueryStrategy {
	if len(paper.Keywords) > 0 {
		return SuppliedKeywords{}
	}
	return ExtractedKeywords{Extractor: p.extractor}
}

func (p *Pipeline) searchAll(ctx context.Context, queries []models.SearchQuery) []models.SearchHit {
	results := fanout.Map(ctx, p.searchWorkers, queries, p.searcher.SearchRepositories)

	perQuery, failed := fanout.Collect(results)
	for _, f := range failed {
		p.logger.Warn("repository search failed", "query", queries[f.Index].Text, "error", f.Err)
	}
	return MergeHits(perQuery...)
}

func (p *Pipeline) fetchAll(ctx context.Context, hits []models.SearchHit) []models.RepoReadme {
	results := fanout.Map(ctx, p.fetchWorkers, hits, p.fetcher.FetchReadme)

	found, failed := fanout.Collect(results)
	for _, f := range failed {
		p.logger.Warn("README fetch failed", "repo", hits[f.Index].FullName, "error", f.Err)
	}

	readmes := make([]models.RepoReadme, 0, len(found))
	for _, r := range found {
		if r != nil {
			readmes = append(readmes, *r)
		}
	}
	return readmes
}

// MergeHits unions per-query results, keeping the first occurrence of each
// repository together with the query that found it.
func MergeHits(lists ...[]models.SearchHit) []models.SearchHit {
	seen := make(map[string]bool)
	var merged []models.SearchHit
	for _, hits := range lists {
		for _, h := range hits {
			if seen[h.FullName] {
				continue
			}
			seen[h.FullName] = true
			merged = append(merged, h)
		}
	}
	return merged
}

func queryTexts(qs []models.SearchQuery) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.Text
	}
	return out
}

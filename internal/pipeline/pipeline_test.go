package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kevinmichaelchen/papers-without-code/internal/mock"
	"github.com/kevinmichaelchen/papers-without-code/internal/models"
	"github.com/kevinmichaelchen/papers-without-code/internal/rank"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]models.SearchHit
	errs    map[string]error
	seen    []models.SearchQuery
}

func (f *fakeSearcher) SearchRepositories(_ context.Context, q models.SearchQuery) ([]models.SearchHit, error) {
	f.mu.Lock()
	f.seen = append(f.seen, q)
	f.mu.Unlock()
	if err := f.errs[q.Text]; err != nil {
		return nil, err
	}
	hits := make([]models.SearchHit, 0, len(f.results[q.Text]))
	for _, h := range f.results[q.Text] {
		h.OriginatingQuery = q.Text
		hits = append(hits, h)
	}
	return hits, nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	readmes map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakeFetcher) FetchReadme(_ context.Context, hit models.SearchHit) (*models.RepoReadme, error) {
	f.mu.Lock()
	f.calls = append(f.calls, hit.FullName)
	f.mu.Unlock()
	if err := f.errs[hit.FullName]; err != nil {
		return nil, err
	}
	text, ok := f.readmes[hit.FullName]
	if !ok {
		return nil, nil
	}
	return &models.RepoReadme{SearchHit: hit, ReadmeText: text}, nil
}

type fakeExtractor struct {
	mu       sync.Mutex
	keywords []models.Keyword
	err      error
	inputs   []string
}

func (f *fakeExtractor) Extract(_ context.Context, text string) ([]models.Keyword, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, text)
	f.mu.Unlock()
	return f.keywords, f.err
}

type fakeLookup struct {
	paper models.PaperDetails
	err   error
}

func (f fakeLookup) GetPaper(context.Context, string) (models.PaperDetails, error) {
	return f.paper, f.err
}

func kw(phrases ...string) []models.Keyword {
	out := make([]models.Keyword, len(phrases))
	for i, p := range phrases {
		out[i] = models.Keyword{Phrase: p, Score: 1}
	}
	return out
}

func TestFindReposSciBERTWithNoHits(t *testing.T) {
	searcher := &fakeSearcher{}
	fetcher := &fakeFetcher{}
	extractor := &fakeExtractor{keywords: kw("SciBERT")}
	emb := mock.NewEmbedder()
	p := New(searcher, fetcher, extractor, rank.New(emb))

	got, err := p.FindRepos(context.Background(), models.PaperDetails{Title: "SciBERT"})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	assert.Equal(t, []string{"SciBERT"}, extractor.inputs, "extractor sees the title only")
	assert.Equal(t, []models.SearchQuery{{Text: "SciBERT", ExactPhrase: true}}, searcher.seen)
	assert.Empty(t, fetcher.calls)
	assert.Equal(t, 0, emb.CallCount())
}

func TestFindReposRejectsPaperWithoutText(t *testing.T) {
	extractor := &fakeExtractor{}
	p := New(&fakeSearcher{}, &fakeFetcher{}, extractor, rank.New(mock.NewEmbedder()))

	_, err := p.FindRepos(context.Background(), models.PaperDetails{Title: " ", Abstract: ""})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrEmptyInput)
	assert.Equal(t, models.KindEmptyInput, models.KindOf(err))
	assert.Empty(t, extractor.inputs)
}

func TestFindReposUsesSuppliedKeywords(t *testing.T) {
	searcher := &fakeSearcher{}
	extractor := &fakeExtractor{}
	p := New(searcher, &fakeFetcher{}, extractor, rank.New(mock.NewEmbedder()))

	_, err := p.FindRepos(context.Background(), models.PaperDetails{
		Title:    "Attention Is All You Need",
		Keywords: kw("transformer", "self-attention", "transformer"),
	})
	require.NoError(t, err)
	assert.Empty(t, extractor.inputs)
	assert.ElementsMatch(t, []models.SearchQuery{
		{Text: "transformer", ExactPhrase: true},
		{Text: "self-attention", ExactPhrase: true},
	}, searcher.seen)
}

func TestFindReposMergesAndRanks(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]models.SearchHit{
		"scibert":         {{FullName: "a/one"}, {FullName: "a/two"}},
		"scientific text": {{FullName: "a/two"}, {FullName: "a/three"}, {FullName: "a/nothing"}},
	}}
	fetcher := &fakeFetcher{readmes: map[string]string{
		"a/one":   "readme one",
		"a/two":   "readme two",
		"a/three": "readme three",
	}}
	emb := mock.NewEmbedder()
	emb.Vectors["abstract"] = []float32{1, 0}
	emb.Vectors["readme one"] = []float32{0.8, 0.6}
	emb.Vectors["readme two"] = []float32{0.3, 0.9539392}
	emb.Vectors["readme three"] = []float32{-1, 0}

	p := New(searcher, fetcher, &fakeExtractor{keywords: kw("scibert", "scientific text")}, rank.New(emb), WithSearchWorkers(2), WithFetchWorkers(2))
	got, err := p.FindRepos(context.Background(), models.PaperDetails{Title: "SciBERT", Abstract: "abstract"})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "a/one", got[0].Name)
	assert.Equal(t, "a/two", got[1].Name)
	assert.Equal(t, "scibert", got[1].SearchQuery, "first-seen query is kept")
	assert.Equal(t, "a/three", got[2].Name)
	assert.InDelta(t, -1.0, got[2].Similarity, 1e-6)
	assert.ElementsMatch(t, []string{"a/one", "a/two", "a/three", "a/nothing"}, fetcher.calls)
}

func TestFindReposIsolatesFailures(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[string][]models.SearchHit{"good": {{FullName: "a/ok"}, {FullName: "a/broken"}}},
		errs:    map[string]error{"bad": models.NewError(models.KindTransientNetwork, "search", errors.New("rate limited"))},
	}
	fetcher := &fakeFetcher{
		readmes: map[string]string{"a/ok": "fine"},
		errs:    map[string]error{"a/broken": errors.New("timeout")},
	}
	p := New(searcher, fetcher, &fakeExtractor{keywords: kw("bad", "good")}, rank.New(mock.NewEmbedder()))

	got, err := p.FindRepos(context.Background(), models.PaperDetails{Title: "t"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a/ok", got[0].Name)
}

func TestFindReposPropagatesExtractorFailure(t *testing.T) {
	p := New(&fakeSearcher{}, &fakeFetcher{}, &fakeExtractor{err: errors.New("model missing")}, rank.New(mock.NewEmbedder()))
	_, err := p.FindRepos(context.Background(), models.PaperDetails{Title: "t"})
	assert.ErrorContains(t, err, "model missing")
}

func TestSearchNotFound(t *testing.T) {
	notFound := models.Errorf(models.KindNotFound, "lookup", "no paper for %q", "10.0/x")
	p := New(&fakeSearcher{}, &fakeFetcher{}, &fakeExtractor{}, rank.New(mock.NewEmbedder()), WithPaperLookup(fakeLookup{err: notFound}))

	_, err := p.Search(context.Background(), "10.0/x")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSearchWithoutLookup(t *testing.T) {
	p := New(&fakeSearcher{}, &fakeFetcher{}, &fakeExtractor{}, rank.New(mock.NewEmbedder()))
	_, err := p.Search(context.Background(), "x")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestSearchRunsPipelineOnLookedUpPaper(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]models.SearchHit{"BERT": {{FullName: "google/bert"}}}}
	fetcher := &fakeFetcher{readmes: map[string]string{"google/bert": "BERT"}}
	p := New(searcher, fetcher, &fakeExtractor{keywords: kw("BERT")}, rank.New(mock.NewEmbedder()),
		WithPaperLookup(fakeLookup{paper: models.PaperDetails{Title: "BERT"}}))

	got, err := p.Search(context.Background(), "ARXIV:1810.04805")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://github.com/google/bert", got[0].Link)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
}

func TestMergeHitsKeepsFirstSeen(t *testing.T) {
	merged := MergeHits(
		[]models.SearchHit{{FullName: "x/a", OriginatingQuery: "q1"}, {FullName: "x/b", OriginatingQuery: "q1"}},
		nil,
		[]models.SearchHit{{FullName: "x/b", OriginatingQuery: "q2"}, {FullName: "x/c", OriginatingQuery: "q2"}},
	)
	require.Len(t, merged, 3)
	assert.Equal(t, "q1", merged[1].OriginatingQuery)
	assert.Equal(t, "x/c", merged[2].FullName)
}

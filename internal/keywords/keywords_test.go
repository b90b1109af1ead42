package keywords

import (
	"context"
	"errors"
	"testing"

	"github.com/kevinmichaelchen/papers-without-code/internal/mock"
	"github.com/kevinmichaelchen/papers-without-code/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidates(t *testing.T) {
	tokens := tokenPattern.FindAllString("The graph of the network.", -1)
	assert.Equal(t, []string{"The", "graph", "of", "the", "network"}, tokens)

	assert.Equal(t, []string{"graph", "network", "graph network"}, candidates(tokens, true, 100))

	all := candidates(tokens, false, 100)
	assert.Contains(t, all, "of")
	assert.Contains(t, all, "graph of the network")
	assert.Contains(t, all, "The", "case is preserved")
	assert.Contains(t, all, "the")
	assert.NotContains(t, all, "The graph of the network")

	assert.Len(t, candidates(tokens, false, 3), 3)
}

func TestTokensSkipSingleCharacters(t *testing.T) {
	assert.Equal(t, []string{"BERT", "v2", "für"}, tokenPattern.FindAllString("a BERT-v2 für x", -1))
}

func TestExtractEmptyText(t *testing.T) {
	emb := mock.NewEmbedder()
	kws, err := New(emb).Extract(context.Background(), "  \n ")
	require.NoError(t, err)
	assert.Empty(t, kws)
	assert.NotNil(t, kws)
	assert.Equal(t, 0, emb.CallCount())
}

func TestExtractSingleWordTitle(t *testing.T) {
	emb := mock.NewEmbedder()
	kws, err := New(emb).Extract(context.Background(), "SciBERT")
	require.NoError(t, err)
	require.Len(t, kws, 1)
	assert.Equal(t, "SciBERT", kws[0].Phrase)
	assert.InDelta(t, 1.0, kws[0].Score, 1e-6)
	assert.Equal(t, 1, emb.CallCount(), "document and candidates share one request")
}

func TestExtractUnionsBothModes(t *testing.T) {
	const text = "graph neural network of the year"
	vectors := map[string][]float32{
		text:                   {1, 0},
		"graph neural network": {1, 0},
		"network of the":       {0.9, 0.1},
		"neural":               {1, 1},
	}
	emb := mock.NewEmbedder()
	emb.EmbedFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, t := range texts {
			if v, ok := vectors[t]; ok {
				out[i] = v
			} else {
				out[i] = []float32{0, 1}
			}
		}
		return out, nil
	}

	kws, err := New(emb, WithTopN(2)).Extract(context.Background(), text)
	require.NoError(t, err)

	phrases := make([]string, len(kws))
	for i, k := range kws {
		phrases[i] = k.Phrase
	}
	assert.Equal(t, []string{"graph neural network", "neural", "network of the"}, phrases)
	assert.InDelta(t, 1.0, kws[0].Score, 1e-6)
}

func TestExtractPropagatesEmbedderError(t *testing.T) {
	emb := mock.NewEmbedder()
	emb.EmbedFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("model unavailable")
	}
	_, err := New(emb).Extract(context.Background(), "Attention is all you need")
	assert.ErrorContains(t, err, "model unavailable")
}

func TestUnionIsCaseSensitive(t *testing.T) {
	got := Union(
		[]models.Keyword{{Phrase: "BERT", Score: 0.9}, {Phrase: "scibert", Score: 0.5}},
		[]models.Keyword{{Phrase: "bert", Score: 0.8}, {Phrase: "BERT", Score: 0.1}},
	)
	assert.Equal(t, []models.Keyword{
		{Phrase: "BERT", Score: 0.9},
		{Phrase: "scibert", Score: 0.5},
		{Phrase: "bert", Score: 0.8},
	}, got)
}

package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/kevinmichaelchen/papers-without-code/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"
)

func sampleRepos() []models.RankedRepo {
	desc := "SciBERT pretrained model"
	return []models.RankedRepo{
		{Name: "allenai/scibert", Link: "https://github.com/allenai/scibert", SearchQuery: `"SciBERT"`, Similarity: 0.912, Stars: 1400, Forks: 200, Watchers: 50, Description: &desc},
		{Name: "a/two", Link: "https://github.com/a/two", SearchQuery: `"BERT"`, Similarity: 0.3},
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResults(&buf, "text", sampleRepos()))

	out := buf.String()
	assert.Contains(t, out, "Most similar repository:\n  allenai/scibert  (0.912)")
	assert.Contains(t, out, "SciBERT pretrained model")
	assert.Contains(t, out, "\nOther repositories:\n  a/two  (0.300)")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("allenai/scibert")), bytes.Index(buf.Bytes(), []byte("a/two")))
}

func TestWriteTextSingleAndEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResults(&buf, "text", sampleRepos()[:1]))
	assert.NotContains(t, buf.String(), "Other repositories")

	buf.Reset()
	require.NoError(t, writeResults(&buf, "text", nil))
	assert.Equal(t, "No repositories found\n", buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResults(&buf, "JSON", sampleRepos()))

	var got []models.RankedRepo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, sampleRepos(), got)

	buf.Reset()
	require.NoError(t, writeResults(&buf, "json", nil))
	assert.JSONEq(t, "[]", buf.String())
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResults(&buf, "yml", sampleRepos()))
	assert.Contains(t, buf.String(), "search_query:")

	var got []models.RankedRepo
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, sampleRepos(), got)
}

func TestUnknownFormat(t *testing.T) {
	err := writeResults(&bytes.Buffer{}, "xml", nil)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

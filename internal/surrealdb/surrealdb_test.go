package surrealdb

import (
	"testing"
	"time"

	"github.com/kevinmichaelchen/papers-without-code/internal/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ embedding.Cache = (*Client)(nil)

func TestRowsToVectors(t *testing.T) {
	got := rowsToVectors([]vectorRow{
		{Key: "m:a", Vector: []float64{0.5, -1}},
		{Key: "", Vector: []float64{1}},
		{Key: "m:b"},
	})
	assert.Equal(t, map[string][]float32{"m:a": {0.5, -1}}, got)
}

func TestRecordsSortedByKey(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	got := records(map[string][]float32{
		"m:b": {1},
		"m:a": {0.25, 2},
	}, now)

	require.Len(t, got, 2)
	assert.Equal(t, "m:a", got[0]["key"])
	assert.Equal(t, []float64{0.25, 2}, got[0]["vector"])
	assert.Equal(t, now, got[0]["created_at"])
	assert.Equal(t, "m:b", got[1]["key"])
}

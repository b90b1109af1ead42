package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPreservesInputOrder(t *testing.T) {
	inputs := []int{5, 1, 4, 2, 3}
	results := Map(context.Background(), 3, inputs, func(_ context.Context, n int) (string, error) {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return fmt.Sprint(n * 10), nil
	})

	require.Len(t, results, len(inputs))
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.NoError(t, r.Err)
		assert.Equal(t, fmt.Sprint(inputs[i]*10), r.Value)
	}
}

func TestMapIsolatesFailures(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32

	results := Map(context.Background(), 2, []string{"a", "fail", "c", "d"}, func(_ context.Context, s string) (string, error) {
		calls.Add(1)
		if s == "fail" {
			return "", boom
		}
		return s, nil
	})

	assert.Equal(t, int32(4), calls.Load(), "a failure must not stop siblings")
	values, failed := Collect(results)
	assert.Equal(t, []string{"a", "c", "d"}, values)
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].Index)
	assert.ErrorIs(t, failed[0].Err, boom)
}

func TestMapRespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	inputs := make([]int, 20)

	Map(context.Background(), 3, inputs, func(_ context.Context, _ int) (struct{}, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	})

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Greater(t, peak.Load(), int32(0))
}

func TestMapEmptyAndZeroLimit(t *testing.T) {
	assert.Empty(t, Map(context.Background(), 4, []int(nil), func(_ context.Context, n int) (int, error) { return n, nil }))

	results := Map(context.Background(), 0, []int{1, 2}, func(_ context.Context, n int) (int, error) { return n + 1, nil })
	values, failed := Collect(results)
	assert.Equal(t, []int{2, 3}, values)
	assert.Empty(t, failed)
}

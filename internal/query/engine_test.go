package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestQueryMemoizesAndDedupes(t *testing.T) {
	eng := NewEngine(0, nil)
	calls := 0
	compute := func(context.Context) (interface{}, error) {
		calls++
		return 42, nil
	}
	v1, err := eng.Query(context.Background(), "k", nil, compute)
	require.NoError(t, err)
	v2, err := eng.Query(context.Background(), "k", nil, compute)
	require.NoError(t, err)
	assert.Equal(t, 42, v1)
	assert.Equal(t, 42, v2)
	assert.Equal(t, 1, calls, "second call must hit the cache, not recompute")
}

func TestInvalidateCascades(t *testing.T) {
	eng := NewEngine(0, nil)
	_, err := eng.Query(context.Background(), "parse", nil, func(context.Context) (interface{}, error) {
		return "root", nil
	})
	require.NoError(t, err)
	_, err = eng.Query(context.Background(), "symbols", []Key{"parse"}, func(context.Context) (interface{}, error) {
		return "table", nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, eng.Len())

	eng.Invalidate("parse")
	assert.Equal(t, 0, eng.Len(), "invalidating parse must cascade to its dependent symbols entry")
}

func TestLRUEviction(t *testing.T) {
	eng := NewEngine(1, nil)
	noop := func(context.Context) (interface{}, error) { return nil, nil }
	_, err := eng.Query(context.Background(), "a", nil, noop)
	require.NoError(t, err)
	_, err = eng.Query(context.Background(), "b", nil, noop)
	require.NoError(t, err)
	assert.Equal(t, 1, eng.Len(), "cache must evict toward maxEntries")
}

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_AcquireWithinBurst(t *testing.T) {
	l := New(map[string]Config{
		"database": {RPS: 10, Burst: 2},
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, l.Acquire(ctx, "database"))
	require.NoError(t, l.Acquire(ctx, "database"))
}

func TestLimiter_UnknownResource(t *testing.T) {
	l := New(map[string]Config{"database": {RPS: 10, Burst: 1}})

	err := l.Acquire(context.Background(), "llm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm")
}

func TestLimiter_BlocksPastBurst(t *testing.T) {
	l := New(map[string]Config{"database": {RPS: 5, Burst: 1}})

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, "database"))

	start := time.Now()
	require.NoError(t, l.Acquire(ctx, "database"))
	assert.Greater(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_RespectsContextCancellation(t *testing.T) {
	l := New(map[string]Config{"database": {RPS: 1, Burst: 1}})

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, "database"))

	cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Acquire(cancelCtx, "database")
	require.Error(t, err)
}

func TestLimiter_IndependentResources(t *testing.T) {
	l := New(map[string]Config{
		"database": {RPS: 1, Burst: 1},
		"llm":      {RPS: 1, Burst: 1},
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, l.Acquire(ctx, "database"))
	require.NoError(t, l.Acquire(ctx, "llm"))
}

package chain_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/chain"
)

func TestRateLimiter_Allow(t *testing.T) {
	t.Parallel()

	rl := chain.NewRateLimiter(1, 3)
	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("/portfolio"), "request %d within burst", i)
	}
	assert.False(t, rl.Allow("/portfolio"), "burst exhausted")
}

func TestRateLimiter_Wait(t *testing.T) {
	t.Parallel()

	rl := chain.NewRateLimiter(100, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, rl.Wait(ctx, "/listUnspent"))
	start := time.Now()
	require.NoError(t, rl.Wait(ctx, "/listUnspent"))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestRateLimiter_WaitCanceled(t *testing.T) {
	t.Parallel()

	rl := chain.NewRateLimiter(0.001, 1)
	require.True(t, rl.Allow("/portfolio"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, rl.Wait(ctx, "/portfolio"))
}

func TestRateLimiter_SeparateEndpoints(t *testing.T) {
	t.Parallel()

	rl := chain.NewRateLimiter(1, 1)
	assert.True(t, rl.Allow("/portfolio"))
	assert.False(t, rl.Allow("/portfolio"))
	assert.True(t, rl.Allow("/listUnspent"))
}

func TestRateLimiter_Concurrent(t *testing.T) {
	t.Parallel()

	rl := chain.NewRateLimiter(1, 50)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("/portfolio") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.InDelta(t, 50, allowed, 1)
}

package rate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterWindow(t *testing.T) {
	l := NewMemoryLimiter(2, time.Minute)
	base := time.Date(2026, 5, 1, 12, 0, 10, 0, time.UTC)
	l.now = func() time.Time { return base }

	for i := 0; i < 2; i++ {
		res, err := l.Allow(context.Background(), "1.2.3.4|/v1/events")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := l.Allow(context.Background(), "1.2.3.4|/v1/events")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(0), res.Remaining)
	assert.Equal(t, 50*time.Second, res.RetryAfter)

	other, err := l.Allow(context.Background(), "5.6.7.8|/v1/events")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	l.now = func() time.Time { return base.Add(time.Minute) }
	res, err = l.Allow(context.Background(), "1.2.3.4|/v1/events")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "new window")
}

func TestMemoryLimiterConcurrent(t *testing.T) {
	l := NewMemoryLimiter(10, time.Hour)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Allow(context.Background(), "k")
			if err == nil && res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}

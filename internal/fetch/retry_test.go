package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDoublesUpToCap(t *testing.T) {
	t.Parallel()

	p := newBackoffPolicy(100*time.Millisecond, time.Second)

	for attempt := 1; attempt <= 8; attempt++ {
		d := p.Delay(attempt)
		// Delay is half the deterministic value plus jitter in [0, half).
		expected := 100 * time.Millisecond << (attempt - 1)
		if expected > time.Second {
			expected = time.Second
		}
		require.GreaterOrEqual(t, d, expected/2, "attempt %d", attempt)
		require.Less(t, d, expected+time.Millisecond, "attempt %d", attempt)
	}
}

func TestBackoffDefaults(t *testing.T) {
	t.Parallel()

	p := newBackoffPolicy(0, 0)
	require.Equal(t, 250*time.Millisecond, p.baseDelay)
	require.Equal(t, 8*time.Second, p.maxDelay)
}

func TestBackoffWaitStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	p := newBackoffPolicy(10*time.Second, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := p.Wait(ctx, 1)
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second)
}

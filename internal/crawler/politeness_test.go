package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRandomDelayDisabled(t *testing.T) {
	t.Parallel()
	var nilDelay *RandomDelay
	require.NoError(t, nilDelay.Wait(context.Background()))
	require.NoError(t, NewRandomDelay(0).Wait(context.Background()))
}

func TestRandomDelayHonorsContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := NewRandomDelay(time.Hour).Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), time.Second, "delay should exit immediately when context is done")
}

func TestRandomDurationStaysInRange(t *testing.T) {
	t.Parallel()
	for range 100 {
		d := randomDuration(20 * time.Millisecond)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 20*time.Millisecond)
	}
	require.Zero(t, randomDuration(-time.Second))
}

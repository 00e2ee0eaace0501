package crawler

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// RandomDelay pauses for a uniformly random duration in [0, Max] before each fetch.
type RandomDelay struct {
	Max time.Duration
}

// NewRandomDelay returns a Pacer; a non-positive max disables the delay.
func NewRandomDelay(max time.Duration) *RandomDelay {
	return &RandomDelay{Max: max}
}

// Wait blocks for the chosen delay or until ctx is done.
func (d *RandomDelay) Wait(ctx context.Context) error {
	if d == nil || d.Max <= 0 {
		return nil
	}
	return pause(ctx, randomDuration(d.Max))
}

func randomDuration(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)+1))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("politeness delay: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

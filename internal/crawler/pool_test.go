package crawler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func pageURLs(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.org/pg%d", i+1)
	}
	return urls
}

func TestPagePoolBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var active, peak atomic.Int32
	pool := NewPagePool[string](3, "community", nil)
	res := pool.Run(context.Background(), pageURLs(12), func(_ context.Context, url string) ([]string, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return []string{url}, nil
	})

	require.Equal(t, 12, res.Pages)
	require.Len(t, res.Items, 12)
	require.Empty(t, res.Failures)
	require.LessOrEqual(t, peak.Load(), int32(3))
}

func TestPagePoolIsolatesFailures(t *testing.T) {
	t.Parallel()

	urls := pageURLs(5)
	pool := NewPagePool[int](2, "community", nil)
	res := pool.Run(context.Background(), urls, func(_ context.Context, url string) ([]int, error) {
		switch url {
		case urls[1]:
			return nil, &FetchError{Kind: Transient, URL: url, StatusCode: 503, Err: errors.New("unavailable")}
		case urls[3]:
			panic("unexpected markup")
		}
		return []int{1, 2}, nil
	})

	require.Equal(t, 5, res.Pages)
	require.Len(t, res.Items, 6)
	require.Len(t, res.Failures, 2)

	failed := []string{res.Failures[0].URL, res.Failures[1].URL}
	sort.Strings(failed)
	require.Equal(t, []string{urls[1], urls[3]}, failed)
	for _, f := range res.Failures {
		if f.URL == urls[3] {
			require.ErrorContains(t, f.Err, "panic")
		} else {
			require.True(t, IsTransient(f.Err))
		}
	}
}

func TestPagePoolEmpty(t *testing.T) {
	t.Parallel()
	res := NewPagePool[int](0, "community", nil).Run(context.Background(), nil, func(context.Context, string) ([]int, error) {
		t.Fatal("task should not run")
		return nil, nil
	})
	require.Zero(t, res.Pages)
	require.Empty(t, res.Items)
}

func TestStorageFailure(t *testing.T) {
	t.Parallel()
	require.NoError(t, storageFailure([]PageFailure{{URL: "a", Err: &FetchError{Kind: Permanent}}}))

	err := storageFailure([]PageFailure{
		{URL: "a", Err: &FetchError{Kind: Transient}},
		{URL: "b", Err: fmt.Errorf("resolve: %w", ErrStorageUnavailable)},
	})
	require.ErrorIs(t, err, ErrStorageUnavailable)
	require.ErrorContains(t, err, "page b")
}

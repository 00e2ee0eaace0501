package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/rent-house-crawler/internal/metrics"
)

// PageTask fetches, extracts and reconciles one page.
type PageTask[T any] func(ctx context.Context, url string) ([]T, error)

// PoolResult is the fan-in of one pool run.
type PoolResult[T any] struct {
	Items    []T
	Failures []PageFailure
	Pages    int
}

// PagePool runs page tasks with bounded concurrency. Tasks never cancel each
// other: a failing or panicking task is logged, recorded and excluded.
type PagePool[T any] struct {
	max    int
	level  string
	logger *zap.Logger
}

// NewPagePool builds a pool running at most max tasks at once.
func NewPagePool[T any](max int, level string, logger *zap.Logger) *PagePool[T] {
	if max <= 0 {
		max = DefaultMaxWorkers()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PagePool[T]{max: max, level: level, logger: logger}
}

// Run executes task once per url and waits for all of them.
func (p *PagePool[T]) Run(ctx context.Context, urls []string, task PageTask[T]) PoolResult[T] {
	res := PoolResult[T]{Pages: len(urls)}
	if len(urls) == 0 {
		return res
	}

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(min(p.max, len(urls)))

	for _, url := range urls {
		g.Go(func() error {
			items, err := p.runOne(ctx, url, task)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failures = append(res.Failures, PageFailure{URL: url, Err: err})
				return nil
			}
			res.Items = append(res.Items, items...)
			return nil
		})
	}
	_ = g.Wait()
	return res
}

func (p *PagePool[T]) runOne(ctx context.Context, url string, task PageTask[T]) (items []T, err error) {
	metrics.IncActivePageWorkers()
	defer metrics.DecActivePageWorkers()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("page task panicked",
				zap.String("url", url),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			metrics.ObservePage(p.level, metrics.OutcomePanic)
			items, err = nil, fmt.Errorf("page task panic: %v", r)
		}
	}()

	items, err = task(ctx, url)
	switch {
	case err == nil:
		metrics.ObservePage(p.level, metrics.OutcomeSuccess)
	case IsTransient(err):
		p.logger.Warn("page skipped", zap.String("url", url), zap.Error(err))
		metrics.ObservePage(p.level, metrics.OutcomeTransient)
	default:
		p.logger.Error("page failed", zap.String("url", url), zap.Error(err))
		metrics.ObservePage(p.level, metrics.OutcomePermanent)
	}
	return items, err
}

// storageFailure returns the first failure caused by an unreachable store.
func storageFailure(failures []PageFailure) error {
	for _, f := range failures {
		if errors.Is(f.Err, ErrStorageUnavailable) {
			return fmt.Errorf("page %s: %w", f.URL, f.Err)
		}
	}
	return nil
}

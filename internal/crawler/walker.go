package crawler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/rent-house-crawler/internal/metrics"
)

// Walk statuses.
const (
	WalkComplete = "complete"
	WalkPartial  = "partial"
	WalkAborted  = "aborted"
)

var tracer = otel.Tracer("github.com/JakeFAU/rent-house-crawler/internal/crawler")

// WalkerConfig wires the optional collaborators of a Walker.
type WalkerConfig struct {
	Publisher Publisher
	// Topic receives the WalkSummary; empty disables publishing.
	Topic string
	IDs   IDGenerator
}

// Walker drives one city through districts, bizcircles and communities.
// Page failures at any level are logged and skipped; an unreachable store
// or a cancelled context aborts the walk.
type Walker struct {
	opts   Options
	cfg    WalkerConfig
	logger *zap.Logger
}

// NewWalker validates opts and returns a Walker.
func NewWalker(opts Options, cfg WalkerConfig) (*Walker, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if cfg.Topic != "" && cfg.Publisher == nil {
		return nil, &ConfigurationError{Msg: fmt.Sprintf("topic %q set without a publisher", cfg.Topic)}
	}
	return &Walker{opts: opts, cfg: cfg, logger: opts.Logger.Named("walker")}, nil
}

// Walk crawls every level below city and returns what it saw.
func (w *Walker) Walk(ctx context.Context, city City) (WalkSummary, error) {
	summary := WalkSummary{
		RunID:     w.runID(),
		City:      city.Name,
		StartedAt: w.opts.Clock.Now(),
	}
	logger := w.logger.With(zap.String("run_id", summary.RunID), zap.String("city", city.Name))
	logger.Info("walk started")

	ctx, span := tracer.Start(ctx, "walk", trace.WithAttributes(
		attribute.String("city", city.Name),
		attribute.String("run_id", summary.RunID),
	))
	defer span.End()

	err := w.walk(ctx, city, &summary, logger)
	summary.FinishedAt = w.opts.Clock.Now()

	status := WalkComplete
	switch {
	case err != nil:
		status = WalkAborted
		logger.Error("walk aborted", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "walk aborted")
	case summary.PagesFailed > 0:
		status = WalkPartial
	}
	metrics.ObserveWalk(status)
	span.SetAttributes(
		attribute.String("status", status),
		attribute.Int("communities", summary.Communities),
		attribute.Int("pages_failed", summary.PagesFailed),
	)
	logger.Info("walk finished",
		zap.String("status", status),
		zap.Int("districts", summary.Districts),
		zap.Int("bizcircles", summary.Bizcircles),
		zap.Int("communities", summary.Communities),
		zap.Int("communities_created", summary.CommunitiesNew),
		zap.Int("pages_failed", summary.PagesFailed),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	w.publish(ctx, summary, logger)
	return summary, err
}

func (w *Walker) walk(ctx context.Context, city City, summary *WalkSummary, logger *zap.Logger) error {
	dc, err := NewDistrictCrawler(city, w.opts)
	if err != nil {
		return err
	}
	summary.PagesTotal++
	districts, err := dc.Run(ctx)
	if err != nil {
		return w.skip(ctx, err, summary, logger)
	}
	summary.Districts = len(districts.Districts)

	var bizcircles []Bizcircle
	seen := make(map[int64]struct{})
	for _, d := range districts.Districts {
		if err := ctx.Err(); err != nil {
			return err
		}
		bc, err := NewBizcircleCrawler(city, DistrictParent(d), w.opts)
		if err != nil {
			return err
		}
		summary.PagesTotal++
		res, err := bc.Run(ctx)
		if err != nil {
			if err := w.skip(ctx, err, summary, logger); err != nil {
				return err
			}
			continue
		}
		for _, b := range res.Bizcircles {
			if _, dup := seen[b.ID]; dup {
				continue
			}
			seen[b.ID] = struct{}{}
			bizcircles = append(bizcircles, b)
		}
	}
	summary.Bizcircles = len(bizcircles)

	communities := make(map[int64]struct{})
	for _, b := range bizcircles {
		if err := ctx.Err(); err != nil {
			return err
		}
		cc, err := NewCommunityCrawler(city, b, w.opts)
		if err != nil {
			return err
		}
		bctx, bspan := tracer.Start(ctx, "communities", trace.WithAttributes(attribute.String("bizcircle", b.Name)))
		res, err := cc.Run(bctx)
		bspan.SetAttributes(attribute.Int("pages_total", res.PagesTotal), attribute.Int("pages_failed", res.PagesFailed))
		if err != nil {
			bspan.RecordError(err)
		}
		bspan.End()
		summary.PagesTotal += res.PagesTotal
		summary.PagesFailed += res.PagesFailed
		for _, f := range res.Failures {
			summary.FailedURLs = append(summary.FailedURLs, f.URL)
		}
		if err != nil {
			if err := w.skip(ctx, err, summary, logger); err != nil {
				return err
			}
			summary.BizcirclesSkipped++
			continue
		}
		summary.CommunitiesNew += res.Created
		for _, c := range res.Communities {
			communities[c.ID] = struct{}{}
		}
	}
	summary.Communities = len(communities)
	return nil
}

// skip records a page-level failure and returns nil, or returns err when it
// must abort the walk.
func (w *Walker) skip(ctx context.Context, err error, summary *WalkSummary, logger *zap.Logger) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		return err
	}
	summary.PagesFailed++
	summary.FailedURLs = append(summary.FailedURLs, fe.URL)
	if fe.Kind == Transient {
		logger.Warn("listing skipped", zap.String("url", fe.URL), zap.Error(err))
	} else {
		logger.Error("listing unusable", zap.String("url", fe.URL), zap.Error(err))
	}
	return nil
}

func (w *Walker) runID() string {
	if w.cfg.IDs != nil {
		if id, err := w.cfg.IDs.NewID(); err == nil {
			return id
		}
	}
	return uuid.NewString()
}

func (w *Walker) publish(ctx context.Context, summary WalkSummary, logger *zap.Logger) {
	if w.cfg.Publisher == nil || w.cfg.Topic == "" {
		return
	}
	// The walk context may already be cancelled; the summary still goes out.
	msgID, err := w.cfg.Publisher.Publish(context.WithoutCancel(ctx), w.cfg.Topic, summary)
	if err != nil {
		logger.Warn("publish walk summary", zap.String("topic", w.cfg.Topic), zap.Error(err))
		return
	}
	logger.Debug("walk summary published", zap.String("topic", w.cfg.Topic), zap.String("message_id", msgID))
}

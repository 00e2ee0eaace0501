package crawler

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/rent-house-crawler/internal/metrics"
)

// DefaultMaxWorkers bounds the community page pool when Options.MaxWorkers is unset.
func DefaultMaxWorkers() int {
	return runtime.NumCPU() + 4
}

// Options carries the collaborators shared by every crawler.
type Options struct {
	Fetcher PageFetcher
	Store   EntityStore
	Site    Site
	// Pacer runs before every fetch; nil disables the delay.
	Pacer Pacer
	// Archive receives layout snapshots of unusable listing pages; optional.
	Archive BlobStore
	Clock   Clock
	Logger  *zap.Logger
	// MaxWorkers caps concurrent community page tasks; zero means DefaultMaxWorkers.
	MaxWorkers int
}

func (o Options) withDefaults() (Options, error) {
	if o.Fetcher == nil {
		return o, &ConfigurationError{Msg: "page fetcher is required"}
	}
	if o.Store == nil {
		return o, &ConfigurationError{Msg: "entity store is required"}
	}
	if o.Site.BaseURL == "" && o.Site.Platform == "" {
		return o, &ConfigurationError{Msg: "site platform is required"}
	}
	if o.MaxWorkers < 0 {
		return o, &ConfigurationError{Msg: fmt.Sprintf("max workers must be >= 0, got %d", o.MaxWorkers)}
	}
	if o.MaxWorkers == 0 {
		o.MaxWorkers = DefaultMaxWorkers()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Clock == nil {
		o.Clock = wallClock{}
	}
	return o, nil
}

func (o Options) fetch(ctx context.Context, url string) (*html.Node, error) {
	if o.Pacer != nil {
		if err := o.Pacer.Wait(ctx); err != nil {
			return nil, err
		}
	}
	start := time.Now()
	doc, err := o.Fetcher.Fetch(ctx, url)
	metrics.ObserveFetch(url, time.Since(start))
	return doc, err
}

// reconcile resolves key and, when the row already existed with different
// attributes, overwrites them with the latest observation.
func (o Options) reconcile(ctx context.Context, key Key, attrs Attrs) (Row, bool, error) {
	row, created, err := o.Store.Resolve(ctx, key, attrs)
	if err != nil {
		return Row{}, false, fmt.Errorf("resolve %s: %w", key, err)
	}
	metrics.ObserveResolve(string(key.Kind), created)
	if created || row.Attrs == attrs {
		return row, created, nil
	}
	row.Attrs = attrs
	if err := o.Store.Update(ctx, row); err != nil {
		return Row{}, false, fmt.Errorf("update %s: %w", key, err)
	}
	return row, false, nil
}

func validateCity(city City, site Site) error {
	if city.ID <= 0 {
		return &ConfigurationError{Msg: fmt.Sprintf("city %q must be resolved before crawling", city.Name)}
	}
	if city.Abbr == "" && site.BaseURL == "" {
		return &ConfigurationError{Msg: fmt.Sprintf("city %q has no abbreviation", city.Name)}
	}
	return nil
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

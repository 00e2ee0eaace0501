package crawler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/rent-house-crawler/internal/extract"
	"github.com/JakeFAU/rent-house-crawler/internal/metrics"
)

// BizcircleResult reports the bizcircles reconciled under one parent.
type BizcircleResult struct {
	Bizcircles []Bizcircle
	Discovered int
	Created    int
}

// BizcircleCrawler populates the bizcircles listed under a district or line
// and links each of them to that parent.
type BizcircleCrawler struct {
	lifecycle
	opts   Options
	city   City
	parent Parent
	set    EdgeSet
}

// NewBizcircleCrawler builds a single-use crawler for parent. It returns a
// *ConfigurationError for any parent that is not a resolved district or line.
func NewBizcircleCrawler(city City, parent Parent, opts Options) (*BizcircleCrawler, error) {
	set, err := parent.EdgeSet()
	if err != nil {
		return nil, err
	}
	opts, err = opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if err := validateCity(city, opts.Site); err != nil {
		return nil, err
	}
	if parent.ID <= 0 || parent.Name == "" {
		return nil, &ConfigurationError{Msg: fmt.Sprintf("%s parent must be resolved before crawling", parent.Kind)}
	}
	if parent.CityID != city.ID {
		return nil, &ConfigurationError{
			Msg: fmt.Sprintf("%s %q belongs to city %d, not %d", parent.Kind, parent.Name, parent.CityID, city.ID),
		}
	}
	c := &BizcircleCrawler{opts: opts, city: city, parent: parent, set: set}
	c.logger = opts.Logger.Named("bizcircles").With(
		zap.String("city", city.Name),
		zap.Stringer("parent_kind", parent.Kind),
		zap.String("parent", parent.Name),
	)
	return c, nil
}

// Run fetches the parent's listing, reconciles every bizcircle on it and
// commits one edge per bizcircle.
func (c *BizcircleCrawler) Run(ctx context.Context) (BizcircleResult, error) {
	if err := c.start(); err != nil {
		return BizcircleResult{}, err
	}
	defer c.finish()

	url := c.opts.Site.BizcircleListing(c.city, c.parent.Name)
	doc, err := c.opts.fetch(ctx, url)
	if err != nil {
		metrics.ObservePage(string(KindBizcircle), outcomeOf(err))
		return BizcircleResult{}, err
	}
	metrics.ObservePage(string(KindBizcircle), metrics.OutcomeSuccess)

	c.enter(PhaseExtracting)
	anchors := extract.Bizcircles(doc)
	c.logger.Debug("bizcircles extracted", zap.String("url", url), zap.Int("count", len(anchors)))

	c.enter(PhaseReconciling)
	var res BizcircleResult
	seen := make(map[int64]struct{}, len(anchors))
	for _, a := range anchors {
		row, created, err := c.opts.reconcile(ctx, BizcircleKey(c.city.ID, a.Name), Attrs{DisplayName: a.DisplayName})
		if err != nil {
			return res, fmt.Errorf("bizcircles of %s %s: %w", c.parent.Kind, c.parent.Name, err)
		}
		if _, dup := seen[row.ID]; dup {
			continue
		}
		seen[row.ID] = struct{}{}
		if err := c.opts.Store.MergeEdge(ctx, c.set, c.parent.ID, row.ID); err != nil {
			return res, fmt.Errorf("link bizcircle %s: %w", a.Name, err)
		}
		res.Discovered++
		if created {
			res.Created++
		}
		res.Bizcircles = append(res.Bizcircles, BizcircleFromRow(row))
	}
	c.logger.Info("bizcircles reconciled",
		zap.Int("discovered", res.Discovered),
		zap.Int("created", res.Created),
	)
	return res, nil
}

package crawler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/rent-house-crawler/internal/extract"
	"github.com/JakeFAU/rent-house-crawler/internal/metrics"
)

// DistrictResult reports the districts reconciled for a city.
type DistrictResult struct {
	Districts  []District
	Discovered int
	Created    int
}

// DistrictCrawler populates the districts of one city. Districts hang directly
// off the city, so no association edge is merged.
type DistrictCrawler struct {
	lifecycle
	opts Options
	city City
}

// NewDistrictCrawler builds a single-use crawler for city.
func NewDistrictCrawler(city City, opts Options) (*DistrictCrawler, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if err := validateCity(city, opts.Site); err != nil {
		return nil, err
	}
	c := &DistrictCrawler{opts: opts, city: city}
	c.logger = opts.Logger.Named("districts").With(zap.String("city", city.Name))
	return c, nil
}

// Run fetches the district listing and reconciles every district on it.
func (c *DistrictCrawler) Run(ctx context.Context) (DistrictResult, error) {
	if err := c.start(); err != nil {
		return DistrictResult{}, err
	}
	defer c.finish()

	url := c.opts.Site.DistrictListing(c.city)
	doc, err := c.opts.fetch(ctx, url)
	if err != nil {
		metrics.ObservePage(string(KindDistrict), outcomeOf(err))
		return DistrictResult{}, err
	}
	metrics.ObservePage(string(KindDistrict), metrics.OutcomeSuccess)

	c.enter(PhaseExtracting)
	anchors := extract.Districts(doc)
	c.logger.Debug("districts extracted", zap.String("url", url), zap.Int("count", len(anchors)))

	c.enter(PhaseReconciling)
	var res DistrictResult
	seen := make(map[int64]struct{}, len(anchors))
	for _, a := range anchors {
		row, created, err := c.opts.reconcile(ctx, DistrictKey(c.city.ID, a.Name), Attrs{DisplayName: a.DisplayName})
		if err != nil {
			return res, fmt.Errorf("districts of %s: %w", c.city.Name, err)
		}
		if _, dup := seen[row.ID]; dup {
			continue
		}
		seen[row.ID] = struct{}{}
		res.Discovered++
		if created {
			res.Created++
		}
		res.Districts = append(res.Districts, DistrictFromRow(row))
	}
	c.logger.Info("districts reconciled",
		zap.Int("discovered", res.Discovered),
		zap.Int("created", res.Created),
	)
	return res, nil
}

func outcomeOf(err error) string {
	if IsTransient(err) {
		return metrics.OutcomeTransient
	}
	return metrics.OutcomePermanent
}

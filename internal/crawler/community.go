package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/rent-house-crawler/internal/extract"
	"github.com/JakeFAU/rent-house-crawler/internal/metrics"
)

const layoutContentType = "text/html; charset=utf-8"

// CommunityResult reports the communities linked under one bizcircle.
type CommunityResult struct {
	Communities []Community
	Discovered  int
	Created     int
	PagesTotal  int
	PagesFailed int
	Failures    []PageFailure
}

// CommunityCrawler populates the communities of one bizcircle. Listing pages
// are fetched concurrently; their communities are linked to the bizcircle in
// a single batch once every page task has finished.
type CommunityCrawler struct {
	lifecycle
	opts      Options
	city      City
	bizcircle Bizcircle
	// inflight collapses concurrent resolves of a community listed on two pages.
	inflight singleflight.Group
}

type pageCommunity struct {
	community Community
	created   bool
}

// NewCommunityCrawler builds a single-use crawler for bizcircle.
func NewCommunityCrawler(city City, bizcircle Bizcircle, opts Options) (*CommunityCrawler, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if err := validateCity(city, opts.Site); err != nil {
		return nil, err
	}
	if bizcircle.ID <= 0 || bizcircle.Name == "" {
		return nil, &ConfigurationError{Msg: "bizcircle must be resolved before crawling"}
	}
	if bizcircle.CityID != city.ID {
		return nil, &ConfigurationError{
			Msg: fmt.Sprintf("bizcircle %q belongs to city %d, not %d", bizcircle.Name, bizcircle.CityID, city.ID),
		}
	}
	c := &CommunityCrawler{opts: opts, city: city, bizcircle: bizcircle}
	c.logger = opts.Logger.Named("communities").With(
		zap.String("city", city.Name),
		zap.String("bizcircle", bizcircle.Name),
	)
	return c, nil
}

// Run probes the page count, reconciles every listing page through a
// PagePool, then re-reads the resolved rows and merges their edges at once.
// Page failures are reported in the result; only an unreachable store fails
// the whole run. PagesTotal counts the probe page. A failed probe is returned
// as the error rather than listed in Failures.
func (c *CommunityCrawler) Run(ctx context.Context) (CommunityResult, error) {
	if err := c.start(); err != nil {
		return CommunityResult{}, err
	}
	defer c.finish()

	total, err := c.pageCount(ctx)
	if err != nil {
		return CommunityResult{PagesTotal: 1}, err
	}

	urls := c.opts.Site.CommunityPages(c.city, c.bizcircle.Name, total)
	pool := NewPagePool[pageCommunity](c.opts.MaxWorkers, string(KindCommunity), c.logger)
	fanIn := pool.Run(ctx, urls, c.page)
	c.enter(PhaseExtracting)

	res := CommunityResult{
		PagesTotal:  1 + fanIn.Pages,
		PagesFailed: len(fanIn.Failures),
		Failures:    fanIn.Failures,
	}
	if err := storageFailure(fanIn.Failures); err != nil {
		return res, err
	}

	c.enter(PhaseReconciling)
	ids := make([]int64, 0, len(fanIn.Items))
	seen := make(map[int64]struct{}, len(fanIn.Items))
	created := make(map[int64]struct{})
	for _, item := range fanIn.Items {
		row, err := c.opts.Store.Lookup(ctx, item.community.Key())
		if errors.Is(err, ErrNotFound) {
			c.logger.Warn("resolved community vanished", zap.String("community", item.community.Name))
			continue
		}
		if err != nil {
			return res, fmt.Errorf("re-attach community %s: %w", item.community.Name, err)
		}
		if item.created {
			created[row.ID] = struct{}{}
		}
		if _, dup := seen[row.ID]; dup {
			continue
		}
		seen[row.ID] = struct{}{}
		ids = append(ids, row.ID)
		res.Communities = append(res.Communities, CommunityFromRow(row))
	}
	res.Discovered = len(ids)
	res.Created = len(created)

	if len(ids) > 0 {
		if err := c.opts.Store.MergeEdges(ctx, BizcircleCommunities, c.bizcircle.ID, ids); err != nil {
			return res, fmt.Errorf("link communities of %s: %w", c.bizcircle.Name, err)
		}
	}
	c.logger.Info("communities reconciled",
		zap.Int64("bizcircle_id", c.bizcircle.ID),
		zap.Int("discovered", res.Discovered),
		zap.Int("created", res.Created),
		zap.Int("pages_total", res.PagesTotal),
		zap.Int("pages_failed", res.PagesFailed),
	)
	return res, nil
}

func (c *CommunityCrawler) pageCount(ctx context.Context) (int, error) {
	probe := c.opts.Site.CommunityListing(c.city, c.bizcircle.Name)
	doc, err := c.opts.fetch(ctx, probe)
	if err != nil {
		metrics.ObservePage(string(KindCommunity), outcomeOf(err))
		return 0, err
	}
	total, err := extract.TotalPages(doc)
	if err != nil {
		c.snapshot(ctx, probe, doc)
		metrics.ObservePage(string(KindCommunity), metrics.OutcomePermanent)
		return 0, &FetchError{Kind: Permanent, URL: probe, Err: err}
	}
	c.logger.Debug("page count", zap.String("url", probe), zap.Int("total", total))
	return total, nil
}

func (c *CommunityCrawler) page(ctx context.Context, url string) ([]pageCommunity, error) {
	doc, err := c.opts.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("phase", zap.Stringer("phase", PhaseExtracting), zap.String("url", url))
	cards := extract.Communities(doc)

	c.logger.Debug("phase", zap.Stringer("phase", PhaseReconciling), zap.String("url", url), zap.Int("cards", len(cards)))
	out := make([]pageCommunity, 0, len(cards))
	for _, card := range cards {
		key := CommunityKey(c.city.ID, card.Name)
		attrs := Attrs{DisplayName: card.DisplayName, Year: card.Year, Price: card.Price}
		v, err, shared := c.inflight.Do(key.String(), func() (any, error) {
			row, created, err := c.opts.reconcile(ctx, key, attrs)
			return pageCommunity{community: CommunityFromRow(row), created: created}, err
		})
		if err != nil {
			return nil, err
		}
		pc := v.(pageCommunity)
		if shared {
			if pc, err = c.refresh(ctx, key, attrs, pc); err != nil {
				return nil, err
			}
		}
		out = append(out, pc)
	}
	return out, nil
}

// refresh writes this page's attributes over a result resolved on behalf of
// another page, keeping last-writer-wins when both pages list the community.
func (c *CommunityCrawler) refresh(ctx context.Context, key Key, attrs Attrs, pc pageCommunity) (pageCommunity, error) {
	if pc.community.Attrs() == attrs {
		return pc, nil
	}
	row := Row{ID: pc.community.ID, Key: key, Attrs: attrs}
	if err := c.opts.Store.Update(ctx, row); err != nil {
		return pageCommunity{}, fmt.Errorf("update %s: %w", key, err)
	}
	pc.community = CommunityFromRow(row)
	return pc, nil
}

// snapshot archives a listing whose pagination marker could not be used.
func (c *CommunityCrawler) snapshot(ctx context.Context, url string, doc *html.Node) {
	if c.opts.Archive == nil || doc == nil {
		return
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		c.logger.Warn("render layout snapshot", zap.String("url", url), zap.Error(err))
		return
	}
	path := fmt.Sprintf("layout/%s/%s/%d.html", c.city.Name, c.bizcircle.Name, c.opts.Clock.Now().Unix())
	uri, err := c.opts.Archive.PutObject(ctx, path, layoutContentType, &buf)
	if err != nil {
		c.logger.Warn("store layout snapshot", zap.String("url", url), zap.Error(err))
		return
	}
	metrics.ObserveLayoutSnapshot()
	c.logger.Warn("listing layout archived", zap.String("url", url), zap.String("uri", uri))
}

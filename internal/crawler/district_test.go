package crawler_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rent-house-crawler/internal/crawler"
)

func TestDistrictCrawlerSkipsCrossReferences(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.fetcher.serve("/zufang/", districtPage("pudong", "xuhui", "pudong"))

	pacer := &mockPacer{}
	pacer.On("Wait", mock.Anything).Return(nil)
	f.opts.Pacer = pacer

	dc, err := crawler.NewDistrictCrawler(f.city, f.opts)
	require.NoError(t, err)
	require.Equal(t, crawler.PhaseIdle, dc.Phase())

	res, err := dc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawler.PhaseDone, dc.Phase())
	require.Equal(t, 2, res.Discovered)
	require.Equal(t, 2, res.Created)
	require.Len(t, res.Districts, 2)
	require.Equal(t, "pudong", res.Districts[0].Name)
	require.Equal(t, "pudong区", res.Districts[0].DisplayName)
	require.Equal(t, f.city.ID, res.Districts[0].CityID)
	pacer.AssertNumberOfCalls(t, "Wait", 1)

	count, err := f.store.Count(context.Background(), crawler.KindDistrict)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestDistrictCrawlerIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.fetcher.serve("/zufang/", districtPage("pudong", "xuhui"))

	first, err := crawler.NewDistrictCrawler(f.city, f.opts)
	require.NoError(t, err)
	a, err := first.Run(context.Background())
	require.NoError(t, err)

	second, err := crawler.NewDistrictCrawler(f.city, f.opts)
	require.NoError(t, err)
	b, err := second.Run(context.Background())
	require.NoError(t, err)

	require.Zero(t, b.Created)
	require.Equal(t, a.Districts, b.Districts)
}

func TestDistrictCrawlerIsSingleUse(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.fetcher.serve("/zufang/", districtPage("pudong"))

	dc, err := crawler.NewDistrictCrawler(f.city, f.opts)
	require.NoError(t, err)
	_, err = dc.Run(context.Background())
	require.NoError(t, err)

	_, err = dc.Run(context.Background())
	require.ErrorIs(t, err, crawler.ErrCrawlerFinished)
	require.Len(t, f.fetcher.Calls(), 1)
}

func TestDistrictCrawlerSurfacesFetchError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.fetcher.fail("/zufang/", 502)

	dc, err := crawler.NewDistrictCrawler(f.city, f.opts)
	require.NoError(t, err)
	_, err = dc.Run(context.Background())
	require.True(t, crawler.IsTransient(err))
	require.Equal(t, crawler.PhaseDone, dc.Phase())
}

func TestNewDistrictCrawlerValidatesOptions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	var cfgErr *crawler.ConfigurationError

	opts := f.opts
	opts.Fetcher = nil
	_, err := crawler.NewDistrictCrawler(f.city, opts)
	require.ErrorAs(t, err, &cfgErr)

	opts = f.opts
	opts.Store = nil
	_, err = crawler.NewDistrictCrawler(f.city, opts)
	require.ErrorAs(t, err, &cfgErr)

	opts = f.opts
	opts.MaxWorkers = -1
	_, err = crawler.NewDistrictCrawler(f.city, opts)
	require.ErrorAs(t, err, &cfgErr)

	_, err = crawler.NewDistrictCrawler(crawler.City{Name: "shanghai", Abbr: "sh"}, f.opts)
	require.ErrorAs(t, err, &cfgErr)
}

package crawler_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rent-house-crawler/internal/crawler"
)

func TestBizcircleCrawlerLinksToDistrict(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	pudong := f.district(t, "pudong")
	f.fetcher.serve("/zufang/pudong/", bizcirclePage("zhangjiang", "lujiazui"))

	bc, err := crawler.NewBizcircleCrawler(f.city, crawler.DistrictParent(pudong), f.opts)
	require.NoError(t, err)
	res, err := bc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, res.Discovered)
	require.Equal(t, 2, res.Created)

	children, err := f.store.Children(context.Background(), crawler.DistrictBizcircles, pudong.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{res.Bizcircles[0].ID, res.Bizcircles[1].ID}, children)

	lines, err := f.store.Children(context.Background(), crawler.LineBizcircles, pudong.ID)
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestBizcircleCrawlerLinksToLine(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	row, _, err := f.store.Resolve(context.Background(), crawler.LineKey(f.city.ID, "li2"), crawler.Attrs{DisplayName: "2号线"})
	require.NoError(t, err)
	line := crawler.LineFromRow(row)
	f.fetcher.serve("/zufang/li2/", bizcirclePage("zhangjiang"))

	bc, err := crawler.NewBizcircleCrawler(f.city, crawler.LineParent(line), f.opts)
	require.NoError(t, err)
	res, err := bc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Bizcircles, 1)

	children, err := f.store.Children(context.Background(), crawler.LineBizcircles, line.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{res.Bizcircles[0].ID}, children)
}

func TestBizcircleCrawlerSharedAcrossDistricts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	pudong := f.district(t, "pudong")
	xuhui := f.district(t, "xuhui")
	f.fetcher.serve("/zufang/pudong/", bizcirclePage("zhangjiang"))
	f.fetcher.serve("/zufang/xuhui/", bizcirclePage("zhangjiang"))

	var ids []int64
	for _, d := range []crawler.District{pudong, xuhui} {
		bc, err := crawler.NewBizcircleCrawler(f.city, crawler.DistrictParent(d), f.opts)
		require.NoError(t, err)
		res, err := bc.Run(context.Background())
		require.NoError(t, err)
		ids = append(ids, res.Bizcircles[0].ID)
	}
	require.Equal(t, ids[0], ids[1])

	count, err := f.store.Count(context.Background(), crawler.KindBizcircle)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestNewBizcircleCrawlerRejectsUnknownParentBeforeFetching(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	var cfgErr *crawler.ConfigurationError

	_, err := crawler.NewBizcircleCrawler(f.city, crawler.Parent{ID: 7, CityID: f.city.ID, Name: "pudong"}, f.opts)
	require.ErrorAs(t, err, &cfgErr)

	_, err = crawler.NewBizcircleCrawler(f.city, crawler.Parent{Kind: crawler.ParentDistrict, Name: "pudong", CityID: f.city.ID}, f.opts)
	require.ErrorAs(t, err, &cfgErr)

	_, err = crawler.NewBizcircleCrawler(f.city, crawler.Parent{Kind: crawler.ParentLine, ID: 3, Name: "li2", CityID: f.city.ID + 1}, f.opts)
	require.ErrorAs(t, err, &cfgErr)

	require.Empty(t, f.fetcher.Calls())
}

func TestBizcircleCrawlerSurfacesStorageFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	pudong := f.district(t, "pudong")
	f.fetcher.serve("/zufang/pudong/", bizcirclePage("zhangjiang"))
	require.NoError(t, f.store.Close())

	bc, err := crawler.NewBizcircleCrawler(f.city, crawler.DistrictParent(pudong), f.opts)
	require.NoError(t, err)
	_, err = bc.Run(context.Background())
	require.ErrorIs(t, err, crawler.ErrStorageUnavailable)
}

package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rent-house-crawler/internal/crawler"
)

func openStore(t *testing.T) *EntityStore {
	t.Helper()
	store, err := Open(context.Background(), Config{Path: MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedCity(t *testing.T, store *EntityStore) int64 {
	t.Helper()
	row, _, err := store.Resolve(context.Background(), crawler.CityKey("shanghai"), crawler.Attrs{DisplayName: "Shanghai", Abbr: "sh"})
	require.NoError(t, err)
	return row.ID
}

func TestResolveIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openStore(t)
	cityID := seedCity(t, store)

	key := crawler.CommunityKey(cityID, "5011000012345")
	first, created, err := store.Resolve(ctx, key, crawler.Attrs{DisplayName: "Lakeside", Year: 1998, Price: 380})
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := store.Resolve(ctx, key, crawler.Attrs{DisplayName: "other"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first, second)

	city, err := store.Lookup(ctx, crawler.CityKey("shanghai"))
	require.NoError(t, err)
	require.Equal(t, "sh", city.Attrs.Abbr)
}

func TestResolveConcurrentSameKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openStore(t)
	cityID := seedCity(t, store)
	key := crawler.BizcircleKey(cityID, "zhangjiang")

	const workers = 16
	ids := make([]int64, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			row, _, err := store.Resolve(ctx, key, crawler.Attrs{DisplayName: "Zhangjiang"})
			require.NoError(t, err)
			ids[i] = row.ID
		}()
	}
	wg.Wait()
	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
	n, err := store.Count(ctx, crawler.KindBizcircle)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestUpdateLastWriterWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openStore(t)
	cityID := seedCity(t, store)

	row, _, err := store.Resolve(ctx, crawler.CommunityKey(cityID, "c1"), crawler.Attrs{DisplayName: "c1", Year: 1970})
	require.NoError(t, err)
	row.Attrs.Year = 2004
	row.Attrs.Price = 520
	require.NoError(t, store.Update(ctx, row))

	got, err := store.Lookup(ctx, row.Key)
	require.NoError(t, err)
	require.Equal(t, 2004, got.Attrs.Year)
	require.Equal(t, 520, got.Attrs.Price)

	_, err = store.Lookup(ctx, crawler.CommunityKey(cityID, "missing"))
	require.ErrorIs(t, err, crawler.ErrNotFound)
}

func TestMergeEdgesHasNoDuplicates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openStore(t)
	cityID := seedCity(t, store)

	biz, _, err := store.Resolve(ctx, crawler.BizcircleKey(cityID, "zhangjiang"), crawler.Attrs{})
	require.NoError(t, err)
	var ids []int64
	for _, name := range []string{"a", "b", "c"} {
		row, _, err := store.Resolve(ctx, crawler.CommunityKey(cityID, name), crawler.Attrs{})
		require.NoError(t, err)
		ids = append(ids, row.ID)
	}

	require.NoError(t, store.MergeEdge(ctx, crawler.BizcircleCommunities, biz.ID, ids[0]))
	require.NoError(t, store.MergeEdges(ctx, crawler.BizcircleCommunities, biz.ID, ids))
	require.NoError(t, store.MergeEdges(ctx, crawler.BizcircleCommunities, biz.ID, ids))

	children, err := store.Children(ctx, crawler.BizcircleCommunities, biz.ID)
	require.NoError(t, err)
	require.Equal(t, ids, children)
}

func TestMergeEdgesRejectsUnknownRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openStore(t)

	err := store.MergeEdges(ctx, crawler.DistrictBizcircles, 41, []int64{42})
	require.Error(t, err)
	require.NotErrorIs(t, err, crawler.ErrStorageUnavailable)
}

func TestFlats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openStore(t)
	cityID := seedCity(t, store)

	_, err := store.AddFlat(ctx, crawler.Flat{CommunityID: 999})
	require.ErrorIs(t, err, crawler.ErrNotFound)

	c, _, err := store.Resolve(ctx, crawler.CommunityKey(cityID, "c1"), crawler.Attrs{})
	require.NoError(t, err)
	flat, err := store.AddFlat(ctx, crawler.Flat{CommunityID: c.ID, Floor: 12, FloorTotal: 30, Size: 88.5, Rooms: 3, Bathrooms: 2, Cost: 9800, WholeRent: true})
	require.NoError(t, err)

	flats, err := store.Flats(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, []crawler.Flat{flat}, flats)
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	t.Parallel()
	store, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "data", "rent.db")})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, _, err = store.Resolve(context.Background(), crawler.CityKey("shanghai"), crawler.Attrs{})
	require.ErrorIs(t, err, crawler.ErrStorageUnavailable)
	require.NoError(t, store.Close())
}

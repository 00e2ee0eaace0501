package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/rent-house-crawler/internal/config"
	"github.com/JakeFAU/rent-house-crawler/internal/crawler"
	"github.com/JakeFAU/rent-house-crawler/internal/storage/sqlite"
)

func TestOpenStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mem, err := openStore(ctx, config.StoreConfig{Driver: config.StoreMemory})
	require.NoError(t, err)
	require.NoError(t, mem.Close())

	lite, err := openStore(ctx, config.StoreConfig{Driver: config.StoreSQLite, SQLitePath: sqlite.MemoryPath})
	require.NoError(t, err)
	require.NoError(t, lite.Close())

	_, err = openStore(ctx, config.StoreConfig{Driver: "mysql"})
	require.ErrorContains(t, err, "unknown store driver")
}

func TestOpenArchive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	none, closeFn, err := openArchive(ctx, config.ArchiveConfig{Driver: config.ArchiveNone})
	require.NoError(t, err)
	require.Nil(t, none)
	require.NoError(t, closeFn())

	mem, _, err := openArchive(ctx, config.ArchiveConfig{Driver: config.ArchiveMemory})
	require.NoError(t, err)
	require.NotNil(t, mem)

	dir := filepath.Join(t.TempDir(), "layout")
	disk, _, err := openArchive(ctx, config.ArchiveConfig{Driver: config.ArchiveLocal, LocalDir: dir})
	require.NoError(t, err)
	require.NotNil(t, disk)

	_, _, err = openArchive(ctx, config.ArchiveConfig{Driver: "s3"})
	require.ErrorContains(t, err, "unknown archive driver")
}

func TestOpenPublisherDisabledWithoutTopic(t *testing.T) {
	t.Parallel()
	pub, closeFn, err := openPublisher(context.Background(), config.PubSubConfig{})
	require.NoError(t, err)
	require.Nil(t, pub)
	require.NoError(t, closeFn())
}

func TestResolveCityRefreshesAttributes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, err := openStore(ctx, config.StoreConfig{Driver: config.StoreMemory})
	require.NoError(t, err)

	first, err := resolveCity(ctx, store, config.CityConfig{Name: "shanghai", DisplayName: "上海", Abbr: "sh"}, zap.NewNop())
	require.NoError(t, err)
	require.Positive(t, first.ID)

	second, err := resolveCity(ctx, store, config.CityConfig{Name: "shanghai", DisplayName: "上海市", Abbr: "sh"}, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "上海市", second.DisplayName)

	row, err := store.Lookup(ctx, crawler.CityKey("shanghai"))
	require.NoError(t, err)
	require.Equal(t, "上海市", row.Attrs.DisplayName)
}

package main

import (
	"context"
	"fmt"

	gpubsub "cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/rent-house-crawler/internal/config"
	"github.com/JakeFAU/rent-house-crawler/internal/crawler"
	pubsubpublisher "github.com/JakeFAU/rent-house-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/rent-house-crawler/internal/storage/gcs"
	"github.com/JakeFAU/rent-house-crawler/internal/storage/local"
	"github.com/JakeFAU/rent-house-crawler/internal/storage/memory"
	"github.com/JakeFAU/rent-house-crawler/internal/storage/postgres"
	"github.com/JakeFAU/rent-house-crawler/internal/storage/sqlite"
)

func noopClose() error { return nil }

func openStore(ctx context.Context, cfg config.StoreConfig) (crawler.EntityStore, error) {
	switch cfg.Driver {
	case config.StoreMemory:
		return memory.NewEntityStore(), nil
	case config.StoreSQLite:
		s, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.SQLitePath})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StorePostgres:
		s, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.PostgresDSN,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
		})
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func openArchive(ctx context.Context, cfg config.ArchiveConfig) (crawler.BlobStore, func() error, error) {
	switch cfg.Driver {
	case config.ArchiveNone, "":
		return nil, noopClose, nil
	case config.ArchiveMemory:
		return memory.NewBlobStore(), noopClose, nil
	case config.ArchiveLocal:
		s, err := local.New(local.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, nil, err
		}
		return s, noopClose, nil
	case config.ArchiveGCS:
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("gcs client: %w", err)
		}
		s, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket, Prefix: cfg.Prefix})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return s, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
}

func openPublisher(ctx context.Context, cfg config.PubSubConfig) (crawler.Publisher, func() error, error) {
	if cfg.TopicName == "" {
		return nil, noopClose, nil
	}
	client, err := gpubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	pub := pubsubpublisher.New(client)
	return pub, func() error {
		pub.Close()
		return client.Close()
	}, nil
}

// resolveCity gets or creates the configured city and refreshes its
// display name and abbreviation.
func resolveCity(ctx context.Context, store crawler.EntityStore, cfg config.CityConfig, logger *zap.Logger) (crawler.City, error) {
	attrs := crawler.Attrs{DisplayName: cfg.DisplayName, Abbr: cfg.Abbr}
	row, created, err := store.Resolve(ctx, crawler.CityKey(cfg.Name), attrs)
	if err != nil {
		return crawler.City{}, fmt.Errorf("resolve city %s: %w", cfg.Name, err)
	}
	if !created && row.Attrs != attrs {
		row.Attrs = attrs
		if err := store.Update(ctx, row); err != nil {
			return crawler.City{}, fmt.Errorf("update city %s: %w", cfg.Name, err)
		}
	}
	logger.Info("city resolved", zap.String("city", cfg.Name), zap.Int64("city_id", row.ID), zap.Bool("created", created))
	return crawler.CityFromRow(row), nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/rent-house-crawler/internal/config"
	"github.com/JakeFAU/rent-house-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/rent-house-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/rent-house-crawler/internal/id/uuid"
	"github.com/JakeFAU/rent-house-crawler/internal/logging"
	"github.com/JakeFAU/rent-house-crawler/internal/metrics"
	"github.com/JakeFAU/rent-house-crawler/internal/telemetry"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("crawl failed", zap.Error(err))
	}
	if syncErr := logger.Sync(); syncErr != nil {
		fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
	}
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	metrics.Init()
	tp, err := telemetry.InitTracerProvider(ctx, "rentcrawler")
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("shutdown tracer provider", zap.Error(err))
		}
	}()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}()

	archive, closeArchive, err := openArchive(ctx, cfg.Archive)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer closeQuietly(logger, "archive", closeArchive)

	publisher, closePublisher, err := openPublisher(ctx, cfg.PubSub)
	if err != nil {
		return fmt.Errorf("open publisher: %w", err)
	}
	defer closeQuietly(logger, "publisher", closePublisher)

	site, err := crawler.NewSite(cfg.Site.Platform, cfg.Site.BaseURL)
	if err != nil {
		return err
	}
	city, err := resolveCity(ctx, store, cfg.City, logger)
	if err != nil {
		return err
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.FetchTimeout(),
		Headers:   http.Header{"Accept-Language": {"zh-CN,zh;q=0.9"}},
	})

	walker, err := crawler.NewWalker(crawler.Options{
		Fetcher:    fetcher,
		Store:      store,
		Site:       site,
		Pacer:      crawler.NewRandomDelay(cfg.Crawler.MaxDelay),
		Archive:    archive,
		Logger:     logger,
		MaxWorkers: cfg.Crawler.MaxWorkers,
	}, crawler.WalkerConfig{
		Publisher: publisher,
		Topic:     cfg.PubSub.TopicName,
		IDs:       uuid.New(),
	})
	if err != nil {
		return err
	}

	srv := serveMetrics(cfg.Metrics.Addr, logger)
	defer shutdownMetrics(srv, logger)

	summary, err := walker.Walk(ctx, city)
	if err != nil {
		return err
	}
	logger.Info("crawl complete",
		zap.String("run_id", summary.RunID),
		zap.Int("communities", summary.Communities),
		zap.Int("pages_failed", summary.PagesFailed),
	)
	return nil
}

func serveMetrics(addr string, logger *zap.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return srv
}

func shutdownMetrics(srv *http.Server, logger *zap.Logger) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("metrics server shutdown error", zap.Error(err))
	}
}

func closeQuietly(logger *zap.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Warn("close "+name, zap.Error(err))
	}
}

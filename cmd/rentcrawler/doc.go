// Package main runs one crawl of a city's rental listing hierarchy.
//
// Architecture overview:
//   - Configuration: internal/config loads an optional .env file, a config file given by -config and
//     CRAWLER_* environment overrides through Viper, then validates the result.
//   - Store: the entity store is memory, SQLite or Postgres (store.driver). Tables are created on start.
//   - Walk: crawler.Walker resolves districts, bizcircles and communities under the configured city. Community
//     listing pages are fetched by a bounded page pool sized by crawler.max_workers; a random delay of up to
//     crawler.max_delay precedes every fetch.
//   - Archive & fanout: listings whose pagination marker is unusable are snapshotted to the archive (memory,
//     local directory or GCS). The walk summary is published to Pub/Sub when pubsub.topic_name is set.
//   - Observability: zap logs carry the run ID, city and URLs; Prometheus metrics and /healthz are served on
//     metrics.addr while the walk runs.
//
// Operational notes:
//   - SIGINT/SIGTERM cancels the walk. Pages already reconciled stay committed; the summary is still published.
//   - Exit status is non-zero when the store is unreachable or configuration is invalid. Page failures only
//     mark the walk partial.
//
// Run locally: go run ./cmd/rentcrawler -config config.yaml
package main

// Package crawler implements the hierarchical crawl-and-reconcile engine:
// typed entities and natural keys, the EntityStore contract, the district,
// bizcircle and community crawlers, the bounded page pool and the walker
// that drives a whole city.
package crawler

// Package collyfetcher implements crawler.PageFetcher using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html"

	"github.com/JakeFAU/rent-house-crawler/internal/crawler"
)

// DefaultTimeout bounds one fetch when Config.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Headers are added to every request.
	Headers http.Header
}

// Fetcher implements crawler.PageFetcher. Each call clones a base collector,
// so concurrent fetches share the transport but no callbacks.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	// Clones share the backend client; the timeout is set once here.
	c.SetRequestTimeout(cfg.Timeout)
	return &Fetcher{cfg: cfg, baseCollector: c}
}

type page struct {
	status int
	body   []byte
	err    error
}

// Fetch retrieves url and parses it. Connection failures, timeouts and
// non-2xx statuses are transient; empty or unparseable bodies are permanent.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*html.Node, error) {
	var result page
	collector := f.buildCollector(ctx)
	f.configureCollectorHooks(collector, &result)

	if err := f.runCollector(ctx, collector, url, &result); err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(result.body)) == 0 {
		return nil, &crawler.FetchError{
			Kind: crawler.Permanent, URL: url, StatusCode: result.status, Err: errors.New("empty body"),
		}
	}
	doc, err := htmlquery.Parse(bytes.NewReader(result.body))
	if err != nil {
		return nil, &crawler.FetchError{
			Kind: crawler.Permanent, URL: url, StatusCode: result.status, Err: fmt.Errorf("parse html: %w", err),
		}
	}
	return doc, nil
}

func (f *Fetcher) buildCollector(ctx context.Context) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *page) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range f.cfg.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.status = r.StatusCode
		result.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.status = r.StatusCode
		}
		result.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, result *page) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return &crawler.FetchError{Kind: crawler.Transient, URL: url, Err: fmt.Errorf("colly fetch canceled: %w", ctx.Err())}
	case err := <-done:
		if result.err != nil {
			err = result.err
		}
		if err != nil {
			return &crawler.FetchError{Kind: crawler.Transient, URL: url, StatusCode: result.status, Err: err}
		}
		if result.status < http.StatusOK || result.status >= http.StatusMultipleChoices {
			return &crawler.FetchError{
				Kind: crawler.Transient, URL: url, StatusCode: result.status, Err: fmt.Errorf("unexpected status %d", result.status),
			}
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
	}
}

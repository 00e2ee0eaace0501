package crawler_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/JakeFAU/rent-house-crawler/internal/crawler"
	"github.com/JakeFAU/rent-house-crawler/internal/storage/memory"
)

const baseURL = "http://listings.test"

// fakeFetcher serves canned pages by URL. Unknown URLs answer 404.
type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	errs   map[string]error
	panics map[string]bool
	calls  []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: map[string]string{}, errs: map[string]error{}, panics: map[string]bool{}}
}

func (f *fakeFetcher) serve(path, body string) { f.pages[baseURL+path] = body }

func (f *fakeFetcher) fail(path string, status int) {
	url := baseURL + path
	f.errs[url] = &crawler.FetchError{Kind: crawler.Transient, URL: url, StatusCode: status, Err: errors.New("upstream error")}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*html.Node, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	body, ok := f.pages[url]
	err := f.errs[url]
	boom := f.panics[url]
	f.mu.Unlock()

	if boom {
		panic("fixture panic for " + url)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &crawler.FetchError{Kind: crawler.Transient, URL: url, StatusCode: 404, Err: errors.New("not found")}
	}
	return htmlquery.Parse(strings.NewReader(body))
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type mockPacer struct {
	mock.Mock
}

func (m *mockPacer) Wait(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testTime = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	fetcher *fakeFetcher
	store   *memory.EntityStore
	archive *memory.BlobStore
	city    crawler.City
	opts    crawler.Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	site, err := crawler.NewSite("", baseURL)
	require.NoError(t, err)

	store := memory.NewEntityStore()
	row, _, err := store.Resolve(context.Background(), crawler.CityKey("shanghai"), crawler.Attrs{DisplayName: "上海", Abbr: "sh"})
	require.NoError(t, err)

	f := &fixture{
		fetcher: newFakeFetcher(),
		store:   store,
		archive: memory.NewBlobStore(),
		city:    crawler.CityFromRow(row),
	}
	f.opts = crawler.Options{
		Fetcher:    f.fetcher,
		Store:      store,
		Site:       site,
		Archive:    f.archive,
		Clock:      fixedClock{t: testTime},
		MaxWorkers: 3,
	}
	return f
}

func (f *fixture) bizcircle(t *testing.T, name string) crawler.Bizcircle {
	t.Helper()
	row, _, err := f.store.Resolve(context.Background(), crawler.BizcircleKey(f.city.ID, name), crawler.Attrs{DisplayName: name})
	require.NoError(t, err)
	return crawler.BizcircleFromRow(row)
}

func (f *fixture) district(t *testing.T, name string) crawler.District {
	t.Helper()
	row, _, err := f.store.Resolve(context.Background(), crawler.DistrictKey(f.city.ID, name), crawler.Attrs{DisplayName: name})
	require.NoError(t, err)
	return crawler.DistrictFromRow(row)
}

func filterPage(level string, links ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="filter"><ul data-target="area">`)
	b.WriteString(fmt.Sprintf(`<li class="filter__item--%s"><a href="/zufang/" rel="nofollow">不限</a></li>`, level))
	for _, name := range links {
		b.WriteString(fmt.Sprintf(`<li class="filter__item--%s"><a href="/zufang/%s/">%s区</a></li>`, level, name, name))
	}
	b.WriteString(`</ul></div></body></html>`)
	return b.String()
}

func districtPage(names ...string) string { return filterPage("level2", names...) }

func bizcirclePage(names ...string) string { return filterPage("level4", names...) }

func probePage(total int) string {
	return fmt.Sprintf(`<html><body><div class="page-box house-lst-page-box" page-data='{"totalPage":%d,"curPage":1}'></div></body></html>`, total)
}

type card struct {
	name  string
	year  int
	price int
}

func communityPage(cards ...card) string {
	var b strings.Builder
	b.WriteString(`<html><body><ul class="listContent">`)
	for _, c := range cards {
		b.WriteString(fmt.Sprintf(`<li class="clear xiaoquListItem">`+
			`<div class="info"><div class="title"><a href="https://sh.lianjia.com/xiaoqu/%s/">%s花园</a></div>`+
			`<div class="positionInfo"><a class="district">浦东</a>&nbsp;<a class="bizcircle">张江</a>&nbsp;/板楼&nbsp;%d年建成</div></div>`+
			`<div class="xiaoquListItemRight"><div class="xiaoquListItemPrice"><div class="totalPrice"><span>%d</span>元/m2</div></div></div>`+
			`</li>`, c.name, c.name, c.year, c.price))
	}
	b.WriteString(`</ul></body></html>`)
	return b.String()
}

package discover

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/XSpiritWizardX/product-scraper/internal/broker"
	"github.com/XSpiritWizardX/product-scraper/internal/classify"
	"github.com/XSpiritWizardX/product-scraper/internal/frontier"
	"github.com/XSpiritWizardX/product-scraper/internal/model"
	"github.com/XSpiritWizardX/product-scraper/internal/table"
	"github.com/XSpiritWizardX/product-scraper/internal/telemetry"
)

// fakeRenderer serves canned HTML per URL and counts fetches. URLs without
// a page return an error, like a 404 would.
type fakeRenderer struct {
	pages   map[string]string
	fetches int
}

func (f *fakeRenderer) Render(_ context.Context, url string) (*model.RenderResult, error) {
	f.fetches++
	html, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("no page at %s", url)
	}
	return &model.RenderResult{
		FullURL:    url,
		FullHTML:   html,
		StatusCode: 200,
		Mechanism:  "fake",
	}, nil
}

func newDiscoverer(t *testing.T, seed string, maxPages int, r *fakeRenderer) (*Discoverer, *table.Accumulator) {
	t.Helper()
	front := frontier.New(maxPages)
	require.NoError(t, front.Seed(seed))
	tables := table.NewAccumulator()
	return &Discoverer{
		Frontier:   front,
		Renderer:   r,
		Classifier: classify.New(),
		Tables:     tables,
		Limiter:    rate.NewLimiter(rate.Inf, 1),
		DLQ:        broker.NewKafkaDLQ("test", nil),
		Metrics:    telemetry.NoopMetrics(),
		BaseHost:   "example.com",
	}, tables
}

func TestRunCrawlsSameOriginGraph(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{
		"https://example.com": `<html><body>
			<a href="/p/knife">Knife</a>
			<a href="/b/hello">Hello</a>
			<a href="https://other.com/x">elsewhere</a>
			</body></html>`,
		"https://example.com/p/knife": `<html><head><title>Knife</title></head>
			<body><p>Add to cart</p></body></html>`,
		"https://example.com/b/hello": `<html><head><title>Hello</title></head>
			<body><p>Our blog, first entry.</p></body></html>`,
	}}
	d, tables := newDiscoverer(t, "https://example.com", 0, r)

	result, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.PagesScraped)
	assert.Equal(t, 3, r.fetches, "the cross-origin link is never fetched")
	assert.Equal(t, []string{
		"https://example.com",
		"https://example.com/p/knife",
		"https://example.com/b/hello",
	}, result.DiscoveredURLs)

	assert.Equal(t, 1, tables.Len("other"))
	assert.Equal(t, 1, tables.Len("products"))
	assert.Equal(t, 1, tables.Len("blogs"))
	assert.Equal(t, 3, tables.Len(TableLinks), "external links are inventoried, not crawled")
}

func TestRunRespectsPageCap(t *testing.T) {
	pages := map[string]string{
		"https://example.com": `<a href="/p/1">1</a><a href="/p/2">2</a><a href="/p/3">3</a>`,
	}
	for i := 1; i <= 3; i++ {
		pages[fmt.Sprintf("https://example.com/p/%d", i)] = "<html><body>page</body></html>"
	}
	r := &fakeRenderer{pages: pages}
	d, _ := newDiscoverer(t, "https://example.com", 2, r)

	result, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.PagesScraped)
	assert.Equal(t, 2, r.fetches)
	assert.Len(t, result.DiscoveredURLs, 4, "discovery keeps recording past the cap")
}

func TestRunContinuesPastFetchFailures(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{
		"https://example.com":    `<a href="/broken">x</a><a href="/ok">y</a>`,
		"https://example.com/ok": "<html><body>fine</body></html>",
	}}
	d, _ := newDiscoverer(t, "https://example.com", 0, r)

	result, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.PagesScraped)
	assert.Equal(t, 3, r.fetches, "the broken URL was attempted exactly once")
}

func TestRunStopsOnCancellation(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{
		"https://example.com": `<a href="/a">a</a>`,
	}}
	d, _ := newDiscoverer(t, "https://example.com", 0, r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := d.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, result.PagesScraped)
}

func TestRunAccumulatesAssetInventories(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{
		"https://example.com": `<html><body>
			<a href="/files/guide.pdf">Guide</a>
			<img src="/logo.png" alt="logo">
			</body></html>`,
		"https://example.com/files/guide.pdf": "irrelevant",
	}}
	d, tables := newDiscoverer(t, "https://example.com", 1, r)

	_, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, tables.Len(TableLinks))
	assert.Equal(t, 1, tables.Len(TableImages))
	assert.Equal(t, 1, tables.Len(TableDownloads))

	columns, rows := tables.Flush(TableDownloads)
	assert.Equal(t, []string{"source_url", "download_url", "download_kind"}, columns)
	require.Len(t, rows, 1)
	assert.Equal(t, "https://example.com/files/guide.pdf", rows[0][1])
}

func TestRunCollectsPageTextsAndSiteWideAssets(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{
		"https://example.com": `<html><body>
			<p>Welcome home.</p>
			<a href="/files/b.pdf">B</a>
			<a href="/files/a.pdf">A</a>
			<img src="/z.png"><img src="/y.png">
			</body></html>`,
	}}
	d, tables := newDiscoverer(t, "https://example.com", 1, r)

	result, err := d.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.PageTexts, 1)
	assert.Equal(t, "page_texts/index.txt", result.PageTexts[0].Path)
	assert.Equal(t, "Welcome home. B A", result.PageTexts[0].Text)

	assert.Equal(t, []string{
		"https://example.com/files/a.pdf",
		"https://example.com/files/b.pdf",
	}, result.AllLinks, "site-wide link targets are unique and sorted")
	assert.Equal(t, []string{
		"https://example.com/y.png",
		"https://example.com/z.png",
	}, result.AllImages)
	assert.Equal(t, result.AllLinks, result.AllDownloads, "both anchors point at files")

	columns, rows := tables.Flush("other")
	require.Len(t, rows, 1)
	require.NotEmpty(t, columns)
	assert.Equal(t, "TextFile", columns[len(columns)-1])
	assert.Equal(t, "page_texts/index.txt", rows[0][len(columns)-1])
}

func TestPagesWithoutTextGetNoTextFile(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{
		"https://example.com": "<html><body><img src=\"/a.png\"></body></html>",
	}}
	d, tables := newDiscoverer(t, "https://example.com", 0, r)

	result, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.PageTexts)

	columns, _ := tables.Flush("other")
	assert.NotContains(t, columns, "TextFile")
}

var errBoom = errors.New("boom")

// failingRenderer always errors without the context being cancelled.
type failingRenderer struct{}

func (failingRenderer) Render(context.Context, string) (*model.RenderResult, error) {
	return nil, errBoom
}

func TestRunFinishesWhenEveryFetchFails(t *testing.T) {
	front := frontier.New(0)
	require.NoError(t, front.Seed("https://example.com"))
	d := &Discoverer{
		Frontier:   front,
		Renderer:   failingRenderer{},
		Classifier: classify.New(),
		Tables:     table.NewAccumulator(),
		Limiter:    rate.NewLimiter(rate.Inf, 1),
		DLQ:        broker.NewKafkaDLQ("test", nil),
		Metrics:    telemetry.NoopMetrics(),
		BaseHost:   "example.com",
	}

	result, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.PagesScraped)
	assert.Equal(t, []string{"https://example.com"}, result.DiscoveredURLs)
}

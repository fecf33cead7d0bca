package discover

import (
	"context"
	"log/slog"
	"sort"

	"github.com/XSpiritWizardX/product-scraper/internal/broker"
	"github.com/XSpiritWizardX/product-scraper/internal/classify"
	"github.com/XSpiritWizardX/product-scraper/internal/extract"
	"github.com/XSpiritWizardX/product-scraper/internal/frontier"
	"github.com/XSpiritWizardX/product-scraper/internal/model"
	"github.com/XSpiritWizardX/product-scraper/internal/persistence"
	"github.com/XSpiritWizardX/product-scraper/internal/render"
	"github.com/XSpiritWizardX/product-scraper/internal/table"
	"github.com/XSpiritWizardX/product-scraper/internal/telemetry"
	"golang.org/x/time/rate"
)

// Reserved table names for the asset inventories. Prefixed so a page type
// named "links" or "images" cannot collide with them on disk.
const (
	TableLinks     = "page_links"
	TableImages    = "page_images"
	TableDownloads = "page_downloads"
)

// Discoverer drains the frontier one page at a time: fetch, extract,
// classify, accumulate, offer the page's links back. One fetch in flight
// per site, with the politeness delay between consecutive attempts; this is
// backpressure for the target server, not a performance knob.
type Discoverer struct {
	Frontier   *frontier.Frontier
	Renderer   render.Renderer
	Classifier *classify.Classifier
	Tables     *table.Accumulator
	Limiter    *rate.Limiter
	DLQ        *broker.KafkaDLQClient
	Metrics    *telemetry.AppMetrics
	BaseHost   string

	pageTexts    []PageText
	allLinks     map[string]struct{}
	allImages    map[string]struct{}
	allDownloads map[string]struct{}
}

// PageText is one page's visible text with its relative output path; the
// path is also the page's TextFile field value.
type PageText struct {
	Path string
	Text string
}

type Result struct {
	PagesScraped   int
	DiscoveredURLs []string
	PageTexts      []PageText
	AllLinks       []string // unique link targets across the site, sorted
	AllImages      []string
	AllDownloads   []string
}

// Run crawls until the frontier is exhausted or the page cap is reached.
// A failed fetch logs a warning and moves on; only cancellation returns a
// non-nil error, together with the result built so far.
func (d *Discoverer) Run(ctx context.Context) (*Result, error) {
	result := &Result{}
	for {
		url, ok := d.Frontier.Next()
		if !ok {
			break
		}
		d.Frontier.MarkVisited(url)

		if err := d.Limiter.Wait(ctx); err != nil {
			return d.finish(result), ctx.Err()
		}

		slog.Info("crawling.", slog.String("url", url))
		rendered, err := d.Renderer.Render(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return d.finish(result), ctx.Err()
			}
			slog.Warn("fetch failed.", slog.String("url", url), slog.String("err", err.Error()))
			d.DLQ.SendUrlToDLQ(url, err)
			d.Metrics.FetchFailuresCounter(1)
			continue
		}

		if err := d.processPage(url, rendered); err != nil {
			slog.Warn("page processing failed.", slog.String("url", url),
				slog.String("err", err.Error()))
			d.DLQ.SendUrlToDLQ(url, err)
			d.Metrics.FetchFailuresCounter(1)
			continue
		}
		result.PagesScraped++
		d.Metrics.PagesCrawledCounter(1)
	}
	return d.finish(result), nil
}

func (d *Discoverer) finish(result *Result) *Result {
	result.DiscoveredURLs = d.Frontier.Discovered()
	result.PageTexts = d.pageTexts
	result.AllLinks = sortedKeys(d.allLinks)
	result.AllImages = sortedKeys(d.allImages)
	result.AllDownloads = sortedKeys(d.allDownloads)
	return result
}

// collect adds a row's target URL (second field of every asset row) to the
// site-wide set.
func collect(set map[string]struct{}, row []model.Field) map[string]struct{} {
	if set == nil {
		set = make(map[string]struct{})
	}
	set[row[1].Value] = struct{}{}
	return set
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (d *Discoverer) processPage(url string, rendered *model.RenderResult) error {
	doc, err := extract.Parse(rendered.FullHTML)
	if err != nil {
		return err
	}
	text := extract.VisibleText(doc)
	contentType := d.Classifier.Classify(url, rendered.FullHTML, text, doc)
	pageData := extract.Extract(url, contentType, doc, text, d.BaseHost)

	fields := pageData.Fields
	if text != "" {
		if relPath := persistence.PageTextPath(url); relPath != "" {
			fields = append(fields, model.Field{Name: "TextFile", Value: relPath})
			d.pageTexts = append(d.pageTexts, PageText{Path: relPath, Text: text})
		}
	}
	record := model.PageRecord{URL: url, Type: contentType, Fields: fields}

	d.Tables.Append(string(record.Type), record.Fields)
	d.Metrics.RecordsExtractedCnt(1)
	for _, row := range pageData.LinkRows {
		d.Tables.Append(TableLinks, row)
		d.allLinks = collect(d.allLinks, row)
	}
	for _, row := range pageData.ImageRows {
		d.Tables.Append(TableImages, row)
		d.allImages = collect(d.allImages, row)
	}
	for _, row := range pageData.DownloadRows {
		d.Tables.Append(TableDownloads, row)
		d.allDownloads = collect(d.allDownloads, row)
	}

	d.Frontier.Offer(pageData.Links)
	slog.Debug("page extracted.", slog.String("url", url),
		slog.String("type", string(contentType)),
		slog.Int("links", len(pageData.LinkRows)))
	return nil
}

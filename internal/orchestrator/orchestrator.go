package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	netUrl "net/url"
	"sync"
	"time"

	"github.com/XSpiritWizardX/product-scraper/config"
	"github.com/XSpiritWizardX/product-scraper/internal/aws_s3"
	"github.com/XSpiritWizardX/product-scraper/internal/broker"
	"github.com/XSpiritWizardX/product-scraper/internal/classify"
	"github.com/XSpiritWizardX/product-scraper/internal/discover"
	"github.com/XSpiritWizardX/product-scraper/internal/frontier"
	"github.com/XSpiritWizardX/product-scraper/internal/model"
	"github.com/XSpiritWizardX/product-scraper/internal/persistence"
	"github.com/XSpiritWizardX/product-scraper/internal/render"
	"github.com/XSpiritWizardX/product-scraper/internal/table"
	"github.com/XSpiritWizardX/product-scraper/internal/telemetry"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ErrRunInProgress means another orchestrator holds the claim for this site.
var ErrRunInProgress = errors.New("a run for this site is already in progress")

// SiteClaims serializes the check-history-then-scrape sequence per site:
// two concurrent runs for the same site cannot both observe "not yet
// scraped" and duplicate the work.
type SiteClaims struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewSiteClaims() *SiteClaims {
	return &SiteClaims{inflight: make(map[string]struct{})}
}

func (c *SiteClaims) Claim(site string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[site]; busy {
		return false
	}
	c.inflight[site] = struct{}{}
	return true
}

func (c *SiteClaims) Release(site string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, site)
}

// Orchestrator runs the scrape pipeline for one site at a time: check the
// history ledger, discover and extract, persist tables, record the run.
// All mutable crawl state (frontier, tables) is scoped to a single Run call,
// so independent Orchestrators can crawl different sites concurrently.
type Orchestrator struct {
	Cfg        *config.Config
	History    persistence.HistoryStorage
	Writer     *persistence.FileWriter
	S3         aws_s3.BucketClient // nil when mirroring is disabled
	Renderer   render.Renderer
	Classifier *classify.Classifier
	DLQ        *broker.KafkaDLQClient
	Metrics    *telemetry.AppMetrics
	Claims     *SiteClaims
}

// Run scrapes one site. A previously scraped site returns a RunSkipped
// result with no fetch performed unless force_rescrape is set. The history
// entry is appended last: a failure in any earlier step leaves the ledger
// exactly as it was.
func (o *Orchestrator) Run(ctx context.Context, siteURL string) (*model.RunResult, error) {
	seed, err := netUrl.Parse(siteURL)
	if err != nil || (seed.Scheme != "http" && seed.Scheme != "https") || seed.Host == "" {
		return o.failed(siteURL), fmt.Errorf("invalid seed url %q", siteURL)
	}

	if !o.Claims.Claim(siteURL) {
		return o.failed(siteURL), ErrRunInProgress
	}
	defer o.Claims.Release(siteURL)

	prior, err := o.History.Find(ctx, siteURL)
	if err != nil {
		o.Metrics.RunsFailedCounter(1)
		return o.failed(siteURL), fmt.Errorf("history lookup: %w", err)
	}
	if prior != nil && !o.Cfg.ScraperSettings.ForceRescrape {
		slog.Info("already scraped. skipping.", slog.String("site", siteURL),
			slog.Time("scraped_at", prior.Timestamp))
		o.Metrics.RunsSkippedCounter(1)
		return &model.RunResult{SiteURL: siteURL, Status: model.RunSkipped}, nil
	}

	front := frontier.New(o.Cfg.ScraperSettings.MaxPages)
	if err := front.Seed(siteURL); err != nil {
		o.Metrics.RunsFailedCounter(1)
		return o.failed(siteURL), err
	}
	tables := table.NewAccumulator()
	disc := &discover.Discoverer{
		Frontier:   front,
		Renderer:   o.Renderer,
		Classifier: o.Classifier,
		Tables:     tables,
		Limiter:    rate.NewLimiter(rate.Every(o.Cfg.ScraperSettings.PolitenessDelay), 1),
		DLQ:        o.DLQ,
		Metrics:    o.Metrics,
		BaseHost:   seed.Host,
	}
	discovery, runErr := disc.Run(ctx)

	outputFiles, persistErr := o.persist(siteURL, tables, discovery)
	if persistErr != nil {
		o.Metrics.RunsFailedCounter(1)
		return o.failed(siteURL), fmt.Errorf("persisting output: %w", persistErr)
	}

	result := &model.RunResult{
		SiteURL:      siteURL,
		PagesScraped: discovery.PagesScraped,
		OutputFiles:  outputFiles,
	}
	if runErr != nil {
		// Cancelled mid-crawl: the processed subset is persisted, but the
		// run is not recorded so a later run picks the site up again.
		result.Status = model.RunFailed
		o.Metrics.RunsFailedCounter(1)
		return result, runErr
	}

	entry := &model.HistoryEntry{
		ID:           uuid.New().String(),
		SiteURL:      siteURL,
		Timestamp:    time.Now().UTC(),
		PagesScraped: discovery.PagesScraped,
		OutputFiles:  outputFiles,
	}
	if err := o.History.Append(ctx, entry); err != nil {
		o.Metrics.RunsFailedCounter(1)
		return o.failed(siteURL), fmt.Errorf("recording history: %w", err)
	}

	result.Status = model.RunCompleted
	o.Metrics.RunsCompletedCounter(1)
	slog.Info("site recorded in scrape history.", slog.String("site", siteURL),
		slog.Int("pages_scraped", discovery.PagesScraped),
		slog.Int("output_files", len(outputFiles)))
	return result, nil
}

func (o *Orchestrator) persist(siteURL string, tables *table.Accumulator,
	discovery *discover.Result) ([]string, error) {
	var outputFiles []string
	for _, name := range tables.Tables() {
		columns, rows := tables.Flush(name)
		path, err := o.Writer.WriteTable(siteURL, name, columns, rows)
		if err != nil {
			return nil, err
		}
		slog.Info("table written.", slog.String("table", name), slog.Int("rows", len(rows)))
		outputFiles = append(outputFiles, path)
	}
	urlPath, err := o.Writer.WriteURLList(siteURL, discovery.DiscoveredURLs)
	if err != nil {
		return nil, err
	}
	outputFiles = append(outputFiles, urlPath)

	for _, list := range []struct {
		name   string
		values []string
	}{
		{"all_links.txt", discovery.AllLinks},
		{"all_images.txt", discovery.AllImages},
		{"all_downloads.txt", discovery.AllDownloads},
	} {
		path, err := o.Writer.WriteList(siteURL, list.name, list.values)
		if err != nil {
			return nil, err
		}
		if path != "" {
			outputFiles = append(outputFiles, path)
		}
	}

	// Page text files are not listed in the ledger entry: a large site
	// would bloat output_files with one path per page.
	for _, pt := range discovery.PageTexts {
		if _, err := o.Writer.WritePageText(siteURL, pt.Path, pt.Text); err != nil {
			return nil, err
		}
	}

	if o.S3 != nil {
		for _, path := range outputFiles {
			if _, err := o.S3.UploadOutput(siteURL, path); err != nil {
				slog.Warn("s3 mirror failed.", slog.String("file", path),
					slog.String("err", err.Error()))
			}
		}
	}
	return outputFiles, nil
}

func (o *Orchestrator) failed(siteURL string) *model.RunResult {
	return &model.RunResult{SiteURL: siteURL, Status: model.RunFailed}
}

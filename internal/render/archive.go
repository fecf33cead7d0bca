package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/XSpiritWizardX/product-scraper/config"
	"github.com/XSpiritWizardX/product-scraper/internal/model"
	jsoniter "github.com/json-iterator/go"
	"github.com/karust/gogetcrawl/common"
	"github.com/karust/gogetcrawl/commoncrawl"
	"github.com/patrickmn/go-cache"
)

const indexListUrl = "https://index.commoncrawl.org/collinfo.json"

type Index struct {
	Id       string `json:"id"`
	Name     string `json:"name"`
	Timegate string `json:"timegate"`
	CdxAPI   string `json:"cdx-api"`
}

// ArchiveRenderer serves pages from the CommonCrawl web archive. It is the
// fallback when the live fetch fails; snapshots can be up to a month stale.
type ArchiveRenderer struct {
	crawler    *commoncrawl.CommonCrawl
	cfg        *config.RendererConfig
	localCache *cache.Cache
}

// NewArchiveRenderer has small request limitations on the CommonCrawl side.
func NewArchiveRenderer(cfg *config.RendererConfig) *ArchiveRenderer {
	c, err := commoncrawl.New(cfg.ArchiveTimeout, cfg.ArchiveRetries)
	if err != nil {
		slog.Error("failed to create common crawl client", slog.String("err", err.Error()))
	}
	return &ArchiveRenderer{
		crawler:    c,
		cfg:        cfg,
		localCache: cache.New(72*time.Hour, 72*time.Hour), // CommonCrawl indexes update every month
	}
}

func (r *ArchiveRenderer) Render(_ context.Context, url string) (*model.RenderResult, error) {
	slog.Info("fetching from Common Crawl.", slog.String("url", url))
	startTime := time.Now()
	if r.crawler == nil { // due to request limitations, the client may not initialize at startup
		slog.Info("connection retry to common crawl.")
		var err error
		r.crawler, err = commoncrawl.New(r.cfg.ArchiveTimeout, r.cfg.ArchiveRetries)
		if err != nil {
			return nil, fmt.Errorf("connection to common crawl failed: %w", err)
		}
	}
	result := &model.RenderResult{FullURL: url, Mechanism: r.crawler.Name()}

	indexList, err := r.getIndexes()
	if err != nil {
		return nil, err
	}
	requestCfg := common.RequestConfig{
		URL:     url,
		Filters: []string{"statuscode:200", "mimetype:text/html"},
	}

	for i := 0; i < r.cfg.ArchiveIndexes && i < len(indexList); i++ {
		p, _ := r.crawler.GetPagesIndex(requestCfg, indexList[i].Id)
		if len(p) == 0 {
			slog.Debug("no snapshots found in Common Crawl.", slog.String("url", url),
				slog.String("index", indexList[i].Id))
			continue
		}
		resp, err := r.crawler.GetFile(p[len(p)-1]) // last one is the most recent
		if err != nil {
			slog.Error("failed to get file", slog.String("err", err.Error()))
			break
		}
		body := string(resp)
		result.Title = extractTitle(&body)
		result.FullHTML = extractHtml(&body)
		result.StatusCode = http.StatusOK
		result.Status = http.StatusText(http.StatusOK)
		break
	}
	if result.FullHTML == "" || result.StatusCode == 0 {
		return nil, errors.New("no snapshots found in Common Crawl. url: " + url)
	}
	result.TimeToRender = time.Since(startTime).Milliseconds()

	return result, nil
}

func (r *ArchiveRenderer) getIndexes() ([]Index, error) {
	if i, ok := r.localCache.Get("indexes"); ok {
		return i.([]Index), nil
	}

	response, err := common.Get(indexListUrl, r.crawler.MaxTimeout, r.crawler.MaxRetries)
	if err != nil {
		return nil, err
	}

	var indexes []Index
	err = jsoniter.Unmarshal(response, &indexes)
	if err != nil {
		return indexes, err
	}
	r.localCache.Set("indexes", indexes, cache.DefaultExpiration)

	return indexes, nil
}

func extractTitle(body *string) string {
	re := regexp.MustCompile(`<title>(.*?)</title>`)
	match := re.FindStringSubmatch(*body)

	if len(match) > 1 {
		return match[1]
	}
	return ""
}

func extractHtml(body *string) string {
	re := regexp.MustCompile(`(?si)<!doctype html>.*?</html>`)
	match := re.FindStringSubmatch(*body)

	if len(match) > 0 {
		return match[0]
	}
	return ""
}

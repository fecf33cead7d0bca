package render

import (
	"context"
	"net/http"
	"time"

	"github.com/XSpiritWizardX/product-scraper/config"
	"github.com/XSpiritWizardX/product-scraper/internal/model"
	"github.com/gocolly/colly"
)

// CurlRenderer fetches pages over plain HTTP. Cheaper than the browser but
// sees no JS-rendered content; useful for static targets.
type CurlRenderer struct {
	cfg       *config.Config
	transport *http.Transport
}

func NewCurlRenderer(cfg *config.Config, transport *http.Transport) *CurlRenderer {
	return &CurlRenderer{cfg: cfg, transport: transport}
}

func (r *CurlRenderer) Render(ctx context.Context, url string) (*model.RenderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := &model.RenderResult{FullURL: url, Mechanism: "curl"}

	c := colly.NewCollector()
	c.WithTransport(r.transport)
	c.SetRequestTimeout(r.cfg.RendererSettings.FetchTimeout)
	c.UserAgent = r.cfg.RendererSettings.UserAgent

	c.OnResponse(func(resp *colly.Response) {
		result.FullHTML = string(resp.Body)
	})
	c.OnHTML("title", func(e *colly.HTMLElement) {
		result.Title = e.Text
	})
	c.OnError(func(resp *colly.Response, err error) {
		result.StatusCode = -1
		if len(err.Error()) > 1000 {
			result.Status = err.Error()[:1000]
		} else {
			result.Status = err.Error()
		}
	})

	t := time.Now()
	err := c.Visit(url)
	result.TimeToRender = time.Since(t).Milliseconds()
	if err != nil {
		return nil, err
	}
	result.StatusCode = http.StatusOK
	result.Status = http.StatusText(http.StatusOK)

	return result, nil
}

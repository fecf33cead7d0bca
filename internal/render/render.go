package render

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/XSpiritWizardX/product-scraper/config"
	"github.com/XSpiritWizardX/product-scraper/internal"
	"github.com/XSpiritWizardX/product-scraper/internal/model"
	"github.com/XSpiritWizardX/product-scraper/internal/telemetry"
	"github.com/patrickmn/go-cache"
)

// Renderer loads a URL and returns the fully rendered page. Navigation
// timeouts, network errors and renderer crashes all surface as a non-nil
// error; callers treat them as a single fetch-failed outcome.
type Renderer interface {
	Render(ctx context.Context, url string) (*model.RenderResult, error)
}

var ErrUnsupportedMechanism = errors.New("unsupported render mechanism")

// NewRenderer builds the configured render mechanism, optionally wrapped
// with the web-archive fallback and the per-run render cache.
func NewRenderer(cfg *config.Config, transport *http.Transport, metrics *telemetry.AppMetrics) (Renderer, error) {
	var primary Renderer
	switch cfg.RendererSettings.Mechanism {
	case "browser":
		primary = NewBrowserRenderer(cfg)
	case "curl":
		primary = NewCurlRenderer(cfg, transport)
	default:
		return nil, ErrUnsupportedMechanism
	}

	var archive Renderer
	if cfg.RendererSettings.ArchiveFallback {
		archive = NewArchiveRenderer(cfg.RendererSettings)
	}

	return &Service{
		primary: primary,
		archive: archive,
		metrics: metrics,
		cache:   cache.New(cfg.RendererSettings.CacheTtl, cfg.RendererSettings.CacheTtl),
	}, nil
}

// Service fronts the configured mechanism with a short-lived result cache
// and the optional CommonCrawl fallback for pages the live fetch loses.
type Service struct {
	primary Renderer
	archive Renderer
	metrics *telemetry.AppMetrics
	cache   *cache.Cache
}

func (s *Service) Render(ctx context.Context, url string) (*model.RenderResult, error) {
	key := internal.HashURL(url)
	if hit, ok := s.cache.Get(key); ok {
		return hit.(*model.RenderResult), nil
	}

	result, err := s.primary.Render(ctx, url)
	if err != nil && s.archive != nil && ctx.Err() == nil {
		slog.Warn("live fetch failed. falling back to web archive.",
			slog.String("url", url), slog.String("err", err.Error()))
		result, err = s.archive.Render(ctx, url)
		if err == nil {
			s.metrics.ArchiveFallbackCounter(1)
		}
	}
	if err != nil {
		return nil, err
	}

	s.cache.Set(key, result, cache.DefaultExpiration)
	return result, nil
}

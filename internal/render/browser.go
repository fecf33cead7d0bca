package render

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/XSpiritWizardX/product-scraper/config"
	"github.com/XSpiritWizardX/product-scraper/internal/model"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// BrowserRenderer drives a headless Chrome tab per page: navigate, wait for
// the networkIdle lifecycle event, sleep the configured settle delay for
// late JS, then snapshot the DOM.
type BrowserRenderer struct {
	cfg *config.Config
}

func NewBrowserRenderer(cfg *config.Config) *BrowserRenderer {
	return &BrowserRenderer{cfg: cfg}
}

func (r *BrowserRenderer) Render(ctx context.Context, url string) (*model.RenderResult, error) {
	startTime := time.Now()
	result := &model.RenderResult{FullURL: url, Mechanism: "headless browser"}

	tCtx, cancelTCtx := context.WithTimeout(ctx, r.cfg.RendererSettings.FetchTimeout)
	defer cancelTCtx()
	bCtx, cancel := chromedp.NewContext(tCtx)
	defer cancel()

	chromedp.ListenTarget(bCtx, func(event interface{}) {
		switch ev := event.(type) {
		case *network.EventResponseReceived:
			response := ev.Response
			if response.URL == result.FullURL || response.URL == result.FullURL+"/" {
				result.StatusCode = int(response.Status)
				if len(response.StatusText) > 1000 {
					result.Status = response.StatusText[:1000]
				} else {
					result.Status = response.StatusText
				}
			}
		case *network.EventRequestWillBeSent:
			if ev.RedirectResponse != nil {
				result.FullURL = ev.Request.URL
				slog.Info("redirected.", slog.String("url", ev.RedirectResponse.URL))
			}
		}
	})

	tasks := chromedp.Tasks{
		network.Enable(),
		network.SetExtraHTTPHeaders(map[string]interface{}{
			"User-Agent": r.cfg.RendererSettings.UserAgent,
		}),
		enableLifeCycleEvents(),
		navigateAndWaitFor(url, "networkIdle"),
	}
	if settle := r.cfg.RendererSettings.RenderSettle; settle > 0 {
		tasks = append(tasks, chromedp.Sleep(settle))
	}
	err := chromedp.Run(bCtx,
		tasks,
		chromedp.Title(&result.Title),
		chromedp.ActionFunc(func(ctx context.Context) error {
			rootNode, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			result.FullHTML, err = dom.GetOuterHTML().WithNodeID(rootNode.NodeID).Do(ctx)
			return err
		}),
	)
	result.TimeToRender = time.Since(startTime).Milliseconds()
	if err != nil {
		return nil, err
	}
	if result.StatusCode != 0 && result.StatusCode/100 != 2 {
		return nil, errors.New("error status code: " + strconv.Itoa(result.StatusCode))
	}

	return result, nil
}

func enableLifeCycleEvents() chromedp.ActionFunc {
	return func(ctx context.Context) error {
		err := page.Enable().Do(ctx)
		if err != nil {
			return err
		}
		err = page.SetLifecycleEventsEnabled(true).Do(ctx)
		if err != nil {
			return err
		}
		return nil
	}
}

func navigateAndWaitFor(url string, eventName string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		_, _, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		return waitFor(ctx, eventName)
	}
}

func waitFor(ctx context.Context, eventName string) error {
	ch := make(chan struct{})
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	chromedp.ListenTarget(cctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventLifecycleEvent:
			if e.Name == eventName {
				cancel()
				close(ch)
			}
		}
	})
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

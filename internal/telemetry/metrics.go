package telemetry

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"

	"go.opentelemetry.io/contrib/detectors/aws/ecs"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/XSpiritWizardX/product-scraper/config"
	"github.com/google/uuid"
)

var meter metric.Meter

type MetricsProvider struct {
	AppMetrics *AppMetrics
	Close      func()
}

type AppMetrics struct {
	PagesCrawledCounter    func(count int64)
	FetchFailuresCounter   func(count int64)
	ArchiveFallbackCounter func(count int64)
	RecordsExtractedCnt    func(count int64)
	RunsCompletedCounter   func(count int64)
	RunsSkippedCounter     func(count int64)
	RunsFailedCounter      func(count int64)
}

// NoopMetrics returns AppMetrics that discard every count. Used by tests.
func NoopMetrics() *AppMetrics {
	discard := func(int64) {}
	return &AppMetrics{
		PagesCrawledCounter:    discard,
		FetchFailuresCounter:   discard,
		ArchiveFallbackCounter: discard,
		RecordsExtractedCnt:    discard,
		RunsCompletedCounter:   discard,
		RunsSkippedCounter:     discard,
		RunsFailedCounter:      discard,
	}
}

func SetupMetrics(ctx context.Context, cfg *config.Config) *MetricsProvider {
	metricsProvider := new(MetricsProvider)
	var meterProvider *sdkmetric.MeterProvider

	if cfg.TelemetrySettings.Enabled {
		r, err := newResource(cfg)
		if err != nil {
			slog.Error("failed to get resource.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		exporter, err := newMetricExporter(ctx, cfg.TelemetrySettings)
		if err != nil {
			slog.Error("failed to get metric exporter.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		meterProvider = newMeterProvider(exporter, *r)
		otel.SetMeterProvider(meterProvider)
	}

	meter = otel.Meter(cfg.ServiceName)
	metricsProvider.Close = func() {
		if meterProvider != nil {
			err := meterProvider.Shutdown(ctx)
			if err != nil {
				slog.Error("failed to shutdown metrics provider.", slog.String("err", err.Error()))
			}
		}
	}

	pagesCrawledCounter, err := meter.Int64Counter("scraper.pages.crawled",
		metric.WithDescription("The number of pages successfully fetched and extracted"),
		metric.WithUnit("{pages}"))
	fetchFailCounter, err := meter.Int64Counter("scraper.pages.fetch-failed",
		metric.WithDescription("The number of pages that could not be fetched"),
		metric.WithUnit("{pages}"))
	archiveCounter, err := meter.Int64Counter("scraper.pages.archive",
		metric.WithDescription("The number of pages served from the CommonCrawl fallback"),
		metric.WithUnit("{pages}"))
	recordsCounter, err := meter.Int64Counter("scraper.records.extracted",
		metric.WithDescription("The number of records appended to content-type tables"),
		metric.WithUnit("{records}"))
	runsCompletedCounter, err := meter.Int64Counter("scraper.runs.completed",
		metric.WithDescription("The number of site runs that completed and were recorded"),
		metric.WithUnit("{runs}"))
	runsSkippedCounter, err := meter.Int64Counter("scraper.runs.skipped",
		metric.WithDescription("The number of site runs skipped because the site was already scraped"),
		metric.WithUnit("{runs}"))
	runsFailedCounter, err := meter.Int64Counter("scraper.runs.failed",
		metric.WithDescription("The number of site runs that failed"),
		metric.WithUnit("{runs}"))
	if err != nil {
		slog.Error("failed to create telemetry counters.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	enabled := cfg.TelemetrySettings.Enabled
	counter := func(c metric.Int64Counter) func(int64) {
		return func(count int64) {
			if enabled {
				c.Add(ctx, count)
			}
		}
	}
	metricsProvider.AppMetrics = &AppMetrics{
		PagesCrawledCounter:    counter(pagesCrawledCounter),
		FetchFailuresCounter:   counter(fetchFailCounter),
		ArchiveFallbackCounter: counter(archiveCounter),
		RecordsExtractedCnt:    counter(recordsCounter),
		RunsCompletedCounter:   counter(runsCompletedCounter),
		RunsSkippedCounter:     counter(runsSkippedCounter),
		RunsFailedCounter:      counter(runsFailedCounter),
	}

	return metricsProvider
}

func newResource(cfg *config.Config) (*resource.Resource, error) {
	ecsResourceDetector := ecs.NewResourceDetector()
	ecsResource, err := ecsResourceDetector.Detect(context.Background())
	if err != nil {
		slog.Error("ecs detection failed", slog.String("err", err.Error()))
	}
	mergedResource, err := resource.Merge(ecsResource, resource.Default())
	if err != nil {
		slog.Error("failed to merge resources", slog.String("err", err.Error()))
	}
	keyValue, found := ecsResource.Set().Value("container.id")
	var serviceId string
	if found {
		serviceId = keyValue.AsString()
	} else {
		serviceId = uuid.New().String()
	}
	return resource.Merge(mergedResource,
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Env),
			semconv.ServiceInstanceID(serviceId),
		))
}

func newMetricExporter(ctx context.Context, cfg *config.TelemetryConfig) (sdkmetric.Exporter, error) {
	return otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(cfg.CollectorUrl),
		otlpmetrichttp.WithInsecure())
}

func newMeterProvider(meterExporter sdkmetric.Exporter, resource resource.Resource) *sdkmetric.MeterProvider {
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(meterExporter)),
		sdkmetric.WithResource(&resource),
	)
	return meterProvider
}

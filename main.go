package main

import (
	"context"
	"crypto/tls"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/XSpiritWizardX/product-scraper/config"
	"github.com/XSpiritWizardX/product-scraper/internal/aws_s3"
	"github.com/XSpiritWizardX/product-scraper/internal/broker"
	"github.com/XSpiritWizardX/product-scraper/internal/classify"
	"github.com/XSpiritWizardX/product-scraper/internal/model"
	"github.com/XSpiritWizardX/product-scraper/internal/orchestrator"
	"github.com/XSpiritWizardX/product-scraper/internal/persistence"
	"github.com/XSpiritWizardX/product-scraper/internal/render"
	"github.com/XSpiritWizardX/product-scraper/internal/telemetry"
	"github.com/lmittmann/tint"
)

var (
	cfg     *config.Config
	history persistence.HistoryStorage
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg = config.MustLoad()
	setupLogger()
	metrics := telemetry.SetupMetrics(context.Background(), cfg)
	defer metrics.Close()
	history = setupHistoryStorage()
	defer closeHistoryStorage()
	kafkaDLQ := broker.NewKafkaDLQ(cfg.ServiceName, cfg.KafkaSettings)
	defer kafkaDLQ.Close()
	renderer, err := render.NewRenderer(cfg, getHttpTransport(), metrics.AppMetrics)
	if err != nil {
		slog.Error("failed to build renderer.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	var s3 aws_s3.BucketClient
	if cfg.S3Settings != nil && cfg.S3Settings.Enabled {
		s3 = aws_s3.NewS3BucketClient(cfg)
	}
	slog.Info("starting scraper.", slog.String("env", cfg.Env),
		slog.String("mechanism", cfg.RendererSettings.Mechanism),
		slog.Int("sites", len(cfg.ScraperSettings.Sites)))

	orch := &orchestrator.Orchestrator{
		Cfg:        cfg,
		History:    history,
		Writer:     persistence.NewFileWriter(cfg.ScraperSettings.DataDir),
		S3:         s3,
		Renderer:   renderer,
		Classifier: classify.New(),
		DLQ:        kafkaDLQ,
		Metrics:    metrics.AppMetrics,
		Claims:     orchestrator.NewSiteClaims(),
	}

	// Sites are independent: each worker crawls whole sites, one at a
	// time, so the per-site politeness delay is never violated.
	siteChan := make(chan string)
	var failures atomic.Int64
	workerWg := &sync.WaitGroup{}
	for i := 0; i < parallelWorkers(); i++ {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			for site := range siteChan {
				result, err := orch.Run(ctx, site)
				if err != nil {
					slog.Error("run failed.", slog.String("site", site),
						slog.String("err", err.Error()))
					failures.Add(1)
					continue
				}
				if result.Status == model.RunSkipped {
					continue
				}
				slog.Info("run finished.", slog.String("site", site),
					slog.Int("pages_scraped", result.PagesScraped))
			}
		}()
	}

	for _, site := range uniqueSites(cfg.ScraperSettings.Sites) {
		select {
		case <-ctx.Done():
		case siteChan <- site:
			continue
		}
		break
	}
	close(siteChan)
	workerWg.Wait()

	if failures.Load() > 0 {
		slog.Error("some runs failed.", slog.Int64("failures", failures.Load()))
		os.Exit(1)
	}
	slog.Info("all runs finished.")
}

func setupLogger() *slog.Logger {
	envLogLevel := strings.ToLower(cfg.LogLevel)
	var slogLevel slog.Level
	err := slogLevel.UnmarshalText([]byte(envLogLevel))
	if err != nil {
		log.Printf("encountenred log level: '%s'. The package does not support custom log levels", envLogLevel)
		slogLevel = slog.LevelDebug
	}
	log.Printf("slog level overwritten to '%v'", slogLevel)
	slog.SetLogLoggerLevel(slogLevel)

	replaceAttrs := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			source := a.Value.Any().(*slog.Source)
			source.File = filepath.Base(source.File)
		}
		return a
	}

	var logger *slog.Logger
	if strings.ToLower(cfg.LogType) == "json" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource:   true,
			Level:       slogLevel,
			ReplaceAttr: replaceAttrs}))
	} else {
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			AddSource:   true,
			Level:       slogLevel,
			ReplaceAttr: replaceAttrs,
			NoColor: func() bool {
				if cfg.Env == "local" {
					return false
				}
				return true
			}()}))
	}

	slog.SetDefault(logger)
	logger.Debug("debug messages are enabled.")

	return logger
}

func setupHistoryStorage() persistence.HistoryStorage {
	switch cfg.HistorySettings.Backend {
	case "postgres":
		slog.Info("connecting to the history database...")
		store, err := persistence.NewPostgresHistory(cfg.HistorySettings.Postgres)
		if err != nil {
			slog.Error("failed to establish database connection.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		slog.Info("connected to the history database!")
		return store
	case "sqlite", "":
		store, err := persistence.NewSQLiteHistory(cfg.HistorySettings.SqlitePath)
		if err != nil {
			slog.Error("failed to open history file.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		return store
	default:
		slog.Error("unknown history backend.", slog.String("backend", cfg.HistorySettings.Backend))
		os.Exit(1)
		return nil
	}
}

func closeHistoryStorage() {
	slog.Info("closing history storage.")
	err := history.Close()
	if err != nil {
		slog.Error("failed to close history storage.", slog.String("err", err.Error()))
	}
}

// uniqueSites drops repeated config entries. A duplicate would lose the
// per-site claim and report the run as failed even though the site was
// scraped fine.
func uniqueSites(sites []string) []string {
	seen := make(map[string]struct{}, len(sites))
	out := make([]string, 0, len(sites))
	for _, site := range sites {
		if _, dup := seen[site]; dup {
			slog.Warn("duplicate site in config. ignoring.", slog.String("site", site))
			continue
		}
		seen[site] = struct{}{}
		out = append(out, site)
	}
	return out
}

// Set -1 to use all available CPUs
func parallelWorkers() int {
	customNumCPU := cfg.ScraperSettings.Workers
	if customNumCPU == -1 {
		return runtime.NumCPU()
	}
	if customNumCPU <= 0 {
		slog.Error("workers number is 0 or less than -1")
		os.Exit(1)
	}

	return customNumCPU
}

func getHttpTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        cfg.HttpClientSettings.MaxIdleConnections,
		MaxIdleConnsPerHost: cfg.HttpClientSettings.MaxIdleConnectionsPerHost,
		MaxConnsPerHost:     cfg.HttpClientSettings.MaxConnectionsPerHost,
		IdleConnTimeout:     cfg.HttpClientSettings.IdleConnectionTimeout,
		TLSHandshakeTimeout: cfg.HttpClientSettings.TlsHandshakeTimeout,
		DialContext: (&net.Dialer{
			Timeout:   cfg.HttpClientSettings.DialTimeout,
			KeepAlive: cfg.HttpClientSettings.DialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.HttpClientSettings.TlsInsecureSkipVerify,
		},
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-fuel/client"
	"github.com/aluiziolira/go-scrape-fuel/collector"
	"github.com/aluiziolira/go-scrape-fuel/config"
	"github.com/aluiziolira/go-scrape-fuel/models"
	"github.com/aluiziolira/go-scrape-fuel/pipeline"
	"github.com/aluiziolira/go-scrape-fuel/session"
)

func main() {
	_ = godotenv.Load()

	defaultCfg := config.DefaultConfig()
	pagesDefault := defaultCfg.MaxPages
	if value, ok, err := config.EnvInt("COLLECTOR_PAGES"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid COLLECTOR_PAGES: %v\n", err)
		os.Exit(1)
	} else if ok {
		pagesDefault = value
	}
	parallelDefault := defaultCfg.Parallelism
	if value, ok, err := config.EnvInt("COLLECTOR_PARALLEL"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid COLLECTOR_PARALLEL: %v\n", err)
		os.Exit(1)
	} else if ok {
		parallelDefault = value
	}
	paceDefault := defaultCfg.PaceInterval
	if value, ok, err := config.EnvDuration("COLLECTOR_PACE"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid COLLECTOR_PACE: %v\n", err)
		os.Exit(1)
	} else if ok {
		paceDefault = value
	}
	latitudeDefault := defaultCfg.Latitude
	if value, ok, err := config.EnvFloat("COLLECTOR_LATITUDE"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid COLLECTOR_LATITUDE: %v\n", err)
		os.Exit(1)
	} else if ok {
		latitudeDefault = value
	}
	longitudeDefault := defaultCfg.Longitude
	if value, ok, err := config.EnvFloat("COLLECTOR_LONGITUDE"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid COLLECTOR_LONGITUDE: %v\n", err)
		os.Exit(1)
	} else if ok {
		longitudeDefault = value
	}
	outputDefault := defaultCfg.OutputDir
	if value, ok := config.EnvString("COLLECTOR_OUTPUT_DIR"); ok {
		outputDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("COLLECTOR_METRICS_ADDR"); ok {
		metricsDefault = value
	}
	scheduleDefault := defaultCfg.Schedule
	if value, ok := config.EnvString("COLLECTOR_SCHEDULE"); ok {
		scheduleDefault = value
	}

	baseURL := flag.String("base-url", defaultCfg.BaseURL, "Products endpoint URL")
	categoriesCSV := flag.String("categories", strings.Join(defaultCfg.Categories, ","), "Comma-separated fuel categories")
	maxPages := flag.Int("pages", pagesDefault, "Maximum pages per category")
	parallelism := flag.Int("parallel", parallelDefault, "Concurrent category workers")
	hours := flag.Int("hours", defaultCfg.Hours, "Price age window in hours")
	latitude := flag.Float64("latitude", latitudeDefault, "Search center latitude")
	longitude := flag.Float64("longitude", longitudeDefault, "Search center longitude")
	radius := flag.Int("radius", defaultCfg.RadiusKm, "Search radius in km")
	order := flag.String("order", defaultCfg.Order, "Result ordering")
	pace := flag.Duration("pace", paceDefault, "Minimum interval between requests")
	rateRetries := flag.Int("retries-429", defaultCfg.RateLimitRetries, "Retry budget for rate limits")
	serverRetries := flag.Int("retries-5xx", defaultCfg.ServerErrorRetries, "Retry budget for server errors")
	retryBackoff := flag.Duration("retry-backoff", defaultCfg.RetryBackoff, "Initial retry backoff")
	retryBackoffMax := flag.Duration("retry-backoff-max", defaultCfg.RetryBackoffMax, "Maximum retry backoff")
	outputDir := flag.String("output", outputDefault, "Output directory root")
	scanBundles := flag.Bool("bundle-scan", defaultCfg.ScanBundles, "Scan script bundles when the page carries no token")
	debugDump := flag.String("debug-bootstrap-file", "", "Dump the landing page body to this file")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	schedule := flag.String("schedule", scheduleDefault, "Cron expression for repeated runs (empty runs once)")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	setLogLoggerLevel(level.Level())

	cfg := config.DefaultConfig()
	cfg.BaseURL = *baseURL
	cfg.Categories = splitCategories(*categoriesCSV)
	cfg.MaxPages = *maxPages
	cfg.Parallelism = *parallelism
	cfg.Hours = *hours
	cfg.Latitude = *latitude
	cfg.Longitude = *longitude
	cfg.RadiusKm = *radius
	cfg.Order = *order
	cfg.PaceInterval = *pace
	cfg.RateLimitRetries = *rateRetries
	cfg.ServerErrorRetries = *serverRetries
	cfg.RetryBackoff = *retryBackoff
	cfg.RetryBackoffMax = *retryBackoffMax
	cfg.OutputDir = *outputDir
	cfg.ScanBundles = *scanBundles
	cfg.DebugBootstrapFile = *debugDump
	cfg.MetricsAddr = *metricsAddr
	cfg.Schedule = *schedule

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing in-flight work")
	}()

	metrics := client.NewMetrics()
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	var exitCode int
	if cfg.Schedule != "" {
		exitCode = runScheduled(ctx, cfg, metrics)
	} else {
		exitCode = runOnce(ctx, cfg, metrics)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	os.Exit(exitCode)
}

// runOnce executes one full collection run and returns the process exit
// code for it.
func runOnce(ctx context.Context, cfg *config.Config, metrics *client.Metrics) int {
	runID := uuid.NewString()
	paths := pipeline.NewRunPaths(cfg.OutputDir, cfg.Source, runID, time.Now())
	if err := paths.Ensure(); err != nil {
		slog.Error("creating run directory", slog.Any("error", err))
		return 1
	}

	writer, err := pipeline.NewRawWriter(paths.DataFile)
	if err != nil {
		slog.Error("creating artifact writer", slog.Any("error", err))
		return 1
	}

	recorder := pipeline.NewRecorder(pipeline.RunInfo{
		RunID:      runID,
		Source:     cfg.Source,
		BaseURL:    cfg.BaseURL,
		Query:      collector.QueryFromConfig(cfg),
		Categories: collector.CategoriesFromConfig(cfg),
		Paths:      paths,
	})

	boot, err := session.NewBootstrapper(cfg)
	if err != nil {
		slog.Error("initialising bootstrapper", slog.Any("error", err))
		writer.Close()
		return 1
	}

	cl, err := client.New(cfg, metrics, nil)
	if err != nil {
		slog.Error("initialising client", slog.Any("error", err))
		writer.Close()
		return 1
	}

	col, err := collector.New(collector.Options{
		Config:   cfg,
		Sessions: session.NewManager(boot),
		Client:   cl,
		Sink:     writer,
		Recorder: recorder,
		Metrics:  metrics,
		RunID:    runID,
	})
	if err != nil {
		slog.Error("initialising collector", slog.Any("error", err))
		writer.Close()
		return 1
	}

	slog.Info("starting run",
		slog.String("run_id", runID),
		slog.String("base_url", cfg.BaseURL),
		slog.Int("categories", len(cfg.Categories)),
		slog.Int("workers", cfg.Parallelism),
	)

	start := time.Now()
	manifest, runErr := col.Run(ctx)
	if err := writer.Close(); err != nil {
		slog.Error("closing artifact", slog.Any("error", err))
	}
	if runErr != nil {
		slog.Error("run failed", slog.Any("error", runErr))
	}

	valid := true
	if err := writer.Validate(manifest.TotalRecords); err != nil {
		slog.Error("artifact validation failed", slog.Any("error", err))
		valid = false
	}

	printSummary(manifest, time.Since(start), paths.Root)

	if runErr != nil || !valid || manifest.Status == models.RunFailed {
		return 1
	}
	return 0
}

func printSummary(manifest models.RunManifest, duration time.Duration, outRoot string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Collection complete")

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"CATEGORY", "STATUS", "PAGES", "RECORDS"})
	categories := make([]models.Category, 0, len(manifest.Categories))
	for cat := range manifest.Categories {
		categories = append(categories, cat)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
	for _, cat := range categories {
		res := manifest.Categories[cat]
		t.AppendRow(table.Row{string(cat), string(res.Status), res.Pages, res.Records})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()

	fmt.Printf("  Run ID:        %s\n", manifest.RunID)
	fmt.Printf("  Status:        %s\n", manifest.Status)
	fmt.Printf("  Total records: %d\n", manifest.TotalRecords)
	if len(manifest.Errors) > 0 {
		fmt.Printf("  Errors:        %d\n", len(manifest.Errors))
	}
	fmt.Printf("  Duration:      %v\n", duration)
	fmt.Printf("  Output:        %s\n", outRoot)
	fmt.Println(separator)
}

func splitCategories(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.ToUpper(strings.TrimSpace(p)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = tint.NewHandler(os.Stdout, &tint.Options{Level: level, TimeFormat: time.Kitchen})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

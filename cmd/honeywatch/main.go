package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"honeywatch/config"
	"honeywatch/internal/anomaly"
	"honeywatch/internal/dedup"
	"honeywatch/internal/enrich"
	"honeywatch/internal/input"
	inputnats "honeywatch/internal/input/nats"
	inputredis "honeywatch/internal/input/redis"
	"honeywatch/internal/input/tail"
	"honeywatch/internal/logger"
	"honeywatch/internal/output/alertclickhouse"
	"honeywatch/internal/output/alerthttp"
	"honeywatch/internal/output/alertjson"
	"honeywatch/internal/pipeline"
	"honeywatch/internal/report"
	"honeywatch/internal/signature"
	"honeywatch/internal/sourcestate"
	"honeywatch/pkg/models"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("honeywatch.yml"); err == nil {
		return "honeywatch.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "honeywatch.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "honeywatch.yml"
}

func applyDefaults(cfg *config.Config) {
	hw := &cfg.Honeywatch

	for _, feed := range []*config.FeedConfig{&hw.Feeds.Session, &hw.Feeds.Network} {
		if feed.Redis.Addr == "" {
			feed.Redis.Addr = "127.0.0.1:6379"
		}
		if feed.Redis.BlockTimeout == 0 {
			feed.Redis.BlockTimeout = 5 * time.Second
		}
		if feed.File.PollInterval <= 0 {
			feed.File.PollInterval = time.Second
		}
	}

	if hw.Pipeline.Workers <= 0 {
		hw.Pipeline.Workers = 4
	}
	if hw.Pipeline.QueueSize <= 0 {
		hw.Pipeline.QueueSize = 4096
	}
	if hw.Pipeline.PruneInterval <= 0 {
		hw.Pipeline.PruneInterval = time.Minute
	}

	if hw.Detection.Clock == "" {
		hw.Detection.Clock = pipeline.ClockWall
	}
	if hw.Detection.CampaignMarker == "" {
		hw.Detection.CampaignMarker = enrich.DefaultCampaignMarker
	}
	if hw.Detection.Dedup.Policy == "" {
		hw.Detection.Dedup.Policy = dedup.PolicyClear
	}
	if hw.Detection.Dedup.Capacity <= 0 {
		hw.Detection.Dedup.Capacity = dedup.DefaultCapacity
	}

	if hw.Output.Mode == "" {
		hw.Output.Mode = "file"
	}
	if hw.Output.File.Path == "" {
		hw.Output.File.Path = "output/alerts.jsonl"
	}
	if hw.Output.ClickHouse.Database == "" {
		hw.Output.ClickHouse.Database = "honeywatch"
	}
	if hw.Output.ClickHouse.Table == "" {
		hw.Output.ClickHouse.Table = "alerts"
	}

	if hw.SourceState.Redis.Addr == "" {
		hw.SourceState.Redis.Addr = "127.0.0.1:6379"
	}

	if hw.Report.Interval <= 0 {
		hw.Report.Interval = 120 * time.Second
	}
	if hw.Report.AlertsPath == "" {
		hw.Report.AlertsPath = hw.Output.File.Path
	}
	if hw.Report.OutputDir == "" {
		hw.Report.OutputDir = "output/reports"
	}
	if hw.Report.TopSources <= 0 {
		hw.Report.TopSources = 20
	}

	if hw.Metrics.Listen == "" {
		hw.Metrics.Listen = ":9108"
	}

	if hw.Logging.Level == "" {
		hw.Logging.Level = "info"
	}
}

func limitsFrom(cfg config.LimitsConfig) anomaly.Config {
	conv := func(l config.LimitConfig) anomaly.Limit {
		return anomaly.Limit{Window: l.Window, Threshold: l.Threshold}
	}
	return anomaly.Config{
		FailedLogin:      conv(cfg.FailedLogin),
		CommandRate:      conv(cfg.CommandRate),
		DistinctDstPorts: conv(cfg.PortScan),
		PacketRate:       conv(cfg.PacketRate),
	}
}

func loadConfig(configArg string) (*config.Config, string) {
	configPath := findConfigFile(configArg)
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)

	lc := cfg.Honeywatch.Logging
	if err := logger.Init(lc.Enabled, lc.Level, lc.File, lc.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	return cfg, configPath
}

func newFeed(name string, kind models.SourceKind, cfg config.FeedConfig) (input.Source, error) {
	switch cfg.Mode {
	case "file":
		logger.Infof("Feed %s mode: file (%s)", name, cfg.File.Path)
		return tail.NewFollower(tail.Config{
			Path:         cfg.File.Path,
			PollInterval: cfg.File.PollInterval,
			FromStart:    cfg.File.FromStart,
		})
	case "redis":
		logger.Infof("Feed %s mode: redis (%s key=%s)", name, cfg.Redis.Addr, cfg.Redis.Key)
		return inputredis.NewConsumer(inputredis.Config{
			Feed:         name,
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			Key:          cfg.Redis.Key,
			BlockTimeout: cfg.Redis.BlockTimeout,
		})
	case "nats":
		logger.Infof("Feed %s mode: nats (%s subject=%s)", name, cfg.NATS.URL, cfg.NATS.Subject)
		return inputnats.NewSubscriber(inputnats.Config{
			URL:     cfg.NATS.URL,
			Subject: cfg.NATS.Subject,
			Queue:   cfg.NATS.Queue,
			Buffer:  cfg.NATS.Buffer,
		})
	default:
		return nil, fmt.Errorf("unknown feed mode %q for %s (%s)", cfg.Mode, name, kind)
	}
}

func newAlertWriter(cfg config.OutputConfig) (pipeline.AlertWriter, error) {
	switch cfg.Mode {
	case "file":
		w, err := alertjson.NewWriter(cfg.File.Path)
		if err != nil {
			return nil, fmt.Errorf("create alert file writer: %w", err)
		}
		logger.Infof("Alert output mode: file (%s)", cfg.File.Path)
		return w, nil
	case "http":
		w, err := alerthttp.NewWriter(alerthttp.Config{
			URL:      cfg.HTTP.URL,
			Timeout:  cfg.HTTP.Timeout,
			Headers:  cfg.HTTP.Headers,
			MaxBatch: cfg.HTTP.MaxBatch,
		})
		if err != nil {
			return nil, fmt.Errorf("create alert HTTP writer: %w", err)
		}
		logger.Infof("Alert output mode: http (%s)", cfg.HTTP.URL)
		return w, nil
	case "clickhouse":
		w, err := alertclickhouse.NewWriter(alertclickhouse.Config{
			URL:      cfg.ClickHouse.URL,
			Database: cfg.ClickHouse.Database,
			Table:    cfg.ClickHouse.Table,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
			Timeout:  cfg.ClickHouse.Timeout,
			Headers:  cfg.ClickHouse.Headers,
		})
		if err != nil {
			return nil, fmt.Errorf("create alert ClickHouse writer: %w", err)
		}
		logger.Infof("Alert output mode: clickhouse (%s/%s.%s)", cfg.ClickHouse.URL, cfg.ClickHouse.Database, cfg.ClickHouse.Table)
		return w, nil
	default:
		return nil, fmt.Errorf("unknown alert output mode: %s", cfg.Mode)
	}
}

func newMatcher(cfg config.RulesConfig) *signature.Matcher {
	var table []signature.Rule
	if strings.TrimSpace(cfg.SignaturesPath) != "" {
		rules, err := signature.LoadRules(cfg.SignaturesPath)
		if err != nil {
			log.Fatalf("Failed to load signatures from %s: %v", cfg.SignaturesPath, err)
		}
		table = rules
		logger.Infof("Signature table loaded: %d rules from %s", len(rules), cfg.SignaturesPath)
	}

	var sigmaEngine *signature.SigmaEngine
	if strings.TrimSpace(cfg.SigmaPath) != "" {
		engine, stats, err := signature.NewSigmaEngine(cfg.SigmaPath)
		if err != nil {
			log.Fatalf("Failed to load Sigma rules from %s: %v", cfg.SigmaPath, err)
		}
		logger.Infof("Sigma rules loaded: loaded=%d skipped_complex=%d skipped_datasource=%d skipped_invalid=%d files=%d",
			stats.Loaded,
			stats.SkippedComplex,
			stats.SkippedDatasource,
			stats.SkippedInvalid,
			stats.TotalFiles,
		)
		if stats.Loaded == 0 {
			logger.Warnf("No compatible Sigma rules loaded; only the signature table is active")
		} else {
			sigmaEngine = engine
		}
	}
	return signature.NewMatcher(table, sigmaEngine)
}

func newSourceState(cfg config.SourceStateConfig) *sourcestate.RedisStore {
	if !cfg.Enabled {
		return nil
	}
	store, err := sourcestate.NewRedisStore(sourcestate.RedisConfig{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.KeyPrefix,
	})
	if err != nil {
		log.Fatalf("Failed to connect source state store: %v", err)
	}
	logger.Infof("Source state index enabled (%s)", cfg.Redis.Addr)
	return store
}

func newReporter(cfg config.ReportConfig, ranker *sourcestate.RedisStore) *report.Generator {
	var r report.SourceRanker
	if ranker != nil {
		r = ranker
	}
	gen, err := report.NewGenerator(report.Config{
		AlertsPath: cfg.AlertsPath,
		OutputDir:  cfg.OutputDir,
		TopLimit:   cfg.TopSources,
	}, r)
	if err != nil {
		log.Fatalf("Failed to create report generator: %v", err)
	}
	return gen
}

func serveMetrics(listen string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics server failed: %v", err)
		}
	}()
	logger.Infof("Metrics listening on %s/metrics", listen)
	return srv
}

func runProducer(args []string) {
	configArg := ""
	if len(args) > 0 {
		configArg = args[0]
	}
	cfg, configPath := loadConfig(configArg)
	hw := cfg.Honeywatch

	logger.Infof("Honeywatch starting")
	logger.Infof("Config loaded from: %s", configPath)
	if err := hw.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	var feeds []pipeline.Feed
	for _, f := range []struct {
		name string
		kind models.SourceKind
		cfg  config.FeedConfig
	}{
		{"session", models.SourceSessionLog, hw.Feeds.Session},
		{"network", models.SourceNetwork, hw.Feeds.Network},
	} {
		if f.cfg.Mode == "" {
			logger.Infof("Feed %s disabled", f.name)
			continue
		}
		src, err := newFeed(f.name, f.kind, f.cfg)
		if err != nil {
			log.Fatalf("Failed to create %s feed: %v", f.name, err)
		}
		feeds = append(feeds, pipeline.Feed{Name: f.name, Kind: f.kind, Source: src})
	}

	primary, err := newAlertWriter(hw.Output)
	if err != nil {
		log.Fatalf("%v", err)
	}
	store := newSourceState(hw.SourceState)
	var writer pipeline.AlertWriter = primary
	if store != nil {
		writer = pipeline.NewMultiWriter(primary, store)
	}

	dd, err := dedup.New(hw.Detection.Dedup.Policy, hw.Detection.Dedup.Capacity)
	if err != nil {
		log.Fatalf("Failed to create deduplicator: %v", err)
	}
	tracker := anomaly.NewTracker(limitsFrom(hw.Detection.Limits))
	engine := pipeline.NewEngine(
		dd,
		newMatcher(hw.Rules),
		tracker,
		enrich.New(nil, hw.Detection.CampaignMarker),
		writer,
		hw.Detection.Clock,
	)

	var reporter pipeline.Reporter
	reportInterval := time.Duration(0)
	if hw.Report.Enabled {
		reporter = newReporter(hw.Report, store)
		reportInterval = hw.Report.Interval
		logger.Infof("Reports every %s into %s", reportInterval, hw.Report.OutputDir)
	}

	pipe := pipeline.New(feeds, engine, reporter, pipeline.Config{
		Workers:        hw.Pipeline.Workers,
		QueueSize:      hw.Pipeline.QueueSize,
		PruneInterval:  hw.Pipeline.PruneInterval,
		ReportInterval: reportInterval,
	})

	var metricsSrv *http.Server
	if hw.Metrics.Enabled {
		metricsSrv = serveMetrics(hw.Metrics.Listen)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := pipe.Run(ctx); err != nil && err != context.Canceled {
			logger.Errorf("Pipeline error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("Shutting down")
	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warnf("Pipeline did not drain within 10s")
	}

	if err := pipe.Close(); err != nil {
		logger.Errorf("Error closing pipeline: %v", err)
	}
	if metricsSrv != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
		metricsSrv.Shutdown(shutdownCtx)
		stop()
	}

	logger.Infof("Honeywatch stopped")
	logger.Close()
}

func runReport(args []string) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	configArg := fs.String("config", "", "Config file path")
	alertsPath := fs.String("alerts", "", "Alert JSONL input path (overrides report.alerts_path)")
	outputDir := fs.String("output-dir", "", "Report output directory (overrides report.output_dir)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _ := loadConfig(*configArg)
	rc := cfg.Honeywatch.Report
	if *alertsPath != "" {
		rc.AlertsPath = *alertsPath
	}
	if *outputDir != "" {
		rc.OutputDir = *outputDir
	}

	gen := newReporter(rc, newSourceState(cfg.Honeywatch.SourceState))
	res, err := gen.Run(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate report: %v\n", err)
		return 1
	}
	fmt.Printf("reported alerts=%d skipped=%d sources=%d incidents=%d output=%s\n",
		res.Alerts, res.Skipped, res.Sources, res.Incidents, rc.OutputDir)
	return 0
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "produce":
			runProducer(os.Args[2:])
			return
		case "report":
			os.Exit(runReport(os.Args[2:]))
		default:
			// Backward-compatible mode: first arg is config path.
			runProducer(os.Args[1:])
			return
		}
	}

	runProducer(nil)
}

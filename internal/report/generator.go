package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"honeywatch/internal/logger"
	"honeywatch/internal/output/alertjson"
	"honeywatch/internal/sourcestate"
)

// Output file names written into the report directory.
const (
	TaxonomySummaryFile = "taxonomy_summary.json"
	TimelineFile        = "killchain_timeline.json"
	IncidentsFile       = "incidents.json"
	TopSourcesFile      = "top_sources.json"
)

// SourceRanker supplies the per-source risk ranking, when one is kept.
type SourceRanker interface {
	TopSources(ctx context.Context, limit int64) ([]sourcestate.SourceState, error)
}

// Config configures the report generator.
type Config struct {
	AlertsPath string
	OutputDir  string
	TopLimit   int64
}

// Generator rebuilds the report files from the alert store.
type Generator struct {
	cfg    Config
	ranker SourceRanker
}

// Result summarizes one report run.
type Result struct {
	Alerts    int
	Skipped   int
	Sources   int
	Incidents int
}

// NewGenerator creates a generator. ranker may be nil.
func NewGenerator(cfg Config, ranker SourceRanker) (*Generator, error) {
	if cfg.AlertsPath == "" {
		return nil, fmt.Errorf("alerts path is required")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Dir(cfg.AlertsPath)
	}
	if cfg.TopLimit <= 0 {
		cfg.TopLimit = 20
	}
	return &Generator{cfg: cfg, ranker: ranker}, nil
}

// Report runs one generation pass, logging a summary.
func (g *Generator) Report(ctx context.Context) error {
	res, err := g.Run(ctx)
	if err != nil {
		return err
	}
	logger.Infof("Report written: alerts=%d skipped=%d sources=%d incidents=%d dir=%s",
		res.Alerts, res.Skipped, res.Sources, res.Incidents, g.cfg.OutputDir)
	return nil
}

// Run reads the alert store and rewrites every report file.
func (g *Generator) Run(ctx context.Context) (Result, error) {
	alerts, stats, err := alertjson.ReadAlerts(g.cfg.AlertsPath)
	if err != nil {
		return Result{}, fmt.Errorf("read alerts: %w", err)
	}
	if stats.Skipped > 0 {
		logger.Warnf("Report skipped %d unreadable alert lines in %s", stats.Skipped, g.cfg.AlertsPath)
	}

	summary := BuildTaxonomySummary(alerts)
	timeline := BuildTimeline(alerts)
	incidents := BuildIncidents(timeline)

	if err := os.MkdirAll(g.cfg.OutputDir, 0755); err != nil {
		return Result{}, fmt.Errorf("create report directory: %w", err)
	}
	if err := writeJSON(filepath.Join(g.cfg.OutputDir, TaxonomySummaryFile), summary); err != nil {
		return Result{}, err
	}
	if err := writeJSON(filepath.Join(g.cfg.OutputDir, TimelineFile), timeline); err != nil {
		return Result{}, err
	}
	if err := writeJSON(filepath.Join(g.cfg.OutputDir, IncidentsFile), incidents); err != nil {
		return Result{}, err
	}

	if g.ranker != nil {
		top, err := g.ranker.TopSources(ctx, g.cfg.TopLimit)
		if err != nil {
			logger.Warnf("Report skipped source ranking: %v", err)
		} else if err := writeJSON(filepath.Join(g.cfg.OutputDir, TopSourcesFile), top); err != nil {
			return Result{}, err
		}
	}

	return Result{
		Alerts:    len(alerts),
		Skipped:   stats.Skipped,
		Sources:   len(timeline),
		Incidents: len(incidents),
	}, nil
}

// writeJSON replaces path atomically so readers never see a partial file.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

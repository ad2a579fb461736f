package pipeline

import (
	"context"
	"sync"
	"time"

	"honeywatch/internal/input"
	"honeywatch/internal/logger"
	"honeywatch/internal/metrics"
	"honeywatch/internal/transform"
	"honeywatch/pkg/models"
)

// Feed is one sensor input bound to a source kind.
type Feed struct {
	Name   string
	Kind   models.SourceKind
	Source input.Source
}

// Reporter is the periodic reporting collaborator.
type Reporter interface {
	Report(ctx context.Context) error
}

// Config controls pipeline scheduling.
type Config struct {
	Workers        int
	QueueSize      int
	PruneInterval  time.Duration
	ReportInterval time.Duration
}

// Pipeline runs one goroutine per feed, pushing normalized events onto a
// channel drained by engine workers. A maintenance loop decays anomaly
// state and an optional reporter runs on its own ticker.
type Pipeline struct {
	feeds    []Feed
	engine   *Engine
	reporter Reporter
	cfg      Config
	now      func() time.Time
}

// New creates a pipeline.
func New(feeds []Feed, engine *Engine, reporter Reporter, cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 256
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = time.Minute
	}
	return &Pipeline{
		feeds:    feeds,
		engine:   engine,
		reporter: reporter,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled. Events already queued are processed
// before it returns.
func (p *Pipeline) Run(ctx context.Context) error {
	logger.Infof("Pipeline started: feeds=%d workers=%d", len(p.feeds), p.cfg.Workers)

	events := make(chan *models.Event, p.cfg.QueueSize)

	var feedWG sync.WaitGroup
	for _, feed := range p.feeds {
		feedWG.Add(1)
		go func(feed Feed) {
			defer feedWG.Done()
			p.readLoop(ctx, feed, events)
		}(feed)
	}

	var workerWG sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			for ev := range events {
				p.engine.Process(ev)
			}
		}()
	}

	var bgWG sync.WaitGroup
	bgWG.Add(1)
	go func() {
		defer bgWG.Done()
		p.maintenanceLoop(ctx)
	}()
	if p.reporter != nil && p.cfg.ReportInterval > 0 {
		bgWG.Add(1)
		go func() {
			defer bgWG.Done()
			p.reportLoop(ctx)
		}()
	}

	feedWG.Wait()
	close(events)
	workerWG.Wait()
	bgWG.Wait()
	logger.Infof("Pipeline stopped")
	return ctx.Err()
}

// Close releases feed sources and the engine's writer.
func (p *Pipeline) Close() error {
	for _, feed := range p.feeds {
		if err := feed.Source.Close(); err != nil {
			logger.Errorf("Failed to close feed %s: %v", feed.Name, err)
		}
	}
	return p.engine.Close()
}

func (p *Pipeline) readLoop(ctx context.Context, feed Feed, out chan<- *models.Event) {
	logger.Infof("Feed %s (%s) started", feed.Name, feed.Kind)
	for {
		payload, err := feed.Source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("Feed %s read failed: %v", feed.Name, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		if payload == nil {
			continue
		}

		raw, err := transform.Decode(payload)
		if err != nil {
			metrics.EventsMalformed.WithLabelValues(feed.Name).Inc()
			logger.Debugf("Feed %s skipped malformed record: %v", feed.Name, err)
			continue
		}
		ev := transform.Normalize(raw, feed.Kind, p.now())
		metrics.EventsIngested.WithLabelValues(feed.Name).Inc()

		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.engine.Prune(); n > 0 {
				logger.Debugf("Pruned %d idle sources", n)
			}
			p.sampleBacklog(ctx)
		}
	}
}

// backlogger is implemented by queue-backed feeds.
type backlogger interface {
	Backlog(ctx context.Context) (int64, error)
}

func (p *Pipeline) sampleBacklog(ctx context.Context) {
	for _, feed := range p.feeds {
		b, ok := feed.Source.(backlogger)
		if !ok {
			continue
		}
		n, err := b.Backlog(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warnf("Feed %s backlog check failed: %v", feed.Name, err)
			}
			continue
		}
		if n > int64(p.cfg.QueueSize) {
			logger.Warnf("Feed %s is falling behind: %d records queued", feed.Name, n)
		}
	}
}

// reportLoop runs on its own goroutine; ticks that fire while a report
// is still being written are dropped by the ticker.
func (p *Pipeline) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.ReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.reporter.Report(ctx); err != nil && ctx.Err() == nil {
				logger.Errorf("Report generation failed: %v", err)
			}
		}
	}
}

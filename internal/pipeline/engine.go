package pipeline

import (
	"time"

	"honeywatch/internal/anomaly"
	"honeywatch/internal/dedup"
	"honeywatch/internal/enrich"
	"honeywatch/internal/logger"
	"honeywatch/internal/metrics"
	"honeywatch/internal/signature"
	"honeywatch/pkg/models"
)

// Clock modes for anomaly windows.
const (
	ClockWall  = "wall"
	ClockEvent = "event"
)

// Engine runs one event through dedup, detection, enrichment and the
// alert store. It holds no state of its own; shared state lives in the
// deduplicator and the tracker, which synchronize internally.
type Engine struct {
	dedup    dedup.Deduplicator
	matcher  *signature.Matcher
	tracker  *anomaly.Tracker
	enricher *enrich.Enricher
	writer   AlertWriter
	clock    string
	now      func() time.Time
}

// NewEngine wires the detection stages together.
func NewEngine(d dedup.Deduplicator, matcher *signature.Matcher, tracker *anomaly.Tracker, enricher *enrich.Enricher, writer AlertWriter, clock string) *Engine {
	if clock == "" {
		clock = ClockWall
	}
	return &Engine{
		dedup:    d,
		matcher:  matcher,
		tracker:  tracker,
		enricher: enricher,
		writer:   writer,
		clock:    clock,
		now:      time.Now,
	}
}

// Process handles one event and returns the alerts it produced. Alerts
// whose write failed are still returned; the failure is only logged.
func (e *Engine) Process(ev *models.Event) []*models.Alert {
	if ev == nil {
		return nil
	}
	start := time.Now()
	defer func() {
		metrics.EventProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	if e.dedup != nil {
		if key := dedup.Key(ev); key != "" && e.dedup.Seen(key) {
			metrics.EventsDuplicate.Inc()
			logger.Debugf("Duplicate event dropped: %s %s from %s", ev.Kind, ev.TimestampText, ev.SourceIdentity)
			return nil
		}
	}

	var out []*models.Alert
	if e.matcher != nil {
		if f := e.matcher.Match(ev); f != nil {
			out = append(out, e.emit(f, ev))
		}
	}
	for _, f := range e.observe(ev) {
		out = append(out, e.emit(f, ev))
	}
	return out
}

// Prune decays idle anomaly state.
func (e *Engine) Prune() int {
	if e.tracker == nil {
		return 0
	}
	n := e.tracker.Prune(e.now())
	metrics.TrackedSources.Set(float64(e.tracker.Sources()))
	return n
}

// Close closes the alert writer.
func (e *Engine) Close() error {
	if e.writer == nil {
		return nil
	}
	return e.writer.Close()
}

func (e *Engine) observe(ev *models.Event) []*models.Finding {
	if e.tracker == nil {
		return nil
	}
	now := e.now()
	if e.clock == ClockEvent && !ev.Timestamp.IsZero() {
		now = ev.Timestamp
	}

	var out []*models.Finding
	add := func(f *models.Finding) {
		if f != nil {
			out = append(out, f)
		}
	}

	switch ev.Source {
	case models.SourceSessionLog:
		switch ev.Kind {
		case models.KindLoginFailed:
			add(e.tracker.Observe(ev.SourceIdentity, anomaly.FailedLogin, now))
		case models.KindCommandInput:
			add(e.tracker.Observe(ev.SourceIdentity, anomaly.CommandRate, now))
		}
	case models.SourceNetwork:
		if ev.HasPorts() {
			add(e.tracker.Observe(ev.SourceIdentity, anomaly.DistinctDstPorts, now, ev.PortStrings()...))
		}
		add(e.tracker.Observe(ev.SourceIdentity, anomaly.PacketRate, now))
	}
	return out
}

func (e *Engine) emit(f *models.Finding, ev *models.Event) *models.Alert {
	metrics.Findings.WithLabelValues(f.Detector, f.Category).Inc()
	alert := e.enricher.Enrich(f, ev)
	e.persist(alert)
	return alert
}

// persist writes one alert. Failures are logged and the alert dropped so
// the sensor keeps running.
func (e *Engine) persist(alert *models.Alert) {
	if e.writer == nil {
		return
	}
	if err := e.writer.WriteAlerts([]*models.Alert{alert}); err != nil {
		metrics.AlertWriteFailures.Inc()
		logger.Errorf("Failed to write alert %s from %s: %v", alert.Type, alert.SrcIP, err)
		return
	}
	metrics.AlertsPersisted.WithLabelValues(alert.Type, alert.Severity).Inc()
	logger.Infof("ALERT: %s [%s] %s (src=%s)", alert.Type, alert.Severity, alert.Description, alert.SrcIP)
}

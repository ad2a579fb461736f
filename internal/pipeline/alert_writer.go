package pipeline

import (
	"errors"

	"honeywatch/internal/logger"
	"honeywatch/pkg/models"
)

// AlertWriter writes alert outputs.
type AlertWriter interface {
	WriteAlerts(alerts []*models.Alert) error
	Close() error
}

// MultiWriter writes to a primary alert store and mirrors every batch to
// secondary writers. Only primary failures are reported to the caller;
// secondary failures are logged.
type MultiWriter struct {
	primary     AlertWriter
	secondaries []AlertWriter
}

// NewMultiWriter combines writers, skipping nil secondaries.
func NewMultiWriter(primary AlertWriter, secondaries ...AlertWriter) *MultiWriter {
	out := make([]AlertWriter, 0, len(secondaries))
	for _, w := range secondaries {
		if w != nil {
			out = append(out, w)
		}
	}
	return &MultiWriter{primary: primary, secondaries: out}
}

// WriteAlerts implements AlertWriter.
func (m *MultiWriter) WriteAlerts(alerts []*models.Alert) error {
	if err := m.primary.WriteAlerts(alerts); err != nil {
		return err
	}
	for _, w := range m.secondaries {
		if err := w.WriteAlerts(alerts); err != nil {
			logger.Warnf("Secondary alert writer failed: %v", err)
		}
	}
	return nil
}

// Close implements AlertWriter.
func (m *MultiWriter) Close() error {
	errs := []error{m.primary.Close()}
	for _, w := range m.secondaries {
		errs = append(errs, w.Close())
	}
	return errors.Join(errs...)
}

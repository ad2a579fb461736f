package alertjson

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"honeywatch/internal/logger"
	"honeywatch/pkg/models"
)

// Writer appends alerts to a JSON lines file. Each alert is encoded into
// one buffer and written with a single call under the lock, so concurrent
// callers never interleave partial records.
type Writer struct {
	file *os.File
	mu   sync.Mutex
}

// NewWriter opens path for appending, creating it if needed.
func NewWriter(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}

	logger.Infof("Alert JSON writer initialized: %s", path)
	return &Writer{file: f}, nil
}

// WriteAlerts appends a batch of alerts, one line each.
func (w *Writer) WriteAlerts(alerts []*models.Alert) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("alert writer is closed")
	}
	for _, alert := range alerts {
		line, err := json.Marshal(alert)
		if err != nil {
			return fmt.Errorf("failed to encode alert: %w", err)
		}
		line = append(line, '\n')
		if _, err := w.file.Write(line); err != nil {
			return fmt.Errorf("failed to write alert: %w", err)
		}
	}
	return nil
}

// Close closes the output file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}
	return nil
}

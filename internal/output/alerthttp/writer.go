package alerthttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"honeywatch/internal/logger"
	"honeywatch/internal/metrics"
	"honeywatch/pkg/models"
)

// AlertCountHeader carries the number of alerts in a posted batch.
const AlertCountHeader = "X-Honeywatch-Alert-Count"

// Writer posts alert batches to a remote collector.
type Writer struct {
	url      string
	headers  map[string]string
	maxBatch int
	client   *http.Client
}

// Config configures the HTTP writer.
type Config struct {
	URL      string
	Timeout  time.Duration
	Headers  map[string]string
	MaxBatch int
}

// ack is the optional collector response body.
type ack struct {
	Accepted *int `json:"accepted"`
}

// NewWriter creates an HTTP writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("http alert URL is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 500
	}
	return &Writer{
		url:      cfg.URL,
		headers:  cfg.Headers,
		maxBatch: cfg.MaxBatch,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// WriteAlerts posts alerts as JSON arrays of at most MaxBatch entries.
// A collector that answers {"accepted": n} with n short of the batch size
// fails the write.
func (w *Writer) WriteAlerts(alerts []*models.Alert) error {
	batch := make([]*models.Alert, 0, len(alerts))
	for _, a := range alerts {
		if a != nil {
			batch = append(batch, a)
		}
	}
	for len(batch) > 0 {
		n := len(batch)
		if n > w.maxBatch {
			n = w.maxBatch
		}
		if err := w.post(batch[:n]); err != nil {
			return err
		}
		batch = batch[n:]
	}
	return nil
}

func (w *Writer) post(alerts []*models.Alert) error {
	body, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(AlertCountHeader, strconv.Itoa(len(alerts)))
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %d alerts: %w", len(alerts), err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("post %d alerts failed with status %s", len(alerts), resp.Status)
	}

	var a ack
	if len(bytes.TrimSpace(respBody)) == 0 || json.Unmarshal(respBody, &a) != nil || a.Accepted == nil {
		return nil
	}
	if missing := len(alerts) - *a.Accepted; missing > 0 {
		metrics.AlertsRejected.Add(float64(missing))
		return fmt.Errorf("collector accepted %d of %d alerts", *a.Accepted, len(alerts))
	}
	logger.Debugf("Collector acknowledged %d alerts", *a.Accepted)
	return nil
}

// Close releases HTTP resources.
func (w *Writer) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

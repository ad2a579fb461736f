package alertclickhouse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"honeywatch/pkg/models"
)

// Config configures the ClickHouse HTTP writer.
type Config struct {
	URL      string
	Database string
	Table    string
	Username string
	Password string
	Timeout  time.Duration
	Headers  map[string]string
}

// Writer inserts alerts into ClickHouse via HTTP JSONEachRow.
type Writer struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
}

// row flattens an alert into ClickHouse-friendly columns.
type row struct {
	Timestamp   string `json:"ts"`
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Detector    string `json:"detector"`
	Source      string `json:"source"`
	SrcIP       string `json:"src_ip"`
	Session     string `json:"session"`
	CampaignID  string `json:"campaign_id"`
	StageOrder  int    `json:"stage_order"`
	Tactic      string `json:"tactic"`
	Technique   string `json:"technique"`
	TechniqueID string `json:"technique_id"`
	Command     string `json:"command"`
	Ports       []int  `json:"ports"`
	Count       int    `json:"count"`
	RawEvent    string `json:"raw_event"`
}

// NewWriter creates a ClickHouse HTTP writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("clickhouse URL is empty")
	}
	if cfg.Database == "" {
		cfg.Database = "default"
	}
	if cfg.Table == "" {
		cfg.Table = "alerts"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	q := fmt.Sprintf("INSERT INTO %s.%s FORMAT JSONEachRow", quoteIdent(cfg.Database), quoteIdent(cfg.Table))
	endpoint := strings.TrimRight(cfg.URL, "/") + "/?query=" + url.QueryEscape(q)

	headers := map[string]string{}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.Username != "" {
		headers["X-ClickHouse-User"] = cfg.Username
	}
	if cfg.Password != "" {
		headers["X-ClickHouse-Key"] = cfg.Password
	}

	return &Writer{
		endpoint: endpoint,
		headers:  headers,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// WriteAlerts inserts a batch of alerts.
func (w *Writer) WriteAlerts(alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, a := range alerts {
		if err := enc.Encode(toRow(a)); err != nil {
			return fmt.Errorf("failed to marshal alert row: %w", err)
		}
	}

	req, err := http.NewRequest(http.MethodPost, w.endpoint, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("clickhouse request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("clickhouse request failed with status %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// Close releases resources.
func (w *Writer) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

func toRow(a *models.Alert) row {
	r := row{
		Timestamp:   a.Timestamp.UTC().Format("2006-01-02 15:04:05.000"),
		Type:        a.Type,
		Severity:    a.Severity,
		Detector:    a.Detector,
		Source:      string(a.Source),
		SrcIP:       a.SrcIP,
		CampaignID:  a.CampaignID,
		StageOrder:  a.StageOrder,
		Tactic:      a.Mitre.Tactic,
		Technique:   a.Mitre.Technique,
		TechniqueID: a.Mitre.ID,
		Command:     a.Command,
		Ports:       a.Ports,
		Count:       a.Count + a.Attempts,
	}
	if r.Ports == nil {
		r.Ports = []int{}
	}
	if a.Session != nil {
		r.Session = *a.Session
	}
	if len(a.RawEvent) > 0 {
		if raw, err := json.Marshal(a.RawEvent); err == nil {
			r.RawEvent = string(raw)
		}
	}
	return r
}

func quoteIdent(v string) string {
	if v == "" {
		return ""
	}
	v = strings.ReplaceAll(v, "`", "")
	return "`" + v + "`"
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sample = `
honeywatch:
  feeds:
    session:
      mode: file
      file:
        path: /var/log/cowrie/cowrie.json
        poll_interval: 500ms
    network:
      mode: redis
      redis:
        addr: 127.0.0.1:6380
        key: honeywatch:packets
  detection:
    clock: event
    campaign_marker: OP
    dedup:
      policy: lru
      capacity: 1000
    limits:
      failed_login:
        window: 30s
        threshold: 3
  output:
    mode: clickhouse
    clickhouse:
      url: http://ch:8123
      table: honeypot_alerts
  report:
    enabled: true
    interval: 2m
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "honeywatch.yml")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	hw := cfg.Honeywatch
	if hw.Feeds.Session.File.PollInterval != 500*time.Millisecond {
		t.Fatalf("unexpected poll interval %v", hw.Feeds.Session.File.PollInterval)
	}
	if hw.Feeds.Network.Redis.Key != "honeywatch:packets" {
		t.Fatalf("unexpected network key %q", hw.Feeds.Network.Redis.Key)
	}
	if hw.Detection.Limits.FailedLogin.Window != 30*time.Second || hw.Detection.Limits.FailedLogin.Threshold != 3 {
		t.Fatalf("unexpected limit %+v", hw.Detection.Limits.FailedLogin)
	}
	if hw.Detection.Dedup.Policy != "lru" || hw.Output.ClickHouse.Table != "honeypot_alerts" || hw.Report.Interval != 2*time.Minute {
		t.Fatalf("unexpected config %+v", hw)
	}
	if err := hw.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRejectsBadFeeds(t *testing.T) {
	cases := []struct {
		cfg  HoneywatchConfig
		want string
	}{
		{HoneywatchConfig{}, "at least one feed"},
		{HoneywatchConfig{Feeds: FeedsConfig{Session: FeedConfig{Mode: "file"}}}, "feeds.session.file.path"},
		{HoneywatchConfig{Feeds: FeedsConfig{Network: FeedConfig{Mode: "kafka"}}}, "unknown mode"},
		{HoneywatchConfig{Feeds: FeedsConfig{Network: FeedConfig{Mode: "nats"}}}, "feeds.network.nats.subject"},
		{HoneywatchConfig{Feeds: FeedsConfig{Session: FeedConfig{Mode: "redis", Redis: RedisConfig{Key: "k"}}}, Detection: DetectionConfig{Clock: "utc"}}, "detection.clock"},
	}
	for _, c := range cases {
		err := c.cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), c.want) {
			t.Fatalf("Validate() = %v, want error containing %q", err, c.want)
		}
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

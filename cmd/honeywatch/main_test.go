package main

import (
	"testing"
	"time"

	"honeywatch/config"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &config.Config{}
	applyDefaults(cfg)
	hw := cfg.Honeywatch

	if hw.Detection.Clock != "wall" || hw.Detection.CampaignMarker != "CAMPAIGN" {
		t.Fatalf("unexpected detection defaults %+v", hw.Detection)
	}
	if hw.Detection.Dedup.Policy != "clear" || hw.Detection.Dedup.Capacity != 200000 {
		t.Fatalf("unexpected dedup defaults %+v", hw.Detection.Dedup)
	}
	if hw.Output.Mode != "file" || hw.Report.AlertsPath != hw.Output.File.Path {
		t.Fatalf("report must read the file store by default: %+v / %+v", hw.Output, hw.Report)
	}
	if hw.Report.Interval != 120*time.Second || hw.Pipeline.Workers != 4 {
		t.Fatalf("unexpected scheduling defaults %+v %+v", hw.Report, hw.Pipeline)
	}
	if hw.Feeds.Network.Redis.Addr != "127.0.0.1:6379" || hw.Feeds.Session.File.PollInterval != time.Second {
		t.Fatalf("unexpected feed defaults %+v", hw.Feeds)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &config.Config{}
	cfg.Honeywatch.Output.File.Path = "/data/alerts.jsonl"
	cfg.Honeywatch.Report.AlertsPath = "/data/archive.jsonl"
	cfg.Honeywatch.Detection.Dedup.Policy = "lru"
	applyDefaults(cfg)

	if cfg.Honeywatch.Report.AlertsPath != "/data/archive.jsonl" || cfg.Honeywatch.Detection.Dedup.Policy != "lru" {
		t.Fatalf("explicit values overwritten: %+v", cfg.Honeywatch)
	}
}

func TestLimitsFromMapsPortScan(t *testing.T) {
	got := limitsFrom(config.LimitsConfig{PortScan: config.LimitConfig{Window: 5 * time.Second, Threshold: 3}})
	if got.DistinctDstPorts.Window != 5*time.Second || got.DistinctDstPorts.Threshold != 3 {
		t.Fatalf("unexpected limits %+v", got)
	}
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Honeywatch HoneywatchConfig `yaml:"honeywatch"`
}

// HoneywatchConfig is the project configuration.
type HoneywatchConfig struct {
	Feeds       FeedsConfig       `yaml:"feeds"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Detection   DetectionConfig   `yaml:"detection"`
	Rules       RulesConfig       `yaml:"rules"`
	Output      OutputConfig      `yaml:"output"`
	SourceState SourceStateConfig `yaml:"source_state"`
	Report      ReportConfig      `yaml:"report"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// FeedsConfig holds the two sensor feeds.
type FeedsConfig struct {
	Session FeedConfig `yaml:"session"`
	Network FeedConfig `yaml:"network"`
}

// FeedConfig configures one feed. Mode is file|redis|nats; an empty
// mode disables the feed.
type FeedConfig struct {
	Mode  string         `yaml:"mode"`
	File  TailConfig     `yaml:"file"`
	Redis RedisConfig    `yaml:"redis"`
	NATS  NATSFeedConfig `yaml:"nats"`
}

// TailConfig controls JSON-lines file following.
type TailConfig struct {
	Path         string        `yaml:"path"`
	PollInterval time.Duration `yaml:"poll_interval"`
	FromStart    bool          `yaml:"from_start"`
}

// RedisConfig controls a Redis connection. Key is only used by feeds.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Key          string        `yaml:"key"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// NATSFeedConfig controls a NATS subject subscription.
type NATSFeedConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Queue   string `yaml:"queue"`
	Buffer  int    `yaml:"buffer"`
}

// PipelineConfig controls pipeline scheduling.
type PipelineConfig struct {
	Workers       int           `yaml:"workers"`
	QueueSize     int           `yaml:"queue_size"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// DetectionConfig controls dedup, anomaly windows and enrichment.
type DetectionConfig struct {
	Clock          string       `yaml:"clock"` // wall|event
	CampaignMarker string       `yaml:"campaign_marker"`
	Dedup          DedupConfig  `yaml:"dedup"`
	Limits         LimitsConfig `yaml:"limits"`
}

// DedupConfig controls the duplicate filter.
type DedupConfig struct {
	Policy   string `yaml:"policy"` // clear|lru
	Capacity int    `yaml:"capacity"`
}

// LimitsConfig holds one sliding window per anomaly counter.
type LimitsConfig struct {
	FailedLogin LimitConfig `yaml:"failed_login"`
	CommandRate LimitConfig `yaml:"command_rate"`
	PortScan    LimitConfig `yaml:"port_scan"`
	PacketRate  LimitConfig `yaml:"packet_rate"`
}

// LimitConfig is a window length and trigger count.
type LimitConfig struct {
	Window    time.Duration `yaml:"window"`
	Threshold int           `yaml:"threshold"`
}

// RulesConfig controls signature sources.
type RulesConfig struct {
	SignaturesPath string `yaml:"signatures_path"`
	SigmaPath      string `yaml:"sigma_path"`
}

// OutputConfig controls the alert store.
type OutputConfig struct {
	Mode       string                 `yaml:"mode"` // file|http|clickhouse
	File       FileOutputConfig       `yaml:"file"`
	HTTP       HTTPOutputConfig       `yaml:"http"`
	ClickHouse ClickHouseOutputConfig `yaml:"clickhouse"`
}

// FileOutputConfig config for local JSON output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for remote output.
type HTTPOutputConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
	// MaxBatch caps alerts per request.
	MaxBatch int `yaml:"max_batch"`
}

// ClickHouseOutputConfig config for ClickHouse HTTP JSONEachRow writes.
type ClickHouseOutputConfig struct {
	URL      string            `yaml:"url"`
	Database string            `yaml:"database"`
	Table    string            `yaml:"table"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	Timeout  time.Duration     `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
}

// SourceStateConfig controls the per-source Redis index.
type SourceStateConfig struct {
	Enabled   bool        `yaml:"enabled"`
	Redis     RedisConfig `yaml:"redis"`
	KeyPrefix string      `yaml:"key_prefix"`
}

// ReportConfig controls periodic report generation.
type ReportConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	AlertsPath string        `yaml:"alerts_path"`
	OutputDir  string        `yaml:"output_dir"`
	TopSources int64         `yaml:"top_sources"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports settings that cannot be defaulted.
func (c *HoneywatchConfig) Validate() error {
	if c.Feeds.Session.Mode == "" && c.Feeds.Network.Mode == "" {
		return fmt.Errorf("at least one feed must be configured")
	}
	for name, feed := range map[string]FeedConfig{"session": c.Feeds.Session, "network": c.Feeds.Network} {
		switch feed.Mode {
		case "":
		case "file":
			if feed.File.Path == "" {
				return fmt.Errorf("feeds.%s.file.path is required", name)
			}
		case "redis":
			if feed.Redis.Key == "" {
				return fmt.Errorf("feeds.%s.redis.key is required", name)
			}
		case "nats":
			if feed.NATS.Subject == "" {
				return fmt.Errorf("feeds.%s.nats.subject is required", name)
			}
		default:
			return fmt.Errorf("feeds.%s: unknown mode %q", name, feed.Mode)
		}
	}
	switch c.Detection.Clock {
	case "", "wall", "event":
	default:
		return fmt.Errorf("detection.clock: unknown mode %q", c.Detection.Clock)
	}
	switch c.Output.Mode {
	case "", "file", "http", "clickhouse":
	default:
		return fmt.Errorf("output.mode: unknown mode %q", c.Output.Mode)
	}
	return nil
}

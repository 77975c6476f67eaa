package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Port             int           `yaml:"port"`
	Source           string        `yaml:"source"`
	Endpoint         string        `yaml:"endpoint"`
	MQTTBroker       string        `yaml:"mqtt_broker"`
	MQTTTopic        string        `yaml:"mqtt_topic"`
	MQTTClientID     string        `yaml:"mqtt_client_id"`
	CanvasID         string        `yaml:"canvas_id"`
	StatsID          string        `yaml:"stats_id"`
	SampleURL        string        `yaml:"sample_url"`
	DiagInterval     time.Duration `yaml:"diag_interval"`
	UIRate           time.Duration `yaml:"ui_rate"`
	Debug            bool          `yaml:"debug"`
	DebugAcqRate     float64       `yaml:"debug_acq_rate"`
	DebugWidth       int           `yaml:"debug_width"`
	DebugHeight      int           `yaml:"debug_height"`
	RawLogEnabled    bool          `yaml:"raw_log"`
	RawLogDir        string        `yaml:"raw_log_dir"`
	IngestLogEvery   int           `yaml:"ingest_log_every"`
	IngestFallback   bool          `yaml:"ingest_fallback"`
	ClearResetsStats bool          `yaml:"clear_resets_stats"`
}

func Default() AppConfig {
	return AppConfig{
		Port:           8888,
		Source:         "zmq",
		Endpoint:       "tcp://localhost:31001",
		MQTTTopic:      "edge/frames",
		MQTTClientID:   "edge-viewer",
		CanvasID:       "frameCanvas",
		StatsID:        "statsContainer",
		DiagInterval:   time.Second,
		UIRate:         100 * time.Millisecond,
		DebugAcqRate:   15,
		DebugWidth:     640,
		DebugHeight:    480,
		RawLogDir:      "rawlog",
		IngestLogEvery: 100,
		IngestFallback: true,
	}
}

// Load reads a YAML file over the defaults. The result is not validated:
// callers apply their overrides first and then call Validate.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate clamps out-of-range values and rejects unusable ones.
func (c *AppConfig) Validate() error {
	switch c.Source {
	case "zmq", "mqtt", "none":
	default:
		return fmt.Errorf("unknown source %q", c.Source)
	}
	if c.Source == "mqtt" && c.MQTTBroker == "" {
		return fmt.Errorf("mqtt source needs a broker")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.CanvasID == "" {
		c.CanvasID = "frameCanvas"
	}
	if c.DiagInterval <= 0 {
		c.DiagInterval = time.Second
	}
	if c.UIRate <= 0 {
		c.UIRate = 100 * time.Millisecond
	}
	if c.DebugAcqRate <= 0 {
		c.DebugAcqRate = 15
	}
	if c.DebugWidth < 1 {
		c.DebugWidth = 640
	}
	if c.DebugHeight < 1 {
		c.DebugHeight = 480
	}
	if c.IngestLogEvery < 1 {
		c.IngestLogEvery = 1
	}
	return nil
}

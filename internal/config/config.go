package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the alarm daemon.
type Config struct {
	// Log level for the global logger
	LogLevel string `yaml:"log_level"`
	// HTTP listen address for metrics/health/alarms endpoints
	HTTPAddr string `yaml:"http_addr"`
	// Kafka record source
	Kafka KafkaConfig `yaml:"kafka"`

	// Alarms is the parsed configuration tree for the alarm group:
	// scalar defaults plus one sub-section per alarm definition.
	// Nil when the group is absent from the file.
	Alarms *Section `yaml:"-"`
}

// KafkaConfig holds the record source settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		HTTPAddr: ":8080",
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "wx.archive",
			GroupID: "wxalarm",
		},
	}
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes. The alarms group is kept as a raw
// node and rebuilt into a generic Section tree so alarm definitions stay
// free-form.
func Parse(data []byte) (*Config, error) {
	var raw struct {
		LogLevel string      `yaml:"log_level"`
		HTTPAddr string      `yaml:"http_addr"`
		Kafka    KafkaConfig `yaml:"kafka"`
		Alarms   yaml.Node   `yaml:"alarms"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := Default()
	if raw.LogLevel != "" {
		cfg.LogLevel = raw.LogLevel
	}
	if raw.HTTPAddr != "" {
		cfg.HTTPAddr = raw.HTTPAddr
	}
	if len(raw.Kafka.Brokers) > 0 {
		cfg.Kafka.Brokers = raw.Kafka.Brokers
	}
	if raw.Kafka.Topic != "" {
		cfg.Kafka.Topic = raw.Kafka.Topic
	}
	if raw.Kafka.GroupID != "" {
		cfg.Kafka.GroupID = raw.Kafka.GroupID
	}

	if raw.Alarms.Kind != 0 {
		sect, err := sectionFromNode(&raw.Alarms)
		if err != nil {
			return nil, fmt.Errorf("parse alarms group: %w", err)
		}
		cfg.Alarms = sect
	}
	return cfg, nil
}

package core

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"power-service/internal/hardware"
)

// Config is the service-level configuration: addresses, device paths and
// loop cadence. Power policy lives in the Redis-backed provider instead.
type Config struct {
	RedisHost        string `yaml:"redis_host"`
	RedisPort        int    `yaml:"redis_port"`
	MetricsAddr      string `yaml:"metrics_addr"`
	TickMs           int    `yaml:"tick_ms"`
	LEDDevice        string `yaml:"led_device"`
	LEDCount         int    `yaml:"led_count"`
	CommandQueueSize int    `yaml:"command_queue_size"`
}

func DefaultConfig() Config {
	return Config{
		RedisHost:        "localhost",
		RedisPort:        6379,
		TickMs:           50,
		LEDDevice:        hardware.LEDSpiDevice,
		LEDCount:         hardware.LEDCount,
		CommandQueueSize: 16,
	}
}

// LoadConfig overlays an optional YAML file onto the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if cfg.TickMs <= 0 {
		return cfg, fmt.Errorf("tick_ms must be positive, got %d", cfg.TickMs)
	}
	if cfg.CommandQueueSize <= 0 {
		return cfg, fmt.Errorf("command_queue_size must be positive, got %d", cfg.CommandQueueSize)
	}
	return cfg, nil
}

// TickPeriod is the event loop cadence.
func (c Config) TickPeriod() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

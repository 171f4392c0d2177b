/*
Package config loads streamsched's YAML configuration, the same
Unmarshal-into-struct style cmd/warren/apply.go uses for resource
manifests.
*/
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/streamsched/pkg/log"
)

// Config is the top-level streamsched daemon configuration.
type Config struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Store     StoreConfig     `yaml:"store"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	API       APIConfig       `yaml:"api"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SchedulerConfig carries the spec §6 configuration keys under the
// "scheduler" key.
type SchedulerConfig struct {
	StreamSize StreamSizeConfig `yaml:"streamSize"`
}

// StreamSizeConfig is "scheduler.streamSize" (spec §6).
type StreamSizeConfig struct {
	Polling PollingConfig `yaml:"polling"`
}

// PollingConfig is "scheduler.streamSize.polling".
type PollingConfig struct {
	// Delay is "scheduler.streamSize.polling.delay.seconds": the
	// fallback poll cadence. Must be > 0.
	Delay struct {
		Seconds int `yaml:"seconds"`
	} `yaml:"delay"`
	// Workers sizes the shared fixed polling pool (spec §5(b)).
	Workers int `yaml:"workers"`
}

// PollingDelay converts the configured seconds to a time.Duration.
func (c StreamSizeConfig) PollingDelay() time.Duration {
	return time.Duration(c.Polling.Delay.Seconds) * time.Second
}

// StoreConfig selects and configures the ScheduleStore (spec §6,
// ScheduleStore).
type StoreConfig struct {
	// DataDir is the directory BoltScheduleStore keeps its database
	// file under. Empty disables persistence.
	DataDir string `yaml:"dataDir"`
}

// DispatchConfig configures the ProgramDispatcher (spec §6,
// ProgramDispatcher).
type DispatchConfig struct {
	ContainerdSocket string `yaml:"containerdSocket"`
	StreamsPath      string `yaml:"streamsPath"`
}

// APIConfig configures the admin HTTP surface (SPEC_FULL.md's pkg/api).
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures pkg/log.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns a Config with every field set to the value streamsched
// uses when no file is supplied.
func Default() Config {
	cfg := Config{}
	cfg.Scheduler.StreamSize.Polling.Delay.Seconds = 30
	cfg.Scheduler.StreamSize.Polling.Workers = 10
	cfg.Store.DataDir = "/var/lib/streamsched"
	cfg.Dispatch.ContainerdSocket = ""
	cfg.API.Addr = "127.0.0.1:9091"
	cfg.Logging.Level = "info"
	return cfg
}

// Load reads and parses the YAML configuration at path, layered over
// Default. An empty path returns Default unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Scheduler.StreamSize.Polling.Delay.Seconds <= 0 {
		return Config{}, fmt.Errorf("scheduler.streamSize.polling.delay.seconds must be > 0, got %d", cfg.Scheduler.StreamSize.Polling.Delay.Seconds)
	}
	return cfg, nil
}

// LogLevel converts Logging.Level to a log.Level, defaulting to
// log.InfoLevel for an unrecognized value.
func (c LoggingConfig) LogLevel() log.Level {
	switch log.Level(c.Level) {
	case log.DebugLevel, log.WarnLevel, log.ErrorLevel:
		return log.Level(c.Level)
	default:
		return log.InfoLevel
	}
}

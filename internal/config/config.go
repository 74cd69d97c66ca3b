package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Config represents the main driver configuration
type Config struct {
	// State directory holding runs, logs, and the run registry
	DotDir string `json:"dot_dir" mapstructure:"dot_dir"`

	// Device selection defaults
	Device DeviceConfig `json:"device" mapstructure:"device"`

	// Engine launch defaults
	Engine EngineConfig `json:"engine" mapstructure:"engine"`

	// Command loop tuning
	Timeouts TimeoutsConfig `json:"timeouts" mapstructure:"timeouts"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics endpoint served during long exec sessions
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
}

// DeviceConfig holds device selection defaults
type DeviceConfig struct {
	Default string `json:"default" mapstructure:"default"` // name or UDID used when --device is absent
}

// EngineConfig holds engine launch defaults
type EngineConfig struct {
	Template        string `json:"template" mapstructure:"template"`                 // trace template name or path
	ScriptTemplate  string `json:"script_template" mapstructure:"script_template"`   // custom driver script template path
	FlushIntervalMS int    `json:"flush_interval_ms" mapstructure:"flush_interval_ms"`
}

// FlushInterval returns the script idle cadence as a duration
func (e EngineConfig) FlushInterval() time.Duration {
	return time.Duration(e.FlushIntervalMS) * time.Millisecond
}

// TimeoutsConfig tunes the command loop
type TimeoutsConfig struct {
	Send     int `json:"send" mapstructure:"send"`         // seconds
	Ack      int `json:"ack" mapstructure:"ack"`           // seconds
	Recovery int `json:"recovery" mapstructure:"recovery"` // seconds
	Pipe     int `json:"pipe" mapstructure:"pipe"`         // seconds
	PollMS   int `json:"poll_ms" mapstructure:"poll_ms"`   // milliseconds
	Retries  int `json:"retries" mapstructure:"retries"`
}

// SendTimeout returns the full-response wait as a duration
func (t TimeoutsConfig) SendTimeout() time.Duration {
	return time.Duration(t.Send) * time.Second
}

// AckTimeout returns the acknowledgement wait as a duration
func (t TimeoutsConfig) AckTimeout() time.Duration {
	return time.Duration(t.Ack) * time.Second
}

// RecoveryTimeout returns the interrupted-write probe wait as a duration
func (t TimeoutsConfig) RecoveryTimeout() time.Duration {
	return time.Duration(t.Recovery) * time.Second
}

// PipeTimeout returns the pipe open wait as a duration
func (t TimeoutsConfig) PipeTimeout() time.Duration {
	return time.Duration(t.Pipe) * time.Second
}

// PollInterval returns the log poll cadence as a duration
func (t TimeoutsConfig) PollInterval() time.Duration {
	return time.Duration(t.PollMS) * time.Millisecond
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSizeMB int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	Keep      int    `json:"keep" mapstructure:"keep"`
}

// MetricsConfig holds the optional metrics endpoint address
type MetricsConfig struct {
	Addr string `json:"addr" mapstructure:"addr"` // host:port; empty disables the endpoint
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		DotDir: "",
		Device: DeviceConfig{
			Default: "",
		},
		Engine: EngineConfig{
			Template:        "Automation",
			FlushIntervalMS: 1000,
		},
		Timeouts: TimeoutsConfig{
			Send:     60,
			Ack:      10,
			Recovery: 10,
			Pipe:     10,
			PollMS:   200,
			Retries:  3,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			MaxSizeMB: 20,
			Keep:      3,
		},
		Metrics: MetricsConfig{
			Addr: "",
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Logging.Level != "" {
		validLevels := []string{"trace", "debug", "info", "warn", "error"}
		valid := false
		for _, level := range validLevels {
			if c.Logging.Level == level {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.Logging.Level, strings.Join(validLevels, ", "))
		}
	}

	if c.Engine.FlushIntervalMS < 0 {
		return fmt.Errorf("engine.flush_interval_ms must be >= 0")
	}

	if c.Timeouts.Send < 0 {
		return fmt.Errorf("timeouts.send must be >= 0")
	}
	if c.Timeouts.Ack < 0 {
		return fmt.Errorf("timeouts.ack must be >= 0")
	}
	if c.Timeouts.Recovery < 0 {
		return fmt.Errorf("timeouts.recovery must be >= 0")
	}
	if c.Timeouts.Pipe < 0 {
		return fmt.Errorf("timeouts.pipe must be >= 0")
	}
	if c.Timeouts.PollMS < 0 {
		return fmt.Errorf("timeouts.poll_ms must be >= 0")
	}
	if c.Timeouts.Retries < 0 {
		return fmt.Errorf("timeouts.retries must be >= 0")
	}

	if c.Logging.MaxSizeMB < 0 {
		return fmt.Errorf("logging.max_size_mb must be >= 0")
	}
	if c.Logging.Keep < 0 {
		return fmt.Errorf("logging.keep must be >= 0")
	}

	return nil
}

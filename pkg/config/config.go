// Package config provides the unified configuration system for serialscope.
// It defines a single Config structure shared by the CLI, the pipeline, and
// the supporting collaborators, ensuring one place to validate settings.
//
// The configuration is organized into logical sections:
//   - Pipeline: row retention capacity, channel buffering, raw-log bounds
//   - Serial: device port parameters and lease directory
//   - Export: slice export target, format, and compression
//   - Observability: logging, tracing, metrics endpoint
//
// Example usage:
//
//	cfg := config.NewDefaultConfig("bench-rig")
//	cfg.Pipeline.RowLimit = 500
//	cfg.Serial.Port = "/dev/ttyUSB0"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"time"
)

// Config is the single unified configuration structure for a capture
// session. The zero value is not usable; construct with NewDefaultConfig
// and override as needed.
type Config struct {
	// Name identifies the capture session instance
	Name string `yaml:"name" json:"name"`

	// Pipeline settings control the core engine
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`

	// Serial settings describe the device transport
	Serial SerialConfig `yaml:"serial" json:"serial"`

	// Export settings control slice export on shutdown
	Export ExportConfig `yaml:"export" json:"export"`

	// Observability settings for logging, tracing and metrics
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// PipelineConfig contains the core engine settings. RowLimit is the one
// option the buffering engine itself recognizes; the rest tune the
// plumbing around it.
type PipelineConfig struct {
	// RowLimit is the row capacity per table generation (positive)
	RowLimit int `yaml:"row_limit" json:"row_limit"`
	// ChannelBuffer sets the capacity of the inter-stage channels
	ChannelBuffer int `yaml:"channel_buffer" json:"channel_buffer"`
	// LogHead is the number of leading raw lines retained
	LogHead int `yaml:"log_head" json:"log_head"`
	// LogTail is the number of trailing raw lines retained
	LogTail int `yaml:"log_tail" json:"log_tail"`
}

// SerialConfig contains device transport settings.
type SerialConfig struct {
	// Port is the device path (e.g. /dev/ttyUSB0, COM3)
	Port string `yaml:"port" json:"port"`
	// BaudRate in bits per second
	BaudRate int `yaml:"baud_rate" json:"baud_rate"`
	// DataBits per frame (5-8)
	DataBits int `yaml:"data_bits" json:"data_bits"`
	// Parity mode: none, odd, even, mark, space
	Parity string `yaml:"parity" json:"parity"`
	// StopBits: 1, 1.5, 2
	StopBits string `yaml:"stop_bits" json:"stop_bits"`
	// ReadBufferSize is the per-read chunk buffer size in bytes
	ReadBufferSize int `yaml:"read_buffer_size" json:"read_buffer_size"`
	// ReadTimeout bounds a single blocking read (0 = block forever)
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`
	// LockDir is the directory for port lease files ("" disables leasing)
	LockDir string `yaml:"lock_dir" json:"lock_dir"`
}

// ExportConfig controls optional slice export when a session ends.
type ExportConfig struct {
	// Path is the output file ("" disables export)
	Path string `yaml:"path" json:"path"`
	// Format selects the writer: csv or json
	Format string `yaml:"format" json:"format"`
	// Compression algorithm: none, gzip, snappy, lz4, zstd, s2, deflate
	Compression string `yaml:"compression" json:"compression"`
	// Level is the compression level (1=fastest, 9=best)
	Level int `yaml:"level" json:"level"`
}

// ObservabilityConfig contains monitoring and debugging settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// LogEncoding selects the log output format (json, console)
	LogEncoding string `yaml:"log_encoding" json:"log_encoding"`
	// Development enables colored, stack-traced development logging
	Development bool `yaml:"development" json:"development"`
	// EnableTracing activates OpenTelemetry span export
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing"`
	// TracingSampleRate controls trace sampling (0.0-1.0)
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate"`
	// MetricsAddr is the prometheus endpoint listen address ("" disables)
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	// ResourceSampleInterval sets how often process CPU/memory is sampled
	ResourceSampleInterval time.Duration `yaml:"resource_sample_interval" json:"resource_sample_interval"`
}

// NewDefaultConfig creates a Config with sensible defaults for a live
// capture session. Callers override fields as needed and then Validate.
func NewDefaultConfig(name string) *Config {
	return &Config{
		Name: name,
		Pipeline: PipelineConfig{
			RowLimit:      1000,
			ChannelBuffer: 64,
			LogHead:       10,
			LogTail:       200,
		},
		Serial: SerialConfig{
			BaudRate:       115200,
			DataBits:       8,
			Parity:         "none",
			StopBits:       "1",
			ReadBufferSize: 4096,
			ReadTimeout:    0,
		},
		Export: ExportConfig{
			Format:      "csv",
			Compression: "none",
			Level:       5,
		},
		Observability: ObservabilityConfig{
			LogLevel:               "info",
			LogEncoding:            "json",
			Development:            false,
			EnableTracing:          false,
			TracingSampleRate:      0.1,
			MetricsAddr:            "",
			ResourceSampleInterval: 30 * time.Second,
		},
	}
}

var (
	validParities = map[string]bool{"none": true, "odd": true, "even": true, "mark": true, "space": true}
	validStopBits = map[string]bool{"1": true, "1.5": true, "2": true}
	validFormats  = map[string]bool{"csv": true, "json": true}
)

// Validate validates the configuration for correctness. It checks required
// fields and ensures values are within acceptable ranges. Call this after
// loading configuration to catch errors early.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Pipeline.RowLimit <= 0 {
		return fmt.Errorf("row_limit must be positive")
	}
	if c.Pipeline.ChannelBuffer < 0 {
		return fmt.Errorf("channel_buffer cannot be negative")
	}
	if c.Pipeline.LogHead < 0 || c.Pipeline.LogTail < 0 {
		return fmt.Errorf("log_head and log_tail cannot be negative")
	}
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive")
	}
	if c.Serial.DataBits < 5 || c.Serial.DataBits > 8 {
		return fmt.Errorf("data_bits must be between 5 and 8")
	}
	if !validParities[c.Serial.Parity] {
		return fmt.Errorf("parity must be one of none, odd, even, mark, space")
	}
	if !validStopBits[c.Serial.StopBits] {
		return fmt.Errorf("stop_bits must be one of 1, 1.5, 2")
	}
	if c.Serial.ReadBufferSize <= 0 {
		return fmt.Errorf("read_buffer_size must be positive")
	}
	if !validFormats[c.Export.Format] {
		return fmt.Errorf("export format must be csv or json")
	}
	if c.Export.Level < 1 || c.Export.Level > 9 {
		return fmt.Errorf("compression level must be between 1 and 9")
	}
	if c.Observability.TracingSampleRate < 0 || c.Observability.TracingSampleRate > 1 {
		return fmt.Errorf("tracing_sample_rate must be between 0 and 1")
	}
	return nil
}

// ExportEnabled returns true if a slice export target is configured
func (e *ExportConfig) ExportEnabled() bool {
	return e.Path != ""
}

// MetricsEnabled returns true if the metrics endpoint is configured
func (o *ObservabilityConfig) MetricsEnabled() bool {
	return o.MetricsAddr != ""
}

// LeaseEnabled returns true if port leasing is configured
func (s *SerialConfig) LeaseEnabled() bool {
	return s.LockDir != ""
}

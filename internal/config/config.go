// Package config loads the bridge configuration. Every field is optional:
// unset fields are nil and the Get* accessors supply the defaults, so
// partial files are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/biostream/internal/serialmux"
)

// Device kinds.
const (
	DeviceSynthetic = "synthetic"
	DeviceSerial    = "serial"
)

// maxFileSize bounds config files.
const maxFileSize = 1 * 1024 * 1024

// Config is the root configuration.
type Config struct {
	// Loop
	PollInterval *string `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"` // duration string like "50ms"

	// Device
	Device              *string                `json:"device,omitempty" yaml:"device,omitempty"`
	RawSampleRate       *int                   `json:"raw_sample_rate,omitempty" yaml:"raw_sample_rate,omitempty"`
	DeviceBufferSeconds *float64               `json:"device_buffer_seconds,omitempty" yaml:"device_buffer_seconds,omitempty"`
	SerialPort          *string                `json:"serial_port,omitempty" yaml:"serial_port,omitempty"`
	Serial              *serialmux.PortOptions `json:"serial,omitempty" yaml:"serial,omitempty"`

	// Streams
	StreamPrefix *string `json:"stream_prefix,omitempty" yaml:"stream_prefix,omitempty"`
	SourceID     *string `json:"source_id,omitempty" yaml:"source_id,omitempty"`
	Manufacturer *string `json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"`
	UDPTarget    *string `json:"udp_target,omitempty" yaml:"udp_target,omitempty"` // "" disables
	Codec        *string `json:"codec,omitempty" yaml:"codec,omitempty"`
	PreviewRows  *int    `json:"preview_rows,omitempty" yaml:"preview_rows,omitempty"`

	// Servers
	HTTPListen  *string `json:"http_listen,omitempty" yaml:"http_listen,omitempty"`   // "" disables
	GRPCListen  *string `json:"grpc_listen,omitempty" yaml:"grpc_listen,omitempty"`   // "" disables
	JournalPath *string `json:"journal_path,omitempty" yaml:"journal_path,omitempty"` // "" disables
}

// Helper functions to create pointers
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrFloat64(v float64) *float64 { return &v }

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Defaults returns a Config with every field set to its default. SourceID
// stays unset so each run draws a fresh one.
func Defaults() *Config {
	serial, _ := serialmux.PortOptions{}.Normalize()
	return &Config{
		PollInterval:        ptrString("50ms"),
		Device:              ptrString(DeviceSynthetic),
		RawSampleRate:       ptrInt(128),
		DeviceBufferSeconds: ptrFloat64(2),
		SerialPort:          ptrString("/dev/ttyUSB0"),
		Serial:              &serial,
		StreamPrefix:        ptrString("EmotivLSL"),
		Manufacturer:        ptrString("Emotiv"),
		UDPTarget:           ptrString(""),
		Codec:               ptrString("protobuf"),
		PreviewRows:         ptrInt(256),
		HTTPListen:          ptrString(":8090"),
		GRPCListen:          ptrString(""),
		JournalPath:         ptrString(""),
	}
}

// Load reads a Config from a .json, .yaml or .yml file and validates it.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(cleanPath), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that are set.
func (c *Config) Validate() error {
	if c.PollInterval != nil && *c.PollInterval != "" {
		d, err := time.ParseDuration(*c.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid poll_interval '%s': %w", *c.PollInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("poll_interval must be positive, got %s", d)
		}
	}
	if c.Device != nil && *c.Device != "" {
		switch *c.Device {
		case DeviceSynthetic, DeviceSerial:
		default:
			return fmt.Errorf("device must be %q or %q, got %q", DeviceSynthetic, DeviceSerial, *c.Device)
		}
	}
	if c.RawSampleRate != nil && *c.RawSampleRate <= 0 {
		return fmt.Errorf("raw_sample_rate must be positive, got %d", *c.RawSampleRate)
	}
	if c.DeviceBufferSeconds != nil && *c.DeviceBufferSeconds <= 0 {
		return fmt.Errorf("device_buffer_seconds must be positive, got %f", *c.DeviceBufferSeconds)
	}
	if c.StreamPrefix != nil && strings.TrimSpace(*c.StreamPrefix) == "" {
		return fmt.Errorf("stream_prefix must not be empty")
	}
	if c.SourceID != nil && *c.SourceID != "" {
		if strings.ContainsAny(*c.SourceID, " \t\n") {
			return fmt.Errorf("source_id must not contain whitespace, got %q", *c.SourceID)
		}
	}
	if c.Codec != nil && *c.Codec != "" {
		switch *c.Codec {
		case "protobuf", "json":
		default:
			return fmt.Errorf("codec must be \"protobuf\" or \"json\", got %q", *c.Codec)
		}
	}
	if c.PreviewRows != nil && *c.PreviewRows < 0 {
		return fmt.Errorf("preview_rows must be non-negative, got %d", *c.PreviewRows)
	}
	if c.Serial != nil {
		if _, err := c.Serial.Normalize(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}
	return nil
}

// GetPollInterval parses and returns the PollInterval as a time.Duration.
func (c *Config) GetPollInterval() time.Duration {
	if c.PollInterval == nil || *c.PollInterval == "" {
		return 50 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.PollInterval)
	if err != nil || d <= 0 {
		return 50 * time.Millisecond // default on parse error
	}
	return d
}

// GetDevice returns the device kind or the default.
func (c *Config) GetDevice() string {
	if c.Device == nil || *c.Device == "" {
		return DeviceSynthetic
	}
	return *c.Device
}

// GetRawSampleRate returns the raw sample rate in Hz or the default.
func (c *Config) GetRawSampleRate() int {
	if c.RawSampleRate == nil {
		return 128
	}
	return *c.RawSampleRate
}

// GetDeviceBufferSeconds returns the device buffer length or the default.
func (c *Config) GetDeviceBufferSeconds() float64 {
	if c.DeviceBufferSeconds == nil {
		return 2
	}
	return *c.DeviceBufferSeconds
}

// GetSerialPort returns the serial device path or the default.
func (c *Config) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return "/dev/ttyUSB0"
	}
	return *c.SerialPort
}

// GetSerial returns the serial options; zero fields select the defaults
// when the port is opened.
func (c *Config) GetSerial() serialmux.PortOptions {
	if c.Serial == nil {
		return serialmux.PortOptions{}
	}
	return *c.Serial
}

// GetStreamPrefix returns the stream name prefix or the default.
func (c *Config) GetStreamPrefix() string {
	if c.StreamPrefix == nil {
		return "EmotivLSL"
	}
	return *c.StreamPrefix
}

// GetSourceID returns the configured source id, or a new random one when
// unset. Callers resolve it once per run.
func (c *Config) GetSourceID() string {
	if c.SourceID == nil || *c.SourceID == "" {
		return uuid.NewString()
	}
	return *c.SourceID
}

// GetManufacturer returns the manufacturer or the default.
func (c *Config) GetManufacturer() string {
	if c.Manufacturer == nil {
		return "Emotiv"
	}
	return *c.Manufacturer
}

// GetUDPTarget returns the UDP target; "" means disabled.
func (c *Config) GetUDPTarget() string {
	if c.UDPTarget == nil {
		return ""
	}
	return *c.UDPTarget
}

// GetCodec returns the codec name or the default.
func (c *Config) GetCodec() string {
	if c.Codec == nil || *c.Codec == "" {
		return "protobuf"
	}
	return *c.Codec
}

// GetPreviewRows returns the scope preview depth or the default.
func (c *Config) GetPreviewRows() int {
	if c.PreviewRows == nil {
		return 256
	}
	return *c.PreviewRows
}

// GetHTTPListen returns the HTTP listen address; "" means disabled.
func (c *Config) GetHTTPListen() string {
	if c.HTTPListen == nil {
		return ":8090"
	}
	return *c.HTTPListen
}

// GetGRPCListen returns the gRPC listen address; "" means disabled.
func (c *Config) GetGRPCListen() string {
	if c.GRPCListen == nil {
		return ""
	}
	return *c.GRPCListen
}

// GetJournalPath returns the journal path; "" means disabled.
func (c *Config) GetJournalPath() string {
	if c.JournalPath == nil {
		return ""
	}
	return *c.JournalPath
}

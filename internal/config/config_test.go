package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/biostream/internal/serialmux"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := Empty()

	if got := cfg.GetPollInterval(); got != 50*time.Millisecond {
		t.Errorf("GetPollInterval() = %v, want 50ms", got)
	}
	if got := cfg.GetDevice(); got != DeviceSynthetic {
		t.Errorf("GetDevice() = %q, want synthetic", got)
	}
	if got := cfg.GetRawSampleRate(); got != 128 {
		t.Errorf("GetRawSampleRate() = %d, want 128", got)
	}
	if got := cfg.GetDeviceBufferSeconds(); got != 2 {
		t.Errorf("GetDeviceBufferSeconds() = %v, want 2", got)
	}
	if got := cfg.GetStreamPrefix(); got != "EmotivLSL" {
		t.Errorf("GetStreamPrefix() = %q, want EmotivLSL", got)
	}
	if got := cfg.GetManufacturer(); got != "Emotiv" {
		t.Errorf("GetManufacturer() = %q, want Emotiv", got)
	}
	if got := cfg.GetCodec(); got != "protobuf" {
		t.Errorf("GetCodec() = %q, want protobuf", got)
	}
	if got := cfg.GetHTTPListen(); got != ":8090" {
		t.Errorf("GetHTTPListen() = %q, want :8090", got)
	}
	if cfg.GetUDPTarget() != "" || cfg.GetGRPCListen() != "" || cfg.GetJournalPath() != "" {
		t.Error("optional outputs should default to disabled")
	}
	if got := cfg.GetPreviewRows(); got != 256 {
		t.Errorf("GetPreviewRows() = %d, want 256", got)
	}
	if got := cfg.GetSerialPort(); got != "/dev/ttyUSB0" {
		t.Errorf("GetSerialPort() = %q", got)
	}
	if got := cfg.GetSerial(); got != (serialmux.PortOptions{}) {
		t.Errorf("GetSerial() = %+v, want zero options", got)
	}
}

func TestDefaultsMatchGetters(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults() invalid: %v", err)
	}
	empty := Empty()
	if cfg.GetPollInterval() != empty.GetPollInterval() ||
		cfg.GetRawSampleRate() != empty.GetRawSampleRate() ||
		cfg.GetStreamPrefix() != empty.GetStreamPrefix() ||
		cfg.GetCodec() != empty.GetCodec() ||
		cfg.GetHTTPListen() != empty.GetHTTPListen() ||
		cfg.GetPreviewRows() != empty.GetPreviewRows() {
		t.Error("Defaults() disagrees with the Get* fallbacks")
	}
	if cfg.GetSerial().BaudRate != serialmux.DefaultBaudRate {
		t.Errorf("default baud = %d", cfg.GetSerial().BaudRate)
	}
}

func TestSourceID(t *testing.T) {
	cfg := Empty()
	a, b := cfg.GetSourceID(), cfg.GetSourceID()
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("generated source id %q is not a uuid: %v", a, err)
	}
	if a == b {
		t.Error("unset source id should be drawn fresh")
	}

	cfg.SourceID = ptrString("lab-headset-3")
	if got := cfg.GetSourceID(); got != "lab-headset-3" {
		t.Errorf("GetSourceID() = %q", got)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "biostream.json", `{
  "poll_interval": "20ms",
  "device": "serial",
  "serial_port": "/dev/ttyACM0",
  "serial": {"baud_rate": 57600, "parity": "E"},
  "udp_target": "127.0.0.1:16571",
  "codec": "json"
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.GetPollInterval(); got != 20*time.Millisecond {
		t.Errorf("GetPollInterval() = %v", got)
	}
	if cfg.GetDevice() != DeviceSerial || cfg.GetSerialPort() != "/dev/ttyACM0" {
		t.Errorf("device = %q on %q", cfg.GetDevice(), cfg.GetSerialPort())
	}
	if s := cfg.GetSerial(); s.BaudRate != 57600 || s.Parity != "E" {
		t.Errorf("serial = %+v", s)
	}
	if cfg.GetUDPTarget() != "127.0.0.1:16571" || cfg.GetCodec() != "json" {
		t.Errorf("udp=%q codec=%q", cfg.GetUDPTarget(), cfg.GetCodec())
	}
	// Unset fields keep their defaults.
	if cfg.GetStreamPrefix() != "EmotivLSL" {
		t.Errorf("GetStreamPrefix() = %q", cfg.GetStreamPrefix())
	}
}

// An empty string means "use the default" wherever a getter treats it so.
func TestLoadEmptyStringsMeanDefault(t *testing.T) {
	path := writeConfig(t, "biostream.json", `{"codec": "", "device": "", "poll_interval": ""}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.GetCodec(); got != "protobuf" {
		t.Errorf("GetCodec() = %q, want protobuf", got)
	}
	if got := cfg.GetDevice(); got != DeviceSynthetic {
		t.Errorf("GetDevice() = %q, want synthetic", got)
	}
	if got := cfg.GetPollInterval(); got != 50*time.Millisecond {
		t.Errorf("GetPollInterval() = %v, want 50ms", got)
	}
}

func TestLoadYAML(t *testing.T) {
	for _, name := range []string{"biostream.yaml", "biostream.yml"} {
		path := writeConfig(t, name, `
stream_prefix: Lab
source_id: lab-1
raw_sample_rate: 256
device_buffer_seconds: 0.5
journal_path: /tmp/journal.db
http_listen: ""
serial:
  baud_rate: 9600
  stop_bits: 2
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s): %v", name, err)
		}
		if cfg.GetStreamPrefix() != "Lab" || cfg.GetSourceID() != "lab-1" {
			t.Errorf("%s: prefix=%q source=%q", name, cfg.GetStreamPrefix(), cfg.GetSourceID())
		}
		if cfg.GetRawSampleRate() != 256 || cfg.GetDeviceBufferSeconds() != 0.5 {
			t.Errorf("%s: rate=%d buffer=%v", name, cfg.GetRawSampleRate(), cfg.GetDeviceBufferSeconds())
		}
		if cfg.GetHTTPListen() != "" {
			t.Errorf("%s: explicit empty http_listen should disable, got %q", name, cfg.GetHTTPListen())
		}
		if cfg.GetSerial().StopBits != 2 {
			t.Errorf("%s: stop bits = %d", name, cfg.GetSerial().StopBits)
		}
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"bad extension", "c.toml", `x = 1`, "extension"},
		{"bad json", "c.json", `{`, "failed to parse"},
		{"bad yaml", "c.yaml", "poll_interval: [", "failed to parse"},
		{"bad interval", "c.json", `{"poll_interval": "soon"}`, "poll_interval"},
		{"negative interval", "c.json", `{"poll_interval": "-5ms"}`, "positive"},
		{"unknown device", "c.json", `{"device": "bluetooth"}`, "device"},
		{"zero rate", "c.json", `{"raw_sample_rate": 0}`, "raw_sample_rate"},
		{"zero buffer", "c.json", `{"device_buffer_seconds": 0}`, "device_buffer_seconds"},
		{"blank prefix", "c.json", `{"stream_prefix": " "}`, "stream_prefix"},
		{"spaced source", "c.json", `{"source_id": "a b"}`, "source_id"},
		{"unknown codec", "c.json", `{"codec": "xml"}`, "codec"},
		{"negative preview", "c.json", `{"preview_rows": -1}`, "preview_rows"},
		{"bad parity", "c.json", `{"serial": {"parity": "X"}}`, "serial"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingAndOversized(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	big := `{"stream_prefix": "` + strings.Repeat("x", maxFileSize) + `"}`
	if _, err := Load(writeConfig(t, "big.json", big)); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

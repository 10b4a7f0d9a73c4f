package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "simlink.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.TelemetryFPS != 20 || cfg.StallTimeout != 10 || cfg.Framing != "line" || cfg.QueueOverflow != "reject_new" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfig_Valid(t *testing.T) {
	path := writeConfig(t, `
tcp_addr: 127.0.0.1:9100
framing: length
codec: protobuf
read_timeout: 30s
tick_rate: 50
extended_telemetry: true
dispatch_mode: inline
queue_overflow: drop_oldest
redis:
  addr: localhost:6379
track:
  seed: 42
  nodes: 60
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.TCPAddr != "127.0.0.1:9100" || cfg.Codec != "protobuf" || cfg.TickRate != 50 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.ReadTimeout != 30*time.Second {
		t.Errorf("read_timeout = %v", cfg.ReadTimeout)
	}
	if !cfg.ExtendedTelemetry || cfg.DispatchMode != "inline" {
		t.Errorf("flags not applied: %+v", cfg)
	}
	// 未写出的字段保留默认值
	if cfg.TelemetryFPS != 20 || cfg.Redis.Stream != "simlink:events" || cfg.Track.Radius != 320 {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if cfg.Track.Seed != 42 || cfg.Track.Nodes != 60 {
		t.Errorf("track = %+v", cfg.Track)
	}
}

func TestLoadConfig_SchemaViolations(t *testing.T) {
	cases := map[string]string{
		"unknown framing": "framing: chunked\n",
		"negative fps":    "telemetry_fps: -1\n",
		"bad duration":    "read_timeout: soon\n",
		"wrong type":      "tick_rate: fast\n",
		"tiny track":      "track:\n  nodes: 2\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateCrossField(t *testing.T) {
	cfg := Default()
	cfg.Codec = "protobuf"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "length framing") {
		t.Fatalf("protobuf over line framing must be rejected, got %v", err)
	}
	cfg.Framing = "length"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.WSAddr = cfg.TCPAddr
	if err := cfg.Validate(); err == nil {
		t.Fatalf("shared address must be rejected")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SIMLINK_TCP_ADDR", ":9999")
	t.Setenv("SIMLINK_TELEMETRY_FPS", "10")
	t.Setenv("SIMLINK_EXTENDED_TELEMETRY", "true")
	path := writeConfig(t, "tcp_addr: \":9100\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.TCPAddr != ":9999" || cfg.TelemetryFPS != 10 || !cfg.ExtendedTelemetry {
		t.Errorf("env not applied: %+v", cfg)
	}

	t.Setenv("SIMLINK_QUEUE_CAPACITY", "lots")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for malformed env value")
	}
}

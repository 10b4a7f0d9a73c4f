package main

import (
	"strings"
	"testing"
	"time"

	"github.com/hongjun500/simlink/internal/bus/redisstream"
	"github.com/hongjun500/simlink/internal/config"
	"github.com/hongjun500/simlink/internal/protocol"
)

func TestSummarizeHidesImages(t *testing.T) {
	m := protocol.NewMessage(protocol.MsgTelemetry).
		Set("image", []byte{1, 2, 3, 4, 5, 6}).
		Set("speed", 1.5).
		Set("hit", "none")
	line, err := summarize(m, nil)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if !strings.Contains(line, `"image":"<8 bytes base64>"`) {
		t.Fatalf("image not summarised: %s", line)
	}

	line, err = summarize(m, []string{"speed"})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if strings.Contains(line, "hit") || !strings.Contains(line, `"speed":1.5`) || !strings.Contains(line, `"msg_type":"telemetry"`) {
		t.Fatalf("field filter not applied: %s", line)
	}
}

func TestControlMessageParses(t *testing.T) {
	cmd, err := protocol.ParseCommand(control(-0.25, 0.5, 0))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c := cmd.(protocol.Control)
	if c.Steering != -0.25 || c.Throttle != 0.5 || c.Brake != 0 {
		t.Fatalf("unexpected control %+v", c)
	}
}

func TestApplyServeFlagsOnlyChanged(t *testing.T) {
	cfg := config.Default()
	if err := serveCmd.Flags().Parse([]string{"--codec", "protobuf", "--framing", "length"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	applyServeFlags(serveCmd, cfg)
	if cfg.Codec != "protobuf" || cfg.Framing != "length" {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.TCPAddr != config.Default().TCPAddr {
		t.Fatalf("unchanged flag overwrote tcp_addr: %q", cfg.TCPAddr)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestFormatEvent(t *testing.T) {
	when := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	line := formatEvent(&redisstream.Event{Type: redisstream.EventEvicted, When: when, Vehicle: "car-1", Slot: 2, Reason: "stall", SimTime: 12.5})
	want := "2026-03-01T12:00:00Z vehicle_evicted vehicle=car-1 slot=2 reason=stall sim_time=12.500"
	if line != want {
		t.Fatalf("got %q, want %q", line, want)
	}
	line = formatEvent(&redisstream.Event{Type: redisstream.EventConnected, When: when, Vehicle: "car-2"})
	if line != "2026-03-01T12:00:00Z vehicle_connected vehicle=car-2" {
		t.Fatalf("empty fields should be omitted: %q", line)
	}
}

func TestApplyEventsFlagsKeepsConfigGroup(t *testing.T) {
	cfg := config.Default()
	if err := eventsCmd.Flags().Parse([]string{"--redis", "localhost:6379", "--stream", "cars"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	applyEventsFlags(eventsCmd, &cfg.Redis)
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.Stream != "cars" {
		t.Fatalf("flags not applied: %+v", cfg.Redis)
	}
	if cfg.Redis.Group != config.Default().Redis.Group {
		t.Fatalf("unchanged --group overwrote the configured group: %q", cfg.Redis.Group)
	}
}

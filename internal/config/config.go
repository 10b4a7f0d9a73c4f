// Package config 进程级配置：默认值 → YAML 文件（CUE 校验）→ SIMLINK_* 环境变量。
// 命令行参数由 cmd 层最后覆盖。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Redis struct {
	Addr   string `yaml:"addr"` // 为空时不发布生命周期事件
	DB     int    `yaml:"db"`
	Stream string `yaml:"stream"`
	Group  string `yaml:"group"`
}

type Track struct {
	Style         int     `yaml:"style"`
	Seed          int     `yaml:"seed"`
	TurnIncrement float64 `yaml:"turn_increment"`
	Nodes         int     `yaml:"nodes"`
	Radius        float64 `yaml:"radius"`
}

type Config struct {
	TCPAddr      string        `yaml:"tcp_addr"`
	WSAddr       string        `yaml:"ws_addr"`   // 为空时不启动 WebSocket
	HTTPAddr     string        `yaml:"http_addr"` // 为空时不启动 /metrics 与 /step
	Framing      string        `yaml:"framing"`
	Codec        string        `yaml:"codec"`
	OutBuffer    int           `yaml:"out_buffer"`
	MaxFrameSize int           `yaml:"max_frame_size"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	TickRate          float64 `yaml:"tick_rate"`
	TelemetryFPS      float64 `yaml:"telemetry_fps"`
	StallTimeout      float64 `yaml:"stall_timeout"`
	StallEpsilon      float64 `yaml:"stall_epsilon"`
	ExtendedTelemetry bool    `yaml:"extended_telemetry"`
	DispatchMode      string  `yaml:"dispatch_mode"`
	QueueCapacity     int     `yaml:"queue_capacity"`
	QueueOverflow     string  `yaml:"queue_overflow"`
	MaxVehicles       int     `yaml:"max_vehicles"`
	Synchronous       bool    `yaml:"synchronous"`
	TimeStep          float64 `yaml:"time_step"`
	LogLevel          string  `yaml:"log_level"`

	Redis Redis `yaml:"redis"`
	Track Track `yaml:"track"`
}

// Default 内置默认值
func Default() *Config {
	return &Config{
		TCPAddr:      ":9091",
		WSAddr:       "",
		HTTPAddr:     ":9090",
		Framing:      "line",
		Codec:        "json",
		OutBuffer:    256,
		MaxFrameSize: 1 << 20,

		TickRate:      60,
		TelemetryFPS:  20,
		StallTimeout:  10,
		StallEpsilon:  1,
		DispatchMode:  "deferred",
		QueueCapacity: 1024,
		QueueOverflow: "reject_new",
		MaxVehicles:   8,
		LogLevel:      "info",

		Redis: Redis{Stream: "simlink:events", Group: "simlink"},
		Track: Track{Seed: 1, TurnIncrement: 1, Nodes: 120, Radius: 320},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Load 读取配置。path 为空时只使用默认值与环境变量。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := ValidateYAML(path, data); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot unmarshal YAML config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		*dst = getEnv(key, *dst)
	}
	num := func(key string, dst *int) {
		if v := getEnv(key, ""); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flt := func(key string, dst *float64) {
		if v := getEnv(key, ""); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v := getEnv(key, ""); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("SIMLINK_TCP_ADDR", &c.TCPAddr)
	str("SIMLINK_WS_ADDR", &c.WSAddr)
	str("SIMLINK_HTTP_ADDR", &c.HTTPAddr)
	str("SIMLINK_FRAMING", &c.Framing)
	str("SIMLINK_CODEC", &c.Codec)
	num("SIMLINK_OUTBUF", &c.OutBuffer)
	flt("SIMLINK_TICK_RATE", &c.TickRate)
	flt("SIMLINK_TELEMETRY_FPS", &c.TelemetryFPS)
	flt("SIMLINK_STALL_TIMEOUT", &c.StallTimeout)
	boolean("SIMLINK_EXTENDED_TELEMETRY", &c.ExtendedTelemetry)
	str("SIMLINK_DISPATCH_MODE", &c.DispatchMode)
	num("SIMLINK_QUEUE_CAPACITY", &c.QueueCapacity)
	str("SIMLINK_QUEUE_OVERFLOW", &c.QueueOverflow)
	num("SIMLINK_MAX_VEHICLES", &c.MaxVehicles)
	str("SIMLINK_LOG_LEVEL", &c.LogLevel)
	str("SIMLINK_REDIS_ADDR", &c.Redis.Addr)
	num("SIMLINK_REDIS_DB", &c.Redis.DB)
	return errors.Join(errs...)
}

// Validate 字段取值与字段之间的约束
func (c *Config) Validate() error {
	var errs []error
	switch c.Framing {
	case "line", "length":
	default:
		errs = append(errs, fmt.Errorf("framing: unknown %q", c.Framing))
	}
	switch c.Codec {
	case "json", "protobuf":
	default:
		errs = append(errs, fmt.Errorf("codec: unknown %q", c.Codec))
	}
	if c.Codec == "protobuf" && c.Framing == "line" {
		errs = append(errs, errors.New("codec protobuf requires length framing"))
	}
	switch strings.ToLower(c.DispatchMode) {
	case "", "deferred", "inline":
	default:
		errs = append(errs, fmt.Errorf("dispatch_mode: unknown %q", c.DispatchMode))
	}
	switch strings.ToLower(c.QueueOverflow) {
	case "", "reject_new", "reject", "drop_oldest":
	default:
		errs = append(errs, fmt.Errorf("queue_overflow: unknown %q", c.QueueOverflow))
	}
	if c.TCPAddr == "" && c.WSAddr == "" {
		errs = append(errs, errors.New("at least one of tcp_addr and ws_addr is required"))
	}
	if c.TCPAddr != "" && c.TCPAddr == c.WSAddr {
		errs = append(errs, fmt.Errorf("tcp_addr and ws_addr both use %s", c.TCPAddr))
	}
	if c.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("tick_rate must be positive, got %v", c.TickRate))
	}
	if c.TelemetryFPS < 0 || c.StallTimeout < 0 || c.TimeStep < 0 {
		errs = append(errs, errors.New("telemetry_fps, stall_timeout and time_step must not be negative"))
	}
	if c.OutBuffer <= 0 || c.QueueCapacity <= 0 {
		errs = append(errs, errors.New("out_buffer and queue_capacity must be positive"))
	}
	return errors.Join(errs...)
}

// Package config loads the server configuration from an optional YAML file
// and DIMENSIFY_* environment variables. Environment values win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/dimensify/dimensify/internal/core/observability/log"
	"github.com/dimensify/dimensify/internal/core/telemetry"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Data      DataConfig      `yaml:"data"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"DIMENSIFY_LOG_LEVEL"`
}

type ServerConfig struct {
	ListenAddr     string        `yaml:"listen_addr"      env:"DIMENSIFY_LISTEN_ADDR"`
	QUICAddr       string        `yaml:"quic_addr"        env:"DIMENSIFY_QUIC_ADDR"`
	TickInterval   time.Duration `yaml:"tick_interval"    env:"DIMENSIFY_TICK_INTERVAL"`
	MaxMessageSize int64         `yaml:"max_message_size" env:"DIMENSIFY_MAX_MESSAGE_SIZE"`
	WriteTimeout   time.Duration `yaml:"write_timeout"    env:"DIMENSIFY_WRITE_TIMEOUT"`
}

// DataConfig selects where the command log is seeded from.
type DataConfig struct {
	Source     string `yaml:"source"      env:"DIMENSIFY_DATA_SOURCE"`
	File       string `yaml:"file"        env:"DIMENSIFY_FILE"`
	DBAddr     string `yaml:"db_addr"     env:"DIMENSIFY_DB_ADDR"`
	RecordFile string `yaml:"record_file" env:"DIMENSIFY_RECORD_FILE"`
}

type TelemetryConfig struct {
	Source   string  `yaml:"source"   env:"DIMENSIFY_TELEMETRY_SOURCE"`
	File     string  `yaml:"file"     env:"DIMENSIFY_TELEMETRY_FILE"`
	Timeline string  `yaml:"timeline" env:"DIMENSIFY_TELEMETRY_TIMELINE"`
	Mode     string  `yaml:"mode"     env:"DIMENSIFY_TELEMETRY_MODE"`
	Time     float64 `yaml:"time"     env:"DIMENSIFY_TELEMETRY_TIME"`
	ECSSync  Switch  `yaml:"ecs_sync" env:"DIMENSIFY_TELEMETRY_ECS_SYNC"`
	Capacity int     `yaml:"capacity" env:"DIMENSIFY_TELEMETRY_CAPACITY"`
}

// Switch is a boolean that reads "1", "true" and "on" as enabled and
// anything else as disabled.
type Switch bool

func (s *Switch) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "1", "true", "on", "yes":
		*s = true
	default:
		*s = false
	}
	return nil
}

func (s *Switch) UnmarshalYAML(node *yaml.Node) error {
	return s.UnmarshalText([]byte(node.Value))
}

func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Server: ServerConfig{
			ListenAddr:     "127.0.0.1:6210",
			TickInterval:   16 * time.Millisecond,
			MaxMessageSize: 4 << 20,
			WriteTimeout:   5 * time.Second,
		},
		Data: DataConfig{Source: string(SourceLocal)},
		Telemetry: TelemetryConfig{
			Source:   string(SourceLocal),
			Timeline: telemetry.DefaultTimeline,
			Mode:     telemetry.ModeLive.String(),
			Capacity: telemetry.DefaultCapacity,
		},
	}
}

// Load starts from Default, overlays the YAML file at path when path is not
// empty, then overlays the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("%w: empty listen address", ErrInvalidConfig)
	}
	if c.Server.TickInterval <= 0 {
		return fmt.Errorf("%w: tick interval must be positive", ErrInvalidConfig)
	}
	if c.Server.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: max message size must be positive", ErrInvalidConfig)
	}
	return nil
}

// LogLevel returns the parsed log level.
func (c Config) LogLevel() log.Level {
	l, _ := log.ParseLevel(c.Log.Level)
	return l
}

// Playback builds the initial telemetry playback.
func (c TelemetryConfig) Playback() telemetry.Playback {
	p := telemetry.Playback{
		Timeline: c.Timeline,
		Time:     c.Time,
		Mode:     telemetry.ParseMode(c.Mode),
	}
	if p.Timeline == "" {
		p.Timeline = telemetry.DefaultTimeline
	}
	return p
}

package app

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/droneworks/tellostation/internal/tello"
	"github.com/droneworks/tellostation/internal/video"
)

const defaultVideoPort = 11111

// Config represents the main application configuration
type Config struct {
	Settings Settings      `yaml:"settings"`
	Drone    DroneConfig   `yaml:"drone"`
	Video    VideoConfig   `yaml:"video"`
	Storage  StorageConfig `yaml:"storage"`
	HUD      HUDConfig     `yaml:"hud"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// DroneConfig represents the vehicle connection settings
type DroneConfig struct {
	Addr             string  `yaml:"addr"`
	LocalCommandPort int     `yaml:"localCommandPort"`
	TelemetryPort    int     `yaml:"telemetryPort"`
	VideoPort        int     `yaml:"videoPort"`
	KeepAliveIdle    float64 `yaml:"keepAliveIdle"` // seconds, 0 disables
}

// VideoConfig represents video stream settings
type VideoConfig struct {
	Enabled          bool    `yaml:"enabled"`
	StableThreshold  int     `yaml:"stableThreshold"`
	StartTimeout     float64 `yaml:"startTimeout"`     // seconds
	FrameTimeout     float64 `yaml:"frameTimeout"`     // seconds
	SnapshotInterval float64 `yaml:"snapshotInterval"` // seconds, 0 disables
	SnapshotDir      string  `yaml:"snapshotDir"`
}

// StorageConfig represents flight log storage settings
type StorageConfig struct {
	DataDirectory     string  `yaml:"dataDirectory"`
	TelemetryInterval float64 `yaml:"telemetryInterval"` // seconds
	MaxBatchSize      int     `yaml:"maxBatchSize"`
}

// HUDConfig represents the telemetry overlay settings
type HUDConfig struct {
	Enabled  bool   `yaml:"enabled"`
	FontPath string `yaml:"fontPath"`
}

// LoadConfig reads and validates the yaml configuration at path, filling
// unset fields with defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	config := Config{
		Drone: DroneConfig{
			Addr:             tello.DefaultDroneAddr,
			LocalCommandPort: tello.DefaultLocalCommandPort,
			TelemetryPort:    tello.DefaultTelemetryPort,
			VideoPort:        defaultVideoPort,
			KeepAliveIdle:    tello.DefaultKeepAliveIdle.Seconds(),
		},
		Video: VideoConfig{
			StableThreshold: video.DefaultStableThreshold,
			StartTimeout:    video.DefaultStartTimeout.Seconds(),
			FrameTimeout:    video.DefaultFrameTimeout.Seconds(),
		},
		Storage: StorageConfig{
			TelemetryInterval: 1,
			MaxBatchSize:      50,
		},
	}
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if config.Drone.VideoPort <= 0 {
		return nil, fmt.Errorf("invalid video port %d", config.Drone.VideoPort)
	}
	if config.Storage.TelemetryInterval <= 0 {
		return nil, fmt.Errorf("invalid telemetry interval %f", config.Storage.TelemetryInterval)
	}
	if config.Storage.MaxBatchSize <= 0 {
		return nil, fmt.Errorf("invalid max batch size %d", config.Storage.MaxBatchSize)
	}
	if config.HUD.Enabled && config.HUD.FontPath == "" {
		return nil, fmt.Errorf("hud is enabled but no font path is configured")
	}

	return &config, nil
}

// SlogLevel maps the configured log level name onto a slog level.
// Unrecognized names fall back to info.
func (s Settings) SlogLevel() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// Package config loads the application settings file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dudu/blazelive/internal/camera"
	"github.com/dudu/blazelive/internal/snapshot"
)

// Environment variables that override the file
const (
	EnvORTLib = "BLAZE_ORT_LIB"
	EnvDBURL  = "BLAZE_DB_URL"
)

// Camera selects and sizes the capture device
type Camera struct {
	Source string `yaml:"source"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// Server configures the HTTP API
type Server struct {
	Addr         string `yaml:"addr"`
	MaxUploadMiB int64  `yaml:"max_upload_mib"`
}

// Config holds application settings
type Config struct {
	Blaze             string  `yaml:"blaze"`
	Model1            string  `yaml:"model1"`
	Model2            string  `yaml:"model2"`
	Backend           string  `yaml:"backend"`
	Threads           int     `yaml:"threads"`
	ORTLib            string  `yaml:"ort_lib"`
	Domains           string  `yaml:"domains"`
	MinScore          float32 `yaml:"min_score"`
	PresenceThreshold float32 `yaml:"presence_threshold"`
	CaptureDir        string  `yaml:"capture_dir"`
	StillImage        string  `yaml:"still_image"`
	DatabaseURL       string  `yaml:"database_url"`
	Debug             bool    `yaml:"debug"`
	Profile           bool    `yaml:"profile"`
	Camera            Camera  `yaml:"camera"`
	Server            Server  `yaml:"server"`
}

// Default returns the settings used when no file is given
func Default() Config {
	return Config{
		Blaze:             "hand",
		Backend:           "onnx",
		PresenceThreshold: 0.5,
		CaptureDir:        snapshot.DefaultDir,
		Camera: Camera{
			Width:  camera.DefaultWidth,
			Height: camera.DefaultHeight,
		},
		Server: Server{
			Addr:         ":8080",
			MaxUploadMiB: 16,
		},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := decode(bytes.NewReader(data), &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvORTLib); v != "" && c.ORTLib == "" {
		c.ORTLib = v
	}
	if v := os.Getenv(EnvDBURL); v != "" && c.DatabaseURL == "" {
		c.DatabaseURL = v
	}
}

// Validate checks value ranges
func (c Config) Validate() error {
	switch c.Backend {
	case "onnx", "coreml":
	default:
		return fmt.Errorf("unknown backend %q, must be onnx or coreml", c.Backend)
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("min_score must be within [0,1], got %v", c.MinScore)
	}
	if c.PresenceThreshold < 0 || c.PresenceThreshold > 1 {
		return fmt.Errorf("presence_threshold must be within [0,1], got %v", c.PresenceThreshold)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("camera size must be positive, got %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Threads < 0 {
		return fmt.Errorf("threads must not be negative")
	}
	return nil
}

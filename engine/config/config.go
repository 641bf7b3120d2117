package config

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/anima-rhi/engine/core"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/metadata"
)

type RendererConfig struct {
	// Driver name, see metadata.ParseDriver.
	Driver string `toml:"driver"`
	// Upper bound of live native handles per backend.
	MaxHandles int `toml:"max_handles"`
	// Initial capacity of the command thread's pending action list.
	CommandQueueSize int `toml:"command_queue_size"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type ShadersConfig struct {
	// Directory holding .shadercfg manifests and their sources.
	Dir string `toml:"dir"`
	// Rebuild shaders when their files change.
	Watch bool `toml:"watch"`
	// Maximum number of shaders the shader system keeps.
	MaxCount int `toml:"max_count"`
}

type WindowConfig struct {
	Enabled bool   `toml:"enabled"`
	Title   string `toml:"title"`
	Width   int    `toml:"width"`
	Height  int    `toml:"height"`
}

type OutputConfig struct {
	// Path of the BMP snapshot written by the demo. Empty disables it.
	Snapshot string `toml:"snapshot"`
}

// Config is the TOML configuration of an application built on the renderer.
type Config struct {
	Renderer RendererConfig `toml:"renderer"`
	Log      LogConfig      `toml:"log"`
	Shaders  ShadersConfig  `toml:"shaders"`
	Window   WindowConfig   `toml:"window"`
	Output   OutputConfig   `toml:"output"`
}

func Default() *Config {
	return &Config{
		Renderer: RendererConfig{
			Driver:           metadata.DriverPrivate.String(),
			MaxHandles:       4096,
			CommandQueueSize: 256,
		},
		Log: LogConfig{
			Level: "info",
		},
		Shaders: ShadersConfig{
			Dir:      "assets/shaders",
			Watch:    true,
			MaxCount: 1024,
		},
		Window: WindowConfig{
			Enabled: false,
			Title:   "anima",
			Width:   1280,
			Height:  720,
		},
		Output: OutputConfig{
			Snapshot: "frame.bmp",
		},
	}
}

// Load reads the file at path on top of the defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a TOML document on top of the defaults. Unknown keys are
// rejected so typos do not silently fall back to a default.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, core.NewConfigurationError("config", "%s", strict.String())
		}
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return nil, core.NewConfigurationError("config", "line %d column %d: %s", row, col, decodeErr.Error())
		}
		return nil, core.NewConfigurationError("config", "%s", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges. It returns the first problem found.
func (c *Config) Validate() error {
	if _, err := metadata.ParseDriver(c.Renderer.Driver); err != nil {
		return err
	}
	if c.Renderer.MaxHandles < 1 {
		return core.NewConfigurationError("renderer.max_handles", "must be at least 1, got %d", c.Renderer.MaxHandles)
	}
	if c.Renderer.CommandQueueSize < 1 {
		return core.NewConfigurationError("renderer.command_queue_size", "must be at least 1, got %d", c.Renderer.CommandQueueSize)
	}
	if c.Shaders.MaxCount < 1 {
		return core.NewConfigurationError("shaders.max_count", "must be at least 1, got %d", c.Shaders.MaxCount)
	}
	if c.Window.Enabled && (c.Window.Width <= 0 || c.Window.Height <= 0) {
		return core.NewConfigurationError("window", "size must be positive, got %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Window.Width < 0 || c.Window.Height < 0 {
		return core.NewConfigurationError("window", "size must not be negative, got %dx%d", c.Window.Width, c.Window.Height)
	}
	return nil
}

// Driver returns the parsed renderer driver. Validate must have succeeded.
func (c *Config) Driver() metadata.Driver {
	d, _ := metadata.ParseDriver(c.Renderer.Driver)
	return d
}

// Marshal encodes the configuration as TOML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

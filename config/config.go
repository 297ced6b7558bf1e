package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for configuration files that are neither TOML nor YAML.
var ErrUnsupportedFormat = errors.New("config: unsupported format")

// Format is the encoding of a configuration file.
type Format int

const (
	// FormatTOML is read with go-toml.
	FormatTOML Format = iota
	// FormatYAML is read with yaml.v3.
	FormatYAML
)

// Config is the viewer configuration. Every field has a default, so an empty file is valid.
type Config struct {
	Window   WindowConfig   `toml:"window" yaml:"window"`
	Renderer RendererConfig `toml:"renderer" yaml:"renderer"`
	Camera   CameraConfig   `toml:"camera" yaml:"camera"`
	Culling  CullingConfig  `toml:"culling" yaml:"culling"`
	LDraw    LDrawConfig    `toml:"ldraw" yaml:"ldraw"`
}

// WindowConfig sizes the viewer window.
type WindowConfig struct {
	Title  string `toml:"title" yaml:"title"`
	Width  int    `toml:"width" yaml:"width"`
	Height int    `toml:"height" yaml:"height"`
}

// RendererConfig selects the adapter and the surface behavior.
type RendererConfig struct {
	// MSAA is the sample count: 1 or 4.
	MSAA     int  `toml:"msaa" yaml:"msaa"`
	VSync    bool `toml:"vsync" yaml:"vsync"`
	Software bool `toml:"software" yaml:"software"`
	// Profile prints frame and culling statistics once per second.
	Profile bool `toml:"profile" yaml:"profile"`
	// FrameLimit caps the render loop in frames per second; 0 is uncapped.
	FrameLimit float64 `toml:"frame_limit" yaml:"frame_limit"`
}

// CameraConfig sets the projection and the initial view.
type CameraConfig struct {
	// FovY is the vertical field of view in radians.
	FovY        float32    `toml:"fov_y" yaml:"fov_y"`
	Near        float32    `toml:"near" yaml:"near"`
	Far         float32    `toml:"far" yaml:"far"`
	Translation [3]float32 `toml:"translation" yaml:"translation"`
	// ZoomFactor is the fraction of the distance moved per scroll line.
	ZoomFactor float32 `toml:"zoom_factor" yaml:"zoom_factor"`
}

// CullingConfig selects the draw strategy.
type CullingConfig struct {
	// ForceReadback draws with the CPU read-back count even when indirect count draws exist.
	ForceReadback bool `toml:"force_readback" yaml:"force_readback"`
}

// LDrawConfig locates the parts library and controls reloading.
type LDrawConfig struct {
	Library string `toml:"library" yaml:"library"`
	Watch   bool   `toml:"watch" yaml:"watch"`
	// WatchQuietMillis is how long the model folder must stay unchanged before a reload.
	WatchQuietMillis int `toml:"watch_quiet_ms" yaml:"watch_quiet_ms"`
}

// Default returns the viewer defaults.
func Default() Config {
	return Config{
		Window: WindowConfig{
			Title:  "ldrview",
			Width:  1280,
			Height: 720,
		},
		Renderer: RendererConfig{
			MSAA:  4,
			VSync: true,
		},
		Camera: CameraConfig{
			FovY:        0.5,
			Near:        0.1,
			Far:         10000,
			Translation: [3]float32{0, -0.5, -200},
			ZoomFactor:  0.1,
		},
		LDraw: LDrawConfig{
			WatchQuietMillis: 200,
		},
	}
}

// FormatFromPath picks the format from a file extension.
//
// Parameters:
//   - path: the configuration file path
//
// Returns:
//   - Format: FormatTOML for .toml, FormatYAML for .yaml and .yml
//   - error: ErrUnsupportedFormat for any other extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Load reads a configuration file over the defaults and validates the result.
//
// Parameters:
//   - path: a .toml, .yaml or .yml file
//
// Returns:
//   - Config: the merged configuration
//   - error: ErrUnsupportedFormat, a read or decode error, or a validation error
func Load(path string) (Config, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Decode(bytes.NewReader(data), format)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads a configuration over the defaults. Unknown keys are rejected.
//
// Parameters:
//   - r: the encoded configuration
//   - format: the encoding of r
//
// Returns:
//   - Config: the merged and validated configuration
//   - error: a decode or validation error
func Decode(r io.Reader, format Format) (Config, error) {
	cfg := Default()
	switch format {
	case FormatTOML:
		if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return Config{}, fmt.Errorf("unknown keys: %s", strict.String())
			}
			return Config{}, err
		}
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("%w: %d", ErrUnsupportedFormat, format)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting out of range.
func (c Config) Validate() error {
	switch {
	case c.Window.Width <= 0 || c.Window.Height <= 0:
		return fmt.Errorf("config: window size %dx%d must be positive", c.Window.Width, c.Window.Height)
	case c.Renderer.MSAA != 1 && c.Renderer.MSAA != 4:
		return fmt.Errorf("config: msaa must be 1 or 4, got %d", c.Renderer.MSAA)
	case c.Renderer.FrameLimit < 0:
		return fmt.Errorf("config: frame_limit must not be negative")
	case c.Camera.FovY <= 0 || c.Camera.FovY >= math.Pi:
		return fmt.Errorf("config: fov_y %g must be in (0, pi) radians", c.Camera.FovY)
	case c.Camera.Near <= 0 || c.Camera.Far <= c.Camera.Near:
		return fmt.Errorf("config: clip planes need 0 < near < far, got %g and %g", c.Camera.Near, c.Camera.Far)
	case c.Camera.ZoomFactor <= 0:
		return fmt.Errorf("config: zoom_factor must be positive")
	case c.LDraw.WatchQuietMillis < 0:
		return fmt.Errorf("config: watch_quiet_ms must not be negative")
	}
	return nil
}

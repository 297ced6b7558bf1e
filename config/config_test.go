package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestDecodeTOML(t *testing.T) {
	src := `
[window]
width = 800
height = 600

[renderer]
msaa = 1
vsync = false

[camera]
translation = [0.0, 0.0, -50.0]

[culling]
force_readback = true

[ldraw]
library = "/opt/ldraw"
watch = true
`
	cfg, err := Decode(strings.NewReader(src), FormatTOML)
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.Window.Width)
	assert.Equal(t, "ldrview", cfg.Window.Title)
	assert.Equal(t, 1, cfg.Renderer.MSAA)
	assert.False(t, cfg.Renderer.VSync)
	assert.Equal(t, [3]float32{0, 0, -50}, cfg.Camera.Translation)
	assert.Equal(t, float32(0.5), cfg.Camera.FovY)
	assert.True(t, cfg.Culling.ForceReadback)
	assert.Equal(t, "/opt/ldraw", cfg.LDraw.Library)
	assert.True(t, cfg.LDraw.Watch)
	assert.Equal(t, 200, cfg.LDraw.WatchQuietMillis)
}

func TestDecodeYAML(t *testing.T) {
	src := `
window:
  title: bricks
renderer:
  software: true
  profile: true
camera:
  fov_y: 0.8
  far: 500
`
	cfg, err := Decode(strings.NewReader(src), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "bricks", cfg.Window.Title)
	assert.Equal(t, 1280, cfg.Window.Width)
	assert.True(t, cfg.Renderer.Software)
	assert.True(t, cfg.Renderer.Profile)
	assert.Equal(t, float32(0.8), cfg.Camera.FovY)
	assert.Equal(t, float32(500), cfg.Camera.Far)
}

func TestDecodeEmptyUsesDefaults(t *testing.T) {
	for _, format := range []Format{FormatTOML, FormatYAML} {
		cfg, err := Decode(strings.NewReader(""), format)
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	}
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	_, err := Decode(strings.NewReader("[window]\ncolour = \"red\"\n"), FormatTOML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")

	_, err = Decode(strings.NewReader("window:\n  colour: red\n"), FormatYAML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")
}

func TestDecodeValidates(t *testing.T) {
	cases := map[string]string{
		"msaa":   "[renderer]\nmsaa = 2\n",
		"size":   "[window]\nwidth = 0\n",
		"clip":   "[camera]\nnear = 10.0\nfar = 5.0\n",
		"fov":    "[camera]\nfov_y = 0.0\n",
		"zoom":   "[camera]\nzoom_factor = -1.0\n",
		"frames": "[renderer]\nframe_limit = -5.0\n",
		"quiet":  "[ldraw]\nwatch_quiet_ms = -1\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(src), FormatTOML)
			require.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "viewer.yml")
	require.NoError(t, os.WriteFile(path, []byte("renderer:\n  msaa: 1\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Renderer.MSAA)

	_, err = Load(filepath.Join(dir, "viewer.json"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(filepath.Join(dir, "absent.toml"))
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[renderer]\nmsaa = \"four\"\n"), 0o644))
	_, err = Load(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad)
}

func TestFormatFromPath(t *testing.T) {
	f, err := FormatFromPath("A.TOML")
	require.NoError(t, err)
	assert.Equal(t, FormatTOML, f)
	f, err = FormatFromPath("a.yaml")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)
	_, err = FormatFromPath("a")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

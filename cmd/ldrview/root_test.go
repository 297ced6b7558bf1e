package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-ldr/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) func(library string) (config.Config, error) {
	t.Helper()
	cmd := newRootCommand()
	require.NoError(t, cmd.ParseFlags(args))
	f := &flags{}
	f.configPath, _ = cmd.Flags().GetString("config")
	f.msaa, _ = cmd.Flags().GetInt("msaa")
	f.vsync, _ = cmd.Flags().GetBool("vsync")
	f.software, _ = cmd.Flags().GetBool("software")
	f.forceReadback, _ = cmd.Flags().GetBool("force-readback")
	f.watch, _ = cmd.Flags().GetBool("watch")
	f.profile, _ = cmd.Flags().GetBool("profile")
	return func(library string) (config.Config, error) {
		return resolveConfig(cmd, f, library)
	}
}

func TestResolveConfigDefaults(t *testing.T) {
	resolve := parse(t)
	cfg, err := resolve("/ldraw")
	require.NoError(t, err)

	want := config.Default()
	want.LDraw.Library = "/ldraw"
	assert.Equal(t, want, cfg)
}

func TestResolveConfigFlagsOverride(t *testing.T) {
	resolve := parse(t, "--msaa=1", "--vsync=false", "--software", "--force-readback", "--watch", "--profile")
	cfg, err := resolve("/ldraw")
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Renderer.MSAA)
	assert.False(t, cfg.Renderer.VSync)
	assert.True(t, cfg.Renderer.Software)
	assert.True(t, cfg.Culling.ForceReadback)
	assert.True(t, cfg.LDraw.Watch)
	assert.True(t, cfg.Renderer.Profile)
}

func TestResolveConfigFileKeepsUnsetFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ldrview.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[renderer]
msaa = 1
vsync = false

[culling]
force_readback = true
`), 0o644))

	resolve := parse(t, "--config", path, "--vsync=true")
	cfg, err := resolve("/ldraw")
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Renderer.MSAA)
	assert.True(t, cfg.Renderer.VSync)
	assert.True(t, cfg.Culling.ForceReadback)
}

func TestResolveConfigRejectsInvalidFlags(t *testing.T) {
	resolve := parse(t, "--msaa=3")
	_, err := resolve("/ldraw")
	assert.Error(t, err)
}

func TestResolveConfigMissingFile(t *testing.T) {
	resolve := parse(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := resolve("/ldraw")
	assert.Error(t, err)
}

func TestRootCommandRequiresTwoArguments(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"/ldraw"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	assert.Error(t, cmd.Execute())
}

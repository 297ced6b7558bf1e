package main

import (
	"log"
	"path/filepath"
	"runtime"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-ldr/config"
	"github.com/Carmen-Shannon/oxy-ldr/engine"
	"github.com/Carmen-Shannon/oxy-ldr/engine/camera"
	"github.com/Carmen-Shannon/oxy-ldr/engine/loader"
	"github.com/Carmen-Shannon/oxy-ldr/engine/orchestrator"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-ldr/engine/window"
	"github.com/spf13/cobra"
)

// flags holds the command line overrides. Only flags set on the command line replace
// configuration file values.
type flags struct {
	configPath    string
	msaa          int
	vsync         bool
	software      bool
	forceReadback bool
	watch         bool
	profile       bool
}

func newRootCommand() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "ldrview <ldraw-dir> <model-file>",
		Short: "View an LDraw model with two-pass GPU occlusion culling",
		Long: "ldrview loads an LDraw model (.ldr, .mpd or .dat) against a parts library and draws it\n" +
			"with hierarchical-Z occlusion culling and indirect draw compaction.\n\n" +
			"Left drag rotates, right drag pans, the scroll wheel zooms and Escape quits.",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f, args[0])
			if err != nil {
				return err
			}
			return run(cfg, args[1])
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.configPath, "config", "c", "", "configuration file (.toml, .yaml or .yml)")
	fs.IntVar(&f.msaa, "msaa", 4, "MSAA sample count: 1 or 4")
	fs.BoolVar(&f.vsync, "vsync", true, "wait for vertical sync when presenting")
	fs.BoolVar(&f.software, "software", false, "force a software (fallback) adapter")
	fs.BoolVar(&f.forceReadback, "force-readback", false, "read the draw counts back to the CPU even when indirect count draws are supported")
	fs.BoolVar(&f.watch, "watch", false, "reload the model when files in its folder change")
	fs.BoolVar(&f.profile, "profile", false, "print frame and culling statistics once per second")
	return cmd
}

// resolveConfig merges the defaults, the configuration file and the flags set on the command
// line, in that order, and validates the result.
//
// Parameters:
//   - cmd: the command whose flags were parsed
//   - f: the parsed flag values
//   - library: the LDraw library folder from the arguments
//
// Returns:
//   - config.Config: the configuration to run with
//   - error: a load or validation error
func resolveConfig(cmd *cobra.Command, f *flags, library string) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return config.Config{}, err
		}
	}

	changed := cmd.Flags().Changed
	if changed("msaa") {
		cfg.Renderer.MSAA = f.msaa
	}
	if changed("vsync") {
		cfg.Renderer.VSync = f.vsync
	}
	if changed("software") {
		cfg.Renderer.Software = f.software
	}
	if changed("force-readback") {
		cfg.Culling.ForceReadback = f.forceReadback
	}
	if changed("watch") {
		cfg.LDraw.Watch = f.watch
	}
	if changed("profile") {
		cfg.Renderer.Profile = f.profile
	}
	cfg.LDraw.Library = library

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// run builds the viewer from a configuration, shows the model and blocks until the window
// closes.
func run(cfg config.Config, modelPath string) error {
	win := window.NewWindow(
		window.WithTitle(cfg.Window.Title),
		window.WithSize(cfg.Window.Width, cfg.Window.Height),
	)

	presentMode := renderer.PresentModeVSync
	if !cfg.Renderer.VSync {
		presentMode = renderer.PresentModeUncapped
	}
	r := renderer.NewRenderer(
		renderer.BackendTypeWGPU,
		win,
		renderer.WithPresentMode(presentMode),
		renderer.WithMSAA(renderer.MSAASampleCount(cfg.Renderer.MSAA)),
		renderer.WithForceSoftwareRenderer(cfg.Renderer.Software),
	)

	t := cfg.Camera.Translation
	cam := camera.NewCamera(
		camera.WithFov(cfg.Camera.FovY),
		camera.WithAspect(float32(win.Width())/float32(win.Height())),
		camera.WithClip(cfg.Camera.Near, cfg.Camera.Far),
		camera.WithController(camera.NewCameraController(
			camera.WithTranslation(t[0], t[1], t[2]),
			camera.WithZoomFactor(cfg.Camera.ZoomFactor),
		)),
	)

	pool := worker.NewDynamicWorkerPool(runtime.NumCPU(), 256, time.Second)
	defer pool.Stop()

	ld := loader.NewLoader(loader.BackendTypeLDraw,
		loader.WithLibrary(cfg.LDraw.Library),
		loader.WithWorkerPool(pool),
	)

	orch, err := orchestrator.NewFrameOrchestrator(r, cam,
		orchestrator.WithForceReadback(cfg.Culling.ForceReadback),
		orchestrator.WithLabel(filepath.Base(modelPath)),
	)
	if err != nil {
		win.Close()
		return err
	}

	eng := engine.NewEngine(
		engine.WithWindow(win),
		engine.WithRenderer(r),
		engine.WithCamera(cam),
		engine.WithOrchestrator(orch),
		engine.WithLoader(ld),
		engine.WithWorkerPool(pool),
		engine.WithProfiling(cfg.Renderer.Profile),
		engine.WithRenderFrameLimit(cfg.Renderer.FrameLimit),
		engine.WithWatch(cfg.LDraw.Watch, time.Duration(cfg.LDraw.WatchQuietMillis)*time.Millisecond),
	)
	if err := eng.LoadModel(modelPath); err != nil {
		orch.Release()
		win.Close()
		return err
	}
	if cfg.LDraw.Watch {
		log.Printf("ldrview: watching %s", filepath.Dir(modelPath))
	}
	return eng.Run()
}

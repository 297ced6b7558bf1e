package engine

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-ldr/engine/camera"
	"github.com/Carmen-Shannon/oxy-ldr/engine/loader"
	"github.com/Carmen-Shannon/oxy-ldr/engine/model"
	"github.com/Carmen-Shannon/oxy-ldr/engine/orchestrator"
	"github.com/Carmen-Shannon/oxy-ldr/engine/profiler"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-ldr/engine/scene"
	"github.com/Carmen-Shannon/oxy-ldr/engine/window"
)

// engine implements the Engine interface.
// Coordinates engine, render, and window threads.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates
	resizeChannel   chan [2]int        // Latest pending surface size, consumed by the render loop

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	window       window.Window
	renderer     renderer.Renderer
	camera       camera.Camera
	orchestrator orchestrator.FrameOrchestrator
	loader       loader.Loader
	pool         worker.DynamicWorkerPool
	ownsPool     bool

	watchEnabled bool
	watchQuiet   time.Duration

	mu        *sync.Mutex // guards the fields below
	modelPath string
	buffers   scene.SceneBuffers
	watcher   loader.Watcher
	fatalErr  error

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
}

// Engine is the main entry point of the viewer.
// It owns the window input, the render loop driving the frame orchestrator and the loaded model.
type Engine interface {
	// Window returns the underlying window.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Camera returns the camera driven by window input.
	Camera() camera.Camera

	// Orchestrator returns the frame orchestrator drawing the model.
	Orchestrator() orchestrator.FrameOrchestrator

	// EnableProfiler enables the once-per-second frame and culling summary.
	EnableProfiler()

	// DisableProfiler disables the profiling summary.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after each render frame.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// LoadModel loads an LDraw model, uploads it and hands it to the orchestrator. The previous
	// model's buffers are released once the orchestrator has switched. With watching enabled the
	// model's folder is watched and changes reload it.
	//
	// Parameters:
	//   - path: the .ldr, .mpd or .dat file to show
	//
	// Returns:
	//   - error: an error if loading, uploading or binding fails; the previous model stays shown
	LoadModel(path string) error

	// Reload reloads the current model from disk.
	//
	// Returns:
	//   - error: an error if no model is loaded or the reload fails
	Reload() error

	// ModelPath returns the path of the model being shown, or "" before the first LoadModel.
	ModelPath() string

	// Run starts the engine loops and blocks until the window closes or a fatal frame error
	// stops the render loop.
	//
	// Returns:
	//   - error: the fatal error that stopped rendering, or nil after a normal close
	Run() error

	// Quit signals all engine goroutines to stop and closes the window.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine instance with the provided options.
// Window input is wired to the camera's controller and resizes are forwarded to the render loop.
//
// Parameters:
//   - options: functional options for engine configuration (window, renderer, camera, orchestrator, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		tickRateChannel:  make(chan time.Duration, 1),
		resizeChannel:    make(chan [2]int, 1),
		quitChannel:      make(chan struct{}),
		running:          false,
		wg:               sync.WaitGroup{},
		mu:               &sync.Mutex{},
		profilingEnabled: false,
		engineTickRate:   time.Second / 60,
		watchQuiet:       200 * time.Millisecond,
	}

	for _, opt := range options {
		opt(e)
	}

	if e.profiler == nil {
		e.profiler = profiler.NewProfiler()
	}
	if e.pool == nil {
		e.pool = worker.NewDynamicWorkerPool(runtime.NumCPU(), 256, time.Second)
		e.ownsPool = true
	}
	if e.loader == nil {
		e.loader = loader.NewLoader(loader.BackendTypeLDraw, loader.WithWorkerPool(e.pool))
	}
	if e.window != nil {
		e.bindInput()
	}

	return e
}

// bindInput routes window events to the camera controller and the resize channel.
func (e *engine) bindInput() {
	e.window.SetResizeCallback(func(width, height int) {
		size := [2]int{width, height}
		// Keep only the latest size.
		select {
		case e.resizeChannel <- size:
		default:
			select {
			case <-e.resizeChannel:
			default:
			}
			e.resizeChannel <- size
		}
	})
	e.window.SetMouseButtonCallback(func(button int, pressed bool, x, y float32) {
		if ctrl := e.controller(); ctrl != nil {
			ctrl.MouseButton(button, pressed, x, y)
		}
	})
	e.window.SetMouseMoveCallback(func(x, y float32) {
		if ctrl := e.controller(); ctrl != nil {
			ctrl.MouseMove(x, y, e.window.CursorHeight(), e.camera.Fov())
		}
	})
	e.window.SetScrollCallback(func(lines float32) {
		if ctrl := e.controller(); ctrl != nil {
			ctrl.Scroll(lines)
		}
	})
	e.window.SetKeyDownCallback(func(keyCode uint32) {
		if ctrl := e.controller(); ctrl != nil {
			ctrl.KeyDown(keyCode)
		}
	})
}

func (e *engine) controller() camera.CameraController {
	if e.camera == nil {
		return nil
	}
	return e.camera.Controller()
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Camera() camera.Camera {
	return e.camera
}

func (e *engine) Orchestrator() orchestrator.FrameOrchestrator {
	return e.orchestrator
}

func (e *engine) Run() error {
	if e.window == nil || e.orchestrator == nil || e.camera == nil {
		return errors.New("engine: a window, a camera and an orchestrator are required")
	}
	e.running = true
	e.handle()
	e.window.ProcessMessages()
	e.signalQuit()
	e.stop()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fatalErr
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit and asks the window to
// close. Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running = false
		close(e.quitChannel)
		if e.window != nil {
			e.window.RequestClose()
		}
	})
}

// fail records a fatal error and signals quit.
func (e *engine) fail(err error) {
	e.mu.Lock()
	if e.fatalErr == nil {
		e.fatalErr = err
	}
	e.mu.Unlock()
	e.signalQuit()
}

// stop waits for the goroutines, releases the model, the orchestrator and the watcher, then
// closes the window. Must run on the window thread.
func (e *engine) stop() {
	e.wg.Wait()

	e.mu.Lock()
	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			log.Printf("engine: failed to close watcher: %v", err)
		}
		e.watcher = nil
	}
	buffers := e.buffers
	e.buffers = nil
	e.mu.Unlock()

	e.orchestrator.Release()
	if buffers != nil {
		buffers.Release()
	}
	if e.ownsPool {
		e.pool.Stop()
	}
	if err := e.window.Close(); err != nil {
		log.Printf("engine: failed to close window: %v", err)
	}
}

// handle launches the engine, render, and quit goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(3)
	go e.handleEngine()
	go e.handleRender()
	go e.handleQuit()
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender runs the uncapped (or frame-limited) render loop in its own goroutine.
// Pending resizes and model reloads are applied between frames; each frame updates the camera
// and records the orchestrator's two-pass frame. An out-of-memory surface stops the loop.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) handleRender() {
	defer e.wg.Done()
	// Recover from panics inside the render goroutine to avoid crashing the whole process.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("render goroutine recovered from panic: %v", r)
			e.fail(fmt.Errorf("engine: render loop panicked: %v", r))
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case size := <-e.resizeChannel:
			e.resize(size[0], size[1])
		case path := <-e.changes():
			log.Printf("engine: %s changed, reloading", path)
			if err := e.Reload(); err != nil {
				log.Printf("engine: reload failed, keeping the current model: %v", err)
			}
		default:
			now := time.Now()
			dt := float32(now.Sub(lastRender).Seconds())
			lastRender = now

			e.camera.Update()
			stats, err := e.orchestrator.Frame()
			if err != nil {
				if errors.Is(err, orchestrator.ErrSurfaceOutOfMemory) {
					log.Printf("engine: stopping render loop: %v", err)
					e.fail(err)
					return
				}
				log.Printf("engine: frame failed: %v", err)
			}

			if e.renderCallback != nil {
				e.renderCallback(dt)
			}

			if e.profilingEnabled && e.profiler != nil {
				e.profiler.Tick(stats)
			}

			// Frame rate limiting
			if e.renderFrameLimit > 0 {
				elapsed := time.Since(lastRender)
				if remaining := e.renderFrameLimit - elapsed; remaining > 0 {
					time.Sleep(remaining)
				}
			}
		}
	}
}

// resize forwards a window size to the orchestrator. A minimized window keeps the old size.
func (e *engine) resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	if err := e.orchestrator.Resize(width, height); err != nil {
		log.Printf("engine: resize to %dx%d failed: %v", width, height, err)
	}
}

// changes returns the watcher's channel, or nil when nothing is watched.
func (e *engine) changes() <-chan string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.watcher == nil {
		return nil
	}
	return e.watcher.Changes()
}

// handleQuit blocks until the quit channel is closed, then decrements the WaitGroup.
func (e *engine) handleQuit() {
	defer e.wg.Done()
	<-e.quitChannel
}

func (e *engine) LoadModel(path string) error {
	s, err := e.loader.Load(path)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := e.show(path, s); err != nil {
		return err
	}
	return e.watch(path)
}

func (e *engine) Reload() error {
	path := e.ModelPath()
	if path == "" {
		return errors.New("engine: no model loaded")
	}
	s, err := e.loader.Reload(path)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return e.show(path, s)
}

func (e *engine) ModelPath() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modelPath
}

// show uploads a scene and swaps it into the orchestrator.
func (e *engine) show(path string, s model.InstancedScene) error {
	if e.renderer == nil || e.orchestrator == nil {
		return errors.New("engine: a renderer and an orchestrator are required to show a model")
	}
	sb, layout, err := scene.Build(e.renderer, s, e.pool, scene.WithLabel(filepath.Base(path)))
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := e.orchestrator.SetScene(sb); err != nil {
		sb.Release()
		return fmt.Errorf("engine: %w", err)
	}

	e.mu.Lock()
	old := e.buffers
	e.buffers = sb
	e.modelPath = path
	e.mu.Unlock()
	if old != nil {
		old.Release()
	}

	log.Printf("engine: showing %s: %d instances, %d vertices, %d triangles, %d edges",
		path, layout.InstanceCount(), len(layout.Vertices), len(layout.Indices)/3, len(layout.EdgeIndices)/2)
	if e.window != nil {
		e.window.SetTitle(fmt.Sprintf("%s - %s (%d parts)", e.window.Title(), filepath.Base(path), layout.InstanceCount()))
	}
	return nil
}

// watch starts watching the model's folder when watching is enabled. A watcher on another
// folder is replaced.
func (e *engine) watch(path string) error {
	if !e.watchEnabled {
		return nil
	}
	w, err := loader.NewWatcher(path, e.watchQuiet)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	e.mu.Lock()
	old := e.watcher
	e.watcher = w
	e.mu.Unlock()
	if old != nil {
		if err := old.Close(); err != nil {
			log.Printf("engine: failed to close watcher: %v", err)
		}
	}
	return nil
}

// EnableProfiler enables the profiling summary.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables the profiling summary.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if e.running {
		// Non-blocking send - if channel is full, replace the pending value
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetRenderCallback registers the function called each render frame.
func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	e.renderFrameLimit = frameDuration(fps)
}

// frameDuration converts a rate to a frame duration; rates <= 0 give 0.
func frameDuration(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}

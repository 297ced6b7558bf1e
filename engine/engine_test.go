package engine

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-ldr/engine/camera"
	"github.com/Carmen-Shannon/oxy-ldr/engine/orchestrator"
	"github.com/Carmen-Shannon/oxy-ldr/engine/profiler"
	"github.com/Carmen-Shannon/oxy-ldr/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOrchestrator returns the queued errors from Frame, then nil.
type fakeOrchestrator struct {
	mu       sync.Mutex
	errs     []error
	frames   int
	sizes    [][2]int
	released bool
}

var _ orchestrator.FrameOrchestrator = &fakeOrchestrator{}

func (f *fakeOrchestrator) Frame() (orchestrator.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames++
	stats := orchestrator.Stats{Instances: 7, Visible: 5, NewlyVisible: 1, CountsKnown: true, Strategy: orchestrator.StrategyReadback}
	if f.frames <= len(f.errs) {
		return stats, f.errs[f.frames-1]
	}
	return stats, nil
}

func (f *fakeOrchestrator) SetScene(scene.SceneBuffers) error { return nil }

func (f *fakeOrchestrator) Resize(width, height int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sizes = append(f.sizes, [2]int{width, height})
	return nil
}

func (f *fakeOrchestrator) Strategy() orchestrator.DrawStrategy { return nil }
func (f *fakeOrchestrator) Stage() orchestrator.Stage           { return orchestrator.StageIdle }
func (f *fakeOrchestrator) Stats() orchestrator.Stats           { return orchestrator.Stats{} }

func (f *fakeOrchestrator) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = true
}

func (f *fakeOrchestrator) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames
}

func (f *fakeOrchestrator) resizes() [][2]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]int(nil), f.sizes...)
}

func newTestEngine(t *testing.T, o orchestrator.FrameOrchestrator, options ...EngineBuilderOption) *engine {
	t.Helper()
	options = append([]EngineBuilderOption{WithCamera(camera.NewCamera()), WithOrchestrator(o)}, options...)
	e := NewEngine(options...).(*engine)
	t.Cleanup(e.pool.Stop)
	return e
}

func startRender(e *engine) {
	e.wg.Add(1)
	go e.handleRender()
}

func TestRenderLoopStopsOnSurfaceOutOfMemory(t *testing.T) {
	o := &fakeOrchestrator{errs: []error{nil, fmt.Errorf("%w: texture", orchestrator.ErrSurfaceOutOfMemory)}}
	e := newTestEngine(t, o)
	startRender(e)

	select {
	case <-e.quitChannel:
	case <-time.After(5 * time.Second):
		t.Fatal("render loop did not stop")
	}
	e.wg.Wait()

	assert.ErrorIs(t, e.fatalErr, orchestrator.ErrSurfaceOutOfMemory)
	assert.Equal(t, 2, o.frameCount())
}

func TestRenderLoopSurvivesFrameErrors(t *testing.T) {
	o := &fakeOrchestrator{errs: []error{errors.New("orchestrator: cull: boom")}}
	e := newTestEngine(t, o)
	startRender(e)

	require.Eventually(t, func() bool { return o.frameCount() >= 3 }, 5*time.Second, time.Millisecond)
	e.Quit()
	e.wg.Wait()

	assert.NoError(t, e.fatalErr)
}

func TestRenderLoopAppliesLatestResize(t *testing.T) {
	o := &fakeOrchestrator{}
	e := newTestEngine(t, o)
	e.resizeChannel <- [2]int{0, 0}
	startRender(e)

	require.Eventually(t, func() bool { return o.frameCount() >= 1 }, 5*time.Second, time.Millisecond)
	e.resizeChannel <- [2]int{800, 600}
	require.Eventually(t, func() bool { return len(o.resizes()) == 1 }, 5*time.Second, time.Millisecond)
	e.Quit()
	e.wg.Wait()

	// A minimized window never reaches the orchestrator.
	assert.Equal(t, [][2]int{{800, 600}}, o.resizes())
}

func TestRenderLoopFeedsProfiler(t *testing.T) {
	var buf bytes.Buffer
	o := &fakeOrchestrator{}
	e := newTestEngine(t, o,
		WithProfiling(true),
		WithProfiler(profiler.NewProfiler(profiler.WithOutput(&buf), profiler.WithUpdateInterval(0))),
	)
	startRender(e)

	require.Eventually(t, func() bool { return o.frameCount() >= 2 }, 5*time.Second, time.Millisecond)
	e.Quit()
	e.wg.Wait()

	assert.Contains(t, buf.String(), "Instances: 7")
	assert.Contains(t, buf.String(), "Drawn: 5 + 1")
}

func TestRenderLoopRecoversPanics(t *testing.T) {
	e := newTestEngine(t, &fakeOrchestrator{})
	e.SetRenderCallback(func(float32) { panic("callback") })
	startRender(e)
	e.wg.Wait()

	require.Error(t, e.fatalErr)
	assert.Contains(t, e.fatalErr.Error(), "panicked")
}

func TestRunRequiresWindow(t *testing.T) {
	e := newTestEngine(t, &fakeOrchestrator{})
	assert.Error(t, e.Run())
}

func TestReloadWithoutModel(t *testing.T) {
	e := newTestEngine(t, &fakeOrchestrator{})
	assert.Error(t, e.Reload())
	assert.Empty(t, e.ModelPath())
}

func TestLoadModelWithoutRenderer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.ldr")
	require.NoError(t, os.WriteFile(path, []byte("0 Model\n3 4 0 0 0 1 0 0 0 1 0\n"), 0o644))

	e := newTestEngine(t, &fakeOrchestrator{})
	err := e.LoadModel(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "renderer")
	assert.Empty(t, e.ModelPath())
}

func TestLoadModelMissingFile(t *testing.T) {
	e := newTestEngine(t, &fakeOrchestrator{})
	assert.Error(t, e.LoadModel(filepath.Join(t.TempDir(), "missing.ldr")))
}

func TestTickRate(t *testing.T) {
	e := newTestEngine(t, &fakeOrchestrator{}, WithTickRate(0))
	assert.Equal(t, time.Second/60, e.engineTickRate)

	e.SetTickRate(120)
	assert.Equal(t, time.Second/120, e.engineTickRate)
}

func TestFrameDuration(t *testing.T) {
	assert.Zero(t, frameDuration(0))
	assert.Zero(t, frameDuration(-5))
	assert.Equal(t, 20*time.Millisecond, frameDuration(50))

	e := newTestEngine(t, &fakeOrchestrator{}, WithRenderFrameLimit(100))
	assert.Equal(t, 10*time.Millisecond, e.renderFrameLimit)
	e.SetRenderFrameLimit(0)
	assert.Zero(t, e.renderFrameLimit)
}

package orchestrator

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/Carmen-Shannon/oxy-ldr/engine/camera"
	"github.com/Carmen-Shannon/oxy-ldr/engine/culling"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-ldr/engine/scene"
)

// Stats is published once per frame.
type Stats struct {
	// Instances is the number of instances in the scene.
	Instances int
	// Visible is the number of commands drawn by the first pass when CountsKnown is set.
	Visible uint32
	// NewlyVisible is the number of commands drawn by the second pass when CountsKnown is set.
	NewlyVisible uint32
	// CountsKnown is set when the draw counts were read back to the CPU.
	CountsKnown bool
	// Strategy is the draw strategy in use.
	Strategy StrategyKind
	// Skipped is set when the surface could not be acquired and nothing was drawn.
	Skipped bool
}

// frameOrchestrator is the implementation of the FrameOrchestrator interface.
type frameOrchestrator struct {
	mu *sync.Mutex
	r  renderer.Renderer

	label         string
	forceReadback bool

	cam      camera.Camera
	draw     *drawPipelines
	strategy DrawStrategy
	pyramid  culling.DepthPyramid

	sb         scene.SceneBuffers
	flags      bind_group_provider.BindGroupProvider
	cull       culling.CullingEngine
	visibility culling.VisibilitySetter

	stage Stage
	stats Stats
}

// FrameOrchestrator records the two-pass frame: the instances visible last frame are drawn
// first, their depth builds the pyramid, culling finds the instances that became visible and
// those are drawn on top. It owns the depth pyramid and the per-scene culling resources; the
// SceneBuffers stay owned by the caller.
type FrameOrchestrator interface {
	// Frame records and presents one frame. A surface that cannot be acquired skips the frame;
	// a lost or outdated surface is reconfigured first.
	//
	// Returns:
	//   - Stats: the frame's statistics
	//   - error: ErrSurfaceOutOfMemory (wrapped) when the render loop must stop, or the error of
	//     the stage that failed; the frame is aborted in both cases
	Frame() (Stats, error)

	// SetScene replaces the scene the frames draw and rebuilds the culling engine, the
	// visibility setter and the draw flag bind group for it. A nil scene releases them and frames only clear the targets.
	//
	// Parameters:
	//   - sb: the scene to draw, or nil
	//
	// Returns:
	//   - error: an error if the culling resources could not be built; the orchestrator is left
	//     without a scene
	SetScene(sb scene.SceneBuffers) error

	// Resize resizes the surface, the depth and MSAA targets and the pyramid chain, and updates
	// the camera projection.
	//
	// Parameters:
	//   - width, height: the new surface size in pixels
	//
	// Returns:
	//   - error: an error if the pyramid could not be rebuilt
	Resize(width, height int) error

	// Strategy returns the draw strategy selected when the orchestrator was created.
	Strategy() DrawStrategy

	// Stage returns the stage the last frame reached.
	Stage() Stage

	// Stats returns the statistics of the last frame.
	Stats() Stats

	// Release releases the pyramid and the culling resources.
	Release()
}

var _ FrameOrchestrator = &frameOrchestrator{}

// NewFrameOrchestrator registers the draw pipelines, binds the camera, builds the depth pyramid
// at the surface size and selects the draw strategy from the device capabilities.
//
// Parameters:
//   - r: the renderer to record on
//   - cam: the camera whose uniforms are uploaded every frame
//   - options: functional options to configure the orchestrator
//
// Returns:
//   - FrameOrchestrator: the orchestrator, without a scene
//   - error: an error if a pipeline, the camera bind group or the pyramid could not be created
func NewFrameOrchestrator(r renderer.Renderer, cam camera.Camera, options ...FrameOrchestratorBuilderOption) (FrameOrchestrator, error) {
	o := &frameOrchestrator{
		mu:    &sync.Mutex{},
		r:     r,
		cam:   cam,
		label: "Frame",
	}
	for _, option := range options {
		option(o)
	}

	var err error
	if o.draw, err = newDrawPipelines(r); err != nil {
		return nil, err
	}
	if err := r.InitBindGroup(cam.BindGroupProvider(), o.draw.cameraLayout, nil, nil); err != nil {
		return nil, fmt.Errorf("orchestrator: failed to bind camera: %w", err)
	}
	if o.pyramid, err = culling.NewDepthPyramid(r, culling.WithPyramidLabel(o.label+" Depth Pyramid")); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	o.strategy = SelectDrawStrategy(r.Capabilities(), o.forceReadback)
	o.stats.Strategy = o.strategy.Kind()

	w, h := r.SurfaceSize()
	cam.SetViewport(w, h)
	log.Printf("orchestrator: %s ready at %dx%d, %d pyramid levels, %s draws",
		o.label, w, h, o.pyramid.MipCount(), o.strategy.Kind())
	return o, nil
}

func (o *frameOrchestrator) SetScene(sb scene.SceneBuffers) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.releaseSceneLocked()
	if sb == nil {
		return nil
	}

	flags := bind_group_provider.NewBindGroupProvider(sb.Label() + " Draw Flags")
	flags.ShareBuffer(o.draw.flagsBinding, sb.Buffer(scene.BufferTransparent))
	if err := o.r.InitBindGroup(flags, o.draw.flagsLayout, nil, nil); err != nil {
		o.r.Release(flags)
		return fmt.Errorf("orchestrator: failed to bind %s: %w", flags.Label(), err)
	}
	cull, err := culling.NewCullingEngine(o.r, sb, o.pyramid)
	if err != nil {
		o.r.Release(flags)
		return fmt.Errorf("orchestrator: %w", err)
	}
	visibility, err := culling.NewVisibilitySetter(o.r, sb)
	if err != nil {
		cull.Release()
		o.r.Release(flags)
		return fmt.Errorf("orchestrator: %w", err)
	}
	o.sb, o.flags, o.cull, o.visibility = sb, flags, cull, visibility
	log.Printf("orchestrator: %s drawing %s (%d instances, scan levels %v)",
		o.label, sb.Label(), sb.InstanceCount(), visibility.ScanLevels(culling.Visible))
	return nil
}

func (o *frameOrchestrator) releaseSceneLocked() {
	if o.visibility != nil {
		o.visibility.Release()
		o.visibility = nil
	}
	if o.cull != nil {
		o.cull.Release()
		o.cull = nil
	}
	if o.flags != nil {
		o.r.Release(o.flags)
		o.flags = nil
	}
	o.sb = nil
}

func (o *frameOrchestrator) Resize(width, height int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resizeLocked(width, height)
}

// resizeLocked resizes every size-dependent resource. The culling engine follows the new
// pyramid view on its next Cull. Caller must hold the mutex.
func (o *frameOrchestrator) resizeLocked(width, height int) error {
	if o.pyramid == nil {
		return errors.New("orchestrator: orchestrator is released")
	}
	o.r.Resize(width, height)
	w, h := o.r.SurfaceSize()
	o.cam.SetViewport(w, h)
	if err := o.pyramid.Resize(w, h); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	return nil
}

func (o *frameOrchestrator) Frame() (Stats, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pyramid == nil {
		return Stats{}, errors.New("orchestrator: orchestrator is released")
	}
	stats := Stats{Strategy: o.strategy.Kind()}
	if o.sb != nil {
		stats.Instances = o.sb.InstanceCount()
	}

	o.stage = StageIdle
	if err := o.r.BeginFrame(); err != nil {
		stats.Skipped = true
		o.stats = stats
		switch ClassifySurfaceError(err) {
		case SurfaceFatal:
			return stats, fmt.Errorf("%w: %v", ErrSurfaceOutOfMemory, err)
		case SurfaceReconfigure:
			w, h := o.r.SurfaceSize()
			log.Printf("orchestrator: surface needs reconfiguring (%v), resizing to %dx%d", err, w, h)
			return stats, o.resizeLocked(w, h)
		default:
			log.Printf("orchestrator: skipping frame: %v", err)
			return stats, nil
		}
	}

	if err := o.recordLocked(&stats); err != nil {
		o.r.AbortFrame()
		o.stats = stats
		return stats, fmt.Errorf("orchestrator: %s: %w", o.stage, err)
	}
	o.r.EndFrame()
	o.r.Present()
	o.stage = StagePresent
	o.stats = stats
	return stats, nil
}

// recordLocked records the frame's stages in order. Caller must hold the mutex and have begun
// the frame.
func (o *frameOrchestrator) recordLocked(stats *Stats) error {
	camProvider := o.cam.BindGroupProvider()
	model := o.cam.ModelUniform()
	o.r.WriteBuffers([]bind_group_provider.BufferWrite{
		{Provider: camProvider, Binding: o.draw.cameraBinding, Data: model.Marshal()},
	})
	groups := []bind_group_provider.BindGroupProvider{camProvider}

	if o.sb == nil {
		o.stage = StageDrawPreviouslyVisible
		_, err := o.strategy.Draw(o.r, DrawPass{BindGroups: groups, Clear: true})
		return err
	}

	o.stage = StageSetVisible
	if err := o.visibility.SetVisibility(culling.Visible); err != nil {
		return err
	}

	o.stage = StageDrawPreviouslyVisible
	first, err := o.strategy.Draw(o.r, DrawPass{Scene: o.sb, Array: culling.Visible, BindGroups: groups, Flags: o.flags, Clear: true})
	if err != nil {
		return err
	}
	stats.Visible, stats.CountsKnown = first.Count, first.Known

	o.stage = StageBuildDepthPyramid
	if err := o.pyramid.Build(); err != nil {
		return err
	}

	o.stage = StageCull
	if err := o.cull.Cull(o.cam.CullingUniform()); err != nil {
		return err
	}

	o.stage = StageSetNewVisible
	if err := o.visibility.SetVisibility(culling.NewVisible); err != nil {
		return err
	}

	o.stage = StageDrawNewlyVisible
	second, err := o.strategy.Draw(o.r, DrawPass{Scene: o.sb, Array: culling.NewVisible, BindGroups: groups, Flags: o.flags})
	if err != nil {
		return err
	}
	stats.NewlyVisible = second.Count
	stats.CountsKnown = stats.CountsKnown && second.Known
	return nil
}

func (o *frameOrchestrator) Strategy() DrawStrategy {
	return o.strategy
}

func (o *frameOrchestrator) Stage() Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stage
}

func (o *frameOrchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

func (o *frameOrchestrator) Release() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.releaseSceneLocked()
	if o.pyramid != nil {
		o.pyramid.Release()
		o.pyramid = nil
	}
}

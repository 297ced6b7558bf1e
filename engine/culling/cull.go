package culling

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-ldr/common"
	"github.com/Carmen-Shannon/oxy-ldr/engine/camera"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-ldr/engine/scene"
	"github.com/cogentcore/webgpu/wgpu"
)

// cullingEngine is the implementation of the CullingEngine interface.
type cullingEngine struct {
	mu *sync.Mutex
	r  renderer.Renderer

	cull     *kernel
	pyramid  DepthPyramid
	provider bind_group_provider.BindGroupProvider

	instances int
	bound     *wgpu.TextureView

	cameraBinding int
	paramsBinding int
	pyramidSource int
}

// CullingEngine tests every instance against the view frustum and the depth pyramid on the GPU
// and moves the results between the `visible` and `new_visible` arrays of a SceneBuffers.
type CullingEngine interface {
	// Cull writes the camera and dispatch parameters and records the culling dispatch. The
	// bind group follows the pyramid when it was resized since the last call.
	//
	// Parameters:
	//   - cam: the culling camera uniform for this frame
	//
	// Returns:
	//   - error: an error if the bind group or the dispatch fails
	Cull(cam camera.GPUCullingCamera) error

	// Release releases the engine's bind group and its uniform buffers.
	Release()
}

var _ CullingEngine = &cullingEngine{}

// NewCullingEngine binds the culling kernel to a scene's bounds and visibility buffers and to a
// depth pyramid.
//
// Parameters:
//   - r: the renderer to record on
//   - sb: the scene buffers to cull
//   - pyramid: the pyramid to test occlusion against
//
// Returns:
//   - CullingEngine: the bound engine
//   - error: an error if the kernel or the bind group could not be created
func NewCullingEngine(r renderer.Renderer, sb scene.SceneBuffers, pyramid DepthPyramid) (CullingEngine, error) {
	k, err := newKernel(r, PipelineCull, cullSource)
	if err != nil {
		return nil, err
	}
	e := &cullingEngine{
		mu:            &sync.Mutex{},
		r:             r,
		cull:          k,
		pyramid:       pyramid,
		instances:     sb.InstanceCount(),
		cameraBinding: k.binding(shader.AnnotationArgCamera, ""),
		paramsBinding: k.binding(shader.AnnotationArgCulling, shader.AnnotationArgParams),
		pyramidSource: k.binding(shader.AnnotationArgPyramid, shader.AnnotationArgPyramidSource),
	}

	e.provider = bind_group_provider.NewBindGroupProvider(sb.Label() + " Cull")
	for role, kind := range map[shader.AnnotationArg]scene.BufferKind{
		shader.AnnotationArgBounds:      scene.BufferBounds,
		shader.AnnotationArgVisible:     scene.BufferVisible,
		shader.AnnotationArgNewVisible:  scene.BufferNewVisible,
	} {
		e.provider.ShareBuffer(k.binding(shader.AnnotationArgScene, role), sb.Buffer(kind))
	}

	if err := e.bindLocked(); err != nil {
		r.Release(e.provider)
		return nil, err
	}
	return e, nil
}

// bindLocked (re)creates the bind group against the pyramid's current view. Caller must hold
// the mutex or own the engine exclusively.
func (e *cullingEngine) bindLocked() error {
	view := e.pyramid.View()
	if view == nil {
		return fmt.Errorf("culling: %s has no pyramid view", e.provider.Label())
	}
	e.provider.ShareTextureView(e.pyramidSource, view)
	if err := e.r.InitBindGroup(e.provider, e.cull.layout(), nil, nil); err != nil {
		return fmt.Errorf("culling: failed to bind %s: %w", e.provider.Label(), err)
	}
	e.bound = view
	return nil
}

func (e *cullingEngine) Cull(cam camera.GPUCullingCamera) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.provider == nil {
		return fmt.Errorf("culling: engine is released")
	}
	if e.pyramid.View() != e.bound {
		if err := e.bindLocked(); err != nil {
			return err
		}
	}
	if e.instances == 0 {
		return nil
	}

	w, h := e.pyramid.Size()
	e.r.WriteBuffers([]bind_group_provider.BufferWrite{
		{Provider: e.provider, Binding: e.cameraBinding, Data: cam.Marshal()},
		{Provider: e.provider, Binding: e.paramsBinding, Data: common.Uint32sToBytes([]uint32{
			uint32(e.instances), uint32(w), uint32(h), uint32(e.pyramid.MipCount()),
		})},
	})
	if err := e.r.DispatchCompute(e.cull.key, e.provider, e.cull.groups(e.instances)); err != nil {
		return fmt.Errorf("culling: %w", err)
	}
	return nil
}

func (e *cullingEngine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.provider != nil {
		e.r.Release(e.provider)
		e.provider = nil
	}
	e.bound = nil
}

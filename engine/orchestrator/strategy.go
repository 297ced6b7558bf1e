package orchestrator

import (
	"fmt"
	"log"
	"sync"

	"github.com/Carmen-Shannon/oxy-ldr/common"
	"github.com/Carmen-Shannon/oxy-ldr/engine/culling"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-ldr/engine/scene"
	"github.com/cogentcore/webgpu/wgpu"
)

// StrategyKind names a DrawStrategy.
type StrategyKind int

const (
	// StrategyIndirectCount draws with the count read on the GPU.
	StrategyIndirectCount StrategyKind = iota
	// StrategyReadback reads the count back to the CPU before drawing.
	StrategyReadback
)

func (k StrategyKind) String() string {
	switch k {
	case StrategyIndirectCount:
		return "indirect_count"
	case StrategyReadback:
		return "readback"
	default:
		return fmt.Sprintf("StrategyKind(%d)", int(k))
	}
}

// DrawPass is one draw of the compacted command tables.
type DrawPass struct {
	// Scene holds the compacted commands and count. A nil scene only clears or loads the targets.
	Scene scene.SceneBuffers
	// Array is the visibility array the commands were compacted from.
	Array culling.VisibilityArray
	// BindGroups are set on the pass in order for every pipeline; group 0 is the camera.
	BindGroups []bind_group_provider.BindGroupProvider
	// Flags is the scene's transparency flag group, bound after BindGroups for the triangle
	// pipelines.
	Flags bind_group_provider.BindGroupProvider
	// Clear clears color and depth instead of loading them.
	Clear bool
}

// DrawResult reports the command count a DrawStrategy drew with.
type DrawResult struct {
	// Count is the number of commands drawn per pipeline when Known is set.
	Count uint32
	// Known is set when the count was read back to the CPU.
	Known bool
}

// DrawStrategy opens the render pass and draws the commands produced by the last SetVisibility
// with the opaque, edge and transparent pipelines. It is selected once per device.
type DrawStrategy interface {
	// Kind returns which strategy this is.
	Kind() StrategyKind

	// Draw records one render pass drawing the compacted solid commands as opaque triangles,
	// then the compacted edge commands, then the compacted solid commands again as transparent
	// triangles.
	//
	// Parameters:
	//   - r: the renderer recording the frame
	//   - pass: the scene, bind groups and load behavior of the pass
	//
	// Returns:
	//   - DrawResult: the count used, when the CPU knows it
	//   - error: an error if a draw or a submission fails
	Draw(r renderer.Renderer, pass DrawPass) (DrawResult, error)
}

// SelectDrawStrategy picks the indirect-count strategy when the device supports it and the
// read-back strategy otherwise or when forced.
//
// Parameters:
//   - caps: the device capabilities
//   - forceReadback: select the read-back strategy even when indirect count is available
//
// Returns:
//   - DrawStrategy: the selected strategy
func SelectDrawStrategy(caps renderer.Capabilities, forceReadback bool) DrawStrategy {
	switch {
	case forceReadback:
		log.Printf("orchestrator: read-back draw strategy forced by configuration")
		return newReadbackStrategy()
	case !caps.MultiDrawIndirectCount:
		log.Printf("orchestrator: device has no indirect count support, using the read-back draw strategy")
		return newReadbackStrategy()
	default:
		return &indirectCountStrategy{}
	}
}

// eachTable calls fn for the opaque, edge and transparent pipelines in draw order with the bind
// groups, mesh and command table each one draws.
func (p DrawPass) eachTable(fn func(key string, mesh bind_group_provider.BindGroupProvider, groups []bind_group_provider.BindGroupProvider, commands *wgpu.Buffer) error) error {
	if p.Scene == nil {
		return nil
	}
	triangles := append(append([]bind_group_provider.BindGroupProvider(nil), p.BindGroups...), p.Flags)
	solid := p.Scene.Buffer(scene.BufferCompactedSolid)
	if err := fn(PipelineSolid, p.Scene.SolidMesh(), triangles, solid); err != nil {
		return err
	}
	if err := fn(PipelineEdge, p.Scene.EdgeMesh(), p.BindGroups, p.Scene.Buffer(scene.BufferCompactedEdge)); err != nil {
		return err
	}
	return fn(PipelineTransparent, p.Scene.SolidMesh(), triangles, solid)
}

// indirectCountStrategy draws with MultiDrawIndexedIndirectCount. The whole frame stays on the
// GPU in one submission.
type indirectCountStrategy struct{}

var _ DrawStrategy = &indirectCountStrategy{}

func (s *indirectCountStrategy) Kind() StrategyKind {
	return StrategyIndirectCount
}

func (s *indirectCountStrategy) Draw(r renderer.Renderer, pass DrawPass) (DrawResult, error) {
	r.BeginRenderPass(pass.Clear)
	defer r.EndRenderPass()

	err := pass.eachTable(func(key string, mesh bind_group_provider.BindGroupProvider, groups []bind_group_provider.BindGroupProvider, commands *wgpu.Buffer) error {
		count := pass.Scene.Buffer(scene.BufferCompactedCount)
		maxCount := uint32(pass.Scene.InstanceCount())
		if err := r.DrawIndexedIndirectCount(key, mesh, groups, commands, count, maxCount); err != nil {
			return fmt.Errorf("orchestrator: %w", err)
		}
		return nil
	})
	return DrawResult{}, err
}

// readbackStrategy copies the compacted count into the staging buffer, submits, and waits for
// the map before drawing with the count on the CPU. The last good count is kept per visibility
// array so a failed map falls back to the same pass of the previous frame.
type readbackStrategy struct {
	mu   *sync.Mutex
	last [2]uint32
}

var _ DrawStrategy = &readbackStrategy{}

func newReadbackStrategy() *readbackStrategy {
	return &readbackStrategy{mu: &sync.Mutex{}}
}

func (s *readbackStrategy) Kind() StrategyKind {
	return StrategyReadback
}

func (s *readbackStrategy) Draw(r renderer.Renderer, pass DrawPass) (DrawResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count uint32
	if pass.Scene != nil {
		if pass.Array != culling.Visible && pass.Array != culling.NewVisible {
			return DrawResult{}, fmt.Errorf("orchestrator: unknown visibility array %s", pass.Array)
		}
		if err := s.readCountLocked(r, pass.Scene, pass.Array); err != nil {
			return DrawResult{}, err
		}
		count = min(s.last[pass.Array], uint32(pass.Scene.InstanceCount()))
	}

	r.BeginRenderPass(pass.Clear)
	defer r.EndRenderPass()

	err := pass.eachTable(func(key string, mesh bind_group_provider.BindGroupProvider, groups []bind_group_provider.BindGroupProvider, commands *wgpu.Buffer) error {
		if err := r.DrawIndexedIndirect(key, mesh, groups, commands, count); err != nil {
			return fmt.Errorf("orchestrator: %w", err)
		}
		return nil
	})
	return DrawResult{Count: count, Known: true}, err
}

// readCountLocked submits the work recorded so far and maps the count of array. A failed map
// keeps the array's previous count. Caller must hold the mutex.
func (s *readbackStrategy) readCountLocked(r renderer.Renderer, sb scene.SceneBuffers, array culling.VisibilityArray) error {
	staging := sb.Buffer(scene.BufferCompactedCountStaging)
	r.CopyBufferToBuffer(sb.Buffer(scene.BufferCompactedCount), 0, staging, 0, 4)
	if err := r.Flush(); err != nil {
		return fmt.Errorf("orchestrator: failed to submit before count read-back: %w", err)
	}
	data, err := r.ReadBuffer(staging, 4)
	values := common.BytesToUint32s(data)
	if err != nil || len(values) == 0 {
		log.Printf("orchestrator: %s count read-back failed, keeping %d: %v", array, s.last[array], err)
		return nil
	}
	s.last[array] = values[0]
	return nil
}

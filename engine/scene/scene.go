package scene

import (
	"fmt"
	"log"
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-ldr/common"
	"github.com/Carmen-Shannon/oxy-ldr/engine/model"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/bind_group_provider"
	"github.com/cogentcore/webgpu/wgpu"
)

// BufferKind names one of the GPU buffers owned by SceneBuffers.
type BufferKind int

const (
	BufferVertex BufferKind = iota
	BufferIndex
	BufferEdgeIndex
	BufferTransform
	BufferBounds
	BufferTransparent
	BufferVisible
	BufferNewVisible
	BufferScannedVisible
	BufferScannedNewVisible
	BufferSolidCommands
	BufferCompactedSolid
	BufferEdgeCommands
	BufferCompactedEdge
	BufferCompactedCount
	BufferCompactedCountStaging

	bufferKindCount
)

var bufferKindNames = [bufferKindCount]string{
	"Vertex",
	"Index",
	"Edge Index",
	"Instance Transform",
	"Instance Bounds",
	"Transparency",
	"Visible",
	"New Visible",
	"Scanned Visible",
	"Scanned New Visible",
	"Solid Indirect",
	"Compacted Solid Indirect",
	"Edge Indirect",
	"Compacted Edge Indirect",
	"Compacted Count",
	"Compacted Count Staging",
}

// String returns the buffer's debug label suffix.
func (k BufferKind) String() string {
	if k < 0 || k >= bufferKindCount {
		return fmt.Sprintf("BufferKind(%d)", int(k))
	}
	return bufferKindNames[k]
}

// sceneBuffers is the implementation of the SceneBuffers interface.
type sceneBuffers struct {
	mu *sync.Mutex
	r  renderer.Renderer

	label         string
	instanceCount int
	opaqueCount   int
	indexCount    int
	edgeCount     int

	buffers [bufferKindCount]*wgpu.Buffer

	solidMesh bind_group_provider.BindGroupProvider
	edgeMesh  bind_group_provider.BindGroupProvider
}

// SceneBuffers holds the GPU copy of a Layout: the combined geometry, the per-instance
// transforms, bounds and flags, the two visibility arrays with their scanned counterparts, the
// static and compacted indirect command tables and the compacted count with its read-back
// staging buffer. It is created once per loaded scene and released when the scene is replaced.
type SceneBuffers interface {
	// Label returns the debug label prefix of every buffer.
	Label() string

	// InstanceCount returns the number of instances.
	InstanceCount() int

	// OpaqueCount returns the number of opaque instances. Opaque instances occupy the
	// transform indices below this value.
	OpaqueCount() int

	// Buffer returns the buffer of the given kind.
	//
	// Parameters:
	//   - kind: the buffer to return
	//
	// Returns:
	//   - *wgpu.Buffer: the buffer, or nil after Release
	Buffer(kind BufferKind) *wgpu.Buffer

	// SolidMesh returns the draw provider for triangles: the vertex buffer at slot 0, the
	// instance transforms at slot 1 and the triangle index buffer.
	SolidMesh() bind_group_provider.BindGroupProvider

	// EdgeMesh returns the draw provider for edge lines: the same vertex buffers with the edge
	// index buffer.
	EdgeMesh() bind_group_provider.BindGroupProvider

	// Release releases every buffer.
	Release()
}

var _ SceneBuffers = &sceneBuffers{}

// Build lays out an instanced scene and uploads it.
//
// Parameters:
//   - r: the renderer creating the buffers
//   - s: the loaded scene
//   - pool: the worker pool used to fill the layout
//   - options: functional options to configure the buffers
//
// Returns:
//   - SceneBuffers: the uploaded buffers
//   - *Layout: the CPU layout that was uploaded
//   - error: an error if layout or buffer creation fails
func Build(r renderer.Renderer, s model.InstancedScene, pool worker.DynamicWorkerPool, options ...SceneBuffersBuilderOption) (SceneBuffers, *Layout, error) {
	layout, err := BuildLayout(s, pool)
	if err != nil {
		return nil, nil, err
	}
	if s.Name() != "" {
		options = append([]SceneBuffersBuilderOption{WithLabel(s.Name())}, options...)
	}
	sb, err := NewSceneBuffers(r, layout, options...)
	if err != nil {
		return nil, nil, err
	}
	return sb, layout, nil
}

// NewSceneBuffers uploads a Layout. Per-instance buffers always hold at least one element so
// an empty scene still binds valid storage; `visible` starts at 1 for every instance so the
// first frame draws the whole scene, and `new_visible` starts at 0.
//
// Parameters:
//   - r: the renderer creating the buffers
//   - layout: the CPU layout to upload
//   - options: functional options to configure the buffers
//
// Returns:
//   - SceneBuffers: the uploaded buffers
//   - error: an error if any buffer could not be created; buffers created so far are released
func NewSceneBuffers(r renderer.Renderer, layout *Layout, options ...SceneBuffersBuilderOption) (SceneBuffers, error) {
	sb := &sceneBuffers{
		mu:            &sync.Mutex{},
		r:             r,
		label:         "Scene",
		instanceCount: layout.InstanceCount(),
		opaqueCount:   layout.OpaqueCount(),
		indexCount:    len(layout.Indices),
		edgeCount:     len(layout.EdgeIndices),
	}
	for _, option := range options {
		option(sb)
	}

	n := uint64(max(sb.instanceCount, 1))
	u32 := uint64(4)
	command := uint64(model.DrawIndexedIndirectStride)

	storageIn := wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
	descs := [bufferKindCount]struct {
		usage wgpu.BufferUsage
		size  uint64
		data  []byte
	}{
		BufferVertex:                {wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst, 0, model.MarshalSlice(layout.Vertices)},
		BufferIndex:                 {wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst, 0, common.Uint32sToBytes(layout.Indices)},
		BufferEdgeIndex:             {wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst, 0, common.Uint32sToBytes(layout.EdgeIndices)},
		BufferTransform:             {wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst, n * 64, model.MarshalSlice(layout.Transforms)},
		BufferBounds:                {storageIn, n * 48, model.MarshalSlice(layout.Bounds)},
		BufferTransparent:           {storageIn, n * u32, common.Uint32sToBytes(layout.Transparent)},
		BufferVisible:               {storageIn, n * u32, common.Uint32sToBytes(layout.Visible)},
		BufferNewVisible:            {storageIn, n * u32, nil},
		BufferScannedVisible:        {wgpu.BufferUsageStorage, n * u32, nil},
		BufferScannedNewVisible:     {wgpu.BufferUsageStorage, n * u32, nil},
		BufferSolidCommands:         {storageIn, n * command, model.MarshalSlice(layout.SolidCommands)},
		BufferCompactedSolid:        {wgpu.BufferUsageStorage | wgpu.BufferUsageIndirect, n * command, nil},
		BufferEdgeCommands:          {storageIn, n * command, model.MarshalSlice(layout.EdgeCommands)},
		BufferCompactedEdge:         {wgpu.BufferUsageStorage | wgpu.BufferUsageIndirect, n * command, nil},
		BufferCompactedCount:        {wgpu.BufferUsageStorage | wgpu.BufferUsageIndirect | wgpu.BufferUsageCopySrc, u32, nil},
		BufferCompactedCountStaging: {wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst, u32, nil},
	}

	for kind := range bufferKindCount {
		d := descs[kind]
		buf, err := r.CreateBuffer(sb.label+" "+kind.String(), d.usage, d.size, d.data)
		if err != nil {
			sb.Release()
			return nil, fmt.Errorf("scene: failed to create %s buffer: %w", kind, err)
		}
		sb.buffers[kind] = buf
	}

	sb.solidMesh = bind_group_provider.NewBindGroupProvider(sb.label+" Solid Mesh",
		bind_group_provider.WithVertexBuffers(sb.buffers[BufferVertex], sb.buffers[BufferTransform]),
		bind_group_provider.WithIndexBuffer(sb.buffers[BufferIndex], sb.indexCount),
	)
	sb.edgeMesh = bind_group_provider.NewBindGroupProvider(sb.label+" Edge Mesh",
		bind_group_provider.WithVertexBuffers(sb.buffers[BufferVertex], sb.buffers[BufferTransform]),
		bind_group_provider.WithIndexBuffer(sb.buffers[BufferEdgeIndex], sb.edgeCount),
	)

	log.Printf("scene: %s uploaded %d instances (%d opaque), %d vertices, %d triangle indices, %d edge indices",
		sb.label, sb.instanceCount, sb.opaqueCount, len(layout.Vertices), sb.indexCount, sb.edgeCount)
	return sb, nil
}

func (sb *sceneBuffers) Label() string {
	return sb.label
}

func (sb *sceneBuffers) InstanceCount() int {
	return sb.instanceCount
}

func (sb *sceneBuffers) OpaqueCount() int {
	return sb.opaqueCount
}

func (sb *sceneBuffers) Buffer(kind BufferKind) *wgpu.Buffer {
	if kind < 0 || kind >= bufferKindCount {
		return nil
	}
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.buffers[kind]
}

func (sb *sceneBuffers) SolidMesh() bind_group_provider.BindGroupProvider {
	return sb.solidMesh
}

func (sb *sceneBuffers) EdgeMesh() bind_group_provider.BindGroupProvider {
	return sb.edgeMesh
}

func (sb *sceneBuffers) Release() {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	// The mesh providers only reference the buffers released below.
	if sb.solidMesh != nil {
		sb.r.Release(sb.solidMesh)
		sb.solidMesh = nil
	}
	if sb.edgeMesh != nil {
		sb.r.Release(sb.edgeMesh)
		sb.edgeMesh = nil
	}
	for i, buf := range sb.buffers {
		if buf != nil {
			sb.r.Release(buf)
			sb.buffers[i] = nil
		}
	}
}

package scene

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-ldr/engine/model"
)

// GroupRange locates one (part, color) group inside the combined buffers.
type GroupRange struct {
	Key         model.GeometryColor
	Transparent bool

	BaseVertex     int32
	VertexCount    uint32
	FirstIndex     uint32
	IndexCount     uint32
	FirstEdgeIndex uint32
	EdgeIndexCount uint32

	// FirstInstance is the transform index of the group's first instance.
	FirstInstance uint32
	InstanceCount uint32
}

// Layout is the CPU side of SceneBuffers: every array that is uploaded once per loaded scene.
// Per-instance arrays are indexed by the instance's transform index, which is also the
// base_instance of its solid and edge commands.
type Layout struct {
	Vertices    []model.GPUVertex
	Indices     []uint32
	EdgeIndices []uint32

	Transforms  []model.GPUInstanceTransform
	Bounds      []model.GPUInstanceBounds
	Transparent []uint32
	Visible     []uint32

	SolidCommands []model.GPUDrawIndexedIndirect
	EdgeCommands  []model.GPUDrawIndexedIndirect

	Groups []GroupRange
}

// InstanceCount returns the number of instances in the layout.
func (l *Layout) InstanceCount() int {
	return len(l.Transforms)
}

// OpaqueCount returns the number of instances ahead of the first transparent group.
func (l *Layout) OpaqueCount() int {
	for _, g := range l.Groups {
		if g.Transparent {
			return int(g.FirstInstance)
		}
	}
	return len(l.Transforms)
}

// BuildLayout flattens an instanced scene into combined vertex, index and per-instance arrays.
// Offsets are assigned sequentially in group order; the per-group fill (vertex color resolution,
// index copies, commands, bounds transforms) runs on the worker pool.
//
// Parameters:
//   - s: the loaded scene
//   - pool: the worker pool to fill groups on
//
// Returns:
//   - *Layout: the combined layout
//   - error: an error if a group references a geometry the scene does not hold
func BuildLayout(s model.InstancedScene, pool worker.DynamicWorkerPool) (*Layout, error) {
	groups := s.Groups()
	table := s.ColorTable()

	l := &Layout{Groups: make([]GroupRange, 0, len(groups))}
	geometries := make([]*model.Geometry, 0, len(groups))

	var vertices, indices, edges, instances uint32
	for _, key := range groups {
		g := s.Geometry(key.Name)
		if g == nil {
			return nil, fmt.Errorf("scene: group %s/%d references unknown geometry", key.Name, key.Color)
		}
		n := uint32(len(s.Transforms(key)))
		l.Groups = append(l.Groups, GroupRange{
			Key:            key,
			Transparent:    table.Transparent(key.Color),
			BaseVertex:     int32(vertices),
			VertexCount:    uint32(g.VertexCount()),
			FirstIndex:     indices,
			IndexCount:     uint32(len(g.Indices)),
			FirstEdgeIndex: edges,
			EdgeIndexCount: uint32(len(g.EdgeIndices)),
			FirstInstance:  instances,
			InstanceCount:  n,
		})
		geometries = append(geometries, g)
		vertices += uint32(g.VertexCount())
		indices += uint32(len(g.Indices))
		edges += uint32(len(g.EdgeIndices))
		instances += n
	}

	l.Vertices = make([]model.GPUVertex, vertices)
	l.Indices = make([]uint32, indices)
	l.EdgeIndices = make([]uint32, edges)
	l.Transforms = make([]model.GPUInstanceTransform, instances)
	l.Bounds = make([]model.GPUInstanceBounds, instances)
	l.Transparent = make([]uint32, instances)
	l.Visible = make([]uint32, instances)
	l.SolidCommands = make([]model.GPUDrawIndexedIndirect, instances)
	l.EdgeCommands = make([]model.GPUDrawIndexedIndirect, instances)

	// Every group writes disjoint ranges of the preallocated slices.
	var wg sync.WaitGroup
	for i := range l.Groups {
		wg.Add(1)
		gr := l.Groups[i]
		g := geometries[i]
		pool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				l.fillGroup(gr, g, s, table)
				return nil, nil
			},
		})
	}
	wg.Wait()

	return l, nil
}

// fillGroup writes one group's vertices, indices and per-instance records.
func (l *Layout) fillGroup(gr GroupRange, g *model.Geometry, s model.InstancedScene, table model.ColorTable) {
	copy(l.Vertices[gr.BaseVertex:], g.Vertices(gr.Key.Color, table))
	copy(l.Indices[gr.FirstIndex:], g.Indices)
	copy(l.EdgeIndices[gr.FirstEdgeIndex:], g.EdgeIndices)

	var transparent uint32
	if gr.Transparent {
		transparent = 1
	}

	for j, m := range s.Transforms(gr.Key) {
		idx := gr.FirstInstance + uint32(j)
		l.Transforms[idx] = model.GPUInstanceTransform{Columns: m}
		l.Bounds[idx] = model.TransformBounds(g.Bounds, m)
		l.Transparent[idx] = transparent
		l.Visible[idx] = 1
		l.SolidCommands[idx] = model.GPUDrawIndexedIndirect{
			IndexCount:    gr.IndexCount,
			InstanceCount: 1,
			FirstIndex:    gr.FirstIndex,
			BaseVertex:    gr.BaseVertex,
			BaseInstance:  idx,
		}
		l.EdgeCommands[idx] = model.GPUDrawIndexedIndirect{
			IndexCount:    gr.EdgeIndexCount,
			InstanceCount: 1,
			FirstIndex:    gr.FirstEdgeIndex,
			BaseVertex:    gr.BaseVertex,
			BaseInstance:  idx,
		}
	}
}

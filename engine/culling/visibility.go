package culling

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-ldr/common"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-ldr/engine/scene"
)

// VisibilityArray selects one of the two flag arrays of a SceneBuffers.
type VisibilityArray int

const (
	// Visible holds the instances that passed culling in the previous frame.
	Visible VisibilityArray = iota
	// NewVisible holds the instances that passed culling this frame and were not drawn yet.
	NewVisible
)

func (v VisibilityArray) String() string {
	switch v {
	case Visible:
		return "visible"
	case NewVisible:
		return "new_visible"
	default:
		return fmt.Sprintf("VisibilityArray(%d)", int(v))
	}
}

// compaction is the scan and the compaction bind group of one flag array.
type compaction struct {
	scan     ScanEngine
	provider bind_group_provider.BindGroupProvider
}

// visibilitySetter is the implementation of the VisibilitySetter interface.
type visibilitySetter struct {
	mu *sync.Mutex
	r  renderer.Renderer

	compact   *kernel
	instances int
	arrays    [2]*compaction
}

// VisibilitySetter turns a flag array into the compacted solid and edge command tables and
// the compacted count of a SceneBuffers. Both arrays share the compacted outputs, so each
// SetVisibility must be followed by its draw before the other array is set.
type VisibilitySetter interface {
	// SetVisibility records the scan of the selected array and the compaction of every flagged
	// instance's commands.
	//
	// Parameters:
	//   - array: the flag array to compact
	//
	// Returns:
	//   - error: an error if a dispatch fails
	SetVisibility(array VisibilityArray) error

	// ScanLevels returns the level sizes of the selected array's scan tree.
	ScanLevels(array VisibilityArray) []int

	// Release releases both scan trees and the compaction bind groups.
	Release()
}

var _ VisibilitySetter = &visibilitySetter{}

// NewVisibilitySetter builds a scan tree and a compaction bind group for both flag arrays of a
// SceneBuffers.
//
// Parameters:
//   - r: the renderer to record on
//   - sb: the scene buffers holding the flags, the command tables and the compacted outputs
//
// Returns:
//   - VisibilitySetter: the built setter
//   - error: an error if a kernel, scan tree or bind group could not be created
func NewVisibilitySetter(r renderer.Renderer, sb scene.SceneBuffers) (VisibilitySetter, error) {
	k, err := newKernel(r, PipelineCompact, compactSource)
	if err != nil {
		return nil, err
	}
	v := &visibilitySetter{
		mu:        &sync.Mutex{},
		r:         r,
		compact:   k,
		instances: sb.InstanceCount(),
	}

	sources := [2]struct {
		flags, scanned scene.BufferKind
	}{
		Visible:    {scene.BufferVisible, scene.BufferScannedVisible},
		NewVisible: {scene.BufferNewVisible, scene.BufferScannedNewVisible},
	}
	for array, src := range sources {
		c, err := v.build(sb, VisibilityArray(array), src.flags, src.scanned)
		if err != nil {
			v.Release()
			return nil, err
		}
		v.arrays[array] = c
	}
	return v, nil
}

func (v *visibilitySetter) build(sb scene.SceneBuffers, array VisibilityArray, flags, scanned scene.BufferKind) (*compaction, error) {
	label := fmt.Sprintf("%s %s", sb.Label(), array)
	scan, err := NewScanEngine(v.r, label, sb.Buffer(flags), sb.Buffer(scanned), v.instances)
	if err != nil {
		return nil, err
	}
	c := &compaction{scan: scan}

	k := v.compact
	c.provider = bind_group_provider.NewBindGroupProvider(label + " Compact")
	shared := map[int]scene.BufferKind{
		k.binding(shader.AnnotationArgScene, shader.AnnotationArgFlags):              flags,
		k.binding(shader.AnnotationArgScan, shader.AnnotationArgScanned):             scanned,
		k.binding(shader.AnnotationArgScene, shader.AnnotationArgSolidCommands):      scene.BufferSolidCommands,
		k.binding(shader.AnnotationArgScene, shader.AnnotationArgEdgeCommands):       scene.BufferEdgeCommands,
		k.binding(shader.AnnotationArgCompaction, shader.AnnotationArgCompactedSolid): scene.BufferCompactedSolid,
		k.binding(shader.AnnotationArgCompaction, shader.AnnotationArgCompactedEdge):  scene.BufferCompactedEdge,
		k.binding(shader.AnnotationArgCompaction, shader.AnnotationArgCount):         scene.BufferCompactedCount,
	}
	for binding, kind := range shared {
		c.provider.ShareBuffer(binding, sb.Buffer(kind))
	}
	c.provider.ShareBuffer(k.binding(shader.AnnotationArgScan, shader.AnnotationArgTotal), scan.Total())

	if err := v.r.InitBindGroup(c.provider, k.layout(), nil, nil); err != nil {
		v.r.Release(c.provider)
		scan.Release()
		return nil, fmt.Errorf("culling: failed to bind %s: %w", c.provider.Label(), err)
	}
	params := k.binding(shader.AnnotationArgCompaction, shader.AnnotationArgParams)
	v.r.WriteBuffer(c.provider.Buffer(params), 0, common.Uint32sToBytes([]uint32{uint32(v.instances), 0, 0, 0}))
	return c, nil
}

func (v *visibilitySetter) SetVisibility(array VisibilityArray) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if array != Visible && array != NewVisible {
		return fmt.Errorf("culling: unknown %s", array)
	}
	c := v.arrays[array]
	if c == nil {
		return fmt.Errorf("culling: %s compaction is released", array)
	}
	if err := c.scan.Scan(); err != nil {
		return err
	}
	if err := v.r.DispatchCompute(v.compact.key, c.provider, v.compact.groups(v.instances)); err != nil {
		return fmt.Errorf("culling: compact %s: %w", array, err)
	}
	return nil
}

func (v *visibilitySetter) ScanLevels(array VisibilityArray) []int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if array != Visible && array != NewVisible || v.arrays[array] == nil {
		return nil
	}
	return v.arrays[array].scan.LevelSizes()
}

func (v *visibilitySetter) Release() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, c := range v.arrays {
		if c == nil {
			continue
		}
		v.r.Release(c.provider)
		c.scan.Release()
		v.arrays[i] = nil
	}
}

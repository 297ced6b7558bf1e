package culling

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-ldr/common"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// scanLevel is one level of the scan tree. The totals buffer of a level is the input of the
// level above it; the top level writes its single total into the engine's total buffer.
type scanLevel struct {
	size   int
	input  *wgpu.Buffer
	output *wgpu.Buffer
	totals *wgpu.Buffer

	scan bind_group_provider.BindGroupProvider
	// add is nil on the top level.
	add bind_group_provider.BindGroupProvider
}

// scanEngine is the implementation of the ScanEngine interface.
type scanEngine struct {
	mu *sync.Mutex
	r  renderer.Renderer

	label string
	scan  *kernel
	add   *kernel

	levels []scanLevel
	total  *wgpu.Buffer
	owned  []*wgpu.Buffer
}

// ScanEngine computes the exclusive prefix sum of a u32 buffer on the GPU. The level tree is
// sized from the element count once; Scan only records dispatches.
type ScanEngine interface {
	// Scan records one scan dispatch per level followed by the add-back dispatches from the
	// top level down.
	//
	// Returns:
	//   - error: an error if a dispatch fails
	Scan() error

	// Output returns the buffer receiving the exclusive prefix sum.
	Output() *wgpu.Buffer

	// Total returns the one-element buffer receiving the sum of the input.
	Total() *wgpu.Buffer

	// LevelSizes returns the element count of every level, level 0 first.
	LevelSizes() []int

	// Release releases the level buffers and bind groups. The input and output buffers belong
	// to the caller and are left alone.
	Release()
}

var _ ScanEngine = &scanEngine{}

// NewScanEngine builds the level tree for n elements between an input and an output buffer,
// both holding at least max(n, 1) u32 values.
//
// Parameters:
//   - r: the renderer to record on
//   - label: the debug label prefix of the level buffers and bind groups
//   - input: the values to scan
//   - output: the buffer receiving the exclusive prefix sum
//   - n: the number of elements
//
// Returns:
//   - ScanEngine: the built engine
//   - error: an error if a kernel, buffer or bind group could not be created
func NewScanEngine(r renderer.Renderer, label string, input, output *wgpu.Buffer, n int) (ScanEngine, error) {
	scanK, err := newKernel(r, PipelineScan, scanSource)
	if err != nil {
		return nil, err
	}
	addK, err := newKernel(r, PipelineScanAdd, scanAddSource)
	if err != nil {
		return nil, err
	}
	e := &scanEngine{
		mu:    &sync.Mutex{},
		r:     r,
		label: label,
		scan:  scanK,
		add:   addK,
	}
	if err := e.build(input, output, n); err != nil {
		e.Release()
		return nil, err
	}
	return e, nil
}

func (e *scanEngine) buffer(label string, elements int) (*wgpu.Buffer, error) {
	buf, err := e.r.CreateBuffer(fmt.Sprintf("%s %s", e.label, label), wgpu.BufferUsageStorage, uint64(elements)*4, nil)
	if err != nil {
		return nil, fmt.Errorf("culling: failed to create %s %s: %w", e.label, label, err)
	}
	e.owned = append(e.owned, buf)
	return buf, nil
}

// build allocates the level arena and its bind groups.
func (e *scanEngine) build(input, output *wgpu.Buffer, n int) error {
	sizes := ScanLevelSizes(n)
	e.levels = make([]scanLevel, len(sizes))

	var err error
	if e.total, err = e.buffer("Scan Total", 1); err != nil {
		return err
	}

	for k, size := range sizes {
		lv := &e.levels[k]
		lv.size = size
		if k == 0 {
			lv.input, lv.output = input, output
		} else {
			lv.input = e.levels[k-1].totals
			if lv.output, err = e.buffer(fmt.Sprintf("Scan Level %d Output", k), size); err != nil {
				return err
			}
		}
		if k == len(sizes)-1 {
			lv.totals = e.total
		} else if lv.totals, err = e.buffer(fmt.Sprintf("Scan Level %d Input", k+1), sizes[k+1]); err != nil {
			return err
		}
	}

	in := e.scan.binding(shader.AnnotationArgScan, shader.AnnotationArgScanInput)
	out := e.scan.binding(shader.AnnotationArgScan, shader.AnnotationArgScanOutput)
	totals := e.scan.binding(shader.AnnotationArgScan, shader.AnnotationArgScanTotals)
	addOut := e.add.binding(shader.AnnotationArgScan, shader.AnnotationArgScanOutput)
	addUpper := e.add.binding(shader.AnnotationArgScan, shader.AnnotationArgScanUpper)

	for k := range e.levels {
		lv := &e.levels[k]
		lv.scan = bind_group_provider.NewBindGroupProvider(fmt.Sprintf("%s Scan %d", e.label, k))
		lv.scan.ShareBuffer(in, lv.input)
		lv.scan.ShareBuffer(out, lv.output)
		lv.scan.ShareBuffer(totals, lv.totals)
		if err := e.r.InitBindGroup(lv.scan, e.scan.layout(), nil, nil); err != nil {
			return fmt.Errorf("culling: failed to bind %s: %w", lv.scan.Label(), err)
		}
		if k == len(e.levels)-1 {
			continue
		}
		lv.add = bind_group_provider.NewBindGroupProvider(fmt.Sprintf("%s Scan Add %d", e.label, k))
		lv.add.ShareBuffer(addOut, lv.output)
		lv.add.ShareBuffer(addUpper, e.levels[k+1].output)
		if err := e.r.InitBindGroup(lv.add, e.add.layout(), nil, nil); err != nil {
			return fmt.Errorf("culling: failed to bind %s: %w", lv.add.Label(), err)
		}
	}
	return nil
}

func (e *scanEngine) Scan() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.levels) == 0 {
		return fmt.Errorf("culling: %s scan is released", e.label)
	}
	for k, lv := range e.levels {
		groups := [3]uint32{common.DivCeil(uint32(lv.size), ScanChunk), 1, 1}
		if err := e.r.DispatchCompute(e.scan.key, lv.scan, groups); err != nil {
			return fmt.Errorf("culling: %s scan level %d: %w", e.label, k, err)
		}
	}
	for k := len(e.levels) - 2; k >= 0; k-- {
		lv := e.levels[k]
		if err := e.r.DispatchCompute(e.add.key, lv.add, e.add.groups(lv.size)); err != nil {
			return fmt.Errorf("culling: %s scan add %d: %w", e.label, k, err)
		}
	}
	return nil
}

func (e *scanEngine) Output() *wgpu.Buffer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.levels) == 0 {
		return nil
	}
	return e.levels[0].output
}

func (e *scanEngine) Total() *wgpu.Buffer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.total
}

func (e *scanEngine) LevelSizes() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	sizes := make([]int, len(e.levels))
	for k, lv := range e.levels {
		sizes[k] = lv.size
	}
	return sizes
}

func (e *scanEngine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, lv := range e.levels {
		if lv.scan != nil {
			e.r.Release(lv.scan)
		}
		if lv.add != nil {
			e.r.Release(lv.add)
		}
	}
	e.levels = nil
	for _, buf := range e.owned {
		e.r.Release(buf)
	}
	e.owned = nil
	e.total = nil
}

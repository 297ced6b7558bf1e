// Package rendertest provides a recording Renderer for tests that exercise GPU orchestration
// without a device. Buffers and textures are zero-valued wgpu handles that are never passed to
// the native library, so callers must not Release them.
package rendertest

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// Call is one recorded Renderer call.
type Call struct {
	// Op is the method name.
	Op string
	// Key is the pipeline key for dispatch and draw calls.
	Key string
	// Label is the provider label for dispatch calls, the buffer label for buffer calls and the
	// count buffer label for count draws.
	Label string
	// Groups is the workgroup count of a dispatch.
	Groups [3]uint32
	// Count is the draw count or max count of a draw call, or the byte size of a copy.
	Count uint32
	// Drawn is the number of commands a draw call executes. For count draws it is read from
	// the count buffer's recorded contents and clamped to the max count.
	Drawn uint32
	// Clear is the clear flag of BeginRenderPass.
	Clear bool
}

// ReadStep is one scripted ReadBuffer result.
type ReadStep struct {
	Data []byte
	Err  error
}

// Renderer is a fake renderer.Renderer that records every frame call. Buffer contents are
// tracked in Writes: writes, clears and copies update them and ReadBuffer returns them unless
// a result is scripted.
type Renderer struct {
	mu *sync.Mutex

	Width, Height int
	Samples       renderer.MSAASampleCount
	Caps          renderer.Capabilities

	// BeginFrameErr is returned by the next BeginFrame and then cleared.
	BeginFrameErr error
	// ReadResult maps a buffer label to the bytes ReadBuffer returns for it.
	ReadResult map[string][]byte
	// ReadErr is returned by every ReadBuffer when set.
	ReadErr error

	Calls    []Call
	Writes   map[*wgpu.Buffer][]byte
	Labels   map[*wgpu.Buffer]string
	Sizes    map[*wgpu.Buffer]uint64
	Textures map[*wgpu.Texture][3]uint32

	pipelines  map[string]pipeline.Pipeline
	depthView  *wgpu.TextureView
	readScript map[string][]ReadStep
}

var _ renderer.Renderer = &Renderer{}

// New returns a fake renderer with the given surface size and capabilities and MSAA off.
func New(width, height int, caps renderer.Capabilities) *Renderer {
	return &Renderer{
		mu:         &sync.Mutex{},
		Width:      width,
		Height:     height,
		Samples:    renderer.MSAAOff,
		Caps:       caps,
		ReadResult: make(map[string][]byte),
		Writes:     make(map[*wgpu.Buffer][]byte),
		Labels:     make(map[*wgpu.Buffer]string),
		Sizes:      make(map[*wgpu.Buffer]uint64),
		Textures:   make(map[*wgpu.Texture][3]uint32),
		pipelines:  make(map[string]pipeline.Pipeline),
		depthView:  &wgpu.TextureView{},
		readScript: make(map[string][]ReadStep),
	}
}

// ScriptReads queues results for the next ReadBuffer calls on the buffer with the given label.
// Scripted steps take precedence over ReadErr and ReadResult and are consumed in order.
func (r *Renderer) ScriptReads(label string, steps ...ReadStep) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readScript[label] = append(r.readScript[label], steps...)
}

// Uint32At returns the little-endian u32 recorded at offset in buf, or 0 past its contents.
func (r *Renderer) Uint32At(buf *wgpu.Buffer, offset uint64) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.uint32AtLocked(buf, offset)
}

// Uint32s returns the first n little-endian u32 values recorded in buf, zero past its contents.
func (r *Renderer) Uint32s(buf *wgpu.Buffer, n int) []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint32, n)
	for i := range out {
		out[i] = r.uint32AtLocked(buf, uint64(i)*4)
	}
	return out
}

func (r *Renderer) uint32AtLocked(buf *wgpu.Buffer, offset uint64) uint32 {
	data := r.Writes[buf]
	if uint64(len(data)) < offset+4 {
		return 0
	}
	return binary.LittleEndian.Uint32(data[offset:])
}

// Ops returns the recorded operation names in order.
func (r *Renderer) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Calls))
	for i, c := range r.Calls {
		out[i] = c.Op
	}
	return out
}

// Reset clears the recorded calls.
func (r *Renderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = nil
}

// CallsOf returns the recorded calls with the given operation name.
func (r *Renderer) CallsOf(op string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// BufferByLabel returns the first created buffer with the given label.
func (r *Renderer) BufferByLabel(label string) *wgpu.Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	for b, l := range r.Labels {
		if l == label {
			return b
		}
	}
	return nil
}

func (r *Renderer) record(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, c)
}

func (r *Renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelines[key]
}

func (r *Renderer) Pipelines() map[string]pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelines
}

func (r *Renderer) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pipelines {
		if err := p.Validate(); err != nil {
			return err
		}
		r.pipelines[p.PipelineKey()] = p
	}
	return nil
}

func (r *Renderer) Resize(width, height int) {
	r.mu.Lock()
	r.Width, r.Height = max(width, 1), max(height, 1)
	r.depthView = &wgpu.TextureView{}
	r.mu.Unlock()
	r.record(Call{Op: "Resize"})
}

func (r *Renderer) SurfaceSize() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Width, r.Height
}

func (r *Renderer) SampleCount() renderer.MSAASampleCount {
	return r.Samples
}

func (r *Renderer) Capabilities() renderer.Capabilities {
	return r.Caps
}

func (r *Renderer) DepthView() *wgpu.TextureView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.depthView
}

func (r *Renderer) CreateBuffer(label string, usage wgpu.BufferUsage, size uint64, data []byte) (*wgpu.Buffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := &wgpu.Buffer{}
	size = max(size, uint64(len(data)))
	r.Labels[b] = label
	r.Sizes[b] = max((size+3)&^3, 4)
	if data != nil {
		r.Writes[b] = append([]byte(nil), data...)
	}
	return b, nil
}

func (r *Renderer) CreateStorageTexture(label string, width, height, mipLevels uint32) (*wgpu.Texture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &wgpu.Texture{}
	r.Textures[t] = [3]uint32{width, height, mipLevels}
	return t, nil
}

func (r *Renderer) CreateTextureView(texture *wgpu.Texture, baseMip, mipCount uint32) (*wgpu.TextureView, error) {
	return &wgpu.TextureView{}, nil
}

func (r *Renderer) InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error {
	for _, entry := range descriptor.Entries {
		binding := int(entry.Binding)
		if entry.Texture.SampleType != wgpu.TextureSampleTypeUndefined || entry.StorageTexture.Access != wgpu.StorageTextureAccessUndefined {
			if provider.TextureView(binding) == nil {
				return fmt.Errorf("%s: texture binding %d has no texture view", provider.Label(), binding)
			}
			continue
		}
		if provider.Buffer(binding) == nil {
			size := entry.Buffer.MinBindingSize
			if s, ok := bufferSizeOverrides[binding]; ok {
				size = s
			}
			buf, _ := r.CreateBuffer(fmt.Sprintf("%s Buffer %d", provider.Label(), binding), 0, size, nil)
			provider.SetBuffer(binding, buf)
		}
	}
	provider.SetBindGroup(&wgpu.BindGroup{})
	r.record(Call{Op: "InitBindGroup", Label: provider.Label()})
	return nil
}

func (r *Renderer) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	for _, w := range writes {
		if buf := w.Target(); buf != nil {
			r.WriteBuffer(buf, w.Offset, w.Data)
		}
	}
}

func (r *Renderer) WriteBuffer(buf *wgpu.Buffer, offset uint64, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeLocked(buf, offset, data)
}

func (r *Renderer) writeLocked(buf *wgpu.Buffer, offset uint64, data []byte) {
	cur := r.Writes[buf]
	if need := int(offset) + len(data); len(cur) < need {
		cur = append(cur, make([]byte, need-len(cur))...)
	}
	copy(cur[offset:], data)
	r.Writes[buf] = cur
}

func (r *Renderer) BeginFrame() error {
	r.mu.Lock()
	err := r.BeginFrameErr
	r.BeginFrameErr = nil
	r.mu.Unlock()
	if err != nil {
		return err
	}
	r.record(Call{Op: "BeginFrame"})
	return nil
}

func (r *Renderer) DispatchCompute(pipelineKey string, computeProvider bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error {
	if r.Pipeline(pipelineKey) == nil {
		return fmt.Errorf("pipeline %q not found in cache", pipelineKey)
	}
	r.record(Call{Op: "DispatchCompute", Key: pipelineKey, Label: computeProvider.Label(), Groups: workGroupCount})
	return nil
}

func (r *Renderer) CopyBufferToBuffer(src *wgpu.Buffer, srcOffset uint64, dst *wgpu.Buffer, dstOffset uint64, size uint64) {
	r.mu.Lock()
	label := r.Labels[src] + "->" + r.Labels[dst]
	data := make([]byte, size)
	if cur := r.Writes[src]; uint64(len(cur)) > srcOffset {
		copy(data, cur[srcOffset:])
	}
	r.writeLocked(dst, dstOffset, data)
	r.mu.Unlock()
	r.record(Call{Op: "CopyBufferToBuffer", Label: label, Count: uint32(size)})
}

func (r *Renderer) ClearBuffer(buf *wgpu.Buffer, offset, size uint64) {
	r.mu.Lock()
	label := r.Labels[buf]
	if _, ok := r.Writes[buf]; ok {
		r.writeLocked(buf, offset, make([]byte, size))
	}
	r.mu.Unlock()
	r.record(Call{Op: "ClearBuffer", Label: label, Count: uint32(size)})
}

func (r *Renderer) Flush() error {
	r.record(Call{Op: "Flush"})
	return nil
}

func (r *Renderer) ReadBuffer(buf *wgpu.Buffer, size uint64) ([]byte, error) {
	r.mu.Lock()
	label := r.Labels[buf]
	var step ReadStep
	if script := r.readScript[label]; len(script) > 0 {
		step, r.readScript[label] = script[0], script[1:]
	} else if data, ok := r.ReadResult[label]; ok && r.ReadErr == nil {
		step.Data = data
	} else if r.ReadErr != nil {
		step.Err = r.ReadErr
	} else {
		step.Data = make([]byte, size)
		copy(step.Data, r.Writes[buf])
	}
	r.mu.Unlock()
	r.record(Call{Op: "ReadBuffer", Label: label})
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Data, nil
}

func (r *Renderer) BeginRenderPass(clear bool) {
	r.record(Call{Op: "BeginRenderPass", Clear: clear})
}

func (r *Renderer) DrawIndexedIndirect(pipelineKey string, meshProvider bind_group_provider.BindGroupProvider, bindGroups []bind_group_provider.BindGroupProvider, indirectBuffer *wgpu.Buffer, count uint32) error {
	if r.Pipeline(pipelineKey) == nil {
		return fmt.Errorf("pipeline %q not found in cache", pipelineKey)
	}
	r.record(Call{Op: "DrawIndexedIndirect", Key: pipelineKey, Count: count, Drawn: count})
	return nil
}

func (r *Renderer) DrawIndexedIndirectCount(pipelineKey string, meshProvider bind_group_provider.BindGroupProvider, bindGroups []bind_group_provider.BindGroupProvider, indirectBuffer, countBuffer *wgpu.Buffer, maxCount uint32) error {
	if !r.Caps.MultiDrawIndirectCount {
		return fmt.Errorf("%s: device has no indirect count support", pipelineKey)
	}
	if r.Pipeline(pipelineKey) == nil {
		return fmt.Errorf("pipeline %q not found in cache", pipelineKey)
	}
	r.mu.Lock()
	drawn := min(r.uint32AtLocked(countBuffer, 0), maxCount)
	label := r.Labels[countBuffer]
	r.mu.Unlock()
	r.record(Call{Op: "DrawIndexedIndirectCount", Key: pipelineKey, Label: label, Count: maxCount, Drawn: drawn})
	return nil
}

func (r *Renderer) EndRenderPass() {
	r.record(Call{Op: "EndRenderPass"})
}

func (r *Renderer) EndFrame() {
	r.record(Call{Op: "EndFrame"})
}

func (r *Renderer) Present() {
	r.record(Call{Op: "Present"})
}

func (r *Renderer) AbortFrame() {
	r.record(Call{Op: "AbortFrame"})
}

func (r *Renderer) SetPresentMode(mode renderer.PresentMode) {}

// Release records the number of non-nil objects released. Nothing is freed.
func (r *Renderer) Release(objects ...any) {
	n := 0
	for _, o := range objects {
		if o != nil {
			n++
		}
	}
	r.record(Call{Op: "Release", Count: uint32(n)})
}

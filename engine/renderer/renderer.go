package renderer

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-ldr/engine/window"
	"github.com/cogentcore/webgpu/wgpu"
)

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	pipelineCache map[string]pipeline.Pipeline

	backendType RendererBackendType
	backend     RendererBackend

	settings settings
}

// settings are fixed when the device and surface are created.
type settings struct {
	presentMode     PresentMode
	msaa            MSAASampleCount
	fallbackAdapter bool
}

// Renderer defines the interface for the rendering system.
//
// The Renderer caches pipelines by key and exposes a frame made of one command encoder: compute
// dispatches, buffer copies and the two render passes of the culling pipeline are all recorded on
// it between BeginFrame and EndFrame. Flush submits early when the CPU has to read a result back.
type Renderer interface {
	// Pipeline retrieves the cached Pipeline associated with the given key.
	// If the Pipeline does not exist, this will return nil.
	//
	// Parameters:
	//   - key: the unique identifier for the Pipeline to retrieve
	//
	// Returns:
	//   - pipeline.Pipeline: the Pipeline associated with the key, or nil if not found
	Pipeline(key string) pipeline.Pipeline

	// Pipelines retrieves the entire cache of Pipelines.
	//
	// Returns:
	//   - map[string]pipeline.Pipeline: a map of pipeline keys to their corresponding Pipeline objects
	Pipelines() map[string]pipeline.Pipeline

	// RegisterPipelines registers one or more pipelines by creating the corresponding GPU
	// pipeline objects (render or compute) via the backend, then caching them by PipelineKey.
	// Pipelines whose keys are already registered are skipped to avoid duplicate GPU resource creation.
	//
	// Parameters:
	//   - pipelines: the Pipelines to register
	//
	// Returns:
	//   - error: an error if pipeline creation fails
	RegisterPipelines(pipelines ...pipeline.Pipeline) error

	// Resize configures the underlying backend to handle a new surface size. The depth
	// attachment and MSAA target are recreated; anything sampling the depth view must rebind.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	Resize(width, height int)

	// SurfaceSize returns the configured surface size in pixels.
	SurfaceSize() (width, height int)

	// SampleCount returns the MSAA sample count of the main attachments.
	SampleCount() MSAASampleCount

	// Capabilities returns the optional indirect-draw features the device supports.
	Capabilities() Capabilities

	// DepthView returns the current depth attachment view.
	DepthView() *wgpu.TextureView

	// CreateBuffer creates a GPU buffer and optionally uploads initial contents.
	//
	// Parameters:
	//   - label: debug label
	//   - usage: buffer usage flags
	//   - size: minimum size in bytes
	//   - data: initial contents or nil
	//
	// Returns:
	//   - *wgpu.Buffer: the created buffer
	//   - error: an error if buffer creation fails
	CreateBuffer(label string, usage wgpu.BufferUsage, size uint64, data []byte) (*wgpu.Buffer, error)

	// CreateStorageTexture creates an R32Float texture usable as storage and sampled texture.
	CreateStorageTexture(label string, width, height, mipLevels uint32) (*wgpu.Texture, error)

	// CreateTextureView creates a view over mipCount mips starting at baseMip.
	CreateTextureView(texture *wgpu.Texture, baseMip, mipCount uint32) (*wgpu.TextureView, error)

	// InitBindGroup creates GPU buffers and a bind group from a layout descriptor and stores them
	// on the given BindGroupProvider. Texture views must be set on the provider before calling
	// this method. Buffer usage and size can be overridden per binding.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created bind group on
	//   - descriptor: the layout descriptor defining the bind group entries
	//   - bufferUsageOverrides: additional buffer usage flags to OR into the derived usage, keyed by binding index (nil safe)
	//   - bufferSizeOverrides: custom buffer sizes to use instead of MinBindingSize, keyed by binding index (nil safe)
	//
	// Returns:
	//   - error: an error if bind group creation fails
	InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error

	// WriteBuffers writes all staged buffer writes to the GPU queue.
	// Each BufferWrite targets a specific buffer on a BindGroupProvider at a given binding and offset.
	//
	// Parameters:
	//   - writes: a slice of BufferWrite structs describing the data to write
	WriteBuffers(writes []bind_group_provider.BufferWrite)

	// WriteBuffer writes data into a buffer at offset through the queue.
	WriteBuffer(buf *wgpu.Buffer, offset uint64, data []byte)

	// BeginFrame acquires the swapchain texture and opens the frame command encoder.
	//
	// Returns:
	//   - error: the surface error if the swapchain texture could not be acquired
	BeginFrame() error

	// DispatchCompute looks up the cached compute Pipeline by key, then encodes a compute pass
	// on the frame encoder.
	//
	// Parameters:
	//   - pipelineKey: the unique identifier for the cached compute Pipeline to use
	//   - computeProvider: the BindGroupProvider whose BindGroup will be set on the compute pass
	//   - workGroupCount: the number of workgroups to dispatch in the x, y, and z dimensions
	//
	// Returns:
	//   - error: an error if the pipeline is not found
	DispatchCompute(pipelineKey string, computeProvider bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error

	// CopyBufferToBuffer records a buffer copy on the frame encoder.
	CopyBufferToBuffer(src *wgpu.Buffer, srcOffset uint64, dst *wgpu.Buffer, dstOffset uint64, size uint64)

	// ClearBuffer records a zero fill on the frame encoder.
	ClearBuffer(buf *wgpu.Buffer, offset, size uint64)

	// Flush submits everything recorded so far and continues the frame on a new encoder.
	Flush() error

	// ReadBuffer blocks until a MapRead buffer is mapped and returns a copy of its first size bytes.
	ReadBuffer(buf *wgpu.Buffer, size uint64) ([]byte, error)

	// BeginRenderPass opens the main render pass, clearing color and depth when clear is set.
	BeginRenderPass(clear bool)

	// DrawIndexedIndirect draws count consecutive indexed indirect commands.
	//
	// Parameters:
	//   - pipelineKey: the unique identifier for the cached render Pipeline to use
	//   - meshProvider: the BindGroupProvider holding vertex and index buffers
	//   - bindGroups: a slice of BindGroupProviders whose BindGroups will be set on the render pass
	//   - indirectBuffer: the GPU buffer of DrawIndexedIndirect commands
	//   - count: the number of commands to draw
	//
	// Returns:
	//   - error: an error if the pipeline is not found
	DrawIndexedIndirect(pipelineKey string, meshProvider bind_group_provider.BindGroupProvider, bindGroups []bind_group_provider.BindGroupProvider, indirectBuffer *wgpu.Buffer, count uint32) error

	// DrawIndexedIndirectCount draws indexed indirect commands with the count read on the GPU.
	// Only valid when Capabilities().MultiDrawIndirectCount is true.
	//
	// Parameters:
	//   - pipelineKey: the unique identifier for the cached render Pipeline to use
	//   - meshProvider: the BindGroupProvider holding vertex and index buffers
	//   - bindGroups: a slice of BindGroupProviders whose BindGroups will be set on the render pass
	//   - indirectBuffer: the GPU buffer of DrawIndexedIndirect commands
	//   - countBuffer: the GPU buffer holding the u32 draw count at offset 0
	//   - maxCount: the upper bound on the draw count
	//
	// Returns:
	//   - error: an error if the pipeline is not found or the feature is missing
	DrawIndexedIndirectCount(pipelineKey string, meshProvider bind_group_provider.BindGroupProvider, bindGroups []bind_group_provider.BindGroupProvider, indirectBuffer, countBuffer *wgpu.Buffer, maxCount uint32) error

	// EndRenderPass ends the open render pass.
	EndRenderPass()

	// EndFrame ends any open pass and submits the frame encoder.
	// Does not present the surface; call Present() after EndFrame to display the frame.
	EndFrame()

	// Present presents the surface to the display and releases the swapchain texture.
	// Must be called once per frame after EndFrame.
	Present()

	// AbortFrame discards the current frame without presenting it.
	AbortFrame()

	// Release frees GPU objects created through this renderer. Accepted values are
	// *wgpu.Buffer, *wgpu.Texture, *wgpu.TextureView, *wgpu.BindGroup and
	// bind_group_provider.BindGroupProvider; nil entries are skipped.
	//
	// Parameters:
	//   - objects: the objects to release
	Release(objects ...any)

	// SetPresentMode sets the surface present mode which controls how frames are delivered to the display.
	// A call to Resize is required after changing this for the new mode to take effect.
	//
	// Parameters:
	//   - mode: the PresentMode to use (VSync or Uncapped)
	SetPresentMode(mode PresentMode)
}

var _ Renderer = &renderer{}

// NewRenderer creates a new Renderer instance with the specified backend type and window.
// The GPU adapter and device are acquired immediately; failure to acquire either panics.
//
// Parameters:
//   - backendType: the type of rendering backend to use (e.g., WGPU)
//   - window: the window providing the surface descriptor and initial size
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: a new instance of Renderer configured with the specified backend and options
func NewRenderer(backendType RendererBackendType, window window.Window, options ...RendererBuilderOption) Renderer {
	r := &renderer{
		mu:            &sync.Mutex{},
		pipelineCache: make(map[string]pipeline.Pipeline),
		backendType:   backendType,
	}

	r.settings = settings{presentMode: PresentModeVSync, msaa: MSAA4x}
	for _, opt := range options {
		opt(r)
	}
	if r.settings.msaa != MSAAOff {
		r.settings.msaa = MSAA4x
	}

	switch backendType {
	case BackendTypeWGPU:
		fallthrough
	default:
		r.backend = newWGPURendererBackend(window.SurfaceDescriptor(), r.settings.fallbackAdapter, r.settings.msaa)
	}
	r.backend.SetPresentMode(r.settings.presentMode)
	r.backend.ConfigureSurface(window.Width(), window.Height())
	return r
}

func (r *renderer) Resize(width, height int) {
	r.backend.ConfigureSurface(width, height)
}

func (r *renderer) SurfaceSize() (int, int) {
	return r.backend.SurfaceSize()
}

func (r *renderer) SampleCount() MSAASampleCount {
	return r.backend.SampleCount()
}

func (r *renderer) Capabilities() Capabilities {
	return r.backend.Capabilities()
}

func (r *renderer) DepthView() *wgpu.TextureView {
	return r.backend.DepthView()
}

func (r *renderer) SetPresentMode(mode PresentMode) {
	r.backend.SetPresentMode(mode)
}

func (r *renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache[key]
}

func (r *renderer) Pipelines() map[string]pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache
}

func (r *renderer) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pipelines {
		key := p.PipelineKey()
		if _, exists := r.pipelineCache[key]; exists {
			continue
		}
		switch p.Type() {
		case pipeline.PipelineTypeCompute:
			if err := r.backend.RegisterComputePipeline(p); err != nil {
				return err
			}
		case pipeline.PipelineTypeRender:
			if err := r.backend.RegisterRenderPipeline(p); err != nil {
				return err
			}
		}
		r.pipelineCache[key] = p
	}
	return nil
}

func (r *renderer) CreateBuffer(label string, usage wgpu.BufferUsage, size uint64, data []byte) (*wgpu.Buffer, error) {
	return r.backend.CreateBuffer(label, usage, size, data)
}

func (r *renderer) CreateStorageTexture(label string, width, height, mipLevels uint32) (*wgpu.Texture, error) {
	return r.backend.CreateStorageTexture(label, width, height, mipLevels)
}

func (r *renderer) CreateTextureView(texture *wgpu.Texture, baseMip, mipCount uint32) (*wgpu.TextureView, error) {
	return r.backend.CreateTextureView(texture, baseMip, mipCount)
}

func (r *renderer) InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error {
	return r.backend.InitBindGroup(provider, descriptor, bufferUsageOverrides, bufferSizeOverrides)
}

func (r *renderer) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	r.backend.WriteBuffers(writes)
}

func (r *renderer) WriteBuffer(buf *wgpu.Buffer, offset uint64, data []byte) {
	r.backend.WriteBuffer(buf, offset, data)
}

func (r *renderer) BeginFrame() error {
	return r.backend.BeginFrame()
}

func (r *renderer) lookup(key string) (pipeline.Pipeline, error) {
	r.mu.Lock()
	p, exists := r.pipelineCache[key]
	r.mu.Unlock()

	if !exists {
		return nil, fmt.Errorf("pipeline %q not found in cache", key)
	}
	return p, nil
}

func (r *renderer) DispatchCompute(pipelineKey string, computeProvider bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error {
	p, err := r.lookup(pipelineKey)
	if err != nil {
		return err
	}
	r.backend.DispatchCompute(p, computeProvider, workGroupCount)
	return nil
}

func (r *renderer) CopyBufferToBuffer(src *wgpu.Buffer, srcOffset uint64, dst *wgpu.Buffer, dstOffset uint64, size uint64) {
	r.backend.CopyBufferToBuffer(src, srcOffset, dst, dstOffset, size)
}

func (r *renderer) ClearBuffer(buf *wgpu.Buffer, offset, size uint64) {
	r.backend.ClearBuffer(buf, offset, size)
}

func (r *renderer) Flush() error {
	return r.backend.Flush()
}

func (r *renderer) ReadBuffer(buf *wgpu.Buffer, size uint64) ([]byte, error) {
	return r.backend.ReadBuffer(buf, size)
}

func (r *renderer) BeginRenderPass(clear bool) {
	r.backend.BeginRenderPass(clear)
}

func (r *renderer) DrawIndexedIndirect(pipelineKey string, meshProvider bind_group_provider.BindGroupProvider, bindGroups []bind_group_provider.BindGroupProvider, indirectBuffer *wgpu.Buffer, count uint32) error {
	p, err := r.lookup(pipelineKey)
	if err != nil {
		return err
	}
	r.backend.DrawIndexedIndirect(p, meshProvider, bindGroups, indirectBuffer, count)
	return nil
}

func (r *renderer) DrawIndexedIndirectCount(pipelineKey string, meshProvider bind_group_provider.BindGroupProvider, bindGroups []bind_group_provider.BindGroupProvider, indirectBuffer, countBuffer *wgpu.Buffer, maxCount uint32) error {
	if !r.backend.Capabilities().MultiDrawIndirectCount {
		return fmt.Errorf("%s: device has no indirect count support", pipelineKey)
	}
	p, err := r.lookup(pipelineKey)
	if err != nil {
		return err
	}
	r.backend.DrawIndexedIndirectCount(p, meshProvider, bindGroups, indirectBuffer, countBuffer, maxCount)
	return nil
}

func (r *renderer) EndRenderPass() {
	r.backend.EndRenderPass()
}

func (r *renderer) EndFrame() {
	r.backend.EndFrame()
}

func (r *renderer) Present() {
	r.backend.Present()
}

func (r *renderer) AbortFrame() {
	r.backend.AbortFrame()
}

func (r *renderer) Release(objects ...any) {
	for _, o := range objects {
		switch v := o.(type) {
		case *wgpu.Buffer:
			if v != nil {
				v.Release()
			}
		case *wgpu.Texture:
			if v != nil {
				v.Release()
			}
		case *wgpu.TextureView:
			if v != nil {
				v.Release()
			}
		case *wgpu.BindGroup:
			if v != nil {
				v.Release()
			}
		case bind_group_provider.BindGroupProvider:
			if v != nil {
				v.Release()
			}
		}
	}
}

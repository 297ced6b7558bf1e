package renderer

import "github.com/cogentcore/webgpu/wgpu"

// DepthFormat is the depth attachment format. The depth pyramid blit samples it, so it must be
// a sampleable float format rather than Depth24Plus.
const DepthFormat = wgpu.TextureFormatDepth32Float

// DepthClearValue is the far plane under reversed-Z.
const DepthClearValue = 0.0

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based rendering backend.
	BackendTypeWGPU RendererBackendType = iota
)

// PresentMode selects how finished frames reach the display.
type PresentMode int

const (
	// PresentModeVSync waits for vertical blank (FIFO). It is always available.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents immediately, tearing if the adapter allows it.
	PresentModeUncapped
)

// MSAASampleCount is the sample count of the color and depth attachments. WebGPU guarantees 1
// and 4; the viewer uses nothing else.
type MSAASampleCount uint32

const (
	MSAAOff MSAASampleCount = 1
	MSAA4x  MSAASampleCount = 4
)

// Capabilities reports the optional indirect-draw features the device was created with.
type Capabilities struct {
	// MultiDrawIndirect allows one call to issue many indirect draws from a buffer.
	MultiDrawIndirect bool
	// MultiDrawIndirectCount additionally reads the draw count from a GPU buffer.
	MultiDrawIndirectCount bool
}

// RendererBackend is the top-level backend interface for the Renderer.
// It embeds the concrete backend interface for the selected GPU API.
type RendererBackend interface {
	wgpuRendererBackend
}

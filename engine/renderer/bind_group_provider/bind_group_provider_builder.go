package bind_group_provider

import "github.com/cogentcore/webgpu/wgpu"

// BindGroupProviderOption binds resources in NewBindGroupProvider.
type BindGroupProviderOption func(*bindGroupProvider)

// WithSharedBuffer binds a buffer owned elsewhere at a binding index.
//
// Parameters:
//   - binding: the binding index for this buffer
//   - buf: the borrowed buffer
//
// Returns:
//   - BindGroupProviderOption: a function that shares the buffer at the specified binding
func WithSharedBuffer(binding int, buf *wgpu.Buffer) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.ShareBuffer(binding, buf)
	}
}

// WithSharedBuffers binds several borrowed buffers at once.
//
// Parameters:
//   - buffers: a map of binding indices to borrowed buffers
//
// Returns:
//   - BindGroupProviderOption: a function that shares every buffer in the map
func WithSharedBuffers(buffers map[int]*wgpu.Buffer) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		for binding, buf := range buffers {
			p.ShareBuffer(binding, buf)
		}
	}
}

// WithSharedTextureView binds a texture view owned elsewhere at a binding index.
func WithSharedTextureView(binding int, tv *wgpu.TextureView) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.ShareTextureView(binding, tv)
	}
}

// WithVertexBuffers binds vertex buffers to slots 0..n-1 in argument order.
func WithVertexBuffers(buffers ...*wgpu.Buffer) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		for slot, buf := range buffers {
			p.vertexBuffers[slot] = buf
		}
	}
}

// WithIndexBuffer binds the index buffer and its index count.
func WithIndexBuffer(buf *wgpu.Buffer, count int) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.SetIndexBuffer(buf, count)
	}
}

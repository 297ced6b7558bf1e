// Package bind_group_provider holds the GPU resources behind one bind group, together with the
// vertex and index buffers of a draw, and tracks which of them it owns.
package bind_group_provider

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// resource is what sits at one binding. Shared resources belong to someone else (the scene
// buffers, the depth pyramid, a neighbouring scan level) and are never released here.
type resource struct {
	buffer  *wgpu.Buffer
	view    *wgpu.TextureView
	texture bool
	shared  bool
}

type bindGroupProvider struct {
	label string

	bindGroup *wgpu.BindGroup
	layout    *wgpu.BindGroupLayout
	bindings  map[int]resource

	// Vertex buffers are always borrowed from the scene.
	vertexBuffers map[int]*wgpu.Buffer
	indexBuffer   *wgpu.Buffer
	indexCount    int
}

// BindGroupProvider owns or borrows the buffers and texture views of one bind group and keeps
// the bind group created from them. The renderer fills missing buffer bindings in InitBindGroup
// and the provider releases whatever it owns in Release.
//
// A provider also carries the vertex and index buffers of a draw, so the draw passes can bind a
// mesh and its per-instance data through the same value.
type BindGroupProvider interface {
	// Label names the provider in GPU object labels and errors.
	Label() string

	// BindGroup returns the bind group, or nil before InitBindGroup.
	BindGroup() *wgpu.BindGroup

	// BindGroupLayout returns the layout the bind group was created with, or nil.
	BindGroupLayout() *wgpu.BindGroupLayout

	// Buffer returns the buffer at a binding, or nil.
	Buffer(binding int) *wgpu.Buffer

	// Buffers returns every buffer binding keyed by binding index.
	Buffers() map[int]*wgpu.Buffer

	// TextureView returns the texture view at a binding, or nil.
	TextureView(binding int) *wgpu.TextureView

	// TextureViews returns every texture view binding keyed by binding index.
	TextureViews() map[int]*wgpu.TextureView

	// Shared reports whether the resource at binding is borrowed.
	Shared(binding int) bool

	// VertexBuffer returns the vertex buffer bound to a slot, or nil.
	VertexBuffer(slot int) *wgpu.Buffer

	// VertexBufferCount returns the number of consecutive vertex slots bound from slot 0.
	VertexBufferCount() int

	// IndexBuffer returns the index buffer, or nil.
	IndexBuffer() *wgpu.Buffer

	// IndexCount returns the number of indices in the index buffer.
	IndexCount() int

	// SetBindGroup stores the bind group created by the renderer.
	SetBindGroup(bg *wgpu.BindGroup)

	// SetBindGroupLayout stores the layout created by the renderer. The provider owns it.
	SetBindGroupLayout(bgl *wgpu.BindGroupLayout)

	// SetBuffer places an owned buffer at a binding.
	SetBuffer(binding int, buf *wgpu.Buffer)

	// ShareBuffer places a borrowed buffer at a binding.
	ShareBuffer(binding int, buf *wgpu.Buffer)

	// SetTextureView places an owned texture view at a binding.
	SetTextureView(binding int, tv *wgpu.TextureView)

	// ShareTextureView places a borrowed texture view at a binding.
	ShareTextureView(binding int, tv *wgpu.TextureView)

	// SetVertexBuffer binds a vertex buffer to a slot.
	SetVertexBuffer(slot int, buf *wgpu.Buffer)

	// SetIndexBuffer binds the index buffer and its index count.
	SetIndexBuffer(buf *wgpu.Buffer, count int)

	// ReleaseBindGroup drops the bind group so the next InitBindGroup rebuilds it against the
	// current resources. Resources and the layout stay.
	ReleaseBindGroup()

	// Release frees the bind group, the layout and every owned resource, and forgets all
	// bindings and vertex slots.
	Release()
}

var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates an empty provider.
//
// Parameters:
//   - label: the name used in GPU labels
//   - options: functional options binding borrowed resources up front
//
// Returns:
//   - BindGroupProvider: the new provider
func NewBindGroupProvider(label string, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		label:         label,
		bindings:      make(map[int]resource),
		vertexBuffers: make(map[int]*wgpu.Buffer),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) BindGroup() *wgpu.BindGroup {
	return p.bindGroup
}

func (p *bindGroupProvider) BindGroupLayout() *wgpu.BindGroupLayout {
	return p.layout
}

func (p *bindGroupProvider) Buffer(binding int) *wgpu.Buffer {
	return p.bindings[binding].buffer
}

func (p *bindGroupProvider) Buffers() map[int]*wgpu.Buffer {
	out := make(map[int]*wgpu.Buffer)
	for b, r := range p.bindings {
		if !r.texture {
			out[b] = r.buffer
		}
	}
	return out
}

func (p *bindGroupProvider) TextureView(binding int) *wgpu.TextureView {
	return p.bindings[binding].view
}

func (p *bindGroupProvider) TextureViews() map[int]*wgpu.TextureView {
	out := make(map[int]*wgpu.TextureView)
	for b, r := range p.bindings {
		if r.texture {
			out[b] = r.view
		}
	}
	return out
}

func (p *bindGroupProvider) Shared(binding int) bool {
	return p.bindings[binding].shared
}

func (p *bindGroupProvider) VertexBuffer(slot int) *wgpu.Buffer {
	return p.vertexBuffers[slot]
}

func (p *bindGroupProvider) VertexBufferCount() int {
	n := 0
	for {
		if _, ok := p.vertexBuffers[n]; !ok {
			return n
		}
		n++
	}
}

func (p *bindGroupProvider) IndexBuffer() *wgpu.Buffer {
	return p.indexBuffer
}

func (p *bindGroupProvider) IndexCount() int {
	return p.indexCount
}

func (p *bindGroupProvider) SetBindGroup(bg *wgpu.BindGroup) {
	p.bindGroup = bg
}

func (p *bindGroupProvider) SetBindGroupLayout(bgl *wgpu.BindGroupLayout) {
	p.layout = bgl
}

func (p *bindGroupProvider) SetBuffer(binding int, buf *wgpu.Buffer) {
	p.bindings[binding] = resource{buffer: buf}
}

func (p *bindGroupProvider) ShareBuffer(binding int, buf *wgpu.Buffer) {
	p.bindings[binding] = resource{buffer: buf, shared: true}
}

func (p *bindGroupProvider) SetTextureView(binding int, tv *wgpu.TextureView) {
	p.bindings[binding] = resource{view: tv, texture: true}
}

func (p *bindGroupProvider) ShareTextureView(binding int, tv *wgpu.TextureView) {
	p.bindings[binding] = resource{view: tv, texture: true, shared: true}
}

func (p *bindGroupProvider) SetVertexBuffer(slot int, buf *wgpu.Buffer) {
	p.vertexBuffers[slot] = buf
}

func (p *bindGroupProvider) SetIndexBuffer(buf *wgpu.Buffer, count int) {
	p.indexBuffer = buf
	p.indexCount = count
}

func (p *bindGroupProvider) ReleaseBindGroup() {
	if p.bindGroup != nil {
		p.bindGroup.Release()
		p.bindGroup = nil
	}
}

func (p *bindGroupProvider) Release() {
	for _, r := range p.bindings {
		if r.shared {
			continue
		}
		if r.view != nil {
			r.view.Release()
		}
		if r.buffer != nil {
			r.buffer.Release()
		}
	}
	clear(p.bindings)

	p.ReleaseBindGroup()
	if p.layout != nil {
		p.layout.Release()
		p.layout = nil
	}
	clear(p.vertexBuffers)
	p.indexBuffer = nil
	p.indexCount = 0
}

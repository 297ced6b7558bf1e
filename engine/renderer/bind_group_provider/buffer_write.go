package bind_group_provider

import "github.com/cogentcore/webgpu/wgpu"

// BufferWrite is a queued upload into the buffer behind one binding of a provider.
type BufferWrite struct {
	Provider BindGroupProvider
	Binding  int
	Offset   uint64
	Data     []byte
}

// Target returns the buffer the write lands in, or nil when the provider has no buffer at the
// binding (a texture binding, or a provider whose bind group was never initialized).
func (w BufferWrite) Target() *wgpu.Buffer {
	if w.Provider == nil {
		return nil
	}
	return w.Provider.Buffer(w.Binding)
}

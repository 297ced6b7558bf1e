package model

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUVertexSource is the WGSL definition of the VertexInput struct consumed by the model and edge pipelines.
// Matches GPUVertex layout exactly (32 bytes).
//
//go:embed assets/vertex.wgsl
var GPUVertexSource string

// GPUVertex is one welded vertex of a part geometry.
// Size: 32 bytes.
type GPUVertex struct {
	Position [3]float32 // offset  0
	Color    uint32     // offset 12: packed RGBA8, see PackRGBA
	Normal   [4]float32 // offset 16: xyz normal, w unused
}

// Size returns the size of the GPUVertex struct in bytes.
func (g *GPUVertex) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the vertex for GPU upload.
//
// Returns:
//   - []byte: 32-byte little-endian buffer
func (g *GPUVertex) Marshal() []byte {
	buf := make([]byte, 32)
	g.MarshalTo(buf)
	return buf
}

// MarshalTo writes the vertex into buf, which must hold at least 32 bytes.
func (g *GPUVertex) MarshalTo(buf []byte) {
	for i := range 3 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(g.Position[i]))
	}
	binary.LittleEndian.PutUint32(buf[12:], g.Color)
	for i := range 4 {
		binary.LittleEndian.PutUint32(buf[16+i*4:], math.Float32bits(g.Normal[i]))
	}
}

// GPUInstanceTransformSource is the WGSL definition of the per-instance vertex input holding the
// world transform columns. Matches GPUInstanceTransform (64 bytes).
//
//go:embed assets/instance_transform.wgsl
var GPUInstanceTransformSource string

// GPUInstanceTransform is a column-major world transform bound as an instance-rate vertex buffer.
// The indirect command's base_instance selects the row.
type GPUInstanceTransform struct {
	Columns [16]float32
}

// Size returns the size of the GPUInstanceTransform struct in bytes.
func (g *GPUInstanceTransform) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the transform for GPU upload.
func (g *GPUInstanceTransform) Marshal() []byte {
	buf := make([]byte, 64)
	g.MarshalTo(buf)
	return buf
}

// MarshalTo writes the transform into buf, which must hold at least 64 bytes.
func (g *GPUInstanceTransform) MarshalTo(buf []byte) {
	for i := range 16 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(g.Columns[i]))
	}
}

// GPUInstanceBoundsSource is the WGSL definition of InstanceBounds. Matches GPUInstanceBounds (48 bytes).
//
//go:embed assets/instance_bounds.wgsl
var GPUInstanceBoundsSource string

// GPUInstanceBounds is the world-space bounding volume of one instance as read by the culling pass.
type GPUInstanceBounds struct {
	Sphere [4]float32 // offset  0: center xyz, radius w
	MinXYZ [4]float32 // offset 16: w unused
	MaxXYZ [4]float32 // offset 32: w unused
}

// Size returns the size of the GPUInstanceBounds struct in bytes.
func (g *GPUInstanceBounds) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the bounds for GPU upload.
//
// Returns:
//   - []byte: 48-byte little-endian buffer
func (g *GPUInstanceBounds) Marshal() []byte {
	buf := make([]byte, 48)
	g.MarshalTo(buf)
	return buf
}

// MarshalTo writes the bounds into buf, which must hold at least 48 bytes.
func (g *GPUInstanceBounds) MarshalTo(buf []byte) {
	for i := range 4 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(g.Sphere[i]))
		binary.LittleEndian.PutUint32(buf[16+i*4:], math.Float32bits(g.MinXYZ[i]))
		binary.LittleEndian.PutUint32(buf[32+i*4:], math.Float32bits(g.MaxXYZ[i]))
	}
}

// GPUDrawIndexedIndirectSource is the WGSL definition of DrawIndexedIndirect, the standard
// indexed-indirect draw ABI. Matches GPUDrawIndexedIndirect (20 bytes).
//
//go:embed assets/draw_indexed_indirect.wgsl
var GPUDrawIndexedIndirectSource string

// GPUDrawIndexedIndirect is one indexed indirect draw command.
// InstanceCount is 0 or 1: every instance gets its own command so it can be culled on its own.
type GPUDrawIndexedIndirect struct {
	IndexCount    uint32 // offset  0
	InstanceCount uint32 // offset  4
	FirstIndex    uint32 // offset  8
	BaseVertex    int32  // offset 12
	BaseInstance  uint32 // offset 16
}

// DrawIndexedIndirectStride is the byte size of one command in an indirect buffer.
const DrawIndexedIndirectStride = 20

// Size returns the size of the GPUDrawIndexedIndirect struct in bytes.
func (g *GPUDrawIndexedIndirect) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the command for GPU upload.
func (g *GPUDrawIndexedIndirect) Marshal() []byte {
	buf := make([]byte, DrawIndexedIndirectStride)
	g.MarshalTo(buf)
	return buf
}

// MarshalTo writes the command into buf, which must hold at least 20 bytes.
func (g *GPUDrawIndexedIndirect) MarshalTo(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], g.IndexCount)
	binary.LittleEndian.PutUint32(buf[4:], g.InstanceCount)
	binary.LittleEndian.PutUint32(buf[8:], g.FirstIndex)
	binary.LittleEndian.PutUint32(buf[12:], uint32(g.BaseVertex))
	binary.LittleEndian.PutUint32(buf[16:], g.BaseInstance)
}

// UnmarshalDrawIndexedIndirect decodes one command from buf.
func UnmarshalDrawIndexedIndirect(buf []byte) GPUDrawIndexedIndirect {
	return GPUDrawIndexedIndirect{
		IndexCount:    binary.LittleEndian.Uint32(buf[0:]),
		InstanceCount: binary.LittleEndian.Uint32(buf[4:]),
		FirstIndex:    binary.LittleEndian.Uint32(buf[8:]),
		BaseVertex:    int32(binary.LittleEndian.Uint32(buf[12:])),
		BaseInstance:  binary.LittleEndian.Uint32(buf[16:]),
	}
}

// MarshalSlice serializes a slice of GPU values back to back using each value's MarshalTo.
func MarshalSlice[T any, P interface {
	*T
	Size() int
	MarshalTo([]byte)
}](values []T) []byte {
	if len(values) == 0 {
		return nil
	}
	stride := P(&values[0]).Size()
	buf := make([]byte, stride*len(values))
	for i := range values {
		P(&values[i]).MarshalTo(buf[i*stride:])
	}
	return buf
}

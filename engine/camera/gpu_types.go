package camera

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-ldr/common"
)

// GPUModelCameraSource is the canonical WGSL definition of the CameraUniform struct read by the
// solid and edge pipelines. Matches GPUModelCamera layout exactly (80 bytes).
//
//go:embed assets/camera_uniform.wgsl
var GPUModelCameraSource string

// GPUModelCamera is the GPU-aligned representation of the model camera uniform buffer.
// Size: 80 bytes.
type GPUModelCamera struct {
	ViewProj [16]float32 // offset  0: combined view-projection matrix (mat4x4<f32>)
	Position [4]float32  // offset 64: world-space camera position, w = 1
}

// Size returns the size of the GPUModelCamera struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (80)
func (g *GPUModelCamera) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUModelCamera struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUModelCamera) Marshal() []byte {
	buf := make([]byte, g.Size())
	common.PutMat4(buf, g.ViewProj)
	for i := range 4 {
		binary.LittleEndian.PutUint32(buf[64+i*4:], math.Float32bits(g.Position[i]))
	}
	return buf
}

// GPUCullingCameraSource is the canonical WGSL definition of the CullingCamera struct read by
// the culling pass. Matches GPUCullingCamera layout exactly (160 bytes).
//
//go:embed assets/culling_camera.wgsl
var GPUCullingCameraSource string

// GPUCullingCamera carries everything the culling pass needs to test an instance against the
// frustum and the depth pyramid.
// Size: 160 bytes.
type GPUCullingCamera struct {
	ViewProj [16]float32 // offset   0
	Frustum  [4]float32  // offset  64: packed side planes, see common.PackSidePlanes
	P00      float32     // offset  80: projection[0][0]
	P11      float32     // offset  84: projection[1][1]
	ZNear    float32     // offset  88
	ZFar     float32     // offset  92
	View     [16]float32 // offset  96
}

// Size returns the size of the GPUCullingCamera struct in bytes.
func (g *GPUCullingCamera) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUCullingCamera struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 160-byte little-endian buffer
func (g *GPUCullingCamera) Marshal() []byte {
	buf := make([]byte, g.Size())
	common.PutMat4(buf, g.ViewProj)
	for i := range 4 {
		binary.LittleEndian.PutUint32(buf[64+i*4:], math.Float32bits(g.Frustum[i]))
	}
	binary.LittleEndian.PutUint32(buf[80:], math.Float32bits(g.P00))
	binary.LittleEndian.PutUint32(buf[84:], math.Float32bits(g.P11))
	binary.LittleEndian.PutUint32(buf[88:], math.Float32bits(g.ZNear))
	binary.LittleEndian.PutUint32(buf[92:], math.Float32bits(g.ZFar))
	common.PutMat4(buf[96:], g.View)
	return buf
}

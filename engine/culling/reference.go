package culling

import (
	"math/bits"

	"github.com/Carmen-Shannon/oxy-ldr/common"
	"github.com/Carmen-Shannon/oxy-ldr/engine/camera"
	"github.com/Carmen-Shannon/oxy-ldr/engine/model"
	"github.com/chewxy/math32"
)

// The CPU models in this file follow the compute shaders step for step and share their
// constants. Tests use them as oracles; the viewer never calls them per frame.

const (
	// ScanChunk is the number of elements one scan workgroup covers.
	ScanChunk = 512
	// ScanWorkgroupSize is the number of threads per scan workgroup, two elements each.
	ScanWorkgroupSize = 256
	// CullWorkgroupSize is the number of instances one cull or compaction workgroup covers.
	CullWorkgroupSize = 256
	// PyramidTile is the width and height of one blit or reduce workgroup.
	PyramidTile = 8
)

// ScanLevelSizes returns the element count of every level of the scan tree for n inputs. Level
// 0 has max(n, 1) elements; each further level holds one total per chunk of the level below,
// until a single workgroup covers a level.
func ScanLevelSizes(n int) []int {
	size := max(n, 1)
	sizes := []int{size}
	for size > ScanChunk {
		size = (size + ScanChunk - 1) / ScanChunk
		sizes = append(sizes, size)
	}
	return sizes
}

// ExclusiveScan is the naive prefix sum used to check ScanLevels.
func ExclusiveScan(in []uint32) ([]uint32, uint32) {
	out := make([]uint32, len(in))
	var sum uint32
	for i, v := range in {
		out[i] = sum
		sum += v
	}
	return out, sum
}

// ScanLevels runs the multi-level scan the way the GPU does: every level writes chunk-local
// exclusive sums and per-chunk totals, then the scanned totals are added back from the top
// level down.
//
// Parameters:
//   - in: the level 0 input
//
// Returns:
//   - []uint32: the exclusive prefix sum of in
//   - uint32: the sum of in
func ScanLevels(in []uint32) ([]uint32, uint32) {
	sizes := ScanLevelSizes(len(in))

	inputs := make([][]uint32, len(sizes))
	outputs := make([][]uint32, len(sizes))
	inputs[0] = make([]uint32, sizes[0])
	copy(inputs[0], in)

	var total uint32
	for level, size := range sizes {
		outputs[level] = make([]uint32, size)
		chunks := (size + ScanChunk - 1) / ScanChunk
		totals := make([]uint32, chunks)
		for c := range chunks {
			var sum uint32
			for i := c * ScanChunk; i < min((c+1)*ScanChunk, size); i++ {
				outputs[level][i] = sum
				sum += inputs[level][i]
			}
			totals[c] = sum
		}
		if level+1 < len(sizes) {
			inputs[level+1] = totals
		} else {
			total = totals[0]
		}
	}

	for level := len(sizes) - 2; level >= 0; level-- {
		upper := outputs[level+1]
		for i := range outputs[level] {
			outputs[level][i] += upper[i/ScanChunk]
		}
	}
	return outputs[0][:len(in)], total
}

// Compact packs the commands of every flagged instance to the front, in instance order, with
// instance_count forced to 1.
//
// Parameters:
//   - flags: one 0/1 visibility flag per instance
//   - scanned: the exclusive prefix sum of flags
//   - solid, edge: the static command tables
//
// Returns:
//   - []model.GPUDrawIndexedIndirect: the packed solid commands
//   - []model.GPUDrawIndexedIndirect: the packed edge commands
//   - uint32: the number of packed commands
func Compact(flags, scanned []uint32, solid, edge []model.GPUDrawIndexedIndirect) ([]model.GPUDrawIndexedIndirect, []model.GPUDrawIndexedIndirect, uint32) {
	var count uint32
	for _, f := range flags {
		count += f
	}
	outSolid := make([]model.GPUDrawIndexedIndirect, count)
	outEdge := make([]model.GPUDrawIndexedIndirect, count)
	for i, f := range flags {
		if f == 0 {
			continue
		}
		s, e := solid[i], edge[i]
		s.InstanceCount, e.InstanceCount = 1, 1
		outSolid[scanned[i]] = s
		outEdge[scanned[i]] = e
	}
	return outSolid, outEdge, count
}

// MaxMips returns the number of pyramid levels for a surface: floor(log2(max(w, h))) + 1, or 1
// for an empty surface.
func MaxMips(width, height int) int {
	m := max(width, height)
	if m <= 0 {
		return 1
	}
	return bits.Len(uint(m))
}

// PyramidLevelSizes returns the logical size of every pyramid level. Level 0 is the surface
// size and level k+1 is ceil(level k / 2), at least 1.
func PyramidLevelSizes(width, height int) [][2]int {
	width, height = max(width, 1), max(height, 1)
	n := MaxMips(width, height)
	sizes := make([][2]int, n)
	for k := range n {
		sizes[k] = [2]int{levelExtent(width, k), levelExtent(height, k)}
	}
	return sizes
}

// levelExtent returns ceil(size / 2^k).
func levelExtent(size, k int) int {
	return max((size+(1<<k)-1)>>k, 1)
}

// PyramidTextureSize returns the padded base size of the pyramid texture and its mip count.
// Each axis is rounded up to a multiple of 2^(mips-1), so every floor-halved texture mip is at
// least as large as the logical level it stores.
func PyramidTextureSize(width, height int) (int, int, int) {
	width, height = max(width, 1), max(height, 1)
	mips := MaxMips(width, height)
	align := 1 << (mips - 1)
	return (width + align - 1) / align * align, (height + align - 1) / align * align, mips
}

// ReducePyramid builds every pyramid level from a row-major level 0, taking the maximum of the
// 2x2 texels each output covers with reads clamped to the input size.
//
// Parameters:
//   - level0: width*height depth values
//   - width, height: the size of level 0
//
// Returns:
//   - [][]float32: one row-major slice per level, level 0 first
func ReducePyramid(level0 []float32, width, height int) [][]float32 {
	sizes := PyramidLevelSizes(width, height)
	levels := make([][]float32, len(sizes))
	levels[0] = level0
	for k := 1; k < len(sizes); k++ {
		src, dst := sizes[k-1], sizes[k]
		out := make([]float32, dst[0]*dst[1])
		for y := range dst[1] {
			for x := range dst[0] {
				var d float32
				for j := range 2 {
					for i := range 2 {
						sx := min(2*x+i, src[0]-1)
						sy := min(2*y+j, src[1]-1)
						d = math32.Max(d, levels[k-1][sy*src[0]+sx])
					}
				}
				out[y*dst[0]+x] = d
			}
		}
		levels[k] = out
	}
	return levels
}

// SelectMip returns the pyramid level whose texels are at least as large as a footprint of the
// given size in level 0 pixels: ceil(log2(max(w, h))) clamped to the chain, with the footprint
// clamped to one texel.
func SelectMip(widthPx, heightPx float32, mipCount int) int {
	footprint := math32.Max(math32.Max(widthPx, heightPx), 1)
	mip := int(math32.Ceil(math32.Log2(footprint)))
	return common.Clamp(mip, 0, max(mipCount-1, 0))
}

// ScreenRect is the normalized screen rectangle covered by a projected sphere, with v = 0 at
// the top of the screen.
type ScreenRect struct {
	U0, V0, U1, V1 float32
}

// ProjectSphere returns the screen rectangle of a view-space sphere in front of the near plane.
// The view looks down -z; p00 and p11 are the projection's x and y scales.
func ProjectSphere(cx, cy, cz, radius, p00, p11 float32) ScreenRect {
	dz := -cz
	crx, cry, crz := cx*radius, cy*radius, dz*radius
	czr2 := dz*dz - radius*radius

	vx := math32.Sqrt(cx*cx + czr2)
	minx := (vx*cx - crz) / (vx*dz + crx)
	maxx := (vx*cx + crz) / (vx*dz - crx)

	vy := math32.Sqrt(cy*cy + czr2)
	miny := (vy*cy - crz) / (vy*dz + cry)
	maxy := (vy*cy + crz) / (vy*dz - cry)

	return ScreenRect{
		U0: common.Clamp(minx*p00*0.5+0.5, 0, 1),
		V0: common.Clamp(-maxy*p11*0.5+0.5, 0, 1),
		U1: common.Clamp(maxx*p00*0.5+0.5, 0, 1),
		V1: common.Clamp(-miny*p11*0.5+0.5, 0, 1),
	}
}

// CullInstance runs the frustum and occlusion tests for one instance. A nil pyramid skips the
// occlusion test.
//
// Parameters:
//   - cam: the culling camera uniform
//   - pyramid: the levels returned by ReducePyramid, or nil
//   - width, height: the size of pyramid level 0
//   - b: the instance's world bounds
//
// Returns:
//   - bool: true if the instance passes both tests
func CullInstance(cam camera.GPUCullingCamera, pyramid [][]float32, width, height int, b model.GPUInstanceBounds) bool {
	cx, cy, cz := common.TransformPoint(cam.View, b.Sphere[0], b.Sphere[1], b.Sphere[2])
	r := b.Sphere[3]
	if !common.SphereInsideSidePlanes(cam.Frustum, cx, cy, cz, r) {
		return false
	}
	if len(pyramid) == 0 {
		return true
	}
	return !occluded(cam, pyramid, width, height, cx, cy, cz, r)
}

func occluded(cam camera.GPUCullingCamera, pyramid [][]float32, width, height int, cx, cy, cz, r float32) bool {
	dz := -cz
	if dz < r+cam.ZNear {
		return false
	}

	rect := ProjectSphere(cx, cy, cz, r, cam.P00, cam.P11)
	w0, h0 := float32(width), float32(height)
	mip := SelectMip((rect.U1-rect.U0)*w0, (rect.V1-rect.V0)*h0, len(pyramid))

	lw, lh := levelExtent(width, mip), levelExtent(height, mip)
	texel := func(u float32, size float32, limit int) int {
		return min(int(math32.Floor(u*size))>>mip, limit-1)
	}
	x0, x1 := texel(rect.U0, w0, lw), texel(rect.U1, w0, lw)
	y0, y1 := texel(rect.V0, h0, lh), texel(rect.V1, h0, lh)

	level := pyramid[mip]
	depth := math32.Max(
		math32.Max(level[y0*lw+x0], level[y0*lw+x1]),
		math32.Max(level[y1*lw+x0], level[y1*lw+x1]),
	)

	nearest := common.ReversedDepth(dz-r, cam.ZNear, cam.ZFar)
	return nearest < depth
}

// Transition applies one cull result to an instance's flags. The instance is newly visible when
// it passes without having been visible, and visible records the result for the next frame.
//
// Parameters:
//   - passed: the cull result
//   - visible: the instance's visible flag from the previous frame
//
// Returns:
//   - newVisible: the instance's new_visible flag
//   - nextVisible: the instance's visible flag for the next frame
func Transition(passed bool, visible uint32) (newVisible, nextVisible uint32) {
	return boolToU32(passed && visible == 0), boolToU32(passed)
}

// CullAll runs CullInstance and Transition over every instance, updating visible in place.
//
// Returns:
//   - []uint32: the new_visible flags
func CullAll(cam camera.GPUCullingCamera, pyramid [][]float32, width, height int, bounds []model.GPUInstanceBounds, visible []uint32) []uint32 {
	newVisible := make([]uint32, len(bounds))
	for i, b := range bounds {
		passed := CullInstance(cam, pyramid, width, height, b)
		newVisible[i], visible[i] = Transition(passed, visible[i])
	}
	return newVisible
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

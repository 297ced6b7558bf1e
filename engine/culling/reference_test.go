package culling

import (
	"math/rand/v2"
	"testing"

	"github.com/Carmen-Shannon/oxy-ldr/common"
	"github.com/Carmen-Shannon/oxy-ldr/engine/camera"
	"github.com/Carmen-Shannon/oxy-ldr/engine/model"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomFlags(n int, seed uint64) []uint32 {
	rng := rand.New(rand.NewPCG(seed, uint64(n)))
	flags := make([]uint32, n)
	for i := range flags {
		flags[i] = uint32(rng.IntN(2))
	}
	return flags
}

func TestScanLevelSizes(t *testing.T) {
	assert.Equal(t, []int{1}, ScanLevelSizes(0))
	assert.Equal(t, []int{1}, ScanLevelSizes(1))
	assert.Equal(t, []int{512}, ScanLevelSizes(512))
	assert.Equal(t, []int{513, 2}, ScanLevelSizes(513))
	assert.Equal(t, []int{1_000_000, 1954, 4}, ScanLevelSizes(1_000_000))
}

func TestScanLevelsMatchesNaivePrefixSum(t *testing.T) {
	for _, n := range []int{0, 1, 511, 512, 513, 1_000_000} {
		in := randomFlags(n, 7)
		want, wantTotal := ExclusiveScan(in)
		got, total := ScanLevels(in)
		require.Len(t, got, n, "n=%d", n)
		assert.Equal(t, want, got, "n=%d", n)
		assert.Equal(t, wantTotal, total, "n=%d", n)
	}
}

func TestScanLevelsAllOnes(t *testing.T) {
	in := make([]uint32, 1025)
	for i := range in {
		in[i] = 1
	}
	out, total := ScanLevels(in)
	assert.Equal(t, uint32(1025), total)
	for i, v := range out {
		if !assert.Equal(t, uint32(i), v) {
			break
		}
	}
}

func TestCompactPacksInOrder(t *testing.T) {
	flags := []uint32{1, 0, 1, 1, 0}
	scanned, total := ExclusiveScan(flags)
	solid := make([]model.GPUDrawIndexedIndirect, len(flags))
	edge := make([]model.GPUDrawIndexedIndirect, len(flags))
	for i := range flags {
		solid[i] = model.GPUDrawIndexedIndirect{IndexCount: 3, FirstIndex: uint32(i * 3), BaseInstance: uint32(i)}
		edge[i] = model.GPUDrawIndexedIndirect{IndexCount: 2, FirstIndex: uint32(i * 2), BaseInstance: uint32(i)}
	}

	outSolid, outEdge, count := Compact(flags, scanned, solid, edge)
	assert.Equal(t, total, count)
	require.Len(t, outSolid, 3)
	for j, want := range []uint32{0, 2, 3} {
		assert.Equal(t, want, outSolid[j].BaseInstance)
		assert.Equal(t, want, outEdge[j].BaseInstance)
		assert.Equal(t, uint32(1), outSolid[j].InstanceCount)
		assert.Equal(t, uint32(1), outEdge[j].InstanceCount)
	}
}

func TestCompactEmpty(t *testing.T) {
	s, e, count := Compact(nil, nil, nil, nil)
	assert.Zero(t, count)
	assert.Empty(t, s)
	assert.Empty(t, e)
}

func TestMaxMips(t *testing.T) {
	assert.Equal(t, 1, MaxMips(0, 0))
	assert.Equal(t, 1, MaxMips(1, 1))
	assert.Equal(t, 2, MaxMips(2, 1))
	assert.Equal(t, 10, MaxMips(1023, 5))
	assert.Equal(t, 11, MaxMips(1920, 1080))
}

func TestPyramidLevelSizesOdd(t *testing.T) {
	assert.Equal(t, [][2]int{{5, 3}, {3, 2}, {2, 1}}, PyramidLevelSizes(5, 3))
	assert.Equal(t, [][2]int{{1, 1}}, PyramidLevelSizes(0, 0))

	sizes := PyramidLevelSizes(1920, 1080)
	assert.Len(t, sizes, 11)
	// floor(log2) levels stop before 1x1 on non power of two sizes.
	assert.Equal(t, [2]int{2, 2}, sizes[len(sizes)-1])
}

func TestPyramidTextureSizeCoversEveryLevel(t *testing.T) {
	tw, th, mips := PyramidTextureSize(5, 3)
	assert.Equal(t, []int{8, 4, 3}, []int{tw, th, mips})

	for _, size := range [][2]int{{1, 1}, {7, 3}, {640, 480}, {1366, 768}, {1921, 1081}, {3, 1000}} {
		tw, th, mips := PyramidTextureSize(size[0], size[1])
		levels := PyramidLevelSizes(size[0], size[1])
		require.Len(t, levels, mips)
		for k, lv := range levels {
			assert.GreaterOrEqual(t, max(tw>>k, 1), lv[0], "%v mip %d", size, k)
			assert.GreaterOrEqual(t, max(th>>k, 1), lv[1], "%v mip %d", size, k)
		}
	}
}

func TestReducePyramidKeepsOddEdge(t *testing.T) {
	level0 := []float32{
		0.1, 0.1, 0.1,
		0.1, 0.1, 0.1,
		0.1, 0.1, 0.9,
	}
	levels := ReducePyramid(level0, 3, 3)
	require.Len(t, levels, 2)
	assert.Equal(t, []float32{0.1, 0.1, 0.1, 0.9}, levels[1])
}

func TestReducePyramidIsConservative(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	for _, size := range [][2]int{{7, 5}, {16, 9}, {33, 1}, {1, 17}} {
		w, h := size[0], size[1]
		level0 := make([]float32, w*h)
		var top float32
		for i := range level0 {
			level0[i] = rng.Float32()
			top = math32.Max(top, level0[i])
		}
		levels := ReducePyramid(level0, w, h)
		sizes := PyramidLevelSizes(w, h)

		// Every texel is covered by the texel above it.
		for k := 0; k+1 < len(levels); k++ {
			cur, next := sizes[k], sizes[k+1]
			for y := range cur[1] {
				for x := range cur[0] {
					assert.GreaterOrEqual(t, levels[k+1][(y/2)*next[0]+x/2], levels[k][y*cur[0]+x])
				}
			}
		}
		var lastMax float32
		for _, v := range levels[len(levels)-1] {
			lastMax = math32.Max(lastMax, v)
		}
		assert.Equal(t, top, lastMax)
	}
}

func TestSelectMip(t *testing.T) {
	assert.Equal(t, 0, SelectMip(0.5, 0.5, 10))
	assert.Equal(t, 0, SelectMip(1, 1, 10))
	assert.Equal(t, 1, SelectMip(2, 1, 10))
	assert.Equal(t, 2, SelectMip(3, 3, 10))
	assert.Equal(t, 4, SelectMip(1000, 1, 5))
	assert.Equal(t, 0, SelectMip(1000, 1000, 0))
}

func TestProjectSphereCentered(t *testing.T) {
	rect := ProjectSphere(0, 0, -10, 1, 1, 1)
	assert.InDelta(t, 1, rect.U0+rect.U1, 1e-5)
	assert.InDelta(t, 1, rect.V0+rect.V1, 1e-5)
	assert.Less(t, rect.U0, rect.U1)
	assert.Less(t, rect.V0, rect.V1)
}

func cullingCamera() camera.GPUCullingCamera {
	return camera.NewCamera().CullingUniform()
}

func bounds(x, y, z, r float32) model.GPUInstanceBounds {
	return model.GPUInstanceBounds{
		Sphere: [4]float32{x, y, z, r},
		MinXYZ: [4]float32{x - r, y - r, z - r, 0},
		MaxXYZ: [4]float32{x + r, y + r, z + r, 0},
	}
}

func flatPyramid(w, h int, depth float32) [][]float32 {
	level0 := make([]float32, w*h)
	for i := range level0 {
		level0[i] = depth
	}
	return ReducePyramid(level0, w, h)
}

func TestCullInstanceFrustum(t *testing.T) {
	cam := cullingCamera()
	assert.True(t, CullInstance(cam, nil, 64, 64, bounds(0, 0, -10, 1)))
	assert.False(t, CullInstance(cam, nil, 64, 64, bounds(1000, 0, -10, 1)))
	assert.False(t, CullInstance(cam, nil, 64, 64, bounds(0, -1000, -10, 1)))
	assert.False(t, CullInstance(cam, nil, 64, 64, bounds(0, 0, 10, 1)))
	// Partially outside stays visible.
	assert.True(t, CullInstance(cam, nil, 64, 64, bounds(2.6, 0, -10, 1)))
}

func TestCullInstanceOcclusion(t *testing.T) {
	cam := cullingCamera()
	b := bounds(0, 0, -10, 1)

	occluder := common.ReversedDepth(5, cam.ZNear, cam.ZFar)
	assert.False(t, CullInstance(cam, flatPyramid(64, 64, occluder), 64, 64, b))

	behind := common.ReversedDepth(20, cam.ZNear, cam.ZFar)
	assert.True(t, CullInstance(cam, flatPyramid(64, 64, behind), 64, 64, b))

	// Empty depth buffer (far plane) never occludes.
	assert.True(t, CullInstance(cam, flatPyramid(64, 64, 0), 64, 64, b))
}

func TestCullInstanceNearPlaneStaysVisible(t *testing.T) {
	cam := cullingCamera()
	assert.True(t, CullInstance(cam, flatPyramid(32, 32, 1), 32, 32, bounds(0, 0, -0.5, 1)))
}

func TestCullInstanceDegenerateRadius(t *testing.T) {
	cam := cullingCamera()
	rect := ProjectSphere(0, 0, -10, 0, cam.P00, cam.P11)
	for _, v := range []float32{rect.U0, rect.V0, rect.U1, rect.V1} {
		assert.False(t, math32.IsNaN(v))
		assert.False(t, math32.IsInf(v, 0))
	}
	assert.True(t, CullInstance(cam, flatPyramid(16, 16, 0), 16, 16, bounds(0, 0, -10, 0)))
	assert.False(t, CullInstance(cam, flatPyramid(16, 16, 1), 16, 16, bounds(0, 0, -10, 0)))
}

func TestCullInstanceUsesFiniteFarPlane(t *testing.T) {
	cam := cullingCamera()
	occluder := common.ReversedDepth(8000, cam.ZNear, cam.ZFar)

	// Near the far plane z_near / d overestimates the depth and would keep this sphere.
	assert.False(t, CullInstance(cam, flatPyramid(64, 64, occluder), 64, 64, bounds(0, 0, -9001, 1)))
	assert.True(t, CullInstance(cam, flatPyramid(64, 64, occluder), 64, 64, bounds(0, 0, -7001, 1)))
}

func TestTransition(t *testing.T) {
	cases := []struct {
		name                   string
		passed                 bool
		visible                uint32
		wantNew, wantNextVisib uint32
	}{
		{"newly visible", true, 0, 1, 1},
		{"still visible", true, 1, 0, 1},
		{"lost", false, 1, 0, 0},
		{"still hidden", false, 0, 0, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			gotNew, gotNext := Transition(c.passed, c.visible)
			assert.Equal(t, c.wantNew, gotNew)
			assert.Equal(t, c.wantNextVisib, gotNext)
		})
	}
}

func TestCullAllMovesInstancesBetweenArrays(t *testing.T) {
	cam := cullingCamera()
	all := []model.GPUInstanceBounds{
		bounds(0, 0, -10, 1),
		bounds(1000, 0, -10, 1),
		bounds(0, 2, -10, 1),
	}
	visible := []uint32{0, 1, 1}

	newVisible := CullAll(cam, nil, 64, 64, all, visible)
	assert.Equal(t, []uint32{1, 0, 0}, newVisible)
	assert.Equal(t, []uint32{1, 0, 1}, visible)
}

func TestCullAllSettlesUnderStaticCamera(t *testing.T) {
	cam := cullingCamera()
	pyramid := flatPyramid(64, 64, common.ReversedDepth(5, cam.ZNear, cam.ZFar))
	all := []model.GPUInstanceBounds{
		bounds(0, 0, -3, 1),    // in front of the occluder
		bounds(0, 0, -10, 1),   // behind it
		bounds(1000, 0, -3, 1), // off screen
		bounds(0.5, 0, -2, 1),  // starts hidden, in front
	}
	visible := []uint32{1, 1, 1, 0}

	newVisible := CullAll(cam, pyramid, 64, 64, all, visible)
	assert.Equal(t, []uint32{0, 0, 0, 1}, newVisible)
	settled := append([]uint32(nil), visible...)
	assert.Equal(t, []uint32{1, 0, 0, 1}, settled)

	for frame := range 2 {
		newVisible = CullAll(cam, pyramid, 64, 64, all, visible)
		assert.Equal(t, []uint32{0, 0, 0, 0}, newVisible, "frame %d", frame+2)
		assert.Equal(t, settled, visible, "frame %d", frame+2)
	}
}

package common

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func projectDepth(proj Mat4, viewZ float32) float32 {
	z := proj[2]*0 + proj[6]*0 + proj[10]*viewZ + proj[14]
	w := proj[3]*0 + proj[7]*0 + proj[11]*viewZ + proj[15]
	return z / w
}

func TestPerspectiveReversedDepthRange(t *testing.T) {
	var proj Mat4
	PerspectiveReversed(proj[:], 0.5, 1.5, 0.1, 1000)

	assert.InDelta(t, 1.0, projectDepth(proj, -0.1), 1e-5)
	assert.InDelta(t, 0.0, projectDepth(proj, -1000), 1e-5)

	mid := projectDepth(proj, -10)
	assert.InDelta(t, ReversedDepth(10, 0.1, 1000), mid, 1e-5)
	assert.Greater(t, projectDepth(proj, -5), mid, "nearer points have larger depth")
}

func TestReversedDepthClamps(t *testing.T) {
	assert.Equal(t, float32(1), ReversedDepth(0, 0.1, 100))
	assert.Equal(t, float32(0), ReversedDepth(500, 0.1, 100))
}

func TestInvert4RoundTrip(t *testing.T) {
	m := MulMat4(Translation(1, 2, 3), MulMat4(RotationX(0.3), RotationY(-1.1)))
	var inv Mat4
	require.True(t, Invert4(inv[:], m[:]))

	product := MulMat4(m, inv)
	identity := IdentityMat4()
	for i := range product {
		assert.InDelta(t, identity[i], product[i], 1e-5)
	}
}

func TestInvert4Singular(t *testing.T) {
	var zero, out Mat4
	out[0] = 42
	assert.False(t, Invert4(out[:], zero[:]))
	assert.Equal(t, float32(42), out[0])
}

func TestMaxAxisScaleAndDeterminant(t *testing.T) {
	m := IdentityMat4()
	m[0], m[5], m[10] = 2, -3, 1
	assert.InDelta(t, 3, MaxAxisScale(m), 1e-6)
	assert.Less(t, Determinant3(m), float32(0))
}

func TestSidePlanesMatchFrustum(t *testing.T) {
	var proj Mat4
	PerspectiveReversed(proj[:], 0.8, 16.0/9.0, 0.1, 500)
	packed := PackSidePlanes(proj[:])
	full := ExtractFrustumFromMatrix(proj[:])

	cases := []struct {
		name       string
		x, y, z, r float32
	}{
		{"ahead", 0, 0, -10, 1},
		{"far left", -100, 0, -10, 1},
		{"far right", 100, 0, -10, 1},
		{"above", 0, 50, -10, 1},
		{"touching right edge", 10, 0, -10, 8},
		{"behind", 0, 0, 10, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inside := SphereInsideSidePlanes(packed, tc.x, tc.y, tc.z, tc.r)
			outside := full.SphereOutside(tc.x, tc.y, tc.z, tc.r,
				FrustumLeft, FrustumRight, FrustumBottom, FrustumTop)
			assert.Equal(t, !outside, inside)
		})
	}
}

func TestExtractFrustumNearFar(t *testing.T) {
	var proj Mat4
	PerspectiveReversed(proj[:], 0.8, 1, 1, 100)
	f := ExtractFrustumFromMatrix(proj[:])

	assert.Greater(t, f.Planes[FrustumNear].SignedDistance(0, 0, -2), float32(0))
	assert.Less(t, f.Planes[FrustumNear].SignedDistance(0, 0, -0.5), float32(0))
	assert.Greater(t, f.Planes[FrustumFar].SignedDistance(0, 0, -50), float32(0))
	assert.Less(t, f.Planes[FrustumFar].SignedDistance(0, 0, -200), float32(0))
}

func TestRotationPreservesLength(t *testing.T) {
	x, y, z := TransformPoint(RotationY(1.2), 3, 4, 0)
	assert.InDelta(t, 5, math32.Sqrt(x*x+y*y+z*z), 1e-5)
}

func TestUint32BytesRoundTrip(t *testing.T) {
	in := []uint32{0, 1, 0xDEADBEEF}
	assert.Equal(t, in, BytesToUint32s(Uint32sToBytes(in)))
	assert.Equal(t, []byte{1, 0, 0, 0}, Uint32sToBytes([]uint32{1}))
}

func TestClampAndDivCeil(t *testing.T) {
	assert.Equal(t, 5, Clamp(9, 0, 5))
	assert.Equal(t, uint32(2), DivCeil(513, 512))
	assert.Equal(t, uint32(0), DivCeil(0, 512))
}

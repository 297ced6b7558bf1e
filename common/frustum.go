package common

import (
	"github.com/chewxy/math32"
)

// Plane is ax + by + cz + d = 0 with the normal pointing into the frustum.
type Plane struct {
	Normal   [3]float32
	Distance float32
}

// SignedDistance returns the distance from the plane to the point, positive on the inside.
func (p Plane) SignedDistance(x, y, z float32) float32 {
	return p.Normal[0]*x + p.Normal[1]*y + p.Normal[2]*z + p.Distance
}

// Frustum holds the six planes of a view volume.
type Frustum struct {
	Planes [6]Plane // Left, Right, Bottom, Top, Near, Far
}

const (
	FrustumLeft   = 0
	FrustumRight  = 1
	FrustumBottom = 2
	FrustumTop    = 3
	FrustumNear   = 4
	FrustumFar    = 5
)

// row returns row r of a column-major matrix.
func row(m []float32, r int) [4]float32 {
	return [4]float32{m[r], m[4+r], m[8+r], m[12+r]}
}

func planeFrom(a, b [4]float32, sign float32) Plane {
	p := Plane{
		Normal:   [3]float32{a[0] + sign*b[0], a[1] + sign*b[1], a[2] + sign*b[2]},
		Distance: a[3] + sign*b[3],
	}
	length := math32.Sqrt(p.Normal[0]*p.Normal[0] + p.Normal[1]*p.Normal[1] + p.Normal[2]*p.Normal[2])
	if length > 0 {
		inv := 1 / length
		p.Normal[0] *= inv
		p.Normal[1] *= inv
		p.Normal[2] *= inv
		p.Distance *= inv
	}
	return p
}

// ExtractFrustumFromMatrix extracts normalized planes from a column-major matrix using the
// Gribb/Hartmann method. Passing a view-projection yields world-space planes, passing a
// projection yields view-space planes. Near and far follow the [0, 1] reversed depth range:
// the near plane is row3 - row2 and the far plane is row2.
func ExtractFrustumFromMatrix(m []float32) Frustum {
	r0, r1, r2, r3 := row(m, 0), row(m, 1), row(m, 2), row(m, 3)
	var f Frustum
	f.Planes[FrustumLeft] = planeFrom(r3, r0, 1)
	f.Planes[FrustumRight] = planeFrom(r3, r0, -1)
	f.Planes[FrustumBottom] = planeFrom(r3, r1, 1)
	f.Planes[FrustumTop] = planeFrom(r3, r1, -1)
	f.Planes[FrustumNear] = planeFrom(r3, r2, -1)
	f.Planes[FrustumFar] = planeFrom(r2, [4]float32{}, 1)
	return f
}

// SphereOutside reports whether the sphere lies entirely on the outside of any of the given planes.
func (f Frustum) SphereOutside(x, y, z, radius float32, planes ...int) bool {
	if len(planes) == 0 {
		planes = []int{FrustumLeft, FrustumRight, FrustumBottom, FrustumTop, FrustumNear, FrustumFar}
	}
	for _, i := range planes {
		if f.Planes[i].SignedDistance(x, y, z) < -radius {
			return true
		}
	}
	return false
}

// PackSidePlanes packs the symmetric side planes of a projection matrix into one vec4 for the
// culling shader. With L the normalized left plane and B the normalized bottom plane in view
// space, the result is (L.x, -L.z, B.y, -B.z). A view-space sphere (c, r) is inside the side
// planes when
//
//	-|c.x|*f.x + (-c.z)*f.y > -r  and  -|c.y|*f.z + (-c.z)*f.w > -r
func PackSidePlanes(projection []float32) [4]float32 {
	f := ExtractFrustumFromMatrix(projection)
	left := f.Planes[FrustumLeft]
	bottom := f.Planes[FrustumBottom]
	return [4]float32{left.Normal[0], -left.Normal[2], bottom.Normal[1], -bottom.Normal[2]}
}

// SphereInsideSidePlanes evaluates the packed side-plane test for a view-space sphere.
func SphereInsideSidePlanes(frustum [4]float32, cx, cy, cz, radius float32) bool {
	depth := -cz
	horizontal := -math32.Abs(cx)*frustum[0] + depth*frustum[1]
	vertical := -math32.Abs(cy)*frustum[2] + depth*frustum[3]
	return horizontal > -radius && vertical > -radius
}

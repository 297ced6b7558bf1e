package model

import (
	"github.com/Carmen-Shannon/oxy-ldr/common"
	"github.com/chewxy/math32"
)

// Reserved LDraw color codes.
const (
	// ColorCurrent inherits the color of the referencing line.
	ColorCurrent uint32 = 16
	// ColorEdge inherits the edge color of the referencing line.
	ColorEdge uint32 = 24
)

// EdgeColorPacked is the packed color used for drawn edge lines (opaque black).
const EdgeColorPacked uint32 = 0xFF000000

// Color is one entry of the LDraw color table.
type Color struct {
	Code       uint32
	Name       string
	RGBALinear [4]float32
	EdgeLinear [4]float32
}

// Transparent reports whether the color has partial alpha.
func (c Color) Transparent() bool {
	return c.RGBALinear[3] < 1
}

// ColorTable maps LDraw color codes to colors.
type ColorTable map[uint32]Color

// fallbackColor is used for codes missing from the table.
var fallbackColor = Color{Name: "Unknown", RGBALinear: [4]float32{0.5, 0.5, 0.5, 1}, EdgeLinear: [4]float32{0.1, 0.1, 0.1, 1}}

// Lookup returns the color for code, or a neutral gray when it is unknown.
func (t ColorTable) Lookup(code uint32) Color {
	if c, ok := t[code]; ok {
		return c
	}
	c := fallbackColor
	c.Code = code
	return c
}

// Transparent reports whether code resolves to a transparent color.
func (t ColorTable) Transparent(code uint32) bool {
	c, ok := t[code]
	return ok && c.Transparent()
}

// PackRGBA packs a linear RGBA color into a u32 as R in the low byte through A in the high byte,
// which WGSL unpack4x8unorm reads back as vec4(r, g, b, a).
func PackRGBA(rgba [4]float32) uint32 {
	var packed uint32
	for i, v := range rgba {
		b := uint32(math32.Floor(common.Clamp(v, 0, 1)*255 + 0.5))
		packed |= b << (8 * i)
	}
	return packed
}

// UnpackRGBA is the inverse of PackRGBA.
func UnpackRGBA(packed uint32) [4]float32 {
	var out [4]float32
	for i := range out {
		out[i] = float32((packed>>(8*i))&0xFF) / 255
	}
	return out
}

// Bounds is a local-space bounding volume of a geometry.
type Bounds struct {
	Center [3]float32
	Radius float32
	Min    [3]float32
	Max    [3]float32
}

// BoundsFromPoints computes the AABB of the points and a sphere centered on the AABB center.
// An empty input yields zero bounds.
func BoundsFromPoints(points [][3]float32) Bounds {
	if len(points) == 0 {
		return Bounds{}
	}
	b := Bounds{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		for i := range 3 {
			b.Min[i] = math32.Min(b.Min[i], p[i])
			b.Max[i] = math32.Max(b.Max[i], p[i])
		}
	}
	for i := range 3 {
		b.Center[i] = (b.Min[i] + b.Max[i]) * 0.5
	}
	for _, p := range points {
		dx, dy, dz := p[0]-b.Center[0], p[1]-b.Center[1], p[2]-b.Center[2]
		b.Radius = math32.Max(b.Radius, math32.Sqrt(dx*dx+dy*dy+dz*dz))
	}
	return b
}

// TransformBounds converts local bounds into the world-space record read by the culling pass.
// The AABB is built from the translation plus, per output axis, the smaller and larger of each
// row product with the local min and max; no corners are enumerated. The sphere center is
// transformed and the radius scaled by the largest axis scale.
func TransformBounds(b Bounds, m common.Mat4) GPUInstanceBounds {
	minXYZ := [3]float32{m[12], m[13], m[14]}
	maxXYZ := minXYZ
	for i := range 3 {
		for j := range 3 {
			e := m[j*4+i]
			lo := e * b.Min[j]
			hi := e * b.Max[j]
			if lo > hi {
				lo, hi = hi, lo
			}
			minXYZ[i] += lo
			maxXYZ[i] += hi
		}
	}

	cx, cy, cz := common.TransformPoint(m, b.Center[0], b.Center[1], b.Center[2])
	return GPUInstanceBounds{
		Sphere: [4]float32{cx, cy, cz, b.Radius * common.MaxAxisScale(m)},
		MinXYZ: [4]float32{minXYZ[0], minXYZ[1], minXYZ[2], 0},
		MaxXYZ: [4]float32{maxXYZ[0], maxXYZ[1], maxXYZ[2], 0},
	}
}

// Geometry is the welded, triangulated mesh of one part. Vertex colors are stored as LDraw
// codes so one geometry can be instanced in many colors.
type Geometry struct {
	Name        string
	Positions   [][3]float32
	Normals     [][3]float32
	ColorCodes  []uint32
	Indices     []uint32
	EdgeIndices []uint32
	Bounds      Bounds
}

// VertexCount returns the number of welded vertices.
func (g *Geometry) VertexCount() int {
	return len(g.Positions)
}

// Vertices resolves the geometry's color codes against the table. ColorCurrent takes the
// instance color and ColorEdge its edge color.
//
// Parameters:
//   - instanceColor: the color code of the instance being laid out
//   - table: the color table
//
// Returns:
//   - []GPUVertex: one vertex per welded position
func (g *Geometry) Vertices(instanceColor uint32, table ColorTable) []GPUVertex {
	inst := table.Lookup(instanceColor)
	cache := make(map[uint32]uint32, 4)
	resolve := func(code uint32) uint32 {
		if packed, ok := cache[code]; ok {
			return packed
		}
		var packed uint32
		switch code {
		case ColorCurrent:
			packed = PackRGBA(inst.RGBALinear)
		case ColorEdge:
			packed = PackRGBA(inst.EdgeLinear)
		default:
			packed = PackRGBA(table.Lookup(code).RGBALinear)
		}
		cache[code] = packed
		return packed
	}

	out := make([]GPUVertex, len(g.Positions))
	for i, p := range g.Positions {
		v := GPUVertex{Position: p}
		if i < len(g.Normals) {
			n := g.Normals[i]
			v.Normal = [4]float32{n[0], n[1], n[2], 0}
		}
		code := ColorCurrent
		if i < len(g.ColorCodes) {
			code = g.ColorCodes[i]
		}
		v.Color = resolve(code)
		out[i] = v
	}
	return out
}

// GeometryColor identifies one (part, color) instancing group.
type GeometryColor struct {
	Name  string
	Color uint32
}

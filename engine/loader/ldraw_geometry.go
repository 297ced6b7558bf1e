package loader

import (
	"github.com/Carmen-Shannon/oxy-ldr/common"
	"github.com/Carmen-Shannon/oxy-ldr/engine/model"
	"github.com/chewxy/math32"
	"github.com/rclancey/earcut"
)

// weldScale is the inverse of the grid positions are snapped to before welding, in LDraw units.
const weldScale = 1000

// smoothCosine is cos(89 degrees). Faces meeting at a sharper angle keep separate normals.
var smoothCosine = math32.Cos(89 * math32.Pi / 180)

// triangle is one face in part space with its resolved color code.
type triangle struct {
	vertices [3][3]float32
	color    uint32
}

// partMesh collects the faces and edges of a part and everything it references, already
// transformed into the part's space.
type partMesh struct {
	triangles []triangle
	edges     [][2][3]float32
}

// addPolygon triangulates a polygon and appends its faces with the requested winding.
func (m *partMesh) addPolygon(points [][3]float32, color uint32, reverse bool) {
	var faces [][3]int
	switch len(points) {
	case 3:
		faces = [][3]int{{0, 1, 2}}
	case 4:
		faces = triangulateQuad(points)
	default:
		return
	}
	for _, f := range faces {
		t := triangle{color: color}
		t.vertices = [3][3]float32{points[f[0]], points[f[1]], points[f[2]]}
		if reverse {
			t.vertices[1], t.vertices[2] = t.vertices[2], t.vertices[1]
		}
		m.triangles = append(m.triangles, t)
	}
}

// triangulateQuad splits a quad with earcut on the plane its normal is most aligned with. The
// returned faces keep the quad's winding; a failed triangulation falls back to a fan.
func triangulateQuad(q [][3]float32) [][3]int {
	fan := [][3]int{{0, 1, 2}, {0, 2, 3}}
	n := newellNormal(q)

	// Drop the dominant axis of the normal.
	u, v := 1, 2
	ax, ay, az := math32.Abs(n[0]), math32.Abs(n[1]), math32.Abs(n[2])
	switch {
	case ay >= ax && ay >= az:
		u, v = 0, 2
	case az >= ax && az >= ay:
		u, v = 0, 1
	}
	coords := make([]float64, 0, 8)
	for _, p := range q {
		coords = append(coords, float64(p[u]), float64(p[v]))
	}
	indices, err := earcut.Earcut(coords, nil, 2)
	if err != nil || len(indices) != 6 {
		return fan
	}

	faces := make([][3]int, 0, 2)
	for i := 0; i < len(indices); i += 3 {
		f := [3]int{indices[i], indices[i+1], indices[i+2]}
		fn := cross(sub(q[f[1]], q[f[0]]), sub(q[f[2]], q[f[0]]))
		if dot(fn, n) < 0 {
			f[1], f[2] = f[2], f[1]
		}
		faces = append(faces, f)
	}
	return faces
}

// newellNormal returns the unnormalized normal of a planar or nearly planar polygon.
func newellNormal(points [][3]float32) [3]float32 {
	var n [3]float32
	for i, p := range points {
		q := points[(i+1)%len(points)]
		n[0] += (p[1] - q[1]) * (p[2] + q[2])
		n[1] += (p[2] - q[2]) * (p[0] + q[0])
		n[2] += (p[0] - q[0]) * (p[1] + q[1])
	}
	return n
}

type weldKey [3]int32

func weldKeyOf(p [3]float32) weldKey {
	return weldKey{
		int32(math32.Round(p[0] * weldScale)),
		int32(math32.Round(p[1] * weldScale)),
		int32(math32.Round(p[2] * weldScale)),
	}
}

type edgeKey [2]uint32

func undirected(a, b uint32) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

// outputKey identifies an emitted vertex: a welded position, a color and the smoothing group
// of faces around that position.
type outputKey struct {
	position uint32
	color    uint32
	group    int
}

// buildGeometry welds a part mesh into an indexed geometry. Vertices are shared between faces
// of the same color whose normals differ by less than 89 degrees and that are connected
// around the vertex without crossing an explicit edge line.
//
// Parameters:
//   - name: the part name
//   - mesh: the collected faces and edges in part space
//
// Returns:
//   - *model.Geometry: the indexed geometry with smooth normals, edge pairs and bounds
func buildGeometry(name string, mesh *partMesh) *model.Geometry {
	var positions [][3]float32
	welded := make(map[weldKey]uint32)
	weld := func(p [3]float32) uint32 {
		k := weldKeyOf(p)
		if idx, ok := welded[k]; ok {
			return idx
		}
		idx := uint32(len(positions))
		welded[k] = idx
		positions = append(positions, p)
		return idx
	}

	faces := make([][3]uint32, 0, len(mesh.triangles))
	colors := make([]uint32, 0, len(mesh.triangles))
	normals := make([][3]float32, 0, len(mesh.triangles))
	for _, t := range mesh.triangles {
		f := [3]uint32{weld(t.vertices[0]), weld(t.vertices[1]), weld(t.vertices[2])}
		if f[0] == f[1] || f[1] == f[2] || f[0] == f[2] {
			continue
		}
		faces = append(faces, f)
		colors = append(colors, t.color)
		normals = append(normals, cross(sub(positions[f[1]], positions[f[0]]), sub(positions[f[2]], positions[f[0]])))
	}

	sharp := make(map[edgeKey]bool, len(mesh.edges))
	edgePairs := make([][2]uint32, 0, len(mesh.edges))
	for _, e := range mesh.edges {
		a, b := weld(e[0]), weld(e[1])
		if a == b {
			continue
		}
		sharp[undirected(a, b)] = true
		edgePairs = append(edgePairs, [2]uint32{a, b})
	}

	groups := smoothingGroups(faces, normals, colors, sharp, len(positions))

	g := &model.Geometry{Name: name}
	emitted := make(map[outputKey]uint32)
	sums := make(map[uint32][3]float32)
	emit := func(key outputKey) uint32 {
		if idx, ok := emitted[key]; ok {
			return idx
		}
		idx := uint32(len(g.Positions))
		emitted[key] = idx
		g.Positions = append(g.Positions, positions[key.position])
		g.ColorCodes = append(g.ColorCodes, key.color)
		return idx
	}
	for fi, f := range faces {
		for c, p := range f {
			idx := emit(outputKey{position: p, color: colors[fi], group: groups[fi][c]})
			s := sums[idx]
			for i := range 3 {
				s[i] += normals[fi][i]
			}
			sums[idx] = s
			g.Indices = append(g.Indices, idx)
		}
	}
	g.Normals = make([][3]float32, len(g.Positions))
	for idx, s := range sums {
		g.Normals[idx] = normalize(s)
	}

	// Edge lines reuse any vertex at their position.
	byPosition := make(map[uint32]uint32, len(emitted))
	for key, idx := range emitted {
		if prev, ok := byPosition[key.position]; !ok || idx < prev {
			byPosition[key.position] = idx
		}
	}
	for _, e := range edgePairs {
		for _, p := range e {
			idx, ok := byPosition[p]
			if !ok {
				idx = uint32(len(g.Positions))
				g.Positions = append(g.Positions, positions[p])
				g.Normals = append(g.Normals, [3]float32{})
				g.ColorCodes = append(g.ColorCodes, model.ColorEdge)
				byPosition[p] = idx
			}
			g.EdgeIndices = append(g.EdgeIndices, idx)
		}
	}

	g.Bounds = model.BoundsFromPoints(g.Positions)
	return g
}

// smoothingGroups assigns every face corner a group id. Corners around the same welded
// position share an id when their faces are joined through edges that are not sharp.
func smoothingGroups(faces [][3]uint32, normals [][3]float32, colors []uint32, sharp map[edgeKey]bool, positions int) [][3]int {
	adjacent := make([][]int, positions)
	edgeFaces := make(map[edgeKey][]int)
	for fi, f := range faces {
		for c := range 3 {
			adjacent[f[c]] = append(adjacent[f[c]], fi)
			e := undirected(f[c], f[(c+1)%3])
			edgeFaces[e] = append(edgeFaces[e], fi)
		}
	}

	parent := make([]int, len(faces))
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	groups := make([][3]int, len(faces))
	for p, around := range adjacent {
		for _, fi := range around {
			parent[fi] = fi
		}
		for _, fi := range around {
			for _, other := range faces[fi] {
				if other == uint32(p) {
					continue
				}
				e := undirected(uint32(p), other)
				if sharp[e] {
					continue
				}
				for _, fj := range edgeFaces[e] {
					if fj == fi || colors[fj] != colors[fi] || !smoothAngle(normals[fi], normals[fj]) {
						continue
					}
					if a, b := find(fi), find(fj); a != b {
						parent[b] = a
					}
				}
			}
		}
		for _, fi := range around {
			for c, q := range faces[fi] {
				if q == uint32(p) {
					groups[fi][c] = find(fi)
				}
			}
		}
	}
	return groups
}

func smoothAngle(a, b [3]float32) bool {
	la, lb := length(a), length(b)
	if la == 0 || lb == 0 {
		return false
	}
	return dot(a, b)/(la*lb) > smoothCosine
}

// transformPoint applies a column-major transform to a point.
func transformPoint(m common.Mat4, p [3]float32) [3]float32 {
	x, y, z := common.TransformPoint(m, p[0], p[1], p[2])
	return [3]float32{x, y, z}
}

func sub(a, b [3]float32) [3]float32 {
	return [3]float32{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func cross(a, b [3]float32) [3]float32 {
	return [3]float32{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func dot(a, b [3]float32) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func length(a [3]float32) float32 {
	return math32.Sqrt(dot(a, a))
}

func normalize(a [3]float32) [3]float32 {
	l := length(a)
	if l == 0 {
		return a
	}
	return [3]float32{a[0] / l, a[1] / l, a[2] / l}
}

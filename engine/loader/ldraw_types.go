package loader

import (
	"github.com/Carmen-Shannon/oxy-ldr/common"
)

// winding is the BFC vertex order a file declares for its polygons.
type winding int

const (
	windingCCW winding = iota
	windingCW
)

// subfileRef is a line type 1 reference to another file.
type subfileRef struct {
	color     uint32
	transform common.Mat4
	name      string
	// invert is set by a preceding BFC INVERTNEXT.
	invert bool
}

// polygon is a line type 3 triangle or a line type 4 quad.
type polygon struct {
	color    uint32
	vertices [][3]float32
	winding  winding
}

// edgeLine is a line type 2 edge.
type edgeLine struct {
	color    uint32
	vertices [2][3]float32
}

// ldrawFile is one parsed LDraw file or MPD block.
type ldrawFile struct {
	name string
	doc  *mpdDocument
	// part is set when the file's header declares an official or unofficial part.
	part bool

	refs     []subfileRef
	polygons []polygon
	edges    []edgeLine
}

// mpdDocument holds every block of a multi-part document keyed by normalized name. The first
// block is the main model.
type mpdDocument struct {
	main   string
	blocks map[string]*ldrawFile
}

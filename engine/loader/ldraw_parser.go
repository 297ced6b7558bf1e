package loader

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-ldr/common"
)

// normalizeName turns an LDraw file reference into the key used for lookups: lower case with
// forward slashes.
func normalizeName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
}

// parseDocument reads an LDraw file. Files without `0 FILE` lines hold a single block named
// after the file; MPD files hold one block per `0 FILE` up to the next `0 FILE` or `0 NOFILE`.
//
// Parameters:
//   - name: the name of the file being read, used for single-block files and errors
//   - r: the file contents
//
// Returns:
//   - *mpdDocument: the parsed blocks
//   - error: an error if a line is malformed or the reader fails
func parseDocument(name string, r io.Reader) (*mpdDocument, error) {
	doc := &mpdDocument{blocks: make(map[string]*ldrawFile)}
	p := &lineParser{}

	var current *ldrawFile
	begin := func(blockName string) {
		key := normalizeName(blockName)
		current = &ldrawFile{name: key, doc: doc}
		if doc.main == "" {
			doc.main = key
		}
		if _, exists := doc.blocks[key]; !exists {
			doc.blocks[key] = current
		}
		p.reset()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if len(fields) == 0 {
			continue
		}

		if fields[0] == "0" && len(fields) >= 2 {
			switch strings.ToUpper(fields[1]) {
			case "FILE":
				begin(strings.Join(fields[2:], " "))
				continue
			case "NOFILE":
				current = nil
				continue
			}
		}
		if current == nil {
			if doc.main != "" {
				// Text between NOFILE and the next FILE belongs to no block.
				continue
			}
			begin(name)
		}
		if err := p.parseLine(current, fields); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if doc.main == "" {
		begin(name)
	}
	return doc, nil
}

// lineParser carries the BFC state of the block being parsed.
type lineParser struct {
	winding    winding
	invertNext bool
}

func (p *lineParser) reset() {
	p.winding = windingCCW
	p.invertNext = false
}

func (p *lineParser) parseLine(f *ldrawFile, fields []string) error {
	switch fields[0] {
	case "0":
		p.parseMeta(f, fields[1:])
		return nil
	case "1":
		ref, err := parseSubfileRef(fields[1:])
		if err != nil {
			return err
		}
		ref.invert = p.invertNext
		p.invertNext = false
		f.refs = append(f.refs, ref)
	case "2":
		color, pts, err := parseColorPoints(fields[1:], 2)
		if err != nil {
			return err
		}
		f.edges = append(f.edges, edgeLine{color: color, vertices: [2][3]float32{pts[0], pts[1]}})
	case "3", "4":
		n := 3
		if fields[0] == "4" {
			n = 4
		}
		color, pts, err := parseColorPoints(fields[1:], n)
		if err != nil {
			return err
		}
		f.polygons = append(f.polygons, polygon{color: color, vertices: pts, winding: p.winding})
	case "5":
		// Optional lines are not drawn.
	default:
		return fmt.Errorf("unknown line type %q", fields[0])
	}
	// INVERTNEXT applies only to the line directly after it.
	if fields[0] != "1" {
		p.invertNext = false
	}
	return nil
}

// parseMeta handles the type 0 commands that change geometry: the part header and BFC.
func (p *lineParser) parseMeta(f *ldrawFile, fields []string) {
	if len(fields) == 0 {
		return
	}
	switch strings.ToUpper(fields[0]) {
	case "!LDRAW_ORG":
		if len(fields) > 1 {
			kind := strings.ToLower(fields[1])
			f.part = strings.Contains(kind, "part") && !strings.Contains(kind, "subpart")
		}
	case "BFC":
		for _, arg := range fields[1:] {
			switch strings.ToUpper(arg) {
			case "INVERTNEXT":
				p.invertNext = true
			case "CW":
				p.winding = windingCW
			case "CCW":
				p.winding = windingCCW
			}
		}
	}
}

// parseSubfileRef parses `color x y z a b c d e f g h i file`. The 3x3 block is row-major in
// the file and stored column-major.
func parseSubfileRef(fields []string) (subfileRef, error) {
	if len(fields) < 14 {
		return subfileRef{}, fmt.Errorf("subfile reference needs 14 fields, got %d", len(fields))
	}
	color, err := parseColor(fields[0])
	if err != nil {
		return subfileRef{}, err
	}
	var v [12]float32
	for i := range v {
		if v[i], err = parseFloat(fields[1+i]); err != nil {
			return subfileRef{}, err
		}
	}
	x, y, z := v[0], v[1], v[2]
	a, b, c, d, e, ff, g, h, i := v[3], v[4], v[5], v[6], v[7], v[8], v[9], v[10], v[11]
	return subfileRef{
		color: color,
		transform: common.Mat4{
			a, d, g, 0,
			b, e, h, 0,
			c, ff, i, 0,
			x, y, z, 1,
		},
		name: normalizeName(strings.Join(fields[13:], " ")),
	}, nil
}

func parseColorPoints(fields []string, n int) (uint32, [][3]float32, error) {
	if len(fields) < 1+3*n {
		return 0, nil, fmt.Errorf("expected %d fields, got %d", 1+3*n, len(fields))
	}
	color, err := parseColor(fields[0])
	if err != nil {
		return 0, nil, err
	}
	pts := make([][3]float32, n)
	for i := range pts {
		for j := range 3 {
			if pts[i][j], err = parseFloat(fields[1+i*3+j]); err != nil {
				return 0, nil, err
			}
		}
	}
	return color, pts, nil
}

// parseColor accepts decimal codes and the 0x2RRGGBB direct colors, which are kept as codes.
func parseColor(s string) (uint32, error) {
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		v, err := strconv.ParseUint(s[2:], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid color %q", s)
		}
		return uint32(v), nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid color %q", s)
	}
	return uint32(v), nil
}

func parseFloat(s string) (float32, error) {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return float32(v), nil
}

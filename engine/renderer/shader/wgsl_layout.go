package shader

import (
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// typeLayout is the host-shareable size and alignment of a WGSL type.
//
// Reference: https://www.w3.org/TR/WGSL/#alignment-and-size
type typeLayout struct {
	size  uint64
	align uint64
}

// stride is the distance between consecutive array elements of the type.
func (l typeLayout) stride() uint64 {
	return alignUp(l.size, l.align)
}

// scalarSizes holds the byte size of each scalar type, which is also its alignment.
var scalarSizes = map[string]uint64{
	"f32":  4,
	"i32":  4,
	"u32":  4,
	"f16":  2,
	"bool": 4,
}

// shorthandScalars maps the one-letter suffix of vec3f, mat4x4f and friends to its scalar.
var shorthandScalars = map[byte]string{
	'f': "f32",
	'i': "i32",
	'u': "u32",
	'h': "f16",
}

// vertexFormats is indexed by component count; a zero format means the shape cannot be a
// vertex attribute.
var vertexFormats = map[string][5]wgpu.VertexFormat{
	"f32": {1: wgpu.VertexFormatFloat32, 2: wgpu.VertexFormatFloat32x2, 3: wgpu.VertexFormatFloat32x3, 4: wgpu.VertexFormatFloat32x4},
	"i32": {1: wgpu.VertexFormatSint32, 2: wgpu.VertexFormatSint32x2, 3: wgpu.VertexFormatSint32x3, 4: wgpu.VertexFormatSint32x4},
	"u32": {1: wgpu.VertexFormatUint32, 2: wgpu.VertexFormatUint32x2, 3: wgpu.VertexFormatUint32x3, 4: wgpu.VertexFormatUint32x4},
	"f16": {2: wgpu.VertexFormatFloat16x2, 4: wgpu.VertexFormatFloat16x4},
}

func alignUp(value, alignment uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// splitTypeParams splits "texture_2d<f32>" into ("texture_2d", "f32"). Types without
// parameters return an empty parameter string.
func splitTypeParams(typeName string) (string, string) {
	base, rest, ok := strings.Cut(typeName, "<")
	if !ok {
		return strings.TrimSpace(typeName), ""
	}
	return strings.TrimSpace(base), strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), ">"))
}

// splitTopLevel splits s at commas that are not nested inside angle brackets, so
// "array<vec4<f32>, 4>" style members survive intact.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth = max(depth-1, 0)
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// vectorShape decodes vecN<T> and the vecNx shorthand into a component count and scalar name.
// Scalars report a count of one.
//
// Parameters:
//   - typeName: the WGSL type name
//
// Returns:
//   - int: the component count
//   - string: the scalar type name
//   - bool: false when typeName is neither a scalar nor a vector
func vectorShape(typeName string) (int, string, bool) {
	typeName = strings.TrimSpace(typeName)
	if _, ok := scalarSizes[typeName]; ok {
		return 1, typeName, true
	}
	base, param := splitTypeParams(typeName)
	if len(base) < 4 || !strings.HasPrefix(base, "vec") {
		return 0, "", false
	}
	n := int(base[3] - '0')
	if n < 2 || n > 4 {
		return 0, "", false
	}
	scalar := param
	if len(base) == 5 {
		scalar = shorthandScalars[base[4]]
	} else if len(base) != 4 {
		return 0, "", false
	}
	if _, ok := scalarSizes[scalar]; !ok {
		return 0, "", false
	}
	return n, scalar, true
}

// vertexFormat returns the attribute format and byte size for a vertex input member type.
func vertexFormat(typeName string) (wgpu.VertexFormat, uint64, bool) {
	n, scalar, ok := vectorShape(typeName)
	if !ok {
		return 0, 0, false
	}
	format := vertexFormats[scalar][n]
	if format == 0 {
		return 0, 0, false
	}
	return format, uint64(n) * scalarSizes[scalar], true
}

// typeTable resolves WGSL type layouts against the structs declared in one source.
type typeTable struct {
	structs  map[string]parsedStruct
	resolved map[string]typeLayout
	visiting map[string]bool
}

func newTypeTable(structs []parsedStruct) *typeTable {
	t := &typeTable{
		structs:  make(map[string]parsedStruct, len(structs)),
		resolved: make(map[string]typeLayout, len(structs)),
		visiting: make(map[string]bool),
	}
	for _, s := range structs {
		t.structs[s.name] = s
	}
	return t
}

// layout returns the size and alignment of typeName. A runtime-sized array reports one
// element, which is the smallest buffer the binding can be validated against.
//
// Parameters:
//   - typeName: a scalar, vector, matrix, atomic, array or declared struct type
//
// Returns:
//   - typeLayout: the resolved layout
//   - bool: false for unknown or recursive types
func (t *typeTable) layout(typeName string) (typeLayout, bool) {
	typeName = strings.TrimSpace(typeName)
	if l, ok := t.resolved[typeName]; ok {
		return l, true
	}
	if s, ok := t.structs[typeName]; ok {
		return t.structLayout(s)
	}
	if n, scalar, ok := vectorShape(typeName); ok {
		size := scalarSizes[scalar]
		if n == 1 {
			return typeLayout{size, size}, true
		}
		lanes := uint64(n)
		if n == 3 {
			lanes = 4
		}
		return typeLayout{uint64(n) * size, lanes * size}, true
	}

	base, param := splitTypeParams(typeName)
	switch {
	case base == "atomic":
		return t.layout(param)
	case base == "array":
		parts := splitTopLevel(param)
		elem, ok := t.layout(parts[0])
		if !ok {
			return typeLayout{}, false
		}
		count := uint64(1)
		if len(parts) == 2 {
			c, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
			if err != nil {
				return typeLayout{}, false
			}
			count = c
		}
		return typeLayout{count * elem.stride(), elem.align}, true
	case strings.HasPrefix(base, "mat") && len(base) >= 6 && base[4] == 'x':
		cols, rows := int(base[3]-'0'), int(base[5]-'0')
		scalar := param
		if len(base) == 7 {
			scalar = shorthandScalars[base[6]]
		}
		if cols < 2 || cols > 4 {
			return typeLayout{}, false
		}
		column, ok := t.layout("vec" + strconv.Itoa(rows) + "<" + scalar + ">")
		if !ok {
			return typeLayout{}, false
		}
		return typeLayout{uint64(cols) * column.stride(), column.align}, true
	}
	return typeLayout{}, false
}

// structLayout places each non-builtin member at its next aligned offset and rounds the total
// up to the largest member alignment.
func (t *typeTable) structLayout(s parsedStruct) (typeLayout, bool) {
	if t.visiting[s.name] {
		return typeLayout{}, false
	}
	t.visiting[s.name] = true
	defer delete(t.visiting, s.name)

	var offset uint64
	align := uint64(1)
	for _, m := range s.members {
		if m.builtin {
			continue
		}
		ml, ok := t.layout(m.typeName)
		if !ok {
			return typeLayout{}, false
		}
		offset = alignUp(offset, ml.align) + ml.size
		align = max(align, ml.align)
	}
	l := typeLayout{alignUp(offset, align), align}
	t.resolved[s.name] = l
	return l, true
}

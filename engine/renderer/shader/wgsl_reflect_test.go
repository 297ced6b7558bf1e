package shader

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeLayouts(t *testing.T) {
	types := newTypeTable(parseStructs(`
struct Inner { a: vec3<f32>, b: f32, }
struct Outer { inner: Inner, m: mat4x4f, tail: array<u32> }
`))

	tests := []struct {
		typeName    string
		size, align uint64
	}{
		{"f32", 4, 4},
		{"vec2u", 8, 8},
		{"vec3<f32>", 12, 16},
		{"vec4f", 16, 16},
		{"mat3x3<f32>", 48, 16},
		{"mat4x4f", 64, 16},
		{"atomic<u32>", 4, 4},
		{"array<vec3<f32>, 4>", 64, 16},
		{"array<u32>", 4, 4},
		{"Inner", 16, 16},
		{"Outer", 96, 16},
	}
	for _, tt := range tests {
		t.Run(tt.typeName, func(t *testing.T) {
			l, ok := types.layout(tt.typeName)
			require.True(t, ok)
			assert.Equal(t, tt.size, l.size)
			assert.Equal(t, tt.align, l.align)
		})
	}

	_, ok := types.layout("Missing")
	assert.False(t, ok)
	_, ok = types.layout("vec5<f32>")
	assert.False(t, ok)
}

func TestRecursiveStructIsRejected(t *testing.T) {
	types := newTypeTable(parseStructs(`struct Loop { next: Loop }`))
	_, ok := types.layout("Loop")
	assert.False(t, ok)
}

func TestVertexFormat(t *testing.T) {
	format, size, ok := vertexFormat("vec3<f32>")
	require.True(t, ok)
	assert.Equal(t, wgpu.VertexFormatFloat32x3, format)
	assert.Equal(t, uint64(12), size)

	format, size, ok = vertexFormat("vec2h")
	require.True(t, ok)
	assert.Equal(t, wgpu.VertexFormatFloat16x2, format)
	assert.Equal(t, uint64(4), size)

	_, _, ok = vertexFormat("vec3h")
	assert.False(t, ok)
	_, _, ok = vertexFormat("bool")
	assert.False(t, ok)
}

func TestDepthTextureBindings(t *testing.T) {
	src := `
@group(0) @binding(0) var single: texture_depth_2d;
@group(0) @binding(1) var msaa: texture_depth_multisampled_2d;
@compute @workgroup_size(8, 8)
fn cs_main() {}
`
	r, err := reflectSource(src, ShaderTypeCompute)
	require.NoError(t, err)
	assert.Equal(t, [3]uint32{8, 8, 1}, r.workgroup)

	entries := r.groups[0].Entries
	require.Len(t, entries, 2)
	assert.Equal(t, wgpu.TextureSampleTypeDepth, entries[0].Texture.SampleType)
	assert.False(t, entries[0].Texture.Multisampled)
	assert.Equal(t, wgpu.TextureViewDimension2D, entries[1].Texture.ViewDimension)
	assert.True(t, entries[1].Texture.Multisampled)
	assert.Equal(t, "msaa", r.names[0][1])
}

func TestStripComments(t *testing.T) {
	src := "a // line\n/* block /* nested */ still */b\nc"
	assert.Equal(t, "a \nb\nc", stripComments(src))

	r, err := reflectSource("// @vertex fn commented() {}\n@fragment fn fs_main() {}", ShaderTypeFragment)
	require.NoError(t, err)
	assert.Equal(t, "fs_main", r.entryPoint)

	_, err = reflectSource("// @vertex fn commented() {}", ShaderTypeVertex)
	assert.ErrorContains(t, err, "no entry point")
}

package shader

import (
	"strings"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModelSource = `
//@oxy:include camera
//@oxy:include vertex
//@oxy:include instance_transform
//@oxy:group 0 0 storage_uniform camera camera

struct VertexOutput {
    @builtin(position) clip: vec4<f32>,
    @location(0) color: vec4<f32>,
};

@vertex
fn vs_main(v: VertexInput, inst: InstanceInput) -> VertexOutput {
    var out: VertexOutput;
    let model = mat4x4<f32>(inst.model_col0, inst.model_col1, inst.model_col2, inst.model_col3);
    out.clip = camera.view_projection * model * vec4<f32>(v.position, 1.0);
    out.color = unpack4x8unorm(v.color);
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return in.color;
}
`

func TestParseAnnotation(t *testing.T) {
	a, err := parseAnnotation("//@oxy:provider 0 4 scene visible", 7)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, AnnotationTypeProvider, a.Type)
	assert.Equal(t, []AnnotationArg{AnnotationArgScene, AnnotationArgVisible}, a.Args)
	assert.Equal(t, 0, *a.Group)
	assert.Equal(t, 4, *a.Binding)

	a, err = parseAnnotation("    let x = 1; // plain comment", 1)
	require.NoError(t, err)
	assert.Nil(t, a)

	_, err = parseAnnotation("//@oxy:include light", 3)
	assert.ErrorContains(t, err, "line 3")

	_, err = parseAnnotation("//@oxy:provider 0 1 scene diffuse_texture", 4)
	assert.ErrorContains(t, err, "unknown binding role")

	_, err = parseAnnotation("//@oxy:group 0 x storage_read bounds array<instance_bounds>", 5)
	assert.Error(t, err)
}

func TestPreProcessorInjectsStructsOnce(t *testing.T) {
	pp := NewPreProcessor()
	src := strings.Join([]string{
		"//@oxy:include instance_bounds",
		"//@oxy:include instance_bounds",
		"//@oxy:group 0 2 storage_read bounds array<instance_bounds>",
		"//@oxy:provider 0 4 scene visible",
		"@group(0) @binding(4) var<storage, read_write> visible: array<u32>;",
	}, "\n")

	out, err := pp.Process(src)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "struct InstanceBounds"))
	assert.Contains(t, out, "@group(0) @binding(2) var<storage, read> bounds: array<InstanceBounds>;")

	decls := pp.Declarations()
	require.Len(t, decls, 2)
	d, ok := FindDeclaration(decls, AnnotationArgScene, AnnotationArgVisible)
	require.True(t, ok)
	assert.Equal(t, 4, *d.Binding)
	_, ok = FindDeclaration(decls, AnnotationArgScene, AnnotationArgNewVisible)
	assert.False(t, ok)
}

func TestVertexLayoutsStepModes(t *testing.T) {
	sh, err := NewShaderFromSource("model_vs", ShaderTypeVertex, testModelSource)
	require.NoError(t, err)
	assert.Equal(t, "vs_main", sh.EntryPoint())

	layouts := sh.VertexLayouts()
	require.Len(t, layouts, 2)

	vertex := layouts[0]
	assert.Equal(t, uint64(32), vertex.ArrayStride)
	assert.Equal(t, wgpu.VertexStepModeVertex, vertex.StepMode)
	require.Len(t, vertex.Attributes, 3)
	assert.Equal(t, wgpu.VertexFormatUint32, vertex.Attributes[1].Format)
	assert.Equal(t, uint64(12), vertex.Attributes[1].Offset)

	instance := layouts[1]
	assert.Equal(t, uint64(64), instance.ArrayStride)
	assert.Equal(t, wgpu.VertexStepModeInstance, instance.StepMode)
	assert.Equal(t, uint32(3), instance.Attributes[0].ShaderLocation)

	camera := sh.BindGroupLayoutDescriptor(0)
	require.Len(t, camera.Entries, 1)
	assert.Equal(t, wgpu.BufferBindingTypeUniform, camera.Entries[0].Buffer.Type)
	assert.Equal(t, uint64(80), camera.Entries[0].Buffer.MinBindingSize)
}

func TestFragmentShaderFromSharedSource(t *testing.T) {
	sh, err := NewShaderFromSource("model_fs", ShaderTypeFragment, testModelSource)
	require.NoError(t, err)
	assert.Equal(t, "fs_main", sh.EntryPoint())
	assert.Empty(t, sh.VertexLayouts())
}

func TestComputeBindingsAndWorkgroupSize(t *testing.T) {
	src := `
//@oxy:include culling_camera
//@oxy:include instance_bounds
//@oxy:group 0 0 storage_uniform camera culling_camera
//@oxy:provider 0 1 pyramid pyramid_source
@group(0) @binding(1) var pyramid: texture_2d<f32>;
//@oxy:group 0 2 storage_read bounds array<instance_bounds>
//@oxy:provider 0 3 pyramid pyramid_dest
@group(0) @binding(3) var dst: texture_storage_2d<r32float, write>;

@compute @workgroup_size(256)
fn cs_main(@builtin(global_invocation_id) id: vec3<u32>) {
    _ = camera.p00;
    _ = bounds[id.x];
    _ = textureLoad(pyramid, vec2<i32>(0, 0), 0);
    textureStore(dst, vec2<i32>(0, 0), vec4<f32>(0.0));
}
`
	sh, err := NewShaderFromSource("cull", ShaderTypeCompute, src)
	require.NoError(t, err)
	assert.Equal(t, [3]uint32{256, 1, 1}, sh.WorkgroupSize())

	entries := sh.BindGroupLayoutDescriptor(0).Entries
	require.Len(t, entries, 4)
	assert.Equal(t, uint64(160), entries[0].Buffer.MinBindingSize)
	assert.Equal(t, wgpu.TextureSampleTypeUnfilterableFloat, entries[1].Texture.SampleType)
	assert.Equal(t, wgpu.BufferBindingTypeReadOnlyStorage, entries[2].Buffer.Type)
	assert.Equal(t, uint64(48), entries[2].Buffer.MinBindingSize)
	assert.Equal(t, wgpu.TextureFormatR32Float, entries[3].StorageTexture.Format)
	assert.Equal(t, wgpu.StorageTextureAccessWriteOnly, entries[3].StorageTexture.Access)

	binding, ok := sh.Binding(0, "bounds")
	require.True(t, ok)
	assert.Equal(t, 2, binding)
}

func TestSampledTextureKeepsFilterableWithSampler(t *testing.T) {
	src := `
@group(0) @binding(0) var tex: texture_2d<f32>;
@group(0) @binding(1) var samp: sampler;
@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return textureSample(tex, samp, vec2<f32>(0.5));
}
`
	sh, err := NewShaderFromSource("sampled", ShaderTypeFragment, src)
	require.NoError(t, err)
	assert.Equal(t, wgpu.TextureSampleTypeFloat, sh.BindGroupLayoutDescriptor(0).Entries[0].Texture.SampleType)
}

func TestDrawIndexedIndirectArrayStride(t *testing.T) {
	src := `
//@oxy:include draw_indexed_indirect
//@oxy:group 0 0 storage_read_write cmds array<draw_indexed_indirect>
@compute @workgroup_size(64)
fn cs_main() {}
`
	sh, err := NewShaderFromSource("cmds", ShaderTypeCompute, src)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), sh.BindGroupLayoutDescriptor(0).Entries[0].Buffer.MinBindingSize)
	assert.Equal(t, wgpu.BufferBindingTypeStorage, sh.BindGroupLayoutDescriptor(0).Entries[0].Buffer.Type)
}

func TestNewShaderFromSourceErrors(t *testing.T) {
	_, err := NewShaderFromSource("bad", ShaderTypeCompute, "//@oxy:include nope\n")
	assert.Error(t, err)

	_, err = NewShaderFromSource("no_entry", ShaderTypeCompute, "fn helper() {}")
	assert.ErrorContains(t, err, "no entry point")
}

package pipeline

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCompute = `
@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {}
`

func TestRenderPipelineDefaultsToSolidState(t *testing.T) {
	p := NewPipeline("solid", PipelineTypeRender)

	state := p.RenderState()
	assert.Equal(t, wgpu.PrimitiveTopologyTriangleList, state.Topology)
	assert.Equal(t, wgpu.CullModeBack, state.CullMode)
	assert.Equal(t, wgpu.CompareFunctionGreater, state.DepthCompare)
	assert.True(t, state.DepthWrite)
	require.NotNil(t, state.Blend)
	assert.Equal(t, wgpu.BlendFactorOne, state.Blend.Color.SrcFactor)
	assert.Equal(t, wgpu.BlendFactorOneMinusSrcAlpha, state.Blend.Color.DstFactor)
	assert.Nil(t, p.Pipeline().(*wgpu.RenderPipeline))
}

func TestSolidStateOwnsItsBlend(t *testing.T) {
	a, b := SolidState(), SolidState()
	a.Blend.Color.SrcFactor = wgpu.BlendFactorZero
	assert.Equal(t, wgpu.BlendFactorOne, b.Blend.Color.SrcFactor)
	assert.Equal(t, wgpu.BlendFactorOne, PremultipliedAlpha.Color.SrcFactor)
}

func TestEdgeState(t *testing.T) {
	p := NewPipeline("edge", PipelineTypeRender, WithRenderState(EdgeState()))

	state := p.RenderState()
	assert.Equal(t, wgpu.PrimitiveTopologyLineList, state.Topology)
	assert.Equal(t, wgpu.CullModeNone, state.CullMode)
	assert.Equal(t, wgpu.CompareFunctionGreater, state.DepthCompare)
	assert.False(t, state.DepthWrite)
	assert.Nil(t, state.Blend)
}

func TestTransparentStateTestsDepthWithoutWriting(t *testing.T) {
	state := TransparentState()
	assert.Equal(t, wgpu.PrimitiveTopologyTriangleList, state.Topology)
	assert.Equal(t, wgpu.CompareFunctionGreater, state.DepthCompare)
	assert.False(t, state.DepthWrite)
	require.NotNil(t, state.Blend)
	assert.Equal(t, wgpu.BlendFactorOneMinusSrcAlpha, state.Blend.Color.DstFactor)
	assert.True(t, SolidState().DepthWrite)
}

func TestComputePipelineHasNoRenderState(t *testing.T) {
	p := NewPipeline("scan", PipelineTypeCompute)
	assert.Equal(t, RenderState{}, p.RenderState())
	assert.Nil(t, p.Pipeline().(*wgpu.ComputePipeline))
	assert.Nil(t, p.Shader(99))
}

func TestValidate(t *testing.T) {
	cs, err := shader.NewShaderFromSource("scan", shader.ShaderTypeCompute, testCompute)
	require.NoError(t, err)

	assert.Error(t, NewPipeline("empty", PipelineTypeCompute).Validate())
	assert.NoError(t, NewPipeline("scan", PipelineTypeCompute, WithComputeShader(cs)).Validate())

	assert.Error(t, NewPipeline("solid", PipelineTypeRender).Validate())
	assert.Error(t, NewPipeline("solid", PipelineTypeRender, WithComputeShader(cs)).Validate())
	assert.Error(t, NewPipeline("odd", PipelineType(7)).Validate())
}

func TestPipelineTypeString(t *testing.T) {
	assert.Equal(t, "compute", PipelineTypeCompute.String())
	assert.Equal(t, "render", PipelineTypeRender.String())
	assert.Equal(t, "PipelineType(7)", PipelineType(7).String())
}

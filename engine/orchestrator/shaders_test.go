package orchestrator

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/naga"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrawSourcesParse(t *testing.T) {
	for key, src := range Sources() {
		t.Run(key, func(t *testing.T) {
			vs, fs, err := shaderPair(key, src)
			require.NoError(t, err)
			assert.Equal(t, "vs_main", vs.EntryPoint())
			assert.Equal(t, "fs_main", fs.EntryPoint())

			layouts := vs.VertexLayouts()
			require.Len(t, layouts, 2)
			assert.Equal(t, wgpu.VertexStepModeVertex, layouts[0].StepMode)
			assert.Equal(t, wgpu.VertexStepModeInstance, layouts[1].StepMode)

			binding, ok := cameraBinding(vs)
			require.True(t, ok)
			assert.Equal(t, 0, binding)

			merged := mergedLayout(vs, fs, 0)
			require.Len(t, merged.Entries, 1)
			assert.NotZero(t, merged.Entries[0].Visibility&wgpu.ShaderStageVertex)
			assert.Equal(t, uint64(80), merged.Entries[0].Buffer.MinBindingSize)

			_, err = naga.Parse(vs.Source())
			require.NoError(t, err)

			spirv, err := naga.Compile(vs.Source())
			if err != nil {
				t.Skipf("Skipping: naga cannot lower %s yet: %v", key, err)
			}
			assert.NotEmpty(t, spirv)
		})
	}
}

func TestTrianglePipelinesSplitOnTransparency(t *testing.T) {
	assert.Contains(t, solidSource, drawOpaqueConst)
	assert.Contains(t, transparentSource, drawTransparentConst)
	assert.NotContains(t, transparentSource, drawOpaqueConst)

	for _, key := range []string{PipelineSolid, PipelineTransparent} {
		vs, fs, err := shaderPair(key, Sources()[key])
		require.NoError(t, err)
		flags := mergedLayout(vs, fs, 1)
		require.Len(t, flags.Entries, 1, key)
		assert.Equal(t, wgpu.BufferBindingTypeReadOnlyStorage, flags.Entries[0].Buffer.Type, key)
		assert.NotZero(t, flags.Entries[0].Visibility&wgpu.ShaderStageVertex, key)

		d, ok := shader.FindDeclaration(vs.Declarations(), shader.AnnotationArgScene, shader.AnnotationArgTransparent)
		require.True(t, ok, key)
		require.NotNil(t, d.Binding, key)
		assert.Equal(t, 0, *d.Binding, key)
	}

	edgeVS, edgeFS, err := shaderPair(PipelineEdge, edgeSource)
	require.NoError(t, err)
	assert.Empty(t, mergedLayout(edgeVS, edgeFS, 1).Entries)
}

func TestCameraBindingMissing(t *testing.T) {
	sh, err := shader.NewShaderFromSource("bare", shader.ShaderTypeFragment, `
@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0);
}
`)
	require.NoError(t, err)
	_, ok := cameraBinding(sh)
	assert.False(t, ok)
}

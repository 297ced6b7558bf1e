package shader

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// ShaderType identifies whether a shader is a render shader or a compute shader.
type ShaderType int

const (
	// ShaderTypeCompute indicates a shader containing a @compute entry point.
	ShaderTypeCompute ShaderType = iota

	// ShaderTypeVertex is the vertex shader type, used for vertex processing in render pipelines.
	ShaderTypeVertex

	// ShaderTypeFragment is the fragment shader type, used for fragment processing in pair with a vertex shader.
	ShaderTypeFragment
)

// shader is the implementation of the Shader interface.
type shader struct {
	key        string
	shaderType ShaderType
	source     string
	module     *wgpu.ShaderModuleDescriptor
	reflected  reflection
	pp         PreProcessor
}

// Shader is one pre-processed WGSL entry point together with the layouts the renderer needs to
// build its pipeline.
type Shader interface {
	// Key returns the label the shader module is created with.
	Key() string

	// Source returns the pre-processed WGSL, with every @oxy: annotation expanded.
	Source() string

	// ShaderType returns the stage of the reflected entry point.
	ShaderType() ShaderType

	// EntryPoint returns the name of the reflected entry point function.
	EntryPoint() string

	// Module returns the descriptor used to create the GPU shader module.
	Module() *wgpu.ShaderModuleDescriptor

	// VertexLayouts returns one layout per vertex buffer slot, in slot order. Only vertex
	// shaders have any.
	VertexLayouts() []wgpu.VertexBufferLayout

	// WorkgroupSize returns the @workgroup_size of a compute shader, with omitted dimensions
	// as 1. Other stages return zeros.
	WorkgroupSize() [3]uint32

	// BindGroupLayoutDescriptor returns the layout of one bind group.
	//
	// Parameters:
	//   - group: the @group index
	//
	// Returns:
	//   - wgpu.BindGroupLayoutDescriptor: the entries sorted by binding, or an empty descriptor
	BindGroupLayoutDescriptor(group int) wgpu.BindGroupLayoutDescriptor

	// BindGroupLayoutDescriptors returns every declared bind group layout keyed by group index.
	BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor

	// Binding looks up the binding index of a resource variable by name.
	//
	// Parameters:
	//   - group: the @group index
	//   - name: the WGSL variable name
	//
	// Returns:
	//   - int: the binding index, or -1
	//   - bool: false if the group declares no such variable
	Binding(group int, name string) (int, bool)

	// Declarations returns the group and provider annotations found while pre-processing, in
	// source order.
	Declarations() []Annotation
}

var _ Shader = &shader{}

// NewShaderFromSource pre-processes WGSL source, usually an embedded asset, and reflects the
// entry point of the given stage.
//
// Parameters:
//   - key: a unique identifier for the shader
//   - shaderType: the type of shader (vertex, fragment or compute)
//   - source: raw WGSL source containing optional @oxy: annotations
//
// Returns:
//   - Shader: the parsed shader
//   - error: if pre-processing fails or the source has no entry point for shaderType
func NewShaderFromSource(key string, shaderType ShaderType, source string) (Shader, error) {
	s := &shader{
		key:        key,
		shaderType: shaderType,
		pp:         NewPreProcessor(),
	}

	var err error
	if s.source, err = s.pp.Process(source); err != nil {
		return nil, fmt.Errorf("shader: failed to pre-process %s: %w", key, err)
	}
	if s.reflected, err = reflectSource(s.source, shaderType); err != nil {
		return nil, fmt.Errorf("shader: %s: %w", key, err)
	}
	s.module = &wgpu.ShaderModuleDescriptor{
		Label:          key,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: s.source},
	}
	return s, nil
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) ShaderType() ShaderType {
	return s.shaderType
}

func (s *shader) EntryPoint() string {
	return s.reflected.entryPoint
}

func (s *shader) Module() *wgpu.ShaderModuleDescriptor {
	return s.module
}

func (s *shader) VertexLayouts() []wgpu.VertexBufferLayout {
	return s.reflected.vertex
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.reflected.workgroup
}

func (s *shader) BindGroupLayoutDescriptor(group int) wgpu.BindGroupLayoutDescriptor {
	return s.reflected.groups[group]
}

func (s *shader) BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor {
	return s.reflected.groups
}

func (s *shader) Binding(group int, name string) (int, bool) {
	for binding, n := range s.reflected.names[group] {
		if n == name {
			return binding, true
		}
	}
	return -1, false
}

func (s *shader) Declarations() []Annotation {
	return s.pp.Declarations()
}

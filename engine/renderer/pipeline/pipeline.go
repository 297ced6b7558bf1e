package pipeline

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// PipelineType identifies whether a pipeline is a compute pipeline or a render pipeline.
type PipelineType int

const (
	// PipelineTypeCompute indicates a compute pipeline with a single compute shader entry point.
	PipelineTypeCompute PipelineType = iota

	// PipelineTypeRender indicates a render pipeline with vertex and fragment shader entry points.
	PipelineTypeRender
)

func (t PipelineType) String() string {
	switch t {
	case PipelineTypeCompute:
		return "compute"
	case PipelineTypeRender:
		return "render"
	default:
		return fmt.Sprintf("PipelineType(%d)", int(t))
	}
}

// RenderState is the fixed-function state of a render pipeline. The depth attachment always uses
// reversed-Z, so visible fragments compare Greater against the stored depth.
type RenderState struct {
	Topology  wgpu.PrimitiveTopology
	CullMode  wgpu.CullMode
	FrontFace wgpu.FrontFace

	DepthWrite   bool
	DepthCompare wgpu.CompareFunction

	// Blend is nil when the color target is written without blending.
	Blend     *wgpu.BlendState
	WriteMask wgpu.ColorWriteMask
}

// PremultipliedAlpha blends colors whose RGB is already multiplied by alpha.
var PremultipliedAlpha = wgpu.BlendState{
	Color: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactorOne,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		Operation: wgpu.BlendOperationAdd,
	},
	Alpha: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactorOne,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		Operation: wgpu.BlendOperationAdd,
	},
}

// SolidState draws counter-clockwise triangles with back faces culled, reversed-Z depth and
// premultiplied alpha.
func SolidState() RenderState {
	blend := PremultipliedAlpha
	return RenderState{
		Topology:     wgpu.PrimitiveTopologyTriangleList,
		CullMode:     wgpu.CullModeBack,
		FrontFace:    wgpu.FrontFaceCCW,
		DepthWrite:   true,
		DepthCompare: wgpu.CompareFunctionGreater,
		Blend:        &blend,
		WriteMask:    wgpu.ColorWriteMaskAll,
	}
}

// TransparentState is SolidState without depth writes, so transparent triangles are tested
// against the depth buffer but never occlude anything drawn after them.
func TransparentState() RenderState {
	state := SolidState()
	state.DepthWrite = false
	return state
}

// EdgeState draws opaque line lists tested against reversed-Z depth. Lines have no facing, so
// nothing is culled, and they write no depth so only triangles feed the depth pyramid.
func EdgeState() RenderState {
	return RenderState{
		Topology:     wgpu.PrimitiveTopologyLineList,
		CullMode:     wgpu.CullModeNone,
		FrontFace:    wgpu.FrontFaceCCW,
		DepthWrite:   false,
		DepthCompare: wgpu.CompareFunctionGreater,
		WriteMask:    wgpu.ColorWriteMaskAll,
	}
}

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	pipelineType PipelineType
	pipelineKey  string

	vertexShader, fragmentShader, computeShader shader.Shader
	state                                       RenderState

	renderPipeline  *wgpu.RenderPipeline
	computePipeline *wgpu.ComputePipeline
}

// Pipeline describes one GPU pipeline: the shaders of a render pipeline (vertex + fragment) and
// its RenderState, or the single shader of a compute pipeline. The renderer creates the GPU object
// when the pipeline is registered and stores it back through SetRenderPipeline or
// SetComputePipeline.
type Pipeline interface {
	// Type returns the type of the pipeline.
	Type() PipelineType

	// PipelineKey returns the unique key the renderer caches this pipeline under.
	PipelineKey() string

	// Shader retrieves the shader associated with the specified type if it exists, nil otherwise.
	//
	// Parameters:
	//   - shaderType: the type of shader to retrieve (vertex, fragment, or compute)
	//
	// Returns:
	//   - shader.Shader: the shader associated with the specified type, or nil if not set
	Shader(shaderType shader.ShaderType) shader.Shader

	// RenderState returns the fixed-function state. Compute pipelines return the zero value.
	RenderState() RenderState

	// Validate checks that the shaders required by the pipeline type are set.
	//
	// Returns:
	//   - error: an error naming the missing shader
	Validate() error

	// Pipeline returns the created GPU object, either *wgpu.RenderPipeline or
	// *wgpu.ComputePipeline, or a typed nil before registration.
	Pipeline() any

	// SetRenderPipeline stores the created render pipeline.
	SetRenderPipeline(p *wgpu.RenderPipeline)

	// SetComputePipeline stores the created compute pipeline.
	SetComputePipeline(p *wgpu.ComputePipeline)
}

var _ Pipeline = &pipeline{}

// NewPipeline creates a pipeline description. Render pipelines start from SolidState.
//
// Parameters:
//   - pipelineKey: the unique key for this pipeline
//   - pipelineType: the type of pipeline to create (render or compute)
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: a new Pipeline instance with the specified type and configuration
func NewPipeline(pipelineKey string, pipelineType PipelineType, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		pipelineKey:  pipelineKey,
		pipelineType: pipelineType,
	}
	if pipelineType == PipelineTypeRender {
		p.state = SolidState()
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *pipeline) Type() PipelineType {
	return p.pipelineType
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) RenderState() RenderState {
	return p.state
}

func (p *pipeline) Validate() error {
	switch p.pipelineType {
	case PipelineTypeRender:
		if p.vertexShader == nil || p.fragmentShader == nil {
			return fmt.Errorf("%s: a render pipeline needs both a vertex and a fragment shader", p.pipelineKey)
		}
		if p.computeShader != nil {
			return fmt.Errorf("%s: a render pipeline cannot carry a compute shader", p.pipelineKey)
		}
	case PipelineTypeCompute:
		if p.computeShader == nil {
			return fmt.Errorf("%s: a compute pipeline needs a compute shader", p.pipelineKey)
		}
	default:
		return errors.New(p.pipelineKey + ": unknown " + p.pipelineType.String())
	}
	return nil
}

func (p *pipeline) Pipeline() any {
	switch p.pipelineType {
	case PipelineTypeRender:
		return p.renderPipeline
	case PipelineTypeCompute:
		return p.computePipeline
	default:
		return nil
	}
}

func (p *pipeline) Shader(shaderType shader.ShaderType) shader.Shader {
	switch shaderType {
	case shader.ShaderTypeVertex:
		return p.vertexShader
	case shader.ShaderTypeFragment:
		return p.fragmentShader
	case shader.ShaderTypeCompute:
		return p.computeShader
	default:
		return nil
	}
}

func (p *pipeline) SetRenderPipeline(rp *wgpu.RenderPipeline) {
	p.renderPipeline = rp
}

func (p *pipeline) SetComputePipeline(cp *wgpu.ComputePipeline) {
	p.computePipeline = cp
}

package orchestrator

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

//go:embed assets/solid.wgsl
var solidSource string

//go:embed assets/edge.wgsl
var edgeSource string

// Render pipeline keys registered by the orchestrator.
const (
	PipelineSolid       = "ldr_solid"
	PipelineEdge        = "ldr_edge"
	PipelineTransparent = "ldr_transparent"
)

const (
	drawOpaqueConst      = "const DRAW_TRANSPARENT = 0u;"
	drawTransparentConst = "const DRAW_TRANSPARENT = 1u;"
)

// transparentSource is the solid shader drawing only the transparent instances.
var transparentSource = strings.Replace(solidSource, drawOpaqueConst, drawTransparentConst, 1)

// Sources returns the WGSL of the draw pipelines keyed by pipeline key.
func Sources() map[string]string {
	return map[string]string{
		PipelineSolid:       solidSource,
		PipelineEdge:        edgeSource,
		PipelineTransparent: transparentSource,
	}
}

// drawPipelines holds the registered render pipelines, the camera layout they share and the
// transparency flag layout of the triangle pipelines.
type drawPipelines struct {
	solid       pipeline.Pipeline
	edge        pipeline.Pipeline
	transparent pipeline.Pipeline

	cameraLayout  wgpu.BindGroupLayoutDescriptor
	cameraBinding int

	flagsLayout  wgpu.BindGroupLayoutDescriptor
	flagsBinding int
}

// newDrawPipelines parses the draw shaders and registers the render pipelines: opaque triangles
// with back-face culling, black edge lines, and transparent triangles with premultiplied alpha.
// All compare depth with Greater for reversed-Z; only opaque triangles write depth, so the
// depth pyramid never sees transparent parts or edges.
func newDrawPipelines(r renderer.Renderer) (*drawPipelines, error) {
	solidVS, solidFS, err := shaderPair(PipelineSolid, solidSource)
	if err != nil {
		return nil, err
	}
	edgeVS, edgeFS, err := shaderPair(PipelineEdge, edgeSource)
	if err != nil {
		return nil, err
	}
	transVS, transFS, err := shaderPair(PipelineTransparent, transparentSource)
	if err != nil {
		return nil, err
	}

	d := &drawPipelines{
		solid: pipeline.NewPipeline(PipelineSolid, pipeline.PipelineTypeRender,
			pipeline.WithVertexShader(solidVS),
			pipeline.WithFragmentShader(solidFS),
			pipeline.WithRenderState(pipeline.SolidState()),
		),
		edge: pipeline.NewPipeline(PipelineEdge, pipeline.PipelineTypeRender,
			pipeline.WithVertexShader(edgeVS),
			pipeline.WithFragmentShader(edgeFS),
			pipeline.WithRenderState(pipeline.EdgeState()),
		),
		transparent: pipeline.NewPipeline(PipelineTransparent, pipeline.PipelineTypeRender,
			pipeline.WithVertexShader(transVS),
			pipeline.WithFragmentShader(transFS),
			pipeline.WithRenderState(pipeline.TransparentState()),
		),
		cameraLayout: mergedLayout(solidVS, solidFS, 0),
		flagsLayout:  mergedLayout(solidVS, solidFS, 1),
	}

	binding, ok := cameraBinding(solidVS)
	if !ok {
		return nil, fmt.Errorf("orchestrator: %s declares no camera binding", PipelineSolid)
	}
	d.cameraBinding = binding

	flags, ok := shader.FindDeclaration(solidVS.Declarations(), shader.AnnotationArgScene, shader.AnnotationArgTransparent)
	if !ok || flags.Binding == nil {
		return nil, fmt.Errorf("orchestrator: %s declares no transparency binding", PipelineSolid)
	}
	d.flagsBinding = *flags.Binding

	if err := r.RegisterPipelines(d.solid, d.edge, d.transparent); err != nil {
		return nil, fmt.Errorf("orchestrator: failed to register draw pipelines: %w", err)
	}
	return d, nil
}

// shaderPair parses one WGSL source as both the vertex and the fragment stage.
func shaderPair(key, source string) (vs, fs shader.Shader, err error) {
	if vs, err = shader.NewShaderFromSource(key+"_vs", shader.ShaderTypeVertex, source); err != nil {
		return nil, nil, fmt.Errorf("orchestrator: %w", err)
	}
	if fs, err = shader.NewShaderFromSource(key+"_fs", shader.ShaderTypeFragment, source); err != nil {
		return nil, nil, fmt.Errorf("orchestrator: %w", err)
	}
	return vs, fs, nil
}

// mergedLayout returns one group's layout as the render pipeline sees it, with the stage
// visibility of both shaders ORed per binding.
func mergedLayout(vs, fs shader.Shader, group int) wgpu.BindGroupLayoutDescriptor {
	out := vs.BindGroupLayoutDescriptor(group)
	entries := make([]wgpu.BindGroupLayoutEntry, len(out.Entries))
	copy(entries, out.Entries)
	for _, f := range fs.BindGroupLayoutDescriptor(group).Entries {
		for i := range entries {
			if entries[i].Binding == f.Binding {
				entries[i].Visibility |= f.Visibility
			}
		}
	}
	out.Entries = entries
	return out
}

// cameraBinding finds the binding generated for the camera uniform.
func cameraBinding(sh shader.Shader) (int, bool) {
	for _, d := range sh.Declarations() {
		if d.Type != shader.AnnotationTypeBindingGroup || len(d.Args) < 3 || d.Binding == nil {
			continue
		}
		if d.Args[2] == shader.AnnotationArgCamera {
			return *d.Binding, true
		}
	}
	return 0, false
}

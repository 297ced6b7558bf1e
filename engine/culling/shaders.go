package culling

import (
	_ "embed"
	"fmt"

	"github.com/Carmen-Shannon/oxy-ldr/common"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

//go:embed assets/blit_depth.wgsl
var blitDepthSource string

//go:embed assets/blit_depth_msaa.wgsl
var blitDepthMSAASource string

//go:embed assets/reduce_pyramid.wgsl
var reducePyramidSource string

//go:embed assets/cull.wgsl
var cullSource string

//go:embed assets/scan.wgsl
var scanSource string

//go:embed assets/scan_add.wgsl
var scanAddSource string

//go:embed assets/compact.wgsl
var compactSource string

// Compute pipeline keys registered by the culling engines.
const (
	PipelineBlitDepth     = "culling_blit_depth"
	PipelineBlitDepthMSAA = "culling_blit_depth_msaa"
	PipelineReduce        = "culling_reduce"
	PipelineCull          = "culling_cull"
	PipelineScan          = "culling_scan"
	PipelineScanAdd       = "culling_scan_add"
	PipelineCompact       = "culling_compact"
)

// Sources returns the embedded WGSL of every culling kernel keyed by pipeline key.
func Sources() map[string]string {
	return map[string]string{
		PipelineBlitDepth:     blitDepthSource,
		PipelineBlitDepthMSAA: blitDepthMSAASource,
		PipelineReduce:        reducePyramidSource,
		PipelineCull:          cullSource,
		PipelineScan:          scanSource,
		PipelineScanAdd:       scanAddSource,
		PipelineCompact:       compactSource,
	}
}

// kernel is one compute shader registered as a pipeline on a renderer. Binding indices are
// resolved from the shader's provider annotations, so the Go side never hardcodes them.
type kernel struct {
	key    string
	shader shader.Shader
}

// newKernel parses an embedded compute shader and registers its pipeline. Registering a key
// that already exists is a no-op on the renderer, so every engine can create its own kernels.
//
// Parameters:
//   - r: the renderer to register the pipeline on
//   - key: the pipeline key
//   - source: the WGSL source
//
// Returns:
//   - *kernel: the registered kernel
//   - error: an error if the source does not parse or the pipeline cannot be created
func newKernel(r renderer.Renderer, key, source string) (*kernel, error) {
	sh, err := shader.NewShaderFromSource(key, shader.ShaderTypeCompute, source)
	if err != nil {
		return nil, fmt.Errorf("culling: %w", err)
	}
	p := pipeline.NewPipeline(key, pipeline.PipelineTypeCompute, pipeline.WithComputeShader(sh))
	if err := r.RegisterPipelines(p); err != nil {
		return nil, fmt.Errorf("culling: failed to register %s: %w", key, err)
	}
	return &kernel{key: key, shader: sh}, nil
}

// binding returns the binding index annotated with the given provider identity and role. The
// kernels are embedded, so a missing annotation is a programming error and panics.
func (k *kernel) binding(identity, role shader.AnnotationArg) int {
	d, ok := shader.FindDeclaration(k.shader.Declarations(), identity, role)
	if !ok || d.Binding == nil {
		panic(fmt.Sprintf("culling: %s has no %s %s binding", k.key, identity, role))
	}
	return *d.Binding
}

func (k *kernel) layout() wgpu.BindGroupLayoutDescriptor {
	return k.shader.BindGroupLayoutDescriptor(0)
}

// groups returns the workgroup count covering n invocations along x. At least one workgroup is
// dispatched so kernels that publish totals still run for empty inputs.
func (k *kernel) groups(n int) [3]uint32 {
	size := max(k.shader.WorkgroupSize()[0], 1)
	return [3]uint32{common.DivCeil(uint32(max(n, 1)), size), 1, 1}
}

// groups2D returns the workgroup count covering a width x height grid.
func (k *kernel) groups2D(width, height int) [3]uint32 {
	ws := k.shader.WorkgroupSize()
	return [3]uint32{
		common.DivCeil(uint32(max(width, 1)), max(ws[0], 1)),
		common.DivCeil(uint32(max(height, 1)), max(ws[1], 1)),
		1,
	}
}

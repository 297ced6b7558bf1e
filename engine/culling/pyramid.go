package culling

import (
	"fmt"
	"log"
	"sync"

	"github.com/Carmen-Shannon/oxy-ldr/common"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// depthPyramid is the implementation of the DepthPyramid interface.
type depthPyramid struct {
	mu *sync.Mutex
	r  renderer.Renderer

	label  string
	blit   *kernel
	reduce *kernel

	width, height int
	sizes         [][2]int

	texture  *wgpu.Texture
	view     *wgpu.TextureView
	mipViews []*wgpu.TextureView

	boundDepth   *wgpu.TextureView
	blitProvider bind_group_provider.BindGroupProvider
	reducers     []bind_group_provider.BindGroupProvider
}

// DepthPyramid is the hierarchical depth buffer the culling pass tests against. Level 0 is a
// copy of the depth attachment and every further level holds the maximum (nearest, under
// reversed-Z) of the 2x2 texels it covers in the level above.
type DepthPyramid interface {
	// Resize recreates the pyramid texture, its views and every bind group for a new surface
	// size. Resizing to the current size is a no-op.
	//
	// Parameters:
	//   - width: the surface width in pixels
	//   - height: the surface height in pixels
	//
	// Returns:
	//   - error: an error if a texture, view or bind group could not be created
	Resize(width, height int) error

	// Build records the blit and one reduction per level on the current frame.
	//
	// Returns:
	//   - error: an error if a dispatch fails
	Build() error

	// View returns the view over the whole mip chain sampled by the culling pass. It changes
	// on every Resize.
	View() *wgpu.TextureView

	// Size returns the logical size of level 0.
	Size() (width, height int)

	// LevelSizes returns the logical size of every level.
	LevelSizes() [][2]int

	// MipCount returns the number of levels.
	MipCount() int

	// Release releases the texture, its views and the bind groups.
	Release()
}

var _ DepthPyramid = &depthPyramid{}

// NewDepthPyramid registers the pyramid kernels and allocates the pyramid for the renderer's
// current surface size. The blit reads a multisampled depth attachment when the renderer
// runs with MSAA.
//
// Parameters:
//   - r: the renderer owning the depth attachment
//   - options: functional options to configure the pyramid
//
// Returns:
//   - DepthPyramid: the allocated pyramid
//   - error: an error if a kernel or resource could not be created
func NewDepthPyramid(r renderer.Renderer, options ...DepthPyramidBuilderOption) (DepthPyramid, error) {
	p := &depthPyramid{
		mu:    &sync.Mutex{},
		r:     r,
		label: "Depth Pyramid",
	}
	for _, option := range options {
		option(p)
	}

	var err error
	if r.SampleCount() > renderer.MSAAOff {
		p.blit, err = newKernel(r, PipelineBlitDepthMSAA, blitDepthMSAASource)
	} else {
		p.blit, err = newKernel(r, PipelineBlitDepth, blitDepthSource)
	}
	if err != nil {
		return nil, err
	}
	if p.reduce, err = newKernel(r, PipelineReduce, reducePyramidSource); err != nil {
		return nil, err
	}

	w, h := r.SurfaceSize()
	if err := p.Resize(w, h); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *depthPyramid) Resize(width, height int) error {
	width, height = max(width, 1), max(height, 1)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.texture != nil && width == p.width && height == p.height {
		return nil
	}
	p.releaseLocked()

	tw, th, mips := PyramidTextureSize(width, height)
	texture, err := p.r.CreateStorageTexture(p.label, uint32(tw), uint32(th), uint32(mips))
	if err != nil {
		return fmt.Errorf("culling: failed to create %s texture: %w", p.label, err)
	}
	p.texture = texture
	p.width, p.height = width, height
	p.sizes = PyramidLevelSizes(width, height)

	if p.view, err = p.r.CreateTextureView(texture, 0, uint32(mips)); err != nil {
		p.releaseLocked()
		return fmt.Errorf("culling: failed to create %s view: %w", p.label, err)
	}
	p.mipViews = make([]*wgpu.TextureView, mips)
	for k := range mips {
		if p.mipViews[k], err = p.r.CreateTextureView(texture, uint32(k), 1); err != nil {
			p.releaseLocked()
			return fmt.Errorf("culling: failed to create %s mip %d view: %w", p.label, k, err)
		}
	}

	p.blitProvider = bind_group_provider.NewBindGroupProvider(p.label + " Blit")
	if err := p.bindBlitLocked(); err != nil {
		p.releaseLocked()
		return err
	}

	src := p.reduce.binding(shader.AnnotationArgPyramid, shader.AnnotationArgPyramidSource)
	dst := p.reduce.binding(shader.AnnotationArgPyramid, shader.AnnotationArgPyramidDest)
	params := p.reduce.binding(shader.AnnotationArgPyramid, shader.AnnotationArgParams)
	p.reducers = make([]bind_group_provider.BindGroupProvider, 0, mips-1)
	for k := 1; k < mips; k++ {
		provider := bind_group_provider.NewBindGroupProvider(fmt.Sprintf("%s Reduce %d", p.label, k))
		provider.ShareTextureView(src, p.mipViews[k-1])
		provider.ShareTextureView(dst, p.mipViews[k])
		p.reducers = append(p.reducers, provider)
		if err := p.r.InitBindGroup(provider, p.reduce.layout(), nil, nil); err != nil {
			p.releaseLocked()
			return fmt.Errorf("culling: failed to bind %s: %w", provider.Label(), err)
		}
		in, out := p.sizes[k-1], p.sizes[k]
		p.r.WriteBuffer(provider.Buffer(params), 0, common.Uint32sToBytes([]uint32{
			uint32(in[0]), uint32(in[1]), uint32(out[0]), uint32(out[1]),
		}))
	}

	log.Printf("culling: %s resized to %dx%d (%d mips, texture %dx%d)", p.label, width, height, mips, tw, th)
	return nil
}

// bindBlitLocked points the blit at the renderer's current depth attachment. Caller must hold
// the mutex.
func (p *depthPyramid) bindBlitLocked() error {
	depth := p.r.DepthView()
	p.blitProvider.ShareTextureView(p.blit.binding(shader.AnnotationArgPyramid, shader.AnnotationArgDepthSource), depth)
	p.blitProvider.ShareTextureView(p.blit.binding(shader.AnnotationArgPyramid, shader.AnnotationArgPyramidDest), p.mipViews[0])
	if err := p.r.InitBindGroup(p.blitProvider, p.blit.layout(), nil, nil); err != nil {
		return fmt.Errorf("culling: failed to bind %s: %w", p.blitProvider.Label(), err)
	}
	p.boundDepth = depth
	return nil
}

func (p *depthPyramid) Build() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.texture == nil {
		return fmt.Errorf("culling: %s is released", p.label)
	}
	// The renderer recreates its depth attachment on resize; follow it even when the pyramid
	// size did not change.
	if p.r.DepthView() != p.boundDepth {
		if err := p.bindBlitLocked(); err != nil {
			return err
		}
	}

	if err := p.r.DispatchCompute(p.blit.key, p.blitProvider, p.blit.groups2D(p.width, p.height)); err != nil {
		return fmt.Errorf("culling: %s blit: %w", p.label, err)
	}
	for i, provider := range p.reducers {
		out := p.sizes[i+1]
		if err := p.r.DispatchCompute(p.reduce.key, provider, p.reduce.groups2D(out[0], out[1])); err != nil {
			return fmt.Errorf("culling: %s reduce %d: %w", p.label, i+1, err)
		}
	}
	return nil
}

func (p *depthPyramid) View() *wgpu.TextureView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view
}

func (p *depthPyramid) Size() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.width, p.height
}

func (p *depthPyramid) LevelSizes() [][2]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][2]int, len(p.sizes))
	copy(out, p.sizes)
	return out
}

func (p *depthPyramid) MipCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sizes)
}

func (p *depthPyramid) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked()
}

// releaseLocked releases the bind groups before the views they reference and the views
// before the texture. Caller must hold the mutex.
func (p *depthPyramid) releaseLocked() {
	if p.blitProvider != nil {
		p.r.Release(p.blitProvider)
		p.blitProvider = nil
	}
	for _, provider := range p.reducers {
		p.r.Release(provider)
	}
	p.reducers = nil
	for _, v := range p.mipViews {
		if v != nil {
			p.r.Release(v)
		}
	}
	p.mipViews = nil
	if p.view != nil {
		p.r.Release(p.view)
		p.view = nil
	}
	if p.texture != nil {
		p.r.Release(p.texture)
		p.texture = nil
	}
	p.boundDepth = nil
	p.sizes = nil
	p.width, p.height = 0, 0
}

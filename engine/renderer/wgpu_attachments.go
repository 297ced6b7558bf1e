package renderer

import (
	"fmt"
	"slices"

	"github.com/cogentcore/webgpu/wgpu"
)

// clearColor is the background of the viewer.
var clearColor = wgpu.Color{R: 1, G: 1, B: 1, A: 1}

// attachments are the size-dependent render targets, recreated on every resize. The MSAA color
// target only exists when the sample count is above one; the render passes then resolve it into
// the swapchain view.
type attachments struct {
	msaa      *wgpu.Texture
	msaaView  *wgpu.TextureView
	depth     *wgpu.Texture
	depthView *wgpu.TextureView
}

// newAttachments creates the color and depth targets for a surface size. The depth target is
// also a texture binding because the pyramid blit reads it.
//
// Parameters:
//   - device: the device creating the textures
//   - format: the swapchain format the MSAA target resolves into
//   - width, height: the surface size in pixels
//   - samples: the sample count of both targets
//
// Returns:
//   - attachments: the created targets
//   - error: the first creation failure; anything created before it is released
func newAttachments(device *wgpu.Device, format wgpu.TextureFormat, width, height int, samples MSAASampleCount) (a attachments, err error) {
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	size := wgpu.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1}
	target := func(label string, format wgpu.TextureFormat, usage wgpu.TextureUsage) (*wgpu.Texture, *wgpu.TextureView, error) {
		tex, err := device.CreateTexture(&wgpu.TextureDescriptor{
			Label:         label,
			Size:          size,
			MipLevelCount: 1,
			SampleCount:   uint32(samples),
			Dimension:     wgpu.TextureDimension2D,
			Format:        format,
			Usage:         usage,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", label, err)
		}
		view, err := tex.CreateView(nil)
		if err != nil {
			tex.Release()
			return nil, nil, fmt.Errorf("%s view: %w", label, err)
		}
		return tex, view, nil
	}

	if samples > MSAAOff {
		if a.msaa, a.msaaView, err = target("MSAA Color", format, wgpu.TextureUsageRenderAttachment); err != nil {
			return a, err
		}
	}
	a.depth, a.depthView, err = target("Depth", DepthFormat,
		wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding)
	return a, err
}

// passDescriptor describes one render pass into the swapchain view. The first pass of a frame
// clears color to white and depth to the reversed-Z far plane; later passes load both.
func (a *attachments) passDescriptor(frameView *wgpu.TextureView, clear bool) *wgpu.RenderPassDescriptor {
	load := wgpu.LoadOpLoad
	if clear {
		load = wgpu.LoadOpClear
	}
	color := wgpu.RenderPassColorAttachment{
		View:       frameView,
		LoadOp:     load,
		StoreOp:    wgpu.StoreOpStore,
		ClearValue: clearColor,
	}
	if a.msaaView != nil {
		color.View, color.ResolveTarget = a.msaaView, frameView
	}
	return &wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{color},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            a.depthView,
			DepthLoadOp:     load,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: DepthClearValue,
		},
	}
}

func (a *attachments) release() {
	for _, v := range []*wgpu.TextureView{a.msaaView, a.depthView} {
		if v != nil {
			v.Release()
		}
	}
	for _, t := range []*wgpu.Texture{a.msaa, a.depth} {
		if t != nil {
			t.Release()
		}
	}
	*a = attachments{}
}

// surfacePresentMode maps a PresentMode onto what the surface supports. Uncapped prefers
// Immediate, then Mailbox. Fifo is the fallback because every surface has it.
func surfacePresentMode(mode PresentMode, supported []wgpu.PresentMode) wgpu.PresentMode {
	if mode == PresentModeUncapped {
		for _, m := range []wgpu.PresentMode{wgpu.PresentModeImmediate, wgpu.PresentModeMailbox} {
			if slices.Contains(supported, m) {
				return m
			}
		}
	}
	return wgpu.PresentModeFifo
}

package renderer

// RendererBuilderOption configures a renderer before NewRenderer requests the adapter.
type RendererBuilderOption func(*renderer)

// WithPresentMode picks between vsync-paced and uncapped presentation. The default is
// PresentModeVSync.
//
// Parameters:
//   - mode: the PresentMode to use
//
// Returns:
//   - RendererBuilderOption: a function that sets the present mode
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.settings.presentMode = mode
	}
}

// WithMSAA sets the sample count of the color and depth attachments. Any count other than
// MSAAOff selects MSAA4x, the only multisampled count every WebGPU adapter supports. When the
// attachments are multisampled the depth pyramid is seeded through the multisampled blit.
//
// Parameters:
//   - count: MSAAOff or MSAA4x
//
// Returns:
//   - RendererBuilderOption: a function that sets the sample count
func WithMSAA(count MSAASampleCount) RendererBuilderOption {
	return func(r *renderer) {
		r.settings.msaa = count
	}
}

// WithForceSoftwareRenderer requests the fallback (software) adapter, such as lavapipe or
// SwiftShader. Those adapters rarely expose indirect count draws, so the viewer then runs the
// read-back draw strategy.
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.settings.fallbackAdapter = force
	}
}

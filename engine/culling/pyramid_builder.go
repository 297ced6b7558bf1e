package culling

// DepthPyramidBuilderOption is a functional option for configuring a DepthPyramid.
type DepthPyramidBuilderOption func(*depthPyramid)

// WithPyramidLabel sets the debug label of the pyramid texture and its bind groups.
//
// Parameters:
//   - label: the label
//
// Returns:
//   - DepthPyramidBuilderOption: a function that sets the label
func WithPyramidLabel(label string) DepthPyramidBuilderOption {
	return func(p *depthPyramid) {
		if label != "" {
			p.label = label
		}
	}
}

package scene

// SceneBuffersBuilderOption is a functional option for configuring SceneBuffers.
type SceneBuffersBuilderOption func(*sceneBuffers)

// WithLabel sets the debug label prefixed to every buffer.
//
// Parameters:
//   - label: the label prefix
//
// Returns:
//   - SceneBuffersBuilderOption: a function that sets the label
func WithLabel(label string) SceneBuffersBuilderOption {
	return func(sb *sceneBuffers) {
		if label != "" {
			sb.label = label
		}
	}
}

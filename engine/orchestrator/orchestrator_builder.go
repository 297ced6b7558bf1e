package orchestrator

// FrameOrchestratorBuilderOption is a functional option used to configure a FrameOrchestrator
// during construction.
type FrameOrchestratorBuilderOption func(*frameOrchestrator)

// WithForceReadback selects the read-back draw strategy even when the device supports indirect
// count draws.
//
// Parameters:
//   - force: true to force the read-back strategy
//
// Returns:
//   - FrameOrchestratorBuilderOption: a function that applies the option
func WithForceReadback(force bool) FrameOrchestratorBuilderOption {
	return func(o *frameOrchestrator) {
		o.forceReadback = force
	}
}

// WithLabel sets the debug label prefix of the orchestrator's GPU objects.
func WithLabel(label string) FrameOrchestratorBuilderOption {
	return func(o *frameOrchestrator) {
		if label != "" {
			o.label = label
		}
	}
}

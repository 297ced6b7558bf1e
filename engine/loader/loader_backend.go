package loader

import (
	"io"

	"github.com/Carmen-Shannon/oxy-ldr/engine/model"
)

// loaderBackend defines the generic interface for loading scenes from files or streams.
// Concrete implementations (e.g., ldrawLoaderBackend) handle format-specific details.
type loaderBackend interface {
	// Load imports a model file and every file it references.
	//
	// Parameters:
	//   - path: the file path to load
	//   - colors: the color table attached to the scene
	//
	// Returns:
	//   - model.InstancedScene: the flattened scene
	//   - error: error if loading fails
	Load(path string, colors model.ColorTable) (model.InstancedScene, error)

	// LoadReader imports a model from a reader stream.
	//
	// Parameters:
	//   - name: the name of the streamed model
	//   - r: the reader providing model data
	//   - colors: the color table attached to the scene
	//
	// Returns:
	//   - model.InstancedScene: the flattened scene
	//   - error: error if loading fails
	LoadReader(name string, r io.Reader, colors model.ColorTable) (model.InstancedScene, error)

	// Invalidate drops cached files next to path so the next load reads them again.
	Invalidate(path string)
}

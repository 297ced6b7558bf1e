package loader

import (
	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-ldr/engine/model"
)

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithLibrary is an option builder that sets the LDraw library directory references and the
// LDConfig color table are resolved against.
//
// Parameters:
//   - dir: the library root holding parts/, p/ and LDConfig.ldr
//
// Returns:
//   - LoaderBuilderOption: a function that applies the library option to a loader
func WithLibrary(dir string) LoaderBuilderOption {
	return func(l *loader) {
		l.library = dir
	}
}

// WithWorkerPool is an option builder that sets the pool part geometry is built on.
//
// Parameters:
//   - pool: the worker pool
//
// Returns:
//   - LoaderBuilderOption: a function that applies the pool option to a loader
func WithWorkerPool(pool worker.DynamicWorkerPool) LoaderBuilderOption {
	return func(l *loader) {
		l.pool = pool
	}
}

// WithColorTable is an option builder that replaces the library's LDConfig colors.
func WithColorTable(table model.ColorTable) LoaderBuilderOption {
	return func(l *loader) {
		l.colors = table
	}
}

// WithScene is an option builder that pre-populates the scene cache with a scene.
//
// Parameters:
//   - key: the cache key for the scene
//   - s: the scene to cache
//
// Returns:
//   - LoaderBuilderOption: a function that applies the scene option to a loader
func WithScene(key string, s model.InstancedScene) LoaderBuilderOption {
	return func(l *loader) {
		l.sceneCache[key] = s
	}
}

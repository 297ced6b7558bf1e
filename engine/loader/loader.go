package loader

import (
	"fmt"
	"io"
	"log"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-ldr/engine/model"
)

// LoaderBackendType identifies the model file format backend to use.
type LoaderBackendType int

const (
	// BackendTypeLDraw selects the LDraw .ldr/.dat/.mpd loader backend.
	BackendTypeLDraw LoaderBackendType = iota
)

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	library string
	pool    worker.DynamicWorkerPool
	colors  model.ColorTable

	sceneCache map[string]model.InstancedScene

	backend loaderBackend
}

// Loader defines the public-facing interface for loading and caching LDraw scenes.
// It abstracts the file format behind a generic backend and manages a cache of previously
// loaded scenes.
type Loader interface {
	// Load imports a model file and caches the result.
	// If the scene is already cached (by file path), the cached version is returned.
	// The backend is selected based on the file extension (.ldr/.dat/.mpd → LDraw backend).
	//
	// Parameters:
	//   - path: the file path to the model file
	//
	// Returns:
	//   - model.InstancedScene: the loaded and cached scene
	//   - error: error if loading fails
	Load(path string) (model.InstancedScene, error)

	// LoadReader imports a model from a reader stream and caches it by the given name.
	//
	// Parameters:
	//   - name: the cache key for the loaded scene
	//   - r: the reader providing model data
	//
	// Returns:
	//   - model.InstancedScene: the loaded scene
	//   - error: error if loading fails
	LoadReader(name string, r io.Reader) (model.InstancedScene, error)

	// Reload drops the cached scene and the cached files next to it, then loads it again.
	//
	// Parameters:
	//   - path: the file path to the model file
	//
	// Returns:
	//   - model.InstancedScene: the freshly loaded scene
	//   - error: error if loading fails
	Reload(path string) (model.InstancedScene, error)

	// Get retrieves a cached scene by name. Returns nil if not found.
	//
	// Parameters:
	//   - name: the cache key to look up
	//
	// Returns:
	//   - model.InstancedScene: the cached scene or nil
	Get(name string) model.InstancedScene

	// Scenes returns the full scene cache.
	//
	// Returns:
	//   - map[string]model.InstancedScene: all cached scenes keyed by name
	Scenes() map[string]model.InstancedScene

	// ColorTable returns the color table attached to loaded scenes.
	ColorTable() model.ColorTable
}

var _ Loader = &loader{}

// NewLoader creates a new Loader instance with the specified backend type and options applied.
// Without WithColorTable the library's LDConfig is read; a missing table leaves every color on
// the neutral fallback.
//
// Parameters:
//   - backendType: the type of loader backend to use (e.g., BackendTypeLDraw)
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new instance of Loader configured with the provided backend and options
func NewLoader(backendType LoaderBackendType, options ...LoaderBuilderOption) Loader {
	l := &loader{
		mu:         sync.RWMutex{},
		sceneCache: make(map[string]model.InstancedScene),
	}

	for _, option := range options {
		option(l)
	}

	if l.pool == nil {
		l.pool = worker.NewDynamicWorkerPool(runtime.NumCPU(), 256, time.Second)
	}
	if l.colors == nil {
		l.colors = make(model.ColorTable)
		if l.library != "" {
			table, err := LoadColorTable(l.library)
			if err != nil {
				log.Printf("loader: %v, using fallback colors", err)
			} else {
				l.colors = table
			}
		}
	}

	switch backendType {
	case BackendTypeLDraw:
		l.backend = newLDrawLoaderBackend(l.library, l.pool)
	}
	return l
}

func (l *loader) Load(path string) (model.InstancedScene, error) {
	l.mu.RLock()
	if cached, ok := l.sceneCache[path]; ok {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	backend, err := l.resolveBackend(path)
	if err != nil {
		return nil, err
	}

	s, err := backend.Load(path, l.colors)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	l.mu.Lock()
	l.sceneCache[path] = s
	l.mu.Unlock()

	return s, nil
}

func (l *loader) LoadReader(name string, r io.Reader) (model.InstancedScene, error) {
	l.mu.RLock()
	if cached, ok := l.sceneCache[name]; ok {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	s, err := l.backend.LoadReader(name, r, l.colors)
	if err != nil {
		return nil, fmt.Errorf("failed to load from reader %q: %w", name, err)
	}

	l.mu.Lock()
	l.sceneCache[name] = s
	l.mu.Unlock()

	return s, nil
}

func (l *loader) Reload(path string) (model.InstancedScene, error) {
	backend, err := l.resolveBackend(path)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	delete(l.sceneCache, path)
	l.mu.Unlock()

	backend.Invalidate(path)
	return l.Load(path)
}

func (l *loader) Get(name string) model.InstancedScene {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sceneCache[name]
}

func (l *loader) Scenes() map[string]model.InstancedScene {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make(map[string]model.InstancedScene, len(l.sceneCache))
	for k, v := range l.sceneCache {
		result[k] = v
	}
	return result
}

func (l *loader) ColorTable() model.ColorTable {
	return l.colors
}

// resolveBackend selects an appropriate loader backend based on the file extension.
// Currently only LDraw is supported.
func (l *loader) resolveBackend(path string) (loaderBackend, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".ldr", ".dat", ".mpd":
		return l.backend, nil
	default:
		return nil, fmt.Errorf("unsupported model format: %s", ext)
	}
}

package loader

import (
	"io"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-ldr/engine/model"
)

// ldrawLoaderBackendImpl is the implementation of ldrawLoaderBackend.
type ldrawLoaderBackendImpl struct {
	importer ldrawImporter
}

// ldrawLoaderBackend is a loaderBackend implementation for LDraw .ldr, .dat and .mpd files.
// It delegates to the ldrawImporter for parsing and flattening.
type ldrawLoaderBackend interface {
	loaderBackend
}

var _ ldrawLoaderBackend = &ldrawLoaderBackendImpl{}

// newLDrawLoaderBackend creates a new LDraw loader backend.
//
// Parameters:
//   - library: the LDraw library directory, or empty to resolve against model folders only
//   - pool: the worker pool geometry is built on
//
// Returns:
//   - ldrawLoaderBackend: the loader backend for LDraw files
func newLDrawLoaderBackend(library string, pool worker.DynamicWorkerPool) ldrawLoaderBackend {
	return &ldrawLoaderBackendImpl{
		importer: newLDrawImporter(library, pool),
	}
}

func (b *ldrawLoaderBackendImpl) Load(path string, colors model.ColorTable) (model.InstancedScene, error) {
	return b.importer.Import(path, colors)
}

func (b *ldrawLoaderBackendImpl) LoadReader(name string, r io.Reader, colors model.ColorTable) (model.InstancedScene, error) {
	return b.importer.ImportReader(name, r, colors)
}

func (b *ldrawLoaderBackendImpl) Invalidate(path string) {
	b.importer.Forget(sceneDirectory(path))
}

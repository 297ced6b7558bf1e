package loader

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-ldr/common"
	"github.com/Carmen-Shannon/oxy-ldr/engine/model"
)

// maxReferenceDepth bounds sub-file nesting so reference cycles fail instead of recursing forever.
const maxReferenceDepth = 64

// ldrawToWorld is the 180 degree rotation about X that turns LDraw's -Y up into +Y up.
var ldrawToWorld = common.Mat4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, -1, 0,
	0, 0, 0, 1,
}

// ldrawImporterImpl is the implementation of ldrawImporter.
type ldrawImporterImpl struct {
	mu       *sync.Mutex
	resolver *resolver
	pool     worker.DynamicWorkerPool

	// documents caches parsed files by path.
	documents map[string]*mpdDocument
}

// ldrawImporter flattens an LDraw model into an InstancedScene: every part becomes one geometry
// and every placement of it one world transform in its (part, color) group.
type ldrawImporter interface {
	// Import reads a model file and the files it references.
	//
	// Parameters:
	//   - path: the model file
	//   - colors: the color table of the resulting scene
	//
	// Returns:
	//   - model.InstancedScene: the flattened scene
	//   - error: an error if the model cannot be read or a reference cycle is found
	Import(path string, colors model.ColorTable) (model.InstancedScene, error)

	// ImportReader reads a model from a stream. References resolve against the library only.
	ImportReader(name string, r io.Reader, colors model.ColorTable) (model.InstancedScene, error)

	// Forget drops every cached file from a directory and that directory's listing.
	Forget(dir string)
}

var _ ldrawImporter = &ldrawImporterImpl{}

func newLDrawImporter(library string, pool worker.DynamicWorkerPool) ldrawImporter {
	return &ldrawImporterImpl{
		mu:        &sync.Mutex{},
		resolver:  newResolver(library),
		pool:      pool,
		documents: make(map[string]*mpdDocument),
	}
}

// openedFile is a file reached through a reference together with the directory its own
// references resolve against.
type openedFile struct {
	file *ldrawFile
	dir  string
	part bool
}

// importRun holds the state of one import.
type importRun struct {
	imp   *ldrawImporterImpl
	scene model.InstancedScene

	// parts maps every referenced part name to its file.
	parts map[string]openedFile
}

func (i *ldrawImporterImpl) Import(path string, colors model.ColorTable) (model.InstancedScene, error) {
	doc, err := i.document(path)
	if err != nil {
		return nil, err
	}
	return i.importDocument(filepath.Base(path), doc, filepath.Dir(path), colors)
}

func (i *ldrawImporterImpl) ImportReader(name string, r io.Reader, colors model.ColorTable) (model.InstancedScene, error) {
	doc, err := parseDocument(name, r)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	return i.importDocument(name, doc, "", colors)
}

func (i *ldrawImporterImpl) Forget(dir string) {
	i.mu.Lock()
	for path := range i.documents {
		if filepath.Dir(path) == dir {
			delete(i.documents, path)
		}
	}
	i.mu.Unlock()
	i.resolver.invalidate(dir)
}

// document parses a file once and caches it by path.
func (i *ldrawImporterImpl) document(path string) (*mpdDocument, error) {
	i.mu.Lock()
	doc, ok := i.documents[path]
	i.mu.Unlock()
	if ok {
		return doc, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("loader: %w", err)
	}
	defer f.Close()

	doc, err = parseDocument(filepath.Base(path), f)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	i.mu.Lock()
	i.documents[path] = doc
	i.mu.Unlock()
	return doc, nil
}

// open resolves a reference made from a file: blocks of the file's own document first, then
// the search folders.
func (i *ldrawImporterImpl) open(name string, from *ldrawFile, dir string) (openedFile, error) {
	if from.doc != nil {
		if block, ok := from.doc.blocks[name]; ok {
			return openedFile{file: block, dir: dir, part: block.part}, nil
		}
	}
	resolved, err := i.resolver.resolve(name, dir)
	if err != nil {
		return openedFile{}, err
	}
	doc, err := i.document(resolved.path)
	if err != nil {
		return openedFile{}, err
	}
	return openedFile{
		file: doc.blocks[doc.main],
		dir:  filepath.Dir(resolved.path),
		part: resolved.part,
	}, nil
}

func (i *ldrawImporterImpl) importDocument(name string, doc *mpdDocument, dir string, colors model.ColorTable) (model.InstancedScene, error) {
	run := &importRun{
		imp:   i,
		scene: model.NewInstancedScene(model.WithName(name), model.WithColorTable(colors)),
		parts: make(map[string]openedFile),
	}

	main := doc.blocks[doc.main]
	if main.part || i.isLibraryPart(dir) {
		// A part opened directly is placed once at the origin.
		run.parts[main.name] = openedFile{file: main, dir: dir, part: true}
		run.scene.AddInstance(model.GeometryColor{Name: main.name, Color: model.ColorCurrent}, ldrawToWorld)
	} else if err := run.walk(main, dir, common.IdentityMat4(), model.ColorCurrent, 0); err != nil {
		return nil, err
	}

	if err := run.buildGeometry(); err != nil {
		return nil, err
	}
	log.Printf("loader: imported %s: %d parts, %d instances", name, len(run.parts), run.scene.InstanceCount())
	return run.scene, nil
}

// isLibraryPart reports whether dir is the library parts/ folder.
func (i *ldrawImporterImpl) isLibraryPart(dir string) bool {
	if dir == "" || i.resolver.library == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Join(i.resolver.library, "parts"), dir)
	return err == nil && rel == "."
}

// walk follows the model tree and places every part it reaches.
func (run *importRun) walk(f *ldrawFile, dir string, transform common.Mat4, color uint32, depth int) error {
	if depth > maxReferenceDepth {
		return fmt.Errorf("loader: %s: references nest deeper than %d", f.name, maxReferenceDepth)
	}
	for _, ref := range f.refs {
		child, err := run.imp.open(ref.name, f, dir)
		if errors.Is(err, ErrFileNotFound) {
			log.Printf("loader: %s: skipping %v", f.name, err)
			continue
		}
		if err != nil {
			return err
		}

		world := common.MulMat4(transform, ref.transform)
		effective := inheritColor(ref.color, color)
		if child.part {
			run.parts[ref.name] = child
			run.scene.AddInstance(model.GeometryColor{Name: ref.name, Color: effective}, common.MulMat4(ldrawToWorld, world))
			continue
		}
		if err := run.walk(child.file, child.dir, world, effective, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// buildGeometry collects and welds every placed part on the worker pool.
func (run *importRun) buildGeometry() error {
	names := make([]string, 0, len(run.parts))
	for name := range run.parts {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for id, name := range names {
		part := run.parts[name]
		wg.Add(1)
		run.imp.pool.SubmitTask(worker.Task{
			ID:      id,
			Payload: name,
			Do: func() (any, error) {
				defer wg.Done()
				mesh := &partMesh{}
				if err := run.imp.collect(part.file, part.dir, common.IdentityMat4(), model.ColorCurrent, false, mesh, 0); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("loader: part %s: %w", name, err))
					mu.Unlock()
					return nil, err
				}
				run.scene.AddGeometry(buildGeometry(name, mesh))
				return nil, nil
			},
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}

// collect inlines a part and everything it references into a single mesh in part space.
// Polygons are reversed when the file is clockwise, when an odd number of INVERTNEXT lines
// apply, or when the accumulated transform mirrors; any two of those cancel.
func (i *ldrawImporterImpl) collect(f *ldrawFile, dir string, transform common.Mat4, color uint32, invert bool, mesh *partMesh, depth int) error {
	if depth > maxReferenceDepth {
		return fmt.Errorf("%s: references nest deeper than %d", f.name, maxReferenceDepth)
	}
	mirrored := common.Determinant3(transform) < 0

	for _, p := range f.polygons {
		points := make([][3]float32, len(p.vertices))
		for k, v := range p.vertices {
			points[k] = transformPoint(transform, v)
		}
		reverse := (p.winding == windingCW) != invert != mirrored
		mesh.addPolygon(points, inheritColor(p.color, color), reverse)
	}
	for _, e := range f.edges {
		mesh.edges = append(mesh.edges, [2][3]float32{
			transformPoint(transform, e.vertices[0]),
			transformPoint(transform, e.vertices[1]),
		})
	}
	for _, ref := range f.refs {
		child, err := i.open(ref.name, f, dir)
		if errors.Is(err, ErrFileNotFound) {
			log.Printf("loader: %s: skipping %v", f.name, err)
			continue
		}
		if err != nil {
			return err
		}
		err = i.collect(child.file, child.dir, common.MulMat4(transform, ref.transform), inheritColor(ref.color, color), invert != ref.invert, mesh, depth+1)
		if err != nil {
			return err
		}
	}
	return nil
}

// inheritColor resolves code 16 to the color of the referencing line. Every other code,
// including 24, is kept as is.
func inheritColor(code, current uint32) uint32 {
	if code == model.ColorCurrent {
		return current
	}
	return code
}

// sceneDirectory returns the directory a model path resolves references against.
func sceneDirectory(path string) string {
	return filepath.Dir(strings.TrimSpace(path))
}

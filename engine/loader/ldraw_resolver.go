package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrFileNotFound is returned when a referenced file exists in none of the search folders.
var ErrFileNotFound = errors.New("loader: file not found")

// searchRoot is one folder files are resolved against.
type searchRoot struct {
	dir string
	// parts is set for the library parts/ folder.
	parts bool
}

// resolvedFile is a file located on disk.
type resolvedFile struct {
	path string
	// part is set for files from the library parts/ folder outside its s/ subfolder.
	part bool
}

// resolver locates referenced files case-insensitively. Each directory is listed once and kept
// as a lower-case name index.
type resolver struct {
	mu *sync.Mutex

	library string
	index   map[string]map[string]string
}

func newResolver(library string) *resolver {
	return &resolver{
		mu:      &sync.Mutex{},
		library: library,
		index:   make(map[string]map[string]string),
	}
}

// roots returns the search folders in lookup order for a model directory.
func (r *resolver) roots(modelDir string) []searchRoot {
	roots := []searchRoot{{dir: modelDir}}
	if r.library == "" {
		return roots
	}
	return append(roots,
		searchRoot{dir: filepath.Join(r.library, "parts"), parts: true},
		searchRoot{dir: filepath.Join(r.library, "p")},
		searchRoot{dir: filepath.Join(r.library, "models")},
	)
}

// resolve finds a normalized reference below the model directory or the library.
//
// Parameters:
//   - name: the normalized file reference, possibly with subfolders such as "s/3001s01.dat"
//   - modelDir: the directory of the file holding the reference
//
// Returns:
//   - resolvedFile: the file's path and whether it is a part
//   - error: ErrFileNotFound if no search folder holds the file
func (r *resolver) resolve(name, modelDir string) (resolvedFile, error) {
	for _, root := range r.roots(modelDir) {
		if root.dir == "" {
			continue
		}
		if path, ok := r.lookup(root.dir, name); ok {
			return resolvedFile{
				path: path,
				part: root.parts && !strings.HasPrefix(name, "s/"),
			}, nil
		}
	}
	return resolvedFile{}, fmt.Errorf("%w: %s", ErrFileNotFound, name)
}

// lookup walks the reference one path element at a time, matching each against the lower-case
// index of its directory.
func (r *resolver) lookup(dir, name string) (string, bool) {
	current := dir
	for _, elem := range strings.Split(name, "/") {
		if elem == "" || elem == "." {
			continue
		}
		entries := r.list(current)
		actual, ok := entries[elem]
		if !ok {
			return "", false
		}
		current = filepath.Join(current, actual)
	}
	if current == dir {
		return "", false
	}
	return current, true
}

func (r *resolver) list(dir string) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entries, ok := r.index[dir]; ok {
		return entries
	}
	entries := make(map[string]string)
	if dirEntries, err := os.ReadDir(dir); err == nil {
		for _, e := range dirEntries {
			entries[strings.ToLower(e.Name())] = e.Name()
		}
	}
	r.index[dir] = entries
	return entries
}

// invalidate forgets the listing of a directory so new or renamed files are seen.
func (r *resolver) invalidate(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.index, dir)
}

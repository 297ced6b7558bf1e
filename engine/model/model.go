package model

import (
	"cmp"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-ldr/common"
)

// instancedScene is the implementation of the InstancedScene interface.
type instancedScene struct {
	mu *sync.RWMutex

	name       string
	geometry   map[string]*Geometry
	transforms map[GeometryColor][]common.Mat4
	colors     ColorTable
}

// InstancedScene is a loaded LDraw model flattened into unique part geometries and, per
// (part, color) pair, the world transforms of every placed copy. It is produced by the
// loader and consumed once by the scene buffer layout.
type InstancedScene interface {
	// Name returns the source file the scene was loaded from.
	Name() string

	// Geometry returns the geometry for a part name, or nil.
	Geometry(name string) *Geometry

	// GeometryCache returns every unique part geometry keyed by name.
	GeometryCache() map[string]*Geometry

	// Transforms returns the world transforms placed for one (part, color) group.
	Transforms(key GeometryColor) []common.Mat4

	// Groups returns every (part, color) group in a deterministic order: opaque groups
	// first, transparent groups last, ties broken by part name then color code.
	Groups() []GeometryColor

	// InstanceCount returns the total number of placed instances.
	InstanceCount() int

	// ColorTable returns the color table used to resolve vertex colors.
	ColorTable() ColorTable

	// AddGeometry registers a part geometry, replacing any previous geometry of the same name.
	AddGeometry(g *Geometry)

	// AddInstance appends a world transform to a (part, color) group.
	AddInstance(key GeometryColor, transform common.Mat4)
}

var _ InstancedScene = &instancedScene{}

// NewInstancedScene creates an empty InstancedScene with the options applied.
func NewInstancedScene(options ...InstancedSceneBuilderOption) InstancedScene {
	s := &instancedScene{
		mu:         &sync.RWMutex{},
		geometry:   make(map[string]*Geometry),
		transforms: make(map[GeometryColor][]common.Mat4),
		colors:     ColorTable{},
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *instancedScene) Name() string {
	return s.name
}

func (s *instancedScene) Geometry(name string) *Geometry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.geometry[name]
}

func (s *instancedScene) GeometryCache() map[string]*Geometry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.geometry
}

func (s *instancedScene) Transforms(key GeometryColor) []common.Mat4 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transforms[key]
}

func (s *instancedScene) Groups() []GeometryColor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]GeometryColor, 0, len(s.transforms))
	for key := range s.transforms {
		groups = append(groups, key)
	}
	slices.SortFunc(groups, func(a, b GeometryColor) int {
		ta, tb := s.colors.Transparent(a.Color), s.colors.Transparent(b.Color)
		if ta != tb {
			if ta {
				return 1
			}
			return -1
		}
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.Color, b.Color)
	})
	return groups
}

func (s *instancedScene) InstanceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, t := range s.transforms {
		n += len(t)
	}
	return n
}

func (s *instancedScene) ColorTable() ColorTable {
	return s.colors
}

func (s *instancedScene) AddGeometry(g *Geometry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.geometry[g.Name] = g
}

func (s *instancedScene) AddInstance(key GeometryColor, transform common.Mat4) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transforms[key] = append(s.transforms[key], transform)
}

package model

// InstancedSceneBuilderOption is a functional option for configuring an InstancedScene via NewInstancedScene.
type InstancedSceneBuilderOption func(*instancedScene)

// WithName sets the scene name, normally the path of the loaded model file.
//
// Parameters:
//   - name: the scene name
//
// Returns:
//   - InstancedSceneBuilderOption: a function that applies the name option
func WithName(name string) InstancedSceneBuilderOption {
	return func(s *instancedScene) {
		s.name = name
	}
}

// WithColorTable sets the color table used to resolve vertex colors and transparency.
//
// Parameters:
//   - table: the LDraw color table
//
// Returns:
//   - InstancedSceneBuilderOption: a function that applies the color table option
func WithColorTable(table ColorTable) InstancedSceneBuilderOption {
	return func(s *instancedScene) {
		if table != nil {
			s.colors = table
		}
	}
}

// WithGeometry pre-registers part geometries.
func WithGeometry(geometry ...*Geometry) InstancedSceneBuilderOption {
	return func(s *instancedScene) {
		for _, g := range geometry {
			s.geometry[g.Name] = g
		}
	}
}

package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-ldr/common"
	"github.com/Carmen-Shannon/oxy-ldr/engine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

// testLibrary lays out a minimal LDraw library: one part built from a quad, an edge, a
// subpart and a primitive.
func testLibrary(t *testing.T) string {
	t.Helper()
	lib := t.TempDir()
	writeFile(t, filepath.Join(lib, LDConfigFile), testLDConfig)
	writeFile(t, filepath.Join(lib, "parts", "3001.DAT"), `0 Brick  2 x  4
0 !LDRAW_ORG Part UPDATE 2004-03
0 BFC CERTIFY CCW
4 16 0 0 0 1 0 0 1 0 1 0 0 1
2 24 0 0 0 1 0 0
1 16 0 0 0 1 0 0 0 1 0 0 0 1 s\3001s01.dat
1 16 0 0 0 1 0 0 0 1 0 0 0 1 4-4disc.dat
`)
	writeFile(t, filepath.Join(lib, "parts", "s", "3001s01.dat"), `0 ~Brick  2 x  4 without Front Face
0 !LDRAW_ORG Subpart
3 4 0 0 0 0 -1 0 1 0 0
`)
	writeFile(t, filepath.Join(lib, "p", "4-4disc.dat"), `0 Disc 1.0
0 !LDRAW_ORG Primitive
3 16 5 5 5 6 5 5 5 6 5
`)
	return lib
}

func testPool(t *testing.T) worker.DynamicWorkerPool {
	pool := worker.NewDynamicWorkerPool(2, 16, time.Second)
	t.Cleanup(pool.Stop)
	return pool
}

func newTestLoader(t *testing.T, lib string) Loader {
	return NewLoader(BackendTypeLDraw, WithLibrary(lib), WithWorkerPool(testPool(t)))
}

func translation(m common.Mat4) [3]float32 {
	return [3]float32{m[12], m[13], m[14]}
}

func TestLoadFlattensModel(t *testing.T) {
	lib := testLibrary(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "house.ldr")
	writeFile(t, path, `0 House
1 4 10 0 0 1 0 0 0 1 0 0 0 1 3001.dat
1 4 0 -24 0 1 0 0 0 1 0 0 0 1 3001.DAT
1 15 0 0 0 1 0 0 0 1 0 0 0 1 missing.dat
1 1 0 0 40 1 0 0 0 1 0 0 0 1 wall.ldr
`)
	writeFile(t, filepath.Join(dir, "Wall.ldr"), `0 Wall
1 16 0 0 0 1 0 0 0 1 0 0 0 1 3001.dat
1 2 20 0 0 1 0 0 0 1 0 0 0 1 3001.dat
`)

	l := newTestLoader(t, lib)
	s, err := l.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "house.ldr", s.Name())
	assert.Equal(t, 4, s.InstanceCount())
	assert.ElementsMatch(t, []model.GeometryColor{
		{Name: "3001.dat", Color: 1},
		{Name: "3001.dat", Color: 2},
		{Name: "3001.dat", Color: 4},
	}, s.Groups())

	red := s.Transforms(model.GeometryColor{Name: "3001.dat", Color: 4})
	require.Len(t, red, 2)
	assert.Equal(t, [3]float32{10, 0, 0}, translation(red[0]))
	// LDraw -Y up becomes +Y up.
	assert.Equal(t, [3]float32{0, 24, 0}, translation(red[1]))
	assert.Equal(t, float32(-1), red[0][5])
	assert.Equal(t, float32(-1), red[0][10])

	green := s.Transforms(model.GeometryColor{Name: "3001.dat", Color: 2})
	require.Len(t, green, 1)
	assert.Equal(t, [3]float32{20, 0, -40}, translation(green[0]))

	g := s.Geometry("3001.dat")
	require.NotNil(t, g)
	assert.Len(t, g.Indices, 12)
	assert.Len(t, g.EdgeIndices, 2)
	assert.Contains(t, g.ColorCodes, uint32(4))
	assert.Contains(t, g.ColorCodes, model.ColorCurrent)
	assert.Len(t, s.GeometryCache(), 1)

	assert.Equal(t, "Red", s.ColorTable()[4].Name)
	assert.True(t, s.ColorTable().Transparent(47))

	cached, err := l.Load(path)
	require.NoError(t, err)
	assert.Same(t, s, cached)
	assert.Same(t, s, l.Get(path))
	assert.Len(t, l.Scenes(), 1)
}

func TestLoadMPD(t *testing.T) {
	lib := testLibrary(t)
	path := filepath.Join(t.TempDir(), "car.mpd")
	writeFile(t, path, `0 FILE car.ldr
1 16 0 0 0 1 0 0 0 1 0 0 0 1 chassis.ldr
1 14 0 0 0 -1 0 0 0 1 0 0 0 1 sticker.dat
0 NOFILE
0 FILE chassis.ldr
1 16 0 0 0 1 0 0 0 1 0 0 0 1 3001.dat
1 16 40 0 0 1 0 0 0 1 0 0 0 1 3001.dat
0 FILE sticker.dat
0 !LDRAW_ORG Unofficial_Part
4 16 0 0 0 1 0 0 1 0 1 0 0 1
`)
	s, err := newTestLoader(t, lib).Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, s.InstanceCount())
	assert.Len(t, s.Transforms(model.GeometryColor{Name: "3001.dat", Color: model.ColorCurrent}), 2)
	mirrored := s.Transforms(model.GeometryColor{Name: "sticker.dat", Color: 14})
	require.Len(t, mirrored, 1)
	assert.Less(t, common.Determinant3(mirrored[0]), float32(0))

	sticker := s.Geometry("sticker.dat")
	require.NotNil(t, sticker)
	assert.Len(t, sticker.Indices, 6)
}

func TestLoadReader(t *testing.T) {
	lib := testLibrary(t)
	l := newTestLoader(t, lib)
	src := "1 7 0 0 0 1 0 0 0 1 0 0 0 1 3001.dat\n"

	s, err := l.LoadReader("stream.ldr", strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 1, s.InstanceCount())
	assert.Same(t, s, l.Get("stream.ldr"))
}

func TestLoadPartDirectly(t *testing.T) {
	lib := testLibrary(t)
	s, err := newTestLoader(t, lib).Load(filepath.Join(lib, "parts", "3001.DAT"))
	require.NoError(t, err)
	assert.Equal(t, 1, s.InstanceCount())
	require.Len(t, s.Groups(), 1)
	assert.Equal(t, ldrawToWorld, s.Transforms(s.Groups()[0])[0])
}

func TestLoadReferenceCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.mpd")
	writeFile(t, path, `0 FILE a.ldr
1 16 0 0 0 1 0 0 0 1 0 0 0 1 b.ldr
0 FILE b.ldr
1 16 0 0 0 1 0 0 0 1 0 0 0 1 a.ldr
`)
	_, err := newTestLoader(t, "").Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nest deeper")
}

func TestLoadErrors(t *testing.T) {
	l := newTestLoader(t, "")

	_, err := l.Load(filepath.Join(t.TempDir(), "model.obj"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported model format")

	_, err = l.Load(filepath.Join(t.TempDir(), "absent.ldr"))
	require.ErrorIs(t, err, ErrFileNotFound)
}

func TestLoaderWithoutLibraryUsesFallbackColors(t *testing.T) {
	l := newTestLoader(t, "")
	assert.Empty(t, l.ColorTable())
	assert.Equal(t, [4]float32{0.5, 0.5, 0.5, 1}, l.ColorTable().Lookup(4).RGBALinear)

	table := model.ColorTable{4: {Code: 4, Name: "Red"}}
	l = NewLoader(BackendTypeLDraw, WithColorTable(table), WithWorkerPool(testPool(t)))
	assert.Equal(t, "Red", l.ColorTable()[4].Name)
}

func TestReloadReadsChangedFiles(t *testing.T) {
	lib := testLibrary(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "model.ldr")
	writeFile(t, path, "1 4 0 0 0 1 0 0 0 1 0 0 0 1 3001.dat\n")

	l := newTestLoader(t, lib)
	s, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, s.InstanceCount())

	writeFile(t, path, "1 4 0 0 0 1 0 0 0 1 0 0 0 1 3001.dat\n1 4 20 0 0 1 0 0 0 1 0 0 0 1 3001.dat\n")

	cached, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cached.InstanceCount())

	reloaded, err := l.Reload(path)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.InstanceCount())
	assert.Same(t, reloaded, l.Get(path))
}

func TestPreloadedScene(t *testing.T) {
	s := model.NewInstancedScene(model.WithName("pre.ldr"))
	l := NewLoader(BackendTypeLDraw, WithScene("pre.ldr", s), WithWorkerPool(testPool(t)))
	got, err := l.Load("pre.ldr")
	require.NoError(t, err)
	assert.Same(t, s, got)
}

package camera

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-ldr/common"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerDefaults(t *testing.T) {
	cc := NewCameraController()
	x, y, z := cc.Translation()
	assert.Equal(t, [3]float32{0, -0.5, -200}, [3]float32{x, y, z})
	rx, ry := cc.Rotation()
	assert.Zero(t, rx)
	assert.Zero(t, ry)
	assert.Equal(t, float32(1), cc.MinDistance())
}

func TestScrollZoomScalesWithDistanceAndClamps(t *testing.T) {
	cc := NewCameraController()
	cc.Scroll(1)
	_, _, z := cc.Translation()
	assert.InDelta(t, -180, z, 1e-4)

	cc.Scroll(-1)
	_, _, z = cc.Translation()
	assert.InDelta(t, -198, z, 1e-3)

	cc.Scroll(50)
	_, _, z = cc.Translation()
	assert.Equal(t, float32(-1), z)
}

func TestLeftDragRotates(t *testing.T) {
	cc := NewCameraController()
	cc.MouseButton(common.MouseButtonLeft, true, 10, 10)
	cc.MouseMove(20, 30, 600, 0.5)

	rx, ry := cc.Rotation()
	assert.InDelta(t, 0.2, rx, 1e-6)
	assert.InDelta(t, 0.1, ry, 1e-6)

	cc.MouseButton(common.MouseButtonLeft, false, 20, 30)
	cc.MouseMove(100, 100, 600, 0.5)
	rx2, ry2 := cc.Rotation()
	assert.Equal(t, rx, rx2)
	assert.Equal(t, ry, ry2)
}

func TestRightDragPansInScreenSpace(t *testing.T) {
	cc := NewCameraController(WithTranslation(0, 0, -100))
	cc.MouseButton(common.MouseButtonRight, true, 0, 0)
	cc.MouseMove(10, 10, 200, 0.5)

	fac := math32.Sin(0.5) * 100 / 200
	x, y, z := cc.Translation()
	assert.InDelta(t, 10*fac, x, 1e-5)
	assert.InDelta(t, -10*fac, y, 1e-5)
	assert.Equal(t, float32(-100), z)
}

func TestMouseMoveWithoutButtonOnlyTracksCursor(t *testing.T) {
	cc := NewCameraController()
	cc.MouseMove(5, 5, 600, 0.5)
	cc.MouseMove(500, 500, 600, 0.5)
	rx, ry := cc.Rotation()
	assert.Zero(t, rx)
	assert.Zero(t, ry)
}

func TestArrowKeys(t *testing.T) {
	cc := NewCameraController(WithTranslation(0, 0, -10))
	cc.KeyDown(common.KeyLeft)
	cc.KeyDown(common.KeyLeft)
	cc.KeyDown(common.KeyRight)
	_, ry := cc.Rotation()
	assert.InDelta(t, -0.1, ry, 1e-6)

	cc.KeyDown(common.KeyUp)
	_, _, z := cc.Translation()
	assert.InDelta(t, -9.5, z, 1e-6)
	cc.KeyDown(common.KeyDown)
	cc.KeyDown(common.KeyDown)
	_, _, z = cc.Translation()
	assert.InDelta(t, -10.5, z, 1e-6)
}

func TestCameraPositionFromTranslation(t *testing.T) {
	c := NewCamera(WithController(NewCameraController(WithTranslation(0, 0, -200))))
	x, y, z := c.Position()
	assert.InDelta(t, 0, x, 1e-4)
	assert.InDelta(t, 0, y, 1e-4)
	assert.InDelta(t, 200, z, 1e-3)
}

func TestCameraFollowsControllerOnUpdate(t *testing.T) {
	cc := NewCameraController(WithTranslation(0, 0, -50))
	c := NewCamera(WithController(cc))
	before := c.ViewMatrix()

	cc.SetTranslation(0, 0, -80)
	assert.Equal(t, before, c.ViewMatrix())
	c.Update()
	assert.Equal(t, float32(-80), c.ViewMatrix()[14])
}

func TestCullingUniform(t *testing.T) {
	c := NewCamera(WithFov(0.5), WithAspect(2), WithClip(0.5, 500),
		WithController(NewCameraController()))

	u := c.CullingUniform()
	f := 1 / math32.Tan(0.25)
	assert.InDelta(t, f/2, u.P00, 1e-5)
	assert.InDelta(t, f, u.P11, 1e-5)
	assert.Equal(t, float32(0.5), u.ZNear)
	assert.Equal(t, float32(500), u.ZFar)
	assert.Equal(t, c.ViewMatrix(), u.View)

	// The packed left plane of a symmetric projection is (P00, 0, -1) normalized.
	n := math32.Sqrt(u.P00*u.P00 + 1)
	assert.InDelta(t, u.P00/n, u.Frustum[0], 1e-5)
	assert.InDelta(t, 1/n, u.Frustum[1], 1e-5)

	buf := u.Marshal()
	require.Len(t, buf, 160)
	assert.Equal(t, u.P00, math.Float32frombits(binary.LittleEndian.Uint32(buf[80:])))
	assert.Equal(t, u.ZFar, math.Float32frombits(binary.LittleEndian.Uint32(buf[92:])))
	assert.Equal(t, u.View[14], math.Float32frombits(binary.LittleEndian.Uint32(buf[96+14*4:])))
}

func TestProjectionIsReversedZ(t *testing.T) {
	c := NewCamera(WithClip(1, 100))
	p := c.ProjectionMatrix()

	depth := func(d float32) float32 {
		z := p[10]*(-d) + p[14]
		w := p[11] * (-d)
		return z / w
	}
	assert.InDelta(t, 1, depth(1), 1e-5)
	assert.InDelta(t, 0, depth(100), 1e-5)
	assert.Greater(t, depth(2), depth(50))
}

func TestSetViewportIgnoresZeroHeight(t *testing.T) {
	c := NewCamera()
	c.SetViewport(800, 400)
	assert.Equal(t, float32(2), c.Aspect())
	c.SetViewport(800, 0)
	assert.Equal(t, float32(2), c.Aspect())
}

func TestModelUniformLayout(t *testing.T) {
	c := NewCamera(WithController(NewCameraController()))
	u := c.ModelUniform()
	assert.Equal(t, 80, u.Size())
	assert.Equal(t, float32(1), u.Position[3])
	assert.Len(t, u.Marshal(), 80)
}

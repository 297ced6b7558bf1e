package camera

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-ldr/common"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/bind_group_provider"
)

// cameraCount numbers the bind group providers of successive cameras.
var cameraCount atomic.Uint64

// lens is the perspective the projection is built from. fovY is in radians.
type lens struct {
	fovY, aspect float32
	near, far    float32
}

// pose is everything derived from the lens and the controller by one update.
type pose struct {
	view, projection, viewProjection common.Mat4
	eye                              [3]float32
}

type cameraImpl struct {
	mu *sync.Mutex

	lens       lens
	pose       pose
	controller CameraController
	provider   bind_group_provider.BindGroupProvider
}

// Camera turns a controller's orbit state into the matrices and uniforms of one frame. The
// projection is reversed-Z with a finite far plane: depth 1 at near and 0 at far.
//
// Matrices only change on Update and SetViewport, so reads between two updates describe the
// same frame even while input callbacks keep moving the controller.
type Camera interface {
	// Fov returns the vertical field of view in radians.
	Fov() float32

	// Aspect returns width over height.
	Aspect() float32

	// ViewMatrix returns the column-major view matrix.
	ViewMatrix() [16]float32

	// ProjectionMatrix returns the column-major reversed-Z projection.
	ProjectionMatrix() [16]float32

	// Position returns the world-space eye position.
	Position() (x, y, z float32)

	// ModelUniform returns the uniform read by the solid and edge pipelines.
	ModelUniform() GPUModelCamera

	// CullingUniform returns the uniform read by the culling pass: view-projection, the packed
	// side planes of the projection, p00, p11, the clip distances and the view matrix.
	CullingUniform() GPUCullingCamera

	// Controller returns the attached controller, or nil.
	Controller() CameraController

	// BindGroupProvider returns the provider holding the model camera uniform buffer.
	BindGroupProvider() bind_group_provider.BindGroupProvider

	// Update samples the controller and recomputes the pose. The engine calls it once per frame
	// before the uniforms are written.
	Update()

	// SetViewport sets the aspect ratio from a surface size. Empty sizes are ignored.
	//
	// Parameters:
	//   - width: the surface width in pixels
	//   - height: the surface height in pixels
	SetViewport(width, height int)
}

var _ Camera = &cameraImpl{}

// NewCamera creates a camera with the viewer defaults: a 0.5 radian vertical field of view,
// near 0.1 and far 10000. Without a controller the view matrix is the identity.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:       &sync.Mutex{},
		lens:     lens{fovY: 0.5, aspect: 1, near: 0.1, far: 10000},
		provider: bind_group_provider.NewBindGroupProvider("camera_" + strconv.FormatUint(cameraCount.Add(1)-1, 10)),
	}
	for _, option := range options {
		option(c)
	}
	c.pose = c.derive()
	return c
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lens.fovY
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lens.aspect
}

func (c *cameraImpl) ViewMatrix() [16]float32 {
	return c.snapshot().view
}

func (c *cameraImpl) ProjectionMatrix() [16]float32 {
	return c.snapshot().projection
}

func (c *cameraImpl) Position() (x, y, z float32) {
	eye := c.snapshot().eye
	return eye[0], eye[1], eye[2]
}

func (c *cameraImpl) ModelUniform() GPUModelCamera {
	p := c.snapshot()
	return GPUModelCamera{
		ViewProj: p.viewProjection,
		Position: [4]float32{p.eye[0], p.eye[1], p.eye[2], 1},
	}
}

func (c *cameraImpl) CullingUniform() GPUCullingCamera {
	c.mu.Lock()
	p, l := c.pose, c.lens
	c.mu.Unlock()
	return GPUCullingCamera{
		ViewProj: p.viewProjection,
		Frustum:  common.PackSidePlanes(p.projection[:]),
		P00:      p.projection[0],
		P11:      p.projection[5],
		ZNear:    l.near,
		ZFar:     l.far,
		View:     p.view,
	}
}

func (c *cameraImpl) Controller() CameraController {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) BindGroupProvider() bind_group_provider.BindGroupProvider {
	return c.provider
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pose = c.derive()
}

func (c *cameraImpl) SetViewport(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lens.aspect = float32(width) / float32(height)
	c.pose = c.derive()
}

func (c *cameraImpl) snapshot() pose {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pose
}

// derive builds the pose from the lens and the controller. The view is translate * rotX * rotY,
// so the model orbits about its origin and the translation moves the eye. Caller must hold the
// mutex.
func (c *cameraImpl) derive() pose {
	p := c.pose
	if c.controller != nil {
		tx, ty, tz := c.controller.Translation()
		rx, ry := c.controller.Rotation()
		p.view = common.MulMat4(common.Translation(tx, ty, tz),
			common.MulMat4(common.RotationX(rx), common.RotationY(ry)))
	} else if p.view == (common.Mat4{}) {
		p.view = common.IdentityMat4()
	}

	common.PerspectiveReversed(p.projection[:], c.lens.fovY, c.lens.aspect, c.lens.near, c.lens.far)
	common.Mul4(p.viewProjection[:], p.projection[:], p.view[:])

	var inv common.Mat4
	if common.Invert4(inv[:], p.view[:]) {
		p.eye = [3]float32{inv[12], inv[13], inv[14]}
	}
	return p
}

package camera

// CameraBuilderOption configures a camera in NewCamera.
type CameraBuilderOption func(*cameraImpl)

// WithFov sets the vertical field of view in radians.
func WithFov(fov float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.lens.fovY = fov
	}
}

// WithAspect sets the initial width over height. The engine keeps it current through
// SetViewport afterwards.
func WithAspect(aspect float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.lens.aspect = aspect
	}
}

// WithClip sets the near and far plane distances.
//
// Parameters:
//   - near: near plane distance, > 0
//   - far: far plane distance, > near
//
// Returns:
//   - CameraBuilderOption: a function that sets the clip distances
func WithClip(near, far float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.lens.near, c.lens.far = near, far
	}
}

// WithController attaches the controller whose orbit state drives the view.
func WithController(ctrl CameraController) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.controller = ctrl
	}
}

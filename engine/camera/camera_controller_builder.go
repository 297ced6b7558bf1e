package camera

// CameraControllerOption is a functional option for configuring a CameraController.
type CameraControllerOption func(*cameraControllerImpl)

// WithTranslation sets the initial model translation.
//
// Parameters:
//   - x, y, z: translation in world units; z is clamped to <= -MinDistance
//
// Returns:
//   - CameraControllerOption: functional option to set the translation
func WithTranslation(x, y, z float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.translation = [3]float32{x, y, z}
	}
}

// WithRotation sets the initial rotation about the X and Y axes.
//
// Parameters:
//   - x, y: angles in radians
//
// Returns:
//   - CameraControllerOption: functional option to set the rotation
func WithRotation(x, y float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.rotation = [2]float32{x, y}
	}
}

// WithRotateSensitivity sets the drag rotation in radians per pixel.
//
// Parameters:
//   - sensitivity: radians per pixel
//
// Returns:
//   - CameraControllerOption: functional option to set the sensitivity
func WithRotateSensitivity(sensitivity float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.rotateSensitivity = sensitivity
	}
}

// WithZoomFactor sets the fraction of the current distance moved per scroll line.
func WithZoomFactor(factor float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.zoomFactor = factor
	}
}

// WithMinDistance sets the closest the origin may come to the eye.
func WithMinDistance(distance float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.minDistance = distance
	}
}

package camera

// CameraController owns the viewer's positional state and turns window input into it. The view
// matrix is Translation(t) * RotationX(rx) * RotationY(ry): the model spins in place around the
// origin while the translation moves it relative to the eye.
type CameraController interface {
	viewerInput

	// Translation returns the model translation applied after rotation.
	//
	// Returns:
	//   - x, y, z: translation in world units; z is always <= -MinDistance
	Translation() (x, y, z float32)

	// SetTranslation sets the translation directly. z is clamped to <= -MinDistance.
	//
	// Parameters:
	//   - x, y, z: translation in world units
	SetTranslation(x, y, z float32)

	// Rotation returns the rotation about the X and Y axes in radians.
	Rotation() (x, y float32)

	// SetRotation sets the rotation about the X and Y axes in radians.
	SetRotation(x, y float32)

	// MinDistance returns how close the translation may bring the origin to the eye.
	MinDistance() float32
}

// viewerInput defines the input rules of the viewer: left drag rotates, right drag pans in screen
// space, the scroll wheel zooms proportionally to the distance and the arrow keys rotate and dolly.
type viewerInput interface {
	// MouseButton records a button press or release at a cursor position.
	//
	// Parameters:
	//   - button: common.MouseButtonLeft or common.MouseButtonRight; others are ignored
	//   - pressed: true on press, false on release
	//   - x, y: cursor position in pixels
	MouseButton(button int, pressed bool, x, y float32)

	// MouseMove applies a drag for the button held down. The cursor position is always recorded so
	// the next drag starts without a jump.
	//
	// Parameters:
	//   - x, y: cursor position in pixels
	//   - viewportHeight: surface height in pixels, used to convert pan distance
	//   - fovY: vertical field of view in radians, used to convert pan distance
	MouseMove(x, y float32, viewportHeight int, fovY float32)

	// Scroll zooms by lines * |z| * ZoomFactor. Positive lines move the model closer.
	//
	// Parameters:
	//   - lines: scroll amount in lines
	Scroll(lines float32)

	// KeyDown applies keyboard controls: Left/Right rotate about Y, Up/Down dolly.
	//
	// Parameters:
	//   - keyCode: a common.Key* code
	KeyDown(keyCode uint32)
}

package camera

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-ldr/common"
	"github.com/chewxy/math32"
)

type dragMode int

const (
	dragNone dragMode = iota
	dragRotate
	dragPan
)

// cameraControllerImpl is the single implementation of CameraController.
type cameraControllerImpl struct {
	mu *sync.Mutex

	translation [3]float32
	rotation    [2]float32

	drag       dragMode
	cursor     [2]float32
	haveCursor bool

	// Input tuning
	rotateSensitivity float32 // radians per pixel of drag
	zoomFactor        float32 // fraction of |z| per scroll line
	keyRotateStep     float32 // radians per arrow key press
	keyDollyStep      float32 // world units per arrow key press
	minDistance       float32
}

var _ CameraController = &cameraControllerImpl{}

// NewCameraController creates a new camera controller with the viewer defaults: translation
// (0, -0.5, -200), no rotation.
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - CameraController: the newly created controller
func NewCameraController(options ...CameraControllerOption) CameraController {
	cc := &cameraControllerImpl{
		mu:                &sync.Mutex{},
		translation:       [3]float32{0, -0.5, -200},
		rotateSensitivity: 0.01,
		zoomFactor:        0.1,
		keyRotateStep:     0.1,
		keyDollyStep:      0.5,
		minDistance:       1,
	}
	for _, option := range options {
		option(cc)
	}
	cc.clampZ()
	return cc
}

// clampZ keeps the model in front of the eye. Caller must hold the mutex.
func (cc *cameraControllerImpl) clampZ() {
	cc.translation[2] = math32.Min(cc.translation[2], -cc.minDistance)
}

func (cc *cameraControllerImpl) Translation() (x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.translation[0], cc.translation[1], cc.translation[2]
}

func (cc *cameraControllerImpl) SetTranslation(x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.translation = [3]float32{x, y, z}
	cc.clampZ()
}

func (cc *cameraControllerImpl) Rotation() (x, y float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.rotation[0], cc.rotation[1]
}

func (cc *cameraControllerImpl) SetRotation(x, y float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.rotation = [2]float32{x, y}
}

func (cc *cameraControllerImpl) MinDistance() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.minDistance
}

func (cc *cameraControllerImpl) MouseButton(button int, pressed bool, x, y float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	cc.cursor = [2]float32{x, y}
	cc.haveCursor = true

	var mode dragMode
	switch button {
	case common.MouseButtonLeft:
		mode = dragRotate
	case common.MouseButtonRight:
		mode = dragPan
	default:
		return
	}
	if pressed {
		cc.drag = mode
	} else if cc.drag == mode {
		cc.drag = dragNone
	}
}

func (cc *cameraControllerImpl) MouseMove(x, y float32, viewportHeight int, fovY float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if !cc.haveCursor {
		cc.cursor = [2]float32{x, y}
		cc.haveCursor = true
		return
	}
	dx := x - cc.cursor[0]
	dy := y - cc.cursor[1]
	cc.cursor = [2]float32{x, y}

	switch cc.drag {
	case dragRotate:
		// Horizontal drags spin about Y, vertical drags about X.
		cc.rotation[0] += dy * cc.rotateSensitivity
		cc.rotation[1] += dx * cc.rotateSensitivity
	case dragPan:
		if viewportHeight <= 0 {
			return
		}
		fac := math32.Sin(fovY) * math32.Abs(cc.translation[2]) / float32(viewportHeight)
		cc.translation[0] += dx * fac
		cc.translation[1] -= dy * fac
	}
}

func (cc *cameraControllerImpl) Scroll(lines float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.translation[2] += lines * math32.Abs(cc.translation[2]) * cc.zoomFactor
	cc.clampZ()
}

func (cc *cameraControllerImpl) KeyDown(keyCode uint32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	switch keyCode {
	case common.KeyLeft:
		cc.rotation[1] -= cc.keyRotateStep
	case common.KeyRight:
		cc.rotation[1] += cc.keyRotateStep
	case common.KeyUp:
		cc.translation[2] += cc.keyDollyStep
	case common.KeyDown:
		cc.translation[2] -= cc.keyDollyStep
	}
	cc.clampZ()
}

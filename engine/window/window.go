package window

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cogentcore/webgpu/wgpu"
)

// Window is the viewer window: it owns the surface the renderer presents to and turns platform
// input into viewer events. Callbacks run on the main thread inside ProcessMessages.
// RequestClose, SetTitle and the size getters may be called from any goroutine.
type Window interface {
	// SetResizeCallback sets the function called when the framebuffer is resized.
	//
	// Parameters:
	//   - callback: function receiving the new framebuffer width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetScrollCallback sets the callback for mouse wheel events.
	//
	// Parameters:
	//   - callback: function receiving the vertical scroll in lines (positive = away from the user)
	SetScrollCallback(callback func(lines float32))

	// SetKeyDownCallback sets the callback for key presses, including key repeats.
	//
	// Parameters:
	//   - callback: function receiving the key code (common.Key*)
	SetKeyDownCallback(callback func(keyCode uint32))

	// SetMouseButtonCallback sets the callback for mouse button presses and releases.
	//
	// Parameters:
	//   - callback: function receiving the button (common.MouseButtonLeft, ...), whether it was
	//     pressed, and the cursor position in window coordinates
	SetMouseButtonCallback(callback func(button int, pressed bool, x, y float32))

	// SetMouseMoveCallback sets the callback for cursor movement.
	//
	// Parameters:
	//   - callback: function receiving the cursor position in window coordinates
	SetMouseMoveCallback(callback func(x, y float32))

	// Title returns the title the window was created with.
	Title() string

	// SetTitle replaces the title bar text. The change is applied by the next ProcessMessages
	// iteration.
	//
	// Parameters:
	//   - title: the new title
	SetTitle(title string)

	// SurfaceDescriptor returns a wgpu.SurfaceDescriptor suitable for creating a WebGPU surface.
	// The descriptor is created by the wgpuglfw bridge from the underlying GLFW window.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the platform-specific surface descriptor, or nil if window is not initialized
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning returns true until the window is closed by the user, RequestClose or Close.
	IsRunning() bool

	// RequestClose asks ProcessMessages to return after its current iteration.
	RequestClose()

	// Close destroys the window and releases platform resources. Must be called on the main
	// thread after ProcessMessages returned.
	//
	// Returns:
	//   - error: error if the window is not initialized
	Close() error

	// ProcessMessages polls events until the window is closed or RequestClose is called.
	ProcessMessages()

	// Width returns the framebuffer width in pixels.
	Width() int

	// Height returns the framebuffer height in pixels.
	Height() int

	// CursorHeight returns the window height in the coordinates of cursor positions. It differs
	// from Height on high-DPI displays.
	CursorHeight() int
}

// engineWindow is the implementation of the Window interface.
type engineWindow struct {
	title     string
	minWidth  int
	minHeight int

	mu           *sync.Mutex // guards the sizes and the pending title
	width        int
	height       int
	cursorHeight int
	pendingTitle *string

	closeRequested atomic.Bool
	internalWindow *glfwWindow

	onResize      func(width, height int)
	onScroll      func(lines float32)
	onKeyDown     func(keyCode uint32)
	onMouseButton func(button int, pressed bool, x, y float32)
	onMouseMove   func(x, y float32)
}

var _ Window = &engineWindow{}

// NewWindow creates and shows a Window with the specified options. The calling goroutine is
// locked to its OS thread, which must be the main thread.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the spawned window
func NewWindow(options ...WindowBuilderOption) Window {
	w := &engineWindow{
		title:     "ldrview",
		minWidth:  320,
		minHeight: 200,
		mu:        &sync.Mutex{},
		width:     1280,
		height:    720,
	}
	for _, opt := range options {
		opt(w)
	}
	w.width = max(w.width, w.minWidth)
	w.height = max(w.height, w.minHeight)
	w.cursorHeight = w.height
	if err := newPlatformWindow(w); err != nil {
		panic(fmt.Sprintf("failed to create platform window: %v", err))
	}
	return w
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *engineWindow) SetScrollCallback(callback func(lines float32)) {
	w.onScroll = callback
}

func (w *engineWindow) SetKeyDownCallback(callback func(keyCode uint32)) {
	w.onKeyDown = callback
}

func (w *engineWindow) SetMouseButtonCallback(callback func(button int, pressed bool, x, y float32)) {
	w.onMouseButton = callback
}

func (w *engineWindow) SetMouseMoveCallback(callback func(x, y float32)) {
	w.onMouseMove = callback
}

func (w *engineWindow) Title() string {
	return w.title
}

func (w *engineWindow) SetTitle(title string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pendingTitle = &title
}

// takeTitle returns the pending title, if any, and clears it.
func (w *engineWindow) takeTitle() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pendingTitle == nil {
		return "", false
	}
	title := *w.pendingTitle
	w.pendingTitle = nil
	return title, true
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) IsRunning() bool {
	return !w.closeRequested.Load() && platformIsRunningCheck(w)
}

func (w *engineWindow) RequestClose() {
	w.closeRequested.Store(true)
}

func (w *engineWindow) Close() error {
	w.closeRequested.Store(true)
	return platformCloseWindow(w)
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		if !platformProcessMessages(w) {
			break
		}
		if title, ok := w.takeTitle(); ok {
			platformSetTitle(w, title)
		}
		runtime.Gosched()
	}
}

// resized records a new size. A zero framebuffer (a minimized window) is recorded but not
// reported.
func (w *engineWindow) resized(width, height, cursorHeight int) {
	w.mu.Lock()
	w.width, w.height, w.cursorHeight = width, height, cursorHeight
	w.mu.Unlock()
	if w.onResize != nil && width > 0 && height > 0 {
		w.onResize(width, height)
	}
}

func (w *engineWindow) Width() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width
}

func (w *engineWindow) Height() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.height
}

func (w *engineWindow) CursorHeight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cursorHeight
}

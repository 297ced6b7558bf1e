package orchestrator

import (
	"errors"
	"strings"
)

// ErrSurfaceOutOfMemory is returned by Frame when the surface cannot allocate a texture. The
// render loop must stop.
var ErrSurfaceOutOfMemory = errors.New("orchestrator: surface out of memory")

// SurfaceAction is what the render loop does about a failed surface acquisition.
type SurfaceAction int

const (
	// SurfaceSkip logs the error and skips the frame.
	SurfaceSkip SurfaceAction = iota
	// SurfaceReconfigure resizes every size-dependent resource and skips the frame.
	SurfaceReconfigure
	// SurfaceFatal stops the render loop.
	SurfaceFatal
)

func (a SurfaceAction) String() string {
	switch a {
	case SurfaceReconfigure:
		return "reconfigure"
	case SurfaceFatal:
		return "fatal"
	default:
		return "skip"
	}
}

// ClassifySurfaceError maps an error from acquiring the swapchain texture to the action the
// render loop takes. The wgpu bindings report the surface status in the error text, so the
// status names are matched case-insensitively.
//
// Parameters:
//   - err: the error returned by renderer.BeginFrame
//
// Returns:
//   - SurfaceAction: SurfaceReconfigure for lost or outdated surfaces, SurfaceFatal for out of
//     memory, SurfaceSkip for everything else
func ClassifySurfaceError(err error) SurfaceAction {
	if err == nil {
		return SurfaceSkip
	}
	if errors.Is(err, ErrSurfaceOutOfMemory) {
		return SurfaceFatal
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "outofmemory"), strings.Contains(msg, "out of memory"):
		return SurfaceFatal
	case strings.Contains(msg, "outdated"), strings.Contains(msg, "lost"):
		return SurfaceReconfigure
	default:
		return SurfaceSkip
	}
}

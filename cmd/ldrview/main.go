// Command ldrview shows an LDraw model with GPU occlusion culling.
//
// Usage:
//
//	ldrview <ldraw-dir> <model-file> [flags]
package main

import (
	"os"
	"runtime"
)

// GLFW requires window creation and event polling on the main thread.
func init() {
	runtime.LockOSThread()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

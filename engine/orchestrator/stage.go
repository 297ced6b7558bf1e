package orchestrator

import "fmt"

// Stage is a step of the frame state machine. A frame runs the stages strictly in declaration
// order; StageIdle is the state before the first stage of a frame.
type Stage int

const (
	StageIdle Stage = iota
	// StageSetVisible compacts the commands of the instances visible last frame.
	StageSetVisible
	// StageDrawPreviouslyVisible draws them, clearing color and depth.
	StageDrawPreviouslyVisible
	// StageBuildDepthPyramid reduces the depth written by the first draw.
	StageBuildDepthPyramid
	// StageCull tests every instance against the frustum and the pyramid.
	StageCull
	// StageSetNewVisible compacts the commands of the instances that just became visible.
	StageSetNewVisible
	// StageDrawNewlyVisible draws them on top of the first draw.
	StageDrawNewlyVisible
	// StagePresent submits and presents the frame.
	StagePresent
)

var stageNames = [...]string{
	StageIdle:                  "Idle",
	StageSetVisible:            "SetVisibility(visible)",
	StageDrawPreviouslyVisible: "DrawPreviouslyVisible",
	StageBuildDepthPyramid:     "BuildDepthPyramid",
	StageCull:                  "CullingEngine",
	StageSetNewVisible:         "SetVisibility(new_visible)",
	StageDrawNewlyVisible:      "DrawNewlyVisible",
	StagePresent:               "Present",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// Next returns the stage that follows s in a frame. StagePresent wraps to StageIdle.
func (s Stage) Next() Stage {
	if s >= StagePresent || s < 0 {
		return StageIdle
	}
	return s + 1
}

// pkg/core/pose.go
package core

import "time"

// Pose is the simulated drone state.
type Pose struct {
	X              float64    `json:"x"`
	Y              float64    `json:"y"`
	Z              float64    `json:"z"`
	HeadingDegrees float64    `json:"headingDegrees"`
	Light          LightColor `json:"lightColor"`
	Flying         bool       `json:"flying"`
}

// GroundPose is the pose at the start of every run.
func GroundPose() Pose {
	return Pose{Light: LightOff}
}

// PathPoint is one visited horizontal position.
type PathPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RunState is the simulator state machine position.
type RunState string

const (
	RunIdle      RunState = "idle"
	RunRunning   RunState = "running"
	RunCancelled RunState = "cancelled"
)

// Snapshot is a read-only copy of simulator state handed to renderers.
type Snapshot struct {
	RunID            string      `json:"runId"`
	State            RunState    `json:"state"`
	Frame            uint        `json:"frame"`
	Elapsed          float64     `json:"elapsed"`
	InstructionIndex int         `json:"instructionIndex"`
	Pose                         // x, y, z, heading, light, flying
	OutOfBounds      bool        `json:"outOfBounds"`
	PathHistory      []PathPoint `json:"pathHistory"`
	Time             time.Time   `json:"time"`
}

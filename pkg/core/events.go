// pkg/core/events.go
package core

import "time"

// RunEventType classifies lifecycle and notification events of a run.
type RunEventType string

const (
	EventRunStarted         RunEventType = "run_started"
	EventInstructionStarted RunEventType = "instruction_started"
	EventOutOfBounds        RunEventType = "out_of_bounds"
	EventRunFinished        RunEventType = "run_finished"
	EventRunCancelled       RunEventType = "run_cancelled"
)

// OutOfBoundsMessage is the notification text shown when the drone first
// leaves the flight area.
const OutOfBoundsMessage = "Drone left the flight area!"

// RunEvent is emitted by the simulator at instruction boundaries and on
// notifications.
type RunEvent struct {
	RunID            string
	Type             RunEventType
	Time             time.Time
	Elapsed          float64
	InstructionIndex int
	Instruction      string
	Message          string
	Pose             Pose
}

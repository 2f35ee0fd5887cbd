// pkg/core/mission.go
package core

import "time"

// Run describes one simulation of a compiled program.
type Run struct {
	ID               string        `json:"runId"`
	ProgramName      string        `json:"programName"`
	Fingerprint      uint64        `json:"fingerprint"`
	StartTime        time.Time     `json:"startTime"`
	GridSize         float64       `json:"gridSize"`
	InstructionCount int           `json:"instructionCount"`
	Instructions     []Instruction `json:"-"`
}

// RunSummary is recorded when a run ends.
type RunSummary struct {
	RunID             string      `json:"runId"`
	State             RunState    `json:"state"`
	EndTime           time.Time   `json:"endTime"`
	FinalPose         Pose        `json:"finalPose"`
	SimulatedSeconds  float64     `json:"simulatedSeconds"`
	Frames            uint        `json:"frames"`
	DistanceFlown     float64     `json:"distanceFlown"`
	MaxAltitude       float64     `json:"maxAltitude"`
	LeftFlightArea    bool        `json:"leftFlightArea"`
	InstructionsFlown int         `json:"instructionsFlown"`
	Path              []PathPoint `json:"path"`
}

// UploadMetadata describes an exported run file.
type UploadMetadata struct {
	RunID            string
	ProgramName      string
	Fingerprint      string
	StartTime        time.Time
	DurationSeconds  float64
	InstructionCount int
	LeftFlightArea   bool
}

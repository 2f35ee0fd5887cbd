// Package streaming defines the envelopes a live rendering surface receives
// over WebSocket.
package streaming

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/skyblocks/flightdeck/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeRunStarted = "run_started"
	TypeSnapshot   = "snapshot"
	TypeEvent      = "event"
	TypeRunEnded   = "run_ended"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
	// RunID is set when the ack concerns a run.
	RunID string `json:"runId,omitempty"`
}

// RunStartedPayload announces a run and its instruction sequence.
type RunStartedPayload struct {
	RunID        string                   `json:"runId"`
	ProgramName  string                   `json:"programName"`
	Fingerprint  string                   `json:"fingerprint"`
	StartTime    time.Time                `json:"startTime"`
	GridSize     float64                  `json:"gridSize"`
	Instructions []core.InstructionRecord `json:"instructions"`
}

// EventPayload is a run lifecycle event or notification.
type EventPayload struct {
	RunID            string            `json:"runId"`
	Type             core.RunEventType `json:"type"`
	Time             time.Time         `json:"time"`
	Elapsed          float64           `json:"elapsed"`
	InstructionIndex int               `json:"instructionIndex"`
	Instruction      string            `json:"instruction,omitempty"`
	Message          string            `json:"message,omitempty"`
	Pose             core.Pose         `json:"pose"`
}

// SnapshotPayload is one preview frame. Path carries only the points added
// since the previous frame the surface received: PathFrom is the index of
// Path[0] in the run's full path history, so the surface truncates its copy
// to PathFrom and appends Path.
type SnapshotPayload struct {
	RunID            string           `json:"runId"`
	State            core.RunState    `json:"state"`
	Frame            uint             `json:"frame"`
	Elapsed          float64          `json:"elapsed"`
	InstructionIndex int              `json:"instructionIndex"`
	Pose             core.Pose        `json:"pose"`
	OutOfBounds      bool             `json:"outOfBounds"`
	PathFrom         int              `json:"pathFrom"`
	Path             []core.PathPoint `json:"path"`
	Time             time.Time        `json:"time"`
}

// NewSnapshot builds the snapshot payload for s, whose path points before
// index sent were already delivered.
func NewSnapshot(s core.Snapshot, sent int) SnapshotPayload {
	sent = min(max(sent, 0), len(s.PathHistory))
	return SnapshotPayload{
		RunID:            s.RunID,
		State:            s.State,
		Frame:            s.Frame,
		Elapsed:          s.Elapsed,
		InstructionIndex: s.InstructionIndex,
		Pose:             s.Pose,
		OutOfBounds:      s.OutOfBounds,
		PathFrom:         sent,
		Path:             s.PathHistory[sent:],
		Time:             s.Time,
	}
}

// RunEndedPayload closes a run.
type RunEndedPayload struct {
	RunID             string           `json:"runId"`
	State             core.RunState    `json:"state"`
	EndTime           time.Time        `json:"endTime"`
	FinalPose         core.Pose        `json:"finalPose"`
	SimulatedSeconds  float64          `json:"simulatedSeconds"`
	Frames            uint             `json:"frames"`
	DistanceFlown     float64          `json:"distanceFlown"`
	MaxAltitude       float64          `json:"maxAltitude"`
	LeftFlightArea    bool             `json:"leftFlightArea"`
	InstructionsFlown int              `json:"instructionsFlown"`
	Path              []core.PathPoint `json:"path"`
}

// NewRunStarted builds the run_started payload.
func NewRunStarted(run core.Run) RunStartedPayload {
	return RunStartedPayload{
		RunID:        run.ID,
		ProgramName:  run.ProgramName,
		Fingerprint:  fmt.Sprintf("%016x", run.Fingerprint),
		StartTime:    run.StartTime,
		GridSize:     run.GridSize,
		Instructions: core.Records(run.Instructions),
	}
}

// NewEvent builds the event payload.
func NewEvent(e core.RunEvent) EventPayload {
	return EventPayload{
		RunID:            e.RunID,
		Type:             e.Type,
		Time:             e.Time,
		Elapsed:          e.Elapsed,
		InstructionIndex: e.InstructionIndex,
		Instruction:      e.Instruction,
		Message:          e.Message,
		Pose:             e.Pose,
	}
}

// NewRunEnded builds the run_ended payload.
func NewRunEnded(s core.RunSummary) RunEndedPayload {
	return RunEndedPayload{
		RunID:             s.RunID,
		State:             s.State,
		EndTime:           s.EndTime,
		FinalPose:         s.FinalPose,
		SimulatedSeconds:  s.SimulatedSeconds,
		Frames:            s.Frames,
		DistanceFlown:     s.DistanceFlown,
		MaxAltitude:       s.MaxAltitude,
		LeftFlightArea:    s.LeftFlightArea,
		InstructionsFlown: s.InstructionsFlown,
		Path:              s.Path,
	}
}

// Marshal builds a JSON-encoded Envelope from a message type and payload.
func Marshal(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

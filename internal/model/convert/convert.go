package convert

import (
	"encoding/json"
	"fmt"

	"github.com/skyblocks/flightdeck/internal/model"
	"github.com/skyblocks/flightdeck/pkg/core"
)

// ProgramToCore decodes the stored instruction sequence.
func ProgramToCore(p model.CompiledProgram) ([]core.Instruction, error) {
	var records []core.InstructionRecord
	if err := json.Unmarshal(p.Instructions, &records); err != nil {
		return nil, fmt.Errorf("failed to decode program %s: %w", p.Fingerprint, err)
	}
	return core.FromRecords(records)
}

// FlightRunToSummary converts a finished GORM FlightRun to a core.RunSummary.
// The path history is not restored; it is only stored as lon/lat.
func FlightRunToSummary(r model.FlightRun) core.RunSummary {
	s := core.RunSummary{
		RunID:             r.RunID,
		State:             core.RunState(r.State),
		Frames:            r.Frames,
		SimulatedSeconds:  r.SimulatedSeconds,
		DistanceFlown:     r.DistanceFlown,
		MaxAltitude:       r.MaxAltitude,
		LeftFlightArea:    r.LeftFlightArea,
		InstructionsFlown: r.InstructionsFlown,
	}
	if r.EndTime != nil {
		s.EndTime = *r.EndTime
	}
	if len(r.FinalPose) > 0 {
		_ = json.Unmarshal(r.FinalPose, &s.FinalPose)
	}
	return s
}

// SampleToSnapshot converts a GORM FlightSample to a core.Snapshot without
// path history.
func SampleToSnapshot(s model.FlightSample, runID string) core.Snapshot {
	return core.Snapshot{
		RunID:            runID,
		State:            core.RunRunning,
		Frame:            s.Frame,
		Elapsed:          s.Elapsed,
		InstructionIndex: s.InstructionIndex,
		Pose: core.Pose{
			X:              s.X,
			Y:              s.Y,
			Z:              s.Altitude,
			HeadingDegrees: s.HeadingDegrees,
			Light:          core.LightColor(s.Light),
			Flying:         s.Flying,
		},
		OutOfBounds: s.OutOfBounds,
		Time:        s.Time,
	}
}

// EventToCore converts a GORM FlightEvent to a core.RunEvent.
func EventToCore(e model.FlightEvent, runID string) core.RunEvent {
	ev := core.RunEvent{
		RunID:            runID,
		Type:             core.RunEventType(e.Type),
		Time:             e.Time,
		Elapsed:          e.Elapsed,
		InstructionIndex: e.InstructionIndex,
		Instruction:      e.Instruction,
		Message:          e.Message,
	}
	if len(e.Pose) > 0 {
		_ = json.Unmarshal(e.Pose, &ev.Pose)
	}
	return ev
}

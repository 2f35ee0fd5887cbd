// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"fmt"

	"github.com/skyblocks/flightdeck/internal/geo"
	"github.com/skyblocks/flightdeck/internal/model"
	"github.com/skyblocks/flightdeck/pkg/core"
	"gorm.io/datatypes"
)

// FingerprintString is the hex form of a program fingerprint used as the
// database key.
func FingerprintString(fp uint64) string {
	return fmt.Sprintf("%016x", fp)
}

// toJSON marshals v for a JSON column, falling back to def on error.
func toJSON(v any, def string) datatypes.JSON {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return datatypes.JSON(def)
	}
	return datatypes.JSON(data)
}

// CoreToProgram converts the instructions of a run to a GORM CompiledProgram.
// warnings is stored as given.
func CoreToProgram(run core.Run, warnings any) model.CompiledProgram {
	return model.CompiledProgram{
		Fingerprint:      FingerprintString(run.Fingerprint),
		Name:             run.ProgramName,
		InstructionCount: len(run.Instructions),
		Instructions:     toJSON(core.Records(run.Instructions), "[]"),
		Warnings:         toJSON(warnings, "[]"),
	}
}

// CoreToFlightRun converts a starting run to a GORM FlightRun.
func CoreToFlightRun(run core.Run, proj *geo.Projector) model.FlightRun {
	return model.FlightRun{
		RunID:            run.ID,
		ProgramName:      run.ProgramName,
		StartTime:        run.StartTime,
		State:            string(core.RunRunning),
		GridSize:         run.GridSize,
		InstructionCount: run.InstructionCount,
		Origin:           proj.Origin(),
		FinalPose:        toJSON(core.GroundPose(), "{}"),
	}
}

// ApplySummary copies the end-of-run figures onto r.
func ApplySummary(r *model.FlightRun, s core.RunSummary, proj *geo.Projector) {
	end := s.EndTime
	r.EndTime = &end
	r.State = string(s.State)
	r.Frames = s.Frames
	r.SimulatedSeconds = s.SimulatedSeconds
	r.DistanceFlown = s.DistanceFlown
	r.MaxAltitude = s.MaxAltitude
	r.LeftFlightArea = s.LeftFlightArea
	r.InstructionsFlown = s.InstructionsFlown
	r.FinalPose = toJSON(s.FinalPose, "{}")
	r.Path = proj.LineString(s.Path).AsGeometry()
}

// CoreToSample converts a snapshot to a GORM FlightSample of run row runRowID.
func CoreToSample(s core.Snapshot, runRowID uint, proj *geo.Projector) model.FlightSample {
	return model.FlightSample{
		Time:             s.Time,
		FlightRunID:      runRowID,
		Frame:            s.Frame,
		Elapsed:          s.Elapsed,
		InstructionIndex: s.InstructionIndex,
		Position:         proj.Point(s.X, s.Y, s.Z),
		X:                s.X,
		Y:                s.Y,
		Altitude:         s.Z,
		HeadingDegrees:   s.HeadingDegrees,
		Light:            string(s.Light),
		Flying:           s.Flying,
		OutOfBounds:      s.OutOfBounds,
	}
}

// CoreToEvent converts a run event to a GORM FlightEvent of run row runRowID.
func CoreToEvent(e core.RunEvent, runRowID uint, proj *geo.Projector) model.FlightEvent {
	return model.FlightEvent{
		Time:             e.Time,
		FlightRunID:      runRowID,
		Type:             string(e.Type),
		Elapsed:          e.Elapsed,
		InstructionIndex: e.InstructionIndex,
		Instruction:      e.Instruction,
		Message:          e.Message,
		Position:         proj.PosePoint(e.Pose),
		Altitude:         e.Pose.Z,
		Pose:             toJSON(e.Pose, "{}"),
	}
}

package model

import (
	"errors"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&CompiledProgram{},
	&FlightRun{},
	&FlightSample{},
	&FlightEvent{},
}

////////////////////////
// PROGRAM MODELS
////////////////////////

// CompiledProgram is a validated, flattened program. Rows are shared by all
// runs of the same instruction sequence.
type CompiledProgram struct {
	gorm.Model
	Fingerprint      string         `json:"fingerprint" gorm:"size:16;uniqueIndex:idx_program_fingerprint"` // xxhash of the canonical instructions, hex
	Name             string         `json:"name" gorm:"size:127"`
	InstructionCount int            `json:"instructionCount"`
	Instructions     datatypes.JSON `json:"instructions"` // [{kind, ...fields}]
	Warnings         datatypes.JSON `json:"warnings"`
	Runs             []FlightRun    `gorm:"foreignkey:ProgramID"`
}

func (*CompiledProgram) TableName() string {
	return "compiled_programs"
}

// GetOrInsert loads the row with the same fingerprint, inserting p when
// none exists.
func (p *CompiledProgram) GetOrInsert(db *gorm.DB) (
	created bool,
	err error,
) {
	var existing CompiledProgram
	err = db.Where("fingerprint = ?", p.Fingerprint).First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = db.Create(p).Error
			return true, err
		}
		return false, err
	}
	*p = existing
	return false, nil
}

////////////////////////
// RECORDING MODELS
////////////////////////

// FlightRun is one simulation of a compiled program
type FlightRun struct {
	gorm.Model
	RunID            string          `json:"runId" gorm:"size:64;uniqueIndex:idx_flightrun_run_id"`
	ProgramID        *uint           `json:"programId" gorm:"index:idx_flightrun_program_id"`
	Program          CompiledProgram `gorm:"foreignkey:ProgramID"`
	ProgramName      string          `json:"programName" gorm:"size:127"`
	StartTime        time.Time       `json:"startTime" gorm:"index:idx_flightrun_start"`
	EndTime          *time.Time      `json:"endTime"`
	State            string          `json:"state" gorm:"size:16;default:running"`
	GridSize         float64         `json:"gridSize"`
	InstructionCount int             `json:"instructionCount"`
	Origin           geom.Point      `json:"origin"` // launch point, lon/lat

	// filled in when the run ends
	Frames            uint           `json:"frames"`
	SimulatedSeconds  float64        `json:"simulatedSeconds"`
	DistanceFlown     float64        `json:"distanceFlown"`
	MaxAltitude       float64        `json:"maxAltitude"`
	LeftFlightArea    bool           `json:"leftFlightArea" gorm:"default:false"`
	InstructionsFlown int            `json:"instructionsFlown"`
	FinalPose         datatypes.JSON `json:"finalPose"`
	Path              geom.Geometry  `json:"-"` // LineString of the path history, lon/lat

	Samples []FlightSample `gorm:"foreignkey:FlightRunID"`
	Events  []FlightEvent  `gorm:"foreignkey:FlightRunID"`
}

func (*FlightRun) TableName() string {
	return "flight_runs"
}

// FlightSample is the drone pose at one frame
type FlightSample struct {
	ID               uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time             time.Time `json:"time"`
	FlightRunID      uint      `json:"flightRunId" gorm:"index:idx_flightsample_run_id"`
	FlightRun        FlightRun `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:FlightRunID;"`
	Frame            uint      `json:"frame" gorm:"index:idx_flightsample_frame"`
	Elapsed          float64   `json:"elapsed"`
	InstructionIndex int       `json:"instructionIndex"`

	Position       geom.Point `json:"position"` // lon/lat
	X              float64    `json:"x"`        // local metres
	Y              float64    `json:"y"`
	Altitude       float64    `json:"altitude"`
	HeadingDegrees float64    `json:"headingDegrees"`
	Light          string     `json:"light" gorm:"size:16"`
	Flying         bool       `json:"flying" gorm:"default:false"`
	OutOfBounds    bool       `json:"outOfBounds" gorm:"default:false"`
}

func (*FlightSample) TableName() string {
	return "flight_samples"
}

// FlightEvent is a lifecycle event or notification of a run
type FlightEvent struct {
	ID               uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time             time.Time      `json:"time"`
	FlightRunID      uint           `json:"flightRunId" gorm:"index:idx_flightevent_run_id"`
	FlightRun        FlightRun      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:FlightRunID;"`
	Type             string         `json:"type" gorm:"size:32;index:idx_flightevent_type"`
	Elapsed          float64        `json:"elapsed"`
	InstructionIndex int            `json:"instructionIndex"`
	Instruction      string         `json:"instruction" gorm:"size:127"`
	Message          string         `json:"message" gorm:"size:255"`
	Position         geom.Point     `json:"position"` // lon/lat
	Altitude         float64        `json:"altitude"`
	Pose             datatypes.JSON `json:"pose"`
}

func (*FlightEvent) TableName() string {
	return "flight_events"
}

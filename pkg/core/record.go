// pkg/core/record.go
package core

import (
	"fmt"
)

// InstructionRecord is the flat JSON form of an instruction used by the
// run exports, the database and the live stream. Only the fields of the
// instruction's kind are set.
type InstructionRecord struct {
	Kind           Kind    `json:"kind"`
	Axis           Axis    `json:"axis,omitempty"`
	Direction      string  `json:"direction,omitempty"`
	DistanceMeters float64 `json:"distanceMeters,omitempty"`
	SpeedMps       float64 `json:"speedMps,omitempty"`
	Degrees        float64 `json:"degrees,omitempty"`
	Size           string  `json:"size,omitempty"`
	ClimbMeters    float64 `json:"climbMeters,omitempty"`
	Sideways       bool    `json:"sideways,omitempty"`
	Color          string  `json:"color,omitempty"`
	Duration       float64 `json:"duration"`
}

type recorder struct{ r InstructionRecord }

func (v *recorder) VisitLaunch(Launch) {}
func (v *recorder) VisitLand(Land)     {}

func (v *recorder) VisitTranslate(i Translate) {
	v.r.Axis = i.Axis
	v.r.DistanceMeters = i.DistanceMeters
	v.r.SpeedMps = i.SpeedMps
}

func (v *recorder) VisitChangeAltitude(i ChangeAltitude) {
	v.r.Direction = string(i.Direction)
	v.r.DistanceMeters = i.DistanceMeters
	v.r.SpeedMps = i.SpeedMps
}

func (v *recorder) VisitRotate(i Rotate) {
	v.r.Direction = string(i.Direction)
	v.r.Degrees = i.Degrees
}

func (v *recorder) VisitSpiral(i Spiral) {
	v.r.Size = string(i.Size)
	v.r.Direction = string(i.Direction)
	v.r.ClimbMeters = i.ClimbMeters
	v.r.Sideways = i.Sideways
}

func (v *recorder) VisitSetLight(i SetLight) {
	v.r.Color = string(i.Color)
}

// Record returns the flat form of i.
func Record(i Instruction) InstructionRecord {
	v := &recorder{r: InstructionRecord{Kind: i.Kind(), Duration: Duration(i)}}
	i.Accept(v)
	return v.r
}

// Records converts a sequence.
func Records(instrs []Instruction) []InstructionRecord {
	out := make([]InstructionRecord, len(instrs))
	for n, i := range instrs {
		out[n] = Record(i)
	}
	return out
}

// Instruction rebuilds the instruction, validating the enumerated fields.
func (r InstructionRecord) Instruction() (Instruction, error) {
	switch r.Kind {
	case KindLaunch:
		return Launch{}, nil
	case KindLand:
		return Land{}, nil
	case KindTranslate:
		if !r.Axis.Valid() {
			return nil, fmt.Errorf("invalid axis %q", r.Axis)
		}
		return Translate{Axis: r.Axis, DistanceMeters: r.DistanceMeters, SpeedMps: r.SpeedMps}, nil
	case KindChangeAltitude:
		d := VerticalDirection(r.Direction)
		if !d.Valid() {
			return nil, fmt.Errorf("invalid vertical direction %q", r.Direction)
		}
		return ChangeAltitude{Direction: d, DistanceMeters: r.DistanceMeters, SpeedMps: r.SpeedMps}, nil
	case KindRotate:
		d := RotationDirection(r.Direction)
		if !d.Valid() {
			return nil, fmt.Errorf("invalid rotation direction %q", r.Direction)
		}
		return Rotate{Direction: d, Degrees: r.Degrees}, nil
	case KindSpiral:
		d := RotationDirection(r.Direction)
		s := SpiralSize(r.Size)
		if !d.Valid() || !s.Valid() {
			return nil, fmt.Errorf("invalid spiral %q %q", r.Size, r.Direction)
		}
		return Spiral{Size: s, Direction: d, ClimbMeters: r.ClimbMeters, Sideways: r.Sideways}, nil
	case KindSetLight:
		c := LightColor(r.Color)
		if !c.Valid() {
			return nil, fmt.Errorf("invalid light color %q", r.Color)
		}
		return SetLight{Color: c}, nil
	}
	return nil, fmt.Errorf("unknown instruction kind %q", r.Kind)
}

// FromRecords rebuilds a sequence.
func FromRecords(records []InstructionRecord) ([]Instruction, error) {
	out := make([]Instruction, len(records))
	for n, r := range records {
		i, err := r.Instruction()
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", n, err)
		}
		out[n] = i
	}
	return out, nil
}

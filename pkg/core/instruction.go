// pkg/core/instruction.go
package core

import "fmt"

// Kind names an instruction variant. It is used for logging, storage and
// the canonical encoding; dispatch always goes through Visitor.
type Kind string

const (
	KindLaunch         Kind = "launch"
	KindLand           Kind = "land"
	KindTranslate      Kind = "translate"
	KindChangeAltitude Kind = "change_altitude"
	KindRotate         Kind = "rotate"
	KindSpiral         Kind = "spiral"
	KindSetLight       Kind = "set_light"
)

// Instruction is one flattened command unit. The set of implementations is
// closed: only the types in this file satisfy it.
type Instruction interface {
	Kind() Kind
	Accept(v Visitor)
	String() string
	instruction()
}

// Visitor has one method per instruction variant. Consumers implement it so
// that a new variant fails to compile until every consumer handles it.
type Visitor interface {
	VisitLaunch(Launch)
	VisitLand(Land)
	VisitTranslate(Translate)
	VisitChangeAltitude(ChangeAltitude)
	VisitRotate(Rotate)
	VisitSpiral(Spiral)
	VisitSetLight(SetLight)
}

// Launch arms the drone and climbs to LaunchAltitude.
type Launch struct{}

// Land descends to the ground and disarms.
type Land struct{}

// Translate moves along a body-frame axis.
type Translate struct {
	Axis           Axis
	DistanceMeters float64
	SpeedMps       float64
}

// ChangeAltitude climbs or descends vertically.
type ChangeAltitude struct {
	Direction      VerticalDirection
	DistanceMeters float64
	SpeedMps       float64
}

// Rotate turns in place.
type Rotate struct {
	Direction RotationDirection
	Degrees   float64
}

// Spiral flies one full turn while the radius grows from the size class's
// start radius to its end radius. Sideways spirals sweep the vertical plane.
type Spiral struct {
	Size        SpiralSize
	Direction   RotationDirection
	ClimbMeters float64
	Sideways    bool
}

// SetLight switches the LED deck colour.
type SetLight struct {
	Color LightColor
}

func (Launch) Kind() Kind         { return KindLaunch }
func (Land) Kind() Kind           { return KindLand }
func (Translate) Kind() Kind      { return KindTranslate }
func (ChangeAltitude) Kind() Kind { return KindChangeAltitude }
func (Rotate) Kind() Kind         { return KindRotate }
func (Spiral) Kind() Kind         { return KindSpiral }
func (SetLight) Kind() Kind       { return KindSetLight }

func (i Launch) Accept(v Visitor)         { v.VisitLaunch(i) }
func (i Land) Accept(v Visitor)           { v.VisitLand(i) }
func (i Translate) Accept(v Visitor)      { v.VisitTranslate(i) }
func (i ChangeAltitude) Accept(v Visitor) { v.VisitChangeAltitude(i) }
func (i Rotate) Accept(v Visitor)         { v.VisitRotate(i) }
func (i Spiral) Accept(v Visitor)         { v.VisitSpiral(i) }
func (i SetLight) Accept(v Visitor)       { v.VisitSetLight(i) }

func (Launch) instruction()         {}
func (Land) instruction()           {}
func (Translate) instruction()      {}
func (ChangeAltitude) instruction() {}
func (Rotate) instruction()         {}
func (Spiral) instruction()         {}
func (SetLight) instruction()       {}

func (Launch) String() string { return "launch" }
func (Land) String() string   { return "land" }

func (i Translate) String() string {
	return fmt.Sprintf("translate %s %gm @ %gm/s", i.Axis, i.DistanceMeters, i.SpeedMps)
}

func (i ChangeAltitude) String() string {
	return fmt.Sprintf("altitude %s %gm @ %gm/s", i.Direction, i.DistanceMeters, i.SpeedMps)
}

func (i Rotate) String() string {
	return fmt.Sprintf("rotate %s %g°", i.Direction, i.Degrees)
}

func (i Spiral) String() string {
	plane := "forward"
	if i.Sideways {
		plane = "sideways"
	}
	return fmt.Sprintf("spiral %s %s %s climb %gm", i.Size, i.Direction, plane, i.ClimbMeters)
}

func (i SetLight) String() string {
	return fmt.Sprintf("light %s", i.Color)
}

// IsSentinel reports whether the instruction is Launch or Land.
func IsSentinel(i Instruction) bool {
	k := i.Kind()
	return k == KindLaunch || k == KindLand
}

package compiler

import (
	"math"
	"strconv"

	"github.com/skyblocks/flightdeck/internal/program"
	"github.com/skyblocks/flightdeck/pkg/core"
)

// Dropdown option sets offered by the editor.
var (
	moveDistances     = []float64{0.5, 1.0, 1.5, 2.0, 2.5, 3.0}
	altitudeDistances = []float64{0.25, 0.5, 0.75, 1.0, 1.5, 2.0}
	rotateAngles      = []float64{45, 90, 135, 180, 270, 360}
	repeatCounts      = []float64{2, 3, 4, 5, 10}
	spiralClimbs      = []float64{0.0, 0.5, -0.5}
	speedValues       = []float64{0.2, 0.5, 1.0}
)

func oneOf(v float64, options []float64) bool {
	for _, o := range options {
		if math.Abs(v-o) < 1e-9 {
			return true
		}
	}
	return false
}

// fieldReader pulls validated dropdown values out of one node and keeps the
// first error.
type fieldReader struct {
	node program.Node
	path string
	err  *StructuralError
}

func (r *fieldReader) raw(name string) string {
	if r.err != nil {
		return ""
	}
	v, ok := r.node.Field(name)
	if !ok || v == "" {
		r.err = structural(CodeInvalidField, r.path, "%s block is missing %s", r.node.Kind(), name)
		return ""
	}
	return v
}

func (r *fieldReader) invalid(name, value string) {
	if r.err == nil {
		r.err = structural(CodeInvalidField, r.path, "%s: %q is not a valid %s", r.node.Kind(), value, name)
	}
}

func (r *fieldReader) number(name string, options []float64) float64 {
	s := r.raw(name)
	if r.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !oneOf(v, options) {
		r.invalid(name, s)
		return 0
	}
	return v
}

func (r *fieldReader) speed() float64 {
	s := r.raw(program.FieldSpeed)
	if r.err != nil {
		return 0
	}
	if v, err := core.SpeedClass(s).MetersPerSecond(); err == nil {
		return v
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !oneOf(v, speedValues) {
		r.invalid(program.FieldSpeed, s)
		return 0
	}
	return v
}

func (r *fieldReader) optionalBool(name string) bool {
	if r.err != nil {
		return false
	}
	s, ok := r.node.Field(name)
	if !ok || s == "" {
		return false
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		r.invalid(name, s)
	}
	return v
}

// leaf converts a non-loop, non-sentinel block into its instruction.
func leaf(n program.Node, path string) (core.Instruction, *StructuralError) {
	r := &fieldReader{node: n, path: path}
	var in core.Instruction

	switch n.Kind() {
	case program.KindMove, program.KindRight:
		axis := core.AxisRight
		if n.Kind() == program.KindMove {
			axis = core.Axis(r.raw(program.FieldDirection))
			if r.err == nil && !axis.Valid() {
				r.invalid(program.FieldDirection, string(axis))
			}
		}
		in = core.Translate{
			Axis:           axis,
			DistanceMeters: r.number(program.FieldDistance, moveDistances),
			SpeedMps:       r.speed(),
		}
	case program.KindAltitude:
		dir := core.VerticalDirection(r.raw(program.FieldDirection))
		if r.err == nil && !dir.Valid() {
			r.invalid(program.FieldDirection, string(dir))
		}
		in = core.ChangeAltitude{
			Direction:      dir,
			DistanceMeters: r.number(program.FieldDistance, altitudeDistances),
			SpeedMps:       r.speed(),
		}
	case program.KindRotate:
		dir := core.RotationDirection(r.raw(program.FieldDirection))
		if r.err == nil && !dir.Valid() {
			r.invalid(program.FieldDirection, string(dir))
		}
		in = core.Rotate{Direction: dir, Degrees: r.number(program.FieldAngle, rotateAngles)}
	case program.KindSpiral:
		size := core.SpiralSize(r.raw(program.FieldSize))
		if r.err == nil && !size.Valid() {
			r.invalid(program.FieldSize, string(size))
		}
		dir := core.RotationDirection(r.raw(program.FieldDirection))
		if r.err == nil && !dir.Valid() {
			r.invalid(program.FieldDirection, string(dir))
		}
		in = core.Spiral{
			Size:        size,
			Direction:   dir,
			ClimbMeters: r.number(program.FieldClimb, spiralClimbs),
			Sideways:    r.optionalBool(program.FieldSideways),
		}
	case program.KindLight:
		color := core.LightColor(r.raw(program.FieldColor))
		if r.err == nil && !color.Valid() {
			r.invalid(program.FieldColor, string(color))
		}
		in = core.SetLight{Color: color}
	default:
		return nil, structural(CodeUnknownBlock, path, "unknown block type %q", n.Kind())
	}

	if r.err != nil {
		return nil, r.err
	}
	return in, nil
}

// repeatCount reads a loop's TIMES field.
func repeatCount(n program.Node, path string) (int, *StructuralError) {
	r := &fieldReader{node: n, path: path}
	v := r.number(program.FieldTimes, repeatCounts)
	if r.err != nil {
		return 0, r.err
	}
	return int(v), nil
}

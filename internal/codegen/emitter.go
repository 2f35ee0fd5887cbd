// Package codegen turns a flattened instruction sequence into a flight
// script for the drone's high-level commander.
package codegen

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/skyblocks/flightdeck/internal/util"
	"github.com/skyblocks/flightdeck/pkg/core"
)

const indent = "    "

// Vec3 is a displacement in world metres.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Output is the generated script plus the fold's final state.
type Output struct {
	Code                string   `json:"code"`
	Fragments           []string `json:"-"`
	FinalHeadingDegrees float64  `json:"finalHeadingDegrees"`
	Displacement        Vec3     `json:"displacement"`
	TotalDuration       float64  `json:"totalDurationSeconds"`
	// ScriptDuration sums the sleeps as written, at their printed precision.
	// It drifts from TotalDuration by at most 0.005 s per instruction.
	ScriptDuration      float64  `json:"scriptDurationSeconds"`
}

// Emitter renders instruction sequences into a template. It holds no state
// between calls.
type Emitter struct {
	tmpl Template
	uri  string
}

func NewEmitter(tmpl Template, uri string) *Emitter {
	if uri == "" {
		uri = DefaultConnectionURI
	}
	return &Emitter{tmpl: tmpl, uri: uri}
}

// Emit generates the script for instrs.
func (e *Emitter) Emit(instrs []core.Instruction) Output {
	frags, final := Fold(instrs)
	return Output{
		Code:                e.tmpl.Render(strings.Join(frags, ""), e.uri),
		Fragments:           frags,
		FinalHeadingDegrees: final.Pose.HeadingDegrees,
		Displacement:        Vec3{X: final.Pose.X, Y: final.Pose.Y, Z: final.Pose.Z},
		TotalDuration:       final.Elapsed,
		ScriptDuration:      final.ScriptElapsed,
	}
}

// FoldState is the accumulator threaded through the sequence. The pose's
// heading is the running yaw every move is projected with.
type FoldState struct {
	Pose          core.Pose
	Elapsed       float64
	ScriptElapsed float64
}

// Fold produces one fragment per instruction, in order.
func Fold(instrs []core.Instruction) ([]string, FoldState) {
	s := FoldState{Pose: core.GroundPose()}
	frags := make([]string, 0, len(instrs))
	for _, in := range instrs {
		var frag string
		s, frag = s.Step(in)
		frags = append(frags, frag)
	}
	return frags, s
}

// Step emits the fragment for in and returns the advanced state.
func (s FoldState) Step(in core.Instruction) (FoldState, string) {
	w := fragmentWriter{heading: s.Pose.HeadingDegrees}
	w.line("# %s", in)
	in.Accept(&w)
	sleep := seconds(core.Duration(in))
	w.line("time.sleep(%s)", sleep)

	return FoldState{
		Pose:          core.TargetPose(s.Pose, in),
		Elapsed:       s.Elapsed + core.Duration(in),
		ScriptElapsed: s.ScriptElapsed + printed(sleep),
	}, w.b.String()
}

func seconds(v float64) string { return util.FormatFixed(v, 2) }

// printed reads back a number formatted by seconds.
func printed(text string) float64 {
	v, _ := strconv.ParseFloat(text, 64)
	return v
}
func meters(v float64) string  { return util.FormatFixed(v, 4) }
func radians(v float64) string { return util.FormatFixed(v, 4) }

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

type fragmentWriter struct {
	heading float64
	b       strings.Builder
}

func (w *fragmentWriter) line(format string, args ...any) {
	w.b.WriteString(indent)
	fmt.Fprintf(&w.b, format, args...)
	w.b.WriteByte('\n')
}

func (w *fragmentWriter) VisitLaunch(core.Launch) {
	w.line("commander.takeoff(%s, %s)",
		meters(core.LaunchAltitude), seconds(core.LaunchClimbSeconds))
}

func (w *fragmentWriter) VisitLand(core.Land) {
	w.line("commander.land(0.0, %s)", seconds(core.LandDescentSeconds))
}

func (w *fragmentWriter) VisitTranslate(i core.Translate) {
	bx, by := core.BodyOffset(i.Axis, i.DistanceMeters)
	wx, wy := core.BodyToWorld(bx, by, w.heading)
	w.line("commander.go_to(%s, %s, 0.0, 0.0, %s, relative=True)",
		meters(wx), meters(wy), seconds(core.MotionDuration(i)))
}

func (w *fragmentWriter) VisitChangeAltitude(i core.ChangeAltitude) {
	dz := i.DistanceMeters
	if i.Direction == core.Down {
		dz = -dz
	}
	w.line("commander.go_to(0.0, 0.0, %s, 0.0, %s, relative=True)",
		meters(dz), seconds(core.MotionDuration(i)))
}

func (w *fragmentWriter) VisitRotate(i core.Rotate) {
	delta := core.HeadingDelta(i)
	w.line("commander.go_to(0.0, 0.0, 0.0, %s, %s, relative=True)",
		radians(toRadians(delta)), seconds(core.MotionDuration(i)))
	w.line("current_yaw = %s", radians(toRadians(w.heading+delta)))
}

func (w *fragmentWriter) VisitSpiral(i core.Spiral) {
	r0, r1 := core.SpiralRadii(i.Size)
	w.line("commander.spiral(%s, %s, %s, %s, %s, sideways=%s, clockwise=%s)",
		radians(core.SpiralSweepRadians), meters(r0), meters(r1), meters(i.ClimbMeters),
		seconds(core.MotionDuration(i)), pyBool(i.Sideways), pyBool(i.Direction == core.Clockwise))
}

func (w *fragmentWriter) VisitSetLight(i core.SetLight) {
	w.line("if led_param:")
	w.line("%scf.param.set_value(led_param, 0x%08X)", indent, i.Color.WRGB())
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

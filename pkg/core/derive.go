// pkg/core/derive.go
package core

import "math"

// Timing and geometry constants shared by code generation and simulation.
const (
	LaunchAltitude      = 1.0
	LaunchClimbSeconds  = 2.0
	LaunchSettleSeconds = 3.0
	LandDescentSeconds  = 2.0
	LightSettleSeconds  = 0.01

	RotationRateDegreesPerSecond = 90.0

	SpiralSweepRadians    = 2 * math.Pi
	SpiralTangentialSpeed = 0.5
)

var spiralRadii = map[SpiralSize][2]float64{
	SpiralSmall:  {0.2, 0.5},
	SpiralMedium: {0.3, 0.8},
	SpiralBig:    {0.5, 1.2},
}

// SpiralRadii returns the start and end radius in metres for a size class.
func SpiralRadii(size SpiralSize) (start, end float64) {
	r := spiralRadii[size]
	return r[0], r[1]
}

// SpiralDuration is the time to fly one full turn at the average radius.
func SpiralDuration(size SpiralSize) float64 {
	r0, r1 := SpiralRadii(size)
	return (r0 + r1) / 2 * SpiralSweepRadians / SpiralTangentialSpeed
}

// HeadingDelta is the signed heading change of a rotation in degrees.
func HeadingDelta(r Rotate) float64 {
	return r.Direction.Sign() * r.Degrees
}

// BodyOffset returns the body-frame (x forward, y left) offset of a move.
func BodyOffset(axis Axis, distance float64) (bx, by float64) {
	switch axis {
	case AxisForward:
		return distance, 0
	case AxisBack:
		return -distance, 0
	case AxisLeft:
		return 0, distance
	case AxisRight:
		return 0, -distance
	}
	return 0, 0
}

// BodyToWorld rotates a body-frame offset into the world frame.
func BodyToWorld(bx, by, headingDegrees float64) (wx, wy float64) {
	h := headingDegrees * math.Pi / 180
	sin, cos := math.Sincos(h)
	return bx*cos - by*sin, bx*sin + by*cos
}

// Ease is the symmetric quadratic ease-in-out curve. p is clamped to [0,1].
func Ease(p float64) float64 {
	switch {
	case p <= 0:
		return 0
	case p >= 1:
		return 1
	case p < 0.5:
		return 2 * p * p
	default:
		q := 1 - p
		return 1 - 2*q*q
	}
}

// SpiralAt returns the swept angle (radians, unsigned) and current radius at
// the eased progress.
func SpiralAt(size SpiralSize, eased float64) (theta, radius float64) {
	r0, r1 := SpiralRadii(size)
	return SpiralSweepRadians * eased, r0 + (r1-r0)*eased
}

// SpiralOffset returns the world-frame displacement from the spiral's start
// position at the eased progress. headingDegrees is the heading at spiral
// start; it does not change while spiralling.
func SpiralOffset(s Spiral, headingDegrees, eased float64) (dx, dy, dz float64) {
	r0, _ := SpiralRadii(s.Size)
	theta, r := SpiralAt(s.Size, eased)
	sin, cos := math.Sincos(theta * s.Direction.Sign())
	along := r*cos - r0
	across := r * sin

	dz = s.ClimbMeters * eased
	if s.Sideways {
		dx, dy = BodyToWorld(0, along, headingDegrees)
		return dx, dy, dz + across
	}
	dx, dy = BodyToWorld(along, across, headingDegrees)
	return dx, dy, dz
}

// MotionDuration is the time over which the instruction moves the drone.
func MotionDuration(i Instruction) float64 {
	var t timing
	i.Accept(&t)
	return t.motion
}

// Duration is the full blocking delay of the instruction, motion included.
func Duration(i Instruction) float64 {
	var t timing
	i.Accept(&t)
	return t.total
}

type timing struct {
	motion, total float64
}

func (t *timing) VisitLaunch(Launch) {
	t.motion, t.total = LaunchClimbSeconds, LaunchSettleSeconds
}

func (t *timing) VisitLand(Land) {
	t.motion, t.total = LandDescentSeconds, LandDescentSeconds
}

func (t *timing) VisitTranslate(i Translate) {
	t.motion = i.DistanceMeters / i.SpeedMps
	t.total = t.motion
}

func (t *timing) VisitChangeAltitude(i ChangeAltitude) {
	t.motion = i.DistanceMeters / i.SpeedMps
	t.total = t.motion
}

func (t *timing) VisitRotate(i Rotate) {
	t.motion = i.Degrees / RotationRateDegreesPerSecond
	t.total = t.motion
}

func (t *timing) VisitSpiral(i Spiral) {
	t.motion = SpiralDuration(i.Size)
	t.total = t.motion
}

func (t *timing) VisitSetLight(SetLight) {
	t.motion, t.total = 0, LightSettleSeconds
}

// TargetPose is the pose after the instruction completes when it starts
// from the given pose.
func TargetPose(from Pose, i Instruction) Pose {
	t := target{pose: from}
	i.Accept(&t)
	return t.pose
}

type target struct {
	pose Pose
}

func (t *target) VisitLaunch(Launch) {
	t.pose.Z = LaunchAltitude
	t.pose.Flying = true
}

func (t *target) VisitLand(Land) {
	t.pose.Z = 0
	t.pose.Flying = false
}

func (t *target) VisitTranslate(i Translate) {
	bx, by := BodyOffset(i.Axis, i.DistanceMeters)
	wx, wy := BodyToWorld(bx, by, t.pose.HeadingDegrees)
	t.pose.X += wx
	t.pose.Y += wy
}

func (t *target) VisitChangeAltitude(i ChangeAltitude) {
	if i.Direction == Down {
		t.pose.Z -= i.DistanceMeters
		return
	}
	t.pose.Z += i.DistanceMeters
}

func (t *target) VisitRotate(i Rotate) {
	t.pose.HeadingDegrees += HeadingDelta(i)
}

func (t *target) VisitSpiral(i Spiral) {
	dx, dy, dz := SpiralOffset(i, t.pose.HeadingDegrees, 1)
	t.pose.X += dx
	t.pose.Y += dy
	t.pose.Z += dz
}

func (t *target) VisitSetLight(i SetLight) {
	t.pose.Light = i.Color
}

package sim

import "github.com/skyblocks/flightdeck/pkg/core"

// interpolate returns the pose at progress p of in, started from start.
// Linear quantities are blended between start and the shared target pose
// with the eased progress; spirals follow their parametric path.
func interpolate(start core.Pose, in core.Instruction, p float64) core.Pose {
	a := animator{start: start, target: core.TargetPose(start, in), eased: core.Ease(p)}
	a.pose = start
	in.Accept(&a)
	return a.pose
}

type animator struct {
	start, target core.Pose
	eased         float64
	pose          core.Pose
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func (a *animator) VisitLaunch(core.Launch) {
	a.pose.Flying = true
	a.pose.Z = lerp(a.start.Z, a.target.Z, a.eased)
}

// Landing keeps the drone flying until the descent completes.
func (a *animator) VisitLand(core.Land) {
	a.pose.Z = lerp(a.start.Z, a.target.Z, a.eased)
}

func (a *animator) VisitTranslate(core.Translate) {
	a.pose.X = lerp(a.start.X, a.target.X, a.eased)
	a.pose.Y = lerp(a.start.Y, a.target.Y, a.eased)
}

func (a *animator) VisitChangeAltitude(core.ChangeAltitude) {
	a.pose.Z = lerp(a.start.Z, a.target.Z, a.eased)
}

func (a *animator) VisitRotate(core.Rotate) {
	a.pose.HeadingDegrees = lerp(a.start.HeadingDegrees, a.target.HeadingDegrees, a.eased)
}

func (a *animator) VisitSpiral(i core.Spiral) {
	dx, dy, dz := core.SpiralOffset(i, a.start.HeadingDegrees, a.eased)
	a.pose.X = a.start.X + dx
	a.pose.Y = a.start.Y + dy
	a.pose.Z = a.start.Z + dz
}

func (a *animator) VisitSetLight(i core.SetLight) {
	a.pose.Light = i.Color
}

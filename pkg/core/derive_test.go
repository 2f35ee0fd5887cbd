package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

const eps = 1e-9

func TestEase(t *testing.T) {
	assert.Equal(t, 0.0, Ease(0))
	assert.Equal(t, 1.0, Ease(1))
	assert.InDelta(t, 0.5, Ease(0.5), eps)
	assert.InDelta(t, 0.125, Ease(0.25), eps)
	assert.InDelta(t, 0.875, Ease(0.75), eps)
	assert.Equal(t, 0.0, Ease(-0.3))
	assert.Equal(t, 1.0, Ease(1.7))

	// symmetric around the midpoint
	for _, p := range []float64{0.1, 0.2, 0.33, 0.45} {
		assert.InDelta(t, 1-Ease(p), Ease(1-p), eps)
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		name   string
		in     Instruction
		motion float64
		total  float64
	}{
		{"launch", Launch{}, 2.0, 3.0},
		{"land", Land{}, 2.0, 2.0},
		{"translate", Translate{Axis: AxisForward, DistanceMeters: 1.5, SpeedMps: 0.5}, 3.0, 3.0},
		{"altitude", ChangeAltitude{Direction: Up, DistanceMeters: 0.25, SpeedMps: 1.0}, 0.25, 0.25},
		{"rotate", Rotate{Direction: Clockwise, Degrees: 135}, 1.5, 1.5},
		{"light", SetLight{Color: LightRed}, 0, 0.01},
		{"spiral medium", Spiral{Size: SpiralMedium}, 0.55 * 2 * math.Pi / 0.5, 0.55 * 2 * math.Pi / 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.motion, MotionDuration(tt.in), eps)
			assert.InDelta(t, tt.total, Duration(tt.in), eps)
		})
	}
}

func TestSpeedClass(t *testing.T) {
	v, err := SpeedFast.MetersPerSecond()
	assert.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = SpeedSlow.MetersPerSecond()
	assert.NoError(t, err)
	assert.Equal(t, 0.2, v)

	_, err = SpeedClass("ludicrous").MetersPerSecond()
	assert.Error(t, err)
}

func TestBodyToWorld(t *testing.T) {
	tests := []struct {
		name    string
		axis    Axis
		heading float64
		wantX   float64
		wantY   float64
	}{
		{"forward at 0", AxisForward, 0, 1, 0},
		{"left at 0", AxisLeft, 0, 0, 1},
		{"right at 0", AxisRight, 0, 0, -1},
		{"back at 0", AxisBack, 0, -1, 0},
		{"forward at 90", AxisForward, 90, 0, 1},
		{"forward at -90", AxisForward, -90, 0, -1},
		{"left at 180", AxisLeft, 180, 0, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bx, by := BodyOffset(tt.axis, 1)
			x, y := BodyToWorld(bx, by, tt.heading)
			assert.InDelta(t, tt.wantX, x, eps)
			assert.InDelta(t, tt.wantY, y, eps)
		})
	}
}

func TestTargetPose_HeadingAccumulates(t *testing.T) {
	p := GroundPose()
	p = TargetPose(p, Launch{})
	p = TargetPose(p, Rotate{Direction: Clockwise, Degrees: 90})
	assert.InDelta(t, -90, p.HeadingDegrees, eps)

	p = TargetPose(p, Translate{Axis: AxisForward, DistanceMeters: 1.0, SpeedMps: 0.5})
	assert.InDelta(t, 0, p.X, eps)
	assert.InDelta(t, -1.0, p.Y, eps)
	assert.InDelta(t, LaunchAltitude, p.Z, eps)
	assert.True(t, p.Flying)
}

func TestTargetPose_Sentinels(t *testing.T) {
	p := TargetPose(GroundPose(), Launch{})
	assert.True(t, p.Flying)
	assert.Equal(t, LaunchAltitude, p.Z)

	p = TargetPose(p, ChangeAltitude{Direction: Down, DistanceMeters: 0.5, SpeedMps: 0.5})
	assert.InDelta(t, 0.5, p.Z, eps)

	p = TargetPose(p, SetLight{Color: LightCyan})
	assert.Equal(t, LightCyan, p.Light)

	p = TargetPose(p, Land{})
	assert.False(t, p.Flying)
	assert.Equal(t, 0.0, p.Z)
	assert.Equal(t, LightCyan, p.Light)
}

func TestSpiral_EndState(t *testing.T) {
	s := Spiral{Size: SpiralMedium, Direction: Clockwise, ClimbMeters: 0.5}

	theta, r := SpiralAt(s.Size, Ease(1))
	assert.InDelta(t, 2*math.Pi, theta, eps)
	assert.InDelta(t, 0.8, r, eps)

	p := TargetPose(GroundPose(), s)
	assert.InDelta(t, 0.8-0.3, p.X, 1e-9)
	assert.InDelta(t, 0, p.Y, 1e-9)
	assert.InDelta(t, 0.5, p.Z, eps)
	assert.Equal(t, 0.0, p.HeadingDegrees)
}

func TestSpiral_StartsAtOrigin(t *testing.T) {
	for _, sideways := range []bool{false, true} {
		s := Spiral{Size: SpiralBig, Direction: CounterClockwise, Sideways: sideways}
		dx, dy, dz := SpiralOffset(s, 37, 0)
		assert.InDelta(t, 0, dx, eps)
		assert.InDelta(t, 0, dy, eps)
		assert.InDelta(t, 0, dz, eps)
	}
}

func TestSpiral_DirectionMirrors(t *testing.T) {
	cw := Spiral{Size: SpiralSmall, Direction: Clockwise}
	ccw := Spiral{Size: SpiralSmall, Direction: CounterClockwise}

	_, yCW, _ := SpiralOffset(cw, 0, 0.25)
	_, yCCW, _ := SpiralOffset(ccw, 0, 0.25)
	assert.Less(t, yCW, 0.0)
	assert.InDelta(t, -yCW, yCCW, eps)
}

func TestSpiral_SidewaysFollowsHeading(t *testing.T) {
	s := Spiral{Size: SpiralMedium, Direction: CounterClockwise, Sideways: true}
	dx, dy, dz := SpiralOffset(s, 0, 1)
	assert.InDelta(t, 0, dx, 1e-9)
	assert.InDelta(t, 0.5, dy, 1e-9)
	assert.InDelta(t, 0, dz, 1e-9)

	// a quarter of the way round the drone is above its start plane
	_, _, dz = SpiralOffset(s, 0, 0.25)
	assert.Greater(t, dz, 0.0)
}

func TestLightColor_WRGB(t *testing.T) {
	assert.Equal(t, uint32(0x00FF0000), LightRed.WRGB())
	assert.Equal(t, uint32(0x00FFA500), LightOrange.WRGB())
	assert.Equal(t, uint32(0x00800080), LightPurple.WRGB())
	assert.Equal(t, uint32(0xFF000000), LightWhite.WRGB())
	assert.Equal(t, uint32(0), LightOff.WRGB())
	assert.False(t, LightColor("magenta").Valid())
}

func TestInstruction_Kinds(t *testing.T) {
	all := []Instruction{Launch{}, Translate{}, ChangeAltitude{}, Rotate{}, Spiral{}, SetLight{}, Land{}}
	seen := map[Kind]bool{}
	for _, i := range all {
		seen[i.Kind()] = true
	}
	assert.Len(t, seen, 7)
	assert.True(t, IsSentinel(Launch{}))
	assert.True(t, IsSentinel(Land{}))
	assert.False(t, IsSentinel(Rotate{}))
}

// pkg/core/enums.go
package core

import "fmt"

// Axis is a body-frame direction of travel.
type Axis string

const (
	AxisForward Axis = "forward"
	AxisBack    Axis = "back"
	AxisLeft    Axis = "left"
	AxisRight   Axis = "right"
)

func (a Axis) Valid() bool {
	switch a {
	case AxisForward, AxisBack, AxisLeft, AxisRight:
		return true
	}
	return false
}

type VerticalDirection string

const (
	Up   VerticalDirection = "up"
	Down VerticalDirection = "down"
)

func (d VerticalDirection) Valid() bool {
	return d == Up || d == Down
}

// RotationDirection is seen from above: cw turns right, ccw turns left.
type RotationDirection string

const (
	Clockwise        RotationDirection = "cw"
	CounterClockwise RotationDirection = "ccw"
)

func (d RotationDirection) Valid() bool {
	return d == Clockwise || d == CounterClockwise
}

// Sign is -1 for clockwise and +1 for counter-clockwise, matching the
// right-handed world frame where positive yaw turns left.
func (d RotationDirection) Sign() float64 {
	if d == Clockwise {
		return -1
	}
	return 1
}

type SpiralSize string

const (
	SpiralSmall  SpiralSize = "small"
	SpiralMedium SpiralSize = "medium"
	SpiralBig    SpiralSize = "big"
)

func (s SpiralSize) Valid() bool {
	switch s {
	case SpiralSmall, SpiralMedium, SpiralBig:
		return true
	}
	return false
}

// SpeedClass is the editor's speed selection.
type SpeedClass string

const (
	SpeedSlow   SpeedClass = "slow"
	SpeedMedium SpeedClass = "medium"
	SpeedFast   SpeedClass = "fast"
)

var speedTable = map[SpeedClass]float64{
	SpeedSlow:   0.2,
	SpeedMedium: 0.5,
	SpeedFast:   1.0,
}

// MetersPerSecond returns the speed for the class.
func (s SpeedClass) MetersPerSecond() (float64, error) {
	v, ok := speedTable[s]
	if !ok {
		return 0, fmt.Errorf("unknown speed class %q", s)
	}
	return v, nil
}

type LightColor string

const (
	LightRed    LightColor = "red"
	LightGreen  LightColor = "green"
	LightBlue   LightColor = "blue"
	LightYellow LightColor = "yellow"
	LightPurple LightColor = "purple"
	LightOrange LightColor = "orange"
	LightCyan   LightColor = "cyan"
	LightWhite  LightColor = "white"
	LightOff    LightColor = "off"
)

// RGBW holds the four LED channels.
type RGBW struct {
	R, G, B, W uint8
}

var lightTable = map[LightColor]RGBW{
	LightRed:    {R: 255},
	LightGreen:  {G: 255},
	LightBlue:   {B: 255},
	LightYellow: {R: 255, G: 255},
	LightPurple: {R: 128, B: 128},
	LightOrange: {R: 255, G: 165},
	LightCyan:   {G: 255, B: 255},
	LightWhite:  {W: 255},
	LightOff:    {},
}

func (c LightColor) Valid() bool {
	_, ok := lightTable[c]
	return ok
}

// Channels returns the LED channel values; unknown colours are off.
func (c LightColor) Channels() RGBW {
	return lightTable[c]
}

// WRGB packs the colour as 0xWWRRGGBB, the layout of the LED deck's
// wrgb8888 parameter.
func (c LightColor) WRGB() uint32 {
	ch := c.Channels()
	return uint32(ch.W)<<24 | uint32(ch.R)<<16 | uint32(ch.G)<<8 | uint32(ch.B)
}

package sim

import (
	"time"
)

// DefaultFrameRate is the display refresh the real-time clock imitates.
const DefaultFrameRate = 60

// Clock yields frame deltas in seconds.
type Clock interface {
	// Wait blocks until the next frame and returns the seconds since the
	// previous one.
	Wait() float64
	Stop()
}

// TickerClock paces frames with wall-clock time.
type TickerClock struct {
	ticker *time.Ticker
	last   time.Time
}

// NewTickerClock starts a ticker at frameRate frames per second.
func NewTickerClock(frameRate int) *TickerClock {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	return &TickerClock{
		ticker: time.NewTicker(time.Second / time.Duration(frameRate)),
		last:   time.Now(),
	}
}

func (c *TickerClock) Wait() float64 {
	now := <-c.ticker.C
	dt := now.Sub(c.last).Seconds()
	c.last = now
	return dt
}

func (c *TickerClock) Stop() {
	c.ticker.Stop()
}

// StepClock returns a fixed delta immediately. It drives tests and
// faster-than-real-time runs.
type StepClock struct {
	Step float64
}

// NewStepClock returns a clock stepping at frameRate frames per simulated
// second.
func NewStepClock(frameRate int) *StepClock {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	return &StepClock{Step: 1 / float64(frameRate)}
}

func (c *StepClock) Wait() float64 { return c.Step }
func (c *StepClock) Stop()         {}

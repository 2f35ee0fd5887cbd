package influx

import (
	"sync/atomic"

	"github.com/skyblocks/flightdeck/pkg/core"
)

// Sink feeds a run into the manager. Frames are sampled; events and the
// end-of-run summary are always written.
type Sink struct {
	m     *Manager
	every uint

	written atomic.Uint64
	failed  atomic.Uint64
}

// NewSink writes every n-th frame; n < 1 writes all of them.
func (m *Manager) NewSink(n int) *Sink {
	if n < 1 {
		n = 1
	}
	return &Sink{m: m, every: uint(n)}
}

func (s *Sink) write(bucket string, p any) {
	var err error
	switch pt := p.(type) {
	case core.Snapshot:
		err = s.m.WritePoint(bucket, FramePoint(pt))
	case core.RunEvent:
		err = s.m.WritePoint(bucket, EventPoint(pt))
	}
	if err != nil {
		if s.failed.Add(1) == 1 {
			s.m.Logger.Warn().Err(err).Msg("Dropping metrics")
		}
		return
	}
	s.written.Add(1)
}

func (s *Sink) OnSnapshot(snap core.Snapshot) {
	if snap.Frame%s.every != 0 {
		return
	}
	s.write(BucketPerformance, snap)
}

func (s *Sink) OnEvent(e core.RunEvent) {
	s.write(BucketRuns, e)
}

// Finish writes the run summary.
func (s *Sink) Finish(run core.Run, summary core.RunSummary) error {
	if err := s.m.WritePoint(BucketRuns, RunPoint(run, summary)); err != nil {
		s.failed.Add(1)
		return err
	}
	s.written.Add(1)
	return nil
}

// Written reports the points handed to the manager.
func (s *Sink) Written() uint64 { return s.written.Load() }

// Failed reports the points that could not be written.
func (s *Sink) Failed() uint64 { return s.failed.Load() }

package monitor

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/skyblocks/flightdeck/internal/cache"
	"github.com/skyblocks/flightdeck/internal/influx"
	"github.com/skyblocks/flightdeck/internal/logging"
	"github.com/skyblocks/flightdeck/internal/mission"
	"github.com/skyblocks/flightdeck/internal/storage"
	"github.com/skyblocks/flightdeck/pkg/core"
)

// SnapshotSource is the part of the simulator the monitor reads.
type SnapshotSource interface {
	Snapshot() core.Snapshot
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	LogManager     *logging.SlogManager
	MissionContext *mission.Context
	Simulator      SnapshotSource
	// Queues reports storage write buffers; optional.
	Queues storage.QueueReporter
	// CommandQueues reports dispatcher buffers by command; optional.
	CommandQueues func() map[string]int
	Cache         *cache.ProgramCache
	// Influx receives a status point per tick; optional.
	Influx *influx.Manager
	// StatusFile is rewritten with the JSON status on every tick; optional.
	StatusFile string
	Interval   time.Duration
}

// Status is a point-in-time view of the process.
type Status struct {
	Time             time.Time      `json:"time"`
	Program          string         `json:"program"`
	Active           bool           `json:"active"`
	RunID            string         `json:"runId,omitempty"`
	State            core.RunState  `json:"state"`
	Frame            uint           `json:"frame"`
	Elapsed          float64        `json:"elapsed"`
	InstructionIndex int            `json:"instructionIndex"`
	Pose             core.Pose      `json:"pose"`
	StorageQueues    map[string]int `json:"storageQueues,omitempty"`
	CommandQueues    map[string]int `json:"commandQueues,omitempty"`
	CacheHits        int            `json:"cacheHits"`
	CacheMisses      int            `json:"cacheMisses"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Status collects the current status.
func (s *Service) Status() Status {
	st := Status{Time: time.Now().UTC(), State: core.RunIdle}

	if mc := s.deps.MissionContext; mc != nil {
		st.Program = mc.GetProgram()
		if run := mc.GetRun(); run != nil {
			st.Active = true
			st.RunID = run.ID
		}
	}
	if s.deps.Simulator != nil {
		snap := s.deps.Simulator.Snapshot()
		st.State = snap.State
		st.Frame = snap.Frame
		st.Elapsed = snap.Elapsed
		st.InstructionIndex = snap.InstructionIndex
		st.Pose = snap.Pose
	}
	if s.deps.Queues != nil {
		st.StorageQueues = s.deps.Queues.QueueLengths()
	}
	if s.deps.CommandQueues != nil {
		st.CommandQueues = s.deps.CommandQueues()
	}
	if s.deps.Cache != nil {
		st.CacheHits = s.deps.Cache.Hits.Value()
		st.CacheMisses = s.deps.Cache.Misses.Value()
	}
	return st
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()

	return nil
}

func (s *Service) tick() {
	logger := s.deps.LogManager.Logger()
	st := s.Status()

	if st.Active {
		logger.Debug("Status",
			"runId", st.RunID,
			"frame", st.Frame,
			"instruction", st.InstructionIndex,
			"storageQueues", st.StorageQueues)
	}

	if s.deps.StatusFile != "" {
		data, err := json.MarshalIndent(st, "", "  ")
		if err == nil {
			err = os.WriteFile(s.deps.StatusFile, data, 0644)
		}
		if err != nil {
			logger.Error("Error writing status file", "error", err)
		}
	}

	if s.deps.Influx != nil {
		if err := s.deps.Influx.WritePoint(influx.BucketPerformance, statusPoint(st)); err != nil {
			logger.Debug("Error writing status point", "error", err)
		}
	}
}

func statusPoint(st Status) *influxdb2_write.Point {
	fields := map[string]any{
		"active":       st.Active,
		"frame":        int64(st.Frame),
		"cache_hits":   st.CacheHits,
		"cache_misses": st.CacheMisses,
	}
	for name, n := range st.StorageQueues {
		fields["queue_"+name] = n
	}
	for name, n := range st.CommandQueues {
		fields["command_queue_"+name] = n
	}
	return influxdb2.NewPoint("status", map[string]string{"program": st.Program}, fields, st.Time)
}

// Stop stops the status monitor and waits for it to exit
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	s.isRunning = false
	done := s.done
	s.mu.Unlock()
	<-done
}

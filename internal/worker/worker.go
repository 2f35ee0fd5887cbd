package worker

import (
	"github.com/skyblocks/flightdeck/internal/handlers"
	"github.com/skyblocks/flightdeck/internal/logging"
)

// Event parameters understood by the handlers.
const (
	ParamName   = "name"
	ParamFormat = "format"
)

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	LogManager *logging.SlogManager
	Service    *handlers.Service
	// AsyncSimulate queues simulate requests instead of running them on the
	// caller's goroutine. Results then reach storage and sinks only.
	AsyncSimulate bool
	// SimulateQueue is the queue size for async simulate; default 8.
	SimulateQueue int
}

// Manager connects the handler service to the dispatcher.
type Manager struct {
	deps Dependencies
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.SimulateQueue <= 0 {
		deps.SimulateQueue = 8
	}
	return &Manager{deps: deps}
}

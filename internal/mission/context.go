package mission

import (
	"log/slog"
	"sync"

	"github.com/skyblocks/flightdeck/pkg/core"
)

// Context holds the run currently being simulated, shared by the handlers
// and the logging context handler.
type Context struct {
	mu      sync.RWMutex
	run     *core.Run
	program string
}

// NewContext creates a new Context with no active run.
func NewContext() *Context {
	return &Context{program: "No program loaded"}
}

// GetRun returns the active run, or nil.
func (mc *Context) GetRun() *core.Run {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.run
}

// GetProgram returns the name of the last compiled program.
func (mc *Context) GetProgram() string {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.program
}

// SetProgram records the last compiled program name.
func (mc *Context) SetProgram(name string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.program = name
}

// SetRun marks run as active. The stored run has its instruction list
// dropped; only the header is shared.
func (mc *Context) SetRun(run core.Run) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	run.Instructions = nil
	mc.run = &run
	if run.ProgramName != "" {
		mc.program = run.ProgramName
	}
}

// ClearRun marks no run active.
func (mc *Context) ClearRun() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.run = nil
}

// LogAttrs describes the active run for log records.
func (mc *Context) LogAttrs() []slog.Attr {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	if mc.run == nil {
		return []slog.Attr{slog.String("program", mc.program)}
	}
	return []slog.Attr{
		slog.String("program", mc.program),
		slog.String("runId", mc.run.ID),
		slog.Int("instructions", mc.run.InstructionCount),
	}
}

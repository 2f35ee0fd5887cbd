package worker

import (
	"context"
	"fmt"

	"github.com/skyblocks/flightdeck/internal/dispatcher"
	"github.com/skyblocks/flightdeck/internal/handlers"
)

// RegisterHandlers registers all command handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Pure transformations - sync
	d.Register(dispatcher.CmdCompile, m.handleCompile, dispatcher.Logged())
	d.Register(dispatcher.CmdGenerate, m.handleGenerate, dispatcher.Logged())
	d.Register(dispatcher.CmdStatus, m.handleStatus)

	// Runs take seconds of wall time; async callers get dispatcher.Queued
	if m.deps.AsyncSimulate {
		d.Register(dispatcher.CmdSimulate, m.handleSimulate,
			dispatcher.Buffered(m.deps.SimulateQueue), dispatcher.Blocking(), dispatcher.Logged())
	} else {
		d.Register(dispatcher.CmdSimulate, m.handleSimulate, dispatcher.Logged())
	}

	d.Register(dispatcher.CmdSend, m.handleSend, dispatcher.Logged())
}

func request(e dispatcher.Event) handlers.Request {
	return handlers.Request{
		Name:   e.Param(ParamName),
		Format: handlers.Format(e.Param(ParamFormat)),
		Raw:    e.Payload,
	}
}

func (m *Manager) handleCompile(_ context.Context, e dispatcher.Event) (any, error) {
	res, err := m.deps.Service.Compile(request(e))
	if err != nil {
		return nil, fmt.Errorf("failed to compile program: %w", err)
	}
	return res, nil
}

func (m *Manager) handleGenerate(_ context.Context, e dispatcher.Event) (any, error) {
	res, err := m.deps.Service.Generate(request(e))
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}
	return res, nil
}

func (m *Manager) handleSimulate(ctx context.Context, e dispatcher.Event) (any, error) {
	sum, err := m.deps.Service.Simulate(ctx, request(e))
	if err != nil {
		return nil, fmt.Errorf("failed to simulate program: %w", err)
	}
	return sum, nil
}

func (m *Manager) handleSend(ctx context.Context, e dispatcher.Event) (any, error) {
	res, err := m.deps.Service.Send(ctx, request(e))
	if err != nil {
		return nil, fmt.Errorf("failed to send program: %w", err)
	}
	return res, nil
}

func (m *Manager) handleStatus(context.Context, dispatcher.Event) (any, error) {
	return m.deps.Service.Status(), nil
}

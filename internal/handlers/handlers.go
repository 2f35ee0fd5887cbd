package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skyblocks/flightdeck/internal/cache"
	"github.com/skyblocks/flightdeck/internal/codegen"
	"github.com/skyblocks/flightdeck/internal/compiler"
	"github.com/skyblocks/flightdeck/internal/influx"
	"github.com/skyblocks/flightdeck/internal/logging"
	"github.com/skyblocks/flightdeck/internal/mission"
	"github.com/skyblocks/flightdeck/internal/parser"
	"github.com/skyblocks/flightdeck/internal/sim"
	"github.com/skyblocks/flightdeck/internal/storage"
	"github.com/skyblocks/flightdeck/pkg/core"
)

// ErrNothingToRun is returned by Simulate for programs with nothing between
// launch and land.
var ErrNothingToRun = errors.New("nothing to run")

// ErrInvalidWorkspace wraps errors decoding the submitted document.
var ErrInvalidWorkspace = errors.New("invalid workspace")

// ErrNoSender is returned by Send when no flight backend is configured.
var ErrNoSender = errors.New("no flight backend configured")

// Format selects the workspace encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// CodeSender delivers a generated script to the flight backend.
type CodeSender interface {
	Run(ctx context.Context, code string) (string, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	LogManager *logging.SlogManager
	Parser     *parser.Parser
	Compiler   *compiler.Compiler
	Cache      *cache.ProgramCache
	Emitter    *codegen.Emitter
	Runner     *sim.Runner

	// Recorder must be registered as a sink of Runner; optional.
	Recorder *storage.Recorder
	// Influx must be registered as a sink of Runner; optional.
	Influx *influx.Sink
	Sender CodeSender

	GridSize float64
	// Now is swapped in tests.
	Now func() time.Time
}

// Request is one workspace submitted for processing.
type Request struct {
	// Name overrides the name stored in the workspace.
	Name   string
	Format Format
	Raw    []byte
}

// CompileResult describes a successfully compiled program.
type CompileResult struct {
	ProgramName      string                   `json:"programName"`
	Fingerprint      string                   `json:"fingerprint"`
	InstructionCount int                      `json:"instructionCount"`
	Instructions     []core.InstructionRecord `json:"instructions"`
	Warnings         []compiler.Warning       `json:"warnings,omitempty"`
}

// GenerateResult is the generated script and the fold's final state.
type GenerateResult struct {
	CompileResult
	codegen.Output
}

// SendResult is the flight backend's reply.
type SendResult struct {
	ProgramName string `json:"programName"`
	Response    string `json:"response"`
}

// Status is what the service is doing right now.
type Status struct {
	Program  string        `json:"program"`
	Run      *core.Run     `json:"run,omitempty"`
	Snapshot core.Snapshot `json:"snapshot"`
}

// Service compiles, generates, simulates and sends flight programs.
type Service struct {
	deps Dependencies
	ctx  *mission.Context

	runSeq  atomic.Uint64
	mu      sync.Mutex
	pending map[string]core.Run
}

// NewService creates a new handler service and registers it for the
// runner's lifecycle events.
func NewService(deps Dependencies, ctx *mission.Context) *Service {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.Parser == nil {
		deps.Parser = parser.NewParser(deps.LogManager.Logger())
	}
	if deps.Compiler == nil {
		deps.Compiler = compiler.New(deps.LogManager.Logger(), compiler.Options{})
	}
	if deps.Emitter == nil {
		deps.Emitter = codegen.NewEmitter(codegen.DefaultTemplate(), "")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if ctx == nil {
		ctx = mission.NewContext()
	}
	s := &Service{deps: deps, ctx: ctx, pending: make(map[string]core.Run)}
	if deps.Runner != nil {
		deps.Runner.AddEventSink(s)
	}
	return s
}

// GetMissionContext returns the mission context
func (s *Service) GetMissionContext() *mission.Context {
	return s.ctx
}

func (s *Service) writeLog(functionName, data, level string) {
	s.deps.LogManager.WriteLog(functionName, data, level)
}

func (s *Service) parse(req Request) (parser.Workspace, error) {
	format := req.Format
	if format == "" {
		format = sniffFormat(req.Raw)
	}
	var (
		ws  parser.Workspace
		err error
	)
	switch format {
	case FormatYAML:
		ws, err = s.deps.Parser.ParseWorkspaceYAML(req.Raw)
	case FormatJSON:
		ws, err = s.deps.Parser.ParseWorkspace(req.Raw)
	default:
		err = fmt.Errorf("unknown workspace format %q", format)
	}
	if err != nil {
		return parser.Workspace{}, fmt.Errorf("%w: %w", ErrInvalidWorkspace, err)
	}
	return ws, nil
}

// sniffFormat treats anything that does not open with a JSON delimiter as
// YAML.
func sniffFormat(raw []byte) Format {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	return FormatYAML
}

// compile parses and compiles req, going through the cache when one is
// configured. The result never carries a partial program.
func (s *Service) compile(req Request) (compiler.Program, error) {
	build := func() (compiler.Program, error) {
		ws, err := s.parse(req)
		if err != nil {
			return compiler.Program{}, err
		}
		prog, err := s.deps.Compiler.Compile(ws.Roots)
		if err != nil {
			return compiler.Program{}, err
		}
		prog.Name = ws.Name
		return prog, nil
	}

	var (
		prog compiler.Program
		err  error
	)
	if s.deps.Cache != nil {
		key := append([]byte(string(req.Format)+"\x00"), req.Raw...)
		prog, err = s.deps.Cache.GetOrCompile(key, build)
	} else {
		prog, err = build()
	}
	if err != nil {
		return compiler.Program{}, err
	}

	name := prog.Name
	if req.Name != "" {
		name = req.Name
	}
	if name == "" {
		name = "untitled"
	}
	prog.Name = name
	s.ctx.SetProgram(name)

	for _, w := range prog.Warnings {
		s.deps.LogManager.Logger().Warn("Program warning", "program", name, "code", w.Code, "path", w.Path, "message", w.Message)
	}
	return prog, nil
}

func resultOf(prog compiler.Program) CompileResult {
	return CompileResult{
		ProgramName:      prog.Name,
		Fingerprint:      fmt.Sprintf("%016x", prog.Fingerprint()),
		InstructionCount: len(prog.Instructions),
		Instructions:     core.Records(prog.Instructions),
		Warnings:         prog.Warnings,
	}
}

// Compile validates and flattens the workspace.
func (s *Service) Compile(req Request) (CompileResult, error) {
	functionName := "Compile"
	prog, err := s.compile(req)
	if err != nil {
		s.writeLog(functionName, fmt.Sprintf(`Error compiling program: %v`, err), "WARN")
		return CompileResult{}, err
	}
	return resultOf(prog), nil
}

// Generate compiles the workspace and renders the flight script.
func (s *Service) Generate(req Request) (GenerateResult, error) {
	functionName := "Generate"
	prog, err := s.compile(req)
	if err != nil {
		s.writeLog(functionName, fmt.Sprintf(`Error compiling program: %v`, err), "WARN")
		return GenerateResult{}, err
	}
	out := s.deps.Emitter.Emit(prog.Instructions)
	s.deps.LogManager.Logger().Debug("Generated flight script",
		"program", prog.Name,
		"fragments", len(out.Fragments),
		"totalDuration", out.TotalDuration)
	return GenerateResult{CompileResult: resultOf(prog), Output: out}, nil
}

// Simulate compiles the workspace and flies it through the simulator. It
// fails with sim.ErrRunActive while another run is in progress; that run is
// not affected.
func (s *Service) Simulate(ctx context.Context, req Request) (core.RunSummary, error) {
	functionName := "Simulate"
	if s.deps.Runner == nil {
		return core.RunSummary{}, errors.New("simulator not configured")
	}

	prog, err := s.compile(req)
	if err != nil {
		s.writeLog(functionName, fmt.Sprintf(`Error compiling program: %v`, err), "WARN")
		return core.RunSummary{}, err
	}
	if prog.Empty() {
		return core.RunSummary{}, ErrNothingToRun
	}

	now := s.deps.Now().UTC()
	run := core.Run{
		ID:               fmt.Sprintf("%s-%d", now.Format("20060102T150405"), s.runSeq.Add(1)),
		ProgramName:      prog.Name,
		Fingerprint:      prog.Fingerprint(),
		StartTime:        now,
		GridSize:         s.deps.GridSize,
		InstructionCount: len(prog.Instructions),
		Instructions:     prog.Instructions,
	}

	s.mu.Lock()
	s.pending[run.ID] = run
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, run.ID)
		s.mu.Unlock()
	}()
	if s.deps.Recorder != nil {
		s.deps.Recorder.Prepare(run)
	}

	summary, err := s.deps.Runner.Run(ctx, run)
	if err != nil {
		if s.deps.Recorder != nil {
			s.deps.Recorder.Discard(run.ID)
		}
		if errors.Is(err, sim.ErrRunActive) {
			s.writeLog(functionName, fmt.Sprintf(`Rejected run %s: another run is active`, run.ID), "WARN")
		}
		return core.RunSummary{}, err
	}
	s.ctx.ClearRun()

	if s.deps.Recorder != nil {
		if err := s.deps.Recorder.Finish(summary); err != nil {
			s.writeLog(functionName, fmt.Sprintf(`Error recording run %s: %v`, run.ID, err), "ERROR")
		}
	}
	if s.deps.Influx != nil {
		if err := s.deps.Influx.Finish(run, summary); err != nil {
			s.deps.LogManager.Logger().Debug("Error writing run metrics", "runId", run.ID, "error", err)
		}
	}
	return summary, nil
}

// OnEvent marks a run active in the mission context once the simulator has
// accepted it.
func (s *Service) OnEvent(e core.RunEvent) {
	if e.Type != core.EventRunStarted {
		return
	}
	s.mu.Lock()
	run, ok := s.pending[e.RunID]
	s.mu.Unlock()
	if ok {
		s.ctx.SetRun(run)
	}
}

// Send generates the script and hands it to the flight backend.
func (s *Service) Send(ctx context.Context, req Request) (SendResult, error) {
	functionName := "Send"
	if s.deps.Sender == nil {
		return SendResult{}, ErrNoSender
	}
	gen, err := s.Generate(req)
	if err != nil {
		return SendResult{}, err
	}
	resp, err := s.deps.Sender.Run(ctx, gen.Code)
	if err != nil {
		s.writeLog(functionName, fmt.Sprintf(`Error sending program %s: %v`, gen.ProgramName, err), "ERROR")
		return SendResult{}, err
	}
	s.deps.LogManager.Logger().Info("Sent program to flight backend", "program", gen.ProgramName)
	return SendResult{ProgramName: gen.ProgramName, Response: strings.TrimSpace(resp)}, nil
}

// Status reports the program in the mission context and the simulator's
// current snapshot.
func (s *Service) Status() Status {
	st := Status{Program: s.ctx.GetProgram(), Run: s.ctx.GetRun()}
	if s.deps.Runner != nil {
		st.Snapshot = s.deps.Runner.Simulator().Snapshot()
	}
	return st
}

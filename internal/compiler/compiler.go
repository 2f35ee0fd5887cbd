// Package compiler validates an editor block tree and flattens it into the
// ordered instruction sequence shared by code generation and simulation.
package compiler

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/skyblocks/flightdeck/internal/program"
	"github.com/skyblocks/flightdeck/pkg/core"
)

const (
	DefaultMaxLoopDepth    = 8
	DefaultMaxInstructions = 10000
)

// Options bounds what a program may expand to.
type Options struct {
	MaxLoopDepth    int
	MaxInstructions int
}

func (o Options) withDefaults() Options {
	if o.MaxLoopDepth <= 0 {
		o.MaxLoopDepth = DefaultMaxLoopDepth
	}
	if o.MaxInstructions <= 0 {
		o.MaxInstructions = DefaultMaxInstructions
	}
	return o
}

// Program is a validated, flattened instruction sequence.
type Program struct {
	Name         string
	Instructions []core.Instruction
	Warnings     []Warning
}

// Empty reports whether nothing runs between launch and land.
func (p Program) Empty() bool {
	for _, w := range p.Warnings {
		if w.Code == EmptySequenceWarning {
			return true
		}
	}
	return false
}

// Canonical is a stable text encoding of the instruction sequence, one
// instruction per line.
func (p Program) Canonical() string {
	var b strings.Builder
	for _, in := range p.Instructions {
		b.WriteString(in.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Fingerprint identifies the instruction sequence.
func (p Program) Fingerprint() uint64 {
	return xxhash.Sum64String(p.Canonical())
}

// Compiler validates and flattens programs. It keeps no state between calls.
type Compiler struct {
	logger *slog.Logger
	opts   Options
}

// New returns a compiler. A nil logger discards log output.
func New(logger *slog.Logger, opts Options) *Compiler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Compiler{logger: logger, opts: opts.withDefaults()}
}

// Flatten compiles roots with default options.
func Flatten(roots []program.Node) (Program, error) {
	return New(nil, Options{}).Compile(roots)
}

// Compile reads the top-level nodes once and returns the flattened program
// or a *StructuralError. No partial program is returned on error.
func (c *Compiler) Compile(roots []program.Node) (Program, error) {
	blocks, err := program.Freeze(roots, c.opts.MaxInstructions)
	if errors.Is(err, program.ErrTooManyNodes) {
		return Program{}, structural(CodeProgramTooLong, "", "more than %d blocks", c.opts.MaxInstructions)
	}
	if err != nil {
		return Program{}, fmt.Errorf("error reading program: %w", err)
	}

	if len(blocks) == 0 {
		return Program{}, structural(CodeEmptyProgram, "", "the workspace has no blocks")
	}

	launch := -1
	for i, b := range blocks {
		if b.Kind() == program.KindTakeoff {
			launch = i
			break
		}
	}
	if launch < 0 {
		return Program{}, structural(CodeMissingLaunch, "", "no chain starts with a takeoff block")
	}
	if len(blocks) > 1 {
		return Program{}, structural(CodeDisconnectedBlocks, "", "%d separate block chains; connect everything below the takeoff block", len(blocks))
	}

	var chain []program.Node
	for n := program.Node(blocks[launch]); n != nil; n = n.Next() {
		chain = append(chain, n)
	}
	last := len(chain) - 1
	if last == 0 || chain[last].Kind() != program.KindLand {
		return Program{}, structural(CodeMissingLand, strconv.Itoa(last), "the chain must end with a land block")
	}

	f := flattener{opts: c.opts}
	out := make([]core.Instruction, 0, len(chain))
	out = append(out, core.Launch{})
	for i, n := range chain[1:last] {
		if serr := f.node(n, strconv.Itoa(i+1), 0, &out); serr != nil {
			return Program{}, serr
		}
	}
	out = append(out, core.Land{})

	prog := Program{Instructions: out, Warnings: f.warnings}
	if len(out) == 2 {
		prog.Warnings = append(prog.Warnings, Warning{
			Code:    EmptySequenceWarning,
			Message: "nothing to run between takeoff and land",
		})
	}

	for _, w := range prog.Warnings {
		c.logger.Warn("Program warning", "code", w.Code, "path", w.Path, "message", w.Message)
	}
	c.logger.Debug("Compiled program",
		"blocks", len(chain),
		"instructions", len(out),
		"fingerprint", prog.Fingerprint())
	return prog, nil
}

type flattener struct {
	opts     Options
	warnings []Warning
}

// node appends the instructions of one chain element to out.
func (f *flattener) node(n program.Node, path string, depth int, out *[]core.Instruction) *StructuralError {
	switch n.Kind() {
	case program.KindTakeoff, program.KindLand:
		where := "in the middle of the chain"
		if depth > 0 {
			where = "inside a repeat block"
		}
		return structural(CodeMisplacedSentinel, path, "%s block %s", n.Kind(), where)
	case program.KindRepeat:
		return f.loop(n, path, depth, out)
	}

	in, serr := leaf(n, path)
	if serr != nil {
		return serr
	}
	if len(*out)+1 > f.opts.MaxInstructions {
		return structural(CodeProgramTooLong, path, "more than %d instructions", f.opts.MaxInstructions)
	}
	*out = append(*out, in)
	return nil
}

func (f *flattener) loop(n program.Node, path string, depth int, out *[]core.Instruction) *StructuralError {
	if depth+1 > f.opts.MaxLoopDepth {
		return structural(CodeLoopTooDeep, path, "repeat blocks nested more than %d deep", f.opts.MaxLoopDepth)
	}
	times, serr := repeatCount(n, path)
	if serr != nil {
		return serr
	}

	var body []core.Instruction
	idx := 0
	for _, head := range n.Body() {
		for cur := head; cur != nil; cur = cur.Next() {
			if serr := f.node(cur, fmt.Sprintf("%s/body/%d", path, idx), depth+1, &body); serr != nil {
				return serr
			}
			idx++
		}
	}

	if len(body) == 0 {
		f.warnings = append(f.warnings, Warning{
			Code:    EmptyLoopWarning,
			Path:    path,
			Message: "repeat block has no body",
		})
		return nil
	}
	if len(*out)+len(body)*times > f.opts.MaxInstructions {
		return structural(CodeProgramTooLong, path, "more than %d instructions", f.opts.MaxInstructions)
	}
	for range times {
		*out = append(*out, body...)
	}
	return nil
}

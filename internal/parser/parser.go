package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/skyblocks/flightdeck/internal/program"
	"go.yaml.in/yaml/v3"
)

// Workspace is a parsed editor workspace: its top-level block chains.
type Workspace struct {
	Name  string
	Roots []program.Node
}

// Parser converts serialized editor workspaces into program snapshots.
// It does no validation beyond the shape of the document.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new parser with only a logger dependency
func NewParser(logger *slog.Logger) *Parser {
	return &Parser{logger: logger}
}

// scalar accepts a JSON/YAML string, number or bool and keeps its text.
type scalar string

func (s *scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = scalar(str)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && (b[0] == '{' || b[0] == '[') {
		return fmt.Errorf("field value must be a scalar, got %s", b)
	}
	*s = scalar(b)
	return nil
}

func (s *scalar) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: field value must be a scalar", n.Line)
	}
	*s = scalar(n.Value)
	return nil
}

func toFields(in map[string]scalar) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToUpper(k)] = strings.TrimSpace(string(v))
	}
	return out
}

// document covers both the editor serialization and the compact form.
type document struct {
	Name    string         `json:"name" yaml:"name"`
	Blocks  *blocklyBlocks `json:"blocks" yaml:"-"`
	Program []compactBlock `json:"program" yaml:"program"`
}

type blocklyBlocks struct {
	Blocks []blocklyBlock `json:"blocks"`
}

type blocklyConnection struct {
	Block *blocklyBlock `json:"block"`
}

type blocklyBlock struct {
	Type    string                       `json:"type"`
	Enabled *bool                        `json:"enabled"`
	Fields  map[string]scalar            `json:"fields"`
	Inputs  map[string]blocklyConnection `json:"inputs"`
	Next    *blocklyConnection           `json:"next"`
}

type compactBlock struct {
	Kind   string            `json:"kind" yaml:"kind"`
	Fields map[string]scalar `json:"fields" yaml:"fields"`
	Next   *compactBlock     `json:"next" yaml:"next"`
	Body   []compactBlock    `json:"body" yaml:"body"`
}

// ParseWorkspace decodes a JSON workspace. It accepts the editor's
// serialization ({"blocks":{"blocks":[...]}}), the compact form
// ({"program":[...]}) or a bare array of compact blocks.
func (p *Parser) ParseWorkspace(data []byte) (Workspace, error) {
	var ws Workspace
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return ws, fmt.Errorf("error parsing workspace: empty document")
	}

	if trimmed[0] == '[' {
		var roots []compactBlock
		if err := json.Unmarshal(trimmed, &roots); err != nil {
			return ws, fmt.Errorf("error unmarshalling program: %w", err)
		}
		ws.Roots = compactRoots(roots)
		p.logDebug(ws)
		return ws, nil
	}

	var doc document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return ws, fmt.Errorf("error unmarshalling workspace: %w", err)
	}
	ws.Name = doc.Name

	switch {
	case doc.Blocks != nil && len(doc.Program) > 0:
		return ws, fmt.Errorf("error parsing workspace: both blocks and program are set")
	case doc.Blocks != nil:
		for i := range doc.Blocks.Blocks {
			ws.Roots = append(ws.Roots, blocklyRoot(&doc.Blocks.Blocks[i]))
		}
	default:
		ws.Roots = compactRoots(doc.Program)
	}

	p.logDebug(ws)
	return ws, nil
}

// ParseWorkspaceYAML decodes the compact form written as YAML, either a
// mapping with name/program keys or a bare sequence.
func (p *Parser) ParseWorkspaceYAML(data []byte) (Workspace, error) {
	var ws Workspace

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return ws, fmt.Errorf("error unmarshalling yaml workspace: %w", err)
	}
	if len(root.Content) == 0 {
		return ws, fmt.Errorf("error parsing workspace: empty document")
	}

	doc := root.Content[0]
	if doc.Kind == yaml.SequenceNode {
		var blocks []compactBlock
		if err := doc.Decode(&blocks); err != nil {
			return ws, fmt.Errorf("error decoding yaml program: %w", err)
		}
		ws.Roots = compactRoots(blocks)
		p.logDebug(ws)
		return ws, nil
	}

	var d document
	if err := doc.Decode(&d); err != nil {
		return ws, fmt.Errorf("error decoding yaml workspace: %w", err)
	}
	ws.Name = d.Name
	ws.Roots = compactRoots(d.Program)
	p.logDebug(ws)
	return ws, nil
}

func (p *Parser) logDebug(ws Workspace) {
	if p.logger == nil {
		return
	}
	p.logger.Debug("Parsed workspace", "name", ws.Name, "topLevelBlocks", len(ws.Roots))
}

// blocklyRoot converts a top-level chain. The head is kept even when
// disabled: every top-level block counts toward the single-chain rule.
func blocklyRoot(b *blocklyBlock) *program.Block {
	head := blocklyBlockToNode(b)
	if b.Next == nil {
		return head
	}
	return head.WithNext(blocklyChain(b.Next.Block))
}

// blocklyChain converts a chain of editor blocks, skipping disabled ones.
func blocklyChain(b *blocklyBlock) *program.Block {
	var blocks []*program.Block
	for cur := b; cur != nil; {
		if cur.Enabled == nil || *cur.Enabled {
			blocks = append(blocks, blocklyBlockToNode(cur))
		}
		if cur.Next == nil {
			break
		}
		cur = cur.Next.Block
	}
	return program.Chain(blocks...)
}

func blocklyBlockToNode(b *blocklyBlock) *program.Block {
	node := program.NewBlock(b.Type, toFields(b.Fields))
	if in, ok := b.Inputs["DO"]; ok && in.Block != nil {
		if body := blocklyChain(in.Block); body != nil {
			node = node.WithBody(body)
		}
	}
	return node
}

func compactRoots(in []compactBlock) []program.Node {
	roots := make([]program.Node, 0, len(in))
	for i := range in {
		if head := compactChain(&in[i]); head != nil {
			roots = append(roots, head)
		}
	}
	return roots
}

func compactChain(b *compactBlock) *program.Block {
	var blocks []*program.Block
	for cur := b; cur != nil; cur = cur.Next {
		node := program.NewBlock(cur.Kind, toFields(cur.Fields))
		if len(cur.Body) > 0 {
			var body []*program.Block
			for i := range cur.Body {
				if c := compactChain(&cur.Body[i]); c != nil {
					body = append(body, c)
				}
			}
			node = node.WithBody(body...)
		}
		blocks = append(blocks, node)
	}
	return program.Chain(blocks...)
}

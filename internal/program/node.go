// Package program holds the read-only snapshot of an editor block tree.
package program

import (
	"errors"
	"maps"
)

// Block kinds produced by the editor.
const (
	KindTakeoff  = "takeoff"
	KindLand     = "land"
	KindMove     = "move"
	KindRight    = "right" // legacy single-direction move block
	KindAltitude = "altitude"
	KindRotate   = "rotate"
	KindSpiral   = "spiral"
	KindLight    = "led_color"
	KindRepeat   = "repeat"
)

// Field names used by the editor's dropdowns.
const (
	FieldDirection = "DIRECTION"
	FieldDistance  = "DISTANCE"
	FieldSpeed     = "SPEED"
	FieldAngle     = "ANGLE"
	FieldSize      = "SIZE"
	FieldClimb     = "CLIMB"
	FieldSideways  = "SIDEWAYS"
	FieldColor     = "COLOR"
	FieldTimes     = "TIMES"
)

// Node is the view of one block that the compiler reads. Implementations
// must not change while a compile is in progress. Body returns the heads of
// the statement chains inside a loop block; readers follow Next from each.
type Node interface {
	Kind() string
	Next() Node
	Field(name string) (string, bool)
	Body() []Node
}

// ErrTooManyNodes is returned by Freeze when the tree exceeds the node limit,
// which also guards against cyclic next links.
var ErrTooManyNodes = errors.New("program has too many blocks")

// Block is the immutable Node implementation. Use NewBlock and the With
// methods to build one; every method returns a copy.
type Block struct {
	kind   string
	fields map[string]string
	next   *Block
	body   []*Block
}

// NewBlock returns a block with a private copy of fields.
func NewBlock(kind string, fields map[string]string) *Block {
	return &Block{kind: kind, fields: maps.Clone(fields)}
}

func (b *Block) Kind() string { return b.kind }

func (b *Block) Next() Node {
	if b.next == nil {
		return nil
	}
	return b.next
}

func (b *Block) Field(name string) (string, bool) {
	v, ok := b.fields[name]
	return v, ok
}

// Fields returns a copy of the block's field values.
func (b *Block) Fields() map[string]string {
	return maps.Clone(b.fields)
}

func (b *Block) Body() []Node {
	if len(b.body) == 0 {
		return nil
	}
	out := make([]Node, len(b.body))
	for i, c := range b.body {
		out[i] = c
	}
	return out
}

// WithNext returns a copy of b followed by next.
func (b *Block) WithNext(next *Block) *Block {
	c := *b
	c.next = next
	return &c
}

// WithBody returns a copy of b whose statement input holds the given chain
// heads, in order.
func (b *Block) WithBody(heads ...*Block) *Block {
	c := *b
	c.body = nil
	for _, h := range heads {
		if h != nil {
			c.body = append(c.body, h)
		}
	}
	return &c
}

// Chain links blocks in order and returns the head, or nil for no blocks.
func Chain(blocks ...*Block) *Block {
	var head *Block
	for i := len(blocks) - 1; i >= 0; i-- {
		head = blocks[i].WithNext(head)
	}
	return head
}

// Freeze deep-copies any Node trees into Blocks, visiting at most maxNodes
// nodes. maxNodes <= 0 means no limit.
func Freeze(roots []Node, maxNodes int) ([]*Block, error) {
	f := freezer{limit: maxNodes}
	out := make([]*Block, 0, len(roots))
	for _, r := range roots {
		if r == nil {
			continue
		}
		b, err := f.chain(r)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

type freezer struct {
	limit int
	seen  int
}

func (f *freezer) chain(n Node) (*Block, error) {
	var nodes []Node
	for cur := n; cur != nil; cur = cur.Next() {
		f.seen++
		if f.limit > 0 && f.seen > f.limit {
			return nil, ErrTooManyNodes
		}
		nodes = append(nodes, cur)
	}

	var head *Block
	for i := len(nodes) - 1; i >= 0; i-- {
		b, err := f.node(nodes[i])
		if err != nil {
			return nil, err
		}
		b.next = head
		head = b
	}
	return head, nil
}

func (f *freezer) node(n Node) (*Block, error) {
	b := &Block{kind: n.Kind(), fields: map[string]string{}}
	if fr, ok := n.(interface{ Fields() map[string]string }); ok {
		maps.Copy(b.fields, fr.Fields())
	}
	for _, name := range []string{
		FieldDirection, FieldDistance, FieldSpeed, FieldAngle, FieldSize,
		FieldClimb, FieldSideways, FieldColor, FieldTimes,
	} {
		if v, ok := n.Field(name); ok {
			b.fields[name] = v
		}
	}
	for _, child := range n.Body() {
		if child == nil {
			continue
		}
		c, err := f.chain(child)
		if err != nil {
			return nil, err
		}
		b.body = append(b.body, c)
	}
	return b, nil
}

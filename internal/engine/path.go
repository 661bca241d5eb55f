package engine

import (
	"strconv"
	"strings"
)

// Step is one level of a RenderRootPath: the child at Index of Group is on
// the way to the render root.
type Step struct {
	Group *Node `json:"-"`
	Index int   `json:"index"`
}

// RenderRootPath is a reusable cursor from a tree root down to the node
// painting must start at. Each query resets it; the step slice is kept.
type RenderRootPath struct {
	root  *Node
	steps []Step
}

// NewRenderRootPath returns an empty path.
func NewRenderRootPath() *RenderRootPath {
	return &RenderRootPath{steps: make([]Step, 0, 8)}
}

// Reset empties the path and anchors it at root.
func (p *RenderRootPath) Reset(root *Node) {
	p.root = root
	clear(p.steps)
	p.steps = p.steps[:0]
}

// Push appends a step.
func (p *RenderRootPath) Push(group *Node, index int) {
	p.steps = append(p.steps, Step{Group: group, Index: index})
}

// Pop removes the last step.
func (p *RenderRootPath) Pop() {
	if len(p.steps) == 0 {
		return
	}
	p.steps[len(p.steps)-1] = Step{}
	p.steps = p.steps[:len(p.steps)-1]
}

// Len returns the number of steps. Zero means painting starts at the root.
func (p *RenderRootPath) Len() int { return len(p.steps) }

// At returns step i.
func (p *RenderRootPath) At(i int) Step { return p.steps[i] }

// Steps returns the steps from the root down.
// The returned slice MUST NOT be retained past the next Reset.
func (p *RenderRootPath) Steps() []Step { return p.steps }

// Root returns the node the path starts at.
func (p *RenderRootPath) Root() *Node { return p.root }

// Target returns the render root: the child named by the last step, or the
// root itself for an empty path.
func (p *RenderRootPath) Target() *Node {
	if len(p.steps) == 0 {
		return p.root
	}
	s := p.steps[len(p.steps)-1]
	return s.Group.ChildAt(s.Index)
}

// OnPath reports whether group is the path step at depth, i.e. an
// ancestor of the render root whose own painting is skipped. Safe on a nil
// path.
func (p *RenderRootPath) OnPath(depth int, group *Node) bool {
	if p == nil || depth < 0 || depth >= len(p.steps) {
		return false
	}
	return p.steps[depth].Group == group
}

// StartIndex returns the first child of group a painter has to draw when
// group sits at the given depth below the root. Groups off the path start
// at 0. A painter walking the tree only needs this call per group.
func (p *RenderRootPath) StartIndex(depth int, group *Node) int {
	if !p.OnPath(depth, group) {
		return 0
	}
	return p.steps[depth].Index
}

// IDs returns the node IDs from the root to the render root.
func (p *RenderRootPath) IDs() []string {
	if p.root == nil {
		return nil
	}
	ids := make([]string, 0, len(p.steps)+1)
	ids = append(ids, p.root.ID)
	for _, s := range p.steps {
		ids = append(ids, s.Group.ChildAt(s.Index).ID)
	}
	return ids
}

func (p *RenderRootPath) String() string {
	var b strings.Builder
	if p.root != nil {
		b.WriteString(p.root.ID)
	}
	for _, s := range p.steps {
		b.WriteByte('/')
		b.WriteString(strconv.Itoa(s.Index))
	}
	return b.String()
}

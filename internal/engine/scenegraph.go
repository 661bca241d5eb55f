package engine

import (
	"image/color"

	"github.com/inamate/compositor/internal/geom"
)

// Kind identifies the variant of a render node.
type Kind uint8

const (
	// KindShape is a filled rectangle, rounded rectangle or ellipse.
	KindShape Kind = iota
	// KindImage is a raster image drawn into its content bounds.
	KindImage
	// KindGroup is a pure container with no painting of its own.
	KindGroup
	// KindRegion is a container that paints a background behind its children.
	KindRegion
)

func (k Kind) String() string {
	switch k {
	case KindShape:
		return "shape"
	case KindImage:
		return "image"
	case KindGroup:
		return "group"
	case KindRegion:
		return "region"
	default:
		return "unknown"
	}
}

// IsGroup reports whether nodes of this kind hold children.
func (k Kind) IsGroup() bool {
	return k == KindGroup || k == KindRegion
}

// Shape selects the outline of a KindShape node.
type Shape uint8

const (
	ShapeRect Shape = iota
	ShapeRoundRect
	ShapeEllipse
)

// DirtyState is the per-pulse change state of a node.
type DirtyState uint8

const (
	// Clean nodes contribute no damage and, for groups, have only clean
	// descendants.
	Clean DirtyState = iota
	// DirtyBounds means the node's painted result changed but its
	// descendants did not move. On a group it means some descendant is dirty.
	DirtyBounds
	// DirtySubtree means the node and every descendant must be considered,
	// e.g. after a group transform, opacity or visibility change.
	DirtySubtree
)

func (d DirtyState) String() string {
	switch d {
	case Clean:
		return "clean"
	case DirtyBounds:
		return "dirty-bounds"
	case DirtySubtree:
		return "dirty-subtree"
	default:
		return "unknown"
	}
}

// Node is a single element of the retained render graph. One flat struct is
// used for every kind; group-only fields stay empty on leaves.
//
// Mutations go through the setters in mutate.go, which maintain the dirty
// state the damage accumulator reads. The accumulator is the only code that
// clears it.
type Node struct {
	ID   string
	Name string
	kind Kind

	// Hierarchy. parent is a non-owning back-reference.
	parent   *Node
	children []*Node

	transform geom.Transform
	opacity   float64
	visible   bool
	effect    Effect

	// Leaf geometry, or the background rectangle of a region.
	bounds       geom.Rect
	shape        Shape
	cornerRadius float64
	fill         color.NRGBA
	assetID      string
	assetOpaque  bool

	// Explicitly declared opaque insets, relative to the content bounds.
	opaqueInsets    geom.Insets
	hasOpaqueInsets bool

	// Aggregate content bounds of a group, recomputed lazily.
	content      geom.Rect
	contentValid bool

	// Per-pulse damage state.
	dirty      DirtyState
	childDirty bool
	// painted is the device-space area the node last painted.
	painted geom.Rect
	// vacated collects the painted bounds of children removed since the
	// last pulse.
	vacated geom.Rect
}

func newNode(id string, kind Kind) *Node {
	n := &Node{
		ID:        id,
		kind:      kind,
		transform: geom.Identity(),
		opacity:   1,
		visible:   true,
		bounds:    geom.EmptyRect(),
		content:   geom.EmptyRect(),
		painted:   geom.EmptyRect(),
		vacated:   geom.EmptyRect(),
		fill:      color.NRGBA{A: 0xff},
	}
	if kind.IsGroup() {
		n.dirty = DirtySubtree
	} else {
		n.dirty = DirtyBounds
	}
	return n
}

// NewGroup creates an empty group.
func NewGroup(id string) *Node {
	return newNode(id, KindGroup)
}

// NewRegion creates a group that paints a background of the given fill
// into bounds before its children.
func NewRegion(id string, bounds geom.Rect, fill color.NRGBA) *Node {
	n := newNode(id, KindRegion)
	n.bounds = bounds
	n.fill = fill
	return n
}

// NewRect creates a filled rectangle shape.
func NewRect(id string, bounds geom.Rect, fill color.NRGBA) *Node {
	n := newNode(id, KindShape)
	n.shape = ShapeRect
	n.bounds = bounds
	n.fill = fill
	return n
}

// NewRoundRect creates a filled rectangle with rounded corners.
func NewRoundRect(id string, bounds geom.Rect, radius float64, fill color.NRGBA) *Node {
	n := NewRect(id, bounds, fill)
	n.shape = ShapeRoundRect
	n.cornerRadius = radius
	return n
}

// NewEllipse creates a filled ellipse inscribed in bounds.
func NewEllipse(id string, bounds geom.Rect, fill color.NRGBA) *Node {
	n := NewRect(id, bounds, fill)
	n.shape = ShapeEllipse
	return n
}

// NewImage creates an image node. opaque declares that every pixel of the
// asset has full alpha.
func NewImage(id string, bounds geom.Rect, assetID string, opaque bool) *Node {
	n := newNode(id, KindImage)
	n.bounds = bounds
	n.assetID = assetID
	n.assetOpaque = opaque
	return n
}

// --- Capability set ---

// Kind returns the node variant.
func (n *Node) Kind() Kind { return n.kind }

// IsGroup reports whether the node holds children.
func (n *Node) IsGroup() bool { return n.kind.IsGroup() }

// Parent returns the parent group, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Root walks up the parent chain.
func (n *Node) Root() *Node {
	r := n
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Transform returns the local-to-parent transform.
func (n *Node) Transform() geom.Transform { return n.transform }

// Opacity returns the node's own opacity in [0, 1].
func (n *Node) Opacity() float64 { return n.opacity }

// Visible returns the node's own visibility flag.
func (n *Node) Visible() bool { return n.visible }

// Effect returns the attached effect, or nil.
func (n *Node) Effect() Effect { return n.effect }

// HasEffect reports whether an effect is attached.
func (n *Node) HasEffect() bool { return n.effect != nil }

// Shape returns the outline of a shape node.
func (n *Node) Shape() Shape { return n.shape }

// CornerRadius returns the corner radius of a rounded rectangle.
func (n *Node) CornerRadius() float64 { return n.cornerRadius }

// Fill returns the fill color of shapes and region backgrounds.
func (n *Node) Fill() color.NRGBA { return n.fill }

// AssetID returns the image asset reference.
func (n *Node) AssetID() string { return n.assetID }

// Bounds returns the leaf geometry or region background in local space.
func (n *Node) Bounds() geom.Rect { return n.bounds }

// PaintedBounds returns the device-space bounds recorded the last time the
// node was accumulated. It is empty for nodes that have never been painted
// or were invisible.
func (n *Node) PaintedBounds() geom.Rect { return n.painted }

// Dirty returns the node's dirty state. A group whose own attributes are
// unchanged reports DirtyBounds while any descendant is dirty.
func (n *Node) Dirty() DirtyState {
	if n.dirty != Clean {
		return n.dirty
	}
	if n.childDirty {
		return DirtyBounds
	}
	return Clean
}

// Children returns the child list in paint order (back to front).
// The returned slice MUST NOT be mutated by the caller.
func (n *Node) Children() []*Node { return n.children }

// NumChildren returns the number of children.
func (n *Node) NumChildren() int { return len(n.children) }

// ChildAt returns the child at the given index.
func (n *Node) ChildAt(i int) *Node { return n.children[i] }

// IndexOf returns the position of child, or -1.
func (n *Node) IndexOf(child *Node) int {
	for i, c := range n.children {
		if c == child {
			return i
		}
	}
	return -1
}

// Walk visits n and its descendants depth-first in paint order. Returning
// false from fn skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// Find returns the first node in the subtree with the given ID.
func (n *Node) Find(id string) *Node {
	var found *Node
	n.Walk(func(c *Node) bool {
		if found != nil {
			return false
		}
		if c.ID == id {
			found = c
			return false
		}
		return true
	})
	return found
}

// --- Tree manipulation ---

// AddChild appends child to this group's children.
// If child already has a parent, it is removed from that parent first.
// Panics if n is not a group, child is nil, or child is an ancestor of n.
func (n *Node) AddChild(child *Node) {
	index := len(n.children)
	if child != nil && child.parent == n {
		index--
	}
	n.AddChildAt(child, index)
}

// AddChildAt inserts child at the given index.
// Same reparenting and cycle-check behavior as AddChild.
func (n *Node) AddChildAt(child *Node, index int) {
	if child == nil {
		panic("compositor: cannot add nil child")
	}
	if !n.kind.IsGroup() {
		panic("compositor: cannot add a child to a " + n.kind.String())
	}
	if isAncestor(child, n) {
		panic("compositor: adding child would create a cycle")
	}
	// Index is relative to the children after child leaves its old slot.
	limit := len(n.children)
	if child.parent == n {
		limit--
	}
	if index < 0 || index > limit {
		panic("compositor: child index out of range")
	}
	if child.parent != nil {
		child.parent.RemoveChild(child)
	}
	child.parent = n
	n.children = append(n.children, nil)
	copy(n.children[index+1:], n.children[index:])
	n.children[index] = child
	child.markDirty()
}

// RemoveChild detaches child from this group. The area the child last
// painted is recorded as damage on the group.
// Panics if child's parent is not n.
func (n *Node) RemoveChild(child *Node) {
	if child == nil || child.parent != n {
		panic("compositor: child's parent is not this node")
	}
	n.RemoveChildAt(n.IndexOf(child))
}

// RemoveChildAt removes and returns the child at the given index.
func (n *Node) RemoveChildAt(index int) *Node {
	if index < 0 || index >= len(n.children) {
		panic("compositor: child index out of range")
	}
	child := n.children[index]
	copy(n.children[index:], n.children[index+1:])
	n.children[len(n.children)-1] = nil
	n.children = n.children[:len(n.children)-1]

	n.vacated = n.vacated.Union(subtreePainted(child))
	child.forgetPainted()
	child.parent = nil
	n.markChildChanged()
	return child
}

// --- Helpers ---

// isAncestor reports whether candidate is an ancestor of node (or node itself).
func isAncestor(candidate, node *Node) bool {
	for p := node; p != nil; p = p.parent {
		if p == candidate {
			return true
		}
	}
	return false
}

// subtreePainted returns the union of everything the subtree last painted.
func subtreePainted(n *Node) geom.Rect {
	r := n.painted
	for _, c := range n.children {
		r = r.Union(subtreePainted(c))
	}
	return r
}

// forgetPainted clears the painted record of a detached subtree; it will be
// damaged as new content wherever it is attached next.
func (n *Node) forgetPainted() {
	n.painted = geom.EmptyRect()
	n.vacated = geom.EmptyRect()
	for _, c := range n.children {
		c.forgetPainted()
	}
}

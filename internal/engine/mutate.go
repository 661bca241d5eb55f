package engine

import (
	"image/color"

	"github.com/inamate/compositor/internal/geom"
)

// --- Property setters ---
//
// Every setter records the change in the node's dirty state and flags all
// ancestors, so a clean group always has a clean subtree. Setting a value
// equal to the current one is a no-op.

// SetTransform sets the local-to-parent transform.
func (n *Node) SetTransform(t geom.Transform) {
	if n.transform.Equal(t) {
		return
	}
	n.transform = t
	n.markDirty()
}

// SetProps sets the transform from position, scale, rotation (degrees) and
// anchor, the way documents describe it.
func (n *Node) SetProps(x, y, sx, sy, rDegrees, ax, ay float64) {
	n.SetTransform(geom.FromProps(x, y, sx, sy, rDegrees, ax, ay))
}

// SetContentBounds sets the geometry of a leaf or the background rectangle
// of a region. It has no effect on plain groups, whose bounds are derived
// from their children.
func (n *Node) SetContentBounds(r geom.Rect) {
	if n.kind == KindGroup || n.bounds == r {
		return
	}
	n.bounds = r
	n.markDirty()
}

// SetOpacity sets the node's opacity, clamped to [0, 1].
func (n *Node) SetOpacity(a float64) {
	a = min(max(a, 0), 1)
	if n.opacity == a {
		return
	}
	n.opacity = a
	n.markDirty()
}

// SetVisible shows or hides the node and its subtree.
func (n *Node) SetVisible(v bool) {
	if n.visible == v {
		return
	}
	n.visible = v
	n.markDirty()
}

// SetEffect attaches an effect; nil removes it.
func (n *Node) SetEffect(e Effect) {
	if n.effect == nil && e == nil {
		return
	}
	n.effect = e
	n.markDirty()
}

// SetFill changes the fill color of a shape or region background.
func (n *Node) SetFill(c color.NRGBA) {
	if n.fill == c {
		return
	}
	n.fill = c
	n.markDirty()
}

// SetAsset swaps the image shown by an image node.
func (n *Node) SetAsset(assetID string, opaque bool) {
	if n.assetID == assetID && n.assetOpaque == opaque {
		return
	}
	n.assetID = assetID
	n.assetOpaque = opaque
	n.markDirty()
}

// SetOpaqueInsets declares the part of the content bounds that is always
// fully opaque. Only the occlusion culler reads it, so no damage is
// recorded.
func (n *Node) SetOpaqueInsets(in geom.Insets) {
	n.opaqueInsets = in
	n.hasOpaqueInsets = true
}

// ClearOpaqueInsets removes a declared opaque region.
func (n *Node) ClearOpaqueInsets() {
	n.opaqueInsets = geom.Insets{}
	n.hasOpaqueInsets = false
}

// MarkDirty forces the node to be repainted on the next pulse. Useful when
// the paint result changed in a way the setters do not see.
func (n *Node) MarkDirty() {
	n.markDirty()
}

// MarkTreeDirty forces the whole graph containing n to be repainted.
func (n *Node) MarkTreeDirty() {
	n.Root().markDirty()
}

// --- Dirty propagation ---

func (n *Node) markDirty() {
	if n.kind.IsGroup() {
		n.dirty = DirtySubtree
		n.contentValid = false
	} else if n.dirty == Clean {
		n.dirty = DirtyBounds
	}
	n.markAncestors()
}

// markChildChanged records that the child list of n changed.
func (n *Node) markChildChanged() {
	n.childDirty = true
	n.contentValid = false
	n.markAncestors()
}

func (n *Node) markAncestors() {
	for p := n.parent; p != nil; p = p.parent {
		p.childDirty = true
		p.contentValid = false
	}
}

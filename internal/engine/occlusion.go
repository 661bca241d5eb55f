package engine

import "github.com/inamate/compositor/internal/geom"

// FindRenderRoot finds the deepest, frontmost node under group whose opaque
// region covers target (device space), and records the way there in path.
// Painting can start at that node: everything before it in paint order is
// hidden inside target. Ancestors keep contributing their transforms; only
// their own painting is skipped.
//
// path is reset and reused; a nil path allocates a new one. An empty target,
// a group without children or a group that is itself translucent yields an
// empty path. Panics if group is nil.
func FindRenderRoot(group *Node, target geom.Rect, path *RenderRootPath, viewTx geom.Transform) *RenderRootPath {
	if group == nil {
		panic("compositor: render root query on nil group")
	}
	if path == nil {
		path = NewRenderRootPath()
	}
	path.Reset(group)
	if target.IsEmpty() || len(group.children) == 0 || !occludes(group) {
		return path
	}
	c := culler{target: target, path: path}
	c.search(group, viewTx.Multiply(group.transform))
	return path
}

type culler struct {
	target geom.Rect
	path   *RenderRootPath
}

// search walks the children of g front to back. On success the path ends
// at the chosen node.
func (c *culler) search(g *Node, tx geom.Transform) bool {
	for i := len(g.children) - 1; i >= 0; i-- {
		child := g.children[i]
		if !occludes(child) {
			continue
		}
		childTx := tx.Multiply(child.transform)
		c.path.Push(g, i)
		if child.kind.IsGroup() && c.search(child, childTx) {
			return true
		}
		if c.covers(child, childTx) {
			return true
		}
		c.path.Pop()
	}
	return false
}

// covers reports whether n's opaque region, mapped to device space,
// contains the target. Only rectilinear 2D mappings keep a rectangle
// rectangular, so anything else is rejected.
func (c *culler) covers(n *Node, tx geom.Transform) bool {
	if !tx.Is2D() || !tx.IsRectilinear() {
		return false
	}
	r := n.OpaqueRegion()
	if r.IsEmpty() {
		return false
	}
	return tx.TransformRect(r).Contains(c.target)
}

// occludes reports whether n can hide what is behind it at all.
func occludes(n *Node) bool {
	if !n.visible || n.opacity < 1 {
		return false
	}
	return n.effect == nil || n.effect.PreservesOpacity()
}

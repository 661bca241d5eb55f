package engine

import (
	"math"

	"github.com/inamate/compositor/internal/geom"
)

// paints reports whether the node's own flags allow it to produce pixels.
func (n *Node) paints() bool {
	return n.visible && n.opacity > 0
}

// ContentBounds returns the node's bounds in its own local space. Leaves
// report their geometry; groups report the union of their painting
// children's bounds mapped into the group's space, plus the background of
// a region. Group bounds are cached until a descendant changes.
func (n *Node) ContentBounds() geom.Rect {
	if !n.kind.IsGroup() {
		return n.bounds
	}
	if n.contentValid {
		return n.content
	}
	r := geom.EmptyRect()
	if n.kind == KindRegion {
		r = n.bounds
	}
	for _, c := range n.children {
		if !c.paints() {
			continue
		}
		r = r.Union(c.transform.TransformRect(c.EffectBounds(c.ContentBounds(), c.transform)))
	}
	n.content = r
	n.contentValid = true
	return r
}

// EffectBounds returns base enlarged by the attached effect, or base when
// there is none.
func (n *Node) EffectBounds(base geom.Rect, tx geom.Transform) geom.Rect {
	if n.effect == nil {
		return base
	}
	return n.effect.Bounds(base, tx)
}

// deviceBounds returns the device-space area the node paints through tx,
// its node-to-device transform. Groups are measured from scratch.
func (n *Node) deviceBounds(tx geom.Transform) geom.Rect {
	return n.boundsThrough(tx, func(c *Node) geom.Rect {
		return c.deviceBounds(tx.Multiply(c.transform))
	})
}

// settledBounds is deviceBounds for a node whose children already carry
// fresh painted bounds.
func (n *Node) settledBounds(tx geom.Transform) geom.Rect {
	return n.boundsThrough(tx, func(c *Node) geom.Rect { return c.painted })
}

// boundsThrough maps the node's content to device space. Through a 2D
// transform the local content bounds project exactly, since z never feeds
// back into x and y. Otherwise every child is projected along its own full
// chain, as the painter draws it, and child supplies those device bounds.
func (n *Node) boundsThrough(tx geom.Transform, child func(*Node) geom.Rect) geom.Rect {
	if tx.Is2D() {
		return tx.TransformRect(n.EffectBounds(n.ContentBounds(), tx))
	}
	if !n.kind.IsGroup() {
		r := tx.TransformRect(n.bounds)
		if n.effect != nil {
			r = n.spreadEffect(r, tx, n.bounds)
		}
		return r
	}
	r := geom.EmptyRect()
	if n.kind == KindRegion {
		r = tx.TransformRect(n.bounds)
	}
	for _, c := range n.children {
		if c.paints() {
			r = r.Union(child(c))
		}
	}
	if n.effect != nil {
		r = n.spreadEffect(r, tx, n.ContentBounds())
	}
	return r
}

// spreadEffect grows device-space content r by the node's effect under a
// non-2D transform. The spread is measured on local, the content flattened
// into the node's plane, and applied on every side of r.
func (n *Node) spreadEffect(r geom.Rect, tx geom.Transform, local geom.Rect) geom.Rect {
	if r.IsEmpty() || local.IsEmpty() {
		return r
	}
	plain := tx.TransformRect(local)
	grown := tx.TransformRect(n.effect.Bounds(local, tx))
	d := max(plain.MinX-grown.MinX, plain.MinY-grown.MinY, grown.MaxX-plain.MaxX, grown.MaxY-plain.MaxY, 0)
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return geom.InfiniteRect()
	}
	return r.Pad(d)
}

// OpaqueInsets returns the declared opaque insets, if any.
func (n *Node) OpaqueInsets() (geom.Insets, bool) {
	return n.opaqueInsets, n.hasOpaqueInsets
}

// OpaqueRegion returns the local-space rectangle the node is guaranteed to
// cover with fully opaque pixels, or an empty rect. Declared insets win;
// otherwise it is derived from the shape and fill.
func (n *Node) OpaqueRegion() geom.Rect {
	if n.hasOpaqueInsets {
		base := n.bounds
		if n.kind == KindGroup {
			base = n.ContentBounds()
		}
		return base.Inset(n.opaqueInsets)
	}

	switch n.kind {
	case KindShape:
		if n.fill.A != 0xff {
			return geom.EmptyRect()
		}
		switch n.shape {
		case ShapeRect:
			return n.bounds
		case ShapeRoundRect:
			// The largest uniformly inset rectangle whose corners touch the arcs.
			r := min(n.cornerRadius, n.bounds.Width()/2, n.bounds.Height()/2)
			return n.bounds.Inset(geom.UniformInsets(r * (1 - 1/math.Sqrt2)))
		case ShapeEllipse:
			cx, cy := n.bounds.Center()
			hw := n.bounds.Width() / 2 / math.Sqrt2
			hh := n.bounds.Height() / 2 / math.Sqrt2
			return geom.Rect{MinX: cx - hw, MinY: cy - hh, MaxX: cx + hw, MaxY: cy + hh}
		}
	case KindImage:
		if n.assetOpaque {
			return n.bounds
		}
	case KindRegion:
		if n.fill.A == 0xff {
			return n.bounds
		}
	}
	return geom.EmptyRect()
}

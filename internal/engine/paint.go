package engine

import "github.com/inamate/compositor/internal/geom"

// PaintVisitor receives the nodes of a frame in paint order. Transforms are
// node-to-device; alpha is the inherited opacity including the node's own.
type PaintVisitor interface {
	// DrawNode draws the node's own content: a shape, an image or a region
	// background.
	DrawNode(n *Node, tx geom.Transform, alpha float64)
	// PushEffect and PopEffect bracket a node drawn under its effect.
	PushEffect(n *Node, tx geom.Transform, alpha float64)
	PopEffect(n *Node)
}

// Traverse walks the frame's graph in paint order, starting at the render
// root. Ancestors of the render root contribute their transform and
// opacity but are not drawn, and their children before the path are
// skipped. Invisible and fully transparent subtrees are skipped.
func (f Frame) Traverse(v PaintVisitor) {
	if f.Root == nil {
		return
	}
	f.traverse(v, f.Root, 0, f.View, 1)
}

func (f Frame) traverse(v PaintVisitor, n *Node, depth int, parentTx geom.Transform, alpha float64) {
	if !n.paints() {
		return
	}
	tx := parentTx.Multiply(n.transform)
	alpha *= n.opacity
	ancestor := f.Path.OnPath(depth, n)

	if n.effect != nil {
		v.PushEffect(n, tx, alpha)
	}
	if !ancestor {
		v.DrawNode(n, tx, alpha)
	}
	for i := f.Path.StartIndex(depth, n); i < len(n.children); i++ {
		f.traverse(v, n.children[i], depth+1, tx, alpha)
	}
	if n.effect != nil {
		v.PopEffect(n)
	}
}

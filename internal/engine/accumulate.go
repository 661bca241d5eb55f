package engine

import (
	"log/slog"

	"github.com/inamate/compositor/internal/dirty"
	"github.com/inamate/compositor/internal/geom"
)

// DefaultPadding is the number of device units every damage rectangle is
// grown by. Axis-aligned enclosures of rotated content are already
// conservative; the pad only absorbs floating-point error at the edges.
const DefaultPadding = 1.0

// Accumulator walks a render graph once per pulse and records the device
// rectangles that must be repainted. An Accumulator carries configuration
// only and may be reused across pulses.
type Accumulator struct {
	// Padding grows each damage rectangle, in device units.
	Padding float64
	// Logger receives warnings about degraded (conservative) results.
	Logger *slog.Logger
}

// NewAccumulator returns an accumulator using DefaultPadding.
func NewAccumulator() *Accumulator {
	return &Accumulator{Padding: DefaultPadding, Logger: slog.New(slog.DiscardHandler)}
}

// Accumulate is Accumulator.Accumulate with default settings.
func Accumulate(node *Node, clip geom.Rect, pool *dirty.Pool, out *dirty.Container, parentTx, viewTx geom.Transform) dirty.Status {
	return NewAccumulator().Accumulate(node, clip, pool, out, parentTx, viewTx, nil)
}

// Accumulate fills out with the damage produced by node and its subtree
// since the last pulse, clipped to clip (device space). parentTx is the
// accumulated transform from the scene root to node's parent and viewTx
// maps scene space to device space. Every visited node is left clean with
// its painted bounds refreshed; painted bounds are kept in device space, so
// a caller that changes viewTx must mark the tree dirty. The pool provides
// scratch containers for groups with effects. stats may be nil.
func (a *Accumulator) Accumulate(node *Node, clip geom.Rect, pool *dirty.Pool, out *dirty.Container, parentTx, viewTx geom.Transform, stats *Stats) dirty.Status {
	if node == nil {
		panic("compositor: accumulate on nil node")
	}
	w := walker{
		pad:     a.Padding,
		clip:    clip,
		pool:    pool,
		logger:  a.Logger,
		stats:   stats,
		covered: out.Covers(clip),
	}
	if w.logger == nil {
		w.logger = slog.New(slog.DiscardHandler)
	}
	if w.stats == nil {
		w.stats = &Stats{}
	}
	w.visit(node, out, viewTx.Multiply(parentTx), false)
	if w.covered || out.Covers(clip) {
		return dirty.StatusContainsClip
	}
	return out.Status()
}

type walker struct {
	pad     float64
	clip    geom.Rect
	pool    *dirty.Pool
	logger  *slog.Logger
	stats   *Stats
	covered bool
}

// visit accumulates damage for n. parentTx maps n's parent to device
// space. hidden is true when an ancestor is invisible or fully transparent.
func (w *walker) visit(n *Node, out *dirty.Container, parentTx geom.Transform, hidden bool) {
	w.stats.Visited++
	if n.Dirty() == Clean {
		return
	}
	nodeTx := parentTx.Multiply(n.transform)

	// Leaves, and groups whose own attributes changed: everything the node
	// painted before and everything it paints now.
	if !n.kind.IsGroup() || n.dirty != Clean {
		old := n.painted.Union(n.vacated)
		now := w.settle(n, nodeTx, hidden, true)
		w.emit(out, old.Union(now))
		return
	}

	// Only descendants changed.
	hidden = hidden || !n.paints()
	if hidden {
		w.settle(n, nodeTx, true, false)
		return
	}
	old := n.painted.Union(n.vacated)
	if w.covered || (!old.Intersects(w.clip) && !n.deviceBounds(nodeTx).Intersects(w.clip)) {
		w.stats.Culled++
		w.settle(n, nodeTx, false, false)
		return
	}

	if n.effect != nil {
		w.visitEffectChildren(n, out, nodeTx)
	} else {
		w.emit(out, n.vacated)
		for _, c := range n.children {
			w.visit(c, out, nodeTx, false)
		}
	}
	n.vacated = geom.EmptyRect()
	n.painted = n.settledBounds(nodeTx)
	n.dirty = Clean
	n.childDirty = false
}

// visitEffectChildren collects the children's damage in a scratch
// container, then spreads each rectangle by the group's effect: a blur or
// shadow repaints pixels outside the changed child. Spreading maps the
// damage back into the group's plane, which only a 2D transform allows;
// under any other transform the whole group is damaged.
func (w *walker) visitEffectChildren(n *Node, out *dirty.Container, nodeTx geom.Transform) {
	old := n.painted.Union(n.vacated)
	if !nodeTx.Is2D() {
		w.emit(out, old.Union(w.settle(n, nodeTx, false, false)))
		return
	}
	inv, err := nodeTx.Invert()
	if err != nil {
		w.logger.Warn("singular transform under effect, damaging whole group", "node", n.ID)
		w.emit(out, old.Union(w.settle(n, nodeTx, false, false)))
		return
	}
	tmp, err := w.pool.Checkout()
	if err != nil {
		w.logger.Warn("damage scratch container unavailable, damaging whole group", "node", n.ID, "error", err)
		w.emit(out, old.Union(w.settle(n, nodeTx, false, false)))
		return
	}
	defer w.pool.Return(tmp)

	clip, pad, covered := w.clip, w.pad, w.covered
	w.clip, w.pad, w.covered = geom.InfiniteRect(), 0, false
	w.emit(tmp, n.vacated)
	for _, c := range n.children {
		w.visit(c, tmp, nodeTx, false)
	}
	w.clip, w.pad, w.covered = clip, pad, covered

	for r := range tmp.All() {
		local := inv.TransformRect(r)
		w.emit(out, nodeTx.TransformRect(n.effect.Bounds(local, nodeTx)))
	}
}

// settle refreshes the painted bounds of n and clears its dirty state
// without recording damage. With all set every descendant is refreshed;
// otherwise only the dirty paths. It returns the new painted bounds of n.
func (w *walker) settle(n *Node, nodeTx geom.Transform, hidden, all bool) geom.Rect {
	hidden = hidden || !n.paints()
	for _, c := range n.children {
		if !all && c.Dirty() == Clean {
			continue
		}
		w.stats.Settled++
		w.settle(c, nodeTx.Multiply(c.transform), hidden, all || c.dirty != Clean)
	}
	if hidden {
		n.painted = geom.EmptyRect()
	} else {
		n.painted = n.settledBounds(nodeTx)
	}
	n.vacated = geom.EmptyRect()
	n.dirty = Clean
	n.childDirty = false
	return n.painted
}

// emit pads and clips a device-space rectangle and adds it to out.
func (w *walker) emit(out *dirty.Container, r geom.Rect) {
	if r.IsEmpty() || w.covered {
		return
	}
	r = r.Pad(w.pad).Intersect(w.clip)
	if r.IsEmpty() {
		w.stats.Culled++
		return
	}
	w.stats.Emitted++
	out.Add(r)
	if out.Covers(w.clip) {
		w.covered = true
	}
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/inamate/compositor/internal/dirty"
	"github.com/inamate/compositor/internal/geom"
)

// Frame is what a Painter receives once per pulse. Regions and Path are
// owned by the engine and reused; a painter MUST NOT retain them after
// Paint returns.
type Frame struct {
	Pulse   uint64
	Root    *Node
	Clip    geom.Rect
	View    geom.Transform
	Regions []geom.Rect
	Status  dirty.Status
	Path    *RenderRootPath
}

// Painter draws a frame. It is called on the render goroutine.
type Painter interface {
	Paint(ctx context.Context, f Frame) error
}

// PainterFunc adapts a function to the Painter interface.
type PainterFunc func(ctx context.Context, f Frame) error

// Paint implements Painter.
func (fn PainterFunc) Paint(ctx context.Context, f Frame) error { return fn(ctx, f) }

// Stats summarizes one pulse.
type Stats struct {
	Pulse     uint64        `json:"pulse"`
	Mutations int           `json:"mutations"`
	Visited   int           `json:"visited"`
	Settled   int           `json:"settled"`
	Culled    int           `json:"culled"`
	Emitted   int           `json:"emitted"`
	Regions   int           `json:"regions"`
	Status    dirty.Status  `json:"status"`
	RootDepth int           `json:"rootDepth"`
	Painted   bool          `json:"painted"`
	Duration  time.Duration `json:"duration"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithPool sets the dirty region pool. The default holds
// dirty.DefaultPoolSize containers of dirty.DefaultCapacity rectangles.
func WithPool(p *dirty.Pool) Option {
	return func(e *Engine) { e.pool = p }
}

// WithPadding sets the damage padding in device units.
func WithPadding(pad float64) Option {
	return func(e *Engine) { e.acc.Padding = pad }
}

// WithLogger sets the logger. Nil keeps the silent default.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithView sets the initial scene-to-device transform.
func WithView(t geom.Transform) Option {
	return func(e *Engine) { e.view = t }
}

// Engine owns a render graph and runs the per-pulse pipeline: commit queued
// mutations, accumulate damage, find the render root, paint.
//
// Submit, SetView, SetClip and LastStats may be called from any goroutine.
// Pulse must only be called from the render goroutine, which is also the
// only goroutine that touches the graph.
type Engine struct {
	root    *Node
	painter Painter
	pool    *dirty.Pool
	acc     Accumulator
	logger  *slog.Logger

	// Render goroutine state.
	clip     geom.Rect
	view     geom.Transform
	fallback *dirty.Container
	path     *RenderRootPath
	regions  []geom.Rect
	pulse    uint64

	mu          sync.Mutex
	queue       []func(*Node)
	spare       []func(*Node)
	pendingView *geom.Transform
	pendingClip *geom.Rect
	last        Stats
}

// NewEngine creates an engine for the graph rooted at root, painting into
// clip (device space).
func NewEngine(root *Node, clip geom.Rect, painter Painter, opts ...Option) *Engine {
	if root == nil {
		panic("compositor: engine needs a root node")
	}
	e := &Engine{
		root:    root,
		painter: painter,
		acc:     Accumulator{Padding: DefaultPadding},
		logger:  slog.New(slog.DiscardHandler),
		clip:    clip,
		view:    geom.Identity(),
		path:    NewRenderRootPath(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pool == nil {
		e.pool = dirty.NewPool(dirty.DefaultPoolSize, dirty.DefaultCapacity)
	}
	if e.painter == nil {
		e.painter = PainterFunc(func(context.Context, Frame) error { return nil })
	}
	e.acc.Logger = e.logger
	e.fallback = dirty.NewContainer(e.pool.ContainerCap())
	return e
}

// --- Commands (any goroutine) ---

// Submit queues a mutation. It runs on the render goroutine at the start of
// the next pulse, before damage is accumulated, and receives the root.
func (e *Engine) Submit(fn func(root *Node)) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.queue = append(e.queue, fn)
	e.mu.Unlock()
}

// SetView replaces the scene-to-device transform at the next pulse. The
// whole clip is repainted.
func (e *Engine) SetView(t geom.Transform) {
	e.mu.Lock()
	e.pendingView = &t
	e.mu.Unlock()
}

// SetClip resizes the device area at the next pulse. The whole new clip is
// repainted.
func (e *Engine) SetClip(r geom.Rect) {
	e.mu.Lock()
	e.pendingClip = &r
	e.mu.Unlock()
}

// LastStats returns the statistics of the most recent pulse.
func (e *Engine) LastStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// --- Render goroutine ---

// Root returns the graph root. Only the render goroutine, or code running
// inside a submitted mutation, may use it.
func (e *Engine) Root() *Node { return e.root }

// Clip returns the device area currently painted.
func (e *Engine) Clip() geom.Rect { return e.clip }

// View returns the scene-to-device transform currently in effect.
func (e *Engine) View() geom.Transform { return e.view }

// Pool returns the dirty region pool.
func (e *Engine) Pool() *dirty.Pool { return e.pool }

// Pulse runs one cycle. The painter is only called when something needs
// repainting. The returned error is the painter's.
func (e *Engine) Pulse(ctx context.Context) (Stats, error) {
	start := time.Now()
	e.pulse++
	stats := Stats{Pulse: e.pulse}

	// Barrier: every mutation submitted so far becomes visible at once.
	e.mu.Lock()
	ops := e.queue
	e.queue = e.spare[:0]
	view, clip := e.pendingView, e.pendingClip
	e.pendingView, e.pendingClip = nil, nil
	e.mu.Unlock()

	for _, fn := range ops {
		fn(e.root)
	}
	stats.Mutations = len(ops)
	clear(ops)
	e.spare = ops[:0]

	full := false
	if view != nil && !view.Equal(e.view) {
		e.view = *view
		full = true
		// Painted bounds are cached in device space.
		e.root.MarkTreeDirty()
	}
	if clip != nil && *clip != e.clip {
		e.clip = *clip
		full = true
	}

	out, err := e.pool.Checkout()
	pooled := err == nil
	if !pooled {
		e.logger.Warn("dirty region pool exhausted, repainting everything", "pulse", e.pulse, "error", err)
		out = e.fallback
		out.Reset()
		full = true
	}
	defer func() {
		if pooled {
			e.pool.Return(out)
		}
	}()
	if full {
		out.Add(e.clip)
	}

	stats.Status = e.acc.Accumulate(e.root, e.clip, e.pool, out, geom.Identity(), e.view, &stats)
	stats.Regions = out.Len()

	var paintErr error
	if !out.IsEmpty() {
		// Painters work on whole pixels, so the render root has to cover
		// every pixel the damage touches.
		target := out.Bounds().RoundOut().Intersect(e.clip)
		FindRenderRoot(e.root, target, e.path, e.view)
		stats.RootDepth = e.path.Len()
		e.regions = out.AppendTo(e.regions[:0])
		frame := Frame{
			Pulse:   e.pulse,
			Root:    e.root,
			Clip:    e.clip,
			View:    e.view,
			Regions: e.regions,
			Status:  stats.Status,
			Path:    e.path,
		}
		if err := e.painter.Paint(ctx, frame); err != nil {
			paintErr = fmt.Errorf("paint pulse %d: %w", e.pulse, err)
		}
		stats.Painted = true
	}
	stats.Duration = time.Since(start)

	e.mu.Lock()
	e.last = stats
	e.mu.Unlock()

	if stats.Painted {
		e.logger.Debug("pulse",
			"pulse", stats.Pulse,
			"mutations", stats.Mutations,
			"regions", stats.Regions,
			"status", stats.Status,
			"root_depth", stats.RootDepth,
			"duration", stats.Duration,
		)
	}
	return stats, paintErr
}

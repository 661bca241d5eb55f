// Package session runs scenes: one render goroutine per watched scene that
// advances the timeline, applies viewer operations and pulses the engine.
package session

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/inamate/compositor/internal/db"
	"github.com/inamate/compositor/internal/dirty"
	"github.com/inamate/compositor/internal/document"
	"github.com/inamate/compositor/internal/engine"
	"github.com/inamate/compositor/internal/geom"
	"github.com/inamate/compositor/internal/raster"
	"github.com/inamate/compositor/internal/timeline"
)

// Config tunes every session a manager starts.
type Config struct {
	// PulseRate is the number of pulses per second.
	PulseRate int
	// StatsEvery persists every n-th painted pulse; 0 disables it.
	StatsEvery int
	Padding    float64
	RegionCap  int
	PoolSize   int
}

// DefaultConfig matches the engine defaults at 60 pulses per second.
func DefaultConfig() Config {
	return Config{
		PulseRate:  60,
		StatsEvery: 60,
		Padding:    engine.DefaultPadding,
		RegionCap:  dirty.DefaultCapacity,
		PoolSize:   dirty.DefaultPoolSize,
	}
}

// StatsStore persists sampled pulse statistics.
type StatsStore interface {
	InsertPulseStat(ctx context.Context, arg db.InsertPulseStatParams) error
}

// Session is one running scene.
type Session struct {
	id     string
	cfg    Config
	state  *DocumentState
	engine *engine.Engine
	raster *raster.Painter
	stats  StatsStore
	logger *slog.Logger

	scene document.Scene

	// Render goroutine state.
	nodes    map[string]*engine.Node
	timeline *timeline.Timeline
	fps      int
	pulses   uint64
}

type deps struct {
	stats  StatsStore
	pub    FramePublisher
	assets raster.AssetSource
	logger *slog.Logger
}

func newSession(id string, doc *document.InDocument, cfg Config, d deps) (*Session, error) {
	state, err := NewDocumentState(doc, "")
	if err != nil {
		return nil, err
	}
	sc, err := doc.Scene("")
	if err != nil {
		return nil, err
	}
	if sc.Width <= 0 || sc.Height <= 0 {
		return nil, fmt.Errorf("scene %q has size %dx%d", sc.ID, sc.Width, sc.Height)
	}
	root, err := engine.Build(doc, sc.ID)
	if err != nil {
		return nil, fmt.Errorf("build scene: %w", err)
	}
	tl, err := state.Timeline(sc.ID)
	if err != nil {
		return nil, fmt.Errorf("compile timeline: %w", err)
	}
	bg, err := document.ParseColor(sc.Background)
	if err != nil {
		return nil, fmt.Errorf("scene background: %w", err)
	}

	logger := d.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("scene", id)

	rp := raster.NewPainter(sc.Width, sc.Height, bg, raster.WithAssets(d.assets), raster.WithLogger(logger))
	s := &Session{
		id:       id,
		cfg:      cfg,
		state:    state,
		raster:   rp,
		stats:    d.stats,
		logger:   logger,
		scene:    sc,
		nodes:    engine.Index(root),
		timeline: tl,
		fps:      max(doc.Project.FPS, 1),
	}
	s.engine = engine.NewEngine(root,
		geom.XYWH(0, 0, float64(sc.Width), float64(sc.Height)),
		&framePainter{sceneID: id, raster: rp, pub: d.pub},
		engine.WithPool(dirty.NewPool(cfg.PoolSize, cfg.RegionCap)),
		engine.WithPadding(cfg.Padding),
		engine.WithLogger(logger),
	)
	return s, nil
}

// ID returns the scene ID.
func (s *Session) ID() string { return s.id }

// Engine returns the session's engine.
func (s *Session) Engine() *engine.Engine { return s.engine }

// State returns the session's document state.
func (s *Session) State() *DocumentState { return s.state }

// Snapshot returns a copy of the canvas as of the last painted pulse.
func (s *Session) Snapshot() *image.RGBA { return s.raster.Snapshot() }

// Run pulses at the configured rate until ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	rate := max(s.cfg.PulseRate, 1)
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	s.logger.Info("session started", "rate", rate)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session stopped", "pulses", s.pulses)
			return
		case <-ticker.C:
			if _, err := s.Step(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("pulse failed", "error", err)
			}
		}
	}
}

// Step advances the timeline by one pulse and runs it. It must only be
// called from the goroutine that owns the session.
func (s *Session) Step(ctx context.Context) (engine.Stats, error) {
	if s.timeline != nil {
		tick := s.pulses * uint64(s.fps) / uint64(max(s.cfg.PulseRate, 1))
		sample := s.timeline.Evaluate(s.timeline.Frame(tick))
		s.engine.Submit(func(*engine.Node) {
			if _, err := s.timeline.Apply(s.nodes, sample); err != nil {
				s.logger.Warn("timeline apply failed", "error", err)
			}
		})
	}
	s.pulses++

	stats, err := s.engine.Pulse(ctx)
	if stats.Painted && s.stats != nil && s.cfg.StatsEvery > 0 && stats.Pulse%uint64(s.cfg.StatsEvery) == 0 {
		if err := s.stats.InsertPulseStat(ctx, toStatRow(s.id, stats)); err != nil {
			s.logger.Warn("persist pulse stats", "error", err)
		}
	}
	return stats, err
}

// Apply validates op and queues it for the next pulse.
func (s *Session) Apply(op Operation) (int64, error) {
	seq, obj, err := s.state.Apply(op)
	if err != nil {
		return 0, err
	}
	s.engine.Submit(func(*engine.Node) { s.applyToGraph(op, obj) })
	return seq, nil
}

// applyToGraph runs on the render goroutine.
func (s *Session) applyToGraph(op Operation, obj document.ObjectNode) {
	n := s.nodes[op.ObjectID]
	if n == nil {
		return
	}
	switch op.Type {
	case OpTransform:
		n.SetTransform(obj.LocalTransform().Matrix())
	case OpOpacity:
		n.SetOpacity(obj.Style.Alpha())
	case OpVisibility:
		n.SetVisible(!obj.Hidden)
	case OpFill:
		if c, err := document.ParseColor(obj.Style.Fill); err == nil {
			n.SetFill(c)
		}
	case OpEffect:
		if obj.Effect == nil {
			n.SetEffect(nil)
		} else if e, err := engine.EffectFromSpec(*obj.Effect); err == nil {
			n.SetEffect(e)
		}
	case OpBounds:
		n.SetContentBounds(obj.Geometry.Rect())
	case OpRemove:
		if p := n.Parent(); p != nil {
			p.RemoveChild(n)
		}
		n.Walk(func(c *engine.Node) bool {
			delete(s.nodes, c.ID)
			return true
		})
	}
	s.recompileTimeline()
}

// replace swaps the scene content for doc's without restarting the loop.
// The caller has checked that size and background are unchanged.
func (s *Session) replace(doc *document.InDocument) error {
	root, err := engine.Build(doc, s.scene.ID)
	if err != nil {
		return fmt.Errorf("build scene: %w", err)
	}
	s.state.Replace(doc)
	s.engine.Submit(func(old *engine.Node) {
		for old.NumChildren() > 0 {
			old.RemoveChildAt(old.NumChildren() - 1)
		}
		for root.NumChildren() > 0 {
			old.AddChild(root.RemoveChildAt(0))
		}
		old.SetTransform(root.Transform())
		old.SetOpacity(root.Opacity())
		old.SetVisible(root.Visible())
		old.SetEffect(root.Effect())
		s.nodes = engine.Index(old)
		s.recompileTimeline()
	})
	return nil
}

func (s *Session) recompileTimeline() {
	tl, err := s.state.Timeline(s.scene.ID)
	if err != nil {
		s.logger.Warn("timeline no longer compiles, stopping animation", "error", err)
		tl = nil
	}
	s.timeline = tl
}

func toStatRow(sceneID string, st engine.Stats) db.InsertPulseStatParams {
	return db.InsertPulseStatParams{
		SceneID:    sceneID,
		Pulse:      int64(st.Pulse),
		Visited:    int32(st.Visited),
		Culled:     int32(st.Culled),
		Regions:    int32(st.Regions),
		Status:     st.Status.String(),
		RootDepth:  int32(st.RootDepth),
		DurationUs: st.Duration.Microseconds(),
	}
}

package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/inamate/compositor/internal/dirty"
	"github.com/inamate/compositor/internal/geom"
)

type recordedFrame struct {
	regions []geom.Rect
	status  dirty.Status
	path    []string
}

// recorder copies what it needs out of each frame, since regions and path
// are reused by the engine.
type recorder struct {
	frames []recordedFrame
	err    error
}

func (r *recorder) Paint(_ context.Context, f Frame) error {
	r.frames = append(r.frames, recordedFrame{
		regions: append([]geom.Rect(nil), f.Regions...),
		status:  f.Status,
		path:    f.Path.IDs(),
	})
	return r.err
}

func (r *recorder) last(t *testing.T) recordedFrame {
	t.Helper()
	if len(r.frames) == 0 {
		t.Fatal("nothing painted")
	}
	return r.frames[len(r.frames)-1]
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *recorder, *Node) {
	t.Helper()
	root := group("root",
		NewRect("back", geom.XYWH(0, 0, 100, 100), opaqueBlue),
		NewRect("front", geom.XYWH(0, 0, 50, 50), opaqueRed),
	)
	rec := &recorder{}
	e := NewEngine(root, geom.XYWH(0, 0, 200, 200), rec, opts...)
	if _, err := e.Pulse(context.Background()); err != nil {
		t.Fatalf("first pulse: %v", err)
	}
	return e, rec, root
}

func TestEngineFirstPulsePaintsScene(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	f := rec.last(t)
	approxRect(t, union(f.regions), geom.XYWH(0, 0, 101, 101))
	if st := e.LastStats(); !st.Painted || st.Pulse != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestEngineIdlePulseDoesNotPaint(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	st, err := e.Pulse(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Painted || len(rec.frames) != 1 {
		t.Fatalf("idle pulse painted: %+v", st)
	}
	if st.Pulse != 2 {
		t.Errorf("pulse = %d, want 2", st.Pulse)
	}
}

func TestEngineSubmitAppliesAtNextPulse(t *testing.T) {
	e, rec, root := newTestEngine(t)
	front := root.Find("front")

	e.Submit(func(root *Node) { root.Find("front").SetFill(opaqueBlue) })
	if front.Fill() != opaqueRed {
		t.Fatal("mutation ran before the pulse")
	}

	st, err := e.Pulse(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Mutations != 1 || !st.Painted {
		t.Fatalf("stats = %+v", st)
	}
	f := rec.last(t)
	approxRect(t, union(f.regions), geom.XYWH(0, 0, 51, 51))
	// Padding pushes the damage one pixel past front, so back is the
	// deepest node covering it.
	assertIDs(t, f.path, []string{"root", "back"})
	if st.RootDepth != 1 {
		t.Errorf("root depth = %d, want 1", st.RootDepth)
	}
}

func TestEngineSubmitFromManyGoroutines(t *testing.T) {
	e, _, root := newTestEngine(t)
	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Submit(func(root *Node) {
				root.AddChild(NewRect("dot", geom.XYWH(150, 150, 1, 1), opaqueRed))
			})
		}()
	}
	wg.Wait()

	st, err := e.Pulse(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Mutations != n || root.NumChildren() != n+2 {
		t.Fatalf("applied %d mutations, root has %d children", st.Mutations, root.NumChildren())
	}
}

func TestEngineViewChangeRepaintsClip(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	e.SetView(geom.Scale(2, 2))
	st, err := e.Pulse(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != dirty.StatusContainsClip {
		t.Errorf("status = %v, want contains-clip", st.Status)
	}
	approxRect(t, union(rec.last(t).regions), e.Clip())
	if !e.View().Equal(geom.Scale(2, 2)) {
		t.Error("view not applied")
	}

	// Setting the same view again is not a change.
	e.SetView(geom.Scale(2, 2))
	if st, _ := e.Pulse(context.Background()); st.Painted {
		t.Error("unchanged view repainted")
	}
}

func TestEngineClipChangeRepaintsNewClip(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	e.SetClip(geom.XYWH(0, 0, 300, 120))
	if _, err := e.Pulse(context.Background()); err != nil {
		t.Fatal(err)
	}
	approxRect(t, union(rec.last(t).regions), geom.XYWH(0, 0, 300, 120))
}

func TestEnginePoolExhaustionRepaintsEverything(t *testing.T) {
	e, rec, _ := newTestEngine(t, WithPool(dirty.NewPool(1, 4)))
	held, err := e.Pool().Checkout()
	if err != nil {
		t.Fatal(err)
	}
	defer e.Pool().Return(held)

	st, err := e.Pulse(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !st.Painted || st.Status != dirty.StatusContainsClip {
		t.Fatalf("stats = %+v", st)
	}
	approxRect(t, union(rec.last(t).regions), e.Clip())
}

func TestEnginePainterErrorIsWrapped(t *testing.T) {
	errBoom := errors.New("boom")
	e, rec, _ := newTestEngine(t)
	rec.err = errBoom

	e.Submit(func(root *Node) { root.Find("back").SetFill(opaqueRed) })
	_, err := e.Pulse(context.Background())
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
	// The damage was consumed; the next pulse is idle.
	rec.err = nil
	if st, _ := e.Pulse(context.Background()); st.Painted {
		t.Error("failed frame repainted without new damage")
	}
}

func TestEnginePaddingOption(t *testing.T) {
	_, rec, _ := newTestEngine(t, WithPadding(0))
	approxRect(t, union(rec.last(t).regions), geom.XYWH(0, 0, 100, 100))
}

func TestEngineLoggerDefaultsToDiscard(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{name: "no option"},
		{name: "nil logger", opts: []Option{WithLogger(nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, _ := newTestEngine(t, tt.opts...)
			if e.logger == nil {
				t.Fatal("logger is nil")
			}
			if e.logger.Enabled(context.Background(), slog.LevelError) {
				t.Error("default logger should discard every level")
			}
		})
	}
	if NewAccumulator().Logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("default accumulator logger should discard every level")
	}
}

func TestNewEngineNilRootPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic")
		}
	}()
	NewEngine(nil, geom.XYWH(0, 0, 1, 1), nil)
}

func TestTraverseSkipsBehindRenderRoot(t *testing.T) {
	root := group("root",
		NewRect("back", geom.XYWH(0, 0, 100, 100), opaqueBlue),
		NewRect("front", geom.XYWH(0, 0, 50, 50), opaqueRed),
	)
	path := FindRenderRoot(root, geom.XYWH(10, 10, 10, 10), nil, geom.Identity())
	f := Frame{Root: root, View: geom.Identity(), Regions: []geom.Rect{geom.XYWH(10, 10, 10, 10)}, Path: path}

	cmds := CompileDrawCommands(f)
	var ops []string
	for _, c := range cmds {
		ops = append(ops, c.Op+":"+c.ObjectID)
	}
	want := []string{"clip:", "clear:", "rect:front"}
	assertIDs(t, ops, want)

	f.Path = nil
	cmds = CompileDrawCommands(f)
	if len(cmds) != 4 {
		t.Fatalf("without a render root got %d commands, want 4", len(cmds))
	}
}

func TestCompileDrawCommandsEffects(t *testing.T) {
	g := group("g", NewEllipse("dot", geom.XYWH(0, 0, 10, 10), opaqueRed))
	g.SetEffect(GaussianBlur{Radius: 3})
	g.SetOpacity(0.5)
	root := group("root", g)

	cmds := CompileDrawCommands(Frame{Root: root, View: geom.Identity(), Regions: []geom.Rect{geom.XYWH(0, 0, 20, 20)}})
	var ops []string
	for _, c := range cmds {
		ops = append(ops, c.Op)
	}
	assertIDs(t, ops, []string{"clip", "clear", "pushEffect", "ellipse", "popEffect"})
	if cmds[2].Effect == nil || cmds[2].Effect.Radius != 3 {
		t.Errorf("pushEffect = %+v", cmds[2])
	}
	if cmds[3].Opacity != 0.5 || cmds[3].Fill != "#ff0000" {
		t.Errorf("ellipse = %+v", cmds[3])
	}

	js, err := DrawCommandsToJSON(cmds)
	if err != nil || js == "[]" {
		t.Fatalf("json = %s, err = %v", js, err)
	}
}

func TestCommandPainterTake(t *testing.T) {
	p := &CommandPainter{}
	root := group("root", NewRect("r", geom.XYWH(0, 0, 10, 10), opaqueRed))
	e := NewEngine(root, geom.XYWH(0, 0, 50, 50), p)
	if _, err := e.Pulse(context.Background()); err != nil {
		t.Fatal(err)
	}
	if cmds := p.Take(); len(cmds) == 0 {
		t.Fatal("no commands after the first pulse")
	}
	if cmds := p.Take(); cmds != nil {
		t.Error("Take returned the same frame twice")
	}
	if p.Frames() != 1 {
		t.Errorf("frames = %d", p.Frames())
	}
}

package session

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/inamate/compositor/internal/db"
	"github.com/inamate/compositor/internal/document"
)

var (
	red   = color.RGBA{R: 0xff, A: 0xff}
	blue  = color.RGBA{B: 0xff, A: 0xff}
	white = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	green = color.RGBA{G: 0xff, A: 0xff}
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PulseRate = 24
	cfg.StatsEvery = 1
	return cfg
}

// loadOverlap loads the two-rectangle fixture: a blue 100x100 square under
// a red 50x50 one on black. Without animation the timeline is detached.
func loadOverlap(t *testing.T, animated bool) *document.InDocument {
	t.Helper()
	doc, err := document.Load("../document/testdata/overlap.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if !animated {
		sc := doc.Scenes["overlap"]
		sc.Timeline = ""
		doc.Scenes["overlap"] = sc
	}
	return doc
}

type frameLog struct {
	mu     sync.Mutex
	frames []FrameInfo
}

func (l *frameLog) PublishFrame(_ string, f FrameInfo) {
	l.mu.Lock()
	l.frames = append(l.frames, f)
	l.mu.Unlock()
}

func (l *frameLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frames)
}

type statRows struct {
	mu   sync.Mutex
	rows []db.InsertPulseStatParams
}

func (s *statRows) InsertPulseStat(_ context.Context, arg db.InsertPulseStatParams) error {
	s.mu.Lock()
	s.rows = append(s.rows, arg)
	s.mu.Unlock()
	return nil
}

func ptr[T any](v T) *T { return &v }

func assertPixel(t *testing.T, img image.Image, x, y int, want color.RGBA) {
	t.Helper()
	if got := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA); got != want {
		t.Errorf("pixel (%d,%d) = %v, want %v", x, y, got, want)
	}
}

func TestDocumentStateApply(t *testing.T) {
	tests := []struct {
		name  string
		op    Operation
		want  error
		check func(t *testing.T, doc *document.InDocument)
	}{
		{
			name: "transform",
			op:   Operation{Type: OpTransform, ObjectID: "front", Transform: map[string]float64{"x": 30, "r": 45}},
			check: func(t *testing.T, doc *document.InDocument) {
				tx := doc.Objects["front"].LocalTransform()
				if tx.X != 30 || tx.R != 45 || tx.SX != 1 {
					t.Errorf("transform = %+v", tx)
				}
			},
		},
		{name: "transform unknown prop", op: Operation{Type: OpTransform, ObjectID: "front", Transform: map[string]float64{"z": 1}}, want: ErrInvalidOperation},
		{name: "transform empty", op: Operation{Type: OpTransform, ObjectID: "front"}, want: ErrInvalidOperation},
		{
			name: "opacity",
			op:   Operation{Type: OpOpacity, ObjectID: "back", Opacity: ptr(0.25)},
			check: func(t *testing.T, doc *document.InDocument) {
				if a := doc.Objects["back"].Style.Alpha(); a != 0.25 {
					t.Errorf("opacity = %g", a)
				}
			},
		},
		{name: "opacity out of range", op: Operation{Type: OpOpacity, ObjectID: "back", Opacity: ptr(1.5)}, want: ErrInvalidOperation},
		{
			name: "visibility",
			op:   Operation{Type: OpVisibility, ObjectID: "front", Visible: ptr(false)},
			check: func(t *testing.T, doc *document.InDocument) {
				if !doc.Objects["front"].Hidden {
					t.Error("front still visible")
				}
			},
		},
		{name: "fill bad color", op: Operation{Type: OpFill, ObjectID: "front", Fill: "#zz"}, want: ErrInvalidOperation},
		{
			name: "effect on group",
			op:   Operation{Type: OpEffect, ObjectID: "root", Effect: &document.Effect{Type: document.EffectBlur, Radius: 4}},
			check: func(t *testing.T, doc *document.InDocument) {
				if e := doc.Objects["root"].Effect; e == nil || e.Radius != 4 {
					t.Errorf("effect = %+v", e)
				}
			},
		},
		{name: "effect on leaf", op: Operation{Type: OpEffect, ObjectID: "front", Effect: &document.Effect{Type: document.EffectBlur, Radius: 4}}, want: ErrInvalidOperation},
		{name: "effect unknown type", op: Operation{Type: OpEffect, ObjectID: "root", Effect: &document.Effect{Type: "sepia"}}, want: ErrInvalidOperation},
		{
			name: "bounds",
			op:   Operation{Type: OpBounds, ObjectID: "front", Width: ptr(80.0)},
			check: func(t *testing.T, doc *document.InDocument) {
				g := doc.Objects["front"].Geometry
				if g.Width != 80 || g.Height != 50 {
					t.Errorf("geometry = %+v", g)
				}
			},
		},
		{name: "bounds on group", op: Operation{Type: OpBounds, ObjectID: "root", Width: ptr(1.0)}, want: ErrInvalidOperation},
		{
			name: "remove",
			op:   Operation{Type: OpRemove, ObjectID: "front"},
			check: func(t *testing.T, doc *document.InDocument) {
				if _, ok := doc.Objects["front"]; ok {
					t.Error("front still present")
				}
				if c := doc.Objects["root"].Children; len(c) != 1 || c[0] != "back" {
					t.Errorf("root children = %v", c)
				}
				if err := doc.Validate(); err != nil {
					t.Errorf("document invalid after remove: %v", err)
				}
			},
		},
		{name: "remove root", op: Operation{Type: OpRemove, ObjectID: "root"}, want: ErrInvalidOperation},
		{name: "unknown object", op: Operation{Type: OpFill, ObjectID: "ghost", Fill: "red"}, want: ErrUnknownObject},
		{name: "unknown type", op: Operation{Type: "node.spin", ObjectID: "front"}, want: ErrUnknownOperation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := loadOverlap(t, false)
			ds, err := NewDocumentState(doc, "")
			if err != nil {
				t.Fatal(err)
			}
			seq, _, err := ds.Apply(tt.op)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Apply err = %v, want %v", err, tt.want)
			}
			if tt.want != nil {
				if ds.Seq() != 0 || ds.Dirty() {
					t.Error("rejected operation advanced the sequence")
				}
				return
			}
			if seq != 1 || !ds.Dirty() {
				t.Errorf("seq = %d, dirty = %v", seq, ds.Dirty())
			}
			tt.check(t, doc)
		})
	}
}

func TestDocumentStateSaveTracking(t *testing.T) {
	ds, err := NewDocumentState(loadOverlap(t, false), "")
	if err != nil {
		t.Fatal(err)
	}
	for i := range 3 {
		if _, _, err := ds.Apply(Operation{ID: string(rune('a' + i)), Type: OpOpacity, ObjectID: "back", Opacity: ptr(0.5)}); err != nil {
			t.Fatal(err)
		}
	}
	ds.MarkSaved(2)
	if !ds.Dirty() {
		t.Error("not dirty with one unsaved operation")
	}
	if p := ds.Pending(); len(p) != 1 || p[0].ID != "c" {
		t.Errorf("pending = %+v", p)
	}
	ds.MarkSaved(3)
	if ds.Dirty() || len(ds.Pending()) != 0 {
		t.Error("dirty after saving everything")
	}

	doc, seq, err := ds.Clone()
	if err != nil || seq != 3 || doc.Objects["back"].Style.Alpha() != 0.5 {
		t.Errorf("Clone = seq %d, %v", seq, err)
	}
}

func TestSessionStepPaintsAndPublishes(t *testing.T) {
	pub := &frameLog{}
	stats := &statRows{}
	s, err := newSession("scene_1", loadOverlap(t, false), testConfig(), deps{pub: pub, stats: stats})
	if err != nil {
		t.Fatal(err)
	}
	ctx := t.Context()

	st, err := s.Step(ctx)
	if err != nil || !st.Painted {
		t.Fatalf("first step painted=%v err=%v", st.Painted, err)
	}
	img := s.Snapshot()
	assertPixel(t, img, 10, 10, red)
	assertPixel(t, img, 75, 75, blue)
	assertPixel(t, img, 150, 150, color.RGBA{A: 0xff})

	if st, _ := s.Step(ctx); st.Painted {
		t.Error("idle step painted")
	}

	if _, err := s.Apply(Operation{Type: OpFill, ObjectID: "back", Fill: "#ffffff"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Step(ctx); err != nil {
		t.Fatal(err)
	}
	assertPixel(t, s.Snapshot(), 75, 75, white)
	assertPixel(t, s.Snapshot(), 10, 10, red)

	if _, err := s.Apply(Operation{Type: OpRemove, ObjectID: "front"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Step(ctx); err != nil {
		t.Fatal(err)
	}
	assertPixel(t, s.Snapshot(), 10, 10, white)
	if _, ok := s.nodes["front"]; ok {
		t.Error("removed node still indexed")
	}

	if pub.count() != 3 {
		t.Fatalf("published %d frames, want 3", pub.count())
	}
	last := pub.frames[2]
	if len(last.Regions) == 0 || last.Pixels == 0 || len(last.Path) == 0 || last.Path[0] != "root" {
		t.Errorf("last frame = %+v", last)
	}
	if len(stats.rows) != 3 || stats.rows[0].SceneID != "scene_1" || stats.rows[0].Pulse != 1 {
		t.Errorf("stat rows = %+v", stats.rows)
	}
}

func TestSessionDrivesTimeline(t *testing.T) {
	s, err := newSession("scene_1", loadOverlap(t, true), testConfig(), deps{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := t.Context()
	for range 6 {
		if _, err := s.Step(ctx); err != nil {
			t.Fatal(err)
		}
	}
	// Frame 5: front slid to x=50, back turned green.
	img := s.Snapshot()
	assertPixel(t, img, 75, 25, red)
	assertPixel(t, img, 25, 25, green)
	assertPixel(t, img, 25, 75, green)
}

func TestSessionReplace(t *testing.T) {
	s, err := newSession("scene_1", loadOverlap(t, false), testConfig(), deps{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := t.Context()
	if _, err := s.Step(ctx); err != nil {
		t.Fatal(err)
	}

	next := loadOverlap(t, false)
	front := next.Objects["front"]
	front.Style.Fill = "#00ff00"
	next.Objects["front"] = front
	if err := s.replace(next); err != nil {
		t.Fatal(err)
	}
	st, err := s.Step(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Painted {
		t.Fatal("replace did not repaint")
	}
	assertPixel(t, s.Snapshot(), 10, 10, green)
	assertPixel(t, s.Snapshot(), 75, 75, blue)
	if s.nodes["front"] == nil || s.nodes["front"].Parent() != s.engine.Root() {
		t.Error("index not rebuilt")
	}
}

type memScenes struct {
	mu    sync.Mutex
	saved map[string]*document.InDocument
	load  func() *document.InDocument
}

func (m *memScenes) Load(_ context.Context, sceneID string) (*document.InDocument, error) {
	if sceneID != "scene_1" {
		return nil, errors.New("no such scene")
	}
	return m.load(), nil
}

func (m *memScenes) Save(_ context.Context, sceneID string, doc *document.InDocument) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[sceneID] = doc
	return len(m.saved) + 1, nil
}

func (m *memScenes) get(id string) *document.InDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[id]
}

func newTestManager(t *testing.T) (*Manager, *memScenes) {
	t.Helper()
	store := &memScenes{saved: map[string]*document.InDocument{}, load: func() *document.InDocument { return loadOverlap(t, false) }}
	cfg := testConfig()
	cfg.PulseRate = 240
	cfg.StatsEvery = 0
	m := NewManager(cfg, store.Load, WithSaver(store.Save))
	t.Cleanup(m.Close)
	return m, store
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func pixelIs(img image.Image, x, y int, want color.RGBA) bool {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA) == want
}

func TestManagerLifecycle(t *testing.T) {
	m, store := newTestManager(t)
	ctx := t.Context()

	if _, err := m.Apply("scene_1", Operation{Type: OpFill, ObjectID: "back", Fill: "white"}); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Apply before join = %v, want ErrNotRunning", err)
	}
	if err := m.Join(ctx, "scene_missing"); err == nil {
		t.Error("joined a missing scene")
	}

	if err := m.Join(ctx, "scene_1"); err != nil {
		t.Fatal(err)
	}
	if err := m.Join(ctx, "scene_1"); err != nil {
		t.Fatal(err)
	}
	seq, err := m.Apply("scene_1", Operation{Type: OpFill, ObjectID: "back", Fill: "#ffffff"})
	if err != nil || seq != 1 {
		t.Fatalf("Apply = %d, %v", seq, err)
	}
	waitFor(t, "white backdrop", func() bool {
		img, err := m.Frame(ctx, "scene_1")
		return err == nil && pixelIs(img, 75, 75, white)
	})
	if _, seq, err := m.Document("scene_1"); err != nil || seq != 1 {
		t.Errorf("Document seq = %d, %v", seq, err)
	}

	m.Leave("scene_1")
	if !m.Running("scene_1") {
		t.Fatal("session stopped with a viewer left")
	}
	m.Leave("scene_1")
	if m.Running("scene_1") {
		t.Fatal("session still running without viewers")
	}
	saved := store.get("scene_1")
	if saved == nil || saved.Objects["back"].Style.Fill != "#ffffff" {
		t.Fatalf("saved document = %+v", saved)
	}
}

func TestManagerFrameWithoutSession(t *testing.T) {
	m, _ := newTestManager(t)
	img, err := m.Frame(t.Context(), "scene_1")
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds() != image.Rect(0, 0, 200, 200) {
		t.Errorf("bounds = %v", img.Bounds())
	}
	assertPixel(t, img, 10, 10, red)
	if m.Running("scene_1") {
		t.Error("Frame started a session")
	}
}

func TestManagerDocumentSaved(t *testing.T) {
	m, store := newTestManager(t)
	ctx := t.Context()
	if err := m.Join(ctx, "scene_1"); err != nil {
		t.Fatal(err)
	}

	recolored := loadOverlap(t, false)
	front := recolored.Objects["front"]
	front.Style.Fill = "#00ff00"
	recolored.Objects["front"] = front
	m.DocumentSaved("scene_1", recolored)
	waitFor(t, "green front", func() bool {
		img, err := m.Frame(ctx, "scene_1")
		return err == nil && pixelIs(img, 10, 10, green)
	})

	resized := loadOverlap(t, false)
	sc := resized.Scenes["overlap"]
	sc.Width = 120
	resized.Scenes["overlap"] = sc
	m.DocumentSaved("scene_1", resized)
	img, err := m.Frame(ctx, "scene_1")
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 120 {
		t.Errorf("restarted canvas width = %d, want 120", img.Bounds().Dx())
	}
	if !m.Running("scene_1") {
		t.Error("restart lost the session")
	}

	m.Leave("scene_1")
	if store.get("scene_1") != nil {
		t.Error("saved a document without operations")
	}
}

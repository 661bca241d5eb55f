package engine

import (
	"image/color"
	"testing"

	"github.com/inamate/compositor/internal/geom"
)

func TestFindRenderRoot(t *testing.T) {
	translucent := color.NRGBA{R: 0xff, A: 0x80}

	tests := []struct {
		name   string
		build  func() *Node
		target geom.Rect
		want   []string
	}{
		{
			name: "front sibling covers target",
			build: func() *Node {
				return group("root",
					NewRect("back", geom.XYWH(0, 0, 100, 100), opaqueBlue),
					NewRect("front", geom.XYWH(0, 0, 50, 50), opaqueRed),
				)
			},
			target: geom.XYWH(20, 20, 10, 10),
			want:   []string{"root", "front"},
		},
		{
			name: "target larger than front falls back to back",
			build: func() *Node {
				return group("root",
					NewRect("back", geom.XYWH(0, 0, 100, 100), opaqueBlue),
					NewRect("front", geom.XYWH(0, 0, 50, 50), opaqueRed),
				)
			},
			target: geom.XYWH(40, 40, 20, 20),
			want:   []string{"root", "back"},
		},
		{
			name: "nothing covers",
			build: func() *Node {
				return group("root", NewRect("small", geom.XYWH(0, 0, 10, 10), opaqueRed))
			},
			target: geom.XYWH(0, 0, 20, 20),
			want:   []string{"root"},
		},
		{
			name: "deepest wins",
			build: func() *Node {
				inner := NewRegion("panel", geom.XYWH(0, 0, 200, 200), opaqueBlue)
				inner.AddChild(NewRect("card", geom.XYWH(10, 10, 50, 50), opaqueRed))
				inner.SetTransform(geom.Translate(100, 100))
				return group("root", inner)
			},
			target: geom.XYWH(115, 115, 20, 20),
			want:   []string{"root", "panel", "card"},
		},
		{
			name: "region itself when no child covers",
			build: func() *Node {
				inner := NewRegion("panel", geom.XYWH(0, 0, 200, 200), opaqueBlue)
				inner.AddChild(NewRect("card", geom.XYWH(10, 10, 5, 5), opaqueRed))
				return group("root", inner)
			},
			target: geom.XYWH(50, 50, 20, 20),
			want:   []string{"root", "panel"},
		},
		{
			name: "frontmost of equal candidates",
			build: func() *Node {
				return group("root",
					NewRect("a", geom.XYWH(0, 0, 100, 100), opaqueBlue),
					NewRect("b", geom.XYWH(0, 0, 100, 100), opaqueRed),
				)
			},
			target: geom.XYWH(10, 10, 10, 10),
			want:   []string{"root", "b"},
		},
		{
			name: "translucent fill is skipped",
			build: func() *Node {
				return group("root",
					NewRect("back", geom.XYWH(0, 0, 100, 100), opaqueBlue),
					NewRect("glass", geom.XYWH(0, 0, 100, 100), translucent),
				)
			},
			target: geom.XYWH(10, 10, 10, 10),
			want:   []string{"root", "back"},
		},
		{
			name: "partial opacity is skipped",
			build: func() *Node {
				front := NewRect("front", geom.XYWH(0, 0, 100, 100), opaqueRed)
				front.SetOpacity(0.99)
				return group("root", NewRect("back", geom.XYWH(0, 0, 100, 100), opaqueBlue), front)
			},
			target: geom.XYWH(10, 10, 10, 10),
			want:   []string{"root", "back"},
		},
		{
			name: "hidden is skipped",
			build: func() *Node {
				front := NewRect("front", geom.XYWH(0, 0, 100, 100), opaqueRed)
				front.SetVisible(false)
				return group("root", NewRect("back", geom.XYWH(0, 0, 100, 100), opaqueBlue), front)
			},
			target: geom.XYWH(10, 10, 10, 10),
			want:   []string{"root", "back"},
		},
		{
			name: "blurred group is skipped",
			build: func() *Node {
				g := group("blurred", NewRect("inner", geom.XYWH(0, 0, 100, 100), opaqueRed))
				g.SetEffect(GaussianBlur{Radius: 4})
				return group("root", NewRect("back", geom.XYWH(0, 0, 100, 100), opaqueBlue), g)
			},
			target: geom.XYWH(10, 10, 10, 10),
			want:   []string{"root", "back"},
		},
		{
			name: "drop shadow keeps content opaque",
			build: func() *Node {
				g := group("shadowed", NewRect("inner", geom.XYWH(0, 0, 100, 100), opaqueRed))
				g.SetEffect(DropShadow{OffsetX: 3, OffsetY: 3, Radius: 2, Color: color.NRGBA{A: 0x80}})
				return group("root", NewRect("back", geom.XYWH(0, 0, 100, 100), opaqueBlue), g)
			},
			target: geom.XYWH(10, 10, 10, 10),
			want:   []string{"root", "shadowed", "inner"},
		},
		{
			name: "rotated 45 degrees is rejected",
			build: func() *Node {
				front := NewRect("front", geom.XYWH(-100, -100, 200, 200), opaqueRed)
				front.SetTransform(geom.Translate(50, 50).Multiply(geom.RotateDegrees(45)))
				return group("root", NewRect("back", geom.XYWH(0, 0, 100, 100), opaqueBlue), front)
			},
			target: geom.XYWH(40, 40, 20, 20),
			want:   []string{"root", "back"},
		},
		{
			name: "rotated 90 degrees stays rectilinear",
			build: func() *Node {
				front := NewRect("front", geom.XYWH(-50, -50, 100, 100), opaqueRed)
				front.SetTransform(geom.Translate(50, 50).Multiply(geom.RotateDegrees(90)))
				return group("root", NewRect("back", geom.XYWH(0, 0, 100, 100), opaqueBlue), front)
			},
			target: geom.XYWH(40, 40, 20, 20),
			want:   []string{"root", "front"},
		},
		{
			name: "opaque insets shrink the region",
			build: func() *Node {
				front := NewRegion("front", geom.XYWH(0, 0, 100, 100), translucent)
				front.SetOpaqueInsets(geom.UniformInsets(10))
				return group("root", NewRect("back", geom.XYWH(0, 0, 100, 100), opaqueBlue), front)
			},
			target: geom.XYWH(10, 10, 80, 80),
			want:   []string{"root", "front"},
		},
		{
			name: "target reaching into the insets",
			build: func() *Node {
				front := NewRegion("front", geom.XYWH(0, 0, 100, 100), translucent)
				front.SetOpaqueInsets(geom.UniformInsets(10))
				return group("root", NewRect("back", geom.XYWH(0, 0, 100, 100), opaqueBlue), front)
			},
			target: geom.XYWH(5, 5, 80, 80),
			want:   []string{"root", "back"},
		},
		{
			name: "ellipse inscribed square",
			build: func() *Node {
				return group("root",
					NewRect("back", geom.XYWH(0, 0, 100, 100), opaqueBlue),
					NewEllipse("dot", geom.XYWH(0, 0, 100, 100), opaqueRed),
				)
			},
			target: geom.XYWH(30, 30, 40, 40),
			want:   []string{"root", "dot"},
		},
		{
			name: "translucent root disables culling",
			build: func() *Node {
				root := group("root", NewRect("front", geom.XYWH(0, 0, 100, 100), opaqueRed))
				root.SetOpacity(0.5)
				return root
			},
			target: geom.XYWH(10, 10, 10, 10),
			want:   []string{"root"},
		},
		{
			name: "empty group",
			build: func() *Node {
				return NewGroup("root")
			},
			target: geom.XYWH(0, 0, 10, 10),
			want:   []string{"root"},
		},
		{
			name: "empty target",
			build: func() *Node {
				return group("root", NewRect("front", geom.XYWH(0, 0, 100, 100), opaqueRed))
			},
			target: geom.EmptyRect(),
			want:   []string{"root"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := tt.build()
			path := FindRenderRoot(root, tt.target, nil, geom.Identity())
			assertIDs(t, path.IDs(), tt.want)
		})
	}
}

func TestFindRenderRootUsesView(t *testing.T) {
	root := group("root",
		NewRect("back", geom.XYWH(0, 0, 100, 100), opaqueBlue),
		NewRect("front", geom.XYWH(0, 0, 50, 50), opaqueRed),
	)
	// At 2x the front square covers device (0,0)-(100,100).
	path := FindRenderRoot(root, geom.XYWH(60, 60, 30, 30), nil, geom.Scale(2, 2))
	assertIDs(t, path.IDs(), []string{"root", "front"})

	path = FindRenderRoot(root, geom.XYWH(60, 60, 30, 30), path, geom.Identity())
	assertIDs(t, path.IDs(), []string{"root", "back"})
}

func TestFindRenderRootReusesPath(t *testing.T) {
	root := group("root",
		NewRect("back", geom.XYWH(0, 0, 100, 100), opaqueBlue),
		NewRect("front", geom.XYWH(0, 0, 50, 50), opaqueRed),
	)
	path := NewRenderRootPath()
	got := FindRenderRoot(root, geom.XYWH(10, 10, 10, 10), path, geom.Identity())
	if got != path {
		t.Fatal("FindRenderRoot allocated a new path")
	}
	if path.Len() != 1 || path.Target().ID != "front" {
		t.Fatalf("path = %s", path)
	}
	FindRenderRoot(root, geom.XYWH(0, 0, 200, 200), path, geom.Identity())
	if path.Len() != 0 || path.Target() != root {
		t.Fatalf("stale steps after reuse: %s", path)
	}
}

func TestFindRenderRootNilGroupPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic")
		}
	}()
	FindRenderRoot(nil, geom.XYWH(0, 0, 1, 1), nil, geom.Identity())
}

func TestRenderRootPathCursor(t *testing.T) {
	root := group("root", NewRect("a", geom.XYWH(0, 0, 1, 1), opaqueRed))
	inner := group("inner", NewRect("b", geom.XYWH(0, 0, 1, 1), opaqueRed), NewRect("c", geom.XYWH(0, 0, 1, 1), opaqueRed))
	root.AddChild(inner)

	p := NewRenderRootPath()
	p.Reset(root)
	p.Push(root, 1)
	p.Push(inner, 1)
	if got := p.String(); got != "root/1/1" {
		t.Errorf("String() = %q", got)
	}
	if p.Target().ID != "c" {
		t.Errorf("Target() = %s, want c", p.Target().ID)
	}
	if !p.OnPath(0, root) || !p.OnPath(1, inner) || p.OnPath(1, root) || p.OnPath(2, inner) {
		t.Error("OnPath disagrees with the pushed steps")
	}
	if p.StartIndex(1, inner) != 1 || p.StartIndex(0, inner) != 0 {
		t.Error("StartIndex disagrees with the pushed steps")
	}

	p.Pop()
	if p.Len() != 1 || p.Target() != inner {
		t.Errorf("after Pop target = %s", p.Target().ID)
	}
	p.Pop()
	p.Pop()
	if p.Len() != 0 || p.Target() != root {
		t.Error("popping an empty path must be a no-op")
	}

	var nilPath *RenderRootPath
	if nilPath.OnPath(0, root) || nilPath.StartIndex(0, root) != 0 {
		t.Error("a nil path has no steps")
	}
}

func group(id string, children ...*Node) *Node {
	g := NewGroup(id)
	for _, c := range children {
		g.AddChild(c)
	}
	return g
}

func assertIDs(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("path = %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("path = %v, want %v", got, want)
		}
	}
}

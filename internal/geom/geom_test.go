package geom

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

const eps = 1e-9

func near(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func assertRect(t *testing.T, got, want Rect) {
	t.Helper()
	if got.IsEmpty() && want.IsEmpty() {
		return
	}
	if !near(got.MinX, want.MinX) || !near(got.MinY, want.MinY) ||
		!near(got.MaxX, want.MaxX) || !near(got.MaxY, want.MaxY) {
		t.Errorf("rect = %+v, want %+v", got, want)
	}
}

// --- Rect ---

func TestEmptyRect(t *testing.T) {
	if !EmptyRect().IsEmpty() {
		t.Fatal("EmptyRect should be empty")
	}
	if (Rect{}).IsEmpty() {
		t.Error("zero Rect is a point, not empty")
	}
	if EmptyRect().Width() != 0 || EmptyRect().Height() != 0 {
		t.Error("empty rect should have zero extent")
	}
}

func TestRectUnionIdentities(t *testing.T) {
	r := XYWH(10, 20, 30, 40)
	assertRect(t, EmptyRect().Union(r), r)
	assertRect(t, r.Union(EmptyRect()), r)
	assertRect(t, r.Union(XYWH(0, 0, 5, 5)), Rect{0, 0, 40, 60})
}

func TestRectIntersect(t *testing.T) {
	tests := []struct {
		name string
		a, b Rect
		want Rect
	}{
		{"overlap", XYWH(0, 0, 10, 10), XYWH(5, 5, 10, 10), Rect{5, 5, 10, 10}},
		{"disjoint", XYWH(0, 0, 10, 10), XYWH(20, 20, 5, 5), EmptyRect()},
		{"empty lhs", EmptyRect(), XYWH(0, 0, 10, 10), EmptyRect()},
		{"touching", XYWH(0, 0, 10, 10), XYWH(10, 0, 10, 10), Rect{10, 0, 10, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.a.Intersect(tt.b)
			if got.IsEmpty() != tt.want.IsEmpty() {
				t.Fatalf("IsEmpty = %v, want %v", got.IsEmpty(), tt.want.IsEmpty())
			}
			assertRect(t, got, tt.want)
		})
	}
}

func TestRectContains(t *testing.T) {
	outer := XYWH(0, 0, 50, 50)
	if !outer.Contains(Rect{20, 20, 30, 30}) {
		t.Error("outer should contain inner")
	}
	if outer.Contains(XYWH(40, 40, 20, 20)) {
		t.Error("outer should not contain overhanging rect")
	}
	if !outer.Contains(EmptyRect()) {
		t.Error("every rect contains the empty rect")
	}
	if EmptyRect().Contains(outer) {
		t.Error("empty rect contains nothing")
	}
}

func TestRectPadAndInset(t *testing.T) {
	r := XYWH(10, 10, 20, 20)
	assertRect(t, r.Pad(1), Rect{9, 9, 31, 31})
	if !EmptyRect().Pad(5).IsEmpty() {
		t.Error("padding an empty rect must keep it empty")
	}
	assertRect(t, r.Inset(Insets{Top: 1, Right: 2, Bottom: 3, Left: 4}), Rect{14, 11, 28, 27})
	if !r.Inset(UniformInsets(15)).IsEmpty() {
		t.Error("oversized insets should produce an empty rect")
	}
}

// --- Transform ---

func TestMultiplyOrder(t *testing.T) {
	// Translate after scale: point (1,1) -> scale (2,2) -> translate (12,12).
	m := Translate(10, 10).Multiply(Scale(2, 2))
	x, y := m.TransformPoint(1, 1)
	if !near(x, 12) || !near(y, 12) {
		t.Errorf("point = (%v, %v), want (12, 12)", x, y)
	}
}

func TestMultiplyAssociative(t *testing.T) {
	a := Translate(3, -7)
	b := RotateDegrees(33)
	c := Perspective(400).Multiply(RotateY(0.4))
	left := a.Multiply(b).Multiply(c)
	right := a.Multiply(b.Multiply(c))
	lm, rm := left.Matrix(), right.Matrix()
	for i := range lm {
		if !near(lm[i], rm[i]) {
			t.Fatalf("entry %d: %v != %v", i, lm[i], rm[i])
		}
	}
}

func TestTransformRectRotated(t *testing.T) {
	// 100x100 square rotated 45 degrees about its center.
	m := Translate(50, 50).Multiply(RotateDegrees(45)).Multiply(Translate(-50, -50))
	got := m.TransformRect(XYWH(0, 0, 100, 100))
	half := 50 * math.Sqrt2
	assertRect(t, got, Rect{50 - half, 50 - half, 50 + half, 50 + half})
}

func TestTransformRectBehindEye(t *testing.T) {
	m := Perspective(100).Multiply(RotateY(math.Pi / 2.2))
	got := m.TransformRect(XYWH(-1000, 0, 2000, 10))
	if !math.IsInf(got.MinX, -1) || !math.IsInf(got.MaxX, 1) {
		t.Errorf("rect crossing the eye plane should be unbounded, got %+v", got)
	}
}

func TestInvert(t *testing.T) {
	tests := []struct {
		name string
		m    Transform
	}{
		{"affine", FromProps(10, 20, 2, 3, 30, 5, 5)},
		{"3d", Perspective(500).Multiply(RotateY(0.3)).Multiply(Translate(5, 6))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := tt.m.Invert()
			if err != nil {
				t.Fatalf("Invert: %v", err)
			}
			if !tt.m.Multiply(inv).IsIdentity() {
				t.Errorf("m * inv(m) = %v, want identity", tt.m.Multiply(inv).Matrix())
			}
		})
	}
}

func TestInvertSingular(t *testing.T) {
	_, err := Scale(0, 1).Invert()
	if !errors.Is(err, ErrSingular) {
		t.Errorf("err = %v, want ErrSingular", err)
	}
	flat := FromMatrix([16]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 1,
	})
	if _, err := flat.Invert(); !errors.Is(err, ErrSingular) {
		t.Errorf("err = %v, want ErrSingular", err)
	}
}

func TestRectilinear(t *testing.T) {
	tests := []struct {
		name string
		m    Transform
		want bool
	}{
		{"identity", Identity(), true},
		{"translate scale", Translate(4, 5).Multiply(Scale(2, -1)), true},
		{"quarter turn", RotateDegrees(90), true},
		{"half turn", RotateDegrees(180), true},
		{"45 degrees", RotateDegrees(45), false},
		{"perspective", Perspective(300), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.IsRectilinear(); got != tt.want {
				t.Errorf("IsRectilinear = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransformJSON(t *testing.T) {
	in := FromProps(1, 2, 3, 4, 0, 0, 0)
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out Transform
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if !out.Equal(in) {
		t.Errorf("round trip = %v, want %v", out.Matrix(), in.Matrix())
	}
}

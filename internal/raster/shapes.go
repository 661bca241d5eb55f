package raster

import (
	"math"

	"github.com/inamate/compositor/internal/engine"
	"github.com/inamate/compositor/internal/geom"
)

type point struct{ x, y float64 }

// Curves are flattened into this many segments per quarter turn. Straight
// edges stay straight under projective maps, so polygons keep 3D and
// perspective transforms exact.
const arcSegments = 16

// outline returns the local-space polygon a node fills.
func outline(n *engine.Node) []point {
	b := n.Bounds()
	if b.IsEmpty() {
		return nil
	}
	switch n.Kind() {
	case engine.KindShape:
		switch n.Shape() {
		case engine.ShapeEllipse:
			return ellipse(b)
		case engine.ShapeRoundRect:
			return roundRect(b, n.CornerRadius())
		}
	}
	return rect(b)
}

func rect(b geom.Rect) []point {
	return []point{{b.MinX, b.MinY}, {b.MaxX, b.MinY}, {b.MaxX, b.MaxY}, {b.MinX, b.MaxY}}
}

func ellipse(b geom.Rect) []point {
	cx, cy := b.Center()
	rx, ry := b.Width()/2, b.Height()/2
	pts := make([]point, 0, 4*arcSegments)
	for i := 0; i < 4*arcSegments; i++ {
		a := float64(i) * math.Pi / (2 * arcSegments)
		pts = append(pts, point{cx + rx*math.Cos(a), cy + ry*math.Sin(a)})
	}
	return pts
}

func roundRect(b geom.Rect, r float64) []point {
	r = min(r, b.Width()/2, b.Height()/2)
	if r <= 0 {
		return rect(b)
	}
	corners := [4]struct {
		cx, cy float64
		start  float64
	}{
		{b.MaxX - r, b.MinY + r, -math.Pi / 2},
		{b.MaxX - r, b.MaxY - r, 0},
		{b.MinX + r, b.MaxY - r, math.Pi / 2},
		{b.MinX + r, b.MinY + r, math.Pi},
	}
	pts := make([]point, 0, 4*(arcSegments+1))
	for _, c := range corners {
		for i := 0; i <= arcSegments; i++ {
			a := c.start + float64(i)*math.Pi/(2*arcSegments)
			pts = append(pts, point{c.cx + r*math.Cos(a), c.cy + r*math.Sin(a)})
		}
	}
	return pts
}

// project maps a local point to device space. ok is false for points at or
// behind the viewer.
func project(tx geom.Transform, x, y float64) (float64, float64, bool) {
	m := tx.Matrix()
	w := m[12]*x + m[13]*y + m[15]
	if w <= 1e-9 {
		return 0, 0, false
	}
	px, py := tx.TransformPoint(x, y)
	return px, py, true
}

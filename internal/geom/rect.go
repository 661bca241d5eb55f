package geom

import "math"

// Rect is an axis-aligned rectangle stored as its two extreme corners.
// A rectangle is empty when MinX > MaxX or MinY > MaxY. The zero value is a
// degenerate (point) rectangle at the origin, not an empty one; use
// EmptyRect for the empty value.
type Rect struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// EmptyRect returns the canonical empty rectangle.
func EmptyRect() Rect {
	return Rect{MinX: 0, MinY: 0, MaxX: -1, MaxY: -1}
}

// InfiniteRect returns a rectangle covering the whole plane. It is used as
// the conservative answer when a projection cannot be bounded.
func InfiniteRect() Rect {
	return Rect{
		MinX: math.Inf(-1),
		MinY: math.Inf(-1),
		MaxX: math.Inf(1),
		MaxY: math.Inf(1),
	}
}

// XYWH builds a rectangle from an origin and a size.
func XYWH(x, y, w, h float64) Rect {
	return Rect{MinX: x, MinY: y, MaxX: x + w, MaxY: y + h}
}

// IsEmpty checks if the rect covers no area at all.
func (r Rect) IsEmpty() bool {
	return r.MinX > r.MaxX || r.MinY > r.MaxY || math.IsNaN(r.MinX) || math.IsNaN(r.MinY)
}

// Width returns the horizontal extent, 0 for empty rects.
func (r Rect) Width() float64 {
	if r.IsEmpty() {
		return 0
	}
	return r.MaxX - r.MinX
}

// Height returns the vertical extent, 0 for empty rects.
func (r Rect) Height() float64 {
	if r.IsEmpty() {
		return 0
	}
	return r.MaxY - r.MinY
}

// Area returns Width * Height.
func (r Rect) Area() float64 {
	return r.Width() * r.Height()
}

// Union returns the smallest rect containing both rects.
func (r Rect) Union(other Rect) Rect {
	if r.IsEmpty() {
		return other
	}
	if other.IsEmpty() {
		return r
	}
	return Rect{
		MinX: min(r.MinX, other.MinX),
		MinY: min(r.MinY, other.MinY),
		MaxX: max(r.MaxX, other.MaxX),
		MaxY: max(r.MaxY, other.MaxY),
	}
}

// Intersect returns the overlap of both rects, or an empty rect.
func (r Rect) Intersect(other Rect) Rect {
	if r.IsEmpty() || other.IsEmpty() {
		return EmptyRect()
	}
	out := Rect{
		MinX: max(r.MinX, other.MinX),
		MinY: max(r.MinY, other.MinY),
		MaxX: min(r.MaxX, other.MaxX),
		MaxY: min(r.MaxY, other.MaxY),
	}
	if out.IsEmpty() {
		return EmptyRect()
	}
	return out
}

// Intersects reports whether the rects share at least one point. Touching
// edges count as an intersection.
func (r Rect) Intersects(other Rect) bool {
	return !r.Intersect(other).IsEmpty()
}

// Contains reports whether other lies entirely inside r. Every rect
// contains the empty rect; an empty rect contains nothing else.
func (r Rect) Contains(other Rect) bool {
	if other.IsEmpty() {
		return true
	}
	if r.IsEmpty() {
		return false
	}
	return other.MinX >= r.MinX && other.MaxX <= r.MaxX &&
		other.MinY >= r.MinY && other.MaxY <= r.MaxY
}

// ContainsPoint checks if the point is inside the rect, edges included.
func (r Rect) ContainsPoint(x, y float64) bool {
	return !r.IsEmpty() && x >= r.MinX && x <= r.MaxX && y >= r.MinY && y <= r.MaxY
}

// Pad grows the rect by d on every side. Empty rects stay empty.
func (r Rect) Pad(d float64) Rect {
	if r.IsEmpty() || d == 0 {
		return r
	}
	return Rect{MinX: r.MinX - d, MinY: r.MinY - d, MaxX: r.MaxX + d, MaxY: r.MaxY + d}
}

// Inset shrinks the rect by the given insets. The result may be empty.
func (r Rect) Inset(in Insets) Rect {
	if r.IsEmpty() {
		return r
	}
	out := Rect{
		MinX: r.MinX + in.Left,
		MinY: r.MinY + in.Top,
		MaxX: r.MaxX - in.Right,
		MaxY: r.MaxY - in.Bottom,
	}
	if out.IsEmpty() {
		return EmptyRect()
	}
	return out
}

// RoundOut returns the smallest rect with integer edges that contains r.
func (r Rect) RoundOut() Rect {
	if r.IsEmpty() {
		return r
	}
	return Rect{
		MinX: math.Floor(r.MinX),
		MinY: math.Floor(r.MinY),
		MaxX: math.Ceil(r.MaxX),
		MaxY: math.Ceil(r.MaxY),
	}
}

// Center returns the center point of the rect.
func (r Rect) Center() (float64, float64) {
	return (r.MinX + r.MaxX) / 2, (r.MinY + r.MaxY) / 2
}

// Insets describes distances from each edge of a rectangle.
type Insets struct {
	Top    float64 `json:"top" yaml:"top"`
	Right  float64 `json:"right" yaml:"right"`
	Bottom float64 `json:"bottom" yaml:"bottom"`
	Left   float64 `json:"left" yaml:"left"`
}

// UniformInsets returns insets of d on all four sides.
func UniformInsets(d float64) Insets {
	return Insets{Top: d, Right: d, Bottom: d, Left: d}
}

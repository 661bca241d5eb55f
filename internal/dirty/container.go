// Package dirty holds the bounded damage collections the render loop fills
// once per pulse.
package dirty

import (
	"iter"

	"github.com/inamate/compositor/internal/geom"
)

// DefaultCapacity is the number of separate rectangles a container keeps
// before it starts merging everything else into its overflow rectangle.
const DefaultCapacity = 30

// Status reports the state of a container after an addition.
type Status int

const (
	// StatusOK means the container still has room for separate rectangles.
	StatusOK Status = iota
	// StatusOverflow means further damage is being merged into the single
	// overflow rectangle.
	StatusOverflow
	// StatusContainsClip means one rectangle already covers the whole clip,
	// so refining the damage any further is pointless.
	StatusContainsClip
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusOverflow:
		return "overflow"
	case StatusContainsClip:
		return "contains-clip"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Container accumulates up to Cap() rectangles plus one overflow rectangle.
// The union of everything added is always inside the union of the stored
// rectangles. Storage is allocated once and reused across Reset calls.
type Container struct {
	rects      []geom.Rect
	overflow   geom.Rect
	overflowed bool

	pool       *Pool
	checkedOut bool
}

// NewContainer creates a container holding at most k separate rectangles.
// A non-positive k selects DefaultCapacity.
func NewContainer(k int) *Container {
	if k <= 0 {
		k = DefaultCapacity
	}
	return &Container{
		rects:    make([]geom.Rect, 0, k),
		overflow: geom.EmptyRect(),
	}
}

// Cap returns K, the number of separate rectangles kept before overflow.
func (c *Container) Cap() int {
	return cap(c.rects)
}

// Len returns the number of stored rectangles, the overflow included.
// It never exceeds Cap()+1.
func (c *Container) Len() int {
	if c.overflowed {
		return len(c.rects) + 1
	}
	return len(c.rects)
}

// IsEmpty reports whether no damage has been added since the last Reset.
func (c *Container) IsEmpty() bool {
	return c.Len() == 0
}

// Overflowed reports whether the overflow rectangle is in use.
func (c *Container) Overflowed() bool {
	return c.overflowed
}

// Status returns StatusOverflow once the overflow rectangle is in use.
func (c *Container) Status() Status {
	if c.overflowed {
		return StatusOverflow
	}
	return StatusOK
}

// Reset empties the container without releasing its storage.
func (c *Container) Reset() {
	c.rects = c.rects[:0]
	c.overflow = geom.EmptyRect()
	c.overflowed = false
}

// Add records r as damaged. Rectangles already covered are dropped,
// overlapping ones are merged, and once Cap() separate rectangles exist any
// further damage is unioned into the overflow rectangle.
func (c *Container) Add(r geom.Rect) Status {
	if r.IsEmpty() {
		return c.Status()
	}
	for _, existing := range c.rects {
		if existing.Contains(r) {
			return c.Status()
		}
	}
	if c.overflowed && c.overflow.Intersects(r) {
		c.overflow = c.overflow.Union(r)
		return c.Status()
	}

	for i := range c.rects {
		if c.rects[i].Intersects(r) {
			c.rects[i] = c.rects[i].Union(r)
			c.coalesce(i)
			return c.Status()
		}
	}

	if len(c.rects) < cap(c.rects) {
		c.rects = append(c.rects, r)
		return c.Status()
	}

	c.overflow = c.overflow.Union(r)
	c.overflowed = true
	return StatusOverflow
}

// Set replaces the whole content with a single rectangle.
func (c *Container) Set(r geom.Rect) {
	c.Reset()
	c.Add(r)
}

// coalesce merges every rectangle that intersects rects[i] into it, until
// no stored rectangle overlaps the grown one.
func (c *Container) coalesce(i int) {
	for {
		merged := false
		for j := 0; j < len(c.rects); j++ {
			if j == i || !c.rects[j].Intersects(c.rects[i]) {
				continue
			}
			c.rects[i] = c.rects[i].Union(c.rects[j])
			copy(c.rects[j:], c.rects[j+1:])
			c.rects = c.rects[:len(c.rects)-1]
			if j < i {
				i--
			}
			merged = true
			break
		}
		if !merged {
			break
		}
	}
	if c.overflowed && c.overflow.Intersects(c.rects[i]) {
		c.overflow = c.overflow.Union(c.rects[i])
		copy(c.rects[i:], c.rects[i+1:])
		c.rects = c.rects[:len(c.rects)-1]
	}
}

// At returns the i-th rectangle; the overflow rectangle, when present, is
// last.
func (c *Container) At(i int) geom.Rect {
	if i == len(c.rects) && c.overflowed {
		return c.overflow
	}
	return c.rects[i]
}

// All iterates the stored rectangles in order, the overflow rectangle last.
func (c *Container) All() iter.Seq[geom.Rect] {
	return func(yield func(geom.Rect) bool) {
		for _, r := range c.rects {
			if !yield(r) {
				return
			}
		}
		if c.overflowed {
			yield(c.overflow)
		}
	}
}

// AppendTo appends copies of all stored rectangles to dst.
func (c *Container) AppendTo(dst []geom.Rect) []geom.Rect {
	for r := range c.All() {
		dst = append(dst, r)
	}
	return dst
}

// Bounds returns the union of all stored rectangles.
func (c *Container) Bounds() geom.Rect {
	out := geom.EmptyRect()
	for r := range c.All() {
		out = out.Union(r)
	}
	return out
}

// Covers reports whether a single stored rectangle contains r.
func (c *Container) Covers(r geom.Rect) bool {
	if r.IsEmpty() {
		return false
	}
	for s := range c.All() {
		if s.Contains(r) {
			return true
		}
	}
	return false
}

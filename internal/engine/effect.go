package engine

import (
	"fmt"
	"image/color"

	"github.com/inamate/compositor/internal/document"
	"github.com/inamate/compositor/internal/geom"
)

// Effect is a post-processing step attached to a node. The engine does not
// know how an effect is drawn; it only asks how far it spreads and whether
// the content stays opaque underneath it.
type Effect interface {
	// Bounds returns the local-space area touched when the effect is
	// applied to content occupying base. tx is the node's accumulated
	// transform, for effects whose extent depends on device scale.
	Bounds(base geom.Rect, tx geom.Transform) geom.Rect
	// PreservesOpacity reports whether opaque content stays opaque once
	// the effect is applied.
	PreservesOpacity() bool
}

// DropShadow paints a blurred, offset copy of the content behind it.
// Offsets and radius are in local units.
type DropShadow struct {
	OffsetX float64
	OffsetY float64
	Radius  float64
	Color   color.NRGBA
}

// Bounds implements Effect.
func (d DropShadow) Bounds(base geom.Rect, _ geom.Transform) geom.Rect {
	if base.IsEmpty() {
		return base
	}
	shadow := geom.Rect{
		MinX: base.MinX + d.OffsetX,
		MinY: base.MinY + d.OffsetY,
		MaxX: base.MaxX + d.OffsetX,
		MaxY: base.MaxY + d.OffsetY,
	}
	return base.Union(shadow.Pad(d.Radius))
}

// PreservesOpacity implements Effect; content is drawn over its shadow.
func (DropShadow) PreservesOpacity() bool { return true }

// GaussianBlur blurs the content with the given radius in local units.
type GaussianBlur struct {
	Radius float64
}

// Bounds implements Effect.
func (g GaussianBlur) Bounds(base geom.Rect, _ geom.Transform) geom.Rect {
	return base.Pad(g.Radius)
}

// PreservesOpacity implements Effect; blurred edges become translucent.
func (GaussianBlur) PreservesOpacity() bool { return false }

// Opacity multiplies the alpha of the content.
type Opacity struct {
	Alpha float64
}

// Bounds implements Effect.
func (Opacity) Bounds(base geom.Rect, _ geom.Transform) geom.Rect { return base }

// PreservesOpacity implements Effect.
func (o Opacity) PreservesOpacity() bool { return o.Alpha >= 1 }

// EffectFromSpec converts a document effect description.
func EffectFromSpec(spec document.Effect) (Effect, error) {
	switch spec.Type {
	case document.EffectDropShadow:
		c, err := document.ParseColor(spec.Color)
		if err != nil {
			return nil, fmt.Errorf("drop shadow: %w", err)
		}
		return DropShadow{OffsetX: spec.OffsetX, OffsetY: spec.OffsetY, Radius: spec.Radius, Color: c}, nil
	case document.EffectBlur:
		return GaussianBlur{Radius: spec.Radius}, nil
	case document.EffectOpacity:
		return Opacity{Alpha: spec.Alpha}, nil
	default:
		return nil, fmt.Errorf("unknown effect type %q", spec.Type)
	}
}

// EffectSpec converts an effect back to its document description.
func EffectSpec(e Effect) (*document.Effect, bool) {
	switch e := e.(type) {
	case DropShadow:
		return &document.Effect{Type: document.EffectDropShadow, OffsetX: e.OffsetX, OffsetY: e.OffsetY, Radius: e.Radius, Color: document.FormatColor(e.Color)}, true
	case GaussianBlur:
		return &document.Effect{Type: document.EffectBlur, Radius: e.Radius}, true
	case Opacity:
		return &document.Effect{Type: document.EffectOpacity, Alpha: e.Alpha}, true
	}
	return nil, false
}

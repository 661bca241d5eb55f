// Package timeline evaluates keyframe tracks and feeds the results into a
// render graph through the node setters, which is what produces damage
// when a scene animates.
package timeline

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"

	"github.com/inamate/compositor/internal/document"
	"github.com/inamate/compositor/internal/engine"
)

var (
	ErrUnknownTimeline = errors.New("unknown timeline")
	ErrUnknownProperty = errors.New("unknown animated property")
	ErrMixedTrack      = errors.New("track mixes numbers and strings")
)

// Animatable property paths.
const (
	PropX       = "transform.x"
	PropY       = "transform.y"
	PropSX      = "transform.sx"
	PropSY      = "transform.sy"
	PropR       = "transform.r"
	PropAX      = "transform.ax"
	PropAY      = "transform.ay"
	PropOpacity = "style.opacity"
	PropFill    = "style.fill"
	PropWidth   = "geometry.width"
	PropHeight  = "geometry.height"
	PropVisible = "visible"
)

var numeric = map[string]bool{
	PropX: true, PropY: true, PropSX: true, PropSY: true, PropR: true,
	PropAX: true, PropAY: true, PropOpacity: true,
	PropWidth: true, PropHeight: true, PropVisible: true,
}

// Sample holds the values of every track at one frame, per object and
// property path.
type Sample struct {
	Numbers map[string]map[string]float64
	Strings map[string]map[string]string
}

func (s *Sample) setNumber(obj, prop string, v float64) {
	if s.Numbers[obj] == nil {
		s.Numbers[obj] = make(map[string]float64)
	}
	s.Numbers[obj][prop] = v
}

func (s *Sample) setString(obj, prop, v string) {
	if s.Strings[obj] == nil {
		s.Strings[obj] = make(map[string]string)
	}
	s.Strings[obj][prop] = v
}

type track struct {
	objectID string
	property string
	strings  bool
	keys     []document.Keyframe
}

// Timeline is a compiled document timeline. It keeps the base properties of
// the animated objects so partial overrides, e.g. only transform.r, can be
// combined with the rest of the object's transform.
type Timeline struct {
	id     string
	length int
	loop   bool
	tracks []track
	base   map[string]document.ObjectNode
}

// Compile resolves a document timeline: tracks are checked against the
// known properties and their keyframes sorted by frame.
func Compile(doc *document.InDocument, timelineID string) (*Timeline, error) {
	tl, ok := doc.Timelines[timelineID]
	if !ok {
		return nil, fmt.Errorf("timeline %q: %w", timelineID, ErrUnknownTimeline)
	}
	out := &Timeline{
		id:     tl.ID,
		length: tl.Length,
		loop:   tl.Loop,
		base:   make(map[string]document.ObjectNode),
	}
	for _, trackID := range tl.Tracks {
		tr, ok := doc.Tracks[trackID]
		if !ok {
			return nil, fmt.Errorf("timeline %q track %q: %w", timelineID, trackID, document.ErrMissingObject)
		}
		obj, ok := doc.Objects[tr.ObjectID]
		if !ok {
			return nil, fmt.Errorf("track %q object %q: %w", trackID, tr.ObjectID, document.ErrMissingObject)
		}
		if !numeric[tr.Property] && tr.Property != PropFill {
			return nil, fmt.Errorf("track %q property %q: %w", trackID, tr.Property, ErrUnknownProperty)
		}

		c := track{objectID: tr.ObjectID, property: tr.Property, strings: tr.Property == PropFill}
		for _, kfID := range tr.Keys {
			kf, ok := doc.Keyframes[kfID]
			if !ok {
				return nil, fmt.Errorf("track %q keyframe %q: %w", trackID, kfID, document.ErrMissingObject)
			}
			if kf.Value.IsString != c.strings {
				return nil, fmt.Errorf("track %q keyframe %q: %w", trackID, kfID, ErrMixedTrack)
			}
			c.keys = append(c.keys, kf)
		}
		if len(c.keys) == 0 {
			continue
		}
		slices.SortStableFunc(c.keys, func(a, b document.Keyframe) int { return a.Frame - b.Frame })
		out.tracks = append(out.tracks, c)
		out.base[obj.ID] = obj
	}
	return out, nil
}

// ID returns the document timeline ID.
func (t *Timeline) ID() string { return t.id }

// Length returns the number of frames.
func (t *Timeline) Length() int { return t.length }

// Frame maps a running frame counter onto the timeline: looping timelines
// wrap, others hold their last frame.
func (t *Timeline) Frame(tick uint64) int {
	if t.length <= 0 {
		return 0
	}
	if t.loop {
		return int(tick % uint64(t.length))
	}
	return int(min(tick, uint64(t.length-1)))
}

// Evaluate samples every track at frame. Numbers are eased between the
// surrounding keyframes with the earlier keyframe's easing; strings and
// "step" keys hold until the next keyframe. Before the first and after the
// last keyframe the nearest value holds.
func (t *Timeline) Evaluate(frame int) Sample {
	s := Sample{
		Numbers: make(map[string]map[string]float64),
		Strings: make(map[string]map[string]string),
	}
	for _, tr := range t.tracks {
		prev, next := surrounding(tr.keys, frame)
		if tr.strings {
			s.setString(tr.objectID, tr.property, prev.Value.Str)
			continue
		}
		s.setNumber(tr.objectID, tr.property, interpolate(prev, next, frame))
	}
	return s
}

// surrounding returns the keyframes at or before and at or after frame,
// clamped to the ends.
func surrounding(keys []document.Keyframe, frame int) (document.Keyframe, document.Keyframe) {
	i, _ := slices.BinarySearchFunc(keys, frame, func(k document.Keyframe, f int) int { return k.Frame - f })
	switch {
	case i == 0:
		return keys[0], keys[0]
	case i == len(keys):
		return keys[i-1], keys[i-1]
	case keys[i].Frame == frame:
		return keys[i], keys[i]
	default:
		return keys[i-1], keys[i]
	}
}

func interpolate(prev, next document.Keyframe, frame int) float64 {
	span := next.Frame - prev.Frame
	if span <= 0 || prev.Easing == document.EasingStep {
		return prev.Value.Num
	}
	tw := gween.New(float32(prev.Value.Num), float32(next.Value.Num), float32(span), easing(prev.Easing))
	v, _ := tw.Set(float32(frame - prev.Frame))
	return float64(v)
}

func easing(e document.EasingType) ease.TweenFunc {
	switch e {
	case document.EasingEaseIn:
		return ease.InQuad
	case document.EasingEaseOut:
		return ease.OutQuad
	case document.EasingEaseInOut:
		return ease.InOutQuad
	case document.EasingCubicIn:
		return ease.InCubic
	case document.EasingCubicOut:
		return ease.OutCubic
	case document.EasingCubicInOut:
		return ease.InOutCubic
	case document.EasingBackOut:
		return ease.OutBack
	case document.EasingElasticOut:
		return ease.OutElastic
	case document.EasingBounceOut:
		return ease.OutBounce
	default:
		return ease.Linear
	}
}

// Apply writes a sample into the graph through the node setters. Values
// equal to the current ones leave the node clean. nodes maps object IDs to
// nodes, as engine.Index returns. It reports how many objects were touched.
func (t *Timeline) Apply(nodes map[string]*engine.Node, s Sample) (int, error) {
	touched := 0
	for id, base := range t.base {
		n := nodes[id]
		if n == nil {
			continue
		}
		nums, strs := s.Numbers[id], s.Strings[id]
		if nums == nil && strs == nil {
			continue
		}
		touched++

		tx := base.LocalTransform()
		animated := false
		for prop, v := range nums {
			if !strings.HasPrefix(prop, "transform.") {
				continue
			}
			animated = true
			switch prop {
			case PropX:
				tx.X = v
			case PropY:
				tx.Y = v
			case PropSX:
				tx.SX = v
			case PropSY:
				tx.SY = v
			case PropR:
				tx.R = v
			case PropAX:
				tx.AX = v
			case PropAY:
				tx.AY = v
			}
		}
		if animated {
			n.SetTransform(tx.Matrix())
		}
		if v, ok := nums[PropOpacity]; ok {
			n.SetOpacity(v)
		}
		if v, ok := nums[PropVisible]; ok {
			n.SetVisible(v >= 0.5)
		}
		_, w := nums[PropWidth]
		_, h := nums[PropHeight]
		if w || h {
			g := base.Geometry
			if w {
				g.Width = nums[PropWidth]
			}
			if h {
				g.Height = nums[PropHeight]
			}
			n.SetContentBounds(g.Rect())
		}
		if v, ok := strs[PropFill]; ok {
			c, err := document.ParseColor(v)
			if err != nil {
				return touched, fmt.Errorf("object %q fill: %w", id, err)
			}
			n.SetFill(c)
		}
	}
	return touched, nil
}

package document

import (
	"github.com/inamate/compositor/internal/geom"
	"github.com/inamate/compositor/internal/typeid"
)

func ptr[T any](v T) *T { return &v }

// NewSampleDocument builds a small scene that exercises every node kind: an
// opaque backdrop region, a panel with declared opaque insets, a spinning
// card, a translucent badge with a drop shadow and a blurred ellipse.
func NewSampleDocument(projectID string) *InDocument {
	sceneID := typeid.Scene.New()
	rootID := typeid.Node.New()
	backdropID := typeid.Node.New()
	panelID := typeid.Node.New()
	cardID := typeid.Node.New()
	badgeID := typeid.Node.New()
	glowID := typeid.Node.New()
	timelineID := typeid.Timeline.New()
	spinTrackID := typeid.Track.New()
	fadeTrackID := typeid.Track.New()
	kf0, kf1, kf2, kf3 := typeid.Keyframe.New(), typeid.Keyframe.New(), typeid.Keyframe.New(), typeid.Keyframe.New()

	doc := NewEmptyDocument(projectID, "Sample", sceneID, rootID, 1280, 720)
	sc := doc.Scenes[sceneID]
	sc.Timeline = timelineID
	doc.Scenes[sceneID] = sc

	doc.Objects[rootID] = ObjectNode{
		ID:       rootID,
		Name:     "root",
		Type:     ObjectTypeGroup,
		Children: []string{backdropID, panelID, badgeID, glowID},
	}
	doc.Objects[backdropID] = ObjectNode{
		ID:       backdropID,
		Name:     "backdrop",
		Type:     ObjectTypeRegion,
		Parent:   rootID,
		Style:    Style{Fill: "#1a1a2e"},
		Geometry: Geometry{Width: 1280, Height: 720},
	}
	doc.Objects[panelID] = ObjectNode{
		ID:           panelID,
		Name:         "panel",
		Type:         ObjectTypeRegion,
		Parent:       rootID,
		Children:     []string{cardID},
		Transform:    &Transform{X: 160, Y: 120, SX: 1, SY: 1},
		Style:        Style{Fill: "#16213e"},
		Geometry:     Geometry{Width: 640, Height: 480},
		OpaqueInsets: &geom.Insets{Top: 8, Right: 8, Bottom: 8, Left: 8},
	}
	doc.Objects[cardID] = ObjectNode{
		ID:        cardID,
		Name:      "card",
		Type:      ObjectTypeShapeRoundRect,
		Parent:    panelID,
		Transform: &Transform{X: 320, Y: 240, SX: 1, SY: 1, AX: 100, AY: 75},
		Style:     Style{Fill: "#e94560"},
		Geometry:  Geometry{Width: 200, Height: 150, Radius: 16},
	}
	doc.Objects[badgeID] = ObjectNode{
		ID:        badgeID,
		Name:      "badge",
		Type:      ObjectTypeShapeRect,
		Parent:    rootID,
		Transform: &Transform{X: 900, Y: 200, SX: 1, SY: 1},
		Style:     Style{Fill: "#53d769", Opacity: ptr(0.8)},
		Geometry:  Geometry{Width: 120, Height: 60},
		Effect:    &Effect{Type: EffectDropShadow, OffsetX: 6, OffsetY: 6, Radius: 8, Color: "#00000080"},
	}
	doc.Objects[glowID] = ObjectNode{
		ID:        glowID,
		Name:      "glow",
		Type:      ObjectTypeShapeEllipse,
		Parent:    rootID,
		Transform: &Transform{X: 1000, Y: 500, SX: 1, SY: 1},
		Style:     Style{Fill: "#f5a623"},
		Geometry:  Geometry{Width: 120, Height: 120},
		Effect:    &Effect{Type: EffectBlur, Radius: 12},
	}

	doc.Timelines[timelineID] = Timeline{
		ID:     timelineID,
		Length: 48,
		Loop:   true,
		Tracks: []string{spinTrackID, fadeTrackID},
	}
	doc.Tracks[spinTrackID] = Track{ID: spinTrackID, ObjectID: cardID, Property: "transform.r", Keys: []string{kf0, kf1}}
	doc.Tracks[fadeTrackID] = Track{ID: fadeTrackID, ObjectID: glowID, Property: "style.opacity", Keys: []string{kf2, kf3}}
	doc.Keyframes[kf0] = Keyframe{ID: kf0, Frame: 0, Value: NumberValue(0), Easing: EasingLinear}
	doc.Keyframes[kf1] = Keyframe{ID: kf1, Frame: 47, Value: NumberValue(360), Easing: EasingLinear}
	doc.Keyframes[kf2] = Keyframe{ID: kf2, Frame: 0, Value: NumberValue(1), Easing: EasingEaseInOut}
	doc.Keyframes[kf3] = Keyframe{ID: kf3, Frame: 24, Value: NumberValue(0.2), Easing: EasingEaseInOut}
	return doc
}

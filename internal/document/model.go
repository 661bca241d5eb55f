package document

import (
	"github.com/inamate/compositor/internal/geom"
)

// InDocument is a scene document: the node tree of one or more scenes plus
// the timelines that animate it. It round-trips through JSON and YAML.
type InDocument struct {
	Project   Project               `json:"project" yaml:"project"`
	Scenes    map[string]Scene      `json:"scenes" yaml:"scenes"`
	Objects   map[string]ObjectNode `json:"objects" yaml:"objects"`
	Timelines map[string]Timeline   `json:"timelines,omitempty" yaml:"timelines,omitempty"`
	Tracks    map[string]Track      `json:"tracks,omitempty" yaml:"tracks,omitempty"`
	Keyframes map[string]Keyframe   `json:"keyframes,omitempty" yaml:"keyframes,omitempty"`
	Assets    map[string]Asset      `json:"assets,omitempty" yaml:"assets,omitempty"`
}

type Project struct {
	ID      string   `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	Version int      `json:"version" yaml:"version"`
	FPS     int      `json:"fps" yaml:"fps"`
	Scenes  []string `json:"scenes" yaml:"scenes"`
}

type Scene struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Width      int    `json:"width" yaml:"width"`
	Height     int    `json:"height" yaml:"height"`
	Background string `json:"background" yaml:"background"`
	Root       string `json:"root" yaml:"root"`
	Timeline   string `json:"timeline,omitempty" yaml:"timeline,omitempty"`
}

type ObjectType string

const (
	ObjectTypeGroup          ObjectType = "Group"
	ObjectTypeRegion         ObjectType = "Region"
	ObjectTypeShapeRect      ObjectType = "ShapeRect"
	ObjectTypeShapeRoundRect ObjectType = "ShapeRoundRect"
	ObjectTypeShapeEllipse   ObjectType = "ShapeEllipse"
	ObjectTypeRasterImage    ObjectType = "RasterImage"
)

// IsContainer reports whether objects of this type may have children.
func (t ObjectType) IsContainer() bool {
	return t == ObjectTypeGroup || t == ObjectTypeRegion
}

func (t ObjectType) valid() bool {
	switch t {
	case ObjectTypeGroup, ObjectTypeRegion, ObjectTypeShapeRect,
		ObjectTypeShapeRoundRect, ObjectTypeShapeEllipse, ObjectTypeRasterImage:
		return true
	}
	return false
}

// Transform describes a local transform the way an editor shows it:
// position, scale, rotation in degrees and anchor point.
type Transform struct {
	X  float64 `json:"x" yaml:"x"`
	Y  float64 `json:"y" yaml:"y"`
	SX float64 `json:"sx" yaml:"sx"`
	SY float64 `json:"sy" yaml:"sy"`
	R  float64 `json:"r" yaml:"r"`
	AX float64 `json:"ax" yaml:"ax"`
	AY float64 `json:"ay" yaml:"ay"`
}

// IdentityTransform returns a transform with unit scale.
func IdentityTransform() Transform {
	return Transform{SX: 1, SY: 1}
}

// Matrix converts the editor properties to a matrix.
func (t Transform) Matrix() geom.Transform {
	return geom.FromProps(t.X, t.Y, t.SX, t.SY, t.R, t.AX, t.AY)
}

type Style struct {
	Fill string `json:"fill,omitempty" yaml:"fill,omitempty"`
	// Opacity defaults to 1 when absent.
	Opacity *float64 `json:"opacity,omitempty" yaml:"opacity,omitempty"`
}

// Alpha returns the style opacity, 1 when unset.
func (s Style) Alpha() float64 {
	if s.Opacity == nil {
		return 1
	}
	return *s.Opacity
}

// Geometry is the local size of a leaf, or the background of a region.
// Shapes and images span (0,0)-(Width,Height).
type Geometry struct {
	Width   float64 `json:"width" yaml:"width"`
	Height  float64 `json:"height" yaml:"height"`
	Radius  float64 `json:"radius,omitempty" yaml:"radius,omitempty"`
	AssetID string  `json:"assetId,omitempty" yaml:"assetId,omitempty"`
	// Opaque declares that every pixel of the image asset has full alpha.
	Opaque bool `json:"opaque,omitempty" yaml:"opaque,omitempty"`
}

// Rect returns the geometry as a local rectangle.
func (g Geometry) Rect() geom.Rect {
	if g.Width <= 0 || g.Height <= 0 {
		return geom.EmptyRect()
	}
	return geom.XYWH(0, 0, g.Width, g.Height)
}

type EffectType string

const (
	EffectDropShadow EffectType = "dropShadow"
	EffectBlur       EffectType = "blur"
	EffectOpacity    EffectType = "opacity"
)

type Effect struct {
	Type    EffectType `json:"type" yaml:"type"`
	OffsetX float64    `json:"offsetX,omitempty" yaml:"offsetX,omitempty"`
	OffsetY float64    `json:"offsetY,omitempty" yaml:"offsetY,omitempty"`
	Radius  float64    `json:"radius,omitempty" yaml:"radius,omitempty"`
	Alpha   float64    `json:"alpha,omitempty" yaml:"alpha,omitempty"`
	Color   string     `json:"color,omitempty" yaml:"color,omitempty"`
}

type ObjectNode struct {
	ID       string     `json:"id" yaml:"id"`
	Name     string     `json:"name,omitempty" yaml:"name,omitempty"`
	Type     ObjectType `json:"type" yaml:"type"`
	Parent   string     `json:"parent,omitempty" yaml:"parent,omitempty"`
	Children []string   `json:"children,omitempty" yaml:"children,omitempty"`
	// Transform defaults to identity when absent.
	Transform    *Transform   `json:"transform,omitempty" yaml:"transform,omitempty"`
	Style        Style        `json:"style" yaml:"style"`
	Geometry     Geometry     `json:"geometry" yaml:"geometry"`
	Hidden       bool         `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	OpaqueInsets *geom.Insets `json:"opaqueInsets,omitempty" yaml:"opaqueInsets,omitempty"`
	Effect       *Effect      `json:"effect,omitempty" yaml:"effect,omitempty"`
}

// LocalTransform returns the object's transform, identity when unset.
func (o ObjectNode) LocalTransform() Transform {
	if o.Transform == nil {
		return IdentityTransform()
	}
	return *o.Transform
}

type Timeline struct {
	ID     string   `json:"id" yaml:"id"`
	Length int      `json:"length" yaml:"length"`
	Loop   bool     `json:"loop,omitempty" yaml:"loop,omitempty"`
	Tracks []string `json:"tracks" yaml:"tracks"`
}

type Track struct {
	ID       string   `json:"id" yaml:"id"`
	ObjectID string   `json:"objectId" yaml:"objectId"`
	Property string   `json:"property" yaml:"property"`
	Keys     []string `json:"keys" yaml:"keys"`
}

type EasingType string

const (
	EasingLinear     EasingType = "linear"
	EasingEaseIn     EasingType = "easeIn"
	EasingEaseOut    EasingType = "easeOut"
	EasingEaseInOut  EasingType = "easeInOut"
	EasingCubicIn    EasingType = "cubicIn"
	EasingCubicOut   EasingType = "cubicOut"
	EasingCubicInOut EasingType = "cubicInOut"
	EasingBackOut    EasingType = "backOut"
	EasingElasticOut EasingType = "elasticOut"
	EasingBounceOut  EasingType = "bounceOut"
	EasingStep       EasingType = "step"
)

type Keyframe struct {
	ID     string     `json:"id" yaml:"id"`
	Frame  int        `json:"frame" yaml:"frame"`
	Value  Value      `json:"value" yaml:"value"`
	Easing EasingType `json:"easing,omitempty" yaml:"easing,omitempty"`
}

type Asset struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	URL    string `json:"url" yaml:"url"`
	Width  int    `json:"width" yaml:"width"`
	Height int    `json:"height" yaml:"height"`
	Opaque bool   `json:"opaque" yaml:"opaque"`
}

// NewEmptyDocument creates a document with one empty scene.
func NewEmptyDocument(projectID, name, sceneID, rootID string, width, height int) *InDocument {
	return &InDocument{
		Project: Project{
			ID:      projectID,
			Name:    name,
			Version: 1,
			FPS:     24,
			Scenes:  []string{sceneID},
		},
		Scenes: map[string]Scene{
			sceneID: {
				ID:         sceneID,
				Name:       "Scene 1",
				Width:      width,
				Height:     height,
				Background: "#1a1a2e",
				Root:       rootID,
			},
		},
		Objects: map[string]ObjectNode{
			rootID: {
				ID:   rootID,
				Type: ObjectTypeGroup,
			},
		},
		Timelines: map[string]Timeline{},
		Tracks:    map[string]Track{},
		Keyframes: map[string]Keyframe{},
		Assets:    map[string]Asset{},
	}
}

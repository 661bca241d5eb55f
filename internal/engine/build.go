package engine

import (
	"fmt"

	"github.com/inamate/compositor/internal/document"
)

// Build creates the render graph of a document scene. An empty sceneID
// selects the first scene. Every node starts dirty, so the first pulse
// paints everything.
func Build(doc *document.InDocument, sceneID string) (*Node, error) {
	sc, err := doc.Scene(sceneID)
	if err != nil {
		return nil, err
	}
	rootObj, ok := doc.Objects[sc.Root]
	if !ok {
		return nil, fmt.Errorf("root %q: %w", sc.Root, document.ErrMissingObject)
	}
	return buildNode(doc, rootObj)
}

// buildNode recursively builds a Node from a document object.
func buildNode(doc *document.InDocument, obj document.ObjectNode) (*Node, error) {
	n, err := NewNodeFromObject(doc, obj)
	if err != nil {
		return nil, err
	}
	for _, childID := range obj.Children {
		childObj, ok := doc.Objects[childID]
		if !ok {
			return nil, fmt.Errorf("child %q of %q: %w", childID, obj.ID, document.ErrMissingObject)
		}
		child, err := buildNode(doc, childObj)
		if err != nil {
			return nil, err
		}
		n.AddChild(child)
	}
	return n, nil
}

// NewNodeFromObject creates a single detached node from a document object,
// without its children. doc is consulted for image asset metadata and may
// be nil.
func NewNodeFromObject(doc *document.InDocument, obj document.ObjectNode) (*Node, error) {
	fill, err := document.ParseColor(obj.Style.Fill)
	if err != nil {
		return nil, fmt.Errorf("object %q: %w", obj.ID, err)
	}
	bounds := obj.Geometry.Rect()

	var n *Node
	switch obj.Type {
	case document.ObjectTypeGroup:
		n = NewGroup(obj.ID)
	case document.ObjectTypeRegion:
		n = NewRegion(obj.ID, bounds, fill)
	case document.ObjectTypeShapeRect:
		n = NewRect(obj.ID, bounds, fill)
	case document.ObjectTypeShapeRoundRect:
		n = NewRoundRect(obj.ID, bounds, obj.Geometry.Radius, fill)
	case document.ObjectTypeShapeEllipse:
		n = NewEllipse(obj.ID, bounds, fill)
	case document.ObjectTypeRasterImage:
		opaque := obj.Geometry.Opaque
		if doc != nil {
			if a, ok := doc.Assets[obj.Geometry.AssetID]; ok && a.Opaque {
				opaque = true
			}
		}
		n = NewImage(obj.ID, bounds, obj.Geometry.AssetID, opaque)
	default:
		return nil, fmt.Errorf("object %q has type %q: %w", obj.ID, obj.Type, document.ErrInvalidObject)
	}

	n.Name = obj.Name
	n.SetTransform(obj.LocalTransform().Matrix())
	n.SetOpacity(obj.Style.Alpha())
	n.SetVisible(!obj.Hidden)
	if obj.OpaqueInsets != nil {
		n.SetOpaqueInsets(*obj.OpaqueInsets)
	}
	if obj.Effect != nil {
		e, err := EffectFromSpec(*obj.Effect)
		if err != nil {
			return nil, fmt.Errorf("object %q: %w", obj.ID, err)
		}
		n.SetEffect(e)
	}
	return n, nil
}

// Index maps every node ID in the subtree to its node.
func Index(root *Node) map[string]*Node {
	idx := make(map[string]*Node)
	root.Walk(func(n *Node) bool {
		idx[n.ID] = n
		return true
	})
	return idx
}

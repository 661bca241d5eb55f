package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/inamate/compositor/internal/document"
	"github.com/inamate/compositor/internal/engine"
	"github.com/inamate/compositor/internal/timeline"
)

// Operation types viewers may submit.
const (
	OpTransform  = "node.transform"
	OpOpacity    = "node.opacity"
	OpVisibility = "node.visibility"
	OpFill       = "node.fill"
	OpEffect     = "node.effect"
	OpBounds     = "node.bounds"
	OpRemove     = "node.remove"
)

var (
	ErrUnknownOperation = errors.New("unknown operation type")
	ErrUnknownObject    = errors.New("object not found")
	ErrInvalidOperation = errors.New("invalid operation")
)

// Operation is a change to one scene object. Only the fields of its type
// are read.
type Operation struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	ClientSeq int64  `json:"clientSeq"`
	ObjectID  string `json:"objectId"`

	// node.transform: any of x, y, sx, sy, r, ax, ay.
	Transform map[string]float64 `json:"transform,omitempty"`
	// node.opacity
	Opacity *float64 `json:"opacity,omitempty"`
	// node.visibility
	Visible *bool `json:"visible,omitempty"`
	// node.fill
	Fill string `json:"fill,omitempty"`
	// node.effect; nil removes the effect.
	Effect *document.Effect `json:"effect,omitempty"`
	// node.bounds
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`
}

// DocumentState holds the authoritative document of a running scene and
// the sequence of operations applied to it.
type DocumentState struct {
	mu        sync.RWMutex
	doc       *document.InDocument
	root      string
	serverSeq int64
	savedSeq  int64
	opLog     []Operation
}

// NewDocumentState wraps doc. sceneID selects the scene whose root may not
// be removed; empty means the first scene.
func NewDocumentState(doc *document.InDocument, sceneID string) (*DocumentState, error) {
	sc, err := doc.Scene(sceneID)
	if err != nil {
		return nil, err
	}
	return &DocumentState{doc: doc, root: sc.Root}, nil
}

// Seq returns the sequence number of the last applied operation.
func (ds *DocumentState) Seq() int64 {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.serverSeq
}

// Dirty reports whether operations were applied since the last save.
func (ds *DocumentState) Dirty() bool {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.serverSeq != ds.savedSeq
}

// MarkSaved records that the document as of seq is persisted.
func (ds *DocumentState) MarkSaved(seq int64) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.savedSeq = max(ds.savedSeq, seq)
	// Operations up to seq are in the snapshot.
	drop := len(ds.opLog) - int(ds.serverSeq-ds.savedSeq)
	if drop > 0 {
		ds.opLog = append(ds.opLog[:0], ds.opLog[drop:]...)
	}
}

// Pending returns the operations not yet covered by a save.
func (ds *DocumentState) Pending() []Operation {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return append([]Operation(nil), ds.opLog...)
}

// Encode encodes the current document with the sequence it reflects.
func (ds *DocumentState) Encode() ([]byte, int64, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	data, err := json.Marshal(ds.doc)
	return data, ds.serverSeq, err
}

// Clone returns a deep copy of the document for persistence.
func (ds *DocumentState) Clone() (*document.InDocument, int64, error) {
	data, seq, err := ds.Encode()
	if err != nil {
		return nil, 0, err
	}
	var doc document.InDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, 0, err
	}
	return &doc, seq, nil
}

// Replace swaps in a new document. Pending operations are considered
// superseded.
func (ds *DocumentState) Replace(doc *document.InDocument) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.doc = doc
	ds.savedSeq = ds.serverSeq
	ds.opLog = ds.opLog[:0]
}

// Timeline compiles the scene's timeline, or returns nil when it has none.
func (ds *DocumentState) Timeline(sceneID string) (*timeline.Timeline, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	sc, err := ds.doc.Scene(sceneID)
	if err != nil || sc.Timeline == "" {
		return nil, err
	}
	return timeline.Compile(ds.doc, sc.Timeline)
}

// Apply validates op against the document and applies it. It returns the
// new server sequence and the object as it is after the operation.
func (ds *DocumentState) Apply(op Operation) (int64, document.ObjectNode, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	obj, ok := ds.doc.Objects[op.ObjectID]
	if !ok {
		return 0, document.ObjectNode{}, fmt.Errorf("%w: %s", ErrUnknownObject, op.ObjectID)
	}

	var err error
	switch op.Type {
	case OpTransform:
		err = applyTransform(&obj, op)
	case OpOpacity:
		err = applyOpacity(&obj, op)
	case OpVisibility:
		err = applyVisibility(&obj, op)
	case OpFill:
		err = applyFill(&obj, op)
	case OpEffect:
		err = applyEffect(&obj, op)
	case OpBounds:
		err = applyBounds(&obj, op)
	case OpRemove:
		err = ds.removeLocked(obj)
	default:
		return 0, document.ObjectNode{}, fmt.Errorf("%w: %s", ErrUnknownOperation, op.Type)
	}
	if err != nil {
		return 0, document.ObjectNode{}, err
	}
	if op.Type != OpRemove {
		ds.doc.Objects[op.ObjectID] = obj
	}

	ds.serverSeq++
	ds.opLog = append(ds.opLog, op)
	return ds.serverSeq, obj, nil
}

func applyTransform(obj *document.ObjectNode, op Operation) error {
	if len(op.Transform) == 0 {
		return fmt.Errorf("%w: empty transform", ErrInvalidOperation)
	}
	tx := obj.LocalTransform()
	for k, v := range op.Transform {
		switch k {
		case "x":
			tx.X = v
		case "y":
			tx.Y = v
		case "sx":
			tx.SX = v
		case "sy":
			tx.SY = v
		case "r":
			tx.R = v
		case "ax":
			tx.AX = v
		case "ay":
			tx.AY = v
		default:
			return fmt.Errorf("%w: transform property %q", ErrInvalidOperation, k)
		}
	}
	obj.Transform = &tx
	return nil
}

func applyOpacity(obj *document.ObjectNode, op Operation) error {
	if op.Opacity == nil || *op.Opacity < 0 || *op.Opacity > 1 {
		return fmt.Errorf("%w: opacity must be in [0,1]", ErrInvalidOperation)
	}
	v := *op.Opacity
	obj.Style.Opacity = &v
	return nil
}

func applyVisibility(obj *document.ObjectNode, op Operation) error {
	if op.Visible == nil {
		return fmt.Errorf("%w: missing visible", ErrInvalidOperation)
	}
	obj.Hidden = !*op.Visible
	return nil
}

func applyFill(obj *document.ObjectNode, op Operation) error {
	if _, err := document.ParseColor(op.Fill); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOperation, err)
	}
	obj.Style.Fill = op.Fill
	return nil
}

func applyEffect(obj *document.ObjectNode, op Operation) error {
	if op.Effect == nil {
		obj.Effect = nil
		return nil
	}
	if !obj.Type.IsContainer() {
		return fmt.Errorf("%w: effects apply to groups", ErrInvalidOperation)
	}
	if _, err := engine.EffectFromSpec(*op.Effect); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOperation, err)
	}
	e := *op.Effect
	obj.Effect = &e
	return nil
}

func applyBounds(obj *document.ObjectNode, op Operation) error {
	if obj.Type == document.ObjectTypeGroup {
		return fmt.Errorf("%w: groups have no own bounds", ErrInvalidOperation)
	}
	if op.Width != nil {
		if *op.Width < 0 {
			return fmt.Errorf("%w: negative width", ErrInvalidOperation)
		}
		obj.Geometry.Width = *op.Width
	}
	if op.Height != nil {
		if *op.Height < 0 {
			return fmt.Errorf("%w: negative height", ErrInvalidOperation)
		}
		obj.Geometry.Height = *op.Height
	}
	return nil
}

// removeLocked deletes obj and its descendants and unlinks it from its
// parent.
func (ds *DocumentState) removeLocked(obj document.ObjectNode) error {
	if obj.ID == ds.root {
		return fmt.Errorf("%w: cannot remove the scene root", ErrInvalidOperation)
	}
	for id, parent := range ds.doc.Objects {
		for i, c := range parent.Children {
			if c == obj.ID {
				parent.Children = append(parent.Children[:i:i], parent.Children[i+1:]...)
				ds.doc.Objects[id] = parent
				break
			}
		}
	}
	var drop func(id string)
	drop = func(id string) {
		for _, c := range ds.doc.Objects[id].Children {
			drop(c)
		}
		delete(ds.doc.Objects, id)
	}
	drop(obj.ID)
	return nil
}

// ServerTimestamp returns the current server time in milliseconds.
func ServerTimestamp() int64 {
	return time.Now().UnixMilli()
}

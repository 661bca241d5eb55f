package engine

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/inamate/compositor/internal/document"
	"github.com/inamate/compositor/internal/geom"
)

// DrawCommand is a single drawing operation for a Canvas2D-style client.
// A frame compiles to a clip followed by the nodes that intersect it, in
// paint order.
type DrawCommand struct {
	Op           string           `json:"op"`                     // "clip", "clear", "rect", "roundRect", "ellipse", "image", "region", "pushEffect", "popEffect"
	ObjectID     string           `json:"objectId,omitempty"`     // For correlation with the document
	Transform    *geom.Transform  `json:"transform,omitempty"`    // Node-to-device matrix
	Rect         *geom.Rect       `json:"rect,omitempty"`         // Local geometry
	Regions      []geom.Rect      `json:"regions,omitempty"`      // Device-space clip rectangles
	Radius       float64          `json:"radius,omitempty"`       // Corner radius
	Fill         string           `json:"fill,omitempty"`         // Fill color
	Opacity      float64          `json:"opacity,omitempty"`      // Global alpha
	ImageAssetID string           `json:"imageAssetId,omitempty"` // Asset ID for image lookup
	Effect       *document.Effect `json:"effect,omitempty"`       // For "pushEffect"
}

// CompileDrawCommands generates the command buffer for a frame.
func CompileDrawCommands(f Frame) []DrawCommand {
	if f.Root == nil || len(f.Regions) == 0 {
		return nil
	}
	c := &compiler{}
	c.cmds = append(c.cmds,
		DrawCommand{Op: "clip", Regions: append([]geom.Rect(nil), f.Regions...)},
		DrawCommand{Op: "clear"},
	)
	f.Traverse(c)
	return c.cmds
}

type compiler struct {
	cmds []DrawCommand
}

func (c *compiler) DrawNode(n *Node, tx geom.Transform, alpha float64) {
	if n.kind == KindGroup {
		return
	}
	bounds := n.bounds
	cmd := DrawCommand{
		ObjectID:  n.ID,
		Transform: &tx,
		Rect:      &bounds,
		Opacity:   alpha,
		Fill:      document.FormatColor(n.fill),
	}
	switch n.kind {
	case KindRegion:
		cmd.Op = "region"
	case KindImage:
		cmd.Op = "image"
		cmd.Fill = ""
		cmd.ImageAssetID = n.assetID
	case KindShape:
		switch n.shape {
		case ShapeRoundRect:
			cmd.Op = "roundRect"
			cmd.Radius = n.cornerRadius
		case ShapeEllipse:
			cmd.Op = "ellipse"
		default:
			cmd.Op = "rect"
		}
	}
	c.cmds = append(c.cmds, cmd)
}

func (c *compiler) PushEffect(n *Node, tx geom.Transform, alpha float64) {
	spec, ok := EffectSpec(n.effect)
	if !ok {
		return
	}
	c.cmds = append(c.cmds, DrawCommand{Op: "pushEffect", ObjectID: n.ID, Transform: &tx, Opacity: alpha, Effect: spec})
}

func (c *compiler) PopEffect(n *Node) {
	if _, ok := EffectSpec(n.effect); !ok {
		return
	}
	c.cmds = append(c.cmds, DrawCommand{Op: "popEffect", ObjectID: n.ID})
}

// DrawCommandsToJSON serializes draw commands to JSON.
func DrawCommandsToJSON(commands []DrawCommand) (string, error) {
	if commands == nil {
		return "[]", nil
	}
	data, err := json.Marshal(commands)
	if err != nil {
		return "[]", err
	}
	return string(data), nil
}

// CommandPainter compiles every painted frame into draw commands and keeps
// the latest buffer for a client to fetch.
type CommandPainter struct {
	mu     sync.Mutex
	last   []DrawCommand
	frames uint64
}

// Paint implements Painter.
func (p *CommandPainter) Paint(_ context.Context, f Frame) error {
	cmds := CompileDrawCommands(f)
	p.mu.Lock()
	p.last = cmds
	p.frames++
	p.mu.Unlock()
	return nil
}

// Take returns the commands of the latest frame and clears them, so a
// client polling faster than the pulse rate draws each frame once.
func (p *CommandPainter) Take() []DrawCommand {
	p.mu.Lock()
	defer p.mu.Unlock()
	cmds := p.last
	p.last = nil
	return cmds
}

// Frames returns the number of frames painted so far.
func (p *CommandPainter) Frames() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

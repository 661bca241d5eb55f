package session

import (
	"context"

	"github.com/inamate/compositor/internal/dirty"
	"github.com/inamate/compositor/internal/engine"
	"github.com/inamate/compositor/internal/geom"
	"github.com/inamate/compositor/internal/raster"
)

// FrameInfo is what viewers learn about a painted pulse.
type FrameInfo struct {
	Pulse   uint64       `json:"pulse"`
	Regions []geom.Rect  `json:"regions"`
	Status  dirty.Status `json:"status"`
	Path    []string     `json:"path"`
	Pixels  int          `json:"pixels"`
}

// FramePublisher receives every painted frame of a scene.
type FramePublisher interface {
	PublishFrame(sceneID string, f FrameInfo)
}

// framePainter rasterizes a frame and then publishes a summary of it.
type framePainter struct {
	sceneID string
	raster  *raster.Painter
	pub     FramePublisher
}

func (p *framePainter) Paint(ctx context.Context, f engine.Frame) error {
	if err := p.raster.Paint(ctx, f); err != nil {
		return err
	}
	if p.pub == nil {
		return nil
	}
	p.pub.PublishFrame(p.sceneID, FrameInfo{
		Pulse:   f.Pulse,
		Regions: append([]geom.Rect(nil), f.Regions...),
		Status:  f.Status,
		Path:    f.Path.IDs(),
		Pixels:  p.raster.PixelsPainted(),
	})
	return nil
}

// Package raster is a software painter for render graphs. It keeps a
// persistent canvas and repaints only the damaged regions of each frame,
// starting at the frame's render root.
package raster

import (
	"context"
	"image"
	"image/color"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/inamate/compositor/internal/engine"
	"github.com/inamate/compositor/internal/geom"
)

// AssetSource resolves image node assets.
type AssetSource interface {
	Image(id string) (image.Image, bool)
}

// Option configures a Painter.
type Option func(*Painter)

// WithAssets sets where image nodes get their pixels from. Without one,
// images are drawn as a box of the node's fill color.
func WithAssets(a AssetSource) Option {
	return func(p *Painter) { p.assets = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Painter) {
		if l != nil {
			p.logger = l
		}
	}
}

// Painter draws frames into an RGBA canvas. Paint runs on the render
// goroutine; Snapshot may be called from anywhere.
type Painter struct {
	mu         sync.Mutex
	canvas     *image.RGBA
	background color.NRGBA
	assets     AssetSource
	logger     *slog.Logger

	// Scratch state, valid during Paint.
	work   image.Rectangle
	clip   *image.Alpha
	cover  *image.Alpha
	layers []*layer
	z      *vector.Rasterizer
	pixels int
}

// NewPainter creates a painter with a width×height canvas cleared to bg.
func NewPainter(width, height int, bg color.NRGBA, opts ...Option) *Painter {
	p := &Painter{
		canvas:     image.NewRGBA(image.Rect(0, 0, width, height)),
		background: bg,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	draw.Draw(p.canvas, p.canvas.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	return p
}

// Bounds returns the canvas rectangle.
func (p *Painter) Bounds() image.Rectangle { return p.canvas.Bounds() }

// Snapshot returns a copy of the canvas.
func (p *Painter) Snapshot() *image.RGBA {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := image.NewRGBA(p.canvas.Bounds())
	copy(out.Pix, p.canvas.Pix)
	return out
}

// PixelsPainted returns how many canvas pixels the last frame repainted.
func (p *Painter) PixelsPainted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pixels
}

// Paint implements engine.Painter.
func (p *Painter) Paint(ctx context.Context, f engine.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pixels = 0
	p.work = image.Rectangle{}
	for _, r := range f.Regions {
		p.work = p.work.Union(pixelRect(r))
	}
	p.work = p.work.Intersect(p.canvas.Bounds())
	if p.work.Empty() {
		return nil
	}
	// Effects read pixels around the damage, so content is rasterized over
	// a margin and only written back inside the clip.
	p.work = p.work.Inset(-effectMargin(f)).Intersect(p.canvas.Bounds())

	p.clip = reuseAlpha(p.clip, p.work)
	for _, r := range f.Regions {
		pr := pixelRect(r).Intersect(p.work)
		draw.Draw(p.clip, pr, image.Opaque, image.Point{}, draw.Src)
		p.pixels += pr.Dx() * pr.Dy()
	}
	p.cover = reuseAlpha(p.cover, p.work)
	if p.z == nil {
		p.z = vector.NewRasterizer(p.work.Dx(), p.work.Dy())
	}
	p.z.DrawOp = draw.Src

	draw.DrawMask(p.canvas, p.work, image.NewUniform(p.background), image.Point{}, p.clip, p.work.Min, draw.Src)
	f.Traverse(p)
	return nil
}

// target returns the surface drawing currently goes to and whether the
// clip has to be applied.
func (p *Painter) target() (*image.RGBA, bool) {
	if n := len(p.layers); n > 0 {
		return p.layers[n-1].img, false
	}
	return p.canvas, true
}

// DrawNode implements engine.PaintVisitor.
func (p *Painter) DrawNode(n *engine.Node, tx geom.Transform, alpha float64) {
	if n.Kind() == engine.KindGroup {
		return
	}
	if n.Kind() == engine.KindImage && p.assets != nil && tx.Is2D() {
		if img, ok := p.assets.Image(n.AssetID()); ok {
			p.drawImage(img, n.Bounds(), tx, alpha)
			return
		}
		p.logger.Debug("image asset unavailable, drawing placeholder", "node", n.ID, "asset", n.AssetID())
	}
	if !p.rasterize(outline(n), tx) {
		return
	}
	p.fillCoverage(n.Fill(), alpha)
}

// rasterize fills the coverage mask with the polygon mapped to device
// space. It reports false when nothing can be drawn.
func (p *Painter) rasterize(poly []point, tx geom.Transform) bool {
	if len(poly) < 3 {
		return false
	}
	p.z.Reset(p.work.Dx(), p.work.Dy())
	p.z.DrawOp = draw.Src
	ox, oy := float64(p.work.Min.X), float64(p.work.Min.Y)
	for i, pt := range poly {
		x, y, ok := project(tx, pt.x, pt.y)
		if !ok {
			// Behind the viewer; there is no finite outline to fill.
			return false
		}
		fx, fy := float32(x-ox), float32(y-oy)
		if i == 0 {
			p.z.MoveTo(fx, fy)
		} else {
			p.z.LineTo(fx, fy)
		}
	}
	p.z.ClosePath()
	p.z.Draw(p.cover, p.work, image.Opaque, image.Point{})
	return true
}

// fillCoverage composites c through the coverage mask, scaled by alpha and,
// on the canvas, by the clip.
func (p *Painter) fillCoverage(c color.NRGBA, alpha float64) {
	dst, clipped := p.target()
	scale := uint32(math.Round(alpha * 255))
	for i, cv := range p.cover.Pix {
		m := uint32(cv) * scale / 255
		if clipped {
			m = m * uint32(p.clip.Pix[i]) / 255
		}
		p.cover.Pix[i] = uint8(m)
	}
	draw.DrawMask(dst, p.work, image.NewUniform(c), image.Point{}, p.cover, p.work.Min, draw.Over)
}

func (p *Painter) drawImage(img image.Image, bounds geom.Rect, tx geom.Transform, alpha float64) {
	if bounds.IsEmpty() || img.Bounds().Empty() {
		return
	}
	sb := img.Bounds()
	sx := bounds.Width() / float64(sb.Dx())
	sy := bounds.Height() / float64(sb.Dy())
	local := geom.Translate(bounds.MinX, bounds.MinY).
		Multiply(geom.Scale(sx, sy)).
		Multiply(geom.Translate(float64(-sb.Min.X), float64(-sb.Min.Y)))
	m := tx.Multiply(local).Matrix()

	dst, clipped := p.target()
	opts := &draw.Options{}
	if clipped {
		// The clip shares canvas coordinates.
		opts.DstMask = p.clip
	}
	if alpha < 1 {
		opts.SrcMask = image.NewUniform(color.Alpha{A: uint8(math.Round(alpha * 255))})
	}
	sub := dst.SubImage(p.work).(*image.RGBA)
	draw.BiLinear.Transform(sub, affine(m), img, sb, draw.Over, opts)
}

// pixelRect converts a device rectangle to the pixels it touches.
func pixelRect(r geom.Rect) image.Rectangle {
	if r.IsEmpty() {
		return image.Rectangle{}
	}
	r = r.RoundOut()
	const limit = 1 << 24
	clamp := func(v float64) int { return int(math.Max(-limit, math.Min(limit, v))) }
	return image.Rect(clamp(r.MinX), clamp(r.MinY), clamp(r.MaxX), clamp(r.MaxY))
}

func reuseAlpha(a *image.Alpha, r image.Rectangle) *image.Alpha {
	if a == nil || cap(a.Pix) < r.Dx()*r.Dy() {
		return image.NewAlpha(r)
	}
	a.Pix = a.Pix[:r.Dx()*r.Dy()]
	clear(a.Pix)
	a.Stride = r.Dx()
	a.Rect = r
	return a
}

package raster

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/inamate/compositor/internal/engine"
	"github.com/inamate/compositor/internal/geom"
)

// layer is an offscreen surface a subtree with an effect is drawn into
// before the effect is applied.
type layer struct {
	img   *image.RGBA
	tx    geom.Transform
	alpha float64
}

// PushEffect implements engine.PaintVisitor.
func (p *Painter) PushEffect(n *engine.Node, tx geom.Transform, alpha float64) {
	p.layers = append(p.layers, &layer{
		img:   image.NewRGBA(p.work),
		tx:    tx,
		alpha: alpha,
	})
}

// PopEffect implements engine.PaintVisitor.
func (p *Painter) PopEffect(n *engine.Node) {
	top := p.layers[len(p.layers)-1]
	p.layers = p.layers[:len(p.layers)-1]

	switch e := n.Effect().(type) {
	case engine.DropShadow:
		dx, dy := deviceVector(top.tx, e.OffsetX, e.OffsetY)
		shadow := tint(top.img, e.Color)
		shadow = shift(shadow, int(math.Round(dx)), int(math.Round(dy)))
		boxBlur(shadow, blurPasses(top.tx, e.Radius))
		p.composite(shadow, 1)
		p.composite(top.img, 1)
	case engine.GaussianBlur:
		boxBlur(top.img, blurPasses(top.tx, e.Radius))
		p.composite(top.img, 1)
	case engine.Opacity:
		p.composite(top.img, e.Alpha)
	default:
		p.composite(top.img, 1)
	}
}

// composite draws src over the current target, scaled by alpha and, on the
// canvas, masked by the clip.
func (p *Painter) composite(src *image.RGBA, alpha float64) {
	dst, clipped := p.target()
	a := uint8(math.Round(min(max(alpha, 0), 1) * 255))
	var mask image.Image = image.NewUniform(color.Alpha{A: a})
	mp := image.Point{}
	if clipped {
		if a < 0xff {
			for i, c := range p.clip.Pix {
				p.cover.Pix[i] = uint8(uint32(c) * uint32(a) / 255)
			}
			mask = p.cover
		} else {
			mask = p.clip
		}
		mp = p.work.Min
	}
	draw.DrawMask(dst, p.work, src, p.work.Min, mask, mp, draw.Over)
}

// tint replaces the color of every pixel with c, keeping its coverage.
func tint(src *image.RGBA, c color.NRGBA) *image.RGBA {
	out := image.NewRGBA(src.Rect)
	for i := 0; i < len(src.Pix); i += 4 {
		a := uint32(src.Pix[i+3]) * uint32(c.A) / 255
		out.Pix[i+0] = uint8(uint32(c.R) * a / 255)
		out.Pix[i+1] = uint8(uint32(c.G) * a / 255)
		out.Pix[i+2] = uint8(uint32(c.B) * a / 255)
		out.Pix[i+3] = uint8(a)
	}
	return out
}

// shift moves the image content by (dx, dy) pixels inside the same bounds.
func shift(src *image.RGBA, dx, dy int) *image.RGBA {
	out := image.NewRGBA(src.Rect)
	draw.Draw(out, src.Rect.Add(image.Pt(dx, dy)), src, src.Rect.Min, draw.Src)
	return out
}

// blurPasses returns the half-width of each of three box blur passes for a
// blur of the given local radius. The passes never spread further than the
// radius, so the blurred content stays inside the effect bounds.
func blurPasses(tx geom.Transform, radius float64) int {
	r := radius * deviceScale(tx)
	return int(math.Floor(r / 3))
}

// boxBlur runs three horizontal and vertical box passes of half-width k,
// which approximates a gaussian.
func boxBlur(img *image.RGBA, k int) {
	if k <= 0 {
		return
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	buf := make([]uint8, len(img.Pix))
	for pass := 0; pass < 3; pass++ {
		boxPass(img.Pix, buf, w, h, 4, img.Stride, k)
		boxPass(buf, img.Pix, h, w, img.Stride, 4, k)
	}
}

// boxPass averages runs of 2k+1 pixels along lines. n is the line length,
// lines the number of lines, step the byte distance between neighbors and
// lineStep the distance between lines.
func boxPass(src, dst []uint8, n, lines, step, lineStep, k int) {
	div := uint32(2*k + 1)
	for l := 0; l < lines; l++ {
		base := l * lineStep
		for c := 0; c < 4; c++ {
			var sum uint32
			for i := -k; i <= k; i++ {
				if i >= 0 && i < n {
					sum += uint32(src[base+i*step+c])
				}
			}
			for i := 0; i < n; i++ {
				dst[base+i*step+c] = uint8(sum / div)
				if out := i - k; out >= 0 {
					sum -= uint32(src[base+out*step+c])
				}
				if in := i + k + 1; in < n {
					sum += uint32(src[base+in*step+c])
				}
			}
		}
	}
}

// effectMargin returns how many pixels around the damage effects may pull
// content from.
func effectMargin(f engine.Frame) int {
	margin := 0.0
	var walk func(n *engine.Node, tx geom.Transform)
	walk = func(n *engine.Node, tx geom.Transform) {
		if !n.Visible() || n.Opacity() == 0 {
			return
		}
		tx = tx.Multiply(n.Transform())
		if e := n.Effect(); e != nil {
			base := n.ContentBounds()
			grown := tx.TransformRect(e.Bounds(base, tx))
			plain := tx.TransformRect(base)
			margin += max(plain.MinX-grown.MinX, plain.MinY-grown.MinY,
				grown.MaxX-plain.MaxX, grown.MaxY-plain.MaxY, 0)
		}
		for _, c := range n.Children() {
			walk(c, tx)
		}
	}
	if f.Root != nil {
		walk(f.Root, f.View)
	}
	if math.IsInf(margin, 0) || math.IsNaN(margin) || margin > 1<<16 {
		return 1 << 16
	}
	return int(math.Ceil(margin))
}

// deviceScale approximates the linear scale of the transform.
func deviceScale(tx geom.Transform) float64 {
	m := tx.Matrix()
	return math.Sqrt(math.Abs(m[0]*m[5] - m[1]*m[4]))
}

// deviceVector maps a local offset to device space.
func deviceVector(tx geom.Transform, x, y float64) (float64, float64) {
	x0, y0 := tx.TransformPoint(0, 0)
	x1, y1 := tx.TransformPoint(x, y)
	return x1 - x0, y1 - y0
}

// affine converts the 2D part of a transform to the x/image layout.
func affine(m [16]float64) f64.Aff3 {
	return f64.Aff3{m[0], m[1], m[3], m[4], m[5], m[7]}
}

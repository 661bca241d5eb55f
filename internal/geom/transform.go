package geom

import (
	"encoding/json"
	"errors"
	"math"
)

// ErrSingular is returned when a transform has no inverse.
var ErrSingular = errors.New("geom: transform is not invertible")

const (
	// wEpsilon bounds the homogeneous w below which a projected point is
	// treated as lying on or behind the eye plane.
	wEpsilon = 1e-9
	// axisEpsilon is the tolerance used to classify matrix entries as zero.
	axisEpsilon = 1e-9
)

// Transform is a 4x4 homogeneous matrix acting on column vectors.
// Layout is row-major:
//
//	| m[0]  m[1]  m[2]  m[3]  |
//	| m[4]  m[5]  m[6]  m[7]  |
//	| m[8]  m[9]  m[10] m[11] |
//	| m[12] m[13] m[14] m[15] |
//
// 2D content lives in the z=0 plane, so a 2D affine transform
// | a c e | b d f | occupies m[0], m[1], m[3], m[4], m[5], m[7].
type Transform struct {
	m [16]float64
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{m: [16]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}}
}

// Affine returns the 2D affine transform
//
//	| a c e |
//	| b d f |
//	| 0 0 1 |
func Affine(a, b, c, d, e, f float64) Transform {
	return Transform{m: [16]float64{
		a, c, 0, e,
		b, d, 0, f,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}}
}

// FromMatrix builds a transform from a row-major 4x4 matrix.
func FromMatrix(m [16]float64) Transform {
	return Transform{m: m}
}

// Translate returns a translation transform.
func Translate(tx, ty float64) Transform {
	return Affine(1, 0, 0, 1, tx, ty)
}

// Translate3D returns a translation transform with a z component.
func Translate3D(tx, ty, tz float64) Transform {
	t := Translate(tx, ty)
	t.m[11] = tz
	return t
}

// Scale returns a scale transform.
func Scale(sx, sy float64) Transform {
	return Affine(sx, 0, 0, sy, 0, 0)
}

// Rotate returns a rotation about the z axis (angle in radians).
func Rotate(radians float64) Transform {
	sin, cos := math.Sincos(radians)
	return Affine(cos, sin, -sin, cos, 0, 0)
}

// RotateDegrees returns a rotation about the z axis (angle in degrees).
func RotateDegrees(degrees float64) Transform {
	return Rotate(degrees * math.Pi / 180.0)
}

// RotateX returns a rotation about the x axis (angle in radians).
func RotateX(radians float64) Transform {
	sin, cos := math.Sincos(radians)
	return Transform{m: [16]float64{
		1, 0, 0, 0,
		0, cos, -sin, 0,
		0, sin, cos, 0,
		0, 0, 0, 1,
	}}
}

// RotateY returns a rotation about the y axis (angle in radians).
func RotateY(radians float64) Transform {
	sin, cos := math.Sincos(radians)
	return Transform{m: [16]float64{
		cos, 0, sin, 0,
		0, 1, 0, 0,
		-sin, 0, cos, 0,
		0, 0, 0, 1,
	}}
}

// Perspective returns a perspective projection with the eye at distance d
// from the z=0 plane. Non-positive distances yield the identity.
func Perspective(d float64) Transform {
	t := Identity()
	if d > 0 {
		t.m[14] = -1 / d
	}
	return t
}

// FromProps composes Translate(x, y) * Rotate(r) * Scale(sx, sy) * Translate(-ax, -ay).
// The anchor point (ax, ay) is the rotation/scale center; r is in degrees.
func FromProps(x, y, sx, sy, rDegrees, ax, ay float64) Transform {
	rad := rDegrees * math.Pi / 180.0
	sin, cos := math.Sincos(rad)
	return Affine(
		cos*sx,
		sin*sx,
		-sin*sy,
		cos*sy,
		x+ax-cos*sx*ax+sin*sy*ay,
		y+ay-sin*sx*ax-cos*sy*ay,
	)
}

// Matrix returns the row-major matrix entries.
func (t Transform) Matrix() [16]float64 {
	return t.m
}

// Multiply returns t * other. The result applies other first, then t.
func (t Transform) Multiply(other Transform) Transform {
	var out Transform
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out.m[r*4+c] = t.m[r*4]*other.m[c] +
				t.m[r*4+1]*other.m[4+c] +
				t.m[r*4+2]*other.m[8+c] +
				t.m[r*4+3]*other.m[12+c]
		}
	}
	return out
}

// project maps a z=0 point and returns its homogeneous w.
func (t Transform) project(x, y float64) (float64, float64, float64) {
	px := t.m[0]*x + t.m[1]*y + t.m[3]
	py := t.m[4]*x + t.m[5]*y + t.m[7]
	pw := t.m[12]*x + t.m[13]*y + t.m[15]
	return px, py, pw
}

// TransformPoint applies the transform to a point in the z=0 plane and
// performs the perspective divide.
func (t Transform) TransformPoint(x, y float64) (float64, float64) {
	px, py, pw := t.project(x, y)
	if pw == 1 {
		return px, py
	}
	return px / pw, py / pw
}

// TransformRect transforms a rectangle and returns the axis-aligned bounding
// box of its four mapped corners. If any corner projects onto or behind the
// eye plane the result is InfiniteRect, which is always conservative.
func (t Transform) TransformRect(r Rect) Rect {
	if r.IsEmpty() {
		return r
	}
	if math.IsInf(r.MinX, 0) || math.IsInf(r.MinY, 0) || math.IsInf(r.MaxX, 0) || math.IsInf(r.MaxY, 0) {
		if t.IsIdentity() {
			return r
		}
		return InfiniteRect()
	}

	corners := [4][2]float64{
		{r.MinX, r.MinY},
		{r.MaxX, r.MinY},
		{r.MaxX, r.MaxY},
		{r.MinX, r.MaxY},
	}
	out := EmptyRect()
	for i, c := range corners {
		px, py, pw := t.project(c[0], c[1])
		if pw <= wEpsilon {
			return InfiniteRect()
		}
		if pw != 1 {
			px /= pw
			py /= pw
		}
		if i == 0 {
			out = Rect{MinX: px, MinY: py, MaxX: px, MaxY: py}
			continue
		}
		out.MinX = min(out.MinX, px)
		out.MinY = min(out.MinY, py)
		out.MaxX = max(out.MaxX, px)
		out.MaxY = max(out.MaxY, py)
	}
	return out
}

// Invert returns the inverse transform, or ErrSingular if there is none.
func (t Transform) Invert() (Transform, error) {
	if t.Is2D() {
		a, b, c, d := t.m[0], t.m[4], t.m[1], t.m[5]
		e, f := t.m[3], t.m[7]
		det := a*d - b*c
		if math.Abs(det) < 1e-12 {
			return Identity(), ErrSingular
		}
		inv := 1.0 / det
		return Affine(
			d*inv,
			-b*inv,
			-c*inv,
			a*inv,
			(c*f-d*e)*inv,
			(b*e-a*f)*inv,
		), nil
	}

	// Gauss-Jordan elimination with partial pivoting.
	var a [4][8]float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			a[r][c] = t.m[r*4+c]
		}
		a[r][4+r] = 1
	}
	for col := 0; col < 4; col++ {
		pivot := col
		for r := col + 1; r < 4; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return Identity(), ErrSingular
		}
		a[col], a[pivot] = a[pivot], a[col]
		p := a[col][col]
		for c := 0; c < 8; c++ {
			a[col][c] /= p
		}
		for r := 0; r < 4; r++ {
			if r == col {
				continue
			}
			f := a[r][col]
			if f == 0 {
				continue
			}
			for c := 0; c < 8; c++ {
				a[r][c] -= f * a[col][c]
			}
		}
	}
	var out Transform
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out.m[r*4+c] = a[r][4+c]
		}
	}
	return out, nil
}

// Is2D reports whether the transform is a plain 2D affine transform: no
// perspective row and no interaction with the z axis.
func (t Transform) Is2D() bool {
	return t.m[2] == 0 && t.m[6] == 0 &&
		t.m[8] == 0 && t.m[9] == 0 && t.m[10] == 1 && t.m[11] == 0 &&
		t.m[12] == 0 && t.m[13] == 0 && t.m[14] == 0 && t.m[15] == 1
}

// IsRectilinear reports whether the transform maps axis-aligned rectangles
// onto axis-aligned rectangles: translation, scale and quadrant rotations.
func (t Transform) IsRectilinear() bool {
	if !t.Is2D() {
		return false
	}
	zero := func(v float64) bool { return math.Abs(v) < axisEpsilon }
	return (zero(t.m[1]) && zero(t.m[4])) || (zero(t.m[0]) && zero(t.m[5]))
}

// IsIdentity checks if this is the identity matrix (within epsilon).
func (t Transform) IsIdentity() bool {
	const eps = 1e-10
	id := Identity()
	for i := range t.m {
		if math.Abs(t.m[i]-id.m[i]) >= eps {
			return false
		}
	}
	return true
}

// Equal reports exact equality of all entries.
func (t Transform) Equal(other Transform) bool {
	return t.m == other.m
}

// ToAffine returns the [a, b, c, d, e, f] entries of the 2D part.
func (t Transform) ToAffine() []float64 {
	return []float64{t.m[0], t.m[4], t.m[1], t.m[5], t.m[3], t.m[7]}
}

// MarshalJSON encodes 2D transforms as six affine entries and everything
// else as the full sixteen-entry matrix.
func (t Transform) MarshalJSON() ([]byte, error) {
	if t.Is2D() {
		return json.Marshal(t.ToAffine())
	}
	return json.Marshal(t.m)
}

// UnmarshalJSON accepts either six affine entries or sixteen matrix entries.
func (t *Transform) UnmarshalJSON(data []byte) error {
	var vals []float64
	if err := json.Unmarshal(data, &vals); err != nil {
		return err
	}
	switch len(vals) {
	case 6:
		*t = Affine(vals[0], vals[1], vals[2], vals[3], vals[4], vals[5])
	case 16:
		copy(t.m[:], vals)
	default:
		return errors.New("geom: transform needs 6 or 16 entries")
	}
	return nil
}

package drawer

import "math"

// Point is a 2D point or vector.
type Point struct {
	X, Y float64
}

// Pt is a convenience constructor for a Point.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns the vector sum of two points.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns the vector difference of two points.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Mul returns the point scaled by s.
func (p Point) Mul(s float64) Point {
	return Point{X: p.X * s, Y: p.Y * s}
}

// Lerp linearly interpolates between p and q.
func (p Point) Lerp(q Point, t float64) Point {
	return Point{X: p.X + (q.X-p.X)*t, Y: p.Y + (q.Y-p.Y)*t}
}

// Distance returns the distance between two points.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Line is a straight segment from P0 to P1.
type Line struct {
	P0, P1 Point
}

// Eval evaluates the line at parameter t in [0,1].
func (l Line) Eval(t float64) Point {
	return l.P0.Lerp(l.P1, t)
}

// Subdivide returns the leading portion of the line up to t.
func (l Line) Subdivide(t float64) Line {
	return Line{P0: l.P0, P1: l.Eval(t)}
}

// Arclen returns the length of the line. The steps argument is
// accepted for symmetry with the curve types and ignored.
func (l Line) Arclen(steps int) float64 {
	return l.P0.Distance(l.P1)
}

// QuadBez is a quadratic Bezier curve.
type QuadBez struct {
	P0, P1, P2 Point
}

// Eval evaluates the curve at parameter t using the Bernstein form.
func (q QuadBez) Eval(t float64) Point {
	mt := 1 - t
	a := q.P0.Mul(mt * mt)
	b := q.P1.Mul(2 * mt * t)
	c := q.P2.Mul(t * t)
	return a.Add(b).Add(c)
}

// Subdivide returns the control points of the curve restricted to
// [0,t], by de Casteljau construction.
func (q QuadBez) Subdivide(t float64) QuadBez {
	p01 := q.P0.Lerp(q.P1, t)
	p12 := q.P1.Lerp(q.P2, t)
	return QuadBez{
		P0: q.P0,
		P1: p01,
		P2: p01.Lerp(p12, t),
	}
}

// Arclen approximates the arc length by sampling the curve at steps
// evenly spaced parameters and summing chord lengths.
func (q QuadBez) Arclen(steps int) float64 {
	return sampleArclen(q.Eval, steps)
}

// CubicBez is a cubic Bezier curve.
type CubicBez struct {
	P0, P1, P2, P3 Point
}

// Eval evaluates the curve at parameter t using the Bernstein form.
func (c CubicBez) Eval(t float64) Point {
	mt := 1 - t
	a := c.P0.Mul(mt * mt * mt)
	b := c.P1.Mul(3 * mt * mt * t)
	d := c.P2.Mul(3 * mt * t * t)
	e := c.P3.Mul(t * t * t)
	return a.Add(b).Add(d).Add(e)
}

// Subdivide returns the control points of the curve restricted to
// [0,t], by de Casteljau construction.
func (c CubicBez) Subdivide(t float64) CubicBez {
	p01 := c.P0.Lerp(c.P1, t)
	p12 := c.P1.Lerp(c.P2, t)
	p23 := c.P2.Lerp(c.P3, t)
	p012 := p01.Lerp(p12, t)
	p123 := p12.Lerp(p23, t)
	return CubicBez{
		P0: c.P0,
		P1: p01,
		P2: p012,
		P3: p012.Lerp(p123, t),
	}
}

// Arclen approximates the arc length by sampling the curve at steps
// evenly spaced parameters and summing chord lengths.
func (c CubicBez) Arclen(steps int) float64 {
	return sampleArclen(c.Eval, steps)
}

func sampleArclen(eval func(float64) Point, steps int) float64 {
	if steps < 1 {
		steps = 1
	}
	var sum float64
	prev := eval(0)
	for i := 1; i <= steps; i++ {
		next := eval(float64(i) / float64(steps))
		sum += prev.Distance(next)
		prev = next
	}
	return sum
}

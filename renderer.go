package drawer

import (
	"sync"
	"time"

	mt "github.com/rustyoz/Mtransform"
)

const (
	// DefaultSpeed is how many world units of stroke are drawn per
	// frame. Constant speed regardless of segment length: short
	// segments finish in fewer frames.
	DefaultSpeed = 6.0

	// zeroLengthStep advances degenerate zero-length segments so they
	// still terminate.
	zeroLengthStep = 0.25

	// arclenSteps is the sampling resolution for curve lengths. The
	// approximation only paces the animation, not the rendering.
	arclenSteps = 10

	frameInterval = time.Second / 60
)

// Surface is the drawing target. The method set is the subset of
// *gg.Context the renderer needs, so a gg context satisfies it
// directly.
type Surface interface {
	MoveTo(x, y float64)
	LineTo(x, y float64)
	QuadraticTo(cx, cy, x, y float64)
	CubicTo(c1x, c1y, c2x, c2y, x, y float64)
	ClearPath()
	Stroke() error
	Clear()
	SetLineWidth(width float64)
	SetHexColor(hex string)
}

// Scheduler supplies the host's next-frame primitive. The renderer
// asks for one step per display refresh while work remains.
type Scheduler interface {
	RequestStep(fn func())
}

// TickScheduler schedules steps on a fixed wall-clock interval.
type TickScheduler struct {
	Interval time.Duration
}

// RequestStep runs fn after one frame interval.
func (t TickScheduler) RequestStep(fn func()) {
	interval := t.Interval
	if interval <= 0 {
		interval = frameInterval
	}
	time.AfterFunc(interval, fn)
}

// Renderer animates queued segments onto a Surface, drawing each one
// progressively with arc-length-correct pacing. The animation loop
// starts itself lazily on the first enqueue and stops when the queue
// drains.
type Renderer struct {
	mu      sync.Mutex
	surface Surface
	sched   Scheduler
	tf      mt.Transform
	speed   float64

	queue      []Segment
	current    Segment // nil when idle
	progress   float64
	length     float64
	anchor  Point // pen position when the current segment began
	pen     Point
	running bool
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithScheduler replaces the frame scheduler. Tests use this to
// single-step synchronously.
func WithScheduler(s Scheduler) Option {
	return func(r *Renderer) { r.sched = s }
}

// WithSpeed sets the animation speed in world units per frame.
func WithSpeed(speed float64) Option {
	return func(r *Renderer) { r.speed = speed }
}

// WithTransform sets the world-to-surface transform, typically a
// scale fitting the document viewBox onto the surface.
func WithTransform(t mt.Transform) Option {
	return func(r *Renderer) { r.tf = t }
}

// NewRenderer returns a renderer drawing onto surface.
func NewRenderer(surface Surface, opts ...Option) *Renderer {
	r := &Renderer{
		surface: surface,
		sched:   TickScheduler{},
		tf:      mt.Identity(),
		speed:   DefaultSpeed,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddSegment enqueues a segment and starts the animation loop if it
// is idle.
func (r *Renderer) AddSegment(s Segment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, s)
	if !r.running {
		r.running = true
		r.sched.RequestStep(r.step)
	}
}

// HasPending reports whether any animation work remains.
func (r *Renderer) HasPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil || len(r.queue) > 0
}

// Flush completes the current segment and drains the queue instantly.
// The final artwork is identical to letting the animation run out.
func (r *Renderer) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		r.progress = 1
		r.draw(r.current, 1)
		r.finish(r.current)
	}
	for _, seg := range r.queue {
		if mv, ok := seg.(MoveTo); ok {
			r.pen = mv.To
			continue
		}
		r.anchor = r.pen
		r.draw(seg, 1)
		r.finish(seg)
	}
	r.queue = nil
}

// Clear stops the animation, empties the queue and wipes the surface.
// Safe to call at any point, including mid-animation.
func (r *Renderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = nil
	r.current = nil
	r.progress = 0
	r.anchor = Point{}
	r.pen = Point{}
	r.surface.ClearPath()
	r.surface.Clear()
}

// step is one animation frame.
func (r *Renderer) step() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil && !r.dequeue() {
		r.running = false
		return
	}
	if r.current != nil {
		r.advance()
	}

	if r.current != nil || len(r.queue) > 0 {
		r.sched.RequestStep(r.step)
	} else {
		r.running = false
	}
}

// dequeue begins the next segment. MoveTo has no extension in time
// and resolves within the frame it is dequeued.
func (r *Renderer) dequeue() bool {
	for len(r.queue) > 0 {
		seg := r.queue[0]
		r.queue = r.queue[1:]
		if mv, ok := seg.(MoveTo); ok {
			r.pen = mv.To
			continue
		}
		r.current = seg
		r.anchor = r.pen
		r.progress = 0
		r.length = r.segLength(seg)
		return true
	}
	return false
}

// advance moves the current segment forward one frame and redraws its
// completed portion.
func (r *Renderer) advance() {
	if r.length > 0 {
		r.progress += r.speed / r.length
	} else {
		r.progress += zeroLengthStep
	}
	if r.progress > 1 {
		r.progress = 1
	}
	r.draw(r.current, r.progress)
	if r.progress >= 1 {
		r.finish(r.current)
	}
}

// finish snaps the pen to the segment's true endpoint and releases it.
func (r *Renderer) finish(seg Segment) {
	r.pen = seg.End()
	r.current = nil
	r.progress = 0
}

// draw strokes the portion of seg from the anchor up to parameter t.
// At t == 1 the exact original control points are used, so the final
// stroke of a segment carries no interpolation drift.
func (r *Renderer) draw(seg Segment, t float64) {
	style := seg.Style()
	r.surface.SetHexColor(style.Stroke)
	r.surface.SetLineWidth(style.Width)
	r.surface.ClearPath()

	ax, ay := r.tf.Apply(r.anchor.X, r.anchor.Y)
	r.surface.MoveTo(ax, ay)

	switch s := seg.(type) {
	case LineTo:
		r.partialLine(s.To, t)
	case ClosePath:
		r.partialLine(s.To, t)
	case QuadTo:
		q := QuadBez{P0: r.anchor, P1: s.Ctrl, P2: s.To}
		if t < 1 {
			q = q.Subdivide(t)
		}
		cx, cy := r.tf.Apply(q.P1.X, q.P1.Y)
		x, y := r.tf.Apply(q.P2.X, q.P2.Y)
		r.surface.QuadraticTo(cx, cy, x, y)
	case CubicTo:
		c := CubicBez{P0: r.anchor, P1: s.Ctrl1, P2: s.Ctrl2, P3: s.To}
		if t < 1 {
			c = c.Subdivide(t)
		}
		c1x, c1y := r.tf.Apply(c.P1.X, c.P1.Y)
		c2x, c2y := r.tf.Apply(c.P2.X, c.P2.Y)
		x, y := r.tf.Apply(c.P3.X, c.P3.Y)
		r.surface.CubicTo(c1x, c1y, c2x, c2y, x, y)
	case MoveTo:
		// resolved in dequeue, never animated
		return
	}
	r.surface.Stroke()
}

func (r *Renderer) partialLine(to Point, t float64) {
	if t < 1 {
		to = r.anchor.Lerp(to, t)
	}
	x, y := r.tf.Apply(to.X, to.Y)
	r.surface.LineTo(x, y)
}

// segLength measures a segment with the geometry kernel. MoveTo is
// zero by definition.
func (r *Renderer) segLength(seg Segment) float64 {
	switch s := seg.(type) {
	case LineTo:
		return r.pen.Distance(s.To)
	case ClosePath:
		return r.pen.Distance(s.To)
	case QuadTo:
		return QuadBez{P0: r.pen, P1: s.Ctrl, P2: s.To}.Arclen(arclenSteps)
	case CubicTo:
		return CubicBez{P0: r.pen, P1: s.Ctrl1, P2: s.Ctrl2, P3: s.To}.Arclen(arclenSteps)
	default:
		return 0
	}
}

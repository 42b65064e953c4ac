package drawer

import (
	"fmt"
	"testing"

	mt "github.com/rustyoz/Mtransform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubScheduler collects frame requests so tests can single-step.
type stubScheduler struct {
	pending []func()
}

func (s *stubScheduler) RequestStep(fn func()) {
	s.pending = append(s.pending, fn)
}

func (s *stubScheduler) stepOnce() bool {
	if len(s.pending) == 0 {
		return false
	}
	fn := s.pending[0]
	s.pending = s.pending[1:]
	fn()
	return true
}

func (s *stubScheduler) run() int {
	var frames int
	for s.stepOnce() {
		frames++
	}
	return frames
}

// fakeSurface records every stroked path as a formatted string.
type fakeSurface struct {
	path    string
	strokes []string
	cleared int
	color   string
	width   float64
}

func (f *fakeSurface) MoveTo(x, y float64) { f.path += fmt.Sprintf("M%v,%v", x, y) }
func (f *fakeSurface) LineTo(x, y float64) { f.path += fmt.Sprintf(" L%v,%v", x, y) }
func (f *fakeSurface) QuadraticTo(cx, cy, x, y float64) {
	f.path += fmt.Sprintf(" Q%v,%v %v,%v", cx, cy, x, y)
}
func (f *fakeSurface) CubicTo(c1x, c1y, c2x, c2y, x, y float64) {
	f.path += fmt.Sprintf(" C%v,%v %v,%v %v,%v", c1x, c1y, c2x, c2y, x, y)
}
func (f *fakeSurface) ClearPath() { f.path = "" }
func (f *fakeSurface) Stroke() error {
	f.strokes = append(f.strokes, f.path)
	return nil
}
func (f *fakeSurface) Clear() {
	f.strokes = nil
	f.cleared++
}
func (f *fakeSurface) SetLineWidth(w float64) { f.width = w }
func (f *fakeSurface) SetHexColor(hex string) { f.color = hex }

// fullStrokes filters recorded strokes down to the ones matching the
// exact final geometry of the given segments.
func fullStrokes(recorded []string, want []string) []string {
	set := make(map[string]bool, len(want))
	for _, w := range want {
		set[w] = true
	}
	var out []string
	for _, s := range recorded {
		if set[s] {
			out = append(out, s)
		}
	}
	return out
}

func testSegments() ([]Segment, []string) {
	segs := []Segment{
		MoveTo{To: Pt(10, 10), Paint: def},
		LineTo{To: Pt(30, 10), Paint: def},
		QuadTo{Ctrl: Pt(40, 30), To: Pt(50, 10), Paint: def},
		CubicTo{Ctrl1: Pt(55, 0), Ctrl2: Pt(65, 0), To: Pt(70, 10), Paint: def},
		ClosePath{To: Pt(10, 10), Paint: def},
	}
	finals := []string{
		"M10,10 L30,10",
		"M30,10 Q40,30 50,10",
		"M50,10 C55,0 65,0 70,10",
		"M70,10 L10,10",
	}
	return segs, finals
}

func TestMoveResolvedInstantly(t *testing.T) {
	sched := &stubScheduler{}
	fs := &fakeSurface{}
	r := NewRenderer(fs, WithScheduler(sched))

	r.AddSegment(MoveTo{To: Pt(42, 7), Paint: def})
	require.True(t, r.HasPending())

	sched.run()
	assert.False(t, r.HasPending())
	assert.Equal(t, Pt(42, 7), r.pen)
	assert.Empty(t, fs.strokes)
}

func TestAnimationCompleteness(t *testing.T) {
	segs, finals := testSegments()
	sched := &stubScheduler{}
	fs := &fakeSurface{}
	r := NewRenderer(fs, WithScheduler(sched), WithSpeed(7))

	for _, s := range segs {
		r.AddSegment(s)
	}
	sched.run()

	require.False(t, r.HasPending())
	assert.Equal(t, Pt(10, 10), r.pen)

	// every segment's true endpoint geometry stroked exactly once, in order
	assert.Equal(t, finals, fullStrokes(fs.strokes, finals))
}

func TestConstantSpeedFrameCount(t *testing.T) {
	sched := &stubScheduler{}
	fs := &fakeSurface{}
	r := NewRenderer(fs, WithScheduler(sched), WithSpeed(4))

	r.AddSegment(MoveTo{To: Pt(0, 0), Paint: def})
	r.AddSegment(LineTo{To: Pt(10, 0), Paint: def})
	sched.run()

	// length 10 at 4 units per frame: progress 0.4, 0.8, 1.0
	assert.Len(t, fs.strokes, 3)
	assert.Equal(t, "M0,0 L10,0", fs.strokes[2])
}

func TestZeroLengthSegmentTerminates(t *testing.T) {
	sched := &stubScheduler{}
	fs := &fakeSurface{}
	r := NewRenderer(fs, WithScheduler(sched))

	r.AddSegment(MoveTo{To: Pt(5, 5), Paint: def})
	r.AddSegment(LineTo{To: Pt(5, 5), Paint: def})

	frames := sched.run()
	assert.False(t, r.HasPending())
	assert.Less(t, frames, 10)
	assert.Equal(t, Pt(5, 5), r.pen)
}

func TestFlushEquivalence(t *testing.T) {
	segs, finals := testSegments()

	for _, framesBefore := range []int{0, 1, 3, 6} {
		sched := &stubScheduler{}
		fs := &fakeSurface{}
		r := NewRenderer(fs, WithScheduler(sched), WithSpeed(5))
		for _, s := range segs {
			r.AddSegment(s)
		}
		for i := 0; i < framesBefore; i++ {
			sched.stepOnce()
		}

		r.Flush()

		require.False(t, r.HasPending(), "flush after %d frames", framesBefore)
		assert.Equal(t, Pt(10, 10), r.pen)
		assert.Equal(t, finals, fullStrokes(fs.strokes, finals), "flush after %d frames", framesBefore)
	}
}

func TestClearStopsAndWipes(t *testing.T) {
	segs, _ := testSegments()
	sched := &stubScheduler{}
	fs := &fakeSurface{}
	r := NewRenderer(fs, WithScheduler(sched), WithSpeed(3))

	for _, s := range segs {
		r.AddSegment(s)
	}
	sched.stepOnce()
	sched.stepOnce()
	require.True(t, r.HasPending())

	r.Clear()

	assert.False(t, r.HasPending())
	assert.Equal(t, 1, fs.cleared)
	assert.Empty(t, fs.strokes)
	assert.Equal(t, Pt(0, 0), r.pen)

	// the loop winds down on its own after a mid-animation clear
	sched.run()
	assert.False(t, r.HasPending())
}

func TestStyleAppliedPerSegment(t *testing.T) {
	sched := &stubScheduler{}
	fs := &fakeSurface{}
	r := NewRenderer(fs, WithScheduler(sched))

	style := Style{Stroke: "#f00", Width: 2}
	r.AddSegment(MoveTo{To: Pt(0, 0), Paint: style})
	r.AddSegment(LineTo{To: Pt(1, 0), Paint: style})
	sched.run()

	assert.Equal(t, "#f00", fs.color)
	assert.Equal(t, 2.0, fs.width)
}

func TestTransformScalesSurfaceCoordinates(t *testing.T) {
	tf := mt.NewTransform()
	tf.Scale(2, 2)

	sched := &stubScheduler{}
	fs := &fakeSurface{}
	r := NewRenderer(fs, WithScheduler(sched), WithSpeed(100), WithTransform(*tf))

	r.AddSegment(MoveTo{To: Pt(3, 4), Paint: def})
	r.AddSegment(LineTo{To: Pt(5, 6), Paint: def})
	sched.run()

	require.NotEmpty(t, fs.strokes)
	assert.Equal(t, "M6,8 L10,12", fs.strokes[len(fs.strokes)-1])
	// pen tracks world coordinates, not surface coordinates
	assert.Equal(t, Pt(5, 6), r.pen)
}

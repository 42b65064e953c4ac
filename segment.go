// Package drawer turns a streaming, possibly malformed SVG path
// document into typed drawing segments and animates them onto a
// drawing surface so that strokes appear hand drawn.
package drawer

// Style is the stroke state captured when a segment is emitted.
// It applies to the whole drawable element the segment came from.
type Style struct {
	Stroke string  // hex color, e.g. "#f00"
	Width  float64 // stroke width in world units
}

// DefaultStyle is the pen used before any stroke attributes arrive.
var DefaultStyle = Style{Stroke: "#000", Width: 3}

// Segment is one drawing instruction with absolute coordinates.
// The concrete types are MoveTo, LineTo, QuadTo, CubicTo and
// ClosePath; a type switch over Segment covers all of them.
type Segment interface {
	// End returns the pen position after the segment is applied.
	End() Point
	// Style returns the stroke state the segment was emitted with.
	Style() Style

	isSegment()
}

// MoveTo lifts the pen and starts a new sub-path at To.
type MoveTo struct {
	To    Point
	Paint Style
}

// LineTo draws a straight line from the current pen position to To.
type LineTo struct {
	To    Point
	Paint Style
}

// QuadTo draws a quadratic Bezier curve with control point Ctrl.
type QuadTo struct {
	Ctrl  Point
	To    Point
	Paint Style
}

// CubicTo draws a cubic Bezier curve with control points Ctrl1, Ctrl2.
type CubicTo struct {
	Ctrl1 Point
	Ctrl2 Point
	To    Point
	Paint Style
}

// ClosePath draws a straight line back to the start of the active
// sub-path. To is that start point.
type ClosePath struct {
	To    Point
	Paint Style
}

func (s MoveTo) End() Point    { return s.To }
func (s LineTo) End() Point    { return s.To }
func (s QuadTo) End() Point    { return s.To }
func (s CubicTo) End() Point   { return s.To }
func (s ClosePath) End() Point { return s.To }

func (s MoveTo) Style() Style    { return s.Paint }
func (s LineTo) Style() Style    { return s.Paint }
func (s QuadTo) Style() Style    { return s.Paint }
func (s CubicTo) Style() Style   { return s.Paint }
func (s ClosePath) Style() Style { return s.Paint }

func (MoveTo) isSegment()    {}
func (LineTo) isSegment()    {}
func (QuadTo) isSegment()    {}
func (CubicTo) isSegment()   {}
func (ClosePath) isSegment() {}

// WarningKind classifies a recoverable parsing anomaly.
type WarningKind string

// Warning kinds reported by the parser. None of them stop parsing.
const (
	WarnNoPathData         WarningKind = "no-path-data"
	WarnUnsupportedCommand WarningKind = "unsupported-command"
	WarnMalformedAttribute WarningKind = "malformed-attribute"
	WarnBufferOverflow     WarningKind = "buffer-overflow"
)

// Warning describes a recoverable anomaly in the incoming markup.
type Warning struct {
	Kind       WarningKind
	Detail     string // offending command letter, attribute, or note
	BufferTail string // short tail of the parse buffer for diagnostics
}

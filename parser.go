package drawer

import (
	"regexp"
	"strconv"
	"strings"

	gl "github.com/rustyoz/genericlexer"
)

const (
	// startMarker opens the streamed document. Everything before it is
	// preamble (chatter, markdown fences) and is discarded.
	startMarker = "<svg"

	// preambleWindow is how much trailing preamble is retained so a
	// start marker split across fragment boundaries is still found.
	preambleWindow = 100

	// maxBufferLen triggers a buffer-overflow warning when the stream
	// keeps growing without a single complete element.
	maxBufferLen = 64 << 10

	warnTailLen = 40
)

var (
	pathElementRe = regexp.MustCompile(`<path\b[^>]*?(?:/>|>\s*</path>)`)
	dAttrRe       = regexp.MustCompile(`\bd\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	strokeAttrRe  = regexp.MustCompile(`\bstroke\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	widthAttrRe   = regexp.MustCompile(`\bstroke-width\s*=\s*(?:"([^"]*)"|'([^']*)')`)
)

// Parser consumes arbitrary text fragments of a streamed SVG document
// and emits typed drawing segments through an injected callback. It
// never blocks and never needs the full document: fragments may split
// tokens, attributes or elements anywhere.
type Parser struct {
	onSegment func(Segment)
	onWarning func(Warning)

	buf        string
	started    bool
	overflowed bool

	pen   Point
	start Point // active sub-path start, target of close-path
	style Style
}

// NewParser returns a parser that reports segments and warnings
// through the given callbacks. onWarning may be nil.
func NewParser(onSegment func(Segment), onWarning func(Warning)) *Parser {
	return &Parser{
		onSegment: onSegment,
		onWarning: onWarning,
		style:     DefaultStyle,
	}
}

// Reset clears all state back to initial values. The session owner
// must pair this with Renderer.Clear so a new request never resumes
// into a stale pen position.
func (p *Parser) Reset() {
	p.buf = ""
	p.started = false
	p.overflowed = false
	p.pen = Point{}
	p.start = Point{}
	p.style = DefaultStyle
}

// Feed appends a fragment to the parse buffer and synchronously emits
// every segment that can be recognized so far. Malformed input never
// makes Feed fail; anomalies go to the warning callback.
func (p *Parser) Feed(fragment string) {
	p.buf += fragment

	if !p.started {
		i := strings.Index(p.buf, startMarker)
		if i < 0 {
			if len(p.buf) > preambleWindow {
				p.buf = p.buf[len(p.buf)-preambleWindow:]
			}
			return
		}
		p.buf = p.buf[i:]
		p.started = true
	}

	p.scan()
}

// scan emits every complete drawable element in the buffer and retains
// only the unconsumed tail (at most one trailing incomplete element).
func (p *Parser) scan() {
	locs := pathElementRe.FindAllStringIndex(p.buf, -1)
	if len(locs) == 0 {
		if len(p.buf) > maxBufferLen && !p.overflowed {
			p.overflowed = true
			p.warn(WarnBufferOverflow, "no complete element in "+strconv.Itoa(len(p.buf))+" bytes")
		}
		return
	}
	for _, loc := range locs {
		p.element(p.buf[loc[0]:loc[1]])
	}
	p.buf = p.buf[locs[len(locs)-1][1]:]
	p.overflowed = false
}

// element handles one complete <path .../> element.
func (p *Parser) element(el string) {
	if m := strokeAttrRe.FindStringSubmatch(el); m != nil {
		p.style.Stroke = attrValue(m)
	}
	if m := widthAttrRe.FindStringSubmatch(el); m != nil {
		raw := strings.TrimSpace(attrValue(m))
		if w, err := strconv.ParseFloat(raw, 64); err == nil {
			p.style.Width = w
		} else {
			p.warn(WarnMalformedAttribute, "stroke-width="+raw)
		}
	}

	m := dAttrRe.FindStringSubmatch(el)
	if m == nil {
		p.warn(WarnNoPathData, "path element without d attribute")
		return
	}
	p.walk(attrValue(m))
}

func attrValue(m []string) string {
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

// walk tokenizes a path description and emits its segments. Bare
// numeric tokens repeat the previous command; a moveto repeats as an
// implicit lineto.
func (p *Parser) walk(d string) {
	l, _ := gl.Lex("d", d)
	if l == nil {
		return
	}

	var cmd string
	for {
		l.ConsumeWhiteSpace()
		it := l.PeekItem()
		switch it.Type {
		case gl.ItemEOS, gl.ItemError:
			return
		case gl.ItemLetter:
			cmd = l.NextItem().Value
			if !p.command(l, cmd, true) {
				cmd = ""
			}
			switch cmd {
			case "M":
				cmd = "L"
			case "m":
				cmd = "l"
			}
		case gl.ItemNumber:
			if cmd == "" || cmd == "Z" || cmd == "z" {
				l.NextItem()
				continue
			}
			p.command(l, cmd, false)
		default:
			l.NextItem()
		}
	}
}

// command consumes one repetition of cmd. It reports whether numeric
// tokens after the command may repeat it.
func (p *Parser) command(l *gl.Lexer, cmd string, first bool) bool {
	rel := cmd >= "a" && cmd <= "z"

	switch cmd {
	case "M", "m":
		to, ok := p.pair(l, rel)
		if !ok {
			return true
		}
		p.pen = to
		p.start = to
		p.emit(MoveTo{To: to, Paint: p.style})

	case "L", "l":
		to, ok := p.pair(l, rel)
		if !ok {
			return true
		}
		p.pen = to
		p.emit(LineTo{To: to, Paint: p.style})

	case "H", "h":
		v, ok := p.number(l)
		if !ok {
			return true
		}
		if rel {
			p.pen.X += v
		} else {
			p.pen.X = v
		}
		p.emit(LineTo{To: p.pen, Paint: p.style})

	case "V", "v":
		v, ok := p.number(l)
		if !ok {
			return true
		}
		if rel {
			p.pen.Y += v
		} else {
			p.pen.Y = v
		}
		p.emit(LineTo{To: p.pen, Paint: p.style})

	case "C", "c":
		// Relative offsets all resolve against the pen position at
		// the start of the repetition, not a running total.
		c1, ok := p.pair(l, rel)
		if !ok {
			return true
		}
		c2, ok := p.pair(l, rel)
		if !ok {
			return true
		}
		to, ok := p.pair(l, rel)
		if !ok {
			return true
		}
		p.pen = to
		p.emit(CubicTo{Ctrl1: c1, Ctrl2: c2, To: to, Paint: p.style})

	case "Q", "q":
		c1, ok := p.pair(l, rel)
		if !ok {
			return true
		}
		to, ok := p.pair(l, rel)
		if !ok {
			return true
		}
		p.pen = to
		p.emit(QuadTo{Ctrl: c1, To: to, Paint: p.style})

	case "Z", "z":
		p.pen = p.start
		p.emit(ClosePath{To: p.start, Paint: p.style})

	case "A", "a":
		if first {
			p.warn(WarnUnsupportedCommand, cmd)
		}
		p.skip(l, 7, rel)

	case "S", "s":
		if first {
			p.warn(WarnUnsupportedCommand, cmd)
		}
		p.skip(l, 4, rel)

	case "T", "t":
		if first {
			p.warn(WarnUnsupportedCommand, cmd)
		}
		p.skip(l, 2, rel)

	default:
		// Unrecognized letter: no parameter count to skip, so the
		// stream realigns at the next recognized command.
		if first {
			p.warn(WarnUnsupportedCommand, cmd)
		}
		return false
	}
	return true
}

// skip discards exactly n parameters of an unsupported command so the
// token stream stays aligned, then advances the pen to the discarded
// endpoint so later relative commands stay anchored.
func (p *Parser) skip(l *gl.Lexer, n int, rel bool) {
	vals := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v, ok := p.number(l)
		if !ok {
			return
		}
		vals = append(vals, v)
	}
	end := Point{X: vals[n-2], Y: vals[n-1]}
	if rel {
		end = p.pen.Add(end)
	}
	p.pen = end
}

// pair reads a coordinate pair, resolving relative offsets against the
// current pen position.
func (p *Parser) pair(l *gl.Lexer, rel bool) (Point, bool) {
	x, ok := p.number(l)
	if !ok {
		return Point{}, false
	}
	y, ok := p.number(l)
	if !ok {
		y = 0
	}
	pt := Point{X: x, Y: y}
	if rel {
		pt = p.pen.Add(pt)
	}
	return pt, true
}

// number reads the next numeric token, skipping separators. Tokens
// that fail to parse resolve to 0 rather than halting the element.
func (p *Parser) number(l *gl.Lexer) (float64, bool) {
	l.ConsumeWhiteSpace()
	l.ConsumeComma()
	l.ConsumeWhiteSpace()
	if l.PeekItem().Type != gl.ItemNumber {
		return 0, false
	}
	raw := l.NextItem().Value

	// Exponent notation can arrive as three items: mantissa, the
	// letter e, exponent. Splice them back into one number.
	if pk := l.PeekItem(); pk.Type == gl.ItemLetter && (pk.Value == "e" || pk.Value == "E") {
		l.NextItem()
		if l.PeekItem().Type == gl.ItemNumber {
			raw += "e" + l.NextItem().Value
		}
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, true
	}
	return f, true
}

func (p *Parser) emit(s Segment) {
	if p.onSegment != nil {
		p.onSegment(s)
	}
}

func (p *Parser) warn(kind WarningKind, detail string) {
	if p.onWarning == nil {
		return
	}
	tail := p.buf
	if len(tail) > warnTailLen {
		tail = tail[len(tail)-warnTailLen:]
	}
	p.onWarning(Warning{Kind: kind, Detail: detail, BufferTail: tail})
}

// Package session owns the per-request lifecycle around a parser and
// renderer pair: feeding fragments, enforcing the received-bytes cap,
// and making sure terminal signals reset both halves together.
package session

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	drawer "github.com/marcus/good-drawer"
)

// ErrLimitExceeded is returned by Feed once a session has received
// more bytes than its cap. The caller should terminate the session.
var ErrLimitExceeded = errors.New("session: byte limit exceeded")

// ErrTerminated is returned by Feed after a terminal signal.
var ErrTerminated = errors.New("session: already terminated")

// DefaultMaxBytes caps how much text a single session may receive.
// The parser's own overflow guard bounds the buffer; this bounds the
// whole stream so a runaway generator cannot grow the queue forever.
const DefaultMaxBytes = 1 << 20

// Config tunes a session.
type Config struct {
	MaxBytes int64
	Logger   zerolog.Logger
}

// Session pairs one Parser with one Renderer for a single request id.
// It is discarded, not reused, when the next request begins.
type Session struct {
	ID string

	mu         sync.Mutex
	parser     *drawer.Parser
	renderer   *drawer.Renderer
	log        zerolog.Logger
	received   int64
	maxBytes   int64
	warnings   int
	terminated bool
}

// New creates a session feeding the given renderer. Parser warnings
// are counted and logged; they never stop the session.
func New(id string, renderer *drawer.Renderer, cfg Config) *Session {
	s := &Session{
		ID:       id,
		renderer: renderer,
		log:      cfg.Logger.With().Str("req", id).Logger(),
		maxBytes: cfg.MaxBytes,
	}
	if s.maxBytes <= 0 {
		s.maxBytes = DefaultMaxBytes
	}
	s.parser = drawer.NewParser(renderer.AddSegment, s.onWarning)
	return s
}

func (s *Session) onWarning(w drawer.Warning) {
	s.warnings++
	s.log.Warn().
		Str("kind", string(w.Kind)).
		Str("detail", w.Detail).
		Str("tail", w.BufferTail).
		Msg("parser warning")
}

// Feed forwards one text fragment to the parser.
func (s *Session) Feed(fragment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return ErrTerminated
	}
	s.received += int64(len(fragment))
	if s.received > s.maxBytes {
		s.terminate()
		return ErrLimitExceeded
	}
	s.parser.Feed(fragment)
	return nil
}

// Complete handles the generator's completed signal: the remaining
// animation is flushed so the final artwork is fully visible.
func (s *Session) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return
	}
	s.terminated = true
	s.renderer.Flush()
	s.log.Info().
		Int64("bytes", s.received).
		Int("warnings", s.warnings).
		Msg("session complete")
}

// Cancel handles the cancelled signal: parser and renderer are reset
// together so nothing bleeds into the next session.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return
	}
	s.terminate()
	s.log.Info().Msg("session cancelled")
}

// Fail handles the errored signal. Like Cancel, it wipes the surface;
// surfacing the error text is the chrome layer's concern.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return
	}
	s.terminate()
	s.log.Error().Err(err).Msg("session failed")
}

func (s *Session) terminate() {
	s.terminated = true
	s.parser.Reset()
	s.renderer.Clear()
}

// HasPending reports whether the renderer still has animation work.
// The chrome layer uses this to keep a busy indicator visible.
func (s *Session) HasPending() bool {
	return s.renderer.HasPending()
}

// Received returns how many bytes the session has accepted.
func (s *Session) Received() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received
}

// Warnings returns how many parser warnings the session has seen.
func (s *Session) Warnings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warnings
}

// Manager tracks the active session. Beginning a new one always
// cancels the previous one first, so stale animation from an old
// request can never leak onto a new surface.
type Manager struct {
	mu      sync.Mutex
	current *Session
}

// Begin installs s as the active session, cancelling any predecessor.
func (m *Manager) Begin(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Cancel()
	}
	m.current = s
}

// Cancel cancels the active session, if any.
func (m *Manager) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Cancel()
	}
}

// Current returns the active session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

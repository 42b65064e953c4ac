// Package server exposes the drawing pipeline over a websocket: it
// relays prompt requests to the generation engine, streams the raw
// text fragments back to the client, and renders the artwork
// server-side for the PNG artifact.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gogpu/gg"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	mt "github.com/rustyoz/Mtransform"

	drawer "github.com/marcus/good-drawer"
	"github.com/marcus/good-drawer/llm"
	"github.com/marcus/good-drawer/session"
)

// Default timeouts are generous because local models can be slow to
// warm up.
const (
	defaultStartDeadline = 60 * time.Second
	defaultIdleGap       = 60 * time.Second
	defaultHardLimit     = 300 * time.Second
	maxPromptLen         = 512
)

// viewBoxSize is the world coordinate space the generation prompt
// asks for; the renderer scales it onto the canvas.
const viewBoxSize = 400.0

const systemPrompt = `You are an SVG artist. Output ONLY SVG code.
- Begin with <svg> and end with </svg>
- Use viewBox="0 0 400 400"
- No markdown, no narration
- Use ONLY <path> elements - NO circles, rectangles, polygons, or other shapes
- Draw like a pen sketch: continuous strokes with M, L, C commands
- stroke="#000" stroke-width="3" fill="none"
- Do NOT over-simplify - add detail, texture, and expressiveness
- Draw the actual form, not geometric approximations`

var controlChars = regexp.MustCompile(`[\x00-\x1f\x7f-\x9f]`)

// sanitizePrompt trims and removes control characters.
func sanitizePrompt(prompt string) string {
	return controlChars.ReplaceAllString(strings.TrimSpace(prompt), "")
}

type clientMessage struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	Prompt string `json:"prompt,omitempty"`
}

type serverMessage struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Data    string `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Config configures a Server.
type Config struct {
	LLM        llm.Client
	OutputDir  string  // PNG artifacts, empty disables saving
	CanvasSize int     // square canvas edge in pixels
	Speed      float64 // animation speed, world units per frame
	Logger     zerolog.Logger

	// Per-request timeouts; zero values take the defaults.
	StartDeadline time.Duration // time allowed before the first chunk
	IdleGap       time.Duration // longest allowed gap between chunks
	HardLimit     time.Duration // total request budget
}

// Server handles /ws/draw websocket sessions.
type Server struct {
	cfg      Config
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// New returns a server. CanvasSize defaults to 800.
func New(cfg Config) *Server {
	if cfg.CanvasSize <= 0 {
		cfg.CanvasSize = 800
	}
	if cfg.Speed <= 0 {
		cfg.Speed = drawer.DefaultSpeed
	}
	if cfg.StartDeadline <= 0 {
		cfg.StartDeadline = defaultStartDeadline
	}
	if cfg.IdleGap <= 0 {
		cfg.IdleGap = defaultIdleGap
	}
	if cfg.HardLimit <= 0 {
		cfg.HardLimit = defaultHardLimit
	}
	return &Server{
		cfg: cfg,
		log: cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the http handler serving the websocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/draw", s.serveWS)
	return mux
}

// wsConn serializes writes; gorilla allows only one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) send(msg serverMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(msg)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	s.log.Info().Str("remote", conn.RemoteAddr().String()).Msg("ws connect")

	ws := &wsConn{conn: conn}
	var (
		mgr    session.Manager
		cancel context.CancelFunc
		done   chan struct{}
	)
	stop := func() {
		if cancel != nil {
			cancel()
			<-done
			cancel = nil
		}
	}
	defer stop()
	defer mgr.Cancel()

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			s.log.Info().Msg("ws disconnect")
			return
		}

		switch msg.Type {
		case "ping":
			ws.send(serverMessage{Type: "pong"})

		case "cancel":
			stop()

		case "draw":
			id := msg.ID
			if id == "" {
				id = uuid.NewString()
			}
			prompt := sanitizePrompt(msg.Prompt)
			if prompt == "" {
				ws.send(serverMessage{Type: "error", ID: id, Message: "Prompt cannot be empty."})
				continue
			}
			if len(prompt) > maxPromptLen {
				ws.send(serverMessage{Type: "error", ID: id, Message: "Prompt too long (max 512 chars)."})
				continue
			}

			stop()
			ctx, c := context.WithCancel(context.Background())
			cancel = c
			done = make(chan struct{})
			go func() {
				defer close(done)
				// Release the engine stream on every exit path,
				// not only on an explicit cancel.
				defer c()
				s.handleDraw(ctx, ws, &mgr, id, prompt)
			}()
		}
	}
}

func (s *Server) newCanvas() (*gg.Context, *drawer.Renderer) {
	dc := gg.NewContext(s.cfg.CanvasSize, s.cfg.CanvasSize)
	tf := mt.NewTransform()
	scale := float64(s.cfg.CanvasSize) / viewBoxSize
	tf.Scale(scale, scale)
	renderer := drawer.NewRenderer(dc,
		drawer.WithTransform(*tf),
		drawer.WithSpeed(s.cfg.Speed),
	)
	return dc, renderer
}

func drawMessages(prompt string) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: "Draw: " + prompt},
	}
}

// handleDraw runs one draw request: streams fragments from the engine
// into the session's parser and out to the client, then flushes and
// saves the artwork.
func (s *Server) handleDraw(ctx context.Context, ws *wsConn, mgr *session.Manager, id, prompt string) {
	start := time.Now()
	log := s.log.With().Str("req", shortID(id)).Logger()

	dc, renderer := s.newCanvas()
	sess := session.New(id, renderer, session.Config{Logger: log})
	mgr.Begin(sess)

	ws.send(serverMessage{Type: "start", ID: id})

	chunks, errs := s.cfg.LLM.StreamCompletion(ctx, drawMessages(prompt))

	hard := time.NewTimer(s.cfg.HardLimit)
	defer hard.Stop()
	idle := time.NewTimer(s.cfg.StartDeadline)
	defer idle.Stop()

	var firstChunkAt time.Duration
	outcome := "done"

	for {
		select {
		case <-ctx.Done():
			sess.Cancel()
			ws.send(serverMessage{Type: "cancelled", ID: id})
			outcome = "cancelled"

		case <-hard.C:
			sess.Fail(context.DeadlineExceeded)
			ws.send(serverMessage{Type: "error", ID: id, Message: "Drawing took too long."})
			outcome = "timeout_hard"

		case <-idle.C:
			sess.Fail(context.DeadlineExceeded)
			if firstChunkAt == 0 {
				ws.send(serverMessage{Type: "error", ID: id, Message: "Drawing took too long to start. Try again."})
				outcome = "timeout_start"
			} else {
				ws.send(serverMessage{Type: "error", ID: id, Message: "Drawing stalled. Try a simpler prompt."})
				outcome = "timeout_idle"
			}

		case chunk, ok := <-chunks:
			if !ok {
				err := <-errs
				switch {
				case err == nil:
					sess.Complete()
					if path, err := s.saveArtifact(dc, id); err != nil {
						log.Error().Err(err).Msg("save artifact")
					} else if path != "" {
						log.Info().Str("path", path).Msg("artifact saved")
					}
					ws.send(serverMessage{Type: "done", ID: id})
				case errors.Is(err, context.Canceled):
					// A user cancel can surface through the stream's
					// error channel before the ctx.Done case fires.
					sess.Cancel()
					ws.send(serverMessage{Type: "cancelled", ID: id})
					outcome = "cancelled"
				default:
					sess.Fail(err)
					ws.send(serverMessage{Type: "error", ID: id, Message: "Cannot connect to drawing engine. Is Ollama running?"})
					outcome = "engine_error"
					log.Error().Err(err).Msg("stream failed")
				}
				break
			}
			if firstChunkAt == 0 {
				firstChunkAt = time.Since(start)
			}
			if err := sess.Feed(chunk); err != nil {
				ws.send(serverMessage{Type: "error", ID: id, Message: "Drawing too large."})
				outcome = "too_large"
				log.Warn().Err(err).Msg("session terminated")
				break
			}
			ws.send(serverMessage{Type: "chunk", ID: id, Data: chunk})

			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(s.cfg.IdleGap)
			continue
		}

		log.Info().
			Dur("first_chunk", firstChunkAt).
			Dur("total", time.Since(start)).
			Str("outcome", outcome).
			Int("warnings", sess.Warnings()).
			Msg("draw finished")
		return
	}
}

// DrawOnce runs a single draw request without a websocket and returns
// the saved artifact path. Used by the one-shot CLI mode.
func (s *Server) DrawOnce(ctx context.Context, prompt string) (string, error) {
	prompt = sanitizePrompt(prompt)
	if prompt == "" {
		return "", errors.New("empty prompt")
	}
	if s.cfg.OutputDir == "" {
		return "", errors.New("no output directory configured")
	}
	id := uuid.NewString()

	dc, renderer := s.newCanvas()
	sess := session.New(id, renderer, session.Config{Logger: s.log})

	chunks, errs := s.cfg.LLM.StreamCompletion(ctx, drawMessages(prompt))
	for chunk := range chunks {
		if err := sess.Feed(chunk); err != nil {
			return "", err
		}
	}
	if err := <-errs; err != nil {
		sess.Fail(err)
		return "", err
	}
	if err := ctx.Err(); err != nil {
		sess.Cancel()
		return "", err
	}
	sess.Complete()
	return s.saveArtifact(dc, id)
}

func (s *Server) saveArtifact(dc *gg.Context, id string) (string, error) {
	if s.cfg.OutputDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.cfg.OutputDir, shortID(id)+".png")
	if err := dc.SavePNG(path); err != nil {
		return "", err
	}
	return path, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Command good-drawer serves the websocket drawing endpoint, or with
// -d renders a single prompt to a PNG and exits.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	drawer "github.com/marcus/good-drawer"
	"github.com/marcus/good-drawer/llm"
	"github.com/marcus/good-drawer/server"
)

func main() {
	var (
		addr    = flag.String("addr", ":8000", "listen address")
		model   = flag.String("model", llm.DefaultModel, "model name")
		apiBase = flag.String("api-base", llm.DefaultBaseURL, "generation engine base URL")
		output  = flag.String("output", "output", "directory for PNG artifacts")
		size    = flag.Int("size", 800, "canvas edge in pixels")
		speed   = flag.Float64("speed", drawer.DefaultSpeed, "stroke speed, world units per frame")
		verbose = flag.Bool("v", false, "debug logging")
		oneShot = flag.String("d", "", "draw this prompt to a PNG and exit")
	)
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := llm.NewOllamaClient(*model, *apiBase, log)
	srv := server.New(server.Config{
		LLM:        client,
		OutputDir:  *output,
		CanvasSize: *size,
		Speed:      *speed,
		Logger:     log,
	})

	if *oneShot != "" {
		path, err := srv.DrawOnce(ctx, *oneShot)
		if err != nil {
			log.Fatal().Err(err).Msg("draw failed")
		}
		log.Info().Str("path", path).Msg("drawing saved")
		return
	}

	httpSrv := &http.Server{Addr: *addr, Handler: srv.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", *addr).Str("model", *model).Msg("listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
}

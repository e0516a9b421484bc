package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/beamchat/relay/internal/adapters/http"
	"github.com/beamchat/relay/internal/adapters/ws"
	"github.com/beamchat/relay/internal/app"
	"github.com/beamchat/relay/internal/auth"
	"github.com/beamchat/relay/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// One relay per process, wired explicitly: no singletons, no hidden
	// global state.
	reg := app.NewRegistry()
	rooms := app.NewMembership()
	rt := &app.Router{
		Registry:          reg,
		Rooms:             rooms,
		Policy:            app.ClassPolicy{},
		PresenceBroadcast: cfg.PresenceBroadcast,
	}
	rt.Typing = app.NewTypingCoordinator(rt, cfg.TypingIdle)

	verifier := auth.NewVerifier(cfg.TokenSecret)
	ctl := ws.NewController(rt, verifier, cfg)

	r := router.SetupRouter(ctx, cfg, rt, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("relay started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

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

	"github.com/avilov/codemesh/internal/adapters/httpapi"
	"github.com/avilov/codemesh/internal/config"
	"github.com/avilov/codemesh/internal/directory"
	"github.com/avilov/codemesh/internal/hub"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	var dir directory.Directory = directory.Nop{}
	if cfg.RedisAddr != "" {
		dir = directory.NewRedisDirectory(cfg.RedisAddr, cfg.DirectoryTTL)
		log.Info().Str("addr", cfg.RedisAddr).Msg("room directory enabled")
	}

	h := hub.New(hub.NewTopicManager(), hub.NewRegistry(), dir)

	r := httpapi.SetupRouter(ctx, cfg, h)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("channeld started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited gracefully")
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pennyauction/go/internal/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Setup("auction-runtime", cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := setupDatabase(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup database")
	}
	defer pool.Close()

	services, err := setupServices(ctx, cfg, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup services")
	}

	// With Redis configured only one runtime owns the in-memory countdowns
	if services.Lease != nil {
		if err := services.Lease.Acquire(ctx); err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("stopped while waiting for runtime lease")
				services.Close()
				return
			}
			log.Fatal().Err(err).Msg("failed to acquire runtime lease")
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := services.Lease.Keep(ctx); err != nil {
				log.Error().Err(err).Msg("runtime lease lost, shutting down")
				cancel()
			}
		}()
	}

	gatewayDone := make(chan struct{})
	go func() {
		defer close(gatewayDone)
		if err := services.Gateway.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	// Pick up countdowns that were running when the last process stopped
	resumed, err := services.Auction.RestartLiveAuctions(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resume live auctions")
	}
	log.Info().Int("auctions", resumed).Msg("live auctions resumed")

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		services.Auction.RunUpcomingSweep(ctx)
	}()

	server := setupServer(cfg, services, pool)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("auction runtime listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	<-sweepDone
	services.Close()

	select {
	case <-gatewayDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("gateway did not stop in time")
	}
	log.Info().Msg("graceful shutdown complete")
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pennyauction/go/internal/auction/outbox"
	"github.com/mcdev12/pennyauction/go/internal/dbconfig"
	"github.com/mcdev12/pennyauction/go/internal/logging"
)

type config struct {
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty        bool          `env:"LOG_PRETTY" envDefault:"true"`
	NATSURL          string        `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	HealthPort       int           `env:"OUTBOX_HEALTH_PORT" envDefault:"8082"`
	FallbackInterval time.Duration `env:"FALLBACK_INTERVAL" envDefault:"30s"`
	BatchSize        int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	StuckThreshold   time.Duration `env:"OUTBOX_STUCK_THRESHOLD" envDefault:"5m"`
}

func main() {
	// load .env
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatal().Err(err).Msg("parse config")
	}
	logging.Setup("auction-outbox", cfg.LogLevel, cfg.LogPretty)

	dbCfg, err := dbconfig.NewConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("parse database config")
	}
	dsn := dbCfg.DSN()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("ping database")
	}
	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Msg("connected to database")

	// JetStream publisher
	jsCfg := outbox.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATSURL
	publisher, err := outbox.NewJetStreamPublisher(jsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create JetStream publisher")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("close publisher")
		}
	}()

	clock := clockwork.NewRealClock()
	repo := outbox.NewSQLRepository(db)

	appCfg := outbox.DefaultConfig()
	appCfg.BatchSize = cfg.BatchSize
	app := outbox.NewApp(repo, publisher, appCfg, clock)

	ltCfg := outbox.DefaultListenerConfig()
	ltCfg.DatabaseURL = dsn
	ltCfg.FallbackInterval = cfg.FallbackInterval
	listener, err := outbox.NewListener(app, ltCfg, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("create outbox listener")
	}

	health := outbox.NewHealthChecker(app, repo, db, publisher.Conn(), listener, clock, cfg.StuckThreshold)
	mux := http.NewServeMux()
	mux.Handle("GET /health", health)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HealthPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	//GRACEFUL SHUTDOWN

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health endpoint listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server failed")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msg("starting outbox relay")
		errCh <- listener.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		// Start closes the LISTEN connection once the relay loop returns
		if err := <-errCh; err != nil {
			log.Error().Err(err).Msg("close listener")
		}
	case err := <-errCh:
		log.Error().Err(err).Msg("listener exited unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server shutdown failed")
	}
	log.Info().Msg("graceful shutdown complete")
}

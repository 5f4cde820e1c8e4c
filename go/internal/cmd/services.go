package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pennyauction/go/internal/auction"
	"github.com/mcdev12/pennyauction/go/internal/auction/gateway"
	"github.com/mcdev12/pennyauction/go/internal/platform/redis"
)

type Services struct {
	Auction        *auction.App
	AuctionService *auction.Service
	Gateway        *gateway.Service
	Redis          *redis.Client        // nil when REDIS_ADDR is unset
	Lease          *auction.RuntimeLease // nil when REDIS_ADDR is unset
}

func setupServices(ctx context.Context, cfg *Config, pool *pgxpool.Pool) (*Services, error) {
	// Wire up dependency injection chain
	// Database layer → Repository layer → App layer → Service layer

	// Gateway first: the App pushes every update through its broadcaster
	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.JetStreamConfig.URL = cfg.NATSURL
	gatewayService, err := gateway.NewService(gatewayConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway service: %w", err)
	}

	settings, err := cfg.botSettings()
	if err != nil {
		return nil, err
	}

	opts := auction.Options{
		Broadcaster: gatewayService.Broadcaster(),
		BotSettings: &settings,
	}

	var (
		redisClient *redis.Client
		lease       *auction.RuntimeLease
	)
	if cfg.Redis.Enabled() {
		redisClient, err = redis.Open(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		lease = auction.NewRuntimeLease(redisClient, clockwork.NewRealClock(), cfg.Redis.LeaseTTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("runtime ownership guarded by redis lease")
	}

	repo := auction.NewRepository(pool)
	app, err := auction.NewApp(repo, cfg.auctionConfig(), opts)
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, fmt.Errorf("failed to create auction app: %w", err)
	}
	gatewayService.SetStateProvider(gateway.NewAppStateProvider(app))

	return &Services{
		Auction:        app,
		AuctionService: auction.NewService(app),
		Gateway:        gatewayService,
		Redis:          redisClient,
		Lease:          lease,
	}, nil
}

func (s *Services) Close() {
	s.Auction.Shutdown()
	if s.Lease != nil {
		s.Lease.Release()
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close redis client")
		}
	}
}

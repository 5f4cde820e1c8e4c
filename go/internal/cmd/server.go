package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/pennyauction/go/internal/auction"
)

func setupServer(cfg *Config, services *Services, pool *pgxpool.Pool) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	registerServices(mux, cfg, services)

	// Add health check endpoint
	setupHealthCheck(mux, services, pool)

	// Wrap with CORS
	handler := c.Handler(mux)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func registerServices(mux *http.ServeMux, cfg *Config, services *Services) {
	// Register auction command service
	auctionServicePath, auctionServiceHandler := services.AuctionService.Handler(auction.RequestTimeout(cfg.RequestTimeout))
	mux.Handle(auctionServicePath, auctionServiceHandler)

	// WebSocket fan-out and resync endpoints
	services.Gateway.RegisterRoutes(mux)
}

type healthResponse struct {
	Status      string `json:"status"`
	Database    bool   `json:"database"`
	LiveTimers  int    `json:"liveTimers"`
	Connections int    `json:"connections"`
	BotsEnabled bool   `json:"botsEnabled"`
}

func setupHealthCheck(mux *http.ServeMux, services *Services, pool *pgxpool.Pool) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{
			Status:      "ok",
			Database:    pool.Ping(ctx) == nil,
			LiveTimers:  len(services.Auction.AllRemaining()),
			Connections: services.Gateway.GetStats().TotalConnections,
			BotsEnabled: services.Auction.BotsEnabled(),
		}

		w.Header().Set("Content-Type", "application/json")
		if !resp.Database {
			resp.Status = "degraded"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}

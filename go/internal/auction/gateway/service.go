package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Service bundles WebSocket fan-out, resync endpoints and the optional event relay
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
	stateHandler      *StateHandler
	broadcaster       *Broadcaster
}

// Config holds configuration for the gateway service.
// An empty JetStreamConfig.URL disables the event relay.
type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
	}
}

// NewService creates a new gateway service
func NewService(config Config, stateProvider StateProvider) (*Service, error) {
	cm := NewConnectionManager(config.ConnectionConfig)

	s := &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm),
		stateHandler:      NewStateHandler(stateProvider),
		broadcaster:       NewBroadcaster(cm),
	}

	if config.JetStreamConfig.URL != "" {
		consumer, err := NewEventConsumer(cm, config.JetStreamConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create event consumer: %w", err)
		}
		s.eventConsumer = consumer
	}

	return s, nil
}

// Start runs the connection manager and event relay until ctx is done
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("relay", s.eventConsumer != nil).Msg("starting auction gateway service")

	go s.connectionManager.Start(ctx)

	if s.eventConsumer != nil {
		go func() {
			if err := s.eventConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}

	<-ctx.Done()

	log.Info().Msg("auction gateway service shutting down")
	return s.Stop()
}

// Stop shuts down the event relay; the connection manager stops with its context
func (s *Service) Stop() error {
	if s.eventConsumer != nil {
		if err := s.eventConsumer.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop event consumer")
		}
	}
	log.Info().Msg("auction gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and state HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("auction gateway routes registered")
}

// SetStateProvider swaps the resync source. Call it before serving requests;
// the runtime process needs the broadcaster before its App exists.
func (s *Service) SetStateProvider(provider StateProvider) {
	s.stateHandler.stateProvider = provider
}

// Broadcaster returns the adapter the auction runtime pushes updates through
func (s *Service) Broadcaster() *Broadcaster {
	return s.broadcaster
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}

package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/flipside/internal/latency"
	"github.com/mcdev12/flipside/internal/timer"
)

// Service is the game gateway: it owns the WebSocket connection pools,
// consumes timer events from JetStream, and routes inbound player
// requests back into the timer and game services.
type Service struct {
	connectionManager *ConnectionManager
	clientHandler     *ClientHandler
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
	stateHandler      *StateHandler
	gamesHandler      *GamesHandler
}

// Config holds configuration for the gateway service.
type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig

	// Timer presets offered to game creation requests, and the fallback
	// config when a request names none.
	TimerPresets       map[string]timer.Config
	DefaultTimerConfig timer.Config
}

// DefaultConfig returns default configuration for the gateway. The default
// timer config is a five-minute game with a five-second increment.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
		DefaultTimerConfig: timer.Config{
			Type:                timer.TypeIncrement,
			InitialTime:         300,
			Increment:           5,
			MaxTime:             600,
			LowTimeWarning:      60,
			CriticalTimeWarning: 10,
			AutoFlagOnTimeout:   true,
			PauseOnDisconnect:   true,
			MaxPauseTime:        120,
			TimeoutAction:       timer.ActionForfeit,
		},
	}
}

// NewService creates a new gateway service wired to the timer
// orchestrator, game service, and latency estimator.
func NewService(config Config, timers TimerControl, games GameControl, estimator *latency.Estimator) (*Service, error) {
	connectionManager := NewConnectionManager(config.ConnectionConfig, estimator)
	clientHandler := NewClientHandler(timers, games, estimator)
	wsHandler := NewWebSocketHandler(connectionManager, clientHandler)

	eventConsumer, err := NewEventConsumer(connectionManager, config.JetStreamConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create event consumer: %w", err)
	}

	stateHandler := NewStateHandler(timers, estimator)
	gamesHandler := NewGamesHandler(games, stateHandler, config.TimerPresets, config.DefaultTimerConfig)

	return &Service{
		connectionManager: connectionManager,
		clientHandler:     clientHandler,
		wsHandler:         wsHandler,
		eventConsumer:     eventConsumer,
		stateHandler:      stateHandler,
		gamesHandler:      gamesHandler,
	}, nil
}

// Start begins the gateway service and blocks until the context is
// cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting game gateway service")

	go s.connectionManager.Start(ctx)

	go func() {
		if err := s.eventConsumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("event consumer failed")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("game gateway service shutting down")
	return s.Stop()
}

// Stop gracefully shuts down the gateway service.
func (s *Service) Stop() error {
	if err := s.eventConsumer.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop event consumer")
	}
	log.Info().Msg("game gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and REST routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.gamesHandler.RegisterGameRoutes(mux)
	log.Info().Msg("game gateway routes registered")
}

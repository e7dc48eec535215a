package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/flipside/internal/events"
	"github.com/mcdev12/flipside/internal/game"
	"github.com/mcdev12/flipside/internal/gateway"
	"github.com/mcdev12/flipside/internal/latency"
	"github.com/mcdev12/flipside/internal/store"
	"github.com/mcdev12/flipside/internal/timer/orchestrator"
)

// Services holds the wired application graph.
type Services struct {
	Games     *game.Service
	Timers    *orchestrator.Orchestrator
	Estimator *latency.Estimator
	Publisher events.Publisher
	Gateway   *gateway.Service
}

// setupServices wires the dependency chain:
// store → publisher → game service → orchestrator → policy resolver → gateway.
// The game service and orchestrator reference each other (moves drive clocks,
// timeouts drive moves), so they are created first and bound after.
func setupServices(pool *pgxpool.Pool, natsURL string, config *Config) (*Services, error) {
	clk := clockwork.NewRealClock()

	snapshots := snapshotStore(pool)

	publisherConfig := events.DefaultJetStreamConfig()
	publisherConfig.URL = natsURL
	publisher, err := events.NewJetStreamPublisher(publisherConfig)
	if err != nil {
		return nil, fmt.Errorf("create event publisher: %w", err)
	}

	games := game.NewService(clk, publisher)
	timers := orchestrator.New(clk, publisher, snapshots)
	timers.SetResolver(orchestrator.NewResolver(games, games))
	games.BindTimers(timers)

	estimator := latency.NewEstimator(clk, latency.DefaultWindowSize)

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.JetStreamConfig.URL = natsURL
	gatewayConfig.TimerPresets = config.Timers.Presets
	gatewayConfig.DefaultTimerConfig = config.defaultPreset()
	gatewaySvc, err := gateway.NewService(gatewayConfig, timers, games, estimator)
	if err != nil {
		publisher.Close()
		return nil, fmt.Errorf("create gateway service: %w", err)
	}

	return &Services{
		Games:     games,
		Timers:    timers,
		Estimator: estimator,
		Publisher: publisher,
		Gateway:   gatewaySvc,
	}, nil
}

// snapshotStore picks the snapshot backend: Postgres when a pool is
// available, otherwise in-memory.
func snapshotStore(pool *pgxpool.Pool) store.Store {
	if pool == nil {
		log.Warn().Msg("no database configured, timer snapshots are in-memory only")
		return store.NewMemory()
	}
	return store.NewPostgres(pool)
}

// restoreSnapshots rebuilds timers for games that were live when the process
// last stopped.
func restoreSnapshots(ctx context.Context, services *Services) {
	for _, gameID := range services.Games.ActiveGameIDs() {
		if err := services.Timers.RestoreGameTimers(ctx, gameID); err != nil {
			log.Warn().
				Err(err).
				Str("game_id", gameID.String()).
				Msg("could not restore game timers")
		}
	}
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/flipside/internal/dbconfig"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	natsURL := getEnv("NATS_URL", "nats://localhost:4222")
	configPath := getEnv("CONFIG_PATH", "config.yaml")

	config, err := loadConfig(configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", configPath).Msg("no config file, using built-in timer presets")
		config = &Config{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bootstrap connection ensures the schema; the pgx pool serves the
	// snapshot store afterwards. Without a reachable database the service
	// runs with in-memory snapshots.
	dbCfg := dbconfig.NewConfigFromEnv()
	var pool *pgxpool.Pool
	database, err := setupDatabase(dbCfg)
	if err != nil {
		log.Warn().Err(err).Msg("database unavailable, timer snapshots are in-memory only")
	} else {
		defer database.Close()
		pool, err = setupPool(ctx, dbCfg)
		if err != nil {
			log.Warn().Err(err).Msg("connection pool unavailable, timer snapshots are in-memory only")
			pool = nil
		} else {
			defer pool.Close()
		}
	}

	services, err := setupServices(pool, natsURL, config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	defer services.Publisher.Close()

	restoreSnapshots(ctx, services)

	server := setupServer(services)

	go func() {
		if err := services.Gateway.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	time.Sleep(1 * time.Second)

	log.Info().Msg("shutdown complete")
}

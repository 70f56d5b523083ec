package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smarter-english/elt-trading-game/internal/auth"
	"github.com/smarter-english/elt-trading-game/internal/config"
	"github.com/smarter-english/elt-trading-game/internal/database"
	"github.com/smarter-english/elt-trading-game/internal/logger"
	"github.com/smarter-english/elt-trading-game/internal/market"
	"github.com/smarter-english/elt-trading-game/internal/server"
)

func gracefulShutdown(customServer *server.Server, httpServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Info().Msg("Shutdown signal received, press Ctrl+C again to force")
	stop()

	// Enough time to save every game and say goodbye to every client.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := customServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error during custom shutdown")
	}

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shutdown")
	}

	done <- true
}

func loadScenario(path string) (*market.Scenario, error) {
	if path == "" {
		return market.DefaultScenario()
	}
	return market.LoadScenarioFile(path)
}

func main() {
	cfg, err := config.Load()
	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := context.Background()

	if err := database.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	scenario, err := loadScenario(cfg.ScenarioFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.ScenarioFile).Msg("Failed to load scenario")
	}

	accounts := auth.NewService(
		auth.NewPostgresStore(db.Pool()),
		auth.DefaultHasher(),
		auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL),
	)

	customServer, httpServer, err := server.NewServer(ctx, cfg, db, accounts, scenario)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}

	done := make(chan bool, 1)
	go gracefulShutdown(customServer, httpServer, done)

	log.Info().Int("port", cfg.Port).Int("months", scenario.Rounds()).Msg("Server listening")
	err = httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("HTTP server error")
		os.Exit(1)
	}

	<-done
	log.Info().Msg("Graceful shutdown complete")
}

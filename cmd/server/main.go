package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"github.com/razorquake/razorlinks/internal/config"
	"github.com/razorquake/razorlinks/internal/database"
	"github.com/razorquake/razorlinks/internal/logger"
	"github.com/razorquake/razorlinks/internal/server"
)

var version = "dev" // Will be set during build with -ldflags

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.GetLogger()

	gin.SetMode(gin.ReleaseMode)

	db, err := database.Open(cfg.Database.URL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}

	// Initialize Asynq client for enqueueing tasks
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: cfg.Redis.Address,
	})

	srv, err := server.New(cfg, db, asynqClient, log, version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	log.Info().Str("version", version).Msg("Starting RazorLinks server...")

	// Start HTTP server (this blocks)
	startErr := srv.Start()

	if err := asynqClient.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing Asynq client")
	}

	// Close database connection to flush WAL writes
	if err := database.Close(db); err != nil {
		log.Error().Err(err).Msg("Error closing database")
	}

	if startErr != nil {
		log.Fatal().Err(startErr).Msg("Server failed")
	}
}

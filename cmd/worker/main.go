package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/razorquake/razorlinks/internal/config"
	"github.com/razorquake/razorlinks/internal/database"
	"github.com/razorquake/razorlinks/internal/logger"
	"github.com/razorquake/razorlinks/internal/tasks"
	"github.com/razorquake/razorlinks/internal/workers"
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

	log.Info().Str("version", version).Msg("Starting RazorLinks Asynq worker")

	db, err := database.Open(cfg.Database.URL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer database.Close(db)

	// Initialize Asynq server
	asynqServer := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr: cfg.Redis.Address,
		},
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				"default": 1,
			},
			// Logging
			Logger: &asynqLogger{log: log},
		},
	)

	mailer := workers.LogMailer{Logger: log.With().Str("component", "mailer").Logger()}

	// Register task handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeSendVerificationEmail, func(ctx context.Context, t *asynq.Task) error {
		return workers.HandleSendVerificationEmail(ctx, t, db, mailer, log)
	})
	mux.HandleFunc(tasks.TypeSendPasswordResetEmail, func(ctx context.Context, t *asynq.Task) error {
		return workers.HandleSendPasswordResetEmail(ctx, t, db, mailer, log)
	})

	// Purge expired verification and password reset tokens on a schedule
	cleanup, err := workers.StartTokenCleanup(db, cfg.Worker.TokenCleanupSchedule, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule token cleanup")
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		log.Info().Msg("Starting Asynq worker server...")
		if err := asynqServer.Run(mux); err != nil {
			log.Fatal().Err(err).Msg("Asynq worker server failed")
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Info().Msg("Received shutdown signal, shutting down gracefully...")

	<-cleanup.Stop().Done()

	log.Info().Msg("Stopping Asynq worker - waiting for tasks to finish...")
	asynqServer.Shutdown()

	log.Info().Msg("Worker shutdown complete")
}

// asynqLogger is a wrapper to make zerolog compatible with Asynq's logger interface
type asynqLogger struct {
	log zerolog.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) {
	l.log.Debug().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Info(args ...interface{}) {
	l.log.Info().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Warn(args ...interface{}) {
	l.log.Warn().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Error(args ...interface{}) {
	l.log.Error().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.log.Fatal().Msg(fmt.Sprint(args...))
}

// Command flowstated serves the workflow execution tracker over HTTP.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sicko7947/flowstate"
	"github.com/sicko7947/flowstate/server"
	"github.com/sicko7947/flowstate/tracker"
	cli "github.com/urfave/cli/v3"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "flowstated",
		Usage: "Track workflow execution state in Redis or DynamoDB with an in-memory fallback",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "remote-url",
				Usage:   "Remote backend URL (redis://, rediss://, unix://, dynamodb://table)",
				Sources: cli.EnvVars("FLOWSTATE_REMOTE_URL", "REDIS_URL"),
			},
			&cli.BoolFlag{
				Name:    "enable-fallback",
				Usage:   "Use the in-memory backend when the remote backend is unreachable",
				Value:   true,
				Sources: cli.EnvVars("FLOWSTATE_ENABLE_FALLBACK"),
			},
			&cli.BoolFlag{
				Name:    "strict-transitions",
				Usage:   "Reject execution state changes the state machine forbids",
				Value:   true,
				Sources: cli.EnvVars("FLOWSTATE_STRICT_TRANSITIONS"),
			},
			&cli.DurationFlag{
				Name:    "ttl",
				Usage:   "Retention window of execution records",
				Value:   flowstate.DefaultConfig.DefaultTTL,
				Sources: cli.EnvVars("FLOWSTATE_TTL"),
			},
			&cli.IntFlag{
				Name:    "scan-batch-size",
				Usage:   "Page size hint for key scans",
				Value:   int(flowstate.DefaultConfig.ScanBatchSize),
				Sources: cli.EnvVars("FLOWSTATE_SCAN_BATCH_SIZE"),
			},
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "HTTP listen address",
				Value:   ":8080",
				Sources: cli.EnvVars("FLOWSTATE_LISTEN"),
			},
			&cli.StringFlag{
				Name:    "sweep-schedule",
				Usage:   "Cron schedule for purging expired fallback records",
				Value:   "@every 1m",
				Sources: cli.EnvVars("FLOWSTATE_SWEEP_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("flowstated exited")
	}
}

func setupLogger(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).Level(parsed)

	if err != nil {
		log.Warn().Str("level", level).Msg("Unknown log level, using info")
	}
	return log.Logger
}

func configFromCommand(command *cli.Command) flowstate.Config {
	config := flowstate.DefaultConfig
	config.RemoteURL = command.String("remote-url")
	config.EnableFallback = command.Bool("enable-fallback")
	config.StrictTransitions = command.Bool("strict-transitions")
	config.DefaultTTL = command.Duration("ttl")
	config.ScanBatchSize = int64(command.Int("scan-batch-size"))
	return config
}

func run(ctx context.Context, command *cli.Command) error {
	logger := setupLogger(command.String("log-level"))

	manager := tracker.NewManager(
		tracker.WithLogger(logger),
		tracker.WithConfig(configFromCommand(command)),
	)

	if err := manager.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := manager.Disconnect(); err != nil {
			logger.Error().Err(err).Msg("Failed to disconnect")
		}
	}()

	sweeper, err := newSweeper(manager, command.String("sweep-schedule"), logger)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	srv := server.New(manager, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(command.String("listen"))
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server stopped")
	return nil
}

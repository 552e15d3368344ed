package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/noah-isme/gema-evalsync/internal/config"
	"github.com/noah-isme/gema-evalsync/internal/database"
	"github.com/noah-isme/gema-evalsync/internal/logger"
	"github.com/noah-isme/gema-evalsync/internal/server"
)

func main() {
	flags := pflag.NewFlagSet("devserver", pflag.ExitOnError)
	flags.String("port", "", "port to listen on")
	flags.String("database-url", "", "postgres url or sqlite dsn")
	flags.String("grading-delay", "", "delay before each queued submission is graded")
	flags.String("openai-api-key", "", "OpenAI API key; the heuristic grader is used when empty")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (json, console)")
	flags.String("log-file", "", "optional rotating log file")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		bootstrapFatal("failed to load configuration", err)
	}

	log := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})

	if err := cfg.ValidateServer(); err != nil {
		log.Fatal().Err(err).Msg("invalid server configuration")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	archive, err := server.NewArchive(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create cloudinary client")
	}

	srv, err := server.New(cfg, db, server.Options{Archive: archive, Logger: log})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to assemble server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start grading pipeline")
	}

	go func() {
		log.Info().
			Str("address", cfg.HTTPAddress()).
			Str("evaluator", srv.EvaluatorName()).
			Bool("archive", archive != nil).
			Msg("development server listening")
		if err := srv.App.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	log.Info().Msg("server stopped")
}

func bootstrapFatal(msg string, err error) {
	_, _ = os.Stderr.WriteString(msg + ": " + err.Error() + "\n")
	os.Exit(1)
}

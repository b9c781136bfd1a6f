package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ayushpasi8829/meding/internal/config"
	"github.com/ayushpasi8829/meding/internal/db"
	"github.com/ayushpasi8829/meding/internal/notify"
	"github.com/ayushpasi8829/meding/internal/scheduling"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stderrLogger := zerolog.New(os.Stderr)
		stderrLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "reminder-worker").Logger()
	logger.Info().Str("env", cfg.Env).Str("cron", cfg.ReminderCronSpec).Msg("reminder-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	repo := scheduling.NewPgRepository(pgPool)
	notifier := notify.NewService(notify.Config{
		SendGridAPIKey:  cfg.SendGridAPIKey,
		FromEmail:       cfg.FromEmail,
		FromName:        cfg.FromName,
		WhatsAppGateway: cfg.WhatsAppGateway,
	}, logger)
	metrics := scheduling.NewMetrics(nil)

	scheduler := scheduling.NewReminderScheduler(repo, notifier, scheduling.SystemClock(), metrics, scheduling.Lookahead{
		Min: cfg.ReminderLookaheadMin,
		Max: cfg.ReminderLookaheadMax,
	}, logger)

	runOnce(rootCtx, scheduler, logger)

	c := cron.New()
	_, err = c.AddFunc(cfg.ReminderCronSpec, func() {
		runOnce(rootCtx, scheduler, logger)
	})
	if err != nil {
		logger.Fatal().Err(err).Str("cron", cfg.ReminderCronSpec).Msg("invalid reminder cron spec")
	}
	c.Start()

	<-rootCtx.Done()
	logger.Info().Msg("shutdown signal received, stopping reminder worker")

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(cfg.ShutdownTimeout):
		logger.Warn().Msg("timed out waiting for running sweep")
	}
}

func runOnce(ctx context.Context, scheduler *scheduling.ReminderScheduler, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := scheduler.Sweep(runCtx); err != nil {
		logger.Error().Err(err).Msg("reminder sweep error")
		return
	}
	logger.Info().Dur("took", time.Since(start)).Msg("reminder sweep complete")
}

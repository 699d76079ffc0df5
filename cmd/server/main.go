package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cardsite-backend/internal/analytics"
	"cardsite-backend/internal/auth"
	"cardsite-backend/internal/billing"
	"cardsite-backend/internal/config"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/events"
	"cardsite-backend/internal/logging"
	"cardsite-backend/internal/mfa"
	"cardsite-backend/internal/notification"
	"cardsite-backend/internal/server"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg)
	database.Init(cfg)

	var revoker auth.Revoker = auth.NewMemoryRevoker()
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := database.OpenRedis(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			logging.L.WithError(err).Fatal("could not connect to redis")
		}
		defer client.Close()
		revoker = auth.NewRedisRevoker(client)
	}

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL, revoker)

	if err := events.Init(cfg.NATSURL); err != nil {
		logging.L.WithError(err).Warn("event publishing disabled")
	}
	defer events.Close()

	billingSvc := billing.NewService(cfg)
	sweeper := billing.NewSweeper(billingSvc, cfg.SubscriptionSweepCron)
	if err := sweeper.Start(); err != nil {
		logging.L.WithError(err).Fatal("invalid subscription sweep schedule")
	}
	defer sweeper.Stop()

	app := server.New(server.Deps{
		Config:  cfg,
		Tokens:  tokens,
		MFA:     mfa.NewService(cfg.MFAIssuer),
		Billing: billingSvc,
		Mailer:  notification.NewMailer(cfg),
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logging.L.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logging.L.WithError(err).Error("shutdown")
		}
	}()

	logging.L.WithField("port", cfg.HTTPPort).Info("server listening")
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		logging.L.WithError(err).Error("server stopped")
	}
	analytics.Flush()
}

package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"telefwd/internal/app"
	"telefwd/internal/archive"
	"telefwd/internal/config"
	"telefwd/internal/paypal"
	"telefwd/internal/relay"
	"telefwd/internal/server"
	"telefwd/internal/store"
	"telefwd/internal/telegram"
	"telefwd/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	st, err := store.NewGormStore(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}

	jwtTTL := time.Duration(cfg.JWTExpiryHours) * time.Hour
	revoker := store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
	sessions, err := store.NewJWTSessionStore(cfg.JWTSecret, jwtTTL, revoker, store.JWTOptions{})
	if err != nil {
		log.Fatalf("failed to init session store: %v", err)
	}

	httpTimeout := time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
	messaging := telegram.NewClient(cfg.RelayURL, cfg.RelayAuthToken, httpTimeout)
	payments := paypal.NewClient(paypal.Config{
		BaseURL:       cfg.PayPalBaseURL,
		ClientID:      cfg.PayPalClientID,
		ClientSecret:  cfg.PayPalClientSecret,
		PlanID:        cfg.PayPalPlanID,
		WebhookSecret: cfg.PayPalWebhookSecret,
		Timeout:       httpTimeout,
	})

	var dispatcher app.StartDispatcher
	if cfg.AMQPURL != "" {
		publisher, err := relay.NewPublisher(cfg.AMQPURL, "")
		if err != nil {
			log.Fatalf("failed to init amqp publisher: %v", err)
		}
		defer publisher.Close()
		dispatcher = publisher
	}

	var archiver app.LogArchiver
	if cfg.MinioEndpoint != "" {
		archiver, err = archive.NewMinioArchiver(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init log archiver: %v", err)
		}
	}

	appCore, err := app.New(app.Config{
		Store:           st,
		Sessions:        sessions,
		Messaging:       messaging,
		Payments:        payments,
		WebhookVerifier: payments,
		Dispatcher:      dispatcher,
		Archiver:        archiver,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                        appCore,
		RelaySecret:                cfg.RelaySecret,
		RedisAddr:                  cfg.RedisAddr,
		RedisPassword:              cfg.RedisPassword,
		RegisterRateLimitPerMinute: cfg.RegisterRateLimitPerMinute,
		LoginRateLimitPerMinute:    cfg.LoginRateLimitPerMinute,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("telefwd server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-restaurant-api/internal/application/approval"
	"github.com/go-restaurant-api/internal/application/auth"
	"github.com/go-restaurant-api/internal/application/dashboard"
	"github.com/go-restaurant-api/internal/application/presence"
	"github.com/go-restaurant-api/internal/application/verification"
	"github.com/go-restaurant-api/internal/application/watermark"
	"github.com/go-restaurant-api/internal/config"
	"github.com/go-restaurant-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-restaurant-api/internal/infrastructure/jwt"
	"github.com/go-restaurant-api/internal/infrastructure/rabbitmq"
	"github.com/go-restaurant-api/internal/infrastructure/smtp"
	"github.com/go-restaurant-api/internal/infrastructure/sns"
	"github.com/go-restaurant-api/internal/infrastructure/wshub"
	transporthttp "github.com/go-restaurant-api/internal/transport/http"
	"github.com/go-restaurant-api/internal/transport/ws"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg := config.Load()
	if cfg.AppEnv == "production" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	// Every login issues a token, so the API cannot start without keys.
	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		slog.Error("JWT provider not available", "err", err)
		os.Exit(1)
	}

	mailer := smtp.NewMailer(cfg)

	// SNS is optional; without it password reset codes go by email only.
	smsSender, err := sns.NewSender(cfg)
	if err != nil {
		slog.Warn("SNS sender not available", "err", err)
	}

	presenceRegistry := presence.NewRegistry(nil)
	hub := wshub.NewHub(cfg.AllowedOrigins)

	approvalDeps := approval.ServiceDeps{
		Presence:      presenceRegistry,
		Notifier:      hub,
		Signer:        jwtProvider,
		TTL:           cfg.Staging.ApprovalTTL,
		SweepInterval: cfg.Staging.SweepInterval,
	}
	if cfg.AMQPURL != "" {
		publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPQueue)
		defer publisher.Close()
		approvalDeps.Events = publisher
	}
	approvals := approval.NewCoordinator(approvalDeps)

	authSvc := auth.NewService(auth.ServiceDeps{
		UserRepo:  dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users),
		Codes:     verification.NewCoordinator(cfg.Staging, nil),
		Approvals: approvals,
		Signer:    jwtProvider,
		Mailer:    mailer,
		SMS:       smsSender,
		Policy:    cfg.Staging,
	})

	tracker := watermark.NewTracker(dynamo.NewWatermarkRepo(dynamoClient, cfg.DynamoTables.Watermarks), nil)
	dashboardSvc := dashboard.NewService(tracker, dynamo.NewActivityRepo(dynamoClient, cfg.DynamoTables.Activity), hub)

	hub.SetHandler(ws.NewGateway(jwtProvider, presenceRegistry, approvals))

	go approvals.Run(ctx)
	go authSvc.Run(ctx)

	router := transporthttp.NewRouter(ctx, cfg, &transporthttp.Deps{
		Auth:        authSvc,
		Approvals:   approvals,
		Dashboard:   dashboardSvc,
		JWTProvider: jwtProvider,
		Realtime:    hub,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "err", err)
	}
	slog.Info("server stopped")
}

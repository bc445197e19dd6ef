package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThePickle31/clawd-site-sub000/internal/config"
	"github.com/ThePickle31/clawd-site-sub000/internal/handler"
	"github.com/ThePickle31/clawd-site-sub000/internal/logging"
	"github.com/ThePickle31/clawd-site-sub000/internal/mailer"
	"github.com/ThePickle31/clawd-site-sub000/internal/notify"
	"github.com/ThePickle31/clawd-site-sub000/internal/queue"
	"github.com/ThePickle31/clawd-site-sub000/internal/ratelimit"
	"github.com/ThePickle31/clawd-site-sub000/internal/repository"
	"github.com/ThePickle31/clawd-site-sub000/internal/service"
	"github.com/ThePickle31/clawd-site-sub000/pkg/auth"
	"github.com/ThePickle31/clawd-site-sub000/pkg/discord"
	"github.com/ThePickle31/clawd-site-sub000/pkg/email"
)

const (
	contactLimit  = 3
	contactWindow = time.Hour
	loginLimit    = 10
	loginWindow   = 15 * time.Minute

	sessionSweepInterval = time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("config load failed", "error", err)
	}
	logCloser := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer logCloser.Close()

	if err := cfg.Validate(); err != nil {
		logging.Fatal("invalid configuration", "error", err)
	}
	slog.Info("starting contact API", cfg.Redacted()...)

	ctx := context.Background()

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logging.Fatal("failed to connect to database", "error", err)
	}
	defer pool.Close()

	messageRepo := repository.NewPgMessageRepository(pool)
	draftRepo := repository.NewPgDraftRepository(pool)
	sessionRepo := repository.NewPgSessionRepository(pool)

	// Rate limit counters live in Redis when configured, otherwise in Postgres.
	var limitStore ratelimit.Store = repository.NewPgRateLimitRepository(pool)
	if cfg.RedisURL != "" {
		rdb, err := ratelimit.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logging.Fatal("failed to connect to redis", "error", err)
		}
		defer rdb.Close()
		limitStore = ratelimit.NewRedisStore(rdb)
	}
	contactLimiter := ratelimit.New(limitStore, "contact:", contactLimit, contactWindow)
	loginLimiter := ratelimit.New(limitStore, "login:", loginLimit, loginWindow)

	discordClient := discord.NewClient(cfg.DiscordWebhookURL, cfg.DiscordApplicationID)
	var sink service.NotificationSink
	if discordClient.Configured() {
		sink = notify.NewDiscordSink(discordClient, cfg.DiscordOperatorID)
	} else {
		slog.Warn("discord webhook not configured, notifications disabled")
	}

	var verifier handler.SignatureVerifier
	if cfg.DiscordPublicKey != "" {
		v, err := discord.NewVerifier(cfg.DiscordPublicKey)
		if err != nil {
			logging.Fatal("invalid discord public key", "error", err)
		}
		verifier = v
	}

	replies := mailer.New(email.NewClient(cfg.ResendAPIKey, ""), cfg.ReplyFrom, cfg.ReplyFromName)
	if !replies.IsConfigured() {
		slog.Warn("email transport not configured, replies will be rejected")
	}

	var events service.EventPublisher
	if cfg.AMQPURL != "" {
		conn, err := queue.NewConnection(cfg.AMQPURL)
		if err != nil {
			slog.Warn("amqp unavailable, lifecycle events disabled", "error", err)
		} else {
			defer conn.Close()
			pub, err := queue.NewPublisher(conn, cfg.AMQPExchange)
			if err != nil {
				slog.Warn("amqp exchange declare failed, lifecycle events disabled", "error", err)
			} else {
				events = pub
			}
		}
	}

	approvalService := service.NewApprovalService(service.ApprovalDeps{
		Messages:  messageRepo,
		Drafts:    draftRepo,
		Limiter:   contactLimiter,
		Sink:      sink,
		Transport: replies,
		Events:    events,
	})
	sessionService := service.NewSessionService(sessionRepo, auth.NewPasswordChecker(cfg.AdminPassword, cfg.AdminPasswordHash))

	interactions := handler.NewInteractionHandler(verifier, approvalService, discordClient)
	router := handler.NewRouter(handler.Routes{
		Base:             handler.New(pool, cfg.FrontendURL),
		Contact:          handler.NewContactHandler(approvalService),
		Admin:            handler.NewAdminHandler(sessionService, approvalService, cfg.IsProduction()),
		Interactions:     interactions,
		Automation:       handler.NewAutomationHandler(approvalService),
		Sessions:         sessionService,
		LoginLimiter:     loginLimiter,
		AutomationSecret: cfg.AutomationSecret,
	})

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sweepSessions(sweepCtx, sessionService)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), handler.DrainTimeout)
	defer drainCancel()
	if err := interactions.Wait(drainCtx); err != nil {
		slog.Error("interaction actions still running at exit", "error", err)
	}
	slog.Info("server stopped")
}

func sweepSessions(ctx context.Context, s *service.SessionService) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepExpired(ctx)
			if err != nil {
				slog.Warn("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("expired sessions removed", "count", n)
			}
		}
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/attendance_tracker/internal/app"
	"github.com/Freeeeeet/attendance_tracker/internal/auth"
	"github.com/Freeeeeet/attendance_tracker/internal/config"
	"github.com/Freeeeeet/attendance_tracker/internal/controller"
	"github.com/Freeeeeet/attendance_tracker/internal/controller/httpapi"
	"github.com/Freeeeeet/attendance_tracker/internal/matcher"
	"github.com/Freeeeeet/attendance_tracker/internal/notify"
	"github.com/Freeeeeet/attendance_tracker/internal/realtime"
	"github.com/Freeeeeet/attendance_tracker/internal/service"
	"github.com/Freeeeeet/attendance_tracker/internal/storage"
	"github.com/go-telegram/bot"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	logger.Info("Starting attendance tracker",
		zap.String("environment", cfg.Environment),
		zap.String("db_driver", cfg.DBDriver),
		zap.String("http_addr", cfg.HTTPAddr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	hub := realtime.NewHub(cfg.SubscriberBuffer, logger)

	// Telegram нужен и для команд, и для уведомлений
	var botInstance *bot.Bot
	if cfg.TelegramEnabled() {
		botInstance, err = bot.New(cfg.TelegramToken)
		if err != nil {
			return err
		}
	}

	var channels []notify.Notifier
	if botInstance != nil && len(cfg.CoordinatorTelegramIDs) > 0 {
		channels = append(channels, notify.NewTelegram(botInstance, cfg.CoordinatorTelegramIDs, cfg.Location(), logger))
	}
	if cfg.EmailEnabled() {
		dialer := notify.NewSMTPDialer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		})
		from := cfg.SMTPFrom
		if from == "" {
			from = cfg.SMTPUsername
		}
		channels = append(channels, notify.NewEmail(dialer, from, cfg.ReportEmails, cfg.Location(), logger))
	}
	notifiers := notify.NewMulti(logger, channels...)

	var notifier service.Notifier
	if notifiers.Len() > 0 {
		notifier = notifiers
	}

	reconciler := service.NewReconciliationService(store.Sessions, store.Presence, store.Enrollments, hub, notifier, cfg.ReconcileTimeout, logger)
	sessions := service.NewSessionService(store.Sessions, hub, reconciler, cfg.Location(), logger)
	presence := service.NewPresenceService(store.Sessions, store.Presence, store.Enrollments, hub, cfg.Policy(), logger)

	var detection *service.DetectionService
	if cfg.MatcherEnabled() {
		detection = service.NewDetectionService(matcher.NewClient(cfg.MLServiceURL, cfg.MLMatchTimeout, logger), presence, logger)
	}

	scheduler := app.NewScheduler(reconciler, cfg.ReconcileInterval, logger)
	scheduler.Start(ctx)

	if botInstance != nil {
		botController := controller.NewBotController(botInstance, sessions, presence, reconciler, cfg.CoordinatorTelegramIDs, cfg.Location(), logger)
		if err := botController.RegisterHandlers(ctx); err != nil {
			logger.Warn("Bot commands menu not set", zap.Error(err))
		}
		go func() {
			if err := botController.Start(ctx); err != nil {
				logger.Error("Bot stopped with error", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Sessions:    sessions,
			Presence:    presence,
			Reconciler:  reconciler,
			Detection:   detection,
			Hub:         hub,
			Verifier:    auth.NewVerifier(cfg.JWTSecret),
			CORSOrigins: cfg.CORSOrigins,
			Logger:      logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			scheduler.Stop()
			reconciler.Wait()
			return err
		}
	}

	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// WebSocket соединения Shutdown не ждёт, они закрываются вместе с процессом
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}

	scheduler.Stop()
	reconciler.Wait()

	return nil
}

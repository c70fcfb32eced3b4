package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/schoolchow/notifier/internal/app/adminapi"
	"github.com/schoolchow/notifier/internal/app/broadcast"
	"github.com/schoolchow/notifier/internal/app/detector"
	"github.com/schoolchow/notifier/internal/app/directory"
	"github.com/schoolchow/notifier/internal/app/fanout"
	"github.com/schoolchow/notifier/internal/app/feed"
	"github.com/schoolchow/notifier/internal/app/orders"
	"github.com/schoolchow/notifier/internal/messaging"
	"github.com/schoolchow/notifier/internal/platform/auth"
	"github.com/schoolchow/notifier/internal/platform/dbpool"
	"github.com/schoolchow/notifier/internal/platform/env"
	"github.com/schoolchow/notifier/internal/platform/metrics"
	"github.com/schoolchow/notifier/internal/platform/natsutil"
	"github.com/schoolchow/notifier/internal/push"
)

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "notifier").Logger()

	addr := env.String("NOTIFIER_ADDR", env.DefaultNotifierAddr)
	pgURL := env.String("DATABASE_URL", env.DefaultDatabaseURL)
	natsURL := env.String("NATS_URL", env.DefaultNATSURL)
	expoURL := env.String("EXPO_PUSH_URL", env.DefaultExpoPushURL)
	jwtSecret := env.String("JWT_SECRET", "dev-insecure-change-me")
	adminEmail := env.String("ADMIN_EMAIL", "admin@schoolchow.com")
	// 09:05 UTC is 10:05 in Lagos, the morning prompt slot.
	dailySpec := env.String("DAILY_BROADCAST_CRON", "5 9 * * *")
	cronTZ := env.String("CRON_TZ", "UTC")
	feedWorkers := env.Int("FEED_WORKERS", 16)
	shutdownTimeout := env.Duration("SHUTDOWN_TIMEOUT", 10*time.Second)

	pool, err := dbpool.New(runCtx, pgURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot create database pool")
	}
	defer pool.Close()

	dirRepo := directory.NewPostgresRepository(pool)
	orderRepo := orders.NewPostgresRepository(pool)
	if err := waitForSchema(runCtx, logger, pool, dirRepo, orderRepo, 30*time.Second); err != nil {
		logger.Fatal().Err(err).Msg("database not ready")
	}

	client, err := natsutil.ConnectJetStreamWithRetry(natsURL, 20*time.Second)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot connect to jetstream")
	}
	defer client.Close()

	gateway := push.NewClient(expoURL, logger.With().Str("component", "push").Logger())
	fanoutSvc := fanout.NewService(dirRepo, orderRepo, gateway, logger.With().Str("component", "fanout").Logger())
	broadcastSvc := broadcast.NewService(dirRepo, gateway, logger.With().Str("component", "broadcast").Logger())

	lanes := detector.NewLanes(feedWorkers, 128)
	consumer := feed.NewConsumer(detector.New(nil), lanes, fanoutSvc, logger.With().Str("component", "feed").Logger())

	if err := consumer.Bootstrap(runCtx, orderRepo); err != nil {
		logger.Fatal().Err(err).Msg("bootstrap snapshot failed")
	}

	sub, err := client.JS.QueueSubscribe(messaging.ChangeSubjects, "notifier", func(msg *nats.Msg) {
		if err := consumer.Handle(runCtx, msg.Data); err != nil {
			if errors.Is(err, feed.ErrInvalidChangePayload) {
				logger.Warn().Err(err).Str("subject", msg.Subject).Msg("discarding invalid change record")
				_ = msg.Term()
				return
			}
			logger.Error().Err(err).Str("subject", msg.Subject).Msg("change record processing failed")
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	}, nats.ManualAck())
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot subscribe to order feed")
	}
	logger.Info().Str("subject", messaging.ChangeSubjects).Msg("order feed subscription started")

	loc, err := time.LoadLocation(cronTZ)
	if err != nil {
		logger.Fatal().Err(err).Str("tz", cronTZ).Msg("invalid cron timezone")
	}
	cronLog := logger.With().Str("component", "cron").Logger()
	scheduler := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(&cronLog))),
	)
	if _, err := scheduler.AddFunc(dailySpec, func() {
		sent, err := broadcastSvc.SendDaily(runCtx)
		if err != nil {
			cronLog.Error().Err(err).Msg("daily broadcast failed")
			return
		}
		cronLog.Info().Int("sent", sent).Msg("daily broadcast complete")
	}); err != nil {
		logger.Fatal().Err(err).Str("spec", dailySpec).Msg("invalid daily broadcast schedule")
	}
	scheduler.Start()
	defer scheduler.Stop()

	adminHandler := adminapi.NewHandler(
		auth.NewManager(jwtSecret, 24*time.Hour),
		adminEmail,
		broadcastSvc,
		logger.With().Str("component", "adminapi").Logger(),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := checkReadiness(r.Context(), pool, client.Conn); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.DefaultHandler())
	mux.Handle("/", adminHandler.Router())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info().Str("addr", addr).Msg("notifier listening")
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		logger.Fatal().Err(err).Msg("http server failed")
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	// Stop the feed before the lanes: a message delivered after the lane
	// pool has closed would otherwise be lost, and the handler must never
	// observe closed lanes mid-flight.
	if err := sub.Drain(); err != nil {
		logger.Error().Err(err).Msg("feed subscription drain failed")
	}
	lanes.Close()
}

func waitForSchema(
	ctx context.Context,
	logger zerolog.Logger,
	pool *pgxpool.Pool,
	dirRepo *directory.PostgresRepository,
	orderRepo *orders.PostgresRepository,
	timeout time.Duration,
) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = pool.Ping(attemptCtx)
		if lastErr == nil {
			lastErr = dirRepo.EnsureSchema(attemptCtx)
		}
		if lastErr == nil {
			lastErr = orderRepo.EnsureSchema(attemptCtx)
		}
		cancel()

		if lastErr == nil {
			return nil
		}
		logger.Warn().Err(lastErr).Msg("waiting for postgres readiness")
		time.Sleep(500 * time.Millisecond)
	}
	return lastErr
}

func checkReadiness(ctx context.Context, pool *pgxpool.Pool, conn *nats.Conn) error {
	if conn == nil {
		return errors.New("nats connection is nil")
	}
	if conn.Status() != nats.CONNECTED {
		return fmt.Errorf("nats is not connected: %s", conn.Status().String())
	}

	checkCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()
	if err := pool.Ping(checkCtx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

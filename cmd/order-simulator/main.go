package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nuid"
	"github.com/rs/zerolog"

	"github.com/schoolchow/notifier/internal/app/directory"
	"github.com/schoolchow/notifier/internal/app/orders"
	"github.com/schoolchow/notifier/internal/contracts"
	"github.com/schoolchow/notifier/internal/platform/dbpool"
	"github.com/schoolchow/notifier/internal/platform/env"
	"github.com/schoolchow/notifier/internal/platform/natsutil"
	"github.com/schoolchow/notifier/internal/sharding"
)

// order-simulator seeds users and drives synthetic orders through the
// lifecycle, publishing a change record per mutation. Development tool only;
// production mutations come from the ordering flow.

type config struct {
	NATSURL     string
	DatabaseURL string
	Customers   int
	Vendors     int
	Drivers     int
	Orders      int
	StepDelay   time.Duration
	RefundRate  float64
}

var menu = []string{
	"Jollof rice and chicken",
	"Egusi soup with pounded yam",
	"Suya wrap",
	"Meat pie combo",
	"Fried rice special",
	"Chicken shawarma",
}

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "order-simulator").Logger()

	cfg := config{
		NATSURL:     env.String("NATS_URL", env.DefaultNATSURL),
		DatabaseURL: env.String("DATABASE_URL", env.DefaultDatabaseURL),
		Customers:   env.Int("SIM_CUSTOMERS", 20),
		Vendors:     env.Int("SIM_VENDORS", 5),
		Drivers:     env.Int("SIM_DRIVERS", 8),
		Orders:      env.Int("SIM_ORDERS", 30),
		StepDelay:   env.Duration("SIM_STEP_DELAY", 500*time.Millisecond),
		RefundRate:  float64(env.Int("SIM_REFUND_PERCENT", 10)) / 100,
	}

	pool, err := dbpool.New(runCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot create database pool")
	}
	defer pool.Close()

	dirRepo := directory.NewPostgresRepository(pool)
	orderRepo := orders.NewPostgresRepository(pool)
	if err := dirRepo.EnsureSchema(runCtx); err != nil {
		logger.Fatal().Err(err).Msg("user schema not ready")
	}
	if err := orderRepo.EnsureSchema(runCtx); err != nil {
		logger.Fatal().Err(err).Msg("order schema not ready")
	}

	client, err := natsutil.ConnectJetStreamWithRetry(cfg.NATSURL, 20*time.Second)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot connect to jetstream")
	}
	defer client.Close()
	publisher := natsutil.JetStreamPublisher{JS: client.JS}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	users := seedUsers(runCtx, logger, dirRepo, cfg)
	logger.Info().Int("users", users.count()).Msg("user directory seeded")

	sim := simulator{
		cfg:       cfg,
		rng:       rng,
		logger:    logger,
		orderRepo: orderRepo,
		publish:   publisher.Publish,
	}
	sim.run(runCtx, users)
}

type seededUsers struct {
	Customers []string
	Vendors   []string
	Drivers   []string
}

func (s seededUsers) count() int { return len(s.Customers) + len(s.Vendors) + len(s.Drivers) }

func seedUsers(ctx context.Context, logger zerolog.Logger, repo *directory.PostgresRepository, cfg config) seededUsers {
	var users seededUsers
	add := func(prefix, role string, n int, out *[]string) {
		for i := 1; i <= n; i++ {
			uid := fmt.Sprintf("%s-%d", prefix, i)
			token := fmt.Sprintf("ExponentPushToken[sim-%s]", uid)
			if i%5 == 0 {
				// Every fifth user has no registered device.
				token = ""
			}
			u := contracts.User{
				ID:          uid,
				Role:        role,
				DisplayName: fmt.Sprintf("%s %d", prefix, i),
				PushToken:   token,
			}
			if err := repo.UpsertUser(ctx, u); err != nil {
				logger.Error().Err(err).Str("uid", uid).Msg("user seed failed")
				continue
			}
			*out = append(*out, uid)
		}
	}
	add("customer", contracts.RoleRegularUser, cfg.Customers, &users.Customers)
	add("vendor", contracts.RoleVendor, cfg.Vendors, &users.Vendors)
	add("driver", contracts.RoleDriver, cfg.Drivers, &users.Drivers)
	return users
}

type simulator struct {
	cfg       config
	rng       *rand.Rand
	logger    zerolog.Logger
	orderRepo *orders.PostgresRepository
	publish   func(subject string, payload []byte) error
}

func (s *simulator) run(ctx context.Context, users seededUsers) {
	if users.count() == 0 {
		s.logger.Fatal().Msg("no users seeded, nothing to simulate")
	}

	published := 0
	for i := 1; i <= s.cfg.Orders; i++ {
		if ctx.Err() != nil {
			break
		}
		order := contracts.Order{
			ID:              "order-" + nuid.Next(),
			Status:          contracts.StatusCart,
			VendorID:        pick(s.rng, users.Vendors),
			CustomerID:      pick(s.rng, users.Customers),
			ItemDescription: pick(s.rng, menu),
			CreatedAt:       time.Now().UTC(),
		}
		published += s.walkLifecycle(ctx, order, users)
	}
	s.logger.Info().Int("orders", s.cfg.Orders).Int("changes", published).Msg("simulation complete")
}

func (s *simulator) walkLifecycle(ctx context.Context, order contracts.Order, users seededUsers) int {
	published := 0
	s.record(ctx, contracts.ChangeAdded, order)
	published++

	steps := []string{contracts.StatusPending, contracts.StatusPackaged, contracts.StatusDispatched, contracts.StatusCompleted}
	refund := s.rng.Float64() < s.cfg.RefundRate
	for _, status := range steps {
		if ctx.Err() != nil {
			return published
		}
		time.Sleep(s.cfg.StepDelay)

		if refund && (status == contracts.StatusDispatched || status == contracts.StatusCompleted) {
			order.Status = contracts.StatusRefunded
			s.record(ctx, contracts.ChangeModified, order)
			return published + 1
		}

		now := time.Now().UTC()
		order.Status = status
		switch status {
		case contracts.StatusPackaged:
			order.PackagedAt = &now
		case contracts.StatusDispatched:
			order.DriverID = pick(s.rng, users.Drivers)
			order.DispatchedAt = &now
		case contracts.StatusCompleted:
			order.CompletedAt = &now
		}
		s.record(ctx, contracts.ChangeModified, order)
		published++
	}
	return published
}

func (s *simulator) record(ctx context.Context, changeType string, order contracts.Order) {
	if err := s.orderRepo.UpsertOrder(ctx, order); err != nil {
		s.logger.Error().Err(err).Str("order_id", order.ID).Msg("order upsert failed")
	}

	change := contracts.OrderChange{
		ChangeID:   nuid.Next(),
		Type:       changeType,
		Order:      order,
		ObservedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(change)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", order.ID).Msg("change marshal failed")
		return
	}
	if err := s.publish(sharding.ChangeSubject(order.ID), payload); err != nil {
		s.logger.Error().Err(err).Str("order_id", order.ID).Msg("change publish failed")
		return
	}
	s.logger.Debug().Str("order_id", order.ID).Str("status", order.Status).Str("type", changeType).Msg("change published")
}

func pick(rng *rand.Rand, values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[rng.Intn(len(values))]
}

package dbpool

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/schoolchow/notifier/internal/platform/env"
)

// Settings bound the pool. The notifier holds few long-lived queries, so the
// connection cap stays small; cohort fan-out reads burst but finish fast.
type Settings struct {
	MinConns          int
	MaxConns          int
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// FromEnv reads pool settings with sane defaults, clamping inconsistent
// values instead of failing startup.
func FromEnv() Settings {
	s := Settings{
		MinConns:          env.Int("DB_MIN_CONNS", 2),
		MaxConns:          env.Int("DB_MAX_CONNS", 10),
		MaxConnLifetime:   env.Duration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
		MaxConnIdleTime:   env.Duration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
		HealthCheckPeriod: env.Duration("DB_HEALTH_CHECK_PERIOD", 30*time.Second),
	}
	if s.MinConns < 0 {
		s.MinConns = 0
	}
	if s.MaxConns <= 0 {
		s.MaxConns = 10
	}
	if s.MinConns > s.MaxConns {
		s.MinConns = s.MaxConns
	}
	return s
}

// New builds a pgx pool for the given URL using env-driven settings.
func New(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	s := FromEnv()
	cfg.MinConns = int32(s.MinConns)
	cfg.MaxConns = int32(s.MaxConns)
	cfg.MaxConnLifetime = s.MaxConnLifetime
	cfg.MaxConnIdleTime = s.MaxConnIdleTime
	cfg.HealthCheckPeriod = s.HealthCheckPeriod

	return pgxpool.NewWithConfig(ctx, cfg)
}

package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/wolfman30/salon-scheduler/internal/actions"
	"github.com/wolfman30/salon-scheduler/internal/api/router"
	"github.com/wolfman30/salon-scheduler/internal/appointments"
	"github.com/wolfman30/salon-scheduler/internal/audit"
	appconfig "github.com/wolfman30/salon-scheduler/internal/config"
	"github.com/wolfman30/salon-scheduler/internal/dayrate"
	"github.com/wolfman30/salon-scheduler/internal/events"
	"github.com/wolfman30/salon-scheduler/internal/possync"
	"github.com/wolfman30/salon-scheduler/pkg/logging"
)

// Stores groups the persistence backends chosen at startup. Outbox and
// Audit are nil for the in-memory backend.
type Stores struct {
	Appointments appointments.Store
	ExternalIDs  possync.ExternalIDWriter
	DayRate      dayrate.Store
	Actions      actions.Store
	Outbox       *events.OutboxStore
	Audit        *audit.Service
	HealthChecks map[string]router.HealthCheck

	close func()
}

// Close releases database handles.
func (s *Stores) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}

// BuildStores connects to Postgres, or falls back to in-memory stores when
// USE_MEMORY_STORE is set or no DATABASE_URL is configured.
func BuildStores(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Stores, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.UseMemoryStore || cfg.DatabaseURL == "" {
		logger.Warn("using in-memory stores; data is lost on restart")
		return memoryStores(), nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	sqlDB := stdlib.OpenDBFromPool(pool)

	appts := appointments.NewPostgresStore(pool)
	return &Stores{
		Appointments: appts,
		ExternalIDs:  appts,
		DayRate:      dayrate.NewPostgresStore(pool),
		Actions:      actions.NewPostgresStore(pool),
		Outbox:       events.NewOutboxStore(pool),
		Audit:        audit.NewService(sqlDB),
		HealthChecks: map[string]router.HealthCheck{"postgres": pool.Ping},
		close: func() {
			_ = sqlDB.Close()
			pool.Close()
		},
	}, nil
}

func memoryStores() *Stores {
	appts := appointments.NewMemoryStore()
	return &Stores{
		Appointments: appts,
		ExternalIDs:  appts,
		DayRate:      dayrate.NewMemoryStore(),
		Actions:      actions.NewMemoryStore(),
		HealthChecks: map[string]router.HealthCheck{},
	}
}


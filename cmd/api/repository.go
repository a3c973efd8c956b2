package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/checkout"
	"github.com/noah-isme/toko-checkout/internal/config"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/health"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/promotion"
	"github.com/noah-isme/toko-checkout/internal/repo"
	"github.com/noah-isme/toko-checkout/internal/repo/mysqlstore"
)

// repository is the persistence surface every service is built on. Both the
// Postgres and the MySQL store satisfy it.
type repository interface {
	catalog.StoreReader
	checkout.Repository
	checkout.ReconcileRepository
	order.Repository
	promotion.Repository
	events.EventStore
}

type openedRepository struct {
	repository
	check health.Check
	close func()
}

func openRepository(ctx context.Context, cfg *config.Config, logger zerolog.Logger) openedRepository {
	switch cfg.DBDriver {
	case config.DriverMySQL:
		return openMySQL(cfg, logger)
	default:
		return openPostgres(ctx, cfg, logger)
	}
}

func openPostgres(ctx context.Context, cfg *config.Config, logger zerolog.Logger) openedRepository {
	if cfg.MigrateOnStart {
		if err := repo.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "toko-checkout"
	if n := envInt("DB_MAX_CONNS", 0); n > 0 {
		poolConfig.MaxConns = int32(n)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	caps, err := repo.Probe(ctx, pool, cfg.PromotionScopeMode)
	if err != nil {
		logger.Fatal().Err(err).Msg("probe schema capabilities")
	}
	logger.Info().Str("promotion_scope", string(caps.PromotionScope)).Bool("show_timer", caps.ShowTimer).Msg("schema capabilities")

	return openedRepository{
		repository: repo.New(pool, caps),
		check:      health.Check{Name: "db", Probe: pool.Ping, Critical: true},
		close:      pool.Close,
	}
}

func openMySQL(cfg *config.Config, logger zerolog.Logger) openedRepository {
	if cfg.PromotionScopeMode == "column" {
		logger.Warn().Msg("mysql store always scopes promotions by applies_to; ignoring PROMOTION_SCOPE_MODE=column")
	}
	db, err := mysqlstore.Open(cfg.MySQLDSN, cfg.MigrateOnStart, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open mysql")
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal().Err(err).Msg("mysql connection pool")
	}
	return openedRepository{
		repository: mysqlstore.New(db),
		check:      health.Check{Name: "db", Probe: sqlDB.PingContext, Critical: true},
		close: func() {
			if err := sqlDB.Close(); err != nil {
				logger.Error().Err(err).Msg("close mysql")
			}
		},
	}
}

package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/biodata-connect/internal/config"
	"github.com/iliyamo/biodata-connect/internal/database"
	"github.com/iliyamo/biodata-connect/internal/logger"
	"github.com/iliyamo/biodata-connect/internal/repository"
)

// app holds what every command needs: configuration, the database and the
// repositories on top of it.
type app struct {
	cfg      config.Config
	db       *sql.DB
	users    *repository.UserRepo
	tokens   *repository.TokenRepo
	biodata  *repository.BiodataRepo
	conns    *repository.ConnectionRepo
	views    *repository.ProfileViewRepo
	payments *repository.PaymentRepo
}

// bootstrap loads configuration, sets up logging, opens the database and
// applies pending migrations.
func bootstrap(ctx context.Context) (*app, error) {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.Migrate(ctx, db, cfg.DBDriver); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &app{
		cfg:      cfg,
		db:       db,
		users:    repository.NewUserRepo(db, cfg.DBDriver),
		tokens:   repository.NewTokenRepo(db),
		biodata:  repository.NewBiodataRepo(db, cfg.DBDriver),
		conns:    repository.NewConnectionRepo(db),
		views:    repository.NewProfileViewRepo(db),
		payments: repository.NewPaymentRepo(db),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		log.Warn().Err(err).Msg("close database")
	}
}

// redisClient returns the shared Redis client, or nil when Redis is not
// reachable and every Redis-backed feature is off.
func redisClient() *redis.Client {
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn().Msg("redis unavailable: rate limiting, response cache and view guard disabled")
	}
	return rdb
}

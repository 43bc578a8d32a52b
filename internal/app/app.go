package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"hamasa/internal/config"
	"hamasa/internal/db"
	"hamasa/internal/domain"
	"hamasa/internal/engine"
	"hamasa/internal/engine/auth"
	"hamasa/internal/logging"
	"hamasa/internal/metrics"
	"hamasa/internal/migrate"
)

// System is the principal bootstrap work runs as. It never exists in storage
// and no token carries it.
var System = auth.Principal{ID: "system", Role: domain.RoleSuperAdmin, UserType: domain.UserTypeStaff, Source: "system"}

// Runtime holds an opened database and the engine wired on top of it.
type Runtime struct {
	DB      *sql.DB
	Engine  engine.Engine
	Config  *config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

// Open opens the configured database, applies pending migrations and wires an engine.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Runtime, error) {
	log = logging.Or(log)
	conn, err := db.Open(db.Config{Path: cfg.Database.Path})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	version, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug("database ready", zap.String("path", cfg.Database.Path), zap.Int("schema_version", version))
	m := metrics.New()
	e := engine.New(conn, cfg, log)
	e.Metrics = m
	return &Runtime{DB: conn, Engine: e, Config: cfg, Log: log, Metrics: m}, nil
}

func (r *Runtime) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

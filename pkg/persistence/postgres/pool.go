// Package postgres is the canonical, server-side operation log: the
// durable, ordered record of every operation a server replica has accepted,
// backing the Push/Pull sync contract described in spec.md §6.
package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/carrysync/carry/pkg/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Pool wraps a pgxpool.Pool with the logging/health conventions the rest of
// carry uses.
type Pool struct {
	pool   *pgxpool.Pool
	cfg    Config
	logger zerolog.Logger
}

// Open connects to Postgres and runs pending goose migrations.
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	logger := log.WithComponent("postgres")

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pgxPool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pgxPool.Ping(connectCtx); err != nil {
		pgxPool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	p := &Pool{pool: pgxPool, cfg: cfg, logger: logger}
	if err := p.migrate(); err != nil {
		pgxPool.Close()
		return nil, err
	}

	logger.Info().Str("host", cfg.Host).Str("database", cfg.Database).Msg("connected to postgres")
	return p, nil
}

func (p *Pool) migrate() error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}

	db, err := goose.OpenDBWithDriver("pgx", p.cfg.DSN())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (p *Pool) Close() {
	p.pool.Close()
}

// Ping checks connectivity to the database.
func (p *Pool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

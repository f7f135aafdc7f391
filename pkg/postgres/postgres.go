package postgres

import (
	"context"
	"database/sql"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

type DB struct {
	// DSN is filled from the backend url.
	DSN            string        `json:"-" ignored:"true"`
	MaxConns       int32         `yaml:"maxConns" envconfig:"DB_MAX_CONNS" default:"10"`
	ConnectTimeout time.Duration `yaml:"connectTimeout" envconfig:"DB_CONNECT_TIMEOUT" default:"5s"`
}

// NewPostgresDB opens a pool and, when migrations are given, brings the
// schema up to date.
func NewPostgresDB(ctx context.Context, cfg *DB, migrations fs.FS) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "parse dsn")
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, errors.Wrap(err, "pgxpool.NewWithConfig")
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping")
	}
	if migrations != nil {
		if err = MigrateUp(pool, migrations); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return pool, nil
}

func MigrateUp(pool *pgxpool.Pool, migrations fs.FS) error {
	return migrate(pool, migrations, goose.Up)
}

func MigrateDown(pool *pgxpool.Pool, migrations fs.FS) error {
	return migrate(pool, migrations, goose.Down)
}

func migrate(pool *pgxpool.Pool, migrations fs.FS, run func(db *sql.DB, dir string, opts ...goose.OptionsFunc) error) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "goose.SetDialect")
	}
	db := openDB(pool)
	defer db.Close()
	if err := run(db, "."); err != nil {
		return errors.Wrap(err, "goose migrate")
	}
	return nil
}

// openDB opens a database/sql handle with the connection settings of pool.
func openDB(pool *pgxpool.Pool) *sql.DB {
	return stdlib.OpenDB(*pool.Config().ConnConfig)
}

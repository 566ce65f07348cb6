// Package db opens connections to the catalog database.
package db

import (
	"context"
	"fmt"

	"github.com/ecsol/cars-numberplate-inference/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ApplicationName is reported to Postgres for every catalog connection.
const ApplicationName = "platemask"

// Conn is an open catalog connection.
type Conn struct {
	DB    *gorm.DB
	close func()
}

// Close releases the connection pool.
func (c *Conn) Close() {
	if c != nil && c.close != nil {
		c.close()
	}
}

// Connect opens a GORM connection for the configured catalog driver.
// Postgres goes through a pgx pool so pool sizing and statement timeouts
// apply; mysql and sqlite use the plain GORM drivers.
func Connect(ctx context.Context, cfg config.CatalogConfig) (*Conn, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db: catalog dsn is required")
	}
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	switch cfg.Driver {
	case config.DriverPostgres:
		return connectPostgres(ctx, cfg, gcfg)
	case config.DriverMySQL:
		gdb, err := gorm.Open(mysql.Open(cfg.DSN), gcfg)
		if err != nil {
			return nil, fmt.Errorf("db: connect mysql: %w", err)
		}
		return wrap(gdb), nil
	case config.DriverSQLite:
		gdb, err := gorm.Open(sqlite.Open(cfg.DSN), gcfg)
		if err != nil {
			return nil, fmt.Errorf("db: connect sqlite %s: %w", cfg.DSN, err)
		}
		return wrap(gdb), nil
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
	}
}

func connectPostgres(ctx context.Context, cfg config.CatalogConfig, gcfg *gorm.Config) (*Conn, error) {
	pc, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("db: connect postgres: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping postgres: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gcfg)
	if err != nil {
		sqlDB.Close()
		pool.Close()
		return nil, fmt.Errorf("db: open gorm over pgx: %w", err)
	}
	return &Conn{DB: gdb, close: func() {
		sqlDB.Close()
		pool.Close()
	}}, nil
}

// PoolConfig builds the pgx pool configuration for a catalog config.
func PoolConfig(cfg config.CatalogConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("db: parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	pc.ConnConfig.RuntimeParams["application_name"] = ApplicationName
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds())
	}
	return pc, nil
}

func wrap(gdb *gorm.DB) *Conn {
	return &Conn{DB: gdb, close: func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	}}
}

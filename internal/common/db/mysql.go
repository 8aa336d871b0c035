package db

import (
	"context"
	"database/sql"
	"time"

	appErr "neurojudge/pkg/errors"

	_ "github.com/go-sql-driver/mysql"
)

const pingTimeout = 5 * time.Second

// MySQLConfig configures the status table connection pool.
// Zero values fall back to small-pool defaults suited to a single evaluator.
type MySQLConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	ConnMaxIdleTime time.Duration `yaml:"connMaxIdleTime"`
}

func (c MySQLConfig) withDefaults() MySQLConfig {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 4
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 2
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = 10 * time.Minute
	}
	return c
}

// MySQL is a Database over a database/sql pool.
type MySQL struct {
	pool *sql.DB
}

// OpenMySQL opens the pool and verifies the server is reachable.
func OpenMySQL(ctx context.Context, cfg MySQLConfig) (*MySQL, error) {
	if cfg.DSN == "" {
		return nil, appErr.ConfigError("database.dsn", "required when status.driver is mysql")
	}
	cfg = cfg.withDefaults()

	pool, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "open mysql failed")
	}
	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	m := &MySQL{pool: pool}
	if err := m.Ping(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return m, nil
}

// *sql.Rows, *sql.Row and sql.Result already satisfy Rows, Row and Result.

func (m *MySQL) Query(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	rows, err := m.pool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (m *MySQL) QueryRow(ctx context.Context, query string, args ...interface{}) Row {
	return m.pool.QueryRowContext(ctx, query, args...)
}

func (m *MySQL) Exec(ctx context.Context, query string, args ...interface{}) (Result, error) {
	res, err := m.pool.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (m *MySQL) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := m.pool.PingContext(ctx); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "ping mysql failed")
	}
	return nil
}

func (m *MySQL) Close() error {
	return m.pool.Close()
}

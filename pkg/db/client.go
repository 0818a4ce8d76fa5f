package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/molimor/molimor-backend/pkg/config"
	"github.com/molimor/molimor-backend/pkg/logger"
	"github.com/molimor/molimor-backend/pkg/telemetry"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var errDSNRequired = errors.New("database DSN is required")

// Client owns the shared gorm handle for a process.
type Client struct {
	conn *gorm.DB
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// New opens the configured database. useSQLite overrides cfg.Driver for local runs.
func New(ctx context.Context, cfg config.DBConfig, useSQLite bool, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, errDSNRequired
	}
	driver := resolveDriver(cfg.Driver, useSQLite)
	dialector, err := openDialector(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newQueryLogger(logg, cfg.SlowQuery),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", driver, err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	tunePool(sqlDB, cfg)

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"driver":         driver,
			"max_open_conns": cfg.MaxOpenConns,
		}), "database connection established")
	}
	return &Client{conn: conn}, nil
}

func resolveDriver(configured string, useSQLite bool) string {
	if useSQLite {
		return DriverSQLite
	}
	driver := strings.ToLower(strings.TrimSpace(configured))
	if driver == "" {
		return DriverPostgres
	}
	return driver
}

// Postgres goes through the otelsql-wrapped pool so queries show up as spans.
func openDialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverPostgres:
		pool, err := telemetry.OpenPostgres(dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres pool: %w", err)
		}
		return postgres.New(postgres.Config{Conn: pool, PreferSimpleProtocol: true}), nil
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

func tunePool(pool *sql.DB, cfg config.DBConfig) {
	if n := cfg.MaxOpenConns; n > 0 {
		pool.SetMaxOpenConns(n)
	}
	if n := cfg.MaxIdleConns; n > 0 {
		pool.SetMaxIdleConns(n)
	}
	if d := cfg.ConnMaxLifetime; d > 0 {
		pool.SetConnMaxLifetime(d)
	}
	if d := cfg.ConnMaxIdleTime; d > 0 {
		pool.SetConnMaxIdleTime(d)
	}
}

// NewFromGorm wraps an open handle. Tests use it with sqlite.
func NewFromGorm(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

func (c *Client) DB() *gorm.DB { return c.conn }

// SQL is the pooled handle goose runs migrations on.
func (c *Client) SQL() (*sql.DB, error) { return c.conn.DB() }

// Dialect is "postgres" or "sqlite".
func (c *Client) Dialect() string { return c.conn.Dialector.Name() }

func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func (c *Client) Close() error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// WithTx commits when fn returns nil and rolls back on an error or a panic.
// The panic is re-raised after the rollback.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}

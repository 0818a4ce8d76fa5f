// Package migrate applies the embedded goose migrations.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
)

// Dir is the migrations directory inside the embedded filesystem.
const Dir = "migrations"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Applied describes one migration a command ran.
type Applied struct {
	Version   int64
	File      string
	Direction string
	Duration  time.Duration
}

// State is one row of `status` output.
type State struct {
	Version   int64
	File      string
	Applied   bool
	AppliedAt time.Time
}

func gooseDialect(dialect string) goose.Dialect {
	if dialect == "sqlite" {
		return goose.DialectSQLite3
	}
	return goose.DialectPostgres
}

func newProvider(db *sql.DB, dialect string) (*goose.Provider, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	fsys, err := fs.Sub(migrationsFS, Dir)
	if err != nil {
		return nil, err
	}
	p, err := goose.NewProvider(gooseDialect(dialect), db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return p, nil
}

// Up applies every pending migration.
func Up(ctx context.Context, db *sql.DB, dialect string) ([]Applied, error) {
	p, err := newProvider(db, dialect)
	if err != nil {
		return nil, err
	}
	results, err := p.Up(ctx)
	if err != nil {
		return applied(results), fmt.Errorf("goose up: %w", err)
	}
	return applied(results), nil
}

// Down rolls back the newest applied migration.
func Down(ctx context.Context, db *sql.DB, dialect string) ([]Applied, error) {
	p, err := newProvider(db, dialect)
	if err != nil {
		return nil, err
	}
	result, err := p.Down(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose down: %w", err)
	}
	return applied([]*goose.MigrationResult{result}), nil
}

// Status lists every embedded migration and whether it has been applied.
func Status(ctx context.Context, db *sql.DB, dialect string) ([]State, error) {
	p, err := newProvider(db, dialect)
	if err != nil {
		return nil, err
	}
	rows, err := p.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	out := make([]State, 0, len(rows))
	for _, row := range rows {
		out = append(out, State{
			Version:   row.Source.Version,
			File:      row.Source.Path,
			Applied:   row.State == goose.StateApplied,
			AppliedAt: row.AppliedAt,
		})
	}
	return out, nil
}

// MigrateToVersion moves the schema up or down until it sits at target, a
// YYYYMMDDHHMMSS version.
func MigrateToVersion(ctx context.Context, db *sql.DB, dialect string, target string) ([]Applied, error) {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil || version <= 0 {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", target)
	}
	p, err := newProvider(db, dialect)
	if err != nil {
		return nil, err
	}
	current, err := p.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == version:
		return nil, nil
	case current < version:
		results, err = p.UpTo(ctx, version)
	default:
		results, err = p.DownTo(ctx, version)
	}
	if err != nil {
		return applied(results), fmt.Errorf("migrate %d -> %d: %w", current, version, err)
	}
	return applied(results), nil
}

func applied(results []*goose.MigrationResult) []Applied {
	out := make([]Applied, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		out = append(out, Applied{
			Version:   r.Source.Version,
			File:      r.Source.Path,
			Direction: r.Direction,
			Duration:  r.Duration,
		})
	}
	return out
}

package telemetry

import (
	"database/sql"

	"github.com/XSAM/otelsql"
	_ "github.com/jackc/pgx/v5/stdlib"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OpenPostgres opens a traced pgx pool handle that gorm wraps.
func OpenPostgres(dsn string) (*sql.DB, error) {
	return otelsql.Open("pgx", dsn,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
}

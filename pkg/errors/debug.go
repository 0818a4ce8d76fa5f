package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// maxChainDepth bounds how many unwrap steps end up in a log line.
const maxChainDepth = 8

// ErrorDump is the log-side view of a failure. It never reaches clients.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`
	Retryable  bool   `json:"retryable"`

	Chain     []string `json:"chain,omitempty"`
	Truncated bool     `json:"truncated,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
		d.Retryable = MetadataFor(te.Code()).Retryable
	}

	// wrappers that add no text are skipped so the chain shows each hop once
	prev := ""
	for e := err; e != nil; e = errors.Unwrap(e) {
		msg := e.Error()
		if msg == prev {
			continue
		}
		prev = msg
		if len(d.Chain) == maxChainDepth {
			d.Truncated = true
			break
		}
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %s", e, msg))
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		d.PGCode = pgxErr.Code
		d.PGConstraint = pgxErr.ConstraintName
		d.PGTable = pgxErr.TableName
		d.PGColumn = pgxErr.ColumnName
		d.PGDetail = pgxErr.Detail
		d.PGMessage = pgxErr.Message
	case errors.As(err, &pqErr):
		d.PGCode = string(pqErr.Code)
		d.PGConstraint = pqErr.Constraint
		d.PGTable = pqErr.Table
		d.PGColumn = pqErr.Column
		d.PGDetail = pqErr.Detail
		d.PGMessage = pqErr.Message
	}
	return d
}

// Fields flattens the dump into log fields, leaving out empty Postgres
// attributes.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":           d.TopMessage,
		"error_code":      string(d.Code),
		"error_retryable": d.Retryable,
		"error_chain":     d.Chain,
	}
	if d.Truncated {
		fields["error_chain_truncated"] = true
	}
	for key, value := range map[string]string{
		"pg_code":       d.PGCode,
		"pg_constraint": d.PGConstraint,
		"pg_table":      d.PGTable,
		"pg_column":     d.PGColumn,
		"pg_detail":     d.PGDetail,
		"pg_message":    d.PGMessage,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}

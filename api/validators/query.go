package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/molimor/molimor-backend/pkg/errors"
)

const dateOnlyLayout = "2006-01-02"

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.Field(key, "query parameter must be numeric")
	}
	if value < min || value > max {
		return 0, pkgerrors.Field(key, "query parameter out of range", map[string]any{"min": min, "max": max})
	}
	return value, nil
}

// ParseQueryTime accepts RFC3339 timestamps or bare YYYY-MM-DD dates (UTC midnight).
func ParseQueryTime(r *http.Request, key string) (*time.Time, error) {
	ts, _, err := parseQueryTime(r, key)
	return ts, err
}

// ParseQueryEndTime is ParseQueryTime for inclusive upper bounds: a bare date
// covers the whole day, so it resolves to that day's last microsecond.
func ParseQueryEndTime(r *http.Request, key string) (*time.Time, error) {
	ts, dateOnly, err := parseQueryTime(r, key)
	if err != nil || ts == nil || !dateOnly {
		return ts, err
	}
	// Postgres timestamps stop at microseconds.
	end := ts.AddDate(0, 0, 1).Add(-time.Microsecond)
	return &end, nil
}

func parseQueryTime(r *http.Request, key string) (*time.Time, bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, false, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts, false, nil
	}
	ts, err := time.Parse(dateOnlyLayout, raw)
	if err != nil {
		return nil, false, pkgerrors.Field(key, "query parameter must be a date",
			map[string]any{"formats": []string{time.RFC3339, dateOnlyLayout}})
	}
	return &ts, true, nil
}

func ParseQueryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.Field(key, "query parameter must be a uuid")
	}
	return &id, nil
}

package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/molimor/molimor-backend/api/responses"
	"github.com/molimor/molimor-backend/pkg/config"
	pkgerrors "github.com/molimor/molimor-backend/pkg/errors"
	"github.com/molimor/molimor-backend/pkg/logger"
)

const readyTimeout = 2 * time.Second

// Dependency is a named backing service checked by the readiness probe.
type Dependency struct {
	Name   string
	Pinger interface {
		Ping(ctx context.Context) error
	}
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Molimor-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency and fails with 503 on the first outage.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps ...Dependency) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Molimor-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := make(map[string]string, len(deps))
		for _, dep := range deps {
			if dep.Pinger == nil {
				continue
			}
			if err := dep.Pinger.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, dep.Name+" unavailable"))
				return
			}
			checks[dep.Name] = "ok"
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}

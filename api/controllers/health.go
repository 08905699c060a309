package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/mpsync/api/responses"
	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
	"github.com/angelmondragon/mpsync/pkg/logger"
)

// Pinger is anything the readiness probe can check.
type Pinger interface {
	Ping(context.Context) error
}

const readyTimeout = 3 * time.Second

func HealthLive(env string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"status": "ok", "env": env})
	}
}

// HealthReady pings every dependency. Nil pingers are skipped.
func HealthReady(logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := make(map[string]string, len(deps))
		failed := false
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				failed = true
				checks[name] = err.Error()
				continue
			}
			checks[name] = "ok"
		}
		if failed {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependency not ready").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}

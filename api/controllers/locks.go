package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/mpsync/api/responses"
	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
	"github.com/angelmondragon/mpsync/pkg/lock"
	"github.com/angelmondragon/mpsync/pkg/logger"
)

// LockReader returns the state of a named lock.
type LockReader func(ctx context.Context, name string) (lock.State, error)

func LockState(read LockReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSpace(chi.URLParam(r, "name"))
		if name == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "lock name required"))
			return
		}
		state, err := read(r.Context(), name)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, state)
	}
}

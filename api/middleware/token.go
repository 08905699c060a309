package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/angelmondragon/mpsync/api/responses"
	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
	"github.com/angelmondragon/mpsync/pkg/logger"
)

const tokenHeader = "X-MPS-Token"

// Token rejects requests that do not carry the shared operator token. An
// empty token leaves the routes open, which is only meant for local runs.
func Token(expected string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if expected == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimSpace(r.Header.Get(tokenHeader))
			if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeBadCredential, "operator token required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

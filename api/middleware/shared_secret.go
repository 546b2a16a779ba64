package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// PaymentSecretHeader carries the shared secret of the payment adapter.
const PaymentSecretHeader = "X-Payment-Secret"

// SharedSecret admits only callers presenting the configured secret. An empty
// secret rejects everything.
func SharedSecret(header, secret string, logg *logger.Logger) func(http.Handler) http.Handler {
	expected := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := []byte(strings.TrimSpace(r.Header.Get(header)))
			if len(expected) == 0 || subtle.ConstantTimeCompare(provided, expected) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid callback credentials"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

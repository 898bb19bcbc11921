package handler

import (
	"net/http"
	"strings"

	"github.com/boddenberg/payping-sync-go/internal/identity"

	"go.uber.org/zap"
)

// SessionMiddleware adopts a Bearer token presented on a request as the
// gate's session when it differs from the current one. Requests without a
// token go through unchanged; the gateway rejects them if nobody is signed in.
func SessionMiddleware(gate *identity.Gate, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			token := parts[1]
			if sess, ok := gate.Session(); ok && sess.AccessToken == token {
				next.ServeHTTP(w, r)
				return
			}
			if _, err := gate.SetSession(token); err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

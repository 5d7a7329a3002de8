package middleware

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/gst3d/pushserver/internal/auth"
	"github.com/gst3d/pushserver/pkg/response"
)

// AuthMiddleware rejects requests without a configured bearer credential.
// A missing or malformed header is 401; an unknown credential is 403.
func AuthMiddleware(tokens *auth.StaticTokens, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.ExtractBearer(r.Header.Get("Authorization"))
			if err != nil {
				response.Unauthorized(w, "missing or malformed authorization header")
				return
			}

			if err := tokens.Verify(token); err != nil {
				if errors.Is(err, auth.ErrInvalidToken) {
					logger.Warn("rejected bearer credential",
						zap.String("path", r.URL.Path),
						zap.String("ip", ClientIP(r)),
					)
					response.Forbidden(w, "invalid token")
					return
				}
				response.Unauthorized(w, "missing or malformed authorization header")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/dseinapp/dsein-server/internal/domain"
	domainerrors "github.com/dseinapp/dsein-server/internal/errors"
	"github.com/dseinapp/dsein-server/internal/http/response"
	"github.com/dseinapp/dsein-server/internal/logger"
)

type callerKey struct{}

// GetUserID returns the caller identified by the gateway, or UNAUTHORIZED.
func GetUserID(ctx context.Context) (string, error) {
	if id, _ := ctx.Value(callerKey{}).(string); id != "" {
		return id, nil
	}
	return "", domainerrors.Unauthorized("Authentication required")
}

func setUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, callerKey{}, userID)
}

// identityMiddleware trusts the user id the gateway puts in header. Credentials
// are checked upstream; this server only sees the verified id. A missing header
// continues anonymously and handlers use GetUserID to reject. A malformed id
// is rejected here.
func (s *Server) identityMiddleware(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(header))
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !domain.ValidID(userID) {
				response.Unauthorized(w, "Invalid identity header", s.logger)
				return
			}

			ctx := setUserID(r.Context(), userID)
			ctx = logger.IntoContext(ctx, s.logger.With("user_id", userID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// userIDFromRequest adapts the identity middleware for the SSE handler.
func userIDFromRequest(r *http.Request) (string, bool) {
	userID, err := GetUserID(r.Context())
	return userID, err == nil
}

// RequireAdmin returns the caller when they are listed in AUTH_ADMIN_USER_IDS.
func (s *Server) RequireAdmin(ctx context.Context) (string, error) {
	userID, err := GetUserID(ctx)
	switch {
	case err != nil:
		return "", err
	case s.cfg == nil || !s.cfg.IsAdmin(userID):
		return "", domainerrors.Forbidden("Admin access required")
	}
	return userID, nil
}

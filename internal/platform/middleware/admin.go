package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "bountydesk/pkg/domain"
)

// AdminTokenValidator validates an administrator bearer token and returns the
// admin identity it carries.
type AdminTokenValidator interface {
	ValidateAdminToken(tokenString string) (id.AdminID, error)
}

type contextKeyAdminID struct{}

// GetAdminID retrieves the authenticated administrator ID from the context.
func GetAdminID(ctx context.Context) id.AdminID {
	if adminID, ok := ctx.Value(contextKeyAdminID{}).(id.AdminID); ok {
		return adminID
	}
	return id.AdminID{}
}

// WithAdminID injects an admin identity into a context.
// Useful for handler tests that don't run the full middleware chain.
func WithAdminID(ctx context.Context, adminID id.AdminID) context.Context {
	return context.WithValue(ctx, contextKeyAdminID{}, adminID)
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAdmin authenticates administrator requests via a bearer token and
// places the admin ID in the request context for handlers and audit.
func RequireAdmin(validator AdminTokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "admin bearer token required")
				return
			}

			adminID, err := validator.ValidateAdminToken(strings.TrimPrefix(authHeader, bearerPrefix))
			if err != nil {
				logger.WarnContext(r.Context(), "admin token rejected",
					"request_id", GetRequestID(r.Context()),
					"error", err,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid admin token")
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyAdminID{}, adminID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

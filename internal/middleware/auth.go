package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aislide/aislide-bot/internal/pkg/jwt"
	"github.com/aislide/aislide-bot/internal/pkg/response"
)

type contextKey string

const (
	AdminIDKey  contextKey = "admin_id"
	UsernameKey contextKey = "admin_username"
)

// Auth returns middleware that validates admin JWTs. Browsers cannot set
// headers on websocket upgrades, so a token query parameter is accepted too.
func Auth(jwtService *jwt.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.URL.Query().Get("token")

			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				parts := strings.Split(authHeader, " ")
				if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
					response.Unauthorized(w, "Invalid authorization header format")
					return
				}
				token = parts[1]
			}
			if token == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			claims, err := jwtService.ValidateAccessToken(token)
			if err != nil {
				if errors.Is(err, jwt.ErrExpiredToken) {
					response.Unauthorized(w, "Token expired")
				} else {
					response.Unauthorized(w, "Invalid token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), AdminIDKey, claims.AdminID)
			ctx = context.WithValue(ctx, UsernameKey, claims.Username)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAdminID extracts the admin id from context. 0 is the console account.
func GetAdminID(ctx context.Context) int64 {
	if id, ok := ctx.Value(AdminIDKey).(int64); ok {
		return id
	}
	return 0
}

// GetUsername extracts the admin username from context
func GetUsername(ctx context.Context) string {
	if name, ok := ctx.Value(UsernameKey).(string); ok {
		return name
	}
	return ""
}

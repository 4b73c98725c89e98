package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/platanos-shop/storefront/internal/auth"
)

type contextKey string

const claimsKey contextKey = "claims"

// Authenticate requires a bearer operator token and stores its claims in
// the request context.
func Authenticate(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, msg := bearerToken(r)
			if msg != "" {
				writeError(w, http.StatusUnauthorized, msg)
				return
			}

			claims, err := auth.ValidateToken(jwtSecret, tokenStr)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", "invalid authorization format"
	}
	return strings.TrimSpace(token), ""
}

// RequireOperator rejects tokens whose operator is no longer on the roster.
// Removing an id from ADMIN_IDS revokes its outstanding tokens.
func RequireOperator(operatorIDs []int64) func(http.Handler) http.Handler {
	allowed := make(map[int64]bool, len(operatorIDs))
	for _, id := range operatorIDs {
		allowed[id] = true
	}
	return requireClaims(func(c *auth.Claims) (bool, string) {
		return allowed[c.OperatorID], "operator not allowed"
	})
}

func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return requireClaims(func(c *auth.Claims) (bool, string) {
		for _, role := range roles {
			if c.Role == role {
				return true, ""
			}
		}
		return false, "insufficient permissions"
	})
}

// requireClaims answers 401 without claims and 403 when check fails.
func requireClaims(check func(*auth.Claims) (bool, string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			if ok, msg := check(claims); !ok {
				writeError(w, http.StatusForbidden, msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

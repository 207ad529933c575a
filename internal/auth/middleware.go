package auth

import (
	"net/http"
	"strings"

	"github.com/patchline/api/internal/domain"
	"github.com/patchline/api/internal/platform/httpx"
	"github.com/patchline/api/internal/platform/requestctx"
)

// Authenticator validates the bearer token and attaches the identity to the
// request context. Requests without a valid access token are rejected.
func Authenticator(service *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "missing bearer token", http.StatusUnauthorized))
				return
			}
			claims, err := service.VerifyAccess(token)
			if err != nil {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "invalid or expired token", http.StatusUnauthorized))
				return
			}
			ctx := requestctx.WithIdentity(r.Context(), requestctx.Identity{
				UserID:    claims.Subject,
				Email:     claims.Email,
				Role:      claims.Role,
				SessionID: claims.ID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireEmployee rejects requests whose identity is not a back-office
// account. It must run after Authenticator.
func RequireEmployee(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := requestctx.IdentityFrom(r.Context())
		if !ok {
			httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "missing bearer token", http.StatusUnauthorized))
			return
		}
		if domain.ParseRole(identity.Role) != domain.RoleEmployee {
			httpx.WriteError(r.Context(), w, httpx.NewError("forbidden", "employee account required", http.StatusForbidden))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

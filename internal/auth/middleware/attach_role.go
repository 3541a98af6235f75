package auth

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-school/internal/rbac"
)

// AttachRoleFromDB replaces the role carried by the token with the one stored
// for the user, so role changes apply without waiting for tokens to expire.
// allowClaimFallback keeps the token role for subjects missing from the users
// table (dev/offline only).
func AttachRoleFromDB(users *UserStore, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			u, err := users.ByID(ctx, rbac.SubjectFromContext(ctx))
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, u.Role)))
			case errors.Is(err, ErrUserNotFound) && allowClaimFallback && rbac.RoleFromContext(ctx) != "":
				next.ServeHTTP(w, r)
			case errors.Is(err, ErrUserNotFound):
				http.Error(w, "forbidden", http.StatusForbidden)
			default:
				http.Error(w, "user lookup failed", http.StatusInternalServerError)
			}
		})
	}
}

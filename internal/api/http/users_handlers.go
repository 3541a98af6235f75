package http

import (
	"net/http"
	"strings"

	auth "github.com/mind-engage/mindengage-school/internal/auth/middleware"
	"github.com/mind-engage/mindengage-school/internal/logger"
	"github.com/mind-engage/mindengage-school/internal/rbac"
)

// POST /users  { "username": "...", "email": "...", "role": "student", "password": "..." }
func CreateUserHandler(users *auth.UserStore, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Email    string `json:"email"`
			Role     string `json:"role"`
			Password string `json:"password"`
		}
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, "bad json")
			return
		}
		req.Username = strings.TrimSpace(req.Username)
		if req.Username == "" || req.Password == "" {
			badRequest(w, "username and password required")
			return
		}
		if req.Role == "" {
			req.Role = rbac.RoleStudent
		}
		u, err := users.Create(r.Context(), req.Username, strings.TrimSpace(req.Email), req.Role, req.Password)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, u)
	}
}

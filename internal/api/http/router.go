package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mind-engage/mindengage-school/internal/attempt"
	auth "github.com/mind-engage/mindengage-school/internal/auth/middleware"
	"github.com/mind-engage/mindengage-school/internal/gradebook"
	"github.com/mind-engage/mindengage-school/internal/logger"
	"github.com/mind-engage/mindengage-school/internal/quiz"
	"github.com/mind-engage/mindengage-school/internal/rbac"
	"github.com/mind-engage/mindengage-school/internal/realtime"
	syncx "github.com/mind-engage/mindengage-school/internal/sync"
)

// Deps is everything the HTTP surface needs.
type Deps struct {
	Auth       *auth.AuthService
	Users      *auth.UserStore
	Store      quiz.Store
	Controller *attempt.Controller
	Gradebook  *gradebook.Service
	Hub        *realtime.Hub
	Events     *syncx.EventRepo
	Log        logger.Logger

	CORSOrigins []string
	// RoleClaimFallback keeps the token's role for subjects missing from the
	// users table. Offline/dev only.
	RoleClaimFallback bool
	// Ready reports whether backing services are reachable.
	Ready func() error
}

func NewRouter(d Deps) chi.Router {
	if d.Log == nil {
		d.Log = logger.Nop{}
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(); err != nil {
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	r.With(middleware.Timeout(30*time.Second)).Post("/auth/login", auth.LoginHandler(d.Auth, d.Users))

	// JWT -> subject/role in context -> role refreshed from users -> RBAC
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))
		pr.Use(auth.AttachRoleFromDB(d.Users, d.RoleClaimFallback))

		// the websocket outlives any request timeout
		pr.With(rbac.RequireAny(rbac.PermAttemptViewOwn, rbac.PermAttemptViewAll)).
			Get("/attempts/{attemptID}/ws", AttemptWSHandler(d.Store, d.Controller, d.Hub, d.Log))

		pr.Group(func(pr chi.Router) {
			pr.Use(middleware.Timeout(30 * time.Second))

			pr.With(rbac.Require(rbac.PermQuizCreate)).
				Post("/quizzes", CreateQuizHandler(d.Store, d.Log))
			pr.With(rbac.Require(rbac.PermQuizView)).
				Get("/quizzes", ListQuizzesHandler(d.Store, d.Log))
			pr.With(rbac.Require(rbac.PermQuizView)).
				Get("/quizzes/{quizID}", GetQuizHandler(d.Store, d.Log))
			pr.With(rbac.Require(rbac.PermQuizCreate)).
				Get("/quizzes/{quizID}/admin", GetQuizAdminHandler(d.Store, d.Log))
			pr.With(rbac.Require(rbac.PermQuizArchive)).
				Delete("/quizzes/{quizID}", ArchiveQuizHandler(d.Store, d.Log))

			// Learner flow
			pr.With(rbac.Require(rbac.PermAttemptStart)).
				Post("/quizzes/{quizID}/attempts", StartAttemptHandler(d.Controller, d.Log))
			pr.With(rbac.Require(rbac.PermAttemptAnswer)).
				Put("/attempts/{attemptID}/answers", SelectAnswerHandler(d.Controller, d.Log))
			pr.With(rbac.Require(rbac.PermAttemptSubmit)).
				Post("/attempts/{attemptID}/submit", SubmitAttemptHandler(d.Controller, d.Log))
			pr.With(rbac.RequireAny(rbac.PermAttemptViewOwn, rbac.PermAttemptViewAll)).
				Get("/attempts/{attemptID}", GetAttemptHandler(d.Store, d.Controller, d.Log))
			pr.With(rbac.RequireAny(rbac.PermAttemptViewOwn, rbac.PermAttemptViewAll)).
				Get("/attempts", ListAttemptsHandler(d.Store, d.Log))

			pr.With(rbac.RequireAny(rbac.PermGradebookViewOwn, rbac.PermGradebookViewAll)).
				Get("/gradebook", GradebookHandler(d.Gradebook, d.Log))

			pr.With(rbac.Require(rbac.PermUserCreate)).
				Post("/users", CreateUserHandler(d.Users, d.Log))
			if d.Events != nil {
				pr.With(rbac.Require(rbac.PermEventsView)).
					Get("/events", EventsHandler(d.Events, d.Log))
			}
		})
	})
	return r
}

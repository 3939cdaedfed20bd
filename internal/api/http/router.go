package http

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mind-engage/mindengage-assess/internal/assignment"
	"github.com/mind-engage/mindengage-assess/internal/attempt"
	auth "github.com/mind-engage/mindengage-assess/internal/auth/middleware"
	"github.com/mind-engage/mindengage-assess/internal/config"
	"github.com/mind-engage/mindengage-assess/internal/content"
	"github.com/mind-engage/mindengage-assess/internal/rbac"
)

type Deps struct {
	DB          *sql.DB
	Attempts    *attempt.Service
	Importer    *content.Importer
	Assignments *assignment.Store
	Auth        *auth.AuthService

	EnableLocalAuth bool
	LocalUsers      []config.LocalUser
	CORSOrigins     []string
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if d.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(d.Auth, d.LocalUsers))
	}

	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))

		pr.With(rbac.Require(rbac.PermTestViewAssign)).
			Get("/tests/assigned", AssignedTestsHandler(d.Attempts))
		pr.With(rbac.Require(rbac.PermTestImport)).
			Post("/tests", ImportTestHandler(d.Importer))

		pr.Route("/tests/{testID}", func(tr chi.Router) {
			tr.With(rbac.Require(rbac.PermAttemptStart)).Post("/start", StartTestHandler(d.Attempts))
			tr.With(rbac.Require(rbac.PermAttemptAnswer)).Post("/answers", SubmitAnswerHandler(d.Attempts))
			tr.With(rbac.Require(rbac.PermAttemptComplete)).Post("/complete", CompleteTestHandler(d.Attempts))
			tr.With(rbac.RequireAny(rbac.PermAttemptViewOwn, rbac.PermAttemptViewAll)).
				Get("/results", ResultsHandler(d.Attempts))
			tr.With(rbac.RequireAny(rbac.PermAttemptViewOwn, rbac.PermAttemptViewAll)).
				Get("/review", ReviewHandler(d.Attempts))
			tr.With(rbac.Require(rbac.PermTestAssign)).
				Post("/assignments", AssignTestHandler(d.Assignments))

			tr.Route("/sections/{sectionID}", func(sr chi.Router) {
				sr.With(rbac.Require(rbac.PermAttemptStart)).Post("/start", StartSectionHandler(d.Attempts))
				sr.With(rbac.Require(rbac.PermAttemptAnswer)).Get("/questions", SectionQuestionsHandler(d.Attempts))
				sr.With(rbac.Require(rbac.PermAttemptAnswer)).Post("/answers", SubmitBulkAnswersHandler(d.Attempts))
				sr.With(rbac.Require(rbac.PermAttemptComplete)).Post("/complete", CompleteSectionHandler(d.Attempts))
			})
		})

		pr.With(rbac.RequireAny(rbac.PermAttemptViewOwn, rbac.PermAttemptViewAll)).
			Get("/attempts", ListAttemptsHandler(d.Attempts))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := d.DB.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return r
}

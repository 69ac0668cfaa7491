package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/quizforge/quizforge/internal/analytics"
	api "github.com/quizforge/quizforge/internal/api/http"
	"github.com/quizforge/quizforge/internal/auth"
	"github.com/quizforge/quizforge/internal/config"
	"github.com/quizforge/quizforge/internal/db"
	"github.com/quizforge/quizforge/internal/grading"
	"github.com/quizforge/quizforge/internal/quiz"
	"github.com/quizforge/quizforge/internal/rbac"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	if err := auth.SeedAdmin(ctx, dbh, cfg.AdminUser, cfg.AdminPassHash); err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	quizStore := quiz.NewSQLStore(dbh, cfg.DBDriver)
	analyticsStore := analytics.NewSQLStore(dbh, cfg.DBDriver)
	aggregator := analytics.NewAggregator(analyticsStore)
	svc := quiz.NewService(quizStore, grading.NewDefaultGrader(), aggregator)

	// --- Auth ---
	authSvc := auth.NewAuthService(cfg.AuthSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh, cfg.AdminUser, cfg.AdminPassHash))

	quizH := &api.QuizHandlers{Svc: svc}
	attemptH := &api.AttemptHandlers{Svc: svc}
	gradingH := &api.GradingHandlers{Svc: svc}
	analyticsH := &api.AnalyticsHandlers{Records: analyticsStore, Quizzes: quizStore}

	// Protected API (JWT → DB role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(auth.AttachRoleFromDB(dbh, cfg.Mode == config.ModeOffline))

		// Quizzes
		pr.With(rbac.Require("quiz:create")).
			Post("/quizzes", quizH.Create)
		pr.With(rbac.Require("quiz:view")).
			Get("/quizzes", quizH.List)
		pr.With(rbac.Require("quiz:view")).
			Get("/quizzes/{quizID}", quizH.Get)
		pr.With(rbac.Require("quiz:update-own")).
			Put("/quizzes/{quizID}", quizH.Update)
		pr.With(rbac.Require("quiz:delete-own")).
			Delete("/quizzes/{quizID}", quizH.Delete)

		// Attempts
		pr.With(rbac.Require("attempt:create")).
			Post("/quizzes/{quizID}/attempts", attemptH.Start)
		pr.With(rbac.Require("attempt:submit")).
			Post("/attempts/{attemptID}/submit", attemptH.Submit)
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}", attemptH.Get)
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts", attemptH.List)
		pr.With(rbac.Require("attempt:grade")).
			Post("/attempts/{attemptID}/grades", gradingH.ApplyManualGrades)

		// Analytics
		pr.With(rbac.Require("analytics:view-own")).
			Get("/analytics/me", analyticsH.ListMine)
		pr.With(rbac.Require("analytics:view-own")).
			Get("/analytics/me/categories", analyticsH.MyCategories)
		pr.With(rbac.Require("analytics:view-own")).
			Get("/analytics/me/export", analyticsH.ExportMine)
		pr.With(rbac.Require("analytics:view-own")).
			Get("/analytics/user/{userID}", analyticsH.ListByUser)
		pr.With(rbac.Require("analytics:view-quiz")).
			Get("/analytics/quiz/{quizID}", analyticsH.ListByQuiz)
		pr.With(rbac.Require("analytics:view-quiz")).
			Get("/analytics/quiz/{quizID}/questions", analyticsH.QuizQuestionDifficulty)

		// Users (teacher/admin)
		pr.With(rbac.Require("users:bulk_upsert")).
			Post("/users/bulk", api.BulkUpsertUsersHandler(dbh))
		pr.With(rbac.Require("users:list")).
			Get("/users", api.ListUsersHandler(dbh))
		pr.With(rbac.Require("user:change_password")).
			Post("/users/me/password", api.ChangePasswordHandler(dbh))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}

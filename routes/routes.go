package routes

import (
	"log/slog"
	"net/http"

	_ "github.com/Dosada05/ralli/docs"
	"github.com/Dosada05/ralli/handlers"
	"github.com/Dosada05/ralli/metrics"
	"github.com/Dosada05/ralli/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Handlers struct {
	Auth      *handlers.AuthHandler
	Race      *handlers.RaceHandler
	Game      *handlers.GameHandler
	Review    *handlers.ReviewHandler
	Dashboard *handlers.DashboardHandler
	WebSocket *handlers.WebSocketHandler
}

type Options struct {
	JWTSecret      string
	AllowedOrigins []string
	// Teams resolves X-Team-Token headers on the play routes.
	Teams   middleware.TeamAuthenticator
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func SetupRoutes(router *chi.Mux, h Handlers, opts Options) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.TeamTokenHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Use(opts.Metrics.Middleware)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	router.Handle("/metrics", opts.Metrics.Handler())
	router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	router.Get("/ws/races/{raceID}", h.WebSocket.ServeWs)

	authenticate := middleware.Authenticate(opts.JWTSecret)

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Auth.Register)
			r.Post("/login", h.Auth.Login)
			r.With(authenticate).Get("/me", h.Auth.Me)
		})

		r.Post("/join", h.Race.Join)

		r.Route("/play/{raceID}", func(r chi.Router) {
			r.Use(middleware.TeamSession(opts.Teams, opts.Logger))
			r.Get("/", h.Game.View)
			r.Get("/teams", h.Race.Roster)
			r.Post("/verify", h.Game.Verify)
			r.Post("/hint", h.Game.Hint)
			r.Post("/proof", h.Game.SubmitProof)
		})

		r.Route("/races", func(r chi.Router) {
			r.Get("/{raceID}/leaderboard", h.Dashboard.Leaderboard)

			r.Group(func(r chi.Router) {
				r.Use(authenticate)
				r.Post("/", h.Race.CreateRace)
				r.Get("/", h.Race.ListRaces)
				r.Get("/{raceID}", h.Race.GetRace)
				r.Patch("/{raceID}/status", h.Race.UpdateStatus)
				r.Get("/{raceID}/teams", h.Race.ListTeams)
				r.Get("/{raceID}/submissions", h.Review.Queue)
				r.Get("/{raceID}/activity", h.Dashboard.Activity)
				r.Get("/{raceID}/map", h.Dashboard.LiveMap)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/submissions/{submissionID}/review", h.Review.Review)
			r.Post("/teams/{teamID}/skip", h.Review.ForceSkip)
		})
	})
}

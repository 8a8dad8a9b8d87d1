package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/ralli/config"
	"github.com/Dosada05/ralli/db"
	"github.com/Dosada05/ralli/handlers"
	"github.com/Dosada05/ralli/metrics"
	"github.com/Dosada05/ralli/realtime"
	"github.com/Dosada05/ralli/repositories"
	api "github.com/Dosada05/ralli/routes"
	"github.com/Dosada05/ralli/services"
	"github.com/Dosada05/ralli/storage"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and realtime hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Apply the database schema before serving")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel)

			dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
			if err != nil {
				return err
			}
			defer dbConn.Close()

			if err := db.Migrate(cmd.Context(), dbConn); err != nil {
				return err
			}
			logger.Info("schema applied")
			return nil
		},
	}
}

func openBus(cfg *config.Config, logger *slog.Logger) (realtime.Bus, error) {
	if cfg.NATSURL == "" {
		logger.Info("using in-process change bus")
		return realtime.NewLocalBus(logger), nil
	}
	bus, err := realtime.NewNATSBus(cfg.NATSURL, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to NATS change bus", slog.String("url", cfg.NATSURL))
	return bus, nil
}

func serve(migrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if migrate {
		if err := db.Migrate(ctx, dbConn); err != nil {
			return err
		}
		logger.Info("schema applied")
	}

	uploader, err := storage.NewS3Uploader(ctx, storage.S3UploaderConfig{
		AccountID:       cfg.Storage.AccountID,
		Endpoint:        cfg.Storage.Endpoint,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		BucketName:      cfg.Storage.BucketName,
		PublicBaseURL:   cfg.Storage.PublicBaseURL,
	})
	if err != nil {
		return fmt.Errorf("initialize proof storage: %w", err)
	}
	logger.Info("proof storage initialized", slog.String("bucket", cfg.Storage.BucketName))

	bus, err := openBus(cfg, logger)
	if err != nil {
		return err
	}
	defer bus.Close()

	m := metrics.New()
	hub := realtime.NewHub(bus, logger)
	hub.OnClientsChanged(m.AddRealtimeClients)

	router := buildRouter(cfg, dbConn, uploader, bus, hub, m, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("starting server", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			return err
		}
		logger.Info("server shutdown complete")
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("application exited")
	return nil
}

func buildRouter(
	cfg *config.Config,
	dbConn *sql.DB,
	uploader storage.FileUploader,
	bus realtime.Bus,
	hub *realtime.Hub,
	m *metrics.Metrics,
	logger *slog.Logger,
) *chi.Mux {
	organizerRepo := repositories.NewPostgresOrganizerRepository(dbConn)
	raceRepo := repositories.NewPostgresRaceRepository(dbConn)
	waypointRepo := repositories.NewPostgresWaypointRepository(dbConn)
	teamRepo := repositories.NewPostgresTeamRepository(dbConn)
	progressRepo := repositories.NewPostgresProgressRepository(dbConn)
	hintRepo := repositories.NewPostgresHintRepository(dbConn)
	txManager := repositories.NewPostgresTxManager(dbConn, logger)

	authService := services.NewAuthService(organizerRepo, logger)
	raceService := services.NewRaceService(raceRepo, waypointRepo, teamRepo, txManager, bus, logger)
	teamService := services.NewTeamService(teamRepo, raceService, bus, m, logger)
	gameService := services.NewGameService(raceRepo, waypointRepo, teamRepo, progressRepo, hintRepo, txManager, uploader, bus, m, logger)
	reviewService := services.NewReviewService(raceRepo, waypointRepo, teamRepo, progressRepo, txManager, uploader, bus, m, logger)
	dashboardService := services.NewDashboardService(raceRepo, waypointRepo, teamRepo, progressRepo, uploader, logger)

	router := chi.NewRouter()
	api.SetupRoutes(router, api.Handlers{
		Auth:      handlers.NewAuthHandler(authService, cfg.JWTSecretKey),
		Race:      handlers.NewRaceHandler(raceService, teamService),
		Game:      handlers.NewGameHandler(gameService),
		Review:    handlers.NewReviewHandler(reviewService),
		Dashboard: handlers.NewDashboardHandler(dashboardService),
		WebSocket: handlers.NewWebSocketHandler(hub, cfg.CORSAllowedOrigins, logger),
	}, api.Options{
		JWTSecret:      cfg.JWTSecretKey,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Teams:          teamService,
		Metrics:        m,
		Logger:         logger,
	})
	return router
}

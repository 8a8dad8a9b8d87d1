package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/ralli/models"
	"github.com/Dosada05/ralli/repositories"
	"github.com/Dosada05/ralli/storage"
	"golang.org/x/sync/errgroup"
)

// ActivityLimit is how many submissions the activity feed shows.
const ActivityLimit = 20

type DashboardService interface {
	// Leaderboard ranks the teams of a race. It is public.
	Leaderboard(ctx context.Context, raceID string) ([]models.LeaderboardEntry, error)
	Activity(ctx context.Context, organizerID, raceID string) ([]models.Progress, error)
	LiveMap(ctx context.Context, organizerID, raceID string) (*models.MapSnapshot, error)
}

type dashboardService struct {
	raceRepo     repositories.RaceRepository
	waypointRepo repositories.WaypointRepository
	teamRepo     repositories.TeamRepository
	progressRepo repositories.ProgressRepository
	uploader     storage.FileUploader
	logger       *slog.Logger
}

func NewDashboardService(
	raceRepo repositories.RaceRepository,
	waypointRepo repositories.WaypointRepository,
	teamRepo repositories.TeamRepository,
	progressRepo repositories.ProgressRepository,
	uploader storage.FileUploader,
	logger *slog.Logger,
) DashboardService {
	return &dashboardService{
		raceRepo:     raceRepo,
		waypointRepo: waypointRepo,
		teamRepo:     teamRepo,
		progressRepo: progressRepo,
		uploader:     uploader,
		logger:       logger,
	}
}

func (s *dashboardService) Leaderboard(ctx context.Context, raceID string) ([]models.LeaderboardEntry, error) {
	if _, err := s.raceRepo.GetByID(ctx, raceID); err != nil {
		if errors.Is(err, repositories.ErrRaceNotFound) {
			return nil, ErrRaceNotFound
		}
		return nil, err
	}

	var (
		teams []models.Team
		total int
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		teams, err = s.teamRepo.Leaderboard(gCtx, raceID)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.waypointRepo.CountByRace(gCtx, raceID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}

	entries := make([]models.LeaderboardEntry, 0, len(teams))
	for i, t := range teams {
		entries = append(entries, models.LeaderboardEntry{
			Rank:             i + 1,
			TeamID:           t.ID,
			TeamName:         t.Name,
			Score:            t.Score,
			CurrentStepIndex: t.CurrentStepIndex,
			Finished:         t.CurrentStepIndex >= total,
		})
	}
	return entries, nil
}

func (s *dashboardService) Activity(ctx context.Context, organizerID, raceID string) ([]models.Progress, error) {
	race, err := loadOwnedRace(ctx, s.raceRepo, organizerID, raceID)
	if err != nil {
		return nil, err
	}
	items, err := s.progressRepo.ListByRace(ctx, repositories.ListProgressFilter{
		RaceID: race.ID,
		Newest: true,
		Limit:  ActivityLimit,
	})
	if err != nil {
		return nil, err
	}
	for i := range items {
		populateProofURL(&items[i], s.uploader)
	}
	return items, nil
}

func (s *dashboardService) LiveMap(ctx context.Context, organizerID, raceID string) (*models.MapSnapshot, error) {
	race, err := loadOwnedRace(ctx, s.raceRepo, organizerID, raceID)
	if err != nil {
		return nil, err
	}

	var (
		waypoints []models.Waypoint
		teams     []models.Team
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if waypoints, err = s.waypointRepo.ListByRace(gCtx, race.ID); err != nil {
			s.logger.ErrorContext(gCtx, "live map: waypoints", slog.String("race_id", race.ID), slog.Any("error", err))
		}
		return err
	})
	g.Go(func() error {
		var err error
		if teams, err = s.teamRepo.ListByRace(gCtx, race.ID); err != nil {
			s.logger.ErrorContext(gCtx, "live map: teams", slog.String("race_id", race.ID), slog.Any("error", err))
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load live map: %w", err)
	}

	byOrder := make(map[int]int, len(waypoints))
	for i, w := range waypoints {
		byOrder[w.OrderIndex] = i
	}
	positions := make([]models.TeamPosition, 0, len(teams))
	for _, t := range teams {
		p := models.TeamPosition{Team: t, Finished: true}
		if i, ok := byOrder[t.CurrentStepIndex]; ok {
			w := waypoints[i]
			p.CurrentWaypoint = &w
			p.Finished = false
		}
		positions = append(positions, p)
	}

	return &models.MapSnapshot{Race: race, Waypoints: waypoints, Teams: positions}, nil
}

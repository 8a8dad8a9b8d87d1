package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/Dosada05/ralli/metrics"
	"github.com/Dosada05/ralli/models"
	"github.com/Dosada05/ralli/realtime"
	"github.com/Dosada05/ralli/repositories"
	"github.com/google/uuid"
)

const maxTeamNameLength = 64

type TeamService interface {
	// Join registers a new team into the race identified by code and hands
	// back the session token the team uses from then on.
	Join(ctx context.Context, input JoinInput) (*models.JoinResult, error)
	Authenticate(ctx context.Context, raceID, token string) (*models.Team, error)
	// Roster lists the teams of the caller's race in joining order.
	Roster(ctx context.Context, team *models.Team) ([]models.RosterEntry, error)
}

type JoinInput struct {
	Code     string `json:"code"`
	TeamName string `json:"team_name"`
}

// RaceResolver is the part of RaceService joining needs.
type RaceResolver interface {
	ResolveCode(ctx context.Context, code string) (*models.Race, error)
}

type teamService struct {
	teamRepo  repositories.TeamRepository
	races     RaceResolver
	publisher ChangePublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewTeamService(teamRepo repositories.TeamRepository, races RaceResolver, publisher ChangePublisher, metrics *metrics.Metrics, logger *slog.Logger) TeamService {
	return &teamService{
		teamRepo:  teamRepo,
		races:     races,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

func (s *teamService) Join(ctx context.Context, input JoinInput) (*models.JoinResult, error) {
	v := ValidationErrors{}
	name := strings.TrimSpace(input.TeamName)
	switch {
	case name == "":
		v.add("team_name", "is required")
	case utf8.RuneCountInString(name) > maxTeamNameLength:
		v.add("team_name", fmt.Sprintf("must be at most %d characters", maxTeamNameLength))
	}
	if strings.TrimSpace(input.Code) == "" {
		v.add("code", "is required")
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	race, err := s.races.ResolveCode(ctx, input.Code)
	if err != nil {
		return nil, err
	}
	if race.Status == models.RaceStatusDraft {
		return nil, ErrRaceNotJoinable
	}

	team := &models.Team{
		ID:           uuid.NewString(),
		RaceID:       race.ID,
		Name:         name,
		SessionToken: uuid.NewString(),
	}
	if err := s.teamRepo.Create(ctx, team); err != nil {
		if errors.Is(err, repositories.ErrTeamRaceInvalid) {
			return nil, ErrRaceNotFound
		}
		return nil, fmt.Errorf("failed to create team: %w", err)
	}

	s.metrics.ObserveJoin()
	s.logger.InfoContext(ctx, "team joined", slog.String("race_id", race.ID), slog.String("team_id", team.ID))
	publishTeam(ctx, s.publisher, s.logger, realtime.EventInsert, team)

	return &models.JoinResult{
		Team:         *team,
		RaceID:       race.ID,
		RaceStatus:   race.Status,
		SessionToken: team.SessionToken,
	}, nil
}

func (s *teamService) Authenticate(ctx context.Context, raceID, token string) (*models.Team, error) {
	token = strings.TrimSpace(token)
	if raceID == "" || token == "" {
		return nil, ErrInvalidSession
	}
	if _, err := uuid.Parse(raceID); err != nil {
		return nil, ErrInvalidSession
	}
	team, err := s.teamRepo.GetBySession(ctx, raceID, token)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	return team, nil
}

func (s *teamService) Roster(ctx context.Context, team *models.Team) ([]models.RosterEntry, error) {
	teams, err := s.teamRepo.ListByRace(ctx, team.RaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	roster := make([]models.RosterEntry, 0, len(teams))
	for _, t := range teams {
		roster = append(roster, models.RosterEntry{
			ID:       t.ID,
			Name:     t.Name,
			JoinedAt: t.CreatedAt,
			Self:     t.ID == team.ID,
		})
	}
	return roster, nil
}

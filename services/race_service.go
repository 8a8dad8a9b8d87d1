package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Dosada05/ralli/geofence"
	"github.com/Dosada05/ralli/models"
	"github.com/Dosada05/ralli/realtime"
	"github.com/Dosada05/ralli/repositories"
	"github.com/Dosada05/ralli/shortcode"
	"github.com/google/uuid"
)

const maxNameLength = 120

type RaceService interface {
	CreateRace(ctx context.Context, organizerID string, input CreateRaceInput) (*models.Race, error)
	GetRace(ctx context.Context, organizerID, raceID string) (*models.Race, error)
	ListRaces(ctx context.Context, organizerID string) ([]models.Race, error)
	// ResolveCode turns a short code or a full race id into a race.
	ResolveCode(ctx context.Context, code string) (*models.Race, error)
	UpdateStatus(ctx context.Context, organizerID, raceID string, status models.RaceStatus) (*models.Race, error)
	ListTeams(ctx context.Context, organizerID, raceID string) ([]models.Team, error)
}

type CreateRaceInput struct {
	Name        string             `json:"name" yaml:"name"`
	Description *string            `json:"description,omitempty" yaml:"description,omitempty"`
	Status      *models.RaceStatus `json:"status,omitempty" yaml:"status,omitempty"`
	Waypoints   []WaypointInput    `json:"waypoints" yaml:"waypoints"`
}

type WaypointInput struct {
	Name            string   `json:"name" yaml:"name"`
	Riddle          string   `json:"riddle" yaml:"riddle"`
	TaskInstruction string   `json:"task_instruction" yaml:"task_instruction"`
	Lat             float64  `json:"lat" yaml:"lat"`
	Lng             float64  `json:"lng" yaml:"lng"`
	RadiusMeters    *float64 `json:"radius_meters,omitempty" yaml:"radius_meters,omitempty"`
	PointsValue     *int     `json:"points_value,omitempty" yaml:"points_value,omitempty"`
	OrderIndex      *int     `json:"order_index,omitempty" yaml:"order_index,omitempty"`
	Hint            *string  `json:"hint,omitempty" yaml:"hint,omitempty"`
}

type raceService struct {
	raceRepo     repositories.RaceRepository
	waypointRepo repositories.WaypointRepository
	teamRepo     repositories.TeamRepository
	txManager    repositories.TxManager
	publisher    ChangePublisher
	logger       *slog.Logger
}

func NewRaceService(
	raceRepo repositories.RaceRepository,
	waypointRepo repositories.WaypointRepository,
	teamRepo repositories.TeamRepository,
	txManager repositories.TxManager,
	publisher ChangePublisher,
	logger *slog.Logger,
) RaceService {
	return &raceService{
		raceRepo:     raceRepo,
		waypointRepo: waypointRepo,
		teamRepo:     teamRepo,
		txManager:    txManager,
		publisher:    publisher,
		logger:       logger,
	}
}

func (s *raceService) CreateRace(ctx context.Context, organizerID string, input CreateRaceInput) (*models.Race, error) {
	race, waypoints, err := buildRace(organizerID, input)
	if err != nil {
		return nil, err
	}

	err = s.txManager.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.raceRepo.Create(ctx, exec, race); err != nil {
			return err
		}
		return s.waypointRepo.CreateBatch(ctx, exec, waypoints)
	})
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrWaypointOrderConflict):
			return nil, ErrWaypointConflict
		case errors.Is(err, repositories.ErrRaceOrganizerInvalid):
			return nil, ErrOrganizerNotFound
		case errors.Is(err, repositories.ErrCheckViolation):
			return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
		return nil, fmt.Errorf("failed to create race: %w", err)
	}

	race.Waypoints = make([]models.Waypoint, 0, len(waypoints))
	for _, w := range waypoints {
		race.Waypoints = append(race.Waypoints, *w)
	}
	populateRaceShortCode(race)

	s.logger.InfoContext(ctx, "race created",
		slog.String("race_id", race.ID),
		slog.String("short_code", race.ShortCode),
		slog.Int("waypoints", len(waypoints)))
	publishChange(ctx, s.publisher, s.logger, realtime.TableRaces, realtime.EventInsert, race.ID, race, map[string]string{"id": race.ID})
	return race, nil
}

// buildRace validates input and assigns ids and defaults. Waypoints without
// an explicit order index take their position in the list.
func buildRace(organizerID string, input CreateRaceInput) (*models.Race, []*models.Waypoint, error) {
	v := ValidationErrors{}

	name := strings.TrimSpace(input.Name)
	switch {
	case name == "":
		v.add("name", "is required")
	case utf8.RuneCountInString(name) > maxNameLength:
		v.add("name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}

	status := models.RaceStatusLobby
	if input.Status != nil {
		status = *input.Status
		if !status.Valid() {
			v.add("status", "must be draft, lobby or active")
		}
	}

	if len(input.Waypoints) == 0 {
		v.add("waypoints", "at least one waypoint is required")
	}

	race := &models.Race{
		ID:          uuid.NewString(),
		OrganizerID: organizerID,
		Name:        name,
		Description: input.Description,
		Status:      status,
	}

	waypoints := make([]*models.Waypoint, 0, len(input.Waypoints))
	seen := make(map[int]bool, len(input.Waypoints))
	for i, in := range input.Waypoints {
		field := fmt.Sprintf("waypoints[%d]", i)
		w := &models.Waypoint{
			ID:              uuid.NewString(),
			RaceID:          race.ID,
			Name:            strings.TrimSpace(in.Name),
			Riddle:          in.Riddle,
			TaskInstruction: in.TaskInstruction,
			Lat:             in.Lat,
			Lng:             in.Lng,
			RadiusMeters:    models.DefaultRadiusMeters,
			PointsValue:     models.DefaultPointsValue,
			OrderIndex:      i,
			Hint:            in.Hint,
		}
		if in.RadiusMeters != nil {
			w.RadiusMeters = *in.RadiusMeters
		}
		if in.PointsValue != nil {
			w.PointsValue = *in.PointsValue
		}
		if in.OrderIndex != nil {
			w.OrderIndex = *in.OrderIndex
		}

		if w.Name == "" {
			v.add(field+".name", "is required")
		}
		if !geofence.ValidPoint(geofence.Point{Lat: w.Lat, Lng: w.Lng}) {
			v.add(field+".location", "lat must be within ±90 and lng within ±180")
		}
		if !(w.RadiusMeters > 0) {
			v.add(field+".radius_meters", "must be greater than zero")
		}
		if w.PointsValue < 0 {
			v.add(field+".points_value", "must not be negative")
		}
		if w.OrderIndex < 0 {
			v.add(field+".order_index", "must not be negative")
		} else if seen[w.OrderIndex] {
			v.add(field+".order_index", "is used by another waypoint")
		}
		seen[w.OrderIndex] = true
		waypoints = append(waypoints, w)
	}

	// Teams advance one order index at a time, so a gap would end the race early.
	for i := range waypoints {
		if !seen[i] {
			v.add("waypoints", "order indexes must run from 0 without gaps")
			break
		}
	}

	if err := v.err(); err != nil {
		return nil, nil, err
	}

	sort.Slice(waypoints, func(i, j int) bool { return waypoints[i].OrderIndex < waypoints[j].OrderIndex })
	return race, waypoints, nil
}

func (s *raceService) GetRace(ctx context.Context, organizerID, raceID string) (*models.Race, error) {
	race, err := loadOwnedRace(ctx, s.raceRepo, organizerID, raceID)
	if err != nil {
		return nil, err
	}
	waypoints, err := s.waypointRepo.ListByRace(ctx, race.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load waypoints: %w", err)
	}
	race.Waypoints = waypoints
	return race, nil
}

func (s *raceService) ListRaces(ctx context.Context, organizerID string) ([]models.Race, error) {
	races, err := s.raceRepo.ListByOrganizer(ctx, organizerID)
	if err != nil {
		return nil, err
	}
	for i := range races {
		populateRaceShortCode(&races[i])
	}
	return races, nil
}

func (s *raceService) ResolveCode(ctx context.Context, code string) (*models.Race, error) {
	code = strings.TrimSpace(code)

	if id, err := uuid.Parse(code); err == nil {
		race, err := s.raceRepo.GetByID(ctx, id.String())
		if err != nil {
			if errors.Is(err, repositories.ErrRaceNotFound) {
				return nil, ErrRaceNotFound
			}
			return nil, err
		}
		populateRaceShortCode(race)
		return race, nil
	}

	bounds, err := shortcode.Range(code)
	if err != nil {
		return nil, ErrInvalidRaceCode
	}
	races, err := s.raceRepo.FindByIDRange(ctx, bounds.Lower, bounds.Upper, 2)
	if err != nil {
		return nil, err
	}
	switch len(races) {
	case 0:
		return nil, ErrRaceNotFound
	case 1:
		race := races[0]
		populateRaceShortCode(&race)
		return &race, nil
	default:
		return nil, ErrAmbiguousRaceCode
	}
}

func (s *raceService) UpdateStatus(ctx context.Context, organizerID, raceID string, status models.RaceStatus) (*models.Race, error) {
	if !status.Valid() {
		return nil, ErrInvalidRaceStatus
	}
	race, err := loadOwnedRace(ctx, s.raceRepo, organizerID, raceID)
	if err != nil {
		return nil, err
	}
	if race.Status == status {
		return race, nil
	}
	if !race.Status.CanTransitionTo(status) {
		return nil, ErrInvalidStatusTransition
	}

	if err := s.raceRepo.UpdateStatus(ctx, race.ID, status); err != nil {
		if errors.Is(err, repositories.ErrRaceNotFound) {
			return nil, ErrRaceNotFound
		}
		return nil, err
	}
	previous := race.Status
	race.Status = status

	s.logger.InfoContext(ctx, "race status changed",
		slog.String("race_id", race.ID),
		slog.String("from", string(previous)),
		slog.String("to", string(status)))
	publishChange(ctx, s.publisher, s.logger, realtime.TableRaces, realtime.EventUpdate, race.ID, race, map[string]string{
		"id":     race.ID,
		"status": string(status),
	})
	return race, nil
}

func (s *raceService) ListTeams(ctx context.Context, organizerID, raceID string) ([]models.Team, error) {
	race, err := loadOwnedRace(ctx, s.raceRepo, organizerID, raceID)
	if err != nil {
		return nil, err
	}
	return s.teamRepo.ListByRace(ctx, race.ID)
}

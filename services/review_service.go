package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/Dosada05/ralli/gamestate"
	"github.com/Dosada05/ralli/metrics"
	"github.com/Dosada05/ralli/models"
	"github.com/Dosada05/ralli/realtime"
	"github.com/Dosada05/ralli/repositories"
	"github.com/Dosada05/ralli/storage"
)

type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "approve"
	DecisionReject  ReviewDecision = "reject"
)

type ReviewInput struct {
	Decision ReviewDecision `json:"decision"`
	Reason   *string        `json:"reason,omitempty"`
}

type ReviewResult struct {
	Submission models.Progress `json:"submission"`
	Team       models.Team     `json:"team"`
}

type ReviewService interface {
	// Queue lists pending submissions of a race, oldest first.
	Queue(ctx context.Context, organizerID, raceID string) ([]models.Progress, error)
	// Review approves or rejects a pending submission. Approval advances the
	// team in the same transaction.
	Review(ctx context.Context, organizerID, submissionID string, input ReviewInput) (*ReviewResult, error)
	// ForceSkip moves a stuck team to the next waypoint without points.
	ForceSkip(ctx context.Context, organizerID, teamID string) (*models.Team, error)
}

type reviewService struct {
	raceRepo     repositories.RaceRepository
	waypointRepo repositories.WaypointRepository
	teamRepo     repositories.TeamRepository
	progressRepo repositories.ProgressRepository
	txManager    repositories.TxManager
	uploader     storage.FileUploader
	publisher    ChangePublisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          clock
}

func NewReviewService(
	raceRepo repositories.RaceRepository,
	waypointRepo repositories.WaypointRepository,
	teamRepo repositories.TeamRepository,
	progressRepo repositories.ProgressRepository,
	txManager repositories.TxManager,
	uploader storage.FileUploader,
	publisher ChangePublisher,
	metrics *metrics.Metrics,
	logger *slog.Logger,
) ReviewService {
	return &reviewService{
		raceRepo:     raceRepo,
		waypointRepo: waypointRepo,
		teamRepo:     teamRepo,
		progressRepo: progressRepo,
		txManager:    txManager,
		uploader:     uploader,
		publisher:    publisher,
		metrics:      metrics,
		logger:       logger,
		now:          systemClock,
	}
}

func (s *reviewService) Queue(ctx context.Context, organizerID, raceID string) ([]models.Progress, error) {
	race, err := loadOwnedRace(ctx, s.raceRepo, organizerID, raceID)
	if err != nil {
		return nil, err
	}
	pending := models.ProgressPending
	items, err := s.progressRepo.ListByRace(ctx, repositories.ListProgressFilter{RaceID: race.ID, Status: &pending})
	if err != nil {
		return nil, err
	}
	for i := range items {
		populateProofURL(&items[i], s.uploader)
	}
	return items, nil
}

func submissionState(status models.ProgressStatus) gamestate.State {
	switch status {
	case models.ProgressApproved:
		return gamestate.Approved
	case models.ProgressRejected:
		return gamestate.Rejected
	}
	return gamestate.PendingReview
}

func (s *reviewService) Review(ctx context.Context, organizerID, submissionID string, input ReviewInput) (*ReviewResult, error) {
	var event gamestate.Event
	switch input.Decision {
	case DecisionApprove:
		event = gamestate.EventSubmissionApproved
	case DecisionReject:
		event = gamestate.EventSubmissionRejected
	default:
		return nil, ErrInvalidReviewDecision
	}

	submission, err := s.progressRepo.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, repositories.ErrProgressNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	team, err := s.teamRepo.GetByID(ctx, nil, submission.TeamID)
	if err != nil {
		return nil, mapTeamErr(err)
	}
	race, err := loadOwnedRace(ctx, s.raceRepo, organizerID, team.RaceID)
	if err != nil {
		return nil, err
	}
	waypoint, err := s.waypointRepo.GetByID(ctx, submission.WaypointID)
	if err != nil {
		if errors.Is(err, repositories.ErrWaypointNotFound) {
			return nil, ErrWaypointNotFound
		}
		return nil, err
	}

	var reason *string
	if event == gamestate.EventSubmissionRejected {
		r := models.DefaultRejectionReason
		if input.Reason != nil && strings.TrimSpace(*input.Reason) != "" {
			r = strings.TrimSpace(*input.Reason)
		}
		reason = &r
	}

	var (
		reviewed *models.Progress
		advanced *models.Team
	)
	err = s.txManager.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		locked, err := s.progressRepo.GetForUpdate(ctx, exec, submission.ID)
		if err != nil {
			return err
		}
		if _, err := gamestate.Transition(submissionState(locked.Status), event); err != nil {
			return ErrAlreadyReviewed
		}

		status := models.ProgressRejected
		if event == gamestate.EventSubmissionApproved {
			status = models.ProgressApproved
		}
		if reviewed, err = s.progressRepo.UpdateReview(ctx, exec, locked.ID, status, reason, s.now()); err != nil {
			return err
		}
		if status != models.ProgressApproved {
			return nil
		}
		advanced, err = s.teamRepo.Advance(ctx, exec, team.ID, waypoint.OrderIndex, waypoint.PointsValue)
		return err
	})
	if err != nil {
		if errors.Is(err, repositories.ErrProgressNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, mapTeamErr(err)
	}

	s.metrics.ObserveReview(string(input.Decision))
	s.logger.InfoContext(ctx, "submission reviewed",
		slog.String("submission_id", reviewed.ID),
		slog.String("team_id", team.ID),
		slog.String("decision", string(input.Decision)))

	populateProofURL(reviewed, s.uploader)
	publishProgress(ctx, s.publisher, s.logger, realtime.EventUpdate, race.ID, reviewed)
	if advanced != nil {
		team = advanced
		publishTeam(ctx, s.publisher, s.logger, realtime.EventUpdate, team)
	}

	return &ReviewResult{Submission: *reviewed, Team: *team}, nil
}

func (s *reviewService) ForceSkip(ctx context.Context, organizerID, teamID string) (*models.Team, error) {
	team, err := s.teamRepo.GetByID(ctx, nil, teamID)
	if err != nil {
		return nil, mapTeamErr(err)
	}
	race, err := loadOwnedRace(ctx, s.raceRepo, organizerID, team.RaceID)
	if err != nil {
		return nil, err
	}
	if _, err := s.waypointRepo.GetByRaceAndOrder(ctx, race.ID, team.CurrentStepIndex); err != nil {
		if errors.Is(err, repositories.ErrWaypointNotFound) {
			return nil, ErrRaceFinished
		}
		return nil, err
	}

	var (
		skipped  []models.Progress
		advanced *models.Team
	)
	err = s.txManager.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		var err error
		if skipped, err = s.progressRepo.RejectPendingForTeam(ctx, exec, team.ID, models.SkipRejectionReason, s.now()); err != nil {
			return err
		}
		advanced, err = s.teamRepo.ForceSkip(ctx, exec, team.ID, team.CurrentStepIndex)
		return err
	})
	if err != nil {
		return nil, mapTeamErr(err)
	}

	s.metrics.ObserveReview("skip")
	s.logger.InfoContext(ctx, "team skipped ahead",
		slog.String("team_id", team.ID),
		slog.Int("from_step", team.CurrentStepIndex),
		slog.Int("rejected", len(skipped)))

	for i := range skipped {
		publishProgress(ctx, s.publisher, s.logger, realtime.EventUpdate, race.ID, &skipped[i])
	}
	publishTeam(ctx, s.publisher, s.logger, realtime.EventUpdate, advanced)
	return advanced, nil
}

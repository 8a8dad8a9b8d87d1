package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/Dosada05/ralli/gamestate"
	"github.com/Dosada05/ralli/geofence"
	"github.com/Dosada05/ralli/imaging"
	"github.com/Dosada05/ralli/metrics"
	"github.com/Dosada05/ralli/models"
	"github.com/Dosada05/ralli/realtime"
	"github.com/Dosada05/ralli/repositories"
	"github.com/Dosada05/ralli/storage"
	"github.com/google/uuid"
)

// HintCost is deducted from the score the first time a hint is revealed.
const HintCost = 10

// GameService runs the player side of a race. Every method acts on a team
// already authenticated by its session token.
type GameService interface {
	GetView(ctx context.Context, team *models.Team) (*models.GameView, error)
	VerifyLocation(ctx context.Context, team *models.Team, fix geofence.Fix) (*models.VerifyResult, error)
	RequestHint(ctx context.Context, team *models.Team) (*models.HintResult, error)
	// SubmitProof downscales and uploads the photo, then records a pending
	// submission. The upload is bound to ctx.
	SubmitProof(ctx context.Context, team *models.Team, photo io.Reader) (*models.Progress, error)
}

type gameService struct {
	raceRepo     repositories.RaceRepository
	waypointRepo repositories.WaypointRepository
	teamRepo     repositories.TeamRepository
	progressRepo repositories.ProgressRepository
	hintRepo     repositories.HintRepository
	txManager    repositories.TxManager
	uploader     storage.FileUploader
	publisher    ChangePublisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          clock
}

func NewGameService(
	raceRepo repositories.RaceRepository,
	waypointRepo repositories.WaypointRepository,
	teamRepo repositories.TeamRepository,
	progressRepo repositories.ProgressRepository,
	hintRepo repositories.HintRepository,
	txManager repositories.TxManager,
	uploader storage.FileUploader,
	publisher ChangePublisher,
	metrics *metrics.Metrics,
	logger *slog.Logger,
) GameService {
	return &gameService{
		raceRepo:     raceRepo,
		waypointRepo: waypointRepo,
		teamRepo:     teamRepo,
		progressRepo: progressRepo,
		hintRepo:     hintRepo,
		txManager:    txManager,
		uploader:     uploader,
		publisher:    publisher,
		metrics:      metrics,
		logger:       logger,
		now:          systemClock,
	}
}

// position is what the team is currently working on.
type position struct {
	race         *models.Race
	waypoint     *models.Waypoint
	submission   *models.Progress
	state        gamestate.State
	hintRevealed bool
}

func (s *gameService) locate(ctx context.Context, team *models.Team) (*position, error) {
	race, err := s.raceRepo.GetByID(ctx, team.RaceID)
	if err != nil {
		if errors.Is(err, repositories.ErrRaceNotFound) {
			return nil, ErrRaceNotFound
		}
		return nil, err
	}
	pos := &position{race: race}

	waypoint, err := s.waypointRepo.GetByRaceAndOrder(ctx, race.ID, team.CurrentStepIndex)
	if err != nil {
		if errors.Is(err, repositories.ErrWaypointNotFound) {
			pos.state = gamestate.Finished
			return pos, nil
		}
		return nil, err
	}
	pos.waypoint = waypoint

	submission, err := s.progressRepo.Latest(ctx, team.ID, waypoint.ID)
	switch {
	case err == nil:
		pos.submission = submission
	case !errors.Is(err, repositories.ErrProgressNotFound):
		return nil, err
	}

	if waypoint.HasHint() {
		if pos.hintRevealed, err = s.hintRepo.IsRevealed(ctx, team.ID, waypoint.ID); err != nil {
			return nil, err
		}
	}

	snap := gamestate.Snapshot{
		StepIndex:     team.CurrentStepIndex,
		WaypointOrder: waypoint.OrderIndex,
		HasWaypoint:   true,
		Verified:      team.LocationVerified(),
	}
	if submission != nil {
		snap.Submission = string(submission.Status)
	}
	pos.state = gamestate.Derive(snap)

	// Waypoints stay locked until the organizer starts the race.
	if race.Status != models.RaceStatusActive {
		pos.state = gamestate.Locked
	}
	return pos, nil
}

func (s *gameService) GetView(ctx context.Context, team *models.Team) (*models.GameView, error) {
	pos, err := s.locate(ctx, team)
	if err != nil {
		return nil, err
	}
	total, err := s.waypointRepo.CountByRace(ctx, team.RaceID)
	if err != nil {
		return nil, err
	}

	view := &models.GameView{
		RaceID:         pos.race.ID,
		RaceStatus:     pos.race.Status,
		Team:           *team,
		State:          pos.state,
		TotalWaypoints: total,
		HintRevealed:   pos.hintRevealed,
	}
	if pos.waypoint != nil {
		view.Waypoint = pos.waypoint.ForPlayer(pos.hintRevealed)
	}
	if pos.submission != nil {
		populateProofURL(pos.submission, s.uploader)
		view.Submission = pos.submission
		if pos.submission.Status == models.ProgressRejected {
			view.RejectionReason = pos.submission.RejectionReason
		}
	}
	return view, nil
}

// activePosition locates the team and rejects actions outside a running race.
func (s *gameService) activePosition(ctx context.Context, team *models.Team) (*position, error) {
	pos, err := s.locate(ctx, team)
	if err != nil {
		return nil, err
	}
	if pos.state.Terminal() {
		return nil, ErrRaceFinished
	}
	if pos.race.Status != models.RaceStatusActive {
		return nil, ErrRaceNotActive
	}
	return pos, nil
}

func (s *gameService) VerifyLocation(ctx context.Context, team *models.Team, fix geofence.Fix) (*models.VerifyResult, error) {
	if !geofence.ValidPoint(fix.Point) || fix.Accuracy < 0 || math.IsInf(fix.Accuracy, 0) {
		return nil, ErrInvalidLocation
	}
	pos, err := s.activePosition(ctx, team)
	if err != nil {
		return nil, err
	}
	if !pos.state.CanVerify() {
		return nil, fmt.Errorf("%w: %s", ErrActionNotAllowed, pos.state)
	}

	result := geofence.Check(fix, geofence.Target{
		Point:        geofence.Point{Lat: pos.waypoint.Lat, Lng: pos.waypoint.Lng},
		RadiusMeters: pos.waypoint.RadiusMeters,
	})
	s.metrics.ObserveGeofence(string(result.Outcome))

	out := &models.VerifyResult{Result: result, Message: result.Message(), State: pos.state}
	if !result.Verified() {
		return out, nil
	}

	next, err := gamestate.Transition(pos.state, gamestate.EventLocationVerified)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrActionNotAllowed, err)
	}
	updated, err := s.teamRepo.SetVerifiedStep(ctx, team.ID, team.CurrentStepIndex)
	if err != nil {
		return nil, mapTeamErr(err)
	}
	*team = *updated
	out.State = next

	attrs := []any{
		slog.String("team_id", team.ID),
		slog.String("waypoint_id", pos.waypoint.ID),
		slog.Float64("accuracy_m", fix.Accuracy),
	}
	if !fix.At.IsZero() {
		attrs = append(attrs, slog.Duration("fix_age", s.now().Sub(fix.At)))
	}
	s.logger.InfoContext(ctx, "location verified", attrs...)
	publishTeam(ctx, s.publisher, s.logger, realtime.EventUpdate, team)
	return out, nil
}

func (s *gameService) RequestHint(ctx context.Context, team *models.Team) (*models.HintResult, error) {
	pos, err := s.activePosition(ctx, team)
	if err != nil {
		return nil, err
	}
	if !pos.waypoint.HasHint() {
		return nil, ErrNoHint
	}
	if !pos.state.CanRequestHint() {
		return nil, fmt.Errorf("%w: %s", ErrActionNotAllowed, pos.state)
	}

	var (
		updated *models.Team
		charged bool
	)
	err = s.txManager.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		var err error
		charged, err = s.hintRepo.Reveal(ctx, exec, team.ID, pos.waypoint.ID)
		if err != nil {
			return err
		}
		if charged {
			updated, err = s.teamRepo.DeductHint(ctx, exec, team.ID, HintCost)
		} else {
			updated, err = s.teamRepo.GetByID(ctx, exec, team.ID)
		}
		return err
	})
	if err != nil {
		return nil, mapTeamErr(err)
	}
	*team = *updated

	if charged {
		s.metrics.ObserveHint()
		s.logger.InfoContext(ctx, "hint revealed",
			slog.String("team_id", team.ID),
			slog.String("waypoint_id", pos.waypoint.ID),
			slog.Int("score", team.Score))
		publishTeam(ctx, s.publisher, s.logger, realtime.EventUpdate, team)
	}

	return &models.HintResult{Hint: *pos.waypoint.Hint, Score: team.Score, Charged: charged}, nil
}

func (s *gameService) SubmitProof(ctx context.Context, team *models.Team, photo io.Reader) (*models.Progress, error) {
	pos, err := s.activePosition(ctx, team)
	if err != nil {
		return nil, err
	}
	if !pos.state.CanSubmit() {
		if pos.state == gamestate.Unverified {
			return nil, ErrLocationNotVerified
		}
		return nil, fmt.Errorf("%w: %s", ErrActionNotAllowed, pos.state)
	}

	data, err := imaging.Downscale(photo, imaging.DefaultMaxEdge, imaging.DefaultQuality)
	if err != nil {
		switch {
		case errors.Is(err, imaging.ErrImageTooLarge):
			return nil, ErrProofTooLarge
		case errors.Is(err, imaging.ErrNotAnImage):
			return nil, ErrInvalidProof
		}
		return nil, err
	}

	key := storage.ProofKey(pos.race.ID, team.ID, pos.waypoint.ID, s.now())
	if _, err := s.uploader.Upload(ctx, key, storage.ProofContentType, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to upload proof: %w", err)
	}

	progress := &models.Progress{
		ID:         uuid.NewString(),
		TeamID:     team.ID,
		WaypointID: pos.waypoint.ID,
		Status:     models.ProgressPending,
		ProofPath:  &key,
	}
	if err := s.progressRepo.Create(ctx, progress); err != nil {
		if delErr := s.uploader.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.logger.WarnContext(ctx, "failed to remove orphaned proof", slog.String("key", key), slog.Any("error", delErr))
		}
		return nil, fmt.Errorf("failed to record submission: %w", err)
	}
	populateProofURL(progress, s.uploader)

	s.metrics.ObserveSubmission()
	s.logger.InfoContext(ctx, "proof submitted",
		slog.String("team_id", team.ID),
		slog.String("waypoint_id", pos.waypoint.ID),
		slog.String("submission_id", progress.ID),
		slog.Int("bytes", len(data)))
	publishProgress(ctx, s.publisher, s.logger, realtime.EventInsert, pos.race.ID, progress)
	return progress, nil
}

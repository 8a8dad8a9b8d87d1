package handlers

import (
	"context"
	"io"
	"log/slog"

	"github.com/Dosada05/ralli/geofence"
	"github.com/Dosada05/ralli/models"
	"github.com/Dosada05/ralli/services"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubAuth struct {
	organizer *models.Organizer
	err       error
}

func (s *stubAuth) Register(ctx context.Context, input services.RegisterInput) (*models.Organizer, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Organizer{ID: s.organizer.ID, Email: input.Email}, nil
}

func (s *stubAuth) Login(ctx context.Context, input services.LoginInput) (*models.Organizer, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.organizer, nil
}

func (s *stubAuth) GetOrganizer(ctx context.Context, id string) (*models.Organizer, error) {
	if id != s.organizer.ID {
		return nil, services.ErrOrganizerNotFound
	}
	return s.organizer, nil
}

type stubTeams struct {
	result *models.JoinResult
	roster []models.RosterEntry
	err    error
	input  services.JoinInput
	caller *models.Team
}

func (s *stubTeams) Join(ctx context.Context, input services.JoinInput) (*models.JoinResult, error) {
	s.input = input
	return s.result, s.err
}

func (s *stubTeams) Authenticate(ctx context.Context, raceID, token string) (*models.Team, error) {
	return nil, services.ErrInvalidSession
}

func (s *stubTeams) Roster(ctx context.Context, team *models.Team) ([]models.RosterEntry, error) {
	s.caller = team
	return s.roster, s.err
}

type stubGame struct {
	view      *models.GameView
	fix       geofence.Fix
	submitted []byte
	err       error
}

func (s *stubGame) GetView(ctx context.Context, team *models.Team) (*models.GameView, error) {
	return s.view, s.err
}

func (s *stubGame) VerifyLocation(ctx context.Context, team *models.Team, fix geofence.Fix) (*models.VerifyResult, error) {
	s.fix = fix
	if s.err != nil {
		return nil, s.err
	}
	res := geofence.Result{Outcome: geofence.OutcomeVerified}
	return &models.VerifyResult{Result: res, Message: res.Message()}, nil
}

func (s *stubGame) RequestHint(ctx context.Context, team *models.Team) (*models.HintResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.HintResult{Hint: "look up", Score: 90, Charged: true}, nil
}

func (s *stubGame) SubmitProof(ctx context.Context, team *models.Team, photo io.Reader) (*models.Progress, error) {
	if s.err != nil {
		return nil, s.err
	}
	data, err := io.ReadAll(photo)
	if err != nil {
		return nil, err
	}
	s.submitted = data
	return &models.Progress{ID: "p-1", TeamID: team.ID, Status: models.ProgressPending}, nil
}

type stubReviews struct {
	err   error
	input services.ReviewInput
}

func (s *stubReviews) Queue(ctx context.Context, organizerID, raceID string) ([]models.Progress, error) {
	return []models.Progress{{ID: "p-1", Status: models.ProgressPending}}, s.err
}

func (s *stubReviews) Review(ctx context.Context, organizerID, submissionID string, input services.ReviewInput) (*services.ReviewResult, error) {
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return &services.ReviewResult{Submission: models.Progress{ID: submissionID, Status: models.ProgressApproved}}, nil
}

func (s *stubReviews) ForceSkip(ctx context.Context, organizerID, teamID string) (*models.Team, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Team{ID: teamID, CurrentStepIndex: 1}, nil
}
